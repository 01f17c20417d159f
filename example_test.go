package vecseg_test

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/hupe1980/vecseg"
	"github.com/hupe1980/vecseg/distance"
)

func Example_valueIndex() {
	ctx := context.Background()
	dir, err := os.MkdirTemp("", "vecseg-example")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	store, err := vecseg.Open(dir)
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	b, err := vecseg.NewFieldBuilder(store, "color", vecseg.KeywordKeys, vecseg.BackendMmap)
	if err != nil {
		log.Fatal(err)
	}
	_ = b.AddPoint(0, "red", "blue")
	_ = b.AddPoint(1, "red")
	_ = b.AddPoint(2, "blue")

	idx, err := b.Finish(ctx)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(idx.Points("red"))

	_ = idx.RemovePoint(ctx, 0)
	fmt.Println(idx.Points("red"), idx.Points("blue"))
	// Output:
	// [0 1]
	// [1] [2]
}

func Example_vectorStorage() {
	ctx := context.Background()
	dir, err := os.MkdirTemp("", "vecseg-example")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	store, err := vecseg.Open(dir, vecseg.WithChunkSize(1<<16))
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	vs, err := vecseg.OpenVectorStorage(store, "image", vecseg.VectorConfig{
		Dim:     2,
		Metric:  distance.MetricDot,
		Backend: vecseg.VectorMmap,
	})
	if err != nil {
		log.Fatal(err)
	}

	_ = vs.InsertVector(ctx, 0, vecseg.Dense([]float32{1, 0}), nil)
	_ = vs.InsertVector(ctx, 1, vecseg.Dense([]float32{0, 1}), nil)
	_ = vs.InsertVector(ctx, 2, vecseg.Dense([]float32{1, 1}), nil)
	_, _ = vs.DeleteVector(ctx, 2)

	hits, err := vs.Search(ctx, vecseg.Dense([]float32{1, 0.5}), 2)
	if err != nil {
		log.Fatal(err)
	}
	for _, h := range hits {
		fmt.Println(h.ID, h.Score)
	}
	// Output:
	// 0 1
	// 1 0.5
}
