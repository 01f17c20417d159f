// Package vecseg provides the storage layer of a vector search segment:
// value indexes that map payload values to points and back, and dense or
// multi-dense vector storages.
//
// # Quick Start
//
//	store, _ := vecseg.Open("./segment")
//	defer store.Close()
//
//	b, _ := vecseg.NewFieldBuilder(store, "color", vecseg.KeywordKeys, vecseg.BackendMmap)
//	_ = b.AddPoint(0, "red", "blue")
//	_ = b.AddPoint(1, "red")
//	idx, _ := b.Finish(ctx)
//	idx.Points("red") // [0 1]
//
//	vs, _ := vecseg.OpenVectorStorage(store, "image", vecseg.VectorConfig{
//	    Dim:     128,
//	    Metric:  distance.MetricCosine,
//	    Backend: vecseg.VectorMmap,
//	})
//	_ = vs.InsertVector(ctx, 0, vecseg.Dense(embedding), nil)
//	hits, _ := vs.Search(ctx, vecseg.Dense(query), 10)
//
// # Backends
//
// Value indexes live either in the store's transactional database
// (BackendKV) or in memory-mapped files (BackendMmap). Both load into the
// same flat in-memory form; removals are tombstones, never compactions.
//
// Vector storages are volatile, appendable memory-mapped, or legacy kv.
// Every vector, and every multi-vector as a whole, must fit in one chunk
// (WithChunkSize).
//
// # Durability
//
// Writes become durable on Flush. Close never flushes.
package vecseg
