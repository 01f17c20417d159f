// Package distance provides the vector similarity functions used to score
// stored vectors.
//
// # Supported Metrics
//
//   - MetricL2: squared Euclidean distance (lower is closer)
//   - MetricCosine: cosine similarity
//   - MetricDot: dot product (inner product)
//
// [Similarity] turns any metric into a "higher is better" score so the
// scorer can rank results uniformly. [MaxSim] scores multi-vectors.
//
// # Usage
//
//	dist := distance.SquaredL2(a, b)
//	sim := distance.Dot(a, b)
//	score, _ := distance.Similarity(distance.MetricCosine)
package distance
