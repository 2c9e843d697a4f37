package db

import "github.com/kailas-cloud/aiorch/internal/domain/search/filter"

// KNNQuery asks for the K nearest documents to Vector among those matching Filter.
type KNNQuery struct {
	Index  string
	Field  VectorField
	Filter filter.Expression
	Vector []float32
	K      int
}

// KeysQuery pages through the keys of documents matching Filter.
// An empty filter matches every document.
type KeysQuery struct {
	Index  string
	Filter filter.Expression
	Limit  int
}

// Hit is one KNN result. Score is cosine similarity, 1 - distance, floored at 0.
type Hit struct {
	Key    string
	Score  float64
	Fields map[string]string
}
