// Package index defines the similarity-index collaborator. The engine only
// needs approximate nearest neighbours over its own vectors; scoring,
// thresholds, and lifecycle decisions stay in the engine.
package index

import "context"

// Kinds of vectors the engine stores side by side in one index.
const (
	KindRecord   = "record"
	KindCategory = "category"
)

// Hit is one similarity match.
type Hit struct {
	ID    string
	Score float64 // cosine similarity in [-1,1], higher is closer
}

// Index is the vector similarity index consumed by the engine.
// Implementations must partition by owner: queries never cross owners.
type Index interface {
	Upsert(ctx context.Context, ownerID, id string, vec []float32, meta map[string]string) error
	Query(ctx context.Context, ownerID string, vec []float32, kind string, topK int) ([]Hit, error)
	Delete(ctx context.Context, ownerID, id string) error
}
