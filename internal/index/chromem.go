package index

import (
	"context"
	"fmt"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"
)

// Chromem implements Index on chromem-go, a pure-Go embedded vector database.
// Each owner gets its own collection so queries are owner-partitioned by
// construction and owners can be dropped wholesale.
type Chromem struct {
	db          *chromem.DB
	collections map[string]*chromem.Collection
	mu          sync.RWMutex
}

// NewChromem creates an in-process vector index.
func NewChromem() *Chromem {
	return &Chromem{
		db:          chromem.NewDB(),
		collections: make(map[string]*chromem.Collection),
	}
}

func (c *Chromem) collection(ownerID string) (*chromem.Collection, error) {
	c.mu.RLock()
	col, ok := c.collections[ownerID]
	c.mu.RUnlock()
	if ok {
		return col, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if col, ok := c.collections[ownerID]; ok {
		return col, nil
	}

	name := "owner_" + ownerID
	if ownerID == "" {
		name = "global"
	}
	// Embeddings are always supplied by the caller, so no embedding func.
	col, err := c.db.CreateCollection(name, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection %s: %w", name, err)
	}
	c.collections[ownerID] = col
	return col, nil
}

// Upsert adds or replaces a vector. Metadata is stored for query filtering.
func (c *Chromem) Upsert(ctx context.Context, ownerID, id string, vec []float32, meta map[string]string) error {
	col, err := c.collection(ownerID)
	if err != nil {
		return err
	}

	doc := chromem.Document{
		ID:        id,
		Embedding: vec,
		Metadata:  meta,
		Content:   id, // chromem requires non-empty content
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("index upsert %s: %w", id, err)
	}
	return nil
}

// Query returns up to topK hits of the given kind, closest first.
func (c *Chromem) Query(ctx context.Context, ownerID string, vec []float32, kind string, topK int) ([]Hit, error) {
	col, err := c.collection(ownerID)
	if err != nil {
		return nil, err
	}

	// chromem rejects nResults greater than the matching document count, and
	// the count is not observable through the filter. Clamp to the collection
	// size, then walk the limit down when the filtered set is smaller still.
	n := col.Count()
	if n == 0 {
		return nil, nil
	}
	if topK > n {
		topK = n
	}

	where := map[string]string{"kind": kind}
	var results []chromem.Result
	for ; topK >= 1; topK-- {
		results, err = col.QueryEmbedding(ctx, vec, topK, where, nil)
		if err == nil {
			break
		}
		if !insufficientDocs(err) {
			return nil, fmt.Errorf("index query: %w", err)
		}
		if topK == 1 {
			return nil, nil
		}
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		hits = append(hits, Hit{ID: r.ID, Score: float64(r.Similarity)})
	}
	return hits, nil
}

func insufficientDocs(err error) bool {
	return err != nil && strings.Contains(err.Error(), "nResults must be")
}

// Delete removes a vector by id. Unknown ids are not an error.
func (c *Chromem) Delete(ctx context.Context, ownerID, id string) error {
	col, err := c.collection(ownerID)
	if err != nil {
		return err
	}
	if err := col.Delete(ctx, nil, nil, id); err != nil {
		return fmt.Errorf("index delete %s: %w", id, err)
	}
	return nil
}
