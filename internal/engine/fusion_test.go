package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ashish-dwi99/FadeMem/internal/index"
	"github.com/Ashish-dwi99/FadeMem/internal/judge"
	"github.com/Ashish-dwi99/FadeMem/internal/logger"
	"github.com/Ashish-dwi99/FadeMem/internal/store"
)

func newFusionFixture(t *testing.T, fake *judge.Fake) (*FusionEngine, *store.DB) {
	t.Helper()
	db, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	emb := &stubEmbedder{vecs: map[string][]float32{
		"owner drinks tea every day": {1, 0, 0},
	}}
	f := NewFusionEngine(testConfig().Fusion, db, index.NewChromem(), emb, fake, logger.Nop())
	return f, db
}

func seedCluster(t *testing.T, db *store.DB) {
	t.Helper()
	vec := []float32{1, 0, 0}
	require.NoError(t, db.InsertCategory(&store.CategoryNode{
		ID: "cat-tea", OwnerID: "o", Name: "tea", MemberCount: 3,
		Strength: 0.5, Embedding: vec,
	}))
	members := []*store.MemoryRecord{
		{ID: "m1", Strength: 0.5, AccessCount: 1, Layer: store.LayerSML},
		{ID: "m2", Strength: 0.8, AccessCount: 2, Layer: store.LayerSML},
		{ID: "m3", Strength: 0.6, AccessCount: 3, Layer: store.LayerLML, Depth: store.DepthMedium},
	}
	for _, m := range members {
		m.OwnerID = "o"
		m.Content = "drinks tea " + m.ID
		m.CategoryIDs = []string{"cat-tea"}
		m.Embedding = vec
		if m.Depth == "" {
			m.Depth = store.DepthShallow
		}
		require.NoError(t, db.InsertRecord(m))
	}
}

func TestFusionMergesCluster(t *testing.T) {
	fake := &judge.Fake{Consolidated: "owner drinks tea every day"}
	f, db := newFusionFixture(t, fake)
	seedCluster(t, db)

	report, err := f.Run(context.Background(), "o")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Clusters)
	assert.Equal(t, 3, report.Fused)

	active, err := db.ListRecords(store.Scope{OwnerID: "o"})
	require.NoError(t, err)
	require.Len(t, active, 1)

	fused := active[0]
	assert.Equal(t, "owner drinks tea every day", fused.Content)
	assert.InDelta(t, 0.8, fused.Strength, 1e-9) // max of members, never averaged
	assert.Equal(t, 6, fused.AccessCount)        // sum of members
	assert.Equal(t, store.LayerLML, fused.Layer) // one LML member lifts the result
	assert.Equal(t, store.DepthMedium, fused.Depth)
	assert.ElementsMatch(t, []string{"m1", "m2", "m3"}, fused.MergedFrom)

	// Three members left the category, the fused record took their place.
	node, err := db.GetCategory("cat-tea")
	require.NoError(t, err)
	assert.Equal(t, 1, node.MemberCount)

	// Members stay as merged tombstones pointing at the fused record.
	for _, id := range []string{"m1", "m2", "m3"} {
		m, err := db.GetRecord(id)
		require.NoError(t, err)
		assert.Equal(t, store.StatusMerged, m.Status)
		assert.Equal(t, fused.ID, m.SupersededBy)

		resolved, err := db.ResolveRecord(id)
		require.NoError(t, err)
		assert.Equal(t, fused.ID, resolved.ID)

		entries, err := db.History(id)
		require.NoError(t, err)
		assert.True(t, hasEvent(entries, store.EventFuse))
	}
}

func TestFusionRequiresSharedCategory(t *testing.T) {
	fake := &judge.Fake{Consolidated: "owner drinks tea every day"}
	f, db := newFusionFixture(t, fake)

	vec := []float32{1, 0, 0}
	for i, cat := range []string{"cat-a", "cat-b"} {
		require.NoError(t, db.InsertRecord(&store.MemoryRecord{
			ID: "r" + string(rune('1'+i)), OwnerID: "o", Content: "same text",
			Strength: 0.5, Depth: store.DepthShallow,
			CategoryIDs: []string{cat}, Embedding: vec,
		}))
	}

	report, err := f.Run(context.Background(), "o")
	require.NoError(t, err)
	assert.Equal(t, 0, report.Clusters)

	active, err := db.ListRecords(store.Scope{OwnerID: "o"})
	require.NoError(t, err)
	assert.Len(t, active, 2)
}

func TestFusionRequiresCompatibility(t *testing.T) {
	fake := &judge.Fake{DefaultRelation: judge.Contradictory}
	f, db := newFusionFixture(t, fake)
	seedCluster(t, db)

	report, err := f.Run(context.Background(), "o")
	require.NoError(t, err)
	assert.Equal(t, 0, report.Clusters)
}

func TestFusionRespectsSimilarityThreshold(t *testing.T) {
	fake := &judge.Fake{Consolidated: "owner drinks tea every day"}
	f, db := newFusionFixture(t, fake)

	require.NoError(t, db.InsertRecord(&store.MemoryRecord{
		ID: "far1", OwnerID: "o", Content: "a", Strength: 0.5,
		Depth: store.DepthShallow, CategoryIDs: []string{"c"}, Embedding: []float32{1, 0, 0},
	}))
	require.NoError(t, db.InsertRecord(&store.MemoryRecord{
		ID: "far2", OwnerID: "o", Content: "b", Strength: 0.5,
		Depth: store.DepthShallow, CategoryIDs: []string{"c"}, Embedding: []float32{0.6, 0.8, 0},
	}))

	report, err := f.Run(context.Background(), "o")
	require.NoError(t, err)
	assert.Equal(t, 0, report.Clusters) // cosine 0.6 < 0.90 threshold
}

func TestFusionDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Fusion.Enabled = false

	db, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	seedCluster(t, db)

	f := NewFusionEngine(cfg.Fusion, db, index.NewChromem(), &stubEmbedder{}, &judge.Fake{}, logger.Nop())
	report, err := f.Run(context.Background(), "o")
	require.NoError(t, err)
	assert.Zero(t, report.Clusters)

	active, err := db.ListRecords(store.Scope{OwnerID: "o"})
	require.NoError(t, err)
	assert.Len(t, active, 3)
}

func TestFusionPreservesRecency(t *testing.T) {
	fake := &judge.Fake{Consolidated: "owner drinks tea every day"}
	f, db := newFusionFixture(t, fake)

	recent := time.Now().Add(-time.Hour)
	old := time.Now().Add(-100 * time.Hour)
	vec := []float32{1, 0, 0}
	require.NoError(t, db.InsertRecord(&store.MemoryRecord{
		ID: "m1", OwnerID: "o", Content: "x", Strength: 0.5, Depth: store.DepthShallow,
		CategoryIDs: []string{"c"}, Embedding: vec, LastAccessed: old,
	}))
	require.NoError(t, db.InsertRecord(&store.MemoryRecord{
		ID: "m2", OwnerID: "o", Content: "y", Strength: 0.4, Depth: store.DepthShallow,
		CategoryIDs: []string{"c"}, Embedding: vec, LastAccessed: recent,
	}))

	_, err := f.Run(context.Background(), "o")
	require.NoError(t, err)

	active, err := db.ListRecords(store.Scope{OwnerID: "o"})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.WithinDuration(t, recent, active[0].LastAccessed, time.Second)
}
