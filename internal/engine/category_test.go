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

func newCategoryFixture(t *testing.T, fake *judge.Fake) (*CategoryManager, *store.DB, index.Index) {
	t.Helper()
	db, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	idx := index.NewChromem()
	cm := NewCategoryManager(testConfig().Category, db, idx, fake, logger.Nop())
	return cm, db, idx
}

func TestCategorizeCreatesThenAssigns(t *testing.T) {
	cm, db, _ := newCategoryFixture(t, &judge.Fake{})
	ctx := context.Background()

	r1 := &store.MemoryRecord{
		ID: "r1", OwnerID: "o", Keywords: []string{"tea", "drinks"},
		Embedding: []float32{1, 0, 0},
	}
	ids, err := cm.Categorize(ctx, r1, "")
	require.NoError(t, err)
	require.Len(t, ids, 1)

	node, err := db.GetCategory(ids[0])
	require.NoError(t, err)
	assert.Equal(t, "tea drinks", node.Name)
	assert.Equal(t, 0, node.DepthLevel)
	assert.Equal(t, 1, node.MemberCount)

	// A near-identical record joins the same node.
	r2 := &store.MemoryRecord{ID: "r2", OwnerID: "o", Embedding: []float32{1, 0, 0}}
	ids2, err := cm.Categorize(ctx, r2, "")
	require.NoError(t, err)
	assert.Equal(t, ids, ids2)

	node, err = db.GetCategory(ids[0])
	require.NoError(t, err)
	assert.Equal(t, 2, node.MemberCount)
	assert.True(t, node.SummaryStale)
}

func TestCategorizeHintNamesNewNode(t *testing.T) {
	cm, db, _ := newCategoryFixture(t, &judge.Fake{})

	r := &store.MemoryRecord{ID: "r1", OwnerID: "o", Embedding: []float32{1, 0, 0}}
	ids, err := cm.Categorize(context.Background(), r, "Preference")
	require.NoError(t, err)

	node, err := db.GetCategory(ids[0])
	require.NoError(t, err)
	assert.Equal(t, "preference", node.Name)
}

func TestCategorizeCreatesChildUnderBroadParent(t *testing.T) {
	cm, db, _ := newCategoryFixture(t, &judge.Fake{})
	ctx := context.Background()

	r1 := &store.MemoryRecord{ID: "r1", OwnerID: "o", Embedding: []float32{1, 0, 0}}
	parentIDs, err := cm.Categorize(ctx, r1, "food")
	require.NoError(t, err)

	// Similarity 0.55: too far to join (>= 0.6), close enough to nest (>= 0.5).
	r2 := &store.MemoryRecord{ID: "r2", OwnerID: "o", Embedding: []float32{0.55, 0.8352, 0}}
	childIDs, err := cm.Categorize(ctx, r2, "snacks")
	require.NoError(t, err)
	require.NotEqual(t, parentIDs[0], childIDs[0])

	child, err := db.GetCategory(childIDs[0])
	require.NoError(t, err)
	assert.Equal(t, parentIDs[0], child.ParentID)
	assert.Equal(t, 1, child.DepthLevel)

	tree, err := cm.Tree("o")
	require.NoError(t, err)
	require.Len(t, tree, 1)
	require.Len(t, tree[0].Children, 1)
	assert.Equal(t, childIDs[0], tree[0].Children[0].ID)
}

func TestDepthNeverExceedsMax(t *testing.T) {
	cm, db, _ := newCategoryFixture(t, &judge.Fake{})

	// A node already at max depth cannot become a parent.
	deep := &store.CategoryNode{
		ID: "deep", OwnerID: "o", Name: "deep", DepthLevel: 2,
		MemberCount: 1, Strength: 0.5, Embedding: []float32{1, 0, 0},
	}
	require.NoError(t, db.InsertCategory(deep))
	require.NoError(t, cm.idx.Upsert(context.Background(), "o", deep.ID, deep.Embedding,
		map[string]string{"kind": index.KindCategory}))

	r := &store.MemoryRecord{ID: "r1", OwnerID: "o", Embedding: []float32{0.55, 0.8352, 0}}
	ids, err := cm.Categorize(context.Background(), r, "")
	require.NoError(t, err)

	node, err := db.GetCategory(ids[0])
	require.NoError(t, err)
	assert.Empty(t, node.ParentID)
	assert.Equal(t, 0, node.DepthLevel)
}

func TestDecayAndMergeSiblings(t *testing.T) {
	cm, db, _ := newCategoryFixture(t, &judge.Fake{})
	ctx := context.Background()

	a := &store.CategoryNode{
		ID: "a", OwnerID: "o", Name: "drinks", MemberCount: 2,
		Strength: 0.2, Embedding: []float32{1, 0, 0},
	}
	b := &store.CategoryNode{
		ID: "b", OwnerID: "o", Name: "beverages", MemberCount: 1,
		Strength: 0.1, Embedding: []float32{1, 0, 0},
	}
	require.NoError(t, db.InsertCategory(a))
	require.NoError(t, db.InsertCategory(b))
	require.NoError(t, db.InsertRecord(&store.MemoryRecord{
		ID: "r1", OwnerID: "o", Content: "c", Strength: 0.5,
		Depth: store.DepthShallow, CategoryIDs: []string{"b"}, Embedding: []float32{1, 0, 0},
	}))

	report, err := cm.DecayAndMerge(ctx, "o")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Decayed)
	assert.Equal(t, 1, report.Merged)

	// Weaker sibling folds into the stronger one.
	winner, err := db.GetCategory("a")
	require.NoError(t, err)
	assert.False(t, winner.Deleted)
	assert.Equal(t, 3, winner.MemberCount)

	loser, err := db.GetCategory("b")
	require.NoError(t, err)
	assert.True(t, loser.Deleted)

	rec, err := db.GetRecord("r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, rec.CategoryIDs)
}

func TestStrongSiblingsNeverMerge(t *testing.T) {
	cm, db, _ := newCategoryFixture(t, &judge.Fake{})

	for _, id := range []string{"a", "b"} {
		require.NoError(t, db.InsertCategory(&store.CategoryNode{
			ID: id, OwnerID: "o", Name: id, MemberCount: 1,
			Strength: 0.9, Embedding: []float32{1, 0, 0},
		}))
	}

	report, err := cm.DecayAndMerge(context.Background(), "o")
	require.NoError(t, err)
	assert.Equal(t, 0, report.Merged)
}

func TestEmptyWeakCategoryDeleted(t *testing.T) {
	cm, db, _ := newCategoryFixture(t, &judge.Fake{})

	require.NoError(t, db.InsertCategory(&store.CategoryNode{
		ID: "dead", OwnerID: "o", Name: "dead", MemberCount: 0,
		Strength: 0.1, Embedding: []float32{1, 0, 0},
	}))
	require.NoError(t, db.InsertCategory(&store.CategoryNode{
		ID: "alive", OwnerID: "o", Name: "alive", MemberCount: 3,
		Strength: 0.1, Embedding: []float32{0, 1, 0},
	}))

	report, err := cm.DecayAndMerge(context.Background(), "o")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Deleted)

	dead, err := db.GetCategory("dead")
	require.NoError(t, err)
	assert.True(t, dead.Deleted)

	// Populated nodes survive no matter how weak.
	alive, err := db.GetCategory("alive")
	require.NoError(t, err)
	assert.False(t, alive.Deleted)

	live, err := db.ListCategories("o")
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, "alive", live[0].ID)
}

func TestForgettingLastMemberDeletesCategory(t *testing.T) {
	vecs := map[string][]float32{"owner likes herbal tea": {1, 0, 0}}
	eng, db := newTestEngine(t, testConfig(), &judge.Fake{}, vecs)
	ctx := context.Background()

	res, err := eng.Add(ctx, "o", "owner likes herbal tea", AddOptions{})
	require.NoError(t, err)
	require.Len(t, res.Record.CategoryIDs, 1)
	catID := res.Record.CategoryIDs[0]

	node, err := db.GetCategory(catID)
	require.NoError(t, err)
	require.Equal(t, 1, node.MemberCount)

	// Weaken both sides: the record below the forgetting threshold, the
	// category below the deletion threshold.
	require.NoError(t, db.UpdateDecay(res.Record.ID, 0.05, time.Now()))
	node.Strength = 0.1
	require.NoError(t, db.UpdateCategory(node))

	decay, err := eng.ApplyDecay(ctx, "o")
	require.NoError(t, err)
	assert.Equal(t, 1, decay.Forgotten)

	// Forgetting the last member drains the category.
	node, err = db.GetCategory(catID)
	require.NoError(t, err)
	assert.Equal(t, 0, node.MemberCount)

	report, err := eng.ApplyCategoryMaintenance(ctx, "o")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Deleted)

	node, err = db.GetCategory(catID)
	require.NoError(t, err)
	assert.True(t, node.Deleted)
}

func TestSummaryRegeneratesWhenStale(t *testing.T) {
	fake := &judge.Fake{Summary: "Owner is a tea person."}
	cm, db, _ := newCategoryFixture(t, fake)
	ctx := context.Background()

	require.NoError(t, db.InsertCategory(&store.CategoryNode{
		ID: "c", OwnerID: "o", Name: "tea", MemberCount: 1,
		Strength: 0.5, SummaryStale: true, Embedding: []float32{1, 0, 0},
	}))
	require.NoError(t, db.InsertRecord(&store.MemoryRecord{
		ID: "r1", OwnerID: "o", Content: "drinks tea", Strength: 0.5,
		Depth: store.DepthShallow, CategoryIDs: []string{"c"}, Embedding: []float32{1, 0, 0},
	}))

	summary, err := cm.Summary(ctx, "o", "c", false)
	require.NoError(t, err)
	assert.Equal(t, "Owner is a tea person.", summary)

	// Fresh summaries are served from the store without a judge call.
	calls := len(fake.Calls)
	again, err := cm.Summary(ctx, "o", "c", false)
	require.NoError(t, err)
	assert.Equal(t, summary, again)
	assert.Equal(t, calls, len(fake.Calls))
}
