package engine

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Ashish-dwi99/FadeMem/internal/config"
	"github.com/Ashish-dwi99/FadeMem/internal/embedding"
	"github.com/Ashish-dwi99/FadeMem/internal/index"
	"github.com/Ashish-dwi99/FadeMem/internal/judge"
	"github.com/Ashish-dwi99/FadeMem/internal/store"
)

// CategoryManager grows and maintains each owner's category hierarchy:
// assignment by centroid similarity, creation with parent detection, its own
// decay cycle, sibling merges, and summaries.
type CategoryManager struct {
	cfg   config.CategoryConfig
	db    *store.DB
	idx   index.Index
	judge judge.Judge
	log   zerolog.Logger
}

// NewCategoryManager creates the manager.
func NewCategoryManager(cfg config.CategoryConfig, db *store.DB, idx index.Index, j judge.Judge, log zerolog.Logger) *CategoryManager {
	return &CategoryManager{cfg: cfg, db: db, idx: idx, judge: j, log: log}
}

// Categorize assigns a record to its best-matching category, creating a new
// node (with parent detection) when nothing is close enough. The hint, when
// non-empty, names a freshly created category; otherwise keywords do.
func (cm *CategoryManager) Categorize(ctx context.Context, rec *store.MemoryRecord, hint string) ([]string, error) {
	hits, err := cm.idx.Query(ctx, rec.OwnerID, rec.Embedding, index.KindCategory, 3)
	if err != nil {
		return nil, err
	}

	if len(hits) > 0 && hits[0].Score >= cm.cfg.AssignmentThreshold {
		node, err := cm.db.GetCategory(hits[0].ID)
		if err != nil {
			return nil, err
		}
		return cm.join(ctx, node, rec)
	}

	// No close match: open a new category, possibly under a broader parent.
	parentID := ""
	depth := 0
	if len(hits) > 0 && hits[0].Score >= cm.cfg.ParentThreshold {
		parent, err := cm.db.GetCategory(hits[0].ID)
		if err == nil && parent.DepthLevel < cm.cfg.MaxDepth {
			parentID = parent.ID
			depth = parent.DepthLevel + 1
		}
	}

	centroid := make([]float32, len(rec.Embedding))
	copy(centroid, rec.Embedding)
	embedding.Normalize(centroid)

	node := &store.CategoryNode{
		ID:           uuid.NewString(),
		OwnerID:      rec.OwnerID,
		Name:         categoryName(hint, rec.Keywords),
		ParentID:     parentID,
		DepthLevel:   depth,
		SummaryStale: true,
		MemberCount:  1,
		Strength:     0.5,
		Embedding:    centroid,
	}
	if err := cm.db.InsertCategory(node); err != nil {
		return nil, err
	}
	if err := cm.idx.Upsert(ctx, rec.OwnerID, node.ID, centroid, map[string]string{"kind": index.KindCategory}); err != nil {
		cm.log.Warn().Err(err).Str("category", node.ID).Msg("category index upsert failed")
	}
	return []string{node.ID}, nil
}

// join adds a record to an existing node, shifting its centroid toward the
// new member.
func (cm *CategoryManager) join(ctx context.Context, node *store.CategoryNode, rec *store.MemoryRecord) ([]string, error) {
	node.Embedding = embedding.Centroid(node.Embedding, node.MemberCount, rec.Embedding)
	node.MemberCount++
	node.SummaryStale = true
	node.Strength = store.ClampStrength(node.Strength + cm.cfg.AccessBoost)
	node.LastUsed = time.Now()

	if err := cm.db.UpdateCategory(node); err != nil {
		return nil, err
	}
	if err := cm.idx.Upsert(ctx, node.OwnerID, node.ID, node.Embedding, map[string]string{"kind": index.KindCategory}); err != nil {
		cm.log.Warn().Err(err).Str("category", node.ID).Msg("category index upsert failed")
	}
	return []string{node.ID}, nil
}

// Touch records retrieval use of the given categories.
func (cm *CategoryManager) Touch(categoryIDs []string) {
	now := time.Now()
	for _, id := range categoryIDs {
		if err := cm.db.TouchCategory(id, cm.cfg.AccessBoost, now); err != nil {
			cm.log.Warn().Err(err).Str("category", id).Msg("category touch failed")
		}
	}
}

// CategoryReport summarizes one category maintenance sweep.
type CategoryReport struct {
	Decayed int `json:"decayed"`
	Merged  int `json:"merged"`
	Deleted int `json:"deleted"`
}

// DecayAndMerge runs one maintenance cycle over an owner's hierarchy: every
// node loses DecayRate of its strength, weak similar siblings merge (weaker
// into stronger), and empty dead nodes are soft-deleted.
func (cm *CategoryManager) DecayAndMerge(ctx context.Context, ownerID string) (CategoryReport, error) {
	var report CategoryReport

	nodes, err := cm.db.ListCategories(ownerID)
	if err != nil {
		return report, err
	}

	for i := range nodes {
		nodes[i].Strength = store.ClampStrength(nodes[i].Strength * (1 - cm.cfg.DecayRate))
		if err := cm.db.UpdateCategory(&nodes[i]); err != nil {
			return report, err
		}
		report.Decayed++
	}

	merged, err := cm.mergeSiblings(ctx, ownerID, nodes)
	if err != nil {
		return report, err
	}
	report.Merged = merged

	// Reload so merge results are visible to the delete pass.
	nodes, err = cm.db.ListCategories(ownerID)
	if err != nil {
		return report, err
	}
	for i := range nodes {
		n := &nodes[i]
		if n.MemberCount > 0 || n.Strength >= cm.cfg.DeleteThreshold {
			continue
		}
		n.Deleted = true
		if err := cm.db.UpdateCategory(n); err != nil {
			return report, err
		}
		if err := cm.idx.Delete(ctx, ownerID, n.ID); err != nil {
			cm.log.Warn().Err(err).Str("category", n.ID).Msg("category index delete failed")
		}
		report.Deleted++
	}
	return report, nil
}

// mergeSiblings folds pairs of weak, similar nodes sharing a parent. The
// weaker node's members move to the stronger one.
func (cm *CategoryManager) mergeSiblings(ctx context.Context, ownerID string, nodes []store.CategoryNode) (int, error) {
	merged := 0
	gone := map[string]bool{}

	for i := range nodes {
		for j := i + 1; j < len(nodes); j++ {
			a, b := &nodes[i], &nodes[j]
			if gone[a.ID] || gone[b.ID] || a.ParentID != b.ParentID {
				continue
			}
			if a.Strength >= cm.cfg.WeakThreshold || b.Strength >= cm.cfg.WeakThreshold {
				continue
			}
			if embedding.CosineSimilarity(a.Embedding, b.Embedding) < cm.cfg.MergeThreshold {
				continue
			}

			winner, loser := a, b
			if b.Strength > a.Strength {
				winner, loser = b, a
			}
			if err := cm.mergePair(ctx, ownerID, winner, loser); err != nil {
				return merged, err
			}
			gone[loser.ID] = true
			merged++
		}
	}
	return merged, nil
}

func (cm *CategoryManager) mergePair(ctx context.Context, ownerID string, winner, loser *store.CategoryNode) error {
	if _, err := cm.db.ReassignCategory(ownerID, loser.ID, winner.ID); err != nil {
		return err
	}

	if len(winner.Embedding) == len(loser.Embedding) && winner.MemberCount+loser.MemberCount > 0 {
		wn := float32(winner.MemberCount)
		ln := float32(loser.MemberCount)
		mixed := make([]float32, len(winner.Embedding))
		for i := range mixed {
			mixed[i] = (winner.Embedding[i]*wn + loser.Embedding[i]*ln) / (wn + ln)
		}
		embedding.Normalize(mixed)
		winner.Embedding = mixed
	}
	winner.MemberCount += loser.MemberCount
	winner.SummaryStale = true
	if err := cm.db.UpdateCategory(winner); err != nil {
		return err
	}

	loser.Deleted = true
	loser.MemberCount = 0
	if err := cm.db.UpdateCategory(loser); err != nil {
		return err
	}

	if err := cm.idx.Delete(ctx, ownerID, loser.ID); err != nil {
		cm.log.Warn().Err(err).Str("category", loser.ID).Msg("category index delete failed")
	}
	if err := cm.idx.Upsert(ctx, ownerID, winner.ID, winner.Embedding, map[string]string{"kind": index.KindCategory}); err != nil {
		cm.log.Warn().Err(err).Str("category", winner.ID).Msg("category index upsert failed")
	}
	return nil
}

// Summary returns a node's summary, regenerating it via the judge when stale
// or when forced.
func (cm *CategoryManager) Summary(ctx context.Context, ownerID, categoryID string, regenerate bool) (string, error) {
	node, err := cm.db.GetCategory(categoryID)
	if err != nil {
		return "", err
	}
	if !node.SummaryStale && !regenerate {
		return node.Summary, nil
	}

	recs, err := cm.db.ListRecords(store.Scope{
		OwnerID:    ownerID,
		CategoryID: categoryID,
		Limit:      cm.cfg.SummaryMembers,
	})
	if err != nil {
		return "", err
	}
	if len(recs) == 0 {
		return node.Summary, nil
	}

	contents := make([]string, len(recs))
	for i := range recs {
		contents[i] = recs[i].Content
	}
	summary, err := cm.judge.Summarize(ctx, node.Summary, contents)
	if err != nil {
		// Stale summary beats no summary.
		cm.log.Warn().Err(err).Str("category", categoryID).Msg("summary regeneration failed")
		return node.Summary, nil
	}

	node.Summary = summary
	node.SummaryStale = false
	if err := cm.db.UpdateCategory(node); err != nil {
		return "", err
	}
	return summary, nil
}

// TreeNode is one node of the rendered hierarchy.
type TreeNode struct {
	store.CategoryNode
	Children []*TreeNode `json:"children,omitempty"`
}

// Tree builds the owner's category hierarchy, roots first.
func (cm *CategoryManager) Tree(ownerID string) ([]*TreeNode, error) {
	nodes, err := cm.db.ListCategories(ownerID)
	if err != nil {
		return nil, err
	}

	byID := map[string]*TreeNode{}
	for i := range nodes {
		byID[nodes[i].ID] = &TreeNode{CategoryNode: nodes[i]}
	}

	var roots []*TreeNode
	for i := range nodes {
		tn := byID[nodes[i].ID]
		if parent, ok := byID[nodes[i].ParentID]; ok {
			parent.Children = append(parent.Children, tn)
		} else {
			roots = append(roots, tn)
		}
	}
	return roots, nil
}

func categoryName(hint string, keywords []string) string {
	if hint != "" {
		return strings.ToLower(hint)
	}
	if len(keywords) > 0 {
		n := len(keywords)
		if n > 2 {
			n = 2
		}
		return strings.Join(keywords[:n], " ")
	}
	return "general"
}
