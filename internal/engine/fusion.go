package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Ashish-dwi99/FadeMem/internal/config"
	"github.com/Ashish-dwi99/FadeMem/internal/embedding"
	"github.com/Ashish-dwi99/FadeMem/internal/index"
	"github.com/Ashish-dwi99/FadeMem/internal/judge"
	"github.com/Ashish-dwi99/FadeMem/internal/store"
)

// FusionEngine merges clusters of near-duplicate records into single
// consolidated records, preserving provenance through merged_from and
// superseded_by links.
type FusionEngine struct {
	cfg      config.FusionConfig
	db       *store.DB
	idx      index.Index
	embedder embedding.Embedder
	judge    judge.Judge
	log      zerolog.Logger
}

// NewFusionEngine creates the fusion engine.
func NewFusionEngine(cfg config.FusionConfig, db *store.DB, idx index.Index, emb embedding.Embedder, j judge.Judge, log zerolog.Logger) *FusionEngine {
	return &FusionEngine{cfg: cfg, db: db, idx: idx, embedder: emb, judge: j, log: log}
}

// FusionReport summarizes one fusion sweep.
type FusionReport struct {
	Clusters int `json:"clusters"`
	Fused    int `json:"fused"` // records merged away
	Skipped  int `json:"skipped"`
}

// Run sweeps one owner for fusion clusters. Each record is claimed by at
// most one cluster per sweep; a failed cluster is skipped, never partially
// applied.
func (f *FusionEngine) Run(ctx context.Context, ownerID string) (FusionReport, error) {
	var report FusionReport
	if !f.cfg.Enabled {
		return report, nil
	}

	recs, err := f.db.ListRecords(store.Scope{OwnerID: ownerID})
	if err != nil {
		return report, err
	}

	claimed := map[string]bool{}
	for i := range recs {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		seed := &recs[i]
		if claimed[seed.ID] {
			continue
		}

		cluster := f.buildCluster(ctx, seed, recs, claimed)
		if len(cluster) < 2 {
			continue
		}
		report.Clusters++

		if err := f.fuse(ctx, ownerID, cluster); err != nil {
			f.log.Warn().Err(err).Str("seed", seed.ID).Msg("fusion cluster skipped")
			report.Skipped++
			continue
		}
		for _, m := range cluster {
			claimed[m.ID] = true
		}
		report.Fused += len(cluster)
	}
	return report, nil
}

// buildCluster gathers unclaimed records that share a category with the
// seed, sit above the similarity threshold, and are judged compatible with
// it. The seed claims the cluster only after a successful fuse.
func (f *FusionEngine) buildCluster(ctx context.Context, seed *store.MemoryRecord, recs []store.MemoryRecord, claimed map[string]bool) []*store.MemoryRecord {
	cluster := []*store.MemoryRecord{seed}
	for i := range recs {
		if len(cluster) >= f.cfg.MaxClusterSize {
			break
		}
		other := &recs[i]
		if other.ID == seed.ID || claimed[other.ID] {
			continue
		}
		if !sharesCategory(seed.CategoryIDs, other.CategoryIDs) {
			continue
		}
		if embedding.CosineSimilarity(seed.Embedding, other.Embedding) < f.cfg.SimilarityThreshold {
			continue
		}
		rel, err := f.judge.ClassifyRelation(ctx, seed.Content, other.Content)
		if err != nil || rel != judge.Compatible {
			continue
		}
		cluster = append(cluster, other)
	}
	return cluster
}

func (f *FusionEngine) fuse(ctx context.Context, ownerID string, cluster []*store.MemoryRecord) error {
	contents := make([]string, len(cluster))
	for i, m := range cluster {
		contents[i] = m.Content
	}

	consolidated, err := f.judge.Consolidate(ctx, contents)
	if err != nil {
		return err
	}
	vec, err := f.embedder.Embed(ctx, consolidated)
	if err != nil {
		return err
	}

	fused := f.buildFused(ownerID, consolidated, vec, cluster)

	err = f.db.WithTx(func(tx *store.Tx) error {
		if err := tx.InsertRecord(fused); err != nil {
			return err
		}
		for _, m := range cluster {
			if err := tx.SetStatus(m.ID, store.StatusMerged, fused.ID); err != nil {
				return err
			}
			for _, cid := range m.CategoryIDs {
				if err := tx.AddMember(cid, -1); err != nil {
					return err
				}
			}
			if err := tx.AppendHistory(ownerID, m.ID, store.EventFuse, map[string]any{
				"merged_into": fused.ID,
			}); err != nil {
				return err
			}
		}
		// The fused record takes the members' place in their categories.
		for _, cid := range fused.CategoryIDs {
			if err := tx.AddMember(cid, 1); err != nil {
				return err
			}
		}
		return tx.AppendHistory(ownerID, fused.ID, store.EventFuse, map[string]any{
			"merged_from": fused.MergedFrom,
			"strength":    fused.Strength,
		})
	})
	if err != nil {
		return err
	}

	for _, m := range cluster {
		if err := f.idx.Delete(ctx, ownerID, m.ID); err != nil {
			f.log.Warn().Err(err).Str("record", m.ID).Msg("index delete after fuse failed")
		}
	}
	if err := f.idx.Upsert(ctx, ownerID, fused.ID, vec, map[string]string{"kind": index.KindRecord}); err != nil {
		f.log.Warn().Err(err).Str("record", fused.ID).Msg("index upsert after fuse failed")
	}
	return nil
}

// buildFused derives the consolidated record: strength is the MAX of the
// members (fusing reinforces, never dilutes), access counts sum, and one LML
// member is enough to make the result LML.
func (f *FusionEngine) buildFused(ownerID, content string, vec []float32, cluster []*store.MemoryRecord) *store.MemoryRecord {
	fused := &store.MemoryRecord{
		ID:         uuid.NewString(),
		OwnerID:    ownerID,
		Content:    content,
		Paraphrase: content,
		Layer:      store.LayerSML,
		Depth:      store.DepthShallow,
		Embedding:  vec,
		CreatedAt:  time.Now(),
	}
	for _, m := range cluster {
		fused.MergedFrom = append(fused.MergedFrom, m.ID)
		fused.AccessCount += m.AccessCount
		if m.Strength > fused.Strength {
			fused.Strength = m.Strength
		}
		if m.Layer == store.LayerLML {
			fused.Layer = store.LayerLML
		}
		if m.Depth.Rank() > fused.Depth.Rank() {
			fused.Depth = m.Depth
		}
		if m.LastAccessed.After(fused.LastAccessed) {
			fused.LastAccessed = m.LastAccessed
		}
		fused.Keywords = mergeLists(fused.Keywords, m.Keywords)
		fused.Implications = mergeLists(fused.Implications, m.Implications)
		fused.CategoryIDs = mergeLists(fused.CategoryIDs, m.CategoryIDs)
		if fused.QuestionForm == "" {
			fused.QuestionForm = m.QuestionForm
		}
	}
	return fused
}

func sharesCategory(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
