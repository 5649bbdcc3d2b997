package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/Ashish-dwi99/FadeMem/internal/config"
	"github.com/Ashish-dwi99/FadeMem/internal/index"
	"github.com/Ashish-dwi99/FadeMem/internal/judge"
	"github.com/Ashish-dwi99/FadeMem/internal/store"
)

// ConflictResolver decides how a candidate record enters the store relative
// to similar existing records, and commits the decision atomically.
type ConflictResolver struct {
	cfg         config.ConflictConfig
	accessBoost float64
	db          *store.DB
	idx         index.Index
	judge       judge.Judge
	log         zerolog.Logger
}

// NewConflictResolver creates the resolver. accessBoost is the strength bump
// applied to a record that subsumes a discarded candidate, same as a
// retrieval hit.
func NewConflictResolver(cfg config.ConflictConfig, accessBoost float64, db *store.DB, idx index.Index, j judge.Judge, log zerolog.Logger) *ConflictResolver {
	return &ConflictResolver{cfg: cfg, accessBoost: accessBoost, db: db, idx: idx, judge: j, log: log}
}

// Resolution is the committed outcome of resolving one candidate.
type Resolution struct {
	// Relation is the decisive relation, or Compatible when no candidate pair
	// was decisive (including the no-similar-records case).
	Relation judge.Relation
	// StoredID is the surviving record: the candidate's id unless the
	// candidate was discarded, then the subsuming existing record's id.
	StoredID string
	// SupersededID is the existing record displaced by the candidate, if any.
	SupersededID string
	// Discarded is true when the candidate was not inserted.
	Discarded bool
}

// Resolve classifies the candidate against its most similar active records,
// ordered by similarity, and applies the first decisive relation. All store
// mutations of the outcome land in one transaction; the index is updated
// only after the commit succeeds.
//
// A judge failure on one pair is logged and treated as compatible for that
// pair: a conflict check must never lose a memory.
func (c *ConflictResolver) Resolve(ctx context.Context, candidate *store.MemoryRecord) (*Resolution, error) {
	similar, err := c.similarRecords(ctx, candidate)
	if err != nil {
		return nil, err
	}

	for _, existing := range similar {
		rel, err := c.judge.ClassifyRelation(ctx, existing.Content, candidate.Content)
		if err != nil {
			c.log.Warn().Err(err).Str("existing", existing.ID).
				Msg("relation judge failed, treating pair as compatible")
			continue
		}
		switch rel {
		case judge.Compatible:
			continue
		case judge.Contradictory:
			return c.supersede(ctx, candidate, existing, rel)
		case judge.Subsumes:
			return c.supersede(ctx, candidate, existing, rel)
		case judge.Subsumed:
			return c.discard(ctx, candidate, existing)
		}
	}

	// Nothing decisive: store the candidate alongside its neighbours.
	err = c.db.WithTx(func(tx *store.Tx) error {
		if err := tx.InsertRecord(candidate); err != nil {
			return err
		}
		return tx.AppendHistory(candidate.OwnerID, candidate.ID, store.EventAdd, map[string]any{
			"depth":    string(candidate.Depth),
			"strength": candidate.Strength,
		})
	})
	if err != nil {
		return nil, err
	}
	return &Resolution{Relation: judge.Compatible, StoredID: candidate.ID}, nil
}

// similarRecords returns active records above the similarity threshold,
// closest first.
func (c *ConflictResolver) similarRecords(ctx context.Context, candidate *store.MemoryRecord) ([]*store.MemoryRecord, error) {
	hits, err := c.idx.Query(ctx, candidate.OwnerID, candidate.Embedding, index.KindRecord, c.cfg.MaxCandidates)
	if err != nil {
		return nil, err
	}

	var out []*store.MemoryRecord
	for _, h := range hits {
		if h.Score < c.cfg.SimilarityThreshold {
			continue
		}
		rec, err := c.db.GetRecord(h.ID)
		if err != nil {
			// Index can momentarily lead the store; skip unknown ids.
			c.log.Warn().Err(err).Str("record", h.ID).Msg("similar hit missing from store")
			continue
		}
		if rec.Status != store.StatusActive {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// supersede inserts the candidate and retires the existing record under it.
// The loser is forgotten either way; SUBSUMES additionally records it in the
// winner's merged_from.
func (c *ConflictResolver) supersede(ctx context.Context, candidate, existing *store.MemoryRecord, rel judge.Relation) (*Resolution, error) {
	if rel == judge.Subsumes {
		candidate.MergedFrom = append(candidate.MergedFrom, existing.ID)
	}
	candidate.Supersedes = existing.ID

	err := c.db.WithTx(func(tx *store.Tx) error {
		if err := tx.InsertRecord(candidate); err != nil {
			return err
		}
		if err := tx.SetStatus(existing.ID, store.StatusForgotten, candidate.ID); err != nil {
			return err
		}
		for _, cid := range existing.CategoryIDs {
			if err := tx.AddMember(cid, -1); err != nil {
				return err
			}
		}
		detail := map[string]any{"relation": string(rel), "superseded": existing.ID}
		if err := tx.AppendHistory(candidate.OwnerID, candidate.ID, store.EventConflict, detail); err != nil {
			return err
		}
		return tx.AppendHistory(existing.OwnerID, existing.ID, store.EventConflict, map[string]any{
			"relation":      string(rel),
			"superseded_by": candidate.ID,
		})
	})
	if err != nil {
		return nil, err
	}

	if err := c.idx.Delete(ctx, existing.OwnerID, existing.ID); err != nil {
		c.log.Warn().Err(err).Str("record", existing.ID).Msg("index delete after supersede failed")
	}
	return &Resolution{Relation: rel, StoredID: candidate.ID, SupersededID: existing.ID}, nil
}

// discard drops a subsumed candidate and reinforces the broader existing
// record instead. The attempted add still leaves a history trace.
func (c *ConflictResolver) discard(ctx context.Context, candidate, existing *store.MemoryRecord) (*Resolution, error) {
	err := c.db.WithTx(func(tx *store.Tx) error {
		if err := tx.BoostAccess(existing.ID, c.accessBoost, time.Now()); err != nil {
			return err
		}
		if c.cfg.MergeSubsumedEnrichment {
			merged := *existing
			merged.Keywords = mergeLists(existing.Keywords, candidate.Keywords)
			merged.Implications = mergeLists(existing.Implications, candidate.Implications)
			if err := tx.UpdateEnrichment(&merged); err != nil {
				return err
			}
		}
		return tx.AppendHistory(existing.OwnerID, existing.ID, store.EventConflict, map[string]any{
			"relation":  string(judge.Subsumed),
			"discarded": candidate.Content,
		})
	})
	if err != nil {
		return nil, err
	}
	return &Resolution{Relation: judge.Subsumed, StoredID: existing.ID, Discarded: true}, nil
}

func mergeLists(a, b []string) []string {
	out := append([]string{}, a...)
	for _, s := range b {
		dup := false
		for _, have := range out {
			if have == s {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, s)
		}
	}
	return out
}
