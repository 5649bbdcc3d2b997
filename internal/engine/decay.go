package engine

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/Ashish-dwi99/FadeMem/internal/config"
	"github.com/Ashish-dwi99/FadeMem/internal/index"
	"github.com/Ashish-dwi99/FadeMem/internal/store"
)

// DecayEngine ages record strengths, promotes frequently accessed records to
// long-term memory, and soft-forgets records below the threshold.
type DecayEngine struct {
	cfg config.DecayConfig
	db  *store.DB
	idx index.Index
	log zerolog.Logger
}

// NewDecayEngine creates the decay engine.
func NewDecayEngine(cfg config.DecayConfig, db *store.DB, idx index.Index, log zerolog.Logger) *DecayEngine {
	return &DecayEngine{cfg: cfg, db: db, idx: idx, log: log}
}

// DecayReport summarizes one decay sweep.
type DecayReport struct {
	Processed int `json:"processed"`
	Promoted  int `json:"promoted"`
	Forgotten int `json:"forgotten"`
	Errors    int `json:"errors"`
}

// NewStrength computes the decayed strength at now without mutating the
// record. Elapsed time counts from the later of last access and last decay,
// so repeated sweeps never double-charge the same interval. Access history
// dampens the decay rate logarithmically.
func (d *DecayEngine) NewStrength(r *store.MemoryRecord, now time.Time) float64 {
	since := r.LastAccessed
	if r.LastDecayed.After(since) {
		since = r.LastDecayed
	}
	elapsed := now.Sub(since)
	if elapsed <= 0 {
		return r.Strength
	}

	rate := d.cfg.SMLRate
	if r.Layer == store.LayerLML {
		rate = d.cfg.LMLRate
	}
	days := elapsed.Hours() / 24
	dampening := 1 + d.cfg.DampeningFactor*math.Log1p(float64(r.AccessCount))

	return store.ClampStrength(r.Strength * math.Exp(-rate*days/dampening))
}

// Eligible reports whether a record qualifies for promotion to LML.
func (d *DecayEngine) Eligible(r *store.MemoryRecord) bool {
	return r.Layer == store.LayerSML &&
		r.AccessCount >= d.cfg.PromotionAccesses &&
		r.Strength >= d.cfg.PromotionStrength
}

// Run sweeps one owner's active records. A failing record is logged and
// counted; the sweep continues with the rest.
func (d *DecayEngine) Run(ctx context.Context, ownerID string) (DecayReport, error) {
	var report DecayReport

	recs, err := d.db.ListRecords(store.Scope{OwnerID: ownerID})
	if err != nil {
		return report, err
	}

	now := time.Now()
	for i := range recs {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		r := &recs[i]
		if err := d.decayOne(ctx, r, now, &report); err != nil {
			d.log.Error().Err(err).Str("record", r.ID).Msg("decay failed for record")
			report.Errors++
			continue
		}
		report.Processed++
	}
	return report, nil
}

func (d *DecayEngine) decayOne(ctx context.Context, r *store.MemoryRecord, now time.Time, report *DecayReport) error {
	strength := d.NewStrength(r, now)
	if err := d.db.UpdateDecay(r.ID, strength, now); err != nil {
		return err
	}
	r.Strength = strength

	if d.Eligible(r) {
		if err := d.db.Promote(r.ID, r.AccessCount); err != nil {
			return err
		}
		if err := d.db.AppendHistory(r.OwnerID, r.ID, store.EventPromote, map[string]any{
			"access_count": r.AccessCount,
			"strength":     strength,
		}); err != nil {
			return err
		}
		report.Promoted++
		return nil
	}

	if strength < d.cfg.ForgettingThreshold {
		if err := d.db.SetStatus(r.ID, store.StatusForgotten, ""); err != nil {
			return err
		}
		if err := d.db.AppendHistory(r.OwnerID, r.ID, store.EventForget, map[string]any{
			"strength": strength,
		}); err != nil {
			return err
		}
		for _, cid := range r.CategoryIDs {
			if err := d.db.AddMember(cid, -1); err != nil {
				d.log.Warn().Err(err).Str("category", cid).Msg("member decrement after forget failed")
			}
		}
		// Forgotten records leave the similarity index but stay in the store.
		if err := d.idx.Delete(ctx, r.OwnerID, r.ID); err != nil {
			d.log.Warn().Err(err).Str("record", r.ID).Msg("index delete after forget failed")
		}
		report.Forgotten++
	}
	return nil
}
