// Package engine implements the memory lifecycle: echo-encoded insertion,
// conflict resolution, decay with promotion and forgetting, fusion of
// near-duplicates, the category hierarchy, and ranked retrieval.
package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Ashish-dwi99/FadeMem/internal/config"
	"github.com/Ashish-dwi99/FadeMem/internal/embedding"
	"github.com/Ashish-dwi99/FadeMem/internal/index"
	"github.com/Ashish-dwi99/FadeMem/internal/judge"
	"github.com/Ashish-dwi99/FadeMem/internal/store"
)

// Engine is the top-level coordinator. All writes for one owner are
// serialized through a per-owner lock; different owners proceed in parallel.
type Engine struct {
	cfg      config.Config
	db       *store.DB
	idx      index.Index
	embedder embedding.Embedder
	judge    judge.Judge

	echo     *EchoEncoder
	decay    *DecayEngine
	conflict *ConflictResolver
	fusion   *FusionEngine
	cats     *CategoryManager
	ranker   *Ranker

	log zerolog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

// New wires the engine from its collaborators.
func New(cfg config.Config, db *store.DB, idx index.Index, emb embedding.Embedder, j judge.Judge, log zerolog.Logger) *Engine {
	return &Engine{
		cfg:      cfg,
		db:       db,
		idx:      idx,
		embedder: emb,
		judge:    j,
		echo:     NewEchoEncoder(cfg.Echo, j, log),
		decay:    NewDecayEngine(cfg.Decay, db, idx, log),
		conflict: NewConflictResolver(cfg.Conflict, cfg.Decay.AccessBoost, db, idx, j, log),
		fusion:   NewFusionEngine(cfg.Fusion, db, idx, emb, j, log),
		cats:     NewCategoryManager(cfg.Category, db, idx, j, log),
		ranker:   NewRanker(cfg.Rank),
		log:      log,
		locks:    map[string]*sync.Mutex{},
		stop:     make(chan struct{}),
	}
}

func (e *Engine) ownerLock(ownerID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[ownerID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[ownerID] = l
	}
	return l
}

// AddOptions tune one insertion.
type AddOptions struct {
	// Depth forces an echo depth; empty means auto-detect.
	Depth string
	// Category names the category to create when no existing one matches.
	Category string
}

// AddResult reports what happened to one candidate.
type AddResult struct {
	Record       *store.MemoryRecord `json:"record"`
	Relation     judge.Relation      `json:"relation"`
	SupersededID string              `json:"superseded_id,omitempty"`
	Discarded    bool                `json:"discarded"`
}

// Add inserts one memory for an owner: echo encode, embed, resolve conflicts
// against similar records, categorize, index.
func (e *Engine) Add(ctx context.Context, ownerID, content string, opts AddOptions) (*AddResult, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyContent
	}

	l := e.ownerLock(ownerID)
	l.Lock()
	defer l.Unlock()
	return e.addLocked(ctx, ownerID, content, opts)
}

func (e *Engine) addLocked(ctx context.Context, ownerID, content string, opts AddOptions) (*AddResult, error) {
	depth, fields, err := e.echo.Encode(ctx, content, store.Depth(opts.Depth))
	if err != nil {
		return nil, err
	}

	embedText := content
	if e.cfg.Echo.UseQuestionEmbedding && fields.QuestionForm != "" {
		embedText = fields.QuestionForm + "\n" + content
	}
	vec, err := e.embedder.Embed(ctx, embedText)
	if err != nil {
		return nil, fmt.Errorf("embed memory: %w", err)
	}

	rec := &store.MemoryRecord{
		ID:           uuid.NewString(),
		OwnerID:      ownerID,
		Content:      content,
		Paraphrase:   fields.Paraphrase,
		Keywords:     fields.Keywords,
		Implications: fields.Implications,
		QuestionForm: fields.QuestionForm,
		Depth:        depth,
		Layer:        store.LayerSML,
		Strength:     e.echo.InitialStrength(depth),
		Embedding:    vec,
	}

	res, err := e.conflict.Resolve(ctx, rec)
	if err != nil {
		return nil, err
	}
	if res.Discarded {
		kept, err := e.db.GetRecord(res.StoredID)
		if err != nil {
			return nil, err
		}
		return &AddResult{Record: kept, Relation: res.Relation, Discarded: true}, nil
	}

	catIDs, err := e.cats.Categorize(ctx, rec, opts.Category)
	if err != nil {
		e.log.Warn().Err(err).Str("record", rec.ID).Msg("categorization failed")
	} else if len(catIDs) > 0 {
		if err := e.db.SetCategories(rec.ID, catIDs); err != nil {
			return nil, err
		}
		rec.CategoryIDs = catIDs
	}

	if err := e.idx.Upsert(ctx, ownerID, rec.ID, vec, map[string]string{"kind": index.KindRecord}); err != nil {
		e.log.Warn().Err(err).Str("record", rec.ID).Msg("index upsert failed")
	}
	return &AddResult{Record: rec, Relation: res.Relation, SupersededID: res.SupersededID}, nil
}

// AddMessages extracts memorable facts from a conversation and adds each.
func (e *Engine) AddMessages(ctx context.Context, ownerID string, messages []Message) ([]AddResult, error) {
	if len(messages) == 0 {
		return nil, nil
	}

	recent, err := e.db.ListRecords(store.Scope{OwnerID: ownerID, Limit: 20})
	if err != nil {
		return nil, err
	}
	existing := make([]string, len(recent))
	for i := range recent {
		existing[i] = recent[i].Content
	}

	candidates := extractCandidates(ctx, e.judge, e.log, messages, existing)

	var results []AddResult
	for _, c := range candidates {
		res, err := e.Add(ctx, ownerID, c.Content, AddOptions{Category: c.Category})
		if err != nil {
			e.log.Warn().Err(err).Msg("add extracted fact failed")
			continue
		}
		results = append(results, *res)
	}
	return results, nil
}

// SearchOptions tune one retrieval.
type SearchOptions struct {
	Limit       int
	CategoryID  string
	MinStrength float64 // 0 means the configured default
}

// Search retrieves ranked active memories for a query. Returned records get
// an access boost; records crossing the re-echo threshold are enriched one
// depth deeper.
func (e *Engine) Search(ctx context.Context, ownerID, query string, opts SearchOptions) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyContent
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}
	minStrength := opts.MinStrength
	if minStrength == 0 {
		minStrength = e.cfg.Rank.DefaultMinStrength
	}

	l := e.ownerLock(ownerID)
	l.Lock()
	defer l.Unlock()

	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	matchedCats, err := e.matchedCategories(ctx, ownerID, vec)
	if err != nil {
		e.log.Warn().Err(err).Msg("category match query failed")
	}

	hits, err := e.idx.Query(ctx, ownerID, vec, index.KindRecord, limit*3)
	if err != nil {
		return nil, err
	}

	var results []SearchResult
	for _, h := range hits {
		rec, err := e.db.GetRecord(h.ID)
		if err != nil {
			continue
		}
		if rec.Status != store.StatusActive || rec.Strength < minStrength {
			continue
		}
		if opts.CategoryID != "" && !containsID(rec.CategoryIDs, opts.CategoryID) {
			continue
		}
		score, echoBoost := e.ranker.Score(rec, h.Score, anyMatched(rec.CategoryIDs, matchedCats), query)
		results = append(results, SearchResult{
			Record:     *rec,
			Similarity: h.Score,
			EchoBoost:  echoBoost,
			Score:      score,
		})
	}

	e.ranker.Sort(results)
	if len(results) > limit {
		results = results[:limit]
	}

	now := time.Now()
	touched := map[string]bool{}
	for i := range results {
		rec := &results[i].Record
		if err := e.db.BoostAccess(rec.ID, e.cfg.Decay.AccessBoost, now); err != nil {
			e.log.Warn().Err(err).Str("record", rec.ID).Msg("access boost failed")
			continue
		}
		rec.AccessCount++
		rec.Strength = store.ClampStrength(rec.Strength + e.cfg.Decay.AccessBoost)
		rec.LastAccessed = now

		if err := e.db.AppendHistory(ownerID, rec.ID, store.EventAccess, nil); err != nil {
			e.log.Warn().Err(err).Str("record", rec.ID).Msg("access history failed")
		}
		e.maybeReecho(ctx, rec)

		for _, cid := range rec.CategoryIDs {
			touched[cid] = true
		}
	}
	ids := make([]string, 0, len(touched))
	for cid := range touched {
		ids = append(ids, cid)
	}
	e.cats.Touch(ids)

	return results, nil
}

func (e *Engine) matchedCategories(ctx context.Context, ownerID string, vec []float32) (map[string]bool, error) {
	hits, err := e.idx.Query(ctx, ownerID, vec, index.KindCategory, 3)
	if err != nil {
		return nil, err
	}
	matched := map[string]bool{}
	for _, h := range hits {
		if h.Score >= e.cfg.Category.AssignmentThreshold {
			matched[h.ID] = true
		}
	}
	return matched, nil
}

// maybeReecho deepens a record's enrichment once it proves useful enough.
// Depth only ever moves up; failures leave the record as it was.
func (e *Engine) maybeReecho(ctx context.Context, rec *store.MemoryRecord) {
	if !e.cfg.Echo.ReechoOnAccess ||
		rec.Depth == store.DepthDeep ||
		rec.AccessCount < e.cfg.Echo.ReechoThreshold {
		return
	}

	next := rec.Depth.Next()
	fields, err := e.judge.ExtractFields(ctx, rec.Content, next)
	if err != nil {
		e.log.Warn().Err(err).Str("record", rec.ID).Msg("re-echo failed")
		return
	}

	rec.Depth = next
	rec.Paraphrase = fields.Paraphrase
	rec.Keywords = mergeLists(rec.Keywords, fields.Keywords)
	rec.Implications = mergeLists(rec.Implications, fields.Implications)
	if fields.QuestionForm != "" {
		rec.QuestionForm = fields.QuestionForm
	}
	rec.Strength = store.ClampStrength(rec.Strength * e.cfg.Echo.ReechoBoost)

	if err := e.db.UpdateEnrichment(rec); err != nil {
		e.log.Warn().Err(err).Str("record", rec.ID).Msg("re-echo persist failed")
		return
	}
	if err := e.db.AppendHistory(rec.OwnerID, rec.ID, store.EventReecho, map[string]any{
		"depth":    string(next),
		"strength": rec.Strength,
	}); err != nil {
		e.log.Warn().Err(err).Str("record", rec.ID).Msg("re-echo history failed")
	}
}

// Get loads a record by id, following provenance so ids of merged or
// superseded records resolve to their survivor.
func (e *Engine) Get(ownerID, id string) (*store.MemoryRecord, error) {
	rec, err := e.db.ResolveRecord(id)
	if err != nil {
		return nil, err
	}
	if rec.OwnerID != ownerID {
		return nil, fmt.Errorf("record %s: %w", id, store.ErrNotFound)
	}
	return rec, nil
}

// History returns a record's audit trail.
func (e *Engine) History(recordID string) ([]store.HistoryEntry, error) {
	return e.db.History(recordID)
}

// ApplyDecay runs one decay sweep for an owner.
func (e *Engine) ApplyDecay(ctx context.Context, ownerID string) (DecayReport, error) {
	l := e.ownerLock(ownerID)
	l.Lock()
	defer l.Unlock()
	return e.decay.Run(ctx, ownerID)
}

// ApplyCategoryMaintenance runs one category decay/merge/delete cycle.
func (e *Engine) ApplyCategoryMaintenance(ctx context.Context, ownerID string) (CategoryReport, error) {
	l := e.ownerLock(ownerID)
	l.Lock()
	defer l.Unlock()
	return e.cats.DecayAndMerge(ctx, ownerID)
}

// RunFusion runs one fusion sweep for an owner.
func (e *Engine) RunFusion(ctx context.Context, ownerID string) (FusionReport, error) {
	l := e.ownerLock(ownerID)
	l.Lock()
	defer l.Unlock()
	return e.fusion.Run(ctx, ownerID)
}

// Stats aggregates an owner's record population.
func (e *Engine) Stats(ownerID string) (store.OwnerStats, error) {
	return e.db.StatsForOwner(ownerID)
}

// CategoryTree returns the owner's category hierarchy.
func (e *Engine) CategoryTree(ownerID string) ([]*TreeNode, error) {
	return e.cats.Tree(ownerID)
}

// CategorySummary returns (and refreshes when stale) a category summary.
func (e *Engine) CategorySummary(ctx context.Context, ownerID, categoryID string, regenerate bool) (string, error) {
	l := e.ownerLock(ownerID)
	l.Lock()
	defer l.Unlock()
	return e.cats.Summary(ctx, ownerID, categoryID, regenerate)
}

// CategorySummaryEntry pairs one category with its current summary.
type CategorySummaryEntry struct {
	CategoryID string `json:"category_id"`
	Name       string `json:"name"`
	Summary    string `json:"summary"`
}

// AllSummaries returns a summary for every live category of an owner,
// regenerating stale ones through the judge.
func (e *Engine) AllSummaries(ctx context.Context, ownerID string) ([]CategorySummaryEntry, error) {
	l := e.ownerLock(ownerID)
	l.Lock()
	defer l.Unlock()

	cats, err := e.db.ListCategories(ownerID)
	if err != nil {
		return nil, err
	}
	out := make([]CategorySummaryEntry, 0, len(cats))
	for i := range cats {
		summary, err := e.cats.Summary(ctx, ownerID, cats[i].ID, false)
		if err != nil {
			return nil, err
		}
		out = append(out, CategorySummaryEntry{
			CategoryID: cats[i].ID,
			Name:       cats[i].Name,
			Summary:    summary,
		})
	}
	return out, nil
}

// SearchByCategory lists a category's active records, strongest first. The
// owner scope comes from the category itself.
func (e *Engine) SearchByCategory(categoryID string, limit int) ([]store.MemoryRecord, error) {
	cat, err := e.db.GetCategory(categoryID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}
	return e.db.ListRecords(store.Scope{
		OwnerID:    cat.OwnerID,
		CategoryID: categoryID,
		Limit:      limit,
	})
}

// Reindex rebuilds the similarity index from the store. Called at startup
// when the index does not persist across restarts.
func (e *Engine) Reindex(ctx context.Context) error {
	owners, err := e.db.ListOwners()
	if err != nil {
		return err
	}
	for _, owner := range owners {
		recs, err := e.db.ListRecords(store.Scope{OwnerID: owner})
		if err != nil {
			return err
		}
		for i := range recs {
			if len(recs[i].Embedding) == 0 {
				continue
			}
			if err := e.idx.Upsert(ctx, owner, recs[i].ID, recs[i].Embedding, map[string]string{"kind": index.KindRecord}); err != nil {
				return fmt.Errorf("reindex record %s: %w", recs[i].ID, err)
			}
		}
		cats, err := e.db.ListCategories(owner)
		if err != nil {
			return err
		}
		for i := range cats {
			if len(cats[i].Embedding) == 0 {
				continue
			}
			if err := e.idx.Upsert(ctx, owner, cats[i].ID, cats[i].Embedding, map[string]string{"kind": index.KindCategory}); err != nil {
				return fmt.Errorf("reindex category %s: %w", cats[i].ID, err)
			}
		}
	}
	return nil
}

// StartSweeper runs decay and category maintenance for every owner on the
// given interval until Stop is called.
func (e *Engine) StartSweeper(interval time.Duration) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				e.sweep()
			case <-e.stop:
				return
			}
		}
	}()
	e.log.Info().Dur("interval", interval).Msg("decay sweeper started")
}

func (e *Engine) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	owners, err := e.db.ListOwners()
	if err != nil {
		e.log.Error().Err(err).Msg("sweep: list owners failed")
		return
	}
	for _, owner := range owners {
		if report, err := e.ApplyDecay(ctx, owner); err != nil {
			e.log.Error().Err(err).Str("owner", owner).Msg("sweep: decay failed")
		} else if report.Promoted > 0 || report.Forgotten > 0 {
			e.log.Info().Str("owner", owner).
				Int("promoted", report.Promoted).
				Int("forgotten", report.Forgotten).
				Msg("decay sweep")
		}
		if _, err := e.ApplyCategoryMaintenance(ctx, owner); err != nil {
			e.log.Error().Err(err).Str("owner", owner).Msg("sweep: category maintenance failed")
		}
	}
}

// Stop halts the sweeper and waits for it to exit.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stop) })
	e.wg.Wait()
}

func containsID(ids []string, want string) bool {
	for _, id := range ids {
		if id == want {
			return true
		}
	}
	return false
}

func anyMatched(ids []string, matched map[string]bool) bool {
	for _, id := range ids {
		if matched[id] {
			return true
		}
	}
	return false
}
