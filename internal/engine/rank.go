package engine

import (
	"sort"
	"strings"

	"github.com/Ashish-dwi99/FadeMem/internal/config"
	"github.com/Ashish-dwi99/FadeMem/internal/store"
)

// Ranker orders retrieval hits by a composite of similarity, current
// strength, category affinity, and echo enrichment overlap with the query.
type Ranker struct {
	cfg config.RankConfig
}

// NewRanker creates the ranker.
func NewRanker(cfg config.RankConfig) *Ranker {
	return &Ranker{cfg: cfg}
}

// SearchResult is one ranked hit.
type SearchResult struct {
	Record     store.MemoryRecord `json:"record"`
	Similarity float64            `json:"similarity"`
	EchoBoost  float64            `json:"echo_boost"`
	Score      float64            `json:"score"`
}

// Score computes the composite score. categoryMatch is true when the record
// belongs to a category the query also matched.
func (rk *Ranker) Score(rec *store.MemoryRecord, similarity float64, categoryMatch bool, query string) (score, echoBoost float64) {
	echoBoost = rk.echoBoost(rec, query)

	score = similarity * rec.Strength
	if categoryMatch {
		score *= 1 + rk.cfg.CategoryBoost
	}
	score *= 1 + echoBoost
	return score, echoBoost
}

// echoBoost rewards enrichment overlap with the query: keyword hits,
// implication hits, and question-form word overlap, each capped, the total
// capped again.
func (rk *Ranker) echoBoost(rec *store.MemoryRecord, query string) float64 {
	terms := queryTerms(query)
	if len(terms) == 0 {
		return 0
	}

	boost := 0.0
	for _, kw := range rec.Keywords {
		if terms[strings.ToLower(kw)] {
			boost += rk.cfg.KeywordBoost
		}
	}
	for _, imp := range rec.Implications {
		if overlapsAny(imp, terms) {
			boost += rk.cfg.ImplicationBoost
		}
	}
	if rec.QuestionForm != "" {
		qBoost := questionOverlap(rec.QuestionForm, terms) * rk.cfg.QuestionBoostCap
		boost += qBoost
	}

	if boost > rk.cfg.EchoBoostCap {
		boost = rk.cfg.EchoBoostCap
	}
	return boost
}

// Sort orders results by score descending, breaking ties by recency of
// access.
func (rk *Ranker) Sort(results []SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Record.LastAccessed.After(results[j].Record.LastAccessed)
	})
}

func queryTerms(query string) map[string]bool {
	terms := map[string]bool{}
	for _, t := range ExtractKeywords(query, 0) {
		terms[t] = true
	}
	return terms
}

func overlapsAny(text string, terms map[string]bool) bool {
	for _, w := range ExtractKeywords(text, 0) {
		if terms[w] {
			return true
		}
	}
	return false
}

// questionOverlap is the fraction of the question form's content words that
// appear in the query.
func questionOverlap(question string, terms map[string]bool) float64 {
	words := ExtractKeywords(question, 0)
	if len(words) == 0 {
		return 0
	}
	hits := 0
	for _, w := range words {
		if terms[w] {
			hits++
		}
	}
	return float64(hits) / float64(len(words))
}
