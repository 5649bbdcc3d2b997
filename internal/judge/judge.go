// Package judge wraps the external LLM behind typed semantic operations:
// relation classification, field extraction, summarization, consolidation,
// and fact extraction. The engine never sees prompts or raw completions.
package judge

import (
	"context"
	"errors"
	"fmt"

	"github.com/Ashish-dwi99/FadeMem/internal/store"
)

// ErrTransient marks failures the caller may retry: timeouts, transport
// errors, and malformed judge responses after retry exhaustion.
var ErrTransient = errors.New("transient judge failure")

// Relation is the judged relationship between an existing record and a
// candidate. The set is closed: call sites switch over all four values with
// no default, so a new relation kind forces deliberate handling everywhere.
type Relation string

const (
	Compatible    Relation = "COMPATIBLE"
	Contradictory Relation = "CONTRADICTORY"
	Subsumes      Relation = "SUBSUMES" // candidate subsumes existing
	Subsumed      Relation = "SUBSUMED" // existing subsumes candidate
)

// ParseRelation maps a judge response string to a Relation.
func ParseRelation(s string) (Relation, error) {
	switch Relation(s) {
	case Compatible, Contradictory, Subsumes, Subsumed:
		return Relation(s), nil
	}
	return "", fmt.Errorf("unknown relation %q", s)
}

// Fields is the enrichment produced for a record at a given echo depth.
type Fields struct {
	Paraphrase   string   `json:"paraphrase"`
	Keywords     []string `json:"keywords"`
	Implications []string `json:"implications"`
	QuestionForm string   `json:"question_form"`
}

// Candidate is one fact extracted from a conversation.
type Candidate struct {
	Content  string `json:"content"`
	Category string `json:"category"`
}

// Judge is the semantic judge collaborator.
type Judge interface {
	// ClassifyRelation judges how candidate relates to existing.
	ClassifyRelation(ctx context.Context, existing, candidate string) (Relation, error)
	// ExtractFields produces enrichment for the given depth. Shallow depth
	// never reaches the judge; callers only pass medium or deep.
	ExtractFields(ctx context.Context, content string, depth store.Depth) (Fields, error)
	// Summarize folds new member contents into an evolving category summary.
	Summarize(ctx context.Context, existingSummary string, members []string) (string, error)
	// Consolidate produces one paraphrase covering all members of a fusion
	// cluster.
	Consolidate(ctx context.Context, members []string) (string, error)
	// ExtractFacts pulls memorable facts out of a conversation, skipping
	// anything already present in existing.
	ExtractFacts(ctx context.Context, conversation string, existing []string) ([]Candidate, error)
}
