package judge

import (
	"context"
	"fmt"
	"strings"

	"github.com/Ashish-dwi99/FadeMem/internal/store"
)

// Fake is a scripted Judge for tests. Zero value behaves as an agreeable
// judge: everything is compatible, enrichment echoes the content back.
type Fake struct {
	// RelationQueue is consumed in order by ClassifyRelation; when empty,
	// Relations is consulted by candidate content, then DefaultRelation.
	RelationQueue   []Relation
	Relations       map[string]Relation
	DefaultRelation Relation

	Fields       Fields
	Summary      string
	Consolidated string
	Facts        []Candidate

	// Err, when set, is returned by every method.
	Err error

	// Calls records method names in invocation order.
	Calls []string
}

var _ Judge = (*Fake)(nil)

func (f *Fake) ClassifyRelation(_ context.Context, existing, candidate string) (Relation, error) {
	f.Calls = append(f.Calls, "ClassifyRelation")
	if f.Err != nil {
		return "", f.Err
	}
	if len(f.RelationQueue) > 0 {
		rel := f.RelationQueue[0]
		f.RelationQueue = f.RelationQueue[1:]
		return rel, nil
	}
	if rel, ok := f.Relations[candidate]; ok {
		return rel, nil
	}
	if f.DefaultRelation != "" {
		return f.DefaultRelation, nil
	}
	return Compatible, nil
}

func (f *Fake) ExtractFields(_ context.Context, content string, depth store.Depth) (Fields, error) {
	f.Calls = append(f.Calls, "ExtractFields")
	if f.Err != nil {
		return Fields{}, f.Err
	}
	if f.Fields.Paraphrase != "" || len(f.Fields.Keywords) > 0 {
		return f.Fields, nil
	}
	fields := Fields{
		Paraphrase: content,
		Keywords:   strings.Fields(strings.ToLower(content)),
	}
	if depth == store.DepthDeep {
		fields.Implications = []string{"implied: " + content}
		fields.QuestionForm = "What about " + content + "?"
	}
	return fields, nil
}

func (f *Fake) Summarize(_ context.Context, _ string, members []string) (string, error) {
	f.Calls = append(f.Calls, "Summarize")
	if f.Err != nil {
		return "", f.Err
	}
	if f.Summary != "" {
		return f.Summary, nil
	}
	return fmt.Sprintf("Summary of %d memories.", len(members)), nil
}

func (f *Fake) Consolidate(_ context.Context, members []string) (string, error) {
	f.Calls = append(f.Calls, "Consolidate")
	if f.Err != nil {
		return "", f.Err
	}
	if f.Consolidated != "" {
		return f.Consolidated, nil
	}
	return strings.Join(members, "; "), nil
}

func (f *Fake) ExtractFacts(_ context.Context, _ string, _ []string) ([]Candidate, error) {
	f.Calls = append(f.Calls, "ExtractFacts")
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Facts, nil
}
