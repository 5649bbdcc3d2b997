package judge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/Ashish-dwi99/FadeMem/internal/config"
	"github.com/Ashish-dwi99/FadeMem/internal/llm"
	"github.com/Ashish-dwi99/FadeMem/internal/store"
)

// LLMJudge implements Judge on an llm.Client. Each call carries a deadline
// and retries transient failures a bounded number of times with exponential
// backoff before surfacing ErrTransient.
type LLMJudge struct {
	client     llm.Client
	maxRetries uint64
	timeout    time.Duration
	log        zerolog.Logger
}

// NewLLM creates a judge over the given LLM client.
func NewLLM(client llm.Client, cfg config.LLMConfig, log zerolog.Logger) *LLMJudge {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &LLMJudge{
		client:     client,
		maxRetries: uint64(cfg.MaxRetries),
		timeout:    timeout,
		log:        log,
	}
}

func (j *LLMJudge) complete(ctx context.Context, op, prompt string) (string, error) {
	var content string
	attempt := func() error {
		callCtx, cancel := context.WithTimeout(ctx, j.timeout)
		defer cancel()

		resp, err := j.client.Complete(callCtx, prompt)
		if err != nil {
			j.log.Warn().Str("op", op).Err(err).Msg("judge call failed, retrying")
			return err
		}
		content = resp.Content
		return nil
	}

	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), j.maxRetries), ctx)
	if err := backoff.Retry(attempt, bo); err != nil {
		return "", fmt.Errorf("%s: %w", op, errors.Join(ErrTransient, err))
	}
	return content, nil
}

// ClassifyRelation judges how candidate relates to existing.
func (j *LLMJudge) ClassifyRelation(ctx context.Context, existing, candidate string) (Relation, error) {
	raw, err := j.complete(ctx, "classify relation", fmt.Sprintf(relationPrompt, existing, candidate))
	if err != nil {
		return "", err
	}

	var resp struct {
		Classification string `json:"classification"`
	}
	if err := parseObject(raw, &resp); err != nil {
		return "", fmt.Errorf("classify relation: %w", errors.Join(ErrTransient, err))
	}
	rel, err := ParseRelation(resp.Classification)
	if err != nil {
		return "", fmt.Errorf("classify relation: %w", errors.Join(ErrTransient, err))
	}
	return rel, nil
}

// ExtractFields produces enrichment for medium or deep depth.
func (j *LLMJudge) ExtractFields(ctx context.Context, content string, depth store.Depth) (Fields, error) {
	var prompt string
	switch depth {
	case store.DepthDeep:
		prompt = fmt.Sprintf(fieldsDeepPrompt, content, 10, 5)
	default:
		prompt = fmt.Sprintf(fieldsMediumPrompt, content, 10)
	}

	raw, err := j.complete(ctx, "extract fields", prompt)
	if err != nil {
		return Fields{}, err
	}

	var fields Fields
	if err := parseObject(raw, &fields); err != nil {
		return Fields{}, fmt.Errorf("extract fields: %w", errors.Join(ErrTransient, err))
	}
	if depth != store.DepthDeep {
		// Medium never carries deep-only fields, whatever the model returned.
		fields.Implications = nil
		fields.QuestionForm = ""
	}
	return fields, nil
}

// Summarize folds member contents into an evolving category summary.
func (j *LLMJudge) Summarize(ctx context.Context, existingSummary string, members []string) (string, error) {
	if existingSummary == "" {
		existingSummary = "(none)"
	}
	list := "- " + strings.Join(members, "\n- ")

	raw, err := j.complete(ctx, "summarize", fmt.Sprintf(summaryPrompt, existingSummary, list))
	if err != nil {
		return "", err
	}

	var resp struct {
		Summary string `json:"summary"`
	}
	if err := parseObject(raw, &resp); err != nil {
		return "", fmt.Errorf("summarize: %w", errors.Join(ErrTransient, err))
	}
	return strings.TrimSpace(resp.Summary), nil
}

// Consolidate produces a single paraphrase for a fusion cluster.
func (j *LLMJudge) Consolidate(ctx context.Context, members []string) (string, error) {
	var b strings.Builder
	for i, m := range members {
		fmt.Fprintf(&b, "Memory %d: %s\n", i+1, m)
	}

	raw, err := j.complete(ctx, "consolidate", fmt.Sprintf(consolidatePrompt, b.String()))
	if err != nil {
		return "", err
	}

	var resp struct {
		Consolidated string `json:"consolidated_memory"`
	}
	if err := parseObject(raw, &resp); err != nil {
		return "", fmt.Errorf("consolidate: %w", errors.Join(ErrTransient, err))
	}
	if strings.TrimSpace(resp.Consolidated) == "" {
		return "", fmt.Errorf("consolidate: %w", errors.Join(ErrTransient, errors.New("empty consolidation")))
	}
	return strings.TrimSpace(resp.Consolidated), nil
}

// ExtractFacts pulls memorable facts out of a conversation.
func (j *LLMJudge) ExtractFacts(ctx context.Context, conversation string, existing []string) ([]Candidate, error) {
	existingText := "(none)"
	if len(existing) > 0 {
		existingText = "- " + strings.Join(existing, "\n- ")
	}

	raw, err := j.complete(ctx, "extract facts", fmt.Sprintf(extractPrompt, conversation, existingText))
	if err != nil {
		return nil, err
	}

	var resp struct {
		Memories []Candidate `json:"memories"`
	}
	if err := parseObject(raw, &resp); err != nil {
		return nil, fmt.Errorf("extract facts: %w", errors.Join(ErrTransient, err))
	}

	out := resp.Memories[:0]
	for _, c := range resp.Memories {
		if strings.TrimSpace(c.Content) != "" {
			out = append(out, c)
		}
	}
	return out, nil
}

// parseObject unmarshals the first JSON object in a completion, tolerating
// markdown code fences and leading prose.
func parseObject(raw string, v any) error {
	s := strings.TrimSpace(raw)

	if i := strings.Index(s, "```"); i >= 0 {
		s = s[i+3:]
		s = strings.TrimPrefix(s, "json")
		if j := strings.Index(s, "```"); j >= 0 {
			s = s[:j]
		}
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return fmt.Errorf("no JSON object in response")
	}

	if err := json.Unmarshal([]byte(s[start:end+1]), v); err != nil {
		return fmt.Errorf("decode judge response: %w", err)
	}
	return nil
}
