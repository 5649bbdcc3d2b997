package engine

import (
	"context"
	"regexp"
	"strings"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/Ashish-dwi99/FadeMem/internal/config"
	"github.com/Ashish-dwi99/FadeMem/internal/judge"
	"github.com/Ashish-dwi99/FadeMem/internal/store"
)

// EchoEncoder decides how much processing a memory gets at insertion and
// produces the enrichment for that depth. Deeper encoding costs judge calls
// but yields stronger initial strength and richer retrieval hooks.
type EchoEncoder struct {
	cfg   config.EchoConfig
	judge judge.Judge
	log   zerolog.Logger
}

// NewEchoEncoder creates the encoder.
func NewEchoEncoder(cfg config.EchoConfig, j judge.Judge, log zerolog.Logger) *EchoEncoder {
	return &EchoEncoder{cfg: cfg, judge: j, log: log}
}

var (
	importanceMarkers = []string{"important", "remember", "always", "never", "critical", "must", "essential"}
	preferenceMarkers = []string{"prefer", "like", "love", "hate", "favorite", "favourite", "enjoy", "dislike"}
	secretMarkers     = []string{"password", "secret", "token", "api key", "credential", "private key"}

	longNumberRe = regexp.MustCompile(`\d{3,}`)
	dateRe       = regexp.MustCompile(`(?i)\b(\d{4}-\d{2}-\d{2}|january|february|march|april|june|july|august|september|october|november|december|monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`)
)

// DetectDepth scores content signals and maps the total to a depth.
// Importance and secret markers weigh double; numbers, dates, proper nouns,
// and preference statements weigh single. 3+ signals means deep, 1+ medium.
func (e *EchoEncoder) DetectDepth(content string) store.Depth {
	lower := strings.ToLower(content)
	score := 0

	for _, m := range importanceMarkers {
		if strings.Contains(lower, m) {
			score += 2
			break
		}
	}
	for _, m := range secretMarkers {
		if strings.Contains(lower, m) {
			score += 2
			break
		}
	}
	for _, m := range preferenceMarkers {
		if strings.Contains(lower, m) {
			score++
			break
		}
	}
	if longNumberRe.MatchString(content) {
		score++
	}
	if dateRe.MatchString(content) {
		score++
	}
	if hasProperNoun(content) {
		score++
	}

	switch {
	case score >= 3:
		return store.DepthDeep
	case score >= 1:
		return store.DepthMedium
	}
	return store.DepthShallow
}

// hasProperNoun reports a capitalized word that does not start a sentence.
func hasProperNoun(content string) bool {
	words := strings.Fields(content)
	sentenceStart := true
	for _, w := range words {
		runes := []rune(w)
		if !sentenceStart && unicode.IsUpper(runes[0]) && len(runes) > 1 {
			return true
		}
		sentenceStart = strings.HasSuffix(w, ".") || strings.HasSuffix(w, "!") || strings.HasSuffix(w, "?")
	}
	return false
}

// Encode enriches content at the requested depth. An empty requested depth
// means auto-detect (or the configured default when auto is off). Judge
// failures degrade to shallow local extraction instead of failing the add.
func (e *EchoEncoder) Encode(ctx context.Context, content string, requested store.Depth) (store.Depth, judge.Fields, error) {
	depth := requested
	if depth == "" {
		if e.cfg.AutoDepth {
			depth = e.DetectDepth(content)
		} else {
			depth = store.Depth(e.cfg.DefaultDepth)
		}
	}
	switch depth {
	case store.DepthShallow, store.DepthMedium, store.DepthDeep:
	default:
		return "", judge.Fields{}, ErrUnknownDepth
	}

	if depth == store.DepthShallow {
		return depth, e.localFields(content), nil
	}

	fields, err := e.judge.ExtractFields(ctx, content, depth)
	if err != nil {
		e.log.Warn().Err(err).Str("depth", string(depth)).
			Msg("field extraction failed, degrading to shallow")
		return store.DepthShallow, e.localFields(content), nil
	}
	if len(fields.Keywords) > e.cfg.MaxKeywords {
		fields.Keywords = fields.Keywords[:e.cfg.MaxKeywords]
	}
	if len(fields.Implications) > e.cfg.MaxImplications {
		fields.Implications = fields.Implications[:e.cfg.MaxImplications]
	}
	return depth, fields, nil
}

// Multiplier returns the initial-strength multiplier for a depth.
func (e *EchoEncoder) Multiplier(depth store.Depth) float64 {
	switch depth {
	case store.DepthDeep:
		return e.cfg.DeepMult
	case store.DepthMedium:
		return e.cfg.MediumMult
	}
	return e.cfg.ShallowMult
}

// InitialStrength computes insertion strength for a depth, clamped.
func (e *EchoEncoder) InitialStrength(depth store.Depth) float64 {
	return store.ClampStrength(e.cfg.InitialStrength * e.Multiplier(depth))
}

func (e *EchoEncoder) localFields(content string) judge.Fields {
	return judge.Fields{Keywords: ExtractKeywords(content, e.cfg.MaxKeywords)}
}

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"is": true, "are": true, "was": true, "were": true, "be": true, "been": true,
	"to": true, "of": true, "in": true, "on": true, "at": true, "for": true,
	"with": true, "by": true, "from": true, "as": true, "that": true, "this": true,
	"it": true, "its": true, "he": true, "she": true, "they": true, "we": true,
	"you": true, "i": true, "my": true, "his": true, "her": true, "their": true,
	"have": true, "has": true, "had": true, "do": true, "does": true, "did": true,
	"will": true, "would": true, "can": true, "could": true, "not": true, "no": true,
	"user": true, "about": true, "when": true, "what": true, "which": true,
}

// ExtractKeywords pulls content words locally without a judge call. Used for
// shallow records and as the degraded path when the judge is unavailable.
func ExtractKeywords(content string, max int) []string {
	var (
		out  []string
		seen = map[string]bool{}
		word strings.Builder
	)
	flush := func() {
		w := word.String()
		word.Reset()
		if len(w) <= 2 || stopwords[w] || seen[w] {
			return
		}
		seen[w] = true
		out = append(out, w)
	}
	for _, r := range strings.ToLower(content) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			word.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()

	if max > 0 && len(out) > max {
		out = out[:max]
	}
	return out
}
