package engine

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Ashish-dwi99/FadeMem/internal/judge"
)

// Message is one conversation turn handed to fact extraction.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// buildConversation renders messages for the extraction prompt.
func buildConversation(messages []Message) string {
	var b strings.Builder
	for _, m := range messages {
		role := m.Role
		if role == "" {
			role = "user"
		}
		b.WriteString(strings.ToUpper(role))
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return b.String()
}

// extractCandidates pulls memorable facts from a conversation. When the
// judge is unavailable the last user message is stored verbatim rather than
// losing the turn entirely.
func extractCandidates(ctx context.Context, j judge.Judge, log zerolog.Logger, messages []Message, existing []string) []judge.Candidate {
	facts, err := j.ExtractFacts(ctx, buildConversation(messages), existing)
	if err == nil {
		return facts
	}
	log.Warn().Err(err).Msg("fact extraction failed, storing last user message")

	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "" || messages[i].Role == "user" {
			if strings.TrimSpace(messages[i].Content) == "" {
				continue
			}
			return []judge.Candidate{{Content: messages[i].Content}}
		}
	}
	return nil
}
