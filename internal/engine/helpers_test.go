package engine

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Ashish-dwi99/FadeMem/internal/config"
	"github.com/Ashish-dwi99/FadeMem/internal/index"
	"github.com/Ashish-dwi99/FadeMem/internal/judge"
	"github.com/Ashish-dwi99/FadeMem/internal/logger"
	"github.com/Ashish-dwi99/FadeMem/internal/store"
)

// stubEmbedder returns fixed vectors per exact text, so tests control
// similarity precisely. Unknown text is an error: a test that embeds
// something unexpected should fail loudly.
type stubEmbedder struct {
	vecs map[string][]float32
}

func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	v, ok := s.vecs[text]
	if !ok {
		return nil, fmt.Errorf("no stub vector for %q", text)
	}
	out := make([]float32, len(v))
	copy(out, v)
	return out, nil
}

func (s *stubEmbedder) Model() string   { return "stub" }
func (s *stubEmbedder) Dimensions() int { return 3 }

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Embed.Provider = "hash"
	cfg.Embed.Dimensions = 3
	return cfg
}

func newTestEngine(t *testing.T, cfg config.Config, j judge.Judge, vecs map[string][]float32) (*Engine, *store.DB) {
	t.Helper()

	db, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	eng := New(cfg, db, index.NewChromem(), &stubEmbedder{vecs: vecs}, j, logger.Nop())
	t.Cleanup(eng.Stop)
	return eng, db
}

func hasEvent(entries []store.HistoryEntry, event string) bool {
	for _, e := range entries {
		if e.Event == event {
			return true
		}
	}
	return false
}
