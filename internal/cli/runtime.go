package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Ashish-dwi99/FadeMem/internal/config"
	"github.com/Ashish-dwi99/FadeMem/internal/embedding"
	"github.com/Ashish-dwi99/FadeMem/internal/engine"
	"github.com/Ashish-dwi99/FadeMem/internal/index"
	"github.com/Ashish-dwi99/FadeMem/internal/judge"
	"github.com/Ashish-dwi99/FadeMem/internal/llm"
	"github.com/Ashish-dwi99/FadeMem/internal/logger"
	"github.com/Ashish-dwi99/FadeMem/internal/store"
)

// runtime bundles the wired components a CLI command needs.
type runtime struct {
	cfg config.Config
	db  *store.DB
	eng *engine.Engine
}

// buildRuntime loads config, opens the database, and wires the engine. The
// in-memory vector index is rebuilt from the store on every start.
func buildRuntime() (*runtime, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" && cfg.LLM.AnthropicKey == "" {
		cfg.LLM.AnthropicKey = key
	}

	dbPath := cfg.Database.Path
	if dbPath == "" {
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return nil, nil, fmt.Errorf("resolve db path: %w", err)
		}
	}
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}

	log := logger.New("fadem")

	client, err := llm.NewClient(cfg.LLM)
	if err != nil {
		// The engine fails open without a judge: adds degrade to shallow,
		// conflicts resolve compatible. Usable, but warn.
		fmt.Fprintf(os.Stderr, "warning: LLM not configured (%v), semantic judging degraded\n", err)
		client = &llm.MockClient{Err: fmt.Errorf("llm not configured")}
	}
	j := judge.NewLLM(client, cfg.LLM, log)

	emb, err := embedding.New(cfg.Embed)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("create embedder: %w", err)
	}

	eng := engine.New(cfg, db, index.NewChromem(), emb, j, log)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := eng.Reindex(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "warning: reindex failed: %v\n", err)
	}

	cleanup := func() {
		eng.Stop()
		db.Close()
	}
	return &runtime{cfg: cfg, db: db, eng: eng}, cleanup, nil
}
