// Package config holds all FadeMem tunables in one immutable value.
// Components receive the sub-config they need at construction; there are no
// process-wide mutable settings.
package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config is the full engine configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	LLM      LLMConfig
	Embed    EmbedConfig
	Decay    DecayConfig
	Conflict ConflictConfig
	Fusion   FusionConfig
	Echo     EchoConfig
	Category CategoryConfig
	Rank     RankConfig
}

type ServerConfig struct {
	Bind string `default:"127.0.0.1"`
	Port int    `default:"38100"`
}

type DatabaseConfig struct {
	Path string // empty: resolved via store.DefaultDBPath()
}

type LLMConfig struct {
	Provider     string `default:"anthropic"` // "anthropic", "ollama", "mock"
	Model        string
	AnthropicKey string `envconfig:"ANTHROPIC_KEY"`
	OllamaURL    string `default:"http://localhost:11434"`
	OllamaModel  string `default:"llama3.2"`
	// Bounded retry for judge calls that fail transiently.
	MaxRetries     int `default:"3"`
	TimeoutSeconds int `default:"60"`
}

type EmbedConfig struct {
	Provider   string `default:"ollama"` // "ollama", "hash"
	URL        string `default:"http://localhost:11434"`
	Model      string `default:"nomic-embed-text"`
	Dimensions int    `default:"768"`
}

// DecayConfig governs strength aging, promotion, and forgetting.
type DecayConfig struct {
	SMLRate             float64 `default:"0.15"`
	LMLRate             float64 `default:"0.02"`
	DampeningFactor     float64 `default:"0.5"`
	PromotionAccesses   int     `default:"3"`
	PromotionStrength   float64 `default:"0.7"`
	ForgettingThreshold float64 `default:"0.1"`
	AccessBoost         float64 `default:"0.05"`
}

type ConflictConfig struct {
	SimilarityThreshold float64 `default:"0.85"`
	MaxCandidates       int     `default:"5"`
	// When a new record is judged SUBSUMED, fold its enrichment fields into
	// the surviving record instead of discarding them with the candidate.
	MergeSubsumedEnrichment bool `default:"false"`
}

type FusionConfig struct {
	Enabled             bool    `default:"true"`
	SimilarityThreshold float64 `default:"0.90"`
	MaxClusterSize      int     `default:"5"`
}

type EchoConfig struct {
	AutoDepth       bool    `default:"true"`
	DefaultDepth    string  `default:"medium"`
	InitialStrength float64 `default:"0.6"`
	ShallowMult     float64 `default:"1.0"`
	MediumMult      float64 `default:"1.3"`
	DeepMult        float64 `default:"1.6"`
	ReechoOnAccess  bool    `default:"true"`
	ReechoThreshold int     `default:"3"`
	ReechoBoost     float64 `default:"1.1"`
	// Embed the question form instead of the raw content when available;
	// query-side phrasing matches questions better than statements.
	UseQuestionEmbedding bool `default:"true"`
	MaxKeywords          int  `default:"10"`
	MaxImplications      int  `default:"5"`
}

type CategoryConfig struct {
	AssignmentThreshold float64 `default:"0.6"`
	ParentThreshold     float64 `default:"0.5"`
	MergeThreshold      float64 `default:"0.7"`
	WeakThreshold       float64 `default:"0.3"`
	DeleteThreshold     float64 `default:"0.15"`
	DecayRate           float64 `default:"0.05"`
	AccessBoost         float64 `default:"0.02"`
	MaxDepth            int     `default:"2"`
	SummaryMembers      int     `default:"20"`
}

type RankConfig struct {
	CategoryBoost      float64 `default:"0.2"`
	KeywordBoost       float64 `default:"0.05"`
	ImplicationBoost   float64 `default:"0.03"`
	QuestionBoostCap   float64 `default:"0.15"`
	EchoBoostCap       float64 `default:"0.3"`
	DefaultMinStrength float64 `default:"0.1"`
}

// Default returns the configuration with all built-in defaults applied.
func Default() Config {
	var cfg Config
	// Processing with the FADEM prefix fills struct tag defaults; callers of
	// Default in tests get a clean environment-independent baseline only if
	// no FADEM_* variables are set, which is what Load is for.
	if err := envconfig.Process("fadem", &cfg); err != nil {
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	return cfg
}

// Load returns Default overridden by FADEM_* environment variables and
// validated. Invalid configuration fails here, never at runtime.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("fadem", &cfg); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects thresholds outside their legal ranges.
func (c Config) Validate() error {
	unit := func(name string, v float64) error {
		if v < 0 || v > 1 {
			return fmt.Errorf("config: %s must be in [0,1], got %g", name, v)
		}
		return nil
	}
	checks := []error{
		unit("decay.promotion_strength", c.Decay.PromotionStrength),
		unit("decay.forgetting_threshold", c.Decay.ForgettingThreshold),
		unit("decay.access_boost", c.Decay.AccessBoost),
		unit("conflict.similarity_threshold", c.Conflict.SimilarityThreshold),
		unit("fusion.similarity_threshold", c.Fusion.SimilarityThreshold),
		unit("echo.initial_strength", c.Echo.InitialStrength),
		unit("category.assignment_threshold", c.Category.AssignmentThreshold),
		unit("category.parent_threshold", c.Category.ParentThreshold),
		unit("category.merge_threshold", c.Category.MergeThreshold),
		unit("category.weak_threshold", c.Category.WeakThreshold),
		unit("category.delete_threshold", c.Category.DeleteThreshold),
	}
	for _, err := range checks {
		if err != nil {
			return err
		}
	}
	if c.Decay.SMLRate < 0 || c.Decay.LMLRate < 0 {
		return fmt.Errorf("config: decay rates must be non-negative")
	}
	if c.Decay.SMLRate < c.Decay.LMLRate {
		return fmt.Errorf("config: sml_rate must be >= lml_rate (SML decays faster)")
	}
	if c.Fusion.SimilarityThreshold < c.Conflict.SimilarityThreshold {
		return fmt.Errorf("config: fusion threshold must be >= conflict threshold")
	}
	if c.Embed.Dimensions <= 0 {
		return fmt.Errorf("config: embedding dimensions must be positive")
	}
	if c.Decay.PromotionAccesses < 1 {
		return fmt.Errorf("config: promotion_accesses must be >= 1")
	}
	if c.Category.MaxDepth < 0 || c.Category.MaxDepth > 2 {
		return fmt.Errorf("config: category max_depth must be 0..2")
	}
	switch c.Echo.DefaultDepth {
	case "shallow", "medium", "deep":
	default:
		return fmt.Errorf("config: echo default_depth %q unknown", c.Echo.DefaultDepth)
	}
	return nil
}

// ListenAddr returns the bind:port address string.
func (c Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}
