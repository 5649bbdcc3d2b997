package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValues(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 0.15, cfg.Decay.SMLRate)
	assert.Equal(t, 0.02, cfg.Decay.LMLRate)
	assert.Equal(t, 3, cfg.Decay.PromotionAccesses)
	assert.Equal(t, 0.7, cfg.Decay.PromotionStrength)
	assert.Equal(t, 0.1, cfg.Decay.ForgettingThreshold)

	assert.Equal(t, 0.85, cfg.Conflict.SimilarityThreshold)
	assert.Equal(t, 0.90, cfg.Fusion.SimilarityThreshold)
	assert.Equal(t, 5, cfg.Fusion.MaxClusterSize)
	assert.True(t, cfg.Fusion.Enabled)

	assert.Equal(t, 0.6, cfg.Echo.InitialStrength)
	assert.Equal(t, 1.3, cfg.Echo.MediumMult)
	assert.Equal(t, 1.6, cfg.Echo.DeepMult)
	assert.Equal(t, "medium", cfg.Echo.DefaultDepth)

	assert.Equal(t, 0.6, cfg.Category.AssignmentThreshold)
	assert.Equal(t, 0.5, cfg.Category.ParentThreshold)
	assert.Equal(t, 2, cfg.Category.MaxDepth)

	assert.Equal(t, 0.3, cfg.Rank.EchoBoostCap)
	assert.Equal(t, 768, cfg.Embed.Dimensions)
	assert.Equal(t, "http://localhost:11434", cfg.Embed.URL)

	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsInvertedDecayRates(t *testing.T) {
	cfg := Default()
	cfg.Decay.SMLRate = 0.01
	cfg.Decay.LMLRate = 0.05
	assert.ErrorContains(t, cfg.Validate(), "sml_rate")
}

func TestValidateRejectsFusionBelowConflict(t *testing.T) {
	cfg := Default()
	cfg.Fusion.SimilarityThreshold = 0.5
	assert.ErrorContains(t, cfg.Validate(), "fusion threshold")
}

func TestValidateRejectsOutOfRangeThresholds(t *testing.T) {
	cfg := Default()
	cfg.Category.MergeThreshold = 1.5
	assert.ErrorContains(t, cfg.Validate(), "merge_threshold")

	cfg = Default()
	cfg.Decay.ForgettingThreshold = -0.1
	assert.ErrorContains(t, cfg.Validate(), "forgetting_threshold")
}

func TestValidateRejectsUnknownDepth(t *testing.T) {
	cfg := Default()
	cfg.Echo.DefaultDepth = "bottomless"
	assert.ErrorContains(t, cfg.Validate(), "default_depth")
}

func TestValidateRejectsBadStructurals(t *testing.T) {
	cfg := Default()
	cfg.Embed.Dimensions = 0
	assert.ErrorContains(t, cfg.Validate(), "dimensions")

	cfg = Default()
	cfg.Decay.PromotionAccesses = 0
	assert.ErrorContains(t, cfg.Validate(), "promotion_accesses")

	cfg = Default()
	cfg.Category.MaxDepth = 3
	assert.ErrorContains(t, cfg.Validate(), "max_depth")
}

func TestListenAddr(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "127.0.0.1:38100", cfg.ListenAddr())
}
