package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ashish-dwi99/FadeMem/internal/judge"
	"github.com/Ashish-dwi99/FadeMem/internal/logger"
	"github.com/Ashish-dwi99/FadeMem/internal/store"
)

func newTestEncoder(j judge.Judge) *EchoEncoder {
	return NewEchoEncoder(testConfig().Echo, j, logger.Nop())
}

func TestDetectDepth(t *testing.T) {
	e := newTestEncoder(&judge.Fake{})

	cases := []struct {
		content string
		want    store.Depth
	}{
		{"hello there, nothing special", store.DepthShallow},
		{"i like coffee", store.DepthMedium},
		{"the meeting moved to Tuesday", store.DepthMedium}, // date + proper noun
		{"flight 8872 departs on friday", store.DepthMedium},
		{"important: my locker code is 4521 and the password is hidden", store.DepthDeep},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, e.DetectDepth(tc.content), tc.content)
	}
}

func TestEncodeShallowSkipsJudge(t *testing.T) {
	fake := &judge.Fake{}
	e := newTestEncoder(fake)

	depth, fields, err := e.Encode(context.Background(), "went for a walk around the block", "")
	require.NoError(t, err)
	assert.Equal(t, store.DepthShallow, depth)
	assert.Empty(t, fake.Calls)
	assert.Contains(t, fields.Keywords, "walk")
	assert.NotContains(t, fields.Keywords, "the")
}

func TestEncodeDegradesOnJudgeFailure(t *testing.T) {
	fake := &judge.Fake{Err: errors.New("llm down")}
	e := newTestEncoder(fake)

	depth, fields, err := e.Encode(context.Background(), "content here", store.DepthDeep)
	require.NoError(t, err)
	assert.Equal(t, store.DepthShallow, depth)
	assert.NotEmpty(t, fields.Keywords)
}

func TestEncodeRejectsUnknownDepth(t *testing.T) {
	e := newTestEncoder(&judge.Fake{})
	_, _, err := e.Encode(context.Background(), "content", store.Depth("bottomless"))
	assert.ErrorIs(t, err, ErrUnknownDepth)
}

func TestInitialStrengthClamped(t *testing.T) {
	cfg := testConfig().Echo
	e := NewEchoEncoder(cfg, &judge.Fake{}, logger.Nop())

	assert.InDelta(t, 0.6, e.InitialStrength(store.DepthShallow), 1e-9)
	assert.InDelta(t, 0.78, e.InitialStrength(store.DepthMedium), 1e-9)
	assert.InDelta(t, 0.96, e.InitialStrength(store.DepthDeep), 1e-9)

	cfg.InitialStrength = 0.8
	e = NewEchoEncoder(cfg, &judge.Fake{}, logger.Nop())
	assert.Equal(t, 1.0, e.InitialStrength(store.DepthDeep)) // 0.8*1.6 clamps
}

func TestExtractKeywords(t *testing.T) {
	kws := ExtractKeywords("The user always drinks green tea, green tea every morning", 0)
	assert.Contains(t, kws, "green")
	assert.Contains(t, kws, "tea")
	assert.Contains(t, kws, "morning")
	assert.NotContains(t, kws, "the")
	assert.NotContains(t, kws, "user")

	// Deduplicated.
	count := 0
	for _, k := range kws {
		if k == "green" {
			count++
		}
	}
	assert.Equal(t, 1, count)

	capped := ExtractKeywords("alpha beta gamma delta epsilon", 2)
	assert.Len(t, capped, 2)
}
