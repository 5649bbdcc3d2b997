package embedding

import (
	"context"
	"hash/fnv"
	"strings"
)

// HashEmbedder buckets tokens into a fixed-dimension vector by hash. It is
// deterministic and offline: texts sharing tokens land near each other, which
// is enough for tests and for running without an embedding model. Not a
// semantic embedding.
type HashEmbedder struct {
	dims int
}

// NewHashEmbedder creates a hash embedder with the given dimension count.
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = 256
	}
	return &HashEmbedder{dims: dims}
}

func (h *HashEmbedder) Model() string   { return "hash" }
func (h *HashEmbedder) Dimensions() int { return h.dims }

// Embed maps each token to a bucket and L2-normalizes the counts.
func (h *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, h.dims)
	for _, tok := range tokenize(text) {
		f := fnv.New32a()
		f.Write([]byte(tok))
		vec[int(f.Sum32())%h.dims]++
	}
	Normalize(vec)
	return vec, nil
}

// tokenize splits text into lowercase tokens, stripping punctuation.
func tokenize(text string) []string {
	text = strings.ToLower(text)
	var tokens []string
	var current strings.Builder
	for _, r := range text {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			current.WriteRune(r)
		} else {
			if current.Len() > 1 { // skip single-char tokens
				tokens = append(tokens, current.String())
			}
			current.Reset()
		}
	}
	if current.Len() > 1 {
		tokens = append(tokens, current.String())
	}
	return tokens
}
