package memory

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// HashEmbedder is a deterministic, offline Embedder: it seeds a small LCG
// with the FNV hash of the text and emits a unit vector. Identical texts
// always map to identical vectors, so similarity search stays exercisable
// in dev environments and tests without any API credentials. It carries
// no semantic signal and is not meant for production.
type HashEmbedder struct {
	dim int
}

// NewHashEmbedder creates a HashEmbedder with the given vector width.
// A non-positive width falls back to the deployment default.
func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = defaultEmbeddingDim
	}
	return &HashEmbedder{dim: dim}
}

// Embed maps text to a deterministic unit vector. Empty or
// whitespace-only text returns the zero vector.
func (e *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dim)
	if strings.TrimSpace(text) == "" {
		return vec, nil
	}

	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec, nil
}

// Dimensions returns the vector width.
func (e *HashEmbedder) Dimensions() int {
	return e.dim
}

// Compile-time interface satisfaction check.
var _ Embedder = (*HashEmbedder)(nil)
