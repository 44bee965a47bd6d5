package embed

import (
	"context"
	"crypto/sha256"
	"math"
	"strings"

	kberrors "github.com/agentscholar/kindex/internal/errors"
)

// MockEmbedder produces deterministic unit vectors without calling a model.
// The same text always embeds to the same vector, so similarity behaves
// consistently across runs. Used for offline runs and tests.
type MockEmbedder struct {
	dim int

	// FailSubstring, when non-empty, makes EmbedTexts fail for any batch
	// containing a text with this substring. Lets tests exercise the
	// partial-failure path.
	FailSubstring string
}

// NewMockEmbedder creates a mock embedder with the given dimension.
func NewMockEmbedder(dim int) *MockEmbedder {
	return &MockEmbedder{dim: dim}
}

// EmbedTexts returns one deterministic vector per input text.
func (m *MockEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if m.FailSubstring != "" && strings.Contains(text, m.FailSubstring) {
			return nil, kberrors.Newf(kberrors.KindEmbeddingUnavailable,
				"mock embedder configured to fail on %q", m.FailSubstring)
		}
		vectors[i] = deterministicVector(text, m.dim)
	}
	return vectors, nil
}

// Dimension returns the configured vector width.
func (m *MockEmbedder) Dimension() int {
	return m.dim
}

// deterministicVector derives a unit vector from the text's digest.
func deterministicVector(text string, dim int) []float32 {
	digest := sha256.Sum256([]byte(text))

	vec := make([]float32, dim)
	var norm float64
	for i := range vec {
		b := digest[i%len(digest)]
		// Spread values into [-1, 1), varied by position so different
		// texts rarely collide in direction.
		v := float64(int(b)^(i*31%251))/128.0 - 1.0
		vec[i] = float32(v)
		norm += v * v
	}

	norm = math.Sqrt(norm)
	if norm == 0 {
		vec[0] = 1
		return vec
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}
