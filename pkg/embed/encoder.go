// Package embed implements the embedding service: turning
// serialized record text into vectors, persisting them back onto
// records, and reporting coverage. Grounded on the teacher's
// pkg/core/embedding.go (Embedding type, batch persistence loop) and on
// Aman-CERP-amanmcp/internal/embed/cached.go's CachedEmbedder, whose
// LRU-over-hashicorp/golang-lru/v2 pattern pkg/embed.CachingEncoder
// adopts directly.
package embed

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"

	"github.com/entityresolve/er/pkg/ererr"
)

var errEmptyText = errors.New("embed: cannot encode empty text")

// Encoder is the opaque embedding-model boundary requires:
// callers never know whether it's a local model, an HTTP call to a
// model-serving endpoint, or a test stub.
type Encoder interface {
	// Embed returns the vector for text, or a ModelUnavailable error if
	// the encoder cannot serve requests at all (as opposed to failing on
	// this particular input).
	Embed(ctx context.Context, text string) ([]float32, error)
	// Dim reports the vector dimension this encoder produces.
	Dim() int
	// ModelID identifies the model for EmbeddingMeta.
	ModelID() string
}

// StubEncoder is a deterministic hash-based encoder for tests and small
// corpora, mirroring deterministic fixtures in
// hnsw_test.go: same text always produces the same vector, so test
// assertions don't depend on a real model being reachable.
type StubEncoder struct {
	dim int
	model string
}

// NewStubEncoder builds a deterministic encoder producing vectors of dim
// dimensions.
func NewStubEncoder(dim int) *StubEncoder {
	if dim <= 0 {
		dim = 16
	}
	return &StubEncoder{dim: dim, model: "stub-hash-v1"}
}

func (s *StubEncoder) Dim() int { return s.dim }
func (s *StubEncoder) ModelID() string { return s.model }

func (s *StubEncoder) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ererr.Validation("embed.StubEncoder.Embed", errEmptyText)
	}
	vec := make([]float32, s.dim)
	sum := sha256.Sum256([]byte(text))
	for i := 0; i < s.dim; i++ {
		b := sum[i%len(sum):]
		if len(b) < 4 {
			b = append(append([]byte{}, b...), sum[:4-len(b)]...)
		}
		u := binary.BigEndian.Uint32(b[:4])
		vec[i] = float32(u%2000)/1000 - 1 // spread roughly over [-1, 1]
	}
	return vec, nil
}
