package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachingEncoder wraps any Encoder with an LRU cache keyed by the
// SHA-256 of the input text, so re-embedding an unchanged serialized
// tuple (a common case when a pipeline re-runs over partially-updated
// data) skips the model call entirely. Adopted in spirit from
// Aman-CERP-amanmcp/internal/embed/cached.go's CachedEmbedder.
type CachingEncoder struct {
	inner Encoder
	cache *lru.Cache[string, []float32]
}

// NewCachingEncoder wraps inner with an LRU of the given capacity.
func NewCachingEncoder(inner Encoder, capacity int) (*CachingEncoder, error) {
	if capacity <= 0 {
		capacity = 10_000
	}
	cache, err := lru.New[string, []float32](capacity)
	if err != nil {
		return nil, err
	}
	return &CachingEncoder{inner: inner, cache: cache}, nil
}

func (c *CachingEncoder) Dim() int { return c.inner.Dim() }
func (c *CachingEncoder) ModelID() string { return c.inner.ModelID() }

func (c *CachingEncoder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(text)
	if vec, ok := c.cache.Get(key); ok {
		return vec, nil
	}
	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, vec)
	return vec, nil
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
