// Package embcache caches text embeddings in Redis in front of a batch embedder.
package embcache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"insightbot/internal/contextutil"
)

const keyPrefix = "insightbot:emb:"

// Embedder is the wrapped batch embedding service.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// store is the key-value surface the cache needs. GetMulti returns one entry
// per key with nil marking a miss.
type store interface {
	GetMulti(ctx context.Context, keys []string) ([][]byte, error)
	SetMulti(ctx context.Context, items map[string][]byte, ttl time.Duration) error
}

// CachedEmbedder serves embeddings from the store and sends only the misses to
// the inner embedder, in one batch.
type CachedEmbedder struct {
	inner      Embedder
	store      store
	model      string
	ttl        time.Duration
	cacheTotal *prometheus.CounterVec
}

// New creates a caching decorator. cacheTotal takes a "result" label
// ("hit"/"miss") and may be nil.
func New(inner Embedder, s store, model string, ttl time.Duration, cacheTotal *prometheus.CounterVec) *CachedEmbedder {
	return &CachedEmbedder{
		inner:      inner,
		store:      s,
		model:      model,
		ttl:        ttl,
		cacheTotal: cacheTotal,
	}
}

// EmbedTexts returns one vector per text in input order. Store failures are
// logged and treated as misses.
func (c *CachedEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if len(texts) == 0 {
		return c.inner.EmbedTexts(ctx, texts)
	}

	keys := make([]string, len(texts))
	for i, t := range texts {
		keys[i] = c.cacheKey(t)
	}

	result := make([][]float32, len(texts))
	cached, err := c.store.GetMulti(ctx, keys)
	if err != nil {
		logger.WarnContext(ctx, "embedding cache read failed", "error", err)
		cached = nil
	}

	var missIdx []int
	var missTexts []string
	for i := range texts {
		if i < len(cached) && cached[i] != nil {
			vec, err := bytesToVector(cached[i])
			if err == nil {
				result[i] = vec
				c.inc("hit")
				continue
			}
			logger.WarnContext(ctx, "failed to parse cached embedding", "key", keys[i], "error", err)
		}
		c.inc("miss")
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, texts[i])
	}

	if len(missTexts) == 0 {
		return result, nil
	}

	fresh, err := c.inner.EmbedTexts(ctx, missTexts)
	if err != nil {
		return nil, fmt.Errorf("embed texts: %w", err)
	}
	if len(fresh) != len(missTexts) {
		return nil, fmt.Errorf("embed texts: expected %d vectors, got %d", len(missTexts), len(fresh))
	}

	items := make(map[string][]byte, len(fresh))
	for j, i := range missIdx {
		result[i] = fresh[j]
		items[keys[i]] = vectorToBytes(fresh[j])
	}
	if err := c.store.SetMulti(ctx, items, c.ttl); err != nil {
		logger.WarnContext(ctx, "embedding cache write failed", "count", len(items), "error", err)
	}

	return result, nil
}

func (c *CachedEmbedder) inc(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}

// cacheKey scopes entries by model so a model switch never serves stale vectors.
func (c *CachedEmbedder) cacheKey(text string) string {
	h := sha256.Sum256([]byte(text))
	return keyPrefix + c.model + ":" + hex.EncodeToString(h[:])
}

func vectorToBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToVector(data []byte) ([]float32, error) {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding cache data: len=%d", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
