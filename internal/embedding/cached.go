// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package embedding

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/pdiddy/paperwatch/pkg/types"
)

// Cache stores candidate embeddings by model and text hash.
// *library.Store implements it.
type Cache interface {
	CachedEmbedding(ctx context.Context, model, textHash string, notBefore time.Time) ([]float64, bool, error)
	PutEmbedding(ctx context.Context, model, textHash string, vec []float64, at time.Time) error
}

// Cached reuses embeddings of previously seen candidate text for up to TTL.
// Cache faults are logged and fall through to the provider.
type Cached struct {
	inner Provider
	cache Cache
	model string
	ttl   time.Duration
	log   zerolog.Logger

	// Now is the clock; tests replace it.
	Now func() time.Time

	hits   atomic.Int64
	misses atomic.Int64
}

// NewCached wraps inner with cache, keyed by model.
func NewCached(inner Provider, cache Cache, model string, ttl time.Duration, log zerolog.Logger) *Cached {
	return &Cached{inner: inner, cache: cache, model: model, ttl: ttl, log: log, Now: time.Now}
}

// Name returns the wrapped provider's name.
func (c *Cached) Name() string { return c.inner.Name() }

// Embed returns a cached vector when one younger than TTL exists, otherwise
// calls the wrapped provider and stores the result.
func (c *Cached) Embed(ctx context.Context, text string) ([]float64, error) {
	key := types.HashContent(text)
	now := c.Now()

	if c.ttl > 0 {
		vec, ok, err := c.cache.CachedEmbedding(ctx, c.model, key, now.Add(-c.ttl))
		if err != nil {
			c.log.Warn().Err(err).Msg("embedding cache read failed")
		} else if ok {
			c.hits.Add(1)
			return vec, nil
		}
	}
	c.misses.Add(1)

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if c.ttl > 0 {
		if err := c.cache.PutEmbedding(ctx, c.model, key, vec, now); err != nil {
			c.log.Warn().Err(err).Msg("embedding cache write failed")
		}
	}
	return vec, nil
}

// Stats returns cache hits and misses since creation.
func (c *Cached) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
