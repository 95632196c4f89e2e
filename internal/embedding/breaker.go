// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package embedding

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/pdiddy/paperwatch/pkg/types"
)

// BreakerTimeout is how long an open breaker rejects calls before letting a
// trial call through. Tests shorten it.
var BreakerTimeout = 30 * time.Second

// Breaker stops calling a provider after a run of consecutive failures.
// While open, every call fails immediately with a *types.ProviderError
// instead of waiting out retries against a dead endpoint.
type Breaker struct {
	inner Provider
	cb    *gobreaker.CircuitBreaker[[]float64]
}

// NewBreaker wraps inner. The breaker opens after failures consecutive
// provider errors. Context cancellation does not count as a failure.
func NewBreaker(inner Provider, failures uint32, log zerolog.Logger) *Breaker {
	name := inner.Name() + "-embedding"
	cb := gobreaker.NewCircuitBreaker[[]float64](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("embedding circuit breaker state change")
		},
	})
	return &Breaker{inner: inner, cb: cb}
}

// Name returns the wrapped provider's name.
func (b *Breaker) Name() string { return b.inner.Name() }

// State reports the breaker state (closed, half-open or open).
func (b *Breaker) State() string { return b.cb.State().String() }

// Embed calls the wrapped provider unless the breaker is open.
func (b *Breaker) Embed(ctx context.Context, text string) ([]float64, error) {
	vec, err := b.cb.Execute(func() ([]float64, error) {
		return b.inner.Embed(ctx, text)
	})
	if err == nil {
		return vec, nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, &types.ProviderError{Provider: b.inner.Name(), Err: err}
	}
	var pe *types.ProviderError
	if errors.As(err, &pe) {
		return nil, err
	}
	return nil, &types.ProviderError{Provider: b.inner.Name(), Err: err}
}
