// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package httputil

import (
	"context"
	"net/http"

	"golang.org/x/time/rate"
)

// Limiter spaces requests to a single API. A nil *Limiter never waits.
type Limiter struct {
	l *rate.Limiter
}

// NewLimiter returns a limiter allowing perSecond requests with a burst of
// one. A non-positive rate returns nil, which disables limiting.
func NewLimiter(perSecond float64) *Limiter {
	if perSecond <= 0 {
		return nil
	}
	return &Limiter{l: rate.NewLimiter(rate.Limit(perSecond), 1)}
}

// Wait blocks until the next request may be sent or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	return l.l.Wait(ctx)
}

// Do waits for the limiter and then calls DoWithRetry.
func (l *Limiter) Do(ctx context.Context, client *http.Client, req *http.Request) (*http.Response, error) {
	if err := l.Wait(ctx); err != nil {
		return nil, err
	}
	return DoWithRetry(ctx, client, req, 0)
}
