// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package embedding

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paperwatch/pkg/types"
)

// fakeProvider counts calls and fails while fail is set.
type fakeProvider struct {
	calls atomic.Int32
	fail  atomic.Bool
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Embed(_ context.Context, text string) ([]float64, error) {
	f.calls.Add(1)
	if f.fail.Load() {
		return nil, &types.ProviderError{Provider: "fake", Err: errors.New("boom")}
	}
	return []float64{float64(len(text)), 1}, nil
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	inner := &fakeProvider{}
	inner.fail.Store(true)
	b := NewBreaker(inner, 2, zerolog.Nop())
	ctx := context.Background()

	for range 2 {
		_, err := b.Embed(ctx, "x")
		require.Error(t, err)
	}
	assert.Equal(t, int32(2), inner.calls.Load())
	assert.Equal(t, "open", b.State())

	_, err := b.Embed(ctx, "x")
	var pe *types.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "fake", pe.Provider)
	assert.Equal(t, int32(2), inner.calls.Load(), "open breaker must not call the provider")
}

func TestBreaker_PassesThroughSuccess(t *testing.T) {
	inner := &fakeProvider{}
	b := NewBreaker(inner, 1, zerolog.Nop())

	vec, err := b.Embed(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 1}, vec)
	assert.Equal(t, "closed", b.State())
	assert.Equal(t, "fake", b.Name())
}
