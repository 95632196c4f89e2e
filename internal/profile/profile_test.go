// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package profile

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paperwatch/internal/embedding"
	"github.com/pdiddy/paperwatch/pkg/types"
)

// --- test doubles ---

type memStore struct {
	mu       sync.Mutex
	items    map[string]types.LibraryItem
	writes   int
	writeErr error
}

func newMemStore(items ...types.LibraryItem) *memStore {
	s := &memStore{items: make(map[string]types.LibraryItem)}
	for _, it := range items {
		it.ContentHash = it.ComputeContentHash()
		s.items[it.Key] = it
	}
	return s
}

func (s *memStore) AllItems(context.Context) ([]types.LibraryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.LibraryItem, 0, len(s.items))
	for _, it := range s.items {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *memStore) UpdateItem(_ context.Context, key string, vec []float64, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	it := s.items[key]
	it.Embedding = vec
	it.EmbeddedHash = hash
	s.items[key] = it
	s.writes++
	return nil
}

func (s *memStore) edit(key string, fn func(*types.LibraryItem)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it := s.items[key]
	fn(&it)
	it.ContentHash = it.ComputeContentHash()
	s.items[key] = it
}

// countingProvider wraps the hash embedder, counting calls and failing on
// texts that contain any of failOn.
type countingProvider struct {
	inner  *embedding.Hash
	calls  atomic.Int32
	failOn []string
}

func newCountingProvider(failOn ...string) *countingProvider {
	return &countingProvider{inner: embedding.NewHash(32), failOn: failOn}
}

func (p *countingProvider) Name() string { return "counting" }

func (p *countingProvider) Embed(ctx context.Context, text string) ([]float64, error) {
	p.calls.Add(1)
	for _, f := range p.failOn {
		if strings.Contains(text, f) {
			return nil, &types.ProviderError{Provider: "counting", Err: errors.New("unavailable")}
		}
	}
	return p.inner.Embed(ctx, text)
}

func sampleItems() []types.LibraryItem {
	return []types.LibraryItem{
		{Key: "a", Title: "Attention is all you need", Authors: []string{"Ashish Vaswani", "Noam Shazeer"}, Venue: "NeurIPS"},
		{Key: "b", Title: "Graph attention networks", Authors: []string{"Petar Velickovic"}, Venue: "ICLR"},
		{Key: "c", Title: "Deep residual learning for image recognition", Authors: []string{"Kaiming He"}, Venue: "CVPR"},
		{Key: "d", Title: "Layer normalization", Authors: []string{"Jimmy Ba", "Ashish Vaswani"}, Venue: "NeurIPS"},
	}
}

var fixedNow = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

func newTestBuilder(s Store, p embedding.Provider, concurrency int) *Builder {
	return NewBuilder(s, p, Options{
		Model:       "hash-32",
		Concurrency: concurrency,
		Now:         func() time.Time { return fixedNow },
	}, zerolog.Nop())
}

// --- tests ---

func TestBuild_FirstIncrementalEmbedsEverything(t *testing.T) {
	s := newMemStore(sampleItems()...)
	p := newCountingProvider()

	prof, sum, err := newTestBuilder(s, p, 2).Build(context.Background(), types.ModeIncremental)
	require.NoError(t, err)

	assert.Equal(t, int32(4), p.calls.Load())
	assert.Equal(t, Summary{Items: 4, Embedded: 4, Aggregated: 4}, sum)
	assert.Equal(t, 4, s.writes)
	assert.Equal(t, 4, prof.ItemCount)
	assert.Equal(t, "hash-32", prof.Model)
	assert.Equal(t, fixedNow, prof.GeneratedAt)
	assert.InDelta(t, 1, embedding.Norm(prof.Vector), 1e-9)
}

func TestBuild_IncrementalNoOpMakesNoProviderCalls(t *testing.T) {
	s := newMemStore(sampleItems()...)
	ctx := context.Background()

	first, _, err := newTestBuilder(s, newCountingProvider(), 1).Build(ctx, types.ModeIncremental)
	require.NoError(t, err)

	p := newCountingProvider()
	second, sum, err := newTestBuilder(s, p, 1).Build(ctx, types.ModeIncremental)
	require.NoError(t, err)

	assert.Equal(t, int32(0), p.calls.Load())
	assert.Equal(t, 0, sum.Embedded)
	assert.Equal(t, first.Vector, second.Vector)
}

func TestBuild_IncrementalEmbedsOnlyChangedItems(t *testing.T) {
	s := newMemStore(sampleItems()...)
	ctx := context.Background()
	_, _, err := newTestBuilder(s, newCountingProvider(), 1).Build(ctx, types.ModeIncremental)
	require.NoError(t, err)

	s.edit("c", func(it *types.LibraryItem) { it.Abstract = "We present residual nets." })

	p := newCountingProvider()
	_, sum, err := newTestBuilder(s, p, 1).Build(ctx, types.ModeIncremental)
	require.NoError(t, err)
	assert.Equal(t, int32(1), p.calls.Load())
	assert.Equal(t, 1, sum.Embedded)
	assert.Equal(t, 4, sum.Aggregated)
}

func TestBuild_FullRebuildReproducesVector(t *testing.T) {
	ctx := context.Background()

	s := newMemStore(sampleItems()...)
	first, _, err := newTestBuilder(s, newCountingProvider(), 1).Build(ctx, types.ModeFull)
	require.NoError(t, err)

	p := newCountingProvider()
	second, sum, err := newTestBuilder(s, p, 4).Build(ctx, types.ModeFull)
	require.NoError(t, err)

	assert.Equal(t, int32(4), p.calls.Load(), "full mode ignores cached embeddings")
	assert.Equal(t, 4, sum.Embedded)
	assert.Equal(t, first.Vector, second.Vector)
}

func TestBuild_ProviderFailureSkipsItem(t *testing.T) {
	s := newMemStore(sampleItems()...)
	p := newCountingProvider("Layer normalization")

	prof, sum, err := newTestBuilder(s, p, 3).Build(context.Background(), types.ModeIncremental)
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 3, sum.Embedded)
	assert.Equal(t, 3, prof.ItemCount)

	items, _ := s.AllItems(context.Background())
	assert.Nil(t, items[3].Embedding, "failed item must not be written")
}

func TestBuild_StaleEmbeddingNotAggregatedWhenReembedFails(t *testing.T) {
	s := newMemStore(sampleItems()...)
	ctx := context.Background()
	_, _, err := newTestBuilder(s, newCountingProvider(), 1).Build(ctx, types.ModeIncremental)
	require.NoError(t, err)

	s.edit("d", func(it *types.LibraryItem) { it.Title = "Layer normalization revisited" })
	before, _ := s.AllItems(ctx)
	oldVec := before[3].Embedding

	prof, sum, err := newTestBuilder(s, newCountingProvider("revisited"), 1).Build(ctx, types.ModeIncremental)
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 3, prof.ItemCount)
	after, _ := s.AllItems(ctx)
	assert.Equal(t, oldVec, after[3].Embedding, "old embedding is kept")
	assert.True(t, after[3].Stale())
}

func TestBuild_FullModeFailureExcludesOldEmbedding(t *testing.T) {
	s := newMemStore(sampleItems()...)
	ctx := context.Background()
	_, _, err := newTestBuilder(s, newCountingProvider(), 1).Build(ctx, types.ModeFull)
	require.NoError(t, err)

	prof, sum, err := newTestBuilder(s, newCountingProvider("Graph"), 1).Build(ctx, types.ModeFull)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 3, prof.ItemCount)
}

func TestBuild_EmptyProfile(t *testing.T) {
	tests := []struct {
		name       string
		store      *memStore
		provider   *countingProvider
		wantFailed int
	}{
		{"empty library", newMemStore(), newCountingProvider(), 0},
		{"every call fails", newMemStore(sampleItems()...), newCountingProvider("a", "e", "i", "o"), 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, sum, err := newTestBuilder(tt.store, tt.provider, 2).Build(context.Background(), types.ModeIncremental)
			var epe *types.EmptyProfileError
			require.True(t, errors.As(err, &epe), "got %v", err)
			assert.Equal(t, tt.wantFailed, epe.Failed)
			assert.Equal(t, tt.wantFailed, sum.Failed)
		})
	}
}

func TestBuild_StoreWriteErrorIsFatal(t *testing.T) {
	s := newMemStore(sampleItems()...)
	s.writeErr = errors.New("disk full")

	_, _, err := newTestBuilder(s, newCountingProvider(), 2).Build(context.Background(), types.ModeIncremental)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestBuild_ContextCancelled(t *testing.T) {
	s := newMemStore(sampleItems()...)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := newTestBuilder(s, newCountingProvider(), 2).Build(ctx, types.ModeIncremental)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBuild_DimensionMismatchSkipped(t *testing.T) {
	items := sampleItems()
	s := newMemStore(items...)
	ctx := context.Background()
	_, _, err := newTestBuilder(s, newCountingProvider(), 1).Build(ctx, types.ModeIncremental)
	require.NoError(t, err)

	s.mu.Lock()
	it := s.items["a"]
	it.Embedding = []float64{1, 0}
	s.items["a"] = it
	s.mu.Unlock()

	prof, sum, err := newTestBuilder(s, newCountingProvider(), 1).Build(ctx, types.ModeIncremental)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Skipped)
	assert.Equal(t, 3, prof.ItemCount)
}

func TestBuild_TopAuthorsAndVenues(t *testing.T) {
	s := newMemStore(sampleItems()...)
	prof, _, err := newTestBuilder(s, newCountingProvider(), 1).Build(context.Background(), types.ModeIncremental)
	require.NoError(t, err)

	require.NotEmpty(t, prof.TopAuthors)
	assert.Equal(t, types.CountEntry{Name: "Ashish Vaswani", Count: 2}, prof.TopAuthors[0])
	assert.Equal(t, types.CountEntry{Name: "NeurIPS", Count: 2}, prof.TopVenues[0])
	assert.Len(t, prof.TopVenues, 3)
}

func TestAddedWeight(t *testing.T) {
	now := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 1.0, addedWeight(now.AddDate(0, 0, -30), now, 0))
	assert.Equal(t, 1.0, addedWeight(time.Time{}, now, 30))
	assert.InDelta(t, 0.5, addedWeight(now.AddDate(0, 0, -30), now, 30), 1e-12)
	assert.InDelta(t, 0.25, addedWeight(now.AddDate(0, 0, -60), now, 30), 1e-12)
	assert.Equal(t, 1.0, addedWeight(now.AddDate(0, 0, 1), now, 30))
}

func TestBuild_AddedHalfLifeFavoursRecentItems(t *testing.T) {
	items := []types.LibraryItem{
		{Key: "old", Title: "Protein folding with physics", AddedAt: fixedNow.AddDate(-2, 0, 0)},
		{Key: "new", Title: "Language model scaling laws", AddedAt: fixedNow.AddDate(0, 0, -1)},
	}
	s := newMemStore(items...)
	b := NewBuilder(s, newCountingProvider(), Options{
		Concurrency:       1,
		AddedHalfLifeDays: 30,
		Now:               func() time.Time { return fixedNow },
	}, zerolog.Nop())

	prof, _, err := b.Build(context.Background(), types.ModeIncremental)
	require.NoError(t, err)

	stored, _ := s.AllItems(context.Background())
	simNew, _ := embedding.Cosine(prof.Vector, stored[0].Embedding)
	simOld, _ := embedding.Cosine(prof.Vector, stored[1].Embedding)
	assert.Greater(t, simNew, simOld)
}

func TestBuild_AddedHalfLifeIndependentOfClock(t *testing.T) {
	s := newMemStore(
		types.LibraryItem{Key: "dated", Title: "Graph neural networks for molecules", AddedAt: fixedNow.AddDate(0, -1, 0)},
		types.LibraryItem{Key: "undated", Title: "Sparse attention in long documents"},
	)
	clock := fixedNow
	b := NewBuilder(s, newCountingProvider(), Options{
		Concurrency:       1,
		AddedHalfLifeDays: 30,
		Now:               func() time.Time { return clock },
	}, zerolog.Nop())

	first, _, err := b.Build(context.Background(), types.ModeIncremental)
	require.NoError(t, err)

	clock = fixedNow.AddDate(0, 0, 90)
	second, sum, err := b.Build(context.Background(), types.ModeIncremental)
	require.NoError(t, err)
	assert.Zero(t, sum.Embedded)
	assert.Equal(t, first.Vector, second.Vector)
}
