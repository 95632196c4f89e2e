// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package profile maintains library embeddings and aggregates them into the
// interest vector candidates are scored against.
package profile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pdiddy/paperwatch/internal/embedding"
	"github.com/pdiddy/paperwatch/pkg/types"
)

// Store is the slice of the library store the builder needs.
type Store interface {
	AllItems(ctx context.Context) ([]types.LibraryItem, error)
	UpdateItem(ctx context.Context, key string, embedding []float64, hash string) error
}

// Options tunes a Builder.
type Options struct {
	// Model is recorded on the profile.
	Model string

	// Concurrency bounds parallel provider calls (default 1).
	Concurrency int

	// AddedHalfLifeDays weights items by recency of addition; 0 disables it.
	AddedHalfLifeDays float64

	// TopN is the length of the author and venue summaries (default 10).
	TopN int

	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

// Summary holds counts from one build.
type Summary struct {
	Items      int
	Embedded   int
	Failed     int
	Aggregated int
	// Skipped counts embeddings left out for a dimension mismatch.
	Skipped  int
	Duration time.Duration
}

// Builder computes missing embeddings and aggregates the profile vector.
type Builder struct {
	store    Store
	provider embedding.Provider
	opts     Options
	log      zerolog.Logger

	// Progress, when set, receives one line per embedded item.
	Progress io.Writer
}

// NewBuilder returns a builder over store and provider.
func NewBuilder(store Store, provider embedding.Provider, opts Options, log zerolog.Logger) *Builder {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.TopN <= 0 {
		opts.TopN = 10
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Builder{store: store, provider: provider, opts: opts, log: log, Progress: io.Discard}
}

type embedResult struct {
	idx int
	vec []float64
	err error
}

// Build embeds the items mode selects and returns the aggregated profile.
// ModeIncremental embeds only stale items; ModeFull re-embeds everything.
//
// A provider failure skips that item for this run: it keeps whatever
// embedding it had, is not aggregated, and is counted in Summary.Failed.
// Store writes happen on the calling goroutine, one per successful call.
// If no item can be aggregated Build returns *types.EmptyProfileError.
func (b *Builder) Build(ctx context.Context, mode types.ProfileMode) (types.Profile, Summary, error) {
	start := b.opts.Now()
	var sum Summary

	items, err := b.store.AllItems(ctx)
	if err != nil {
		return types.Profile{}, sum, fmt.Errorf("loading library: %w", err)
	}
	sum.Items = len(items)

	var pending []int
	for i, it := range items {
		if mode == types.ModeFull || it.Stale() {
			pending = append(pending, i)
		}
	}
	b.log.Info().Str("mode", string(mode)).Int("items", len(items)).Int("to_embed", len(pending)).
		Msg("building profile")

	embedCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	failed := make(map[int]bool)
	results := b.embedAll(embedCtx, items, pending)
	done := 0
	for r := range results {
		done++
		it := &items[r.idx]
		if r.err != nil {
			if ctx.Err() != nil {
				continue
			}
			var pe *types.ProviderError
			if !errors.As(r.err, &pe) {
				r.err = &types.ProviderError{Provider: b.provider.Name(), Err: r.err}
			}
			failed[r.idx] = true
			sum.Failed++
			b.log.Warn().Err(r.err).Str("key", it.Key).Msg("embedding failed, item skipped")
			fmt.Fprintf(b.Progress, "  [%d/%d] %s: failed\n", done, len(pending), it.Key)
			continue
		}
		if err := b.store.UpdateItem(ctx, it.Key, r.vec, it.ContentHash); err != nil {
			cancel()
			for range results {
			}
			return types.Profile{}, sum, fmt.Errorf("saving embedding: %w", err)
		}
		it.Embedding = r.vec
		it.EmbeddedHash = it.ContentHash
		sum.Embedded++
		fmt.Fprintf(b.Progress, "  [%d/%d] %s\n", done, len(pending), it.Key)
	}
	if err := ctx.Err(); err != nil {
		return types.Profile{}, sum, err
	}

	vec, aggregated, skipped, err := b.aggregate(items, failed)
	sum.Aggregated = aggregated
	sum.Skipped = skipped
	sum.Duration = b.opts.Now().Sub(start)
	if err != nil {
		return types.Profile{}, sum, err
	}
	if aggregated == 0 {
		return types.Profile{}, sum, &types.EmptyProfileError{Items: len(items), Failed: sum.Failed}
	}

	p := types.Profile{
		Vector:      vec,
		Model:       b.opts.Model,
		ItemCount:   aggregated,
		GeneratedAt: b.opts.Now().UTC(),
		TopAuthors:  topCounts(items, b.opts.TopN, func(it types.LibraryItem) []string { return it.Authors }),
		TopVenues: topCounts(items, b.opts.TopN, func(it types.LibraryItem) []string {
			if it.Venue == "" {
				return nil
			}
			return []string{it.Venue}
		}),
	}
	b.log.Info().Int("aggregated", aggregated).Int("embedded", sum.Embedded).Int("failed", sum.Failed).
		Msg("profile built")
	return p, sum, nil
}

// embedAll fans the pending items out to a bounded pool of workers. The
// returned channel is closed once every worker has finished.
func (b *Builder) embedAll(ctx context.Context, items []types.LibraryItem, pending []int) <-chan embedResult {
	jobs := make(chan int)
	results := make(chan embedResult)

	var wg sync.WaitGroup
	for range min(b.opts.Concurrency, max(len(pending), 1)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				vec, err := b.provider.Embed(ctx, items[idx].EmbeddingText())
				select {
				case results <- embedResult{idx: idx, vec: vec, err: err}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, idx := range pending {
			select {
			case jobs <- idx:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()
	return results
}

// aggregate averages every current embedding, in item order so a rebuild
// from the same embeddings yields the same vector.
func (b *Builder) aggregate(items []types.LibraryItem, failed map[int]bool) ([]float64, int, int, error) {
	dims := make(map[int]int)
	for i, it := range items {
		if !failed[i] && !it.Stale() {
			dims[len(it.Embedding)]++
		}
	}
	if len(dims) == 0 {
		return nil, 0, 0, nil
	}
	dim := dominantDim(dims)

	var (
		vecs    [][]float64
		added   []time.Time
		newest  time.Time
		skipped int
	)
	for i, it := range items {
		if failed[i] || it.Stale() {
			continue
		}
		if len(it.Embedding) != dim {
			skipped++
			b.log.Warn().Str("key", it.Key).Int("dim", len(it.Embedding)).Int("want", dim).
				Msg("embedding dimension mismatch, item skipped")
			continue
		}
		vecs = append(vecs, it.Embedding)
		added = append(added, it.AddedAt)
		if it.AddedAt.After(newest) {
			newest = it.AddedAt
		}
	}

	weights := make([]float64, len(vecs))
	for i, at := range added {
		weights[i] = addedWeight(at, newest, b.opts.AddedHalfLifeDays)
	}

	vec, err := embedding.WeightedMean(vecs, weights)
	if err != nil {
		return nil, 0, skipped, fmt.Errorf("aggregating embeddings: %w", err)
	}
	return vec, len(vecs), skipped, nil
}

// dominantDim picks the most common dimension, preferring the larger on ties.
func dominantDim(dims map[int]int) int {
	best, bestN := 0, -1
	for d, n := range dims {
		if n > bestN || (n == bestN && d > best) {
			best, bestN = d, n
		}
	}
	return best
}

// addedWeight decays an item's weight by the days between its addition and
// ref, the newest addition in the library. Weights depend only on the
// library itself, never on the clock. Undated items and a zero half-life
// weigh 1.
func addedWeight(added, ref time.Time, halfLifeDays float64) float64 {
	if halfLifeDays <= 0 || added.IsZero() {
		return 1
	}
	days := ref.Sub(added).Hours() / 24
	if days < 0 {
		days = 0
	}
	return math.Pow(0.5, days/halfLifeDays)
}

// topCounts returns the n most frequent names, ties broken by name.
func topCounts(items []types.LibraryItem, n int, names func(types.LibraryItem) []string) []types.CountEntry {
	counts := make(map[string]int)
	display := make(map[string]string)
	for _, it := range items {
		for _, name := range names(it) {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			key := strings.ToLower(name)
			if _, ok := display[key]; !ok {
				display[key] = name
			}
			counts[key]++
		}
	}

	entries := make([]types.CountEntry, 0, len(counts))
	for key, c := range counts {
		entries = append(entries, types.CountEntry{Name: display[key], Count: c})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].Name < entries[j].Name
	})
	if len(entries) > n {
		entries = entries[:n]
	}
	return entries
}
