// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package rank orders scored candidates and cuts the recommendation list.
// It is the only place the preprint ratio cap is applied.
package rank

import (
	"math"
	"sort"

	"github.com/pdiddy/paperwatch/internal/dedup"
	"github.com/pdiddy/paperwatch/pkg/types"
)

const defaultTopN = 20

// Options configures Rank.
type Options struct {
	// TopN is the list length (default 20).
	TopN int

	// PreprintRatioCap bounds the preprint fraction of the list. Values
	// <= 0 or >= 1 disable the cap.
	PreprintRatioCap float64

	// MaxPerVenue bounds recommendations per venue; 0 disables the quota.
	// Candidates without a venue are never limited.
	MaxPerVenue int
}

// OptionsFromConfig converts rank configuration.
func OptionsFromConfig(cfg types.RankConfig) Options {
	return Options{TopN: cfg.TopN, PreprintRatioCap: cfg.PreprintRatioCap, MaxPerVenue: cfg.MaxPerVenue}
}

// Result is the ranked recommendation list.
type Result struct {
	Items []types.ScoredCandidate

	// Considered is the number of scored candidates ranked.
	Considered int

	// VenueLimited counts candidates dropped by the per-venue quota.
	VenueLimited int

	// Demoted counts preprints pushed below the cutoff by the ratio cap.
	Demoted int
}

// Less orders by score descending, then publication date descending, then
// dedup key and identifier ascending, so ties resolve the same way every
// run.
func Less(a, b types.ScoredCandidate) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if !a.Published.Equal(b.Published) {
		return a.Published.After(b.Published)
	}
	if a.DedupKey != b.DedupKey {
		return a.DedupKey < b.DedupKey
	}
	return a.Identifier < b.Identifier
}

// Sort orders scored in place using Less.
func Sort(scored []types.ScoredCandidate) {
	sort.SliceStable(scored, func(i, j int) bool { return Less(scored[i], scored[j]) })
}

// Rank sorts scored, applies the venue quota, truncates to TopN and
// enforces the preprint cap. The input slice is not modified.
func Rank(scored []types.ScoredCandidate, opts Options) Result {
	if opts.TopN <= 0 {
		opts.TopN = defaultTopN
	}
	res := Result{Considered: len(scored)}

	sorted := make([]types.ScoredCandidate, len(scored))
	copy(sorted, scored)
	Sort(sorted)

	eligible := sorted
	if opts.MaxPerVenue > 0 {
		eligible, res.VenueLimited = limitVenues(sorted, opts.MaxPerVenue)
	}

	n := min(opts.TopN, len(eligible))
	if opts.PreprintRatioCap <= 0 || opts.PreprintRatioCap >= 1 {
		res.Items = eligible[:n]
		return res
	}

	uncapped := countPreprints(eligible[:n])
	for size := n; size >= 0; size-- {
		if items, ok := fill(eligible, size, opts.PreprintRatioCap); ok {
			res.Items = items
			res.Demoted = max(0, uncapped-countPreprints(items))
			break
		}
	}
	return res
}

// fill walks sorted and takes the best size candidates admitting at most
// floor(cap*size) preprints. It fails when too few non-preprints remain.
func fill(sorted []types.ScoredCandidate, size int, ratio float64) ([]types.ScoredCandidate, bool) {
	budget := int(math.Floor(ratio*float64(size) + 1e-9))
	items := make([]types.ScoredCandidate, 0, size)
	preprints := 0
	for _, c := range sorted {
		if len(items) == size {
			break
		}
		if c.Preprint {
			if preprints >= budget {
				continue
			}
			preprints++
		}
		items = append(items, c)
	}
	return items, len(items) == size
}

func limitVenues(sorted []types.ScoredCandidate, limit int) ([]types.ScoredCandidate, int) {
	counts := make(map[string]int)
	out := make([]types.ScoredCandidate, 0, len(sorted))
	dropped := 0
	for _, c := range sorted {
		v := dedup.NormalizeTitle(c.Venue)
		if v != "" {
			if counts[v] >= limit {
				dropped++
				continue
			}
			counts[v]++
		}
		out = append(out, c)
	}
	return out, dropped
}

func countPreprints(items []types.ScoredCandidate) int {
	n := 0
	for _, c := range items {
		if c.Preprint {
			n++
		}
	}
	return n
}
