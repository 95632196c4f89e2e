// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline wires the components into one recommendation run:
// refresh the profile, fetch candidates from every source, deduplicate,
// drop works already in the library, fill missing metadata, score, rank,
// and write the list.
// Nothing is written to the sink when a fatal error occurs.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pdiddy/paperwatch/internal/dedup"
	"github.com/pdiddy/paperwatch/internal/embedding"
	"github.com/pdiddy/paperwatch/internal/library"
	"github.com/pdiddy/paperwatch/internal/metrics"
	"github.com/pdiddy/paperwatch/internal/output"
	"github.com/pdiddy/paperwatch/internal/profile"
	"github.com/pdiddy/paperwatch/internal/rank"
	"github.com/pdiddy/paperwatch/internal/score"
	"github.com/pdiddy/paperwatch/internal/source"
	"github.com/pdiddy/paperwatch/pkg/types"
)

// Store is the persistence the pipeline needs. *library.Store implements it.
type Store interface {
	profile.Store
	embedding.Cache
	SaveProfile(ctx context.Context, p types.Profile) error
	LoadProfile(ctx context.Context) (types.Profile, error)
	PruneEmbeddingCache(ctx context.Context, cutoff time.Time) (int, error)
}

// Enricher fills missing candidate metadata. *source.Enricher implements it.
type Enricher interface {
	Enrich(ctx context.Context, cands []types.Candidate) ([]types.Candidate, source.EnrichSummary, error)
}

// Deps are the collaborators of a run.
type Deps struct {
	Store    Store
	Provider embedding.Provider
	Sources  []source.Source
	Sink     output.Sink

	// Enricher, when set, runs between deduplication and scoring. Its
	// failures are logged and the run continues with what it has.
	Enricher Enricher

	// Metrics receives run counters; nil allocates a throwaway set.
	Metrics *metrics.Run

	Log zerolog.Logger

	// Out receives human-readable progress; nil discards it.
	Out io.Writer
}

// Options configure a run.
type Options struct {
	Config types.Config

	// Mode overrides Config.Profile.Mode when set.
	Mode types.ProfileMode

	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

// ProfileResult describes a profile refresh.
type ProfileResult struct {
	Profile types.Profile
	Summary profile.Summary

	// Mode is the mode actually used. An incremental request becomes a full
	// rebuild when the stored profile was built with another model.
	Mode types.ProfileMode
}

// Result holds the counts and output of one run.
type Result struct {
	RunID   string
	RunAt   time.Time
	Profile ProfileResult

	Fetched      int
	SourceCounts map[string]int
	SourceErrors []*types.SourceError

	Merged       int
	InLibrary    int
	Enriched     source.EnrichSummary
	OutOfWindow  int
	ScoreFailed  int
	Mismatched   int
	Scored       int
	VenueLimited int
	Demoted      int

	Items    []types.ScoredCandidate
	Duration time.Duration
}

func (o Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func (o Options) mode() types.ProfileMode {
	if o.Mode != "" {
		return o.Mode
	}
	if o.Config.Profile.Mode != "" {
		return o.Config.Profile.Mode
	}
	return types.ModeIncremental
}

func (d Deps) out() io.Writer {
	if d.Out == nil {
		return io.Discard
	}
	return d.Out
}

// BuildProfile refreshes item embeddings, aggregates the profile, and saves
// it to the store.
func BuildProfile(ctx context.Context, deps Deps, opts Options) (ProfileResult, error) {
	cfg := opts.Config
	model := embedding.ModelID(cfg.Embedding)
	mode := opts.mode()
	log := deps.Log

	if mode == types.ModeIncremental {
		prev, err := deps.Store.LoadProfile(ctx)
		switch {
		case errors.Is(err, library.ErrNoProfile):
		case err != nil:
			return ProfileResult{}, fmt.Errorf("loading profile: %w", err)
		case prev.Model != model:
			log.Info().Str("previous", prev.Model).Str("model", model).Msg("embedding model changed, rebuilding profile")
			fmt.Fprintf(deps.out(), "Embedding model changed (%s -> %s), re-embedding the library\n", prev.Model, model)
			mode = types.ModeFull
		}
	}

	b := profile.NewBuilder(deps.Store, deps.Provider, profile.Options{
		Model:             model,
		Concurrency:       cfg.Embedding.Concurrency,
		AddedHalfLifeDays: cfg.Profile.AddedHalfLifeDays,
		Now:               opts.Now,
	}, log)
	b.Progress = deps.out()

	p, sum, err := b.Build(ctx, mode)
	if err != nil {
		return ProfileResult{Summary: sum, Mode: mode}, err
	}
	if err := deps.Store.SaveProfile(ctx, p); err != nil {
		return ProfileResult{}, fmt.Errorf("saving profile: %w", err)
	}
	return ProfileResult{Profile: p, Summary: sum, Mode: mode}, nil
}

// Run executes one recommendation run. Source and provider failures are
// counted and reported in the result; an empty profile, store failures,
// and cancellation abort the run before the sink is written.
func Run(ctx context.Context, deps Deps, opts Options) (Result, error) {
	start := time.Now()
	cfg := opts.Config
	m := deps.Metrics
	if m == nil {
		m = metrics.NewRun()
	}
	w := deps.out()

	res := Result{RunID: uuid.NewString(), RunAt: opts.now()}
	log := deps.Log.With().Str("run_id", res.RunID).Logger()
	ctx = log.WithContext(ctx)
	deps.Log = log

	log.Info().Time("run_at", res.RunAt).Int("sources", len(deps.Sources)).Msg("run started")

	pr, err := BuildProfile(ctx, deps, opts)
	res.Profile = pr
	m.EmbeddingFailures.WithLabelValues("profile").Add(float64(pr.Summary.Failed))
	if err != nil {
		return res, err
	}
	m.ProfileItems.Set(float64(pr.Profile.ItemCount))
	fmt.Fprintf(w, "Profile: %d items (%d embedded, %d failed)\n",
		pr.Profile.ItemCount, pr.Summary.Embedded, pr.Summary.Failed)

	window := source.WindowEnding(res.RunAt, cfg.Sources.DaysBack)
	fetched := source.FetchAll(ctx, deps.Sources, window, log, w)
	if err := ctx.Err(); err != nil {
		return res, err
	}
	res.Fetched = len(fetched.Candidates)
	res.SourceCounts = fetched.Counts
	res.SourceErrors = fetched.Errors
	m.Candidates.WithLabelValues("fetched").Set(float64(res.Fetched))
	for _, se := range fetched.Errors {
		m.SourceErrors.WithLabelValues(se.Source).Inc()
	}
	fmt.Fprintf(w, "Fetched %d candidates from %d sources (%d failed)\n",
		res.Fetched, len(deps.Sources), len(fetched.Errors))

	cands, merged := dedup.Dedupe(fetched.Candidates)
	res.Merged = merged
	m.Candidates.WithLabelValues("deduplicated").Set(float64(len(cands)))

	items, err := deps.Store.AllItems(ctx)
	if err != nil {
		return res, fmt.Errorf("reading library: %w", err)
	}
	cands, res.InLibrary = dedup.ExcludeLibrary(cands, items)
	m.Candidates.WithLabelValues("new").Set(float64(len(cands)))
	fmt.Fprintf(w, "%d unique candidates (%d merged, %d already in library)\n",
		len(cands), res.Merged, res.InLibrary)

	if deps.Enricher != nil {
		enriched, sum, err := deps.Enricher.Enrich(ctx, cands)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return res, ctxErr
			}
			log.Warn().Err(err).Msg("enrichment failed, continuing with partial metadata")
			fmt.Fprintf(w, "warning: enrichment failed: %v\n", err)
		}
		if enriched != nil {
			cands = enriched
		}
		res.Enriched = sum
		m.Enriched.WithLabelValues("abstract").Add(float64(sum.Abstracts))
		m.Enriched.WithLabelValues("citations").Add(float64(sum.Citations))
		fmt.Fprintf(w, "Enriched %d abstracts and %d citation counts (%d looked up)\n",
			sum.Abstracts, sum.Citations, sum.Requested)
	}

	cached := embedding.NewCached(deps.Provider, deps.Store, pr.Profile.Model, cfg.Embedding.CacheTTL, log)
	if opts.Now != nil {
		cached.Now = opts.Now
	}
	scorer := score.New(cfg.Scoring, cached, log)
	sr, err := scorer.ScoreAll(ctx, cands, pr.Profile, res.RunAt)
	hits, misses := cached.Stats()
	m.EmbeddingCache.WithLabelValues("hit").Add(float64(hits))
	m.EmbeddingCache.WithLabelValues("miss").Add(float64(misses))
	res.OutOfWindow = sr.OutOfWindow
	res.ScoreFailed = sr.Failed
	res.Mismatched = sr.Mismatched
	m.EmbeddingFailures.WithLabelValues("candidate").Add(float64(sr.Failed))
	if err != nil {
		return res, fmt.Errorf("scoring candidates: %w", err)
	}
	res.Scored = len(sr.Scored)
	m.Candidates.WithLabelValues("scored").Set(float64(res.Scored))
	fmt.Fprintf(w, "Scored %d candidates (%d outside the %d-day window, %d embedding failures)\n",
		res.Scored, res.OutOfWindow, cfg.Scoring.MaxAgeDays, res.ScoreFailed)
	if res.Mismatched > 0 {
		fmt.Fprintf(w, "warning: %d candidates skipped for an embedding dimension mismatch; rebuild the profile with --full\n", res.Mismatched)
	}

	ranked := rank.Rank(sr.Scored, rank.OptionsFromConfig(cfg.Rank))
	res.Items = ranked.Items
	res.VenueLimited = ranked.VenueLimited
	res.Demoted = ranked.Demoted
	m.Recommendations.Set(float64(len(ranked.Items)))
	m.PreprintDemoted.Set(float64(ranked.Demoted))

	if err := deps.Sink.Write(ctx, ranked.Items, res.RunAt); err != nil {
		return res, fmt.Errorf("writing recommendations: %w", err)
	}

	if ttl := cfg.Embedding.CacheTTL; ttl > 0 {
		n, err := deps.Store.PruneEmbeddingCache(ctx, res.RunAt.Add(-ttl))
		if err != nil {
			log.Warn().Err(err).Msg("pruning embedding cache failed")
		} else if n > 0 {
			log.Debug().Int("entries", n).Msg("pruned embedding cache")
		}
	}

	res.Duration = time.Since(start)
	m.Duration.Set(res.Duration.Seconds())
	m.LastSuccess.Set(float64(res.RunAt.Unix()))
	log.Info().
		Int("recommendations", len(res.Items)).
		Int("source_errors", len(res.SourceErrors)).
		Int("demoted", res.Demoted).
		Dur("duration", res.Duration).
		Msg("run finished")
	return res, nil
}
