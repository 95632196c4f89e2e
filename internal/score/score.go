// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package score computes per-candidate features and the weighted composite
// score. Scoring is pure given the candidate, its embedding, the profile
// and the reference time, so rescoring the same inputs gives the same
// result.
package score

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/pdiddy/paperwatch/internal/dedup"
	"github.com/pdiddy/paperwatch/internal/embedding"
	"github.com/pdiddy/paperwatch/pkg/types"
)

// ErrOutsideWindow is returned by Scorer.Score for candidates older than the
// age window or without a publication date.
var ErrOutsideWindow = errors.New("candidate outside age window")

const day = 24 * time.Hour

// Compute returns the composite score: the weighted sum of the features in
// [0,1] plus the additive whitelist bonus.
func Compute(f types.Features, w types.ScoringWeights) float64 {
	return w.Similarity*f.Similarity +
		w.Recency*f.Recency +
		w.Citation*f.Citation +
		w.Venue*f.Venue +
		f.WhitelistBonus
}

// Similarity maps a cosine in [-1,1] to [0,1].
func Similarity(cosine float64) float64 {
	return (cosine + 1) / 2
}

// Recency is 0.5^(age/halfLife). Future dates count as age zero; undated
// candidates score 0.
func Recency(published, now time.Time, halfLifeDays float64) float64 {
	if published.IsZero() {
		return 0
	}
	age := now.Sub(published).Hours() / 24
	if age < 0 {
		age = 0
	}
	return math.Pow(0.5, age/halfLifeDays)
}

// Citation maps a count onto [0,1] with log damping, saturating at limit.
// A nil count yields neutral.
func Citation(count *int, limit int, neutral float64) float64 {
	if count == nil {
		return neutral
	}
	if *count <= 0 || limit <= 0 {
		return 0
	}
	return math.Min(1, math.Log1p(float64(*count))/math.Log1p(float64(limit)))
}

// InWindow reports whether c is within maxAgeDays of now, inclusive. A
// non-positive window admits everything, including undated candidates.
func InWindow(c types.Candidate, now time.Time, maxAgeDays int) bool {
	if maxAgeDays <= 0 {
		return true
	}
	if c.Published.IsZero() {
		return false
	}
	return now.Sub(c.Published) <= time.Duration(maxAgeDays)*day
}

// Scorer scores candidates against a profile.
type Scorer struct {
	cfg      types.ScoringConfig
	provider embedding.Provider
	venues   map[string]float64
	wlAuth   map[string]struct{}
	wlVenue  map[string]struct{}
	log      zerolog.Logger
}

// New returns a scorer that embeds candidates with provider. The provider
// must produce vectors in the same space as the profile.
func New(cfg types.ScoringConfig, provider embedding.Provider, log zerolog.Logger) *Scorer {
	s := &Scorer{
		cfg:      cfg,
		provider: provider,
		venues:   make(map[string]float64, len(cfg.VenueQuality)),
		wlAuth:   make(map[string]struct{}, len(cfg.Whitelist.Authors)),
		wlVenue:  make(map[string]struct{}, len(cfg.Whitelist.Venues)),
		log:      log,
	}
	for name, q := range cfg.VenueQuality {
		s.venues[dedup.NormalizeTitle(name)] = q
	}
	for _, a := range cfg.Whitelist.Authors {
		s.wlAuth[fold(a)] = struct{}{}
	}
	for _, v := range cfg.Whitelist.Venues {
		s.wlVenue[fold(v)] = struct{}{}
	}
	return s
}

// fold lowercases s and collapses whitespace for whitelist matching.
func fold(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Venue returns the quality of a venue, or the neutral default when unknown.
func (s *Scorer) Venue(venue string) float64 {
	if q, ok := s.venues[dedup.NormalizeTitle(venue)]; ok && venue != "" {
		return q
	}
	return s.cfg.NeutralVenue
}

// Whitelisted reports whether c's venue or any author is whitelisted.
func (s *Scorer) Whitelisted(c types.Candidate) bool {
	if c.Venue != "" {
		if _, ok := s.wlVenue[fold(c.Venue)]; ok {
			return true
		}
	}
	for _, a := range c.Authors {
		if _, ok := s.wlAuth[fold(a)]; ok {
			return true
		}
	}
	return false
}

// Features computes the feature breakdown of c given its embedding.
func (s *Scorer) Features(c types.Candidate, vec []float64, profile types.Profile, now time.Time) (types.Features, error) {
	cos, err := embedding.Cosine(vec, profile.Vector)
	if err != nil {
		return types.Features{}, fmt.Errorf("comparing %s with profile: %w", c.Identifier, err)
	}
	f := types.Features{
		Similarity: Similarity(cos),
		Recency:    Recency(c.Published, now, s.cfg.RecencyHalfLifeDays),
		Citation:   Citation(c.Citations, s.cfg.CitationCap, s.cfg.NeutralCitation),
		Venue:      s.Venue(c.Venue),
	}
	if s.Whitelisted(c) {
		f.WhitelistBonus = s.cfg.WhitelistBonus
	}
	return f, nil
}

// Label buckets a score using the configured thresholds.
func (s *Scorer) Label(score float64) types.Label {
	switch {
	case score >= s.cfg.Thresholds.MustRead:
		return types.LabelMustRead
	case score >= s.cfg.Thresholds.Consider:
		return types.LabelConsider
	default:
		return types.LabelIgnore
	}
}

// ScoreVector scores c from an already computed embedding.
func (s *Scorer) ScoreVector(c types.Candidate, vec []float64, profile types.Profile, now time.Time) (types.ScoredCandidate, error) {
	if !InWindow(c, now, s.cfg.MaxAgeDays) {
		return types.ScoredCandidate{}, ErrOutsideWindow
	}
	f, err := s.Features(c, vec, profile, now)
	if err != nil {
		return types.ScoredCandidate{}, err
	}
	total := Compute(f, s.cfg.Weights)
	return types.ScoredCandidate{
		Candidate: c,
		Features:  f,
		Score:     total,
		Label:     s.Label(total),
		DedupKey:  dedup.Key(c),
	}, nil
}

// Score embeds c and scores it against profile at reference time now.
// Candidates outside the age window return ErrOutsideWindow without an
// embedding call; provider failures return *types.ProviderError.
func (s *Scorer) Score(ctx context.Context, c types.Candidate, profile types.Profile, now time.Time) (types.ScoredCandidate, error) {
	if !InWindow(c, now, s.cfg.MaxAgeDays) {
		return types.ScoredCandidate{}, ErrOutsideWindow
	}
	vec, err := s.provider.Embed(ctx, c.EmbeddingText())
	if err != nil {
		return types.ScoredCandidate{}, err
	}
	return s.ScoreVector(c, vec, profile, now)
}

// Result holds the outcome of ScoreAll.
type Result struct {
	Scored      []types.ScoredCandidate
	OutOfWindow int
	Failed      int

	// Mismatched counts candidates whose embedding length differs from the
	// profile vector.
	Mismatched int
}

// ScoreAll scores every candidate. Candidates outside the window are
// counted and dropped. Provider failures and dimension mismatches are
// counted and skipped. Context cancellation and any other error abort.
func (s *Scorer) ScoreAll(ctx context.Context, cands []types.Candidate, profile types.Profile, now time.Time) (Result, error) {
	var res Result
	for _, c := range cands {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		sc, err := s.Score(ctx, c, profile, now)
		var pe *types.ProviderError
		switch {
		case err == nil:
			res.Scored = append(res.Scored, sc)
		case errors.Is(err, ErrOutsideWindow):
			res.OutOfWindow++
		case errors.As(err, &pe) && ctx.Err() == nil:
			res.Failed++
			s.log.Warn().Err(err).Str("candidate", c.Identifier).Msg("candidate embedding failed, skipped")
		case errors.Is(err, embedding.ErrDimensionMismatch):
			res.Mismatched++
			s.log.Warn().Err(err).Str("candidate", c.Identifier).Msg("candidate embedding dimension mismatch, skipped")
		default:
			return res, err
		}
	}
	return res, nil
}
