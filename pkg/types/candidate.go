// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// Candidate is a paper produced by a source adapter, normalised into one
// shape before deduplication sees it.
type Candidate struct {
	// Identifier is the source-scoped id (arXiv id, DOI, OpenAlex id, ...).
	Identifier string `json:"identifier" yaml:"identifier"`

	Title     string    `json:"title" yaml:"title"`
	Abstract  string    `json:"abstract,omitempty" yaml:"abstract,omitempty"`
	Authors   []string  `json:"authors,omitempty" yaml:"authors,omitempty"`
	Published time.Time `json:"published" yaml:"published"`

	// YearOnly marks a Published date that only carries the year; the month
	// and day are placeholders.
	YearOnly bool `json:"year_only,omitempty" yaml:"year_only,omitempty"`

	Venue     string    `json:"venue,omitempty" yaml:"venue,omitempty"`
	DOI       string    `json:"doi,omitempty" yaml:"doi,omitempty"`
	URL       string    `json:"url,omitempty" yaml:"url,omitempty"`

	// Citations is nil when the source does not report a count.
	Citations *int `json:"citations,omitempty" yaml:"citations,omitempty"`

	// Sources lists the adapters that produced this work (e.g. "arxiv").
	Sources []string `json:"sources" yaml:"sources"`

	// Preprint is true for works that have not been peer reviewed.
	Preprint bool `json:"preprint" yaml:"preprint"`
}

// EmbeddingText returns the text sent to the embedding provider.
func (c Candidate) EmbeddingText() string {
	return EmbeddingText(c.Title, c.Abstract)
}

// Label buckets a composite score for display.
type Label string

const (
	LabelMustRead Label = "must_read"
	LabelConsider Label = "consider"
	LabelIgnore   Label = "ignore"
)

// Features is the per-feature breakdown of a candidate's score. All
// weighted features are in [0,1].
type Features struct {
	Similarity     float64 `json:"similarity" yaml:"similarity"`
	Recency        float64 `json:"recency" yaml:"recency"`
	Citation       float64 `json:"citation" yaml:"citation"`
	Venue          float64 `json:"venue" yaml:"venue"`
	WhitelistBonus float64 `json:"whitelist_bonus" yaml:"whitelist_bonus"`
}

// ScoredCandidate is a candidate with its feature breakdown and composite score.
type ScoredCandidate struct {
	Candidate `yaml:",inline"`

	Features Features `json:"features" yaml:"features"`
	Score    float64  `json:"score" yaml:"score"`
	Label    Label    `json:"label" yaml:"label"`

	// DedupKey is the fingerprint the candidate was merged under; it is the
	// last deterministic tie-breaker in ranking.
	DedupKey string `json:"dedup_key" yaml:"dedup_key"`
}
