// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// HTTPConfig holds shared HTTP settings used by components that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout" validate:"gte=0"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "paperwatch/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`
}

// ProfileMode selects how the profile builder treats cached embeddings.
type ProfileMode string

const (
	// ModeIncremental embeds only items whose content changed (default).
	ModeIncremental ProfileMode = "incremental"
	// ModeFull re-embeds every library item.
	ModeFull ProfileMode = "full"
)

// LibraryConfig locates the persisted library store.
type LibraryConfig struct {
	// DBPath is the SQLite database file (default data/library.db).
	DBPath string `json:"db_path" yaml:"db_path" mapstructure:"db_path" validate:"required"`
}

// EmbeddingConfig configures the embedding provider. The model identifier is
// opaque to the pipeline; it only keys caches and is reported in the profile.
type EmbeddingConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// Provider selects the implementation: "openai" (any OpenAI-compatible
	// endpoint) or "hash" (offline feature hashing).
	Provider string `json:"provider" yaml:"provider" mapstructure:"provider" validate:"oneof=openai hash"`

	// Model is the embedding model identifier (e.g. "text-embedding-3-small").
	Model string `json:"model" yaml:"model" mapstructure:"model" validate:"required"`

	// BaseURL is the API root of an OpenAI-compatible endpoint.
	BaseURL string `json:"base_url" yaml:"base_url" mapstructure:"base_url"`

	// APIKey authenticates against BaseURL. Usually loaded from .secrets/.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// Dimensions is the vector length produced by the hash provider.
	Dimensions int `json:"dimensions" yaml:"dimensions" mapstructure:"dimensions" validate:"gte=0"`

	// Concurrency bounds parallel provider calls during a profile build (default 1).
	Concurrency int `json:"concurrency" yaml:"concurrency" mapstructure:"concurrency" validate:"gte=0"`

	// CacheTTL is how long candidate embeddings are reused (0 disables the cache).
	CacheTTL time.Duration `json:"cache_ttl" yaml:"cache_ttl" mapstructure:"cache_ttl" validate:"gte=0"`

	// BreakerFailures is the number of consecutive provider failures that
	// opens the circuit breaker (0 disables the breaker).
	BreakerFailures int `json:"breaker_failures" yaml:"breaker_failures" mapstructure:"breaker_failures" validate:"gte=0"`
}

// ProfileConfig holds settings for the profile builder.
type ProfileConfig struct {
	// Mode is the default build mode: incremental or full.
	Mode ProfileMode `json:"mode" yaml:"mode" mapstructure:"mode" validate:"oneof=incremental full"`

	// AddedHalfLifeDays weights items by how recently they were added to the
	// library. Zero gives every item equal weight.
	AddedHalfLifeDays float64 `json:"added_half_life_days" yaml:"added_half_life_days" mapstructure:"added_half_life_days" validate:"gte=0"`
}

// ScoringWeights are the coefficients of the weighted portion of the
// composite score. They must be non-negative and sum to at most 1.
type ScoringWeights struct {
	Similarity float64 `json:"similarity" yaml:"similarity" mapstructure:"similarity" validate:"gte=0,lte=1"`
	Recency    float64 `json:"recency" yaml:"recency" mapstructure:"recency" validate:"gte=0,lte=1"`
	Citation   float64 `json:"citation" yaml:"citation" mapstructure:"citation" validate:"gte=0,lte=1"`
	Venue      float64 `json:"venue" yaml:"venue" mapstructure:"venue" validate:"gte=0,lte=1"`
}

// Sum returns the total of all weights.
func (w ScoringWeights) Sum() float64 {
	return w.Similarity + w.Recency + w.Citation + w.Venue
}

// Whitelist lists user-curated authors and venues that earn the additive bonus.
type Whitelist struct {
	Authors []string `json:"authors" yaml:"authors" mapstructure:"authors"`
	Venues  []string `json:"venues" yaml:"venues" mapstructure:"venues"`
}

// Thresholds map composite scores to labels.
type Thresholds struct {
	MustRead float64 `json:"must_read" yaml:"must_read" mapstructure:"must_read"`
	Consider float64 `json:"consider" yaml:"consider" mapstructure:"consider"`
}

// ScoringConfig holds settings for the scorer.
type ScoringConfig struct {
	Weights   ScoringWeights `json:"weights" yaml:"weights" mapstructure:"weights"`
	Whitelist Whitelist      `json:"whitelist" yaml:"whitelist" mapstructure:"whitelist"`

	// WhitelistBonus is added after weighting when a whitelist entry matches.
	WhitelistBonus float64 `json:"whitelist_bonus" yaml:"whitelist_bonus" mapstructure:"whitelist_bonus" validate:"gte=0"`

	// MaxAgeDays is the inclusive age window; older candidates are excluded
	// before scoring. Zero disables the window.
	MaxAgeDays int `json:"max_age_days" yaml:"max_age_days" mapstructure:"max_age_days" validate:"gte=0"`

	// RecencyHalfLifeDays controls the exponential recency decay (default 7).
	RecencyHalfLifeDays float64 `json:"recency_half_life_days" yaml:"recency_half_life_days" mapstructure:"recency_half_life_days" validate:"gt=0"`

	// CitationCap is the citation count that maps to a citation feature of 1.
	CitationCap int `json:"citation_cap" yaml:"citation_cap" mapstructure:"citation_cap" validate:"gt=0"`

	// NeutralCitation is used when a candidate has no citation data.
	NeutralCitation float64 `json:"neutral_citation" yaml:"neutral_citation" mapstructure:"neutral_citation" validate:"gte=0,lte=1"`

	// NeutralVenue is used for venues missing from VenueQuality.
	NeutralVenue float64 `json:"neutral_venue" yaml:"neutral_venue" mapstructure:"neutral_venue" validate:"gte=0,lte=1"`

	// VenueQuality maps venue names to a quality score in [0,1].
	VenueQuality map[string]float64 `json:"venue_quality" yaml:"venue_quality" mapstructure:"venue_quality" validate:"omitempty,dive,gte=0,lte=1"`

	Thresholds Thresholds `json:"thresholds" yaml:"thresholds" mapstructure:"thresholds"`
}

// RankConfig holds settings for the ranker.
type RankConfig struct {
	// TopN is the maximum number of recommendations (default 20).
	TopN int `json:"top_n" yaml:"top_n" mapstructure:"top_n" validate:"gt=0"`

	// PreprintRatioCap is the maximum fraction of preprints in the final
	// list. Values <= 0 or >= 1 disable the cap.
	PreprintRatioCap float64 `json:"preprint_ratio_cap" yaml:"preprint_ratio_cap" mapstructure:"preprint_ratio_cap" validate:"lte=1"`

	// MaxPerVenue limits how many recommendations share one venue (0 = unlimited).
	MaxPerVenue int `json:"max_per_venue" yaml:"max_per_venue" mapstructure:"max_per_venue" validate:"gte=0"`
}

// ArxivConfig configures the arXiv adapter.
type ArxivConfig struct {
	Enabled    bool     `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Categories []string `json:"categories" yaml:"categories" mapstructure:"categories" validate:"required_if=Enabled true"`
	MaxResults int      `json:"max_results" yaml:"max_results" mapstructure:"max_results" validate:"gte=0"`
}

// PreprintServerConfig configures a bioRxiv-family adapter.
type PreprintServerConfig struct {
	Enabled    bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	MaxResults int  `json:"max_results" yaml:"max_results" mapstructure:"max_results" validate:"gte=0"`
}

// OpenAlexConfig configures the OpenAlex adapter.
type OpenAlexConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`

	// Query is a free-text search applied to recent works.
	Query string `json:"query" yaml:"query" mapstructure:"query" validate:"required_if=Enabled true"`

	// Email is sent as mailto for polite pool access.
	Email      string `json:"email,omitempty" yaml:"email,omitempty" mapstructure:"email"`
	MaxResults int    `json:"max_results" yaml:"max_results" mapstructure:"max_results" validate:"gte=0"`
}

// SemanticScholarConfig configures the Semantic Scholar adapter.
type SemanticScholarConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Query      string `json:"query" yaml:"query" mapstructure:"query" validate:"required_if=Enabled true"`
	APIKey     string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`
	MaxResults int    `json:"max_results" yaml:"max_results" mapstructure:"max_results" validate:"gte=0"`
}

// EnrichmentConfig controls the Semantic Scholar lookup that fills missing
// abstracts and citation counts. It uses sources.semantic_scholar.api_key
// when set.
type EnrichmentConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
}

// SourcesConfig groups the candidate source adapters.
type SourcesConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// DaysBack is how far back adapters query (default 7).
	DaysBack int `json:"days_back" yaml:"days_back" mapstructure:"days_back" validate:"gt=0"`

	// RequestsPerSecond limits requests to a single source API.
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second" mapstructure:"requests_per_second" validate:"gte=0"`

	Arxiv           ArxivConfig           `json:"arxiv" yaml:"arxiv" mapstructure:"arxiv"`
	Biorxiv         PreprintServerConfig  `json:"biorxiv" yaml:"biorxiv" mapstructure:"biorxiv"`
	Medrxiv         PreprintServerConfig  `json:"medrxiv" yaml:"medrxiv" mapstructure:"medrxiv"`
	OpenAlex        OpenAlexConfig        `json:"openalex" yaml:"openalex" mapstructure:"openalex"`
	SemanticScholar SemanticScholarConfig `json:"semantic_scholar" yaml:"semantic_scholar" mapstructure:"semantic_scholar"`

	Enrichment EnrichmentConfig `json:"enrichment" yaml:"enrichment" mapstructure:"enrichment"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	Level  string `json:"level" yaml:"level" mapstructure:"level" validate:"oneof=trace debug info warn error"`
	Format string `json:"format" yaml:"format" mapstructure:"format" validate:"oneof=console json"`
}

// Config groups all settings consumed by the pipeline.
type Config struct {
	Library   LibraryConfig   `json:"library" yaml:"library" mapstructure:"library"`
	Embedding EmbeddingConfig `json:"embedding" yaml:"embedding" mapstructure:"embedding"`
	Profile   ProfileConfig   `json:"profile" yaml:"profile" mapstructure:"profile"`
	Scoring   ScoringConfig   `json:"scoring" yaml:"scoring" mapstructure:"scoring"`
	Rank      RankConfig      `json:"rank" yaml:"rank" mapstructure:"rank"`
	Sources   SourcesConfig   `json:"sources" yaml:"sources" mapstructure:"sources"`
	Log       LogConfig       `json:"log" yaml:"log" mapstructure:"log"`

	// MetricsFile, when set, receives Prometheus text-format run metrics.
	MetricsFile string `json:"metrics_file,omitempty" yaml:"metrics_file,omitempty" mapstructure:"metrics_file"`
}

// DefaultConfig returns the settings used when no config file overrides them:
// weights similarity 0.5, recency 0.15, citation 0.2, venue 0.15, a 7-day
// window and half-life, top 20 with at most 30% preprints, arXiv cs.LG only.
func DefaultConfig() Config {
	return Config{
		Library: LibraryConfig{DBPath: "data/library.db"},
		Embedding: EmbeddingConfig{
			HTTPConfig:      HTTPConfig{Timeout: 60 * time.Second, UserAgent: "paperwatch/0.1"},
			Provider:        "openai",
			Model:           "text-embedding-3-small",
			BaseURL:         "https://api.openai.com/v1",
			Dimensions:      256,
			Concurrency:     1,
			CacheTTL:        30 * 24 * time.Hour,
			BreakerFailures: 5,
		},
		Profile: ProfileConfig{Mode: ModeIncremental},
		Scoring: ScoringConfig{
			Weights: ScoringWeights{
				Similarity: 0.5,
				Recency:    0.15,
				Citation:   0.2,
				Venue:      0.15,
			},
			WhitelistBonus:      0.1,
			MaxAgeDays:          7,
			RecencyHalfLifeDays: 7,
			CitationCap:         1000,
			NeutralCitation:     0.5,
			NeutralVenue:        0.5,
			Thresholds:          Thresholds{MustRead: 0.75, Consider: 0.55},
		},
		Rank: RankConfig{TopN: 20, PreprintRatioCap: 0.3},
		Sources: SourcesConfig{
			HTTPConfig:        HTTPConfig{Timeout: 30 * time.Second, UserAgent: "paperwatch/0.1"},
			DaysBack:          7,
			RequestsPerSecond: 1,
			Arxiv:             ArxivConfig{Enabled: true, Categories: []string{"cs.LG"}, MaxResults: 500},
			Biorxiv:           PreprintServerConfig{MaxResults: 300},
			Medrxiv:           PreprintServerConfig{MaxResults: 300},
			OpenAlex:          OpenAlexConfig{MaxResults: 200},
			SemanticScholar:   SemanticScholarConfig{MaxResults: 100},
			Enrichment:        EnrichmentConfig{Enabled: true},
		},
		Log: LogConfig{Level: "info", Format: "console"},
	}
}

// weightSumTolerance absorbs float rounding in user-supplied weights such as
// 0.5+0.15+0.2+0.15.
const weightSumTolerance = 1e-9

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration before any I/O happens. Every problem is
// reported through a single *ConfigError.
func (c Config) Validate() error {
	var problems []string

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return &ConfigError{Problems: []string{err.Error()}}
		}
		for _, fe := range verrs {
			problems = append(problems, fmt.Sprintf("%s fails %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
		}
	}

	sum := c.Scoring.Weights.Sum()
	if sum > 1+weightSumTolerance {
		problems = append(problems, fmt.Sprintf("scoring weights sum to %.4f, must be <= 1", sum))
	}
	if sum <= 0 {
		problems = append(problems, "scoring weights are all zero")
	}
	if c.Scoring.Thresholds.Consider > c.Scoring.Thresholds.MustRead {
		problems = append(problems, "scoring.thresholds.consider exceeds must_read")
	}

	if len(problems) > 0 {
		return &ConfigError{Problems: problems}
	}
	return nil
}

// ParseProfileMode converts a flag or config value to a ProfileMode.
// An empty string selects the incremental default.
func ParseProfileMode(s string) (ProfileMode, error) {
	switch ProfileMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeIncremental:
		return ModeIncremental, nil
	case ModeFull:
		return ModeFull, nil
	default:
		return "", &ConfigError{Problems: []string{fmt.Sprintf("unknown profile mode %q", s)}}
	}
}
