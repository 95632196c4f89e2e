// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package embedding turns paper text into vectors. Library items and
// candidates must go through the same provider and model so their vectors
// share one space.
package embedding

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/pdiddy/paperwatch/pkg/types"
)

// Provider embeds text. Implementations report failures as
// *types.ProviderError.
type Provider interface {
	Name() string
	Embed(ctx context.Context, text string) ([]float64, error)
}

// New builds the configured provider, wrapped in a circuit breaker when
// cfg.BreakerFailures is positive.
func New(cfg types.EmbeddingConfig, log zerolog.Logger) (Provider, error) {
	var p Provider
	switch cfg.Provider {
	case "hash":
		p = NewHash(cfg.Dimensions)
	case "openai", "":
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("embedding.base_url is required for the openai provider")
		}
		p = NewOpenAI(cfg)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}

	if cfg.BreakerFailures > 0 {
		p = NewBreaker(p, uint32(cfg.BreakerFailures), log)
	}
	return p, nil
}

// ModelID names the vector space a configuration produces. It keys the
// candidate cache and is recorded on the profile, so vectors from different
// models are never compared.
func ModelID(cfg types.EmbeddingConfig) string {
	if cfg.Provider == "hash" {
		return fmt.Sprintf("hash-%d", hashDims(cfg.Dimensions))
	}
	return cfg.Model
}
