// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"strings"
)

// ProviderError reports a failed embedding call. The affected item or
// candidate is skipped; the run continues.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("embedding provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// SourceError reports a failed candidate source. That source's candidates
// are excluded for this run; the other sources continue.
type SourceError struct {
	Source string
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source %s: %v", e.Source, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// EmptyProfileError means no library item has a usable embedding, so nothing
// can be scored. It is fatal.
type EmptyProfileError struct {
	Items  int
	Failed int
}

func (e *EmptyProfileError) Error() string {
	return fmt.Sprintf("no usable embeddings to build a profile (%d items, %d embedding failures)", e.Items, e.Failed)
}

// ConfigError reports invalid configuration. It is raised at load time,
// before any I/O.
type ConfigError struct {
	Problems []string
}

func (e *ConfigError) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}
