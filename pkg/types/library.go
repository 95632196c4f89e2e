// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the paperwatch pipeline:
// library items and the profile derived from them, candidates and their
// scores, configuration, and the error taxonomy.
package types

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// LibraryItem is one entry of the user's reference library together with
// its cached embedding.
type LibraryItem struct {
	// Key is the stable identifier from the reference manager.
	Key string `json:"key" yaml:"key"`

	Title    string   `json:"title" yaml:"title"`
	Abstract string   `json:"abstract,omitempty" yaml:"abstract,omitempty"`
	Authors  []string `json:"authors,omitempty" yaml:"authors,omitempty"`
	Venue    string   `json:"venue,omitempty" yaml:"venue,omitempty"`
	Year     int      `json:"year,omitempty" yaml:"year,omitempty"`
	DOI      string   `json:"doi,omitempty" yaml:"doi,omitempty"`

	// AddedAt is when the item entered the library. Used for optional
	// recency-of-addition weighting of the profile.
	AddedAt time.Time `json:"added_at,omitempty" yaml:"added_at,omitempty"`

	// ContentHash is derived from the embeddable content and metadata.
	ContentHash string `json:"content_hash" yaml:"content_hash"`

	// Embedding is nil until the item has been embedded once.
	Embedding []float64 `json:"-" yaml:"-"`

	// EmbeddedHash is the ContentHash the current Embedding was computed from.
	EmbeddedHash string `json:"embedded_hash,omitempty" yaml:"embedded_hash,omitempty"`
}

// Stale reports whether the item needs a fresh embedding.
func (it LibraryItem) Stale() bool {
	return len(it.Embedding) == 0 || it.ContentHash != it.EmbeddedHash
}

// EmbeddingText returns the text sent to the embedding provider.
func (it LibraryItem) EmbeddingText() string {
	return EmbeddingText(it.Title, it.Abstract)
}

// ComputeContentHash hashes title, abstract and metadata. A change in any of
// them marks the item's embedding as stale.
func (it LibraryItem) ComputeContentHash() string {
	return HashContent(
		it.Title,
		it.Abstract,
		strings.Join(it.Authors, ";"),
		it.Venue,
		strconv.Itoa(it.Year),
		it.DOI,
	)
}

// HashContent returns the hex SHA-256 of the parts. Parts are separated by a
// unit separator so that ("ab","c") and ("a","bc") hash differently.
func HashContent(parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{0x1f})
		}
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// EmbeddingText joins a title and abstract the same way for library items
// and candidates so both land in the same embedding space.
func EmbeddingText(title, abstract string) string {
	title = strings.TrimSpace(title)
	abstract = strings.TrimSpace(abstract)
	if abstract == "" {
		return title
	}
	return title + "\n\n" + abstract
}
