// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// Profile is the aggregate interest vector of the library. It is passed to
// the scorer as a value; nothing holds a global "current profile".
type Profile struct {
	// Vector is the L2-normalised (weighted) mean of current item embeddings.
	Vector []float64 `json:"vector" yaml:"vector"`

	// Model identifies the embedding model the vector was built with.
	Model string `json:"model" yaml:"model"`

	// ItemCount is the number of embeddings aggregated into Vector.
	ItemCount int `json:"item_count" yaml:"item_count"`

	GeneratedAt time.Time    `json:"generated_at" yaml:"generated_at"`
	TopAuthors  []CountEntry `json:"top_authors,omitempty" yaml:"top_authors,omitempty"`
	TopVenues   []CountEntry `json:"top_venues,omitempty" yaml:"top_venues,omitempty"`
}

// CountEntry is a name with its number of occurrences in the library.
type CountEntry struct {
	Name  string `json:"name" yaml:"name"`
	Count int    `json:"count" yaml:"count"`
}
