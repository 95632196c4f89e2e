// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"

	"github.com/pdiddy/paperwatch/pkg/types"
)

const defaultHashDims = 256

// Hash is an offline embedder based on feature hashing of word unigrams and
// bigrams. It needs no corpus preparation and is deterministic, so it
// serves tests and air-gapped runs.
type Hash struct {
	dims         int
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
}

// NewHash returns a hash embedder producing dims-dimensional vectors.
func NewHash(dims int) *Hash {
	return &Hash{
		dims:         hashDims(dims),
		tokenPattern: regexp.MustCompile(`[\p{L}\p{N}]+(?:['’-][\p{L}\p{N}]+)*`),
		stopwords:    defaultStopwords(),
	}
}

func hashDims(d int) int {
	if d <= 0 {
		return defaultHashDims
	}
	return d
}

// Name returns the provider identifier.
func (h *Hash) Name() string { return "hash" }

// Dimension returns the vector length.
func (h *Hash) Dimension() int { return h.dims }

// Embed returns the unit-length hashed feature vector of text.
func (h *Hash) Embed(ctx context.Context, text string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, &types.ProviderError{Provider: h.Name(), Err: err}
	}
	tokens := h.tokenize(text)
	if len(tokens) == 0 {
		return nil, &types.ProviderError{Provider: h.Name(), Err: fmt.Errorf("no tokens in input")}
	}

	vec := make([]float64, h.dims)
	for i, tok := range tokens {
		h.add(vec, tok, 1)
		if i > 0 {
			h.add(vec, tokens[i-1]+" "+tok, 0.5)
		}
	}
	return Normalize(vec), nil
}

// add hashes a feature into vec. The top bit of the hash picks the sign so
// collisions cancel rather than accumulate.
func (h *Hash) add(vec []float64, feature string, weight float64) {
	f := fnv.New64a()
	f.Write([]byte(feature))
	sum := f.Sum64()
	idx := int(sum % uint64(h.dims))
	if sum>>63 == 1 {
		weight = -weight
	}
	vec[idx] += weight
}

func (h *Hash) tokenize(text string) []string {
	raw := h.tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, t := range raw {
		if _, isStop := h.stopwords[t]; isStop {
			continue
		}
		out = append(out, t)
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on",
		"at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this",
		"that", "these", "those", "from", "into", "about", "between", "through", "we", "our", "us",
		"can", "will", "which", "than", "such", "also", "via", "using",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
