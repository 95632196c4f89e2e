// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package dedup collapses the same work reported by several sources into
// one candidate. Matching is exact on a normalised fingerprint; there is no
// fuzzy matching, so near-duplicates with different titles stay separate.
package dedup

import (
	"sort"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/pdiddy/paperwatch/pkg/types"
)

// NormalizeTitle lowercases s, strips diacritics, and drops everything that
// is not a letter or digit, so "Déjà Vu: A Study" and "deja vu a study"
// normalise alike.
func NormalizeTitle(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	var b strings.Builder
	for _, r := range strings.ToLower(stripped) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Surname returns the normalised family name of an author written either as
// "Given Family" or "Family, Given".
func Surname(author string) string {
	author = strings.TrimSpace(author)
	if i := strings.Index(author, ","); i >= 0 {
		return NormalizeTitle(author[:i])
	}
	fields := strings.Fields(author)
	if len(fields) == 0 {
		return ""
	}
	return NormalizeTitle(fields[len(fields)-1])
}

// Key returns the fingerprint of c: normalised title, first-author surname
// and publication year joined by "|". Missing parts are left empty. A
// candidate without a usable title is keyed by its identifier instead so
// that untitled records never collapse together.
func Key(c types.Candidate) string {
	title := NormalizeTitle(c.Title)
	if title == "" {
		return "id:" + c.Identifier
	}
	var first, year string
	if len(c.Authors) > 0 {
		first = Surname(c.Authors[0])
	}
	if !c.Published.IsZero() {
		year = strconv.Itoa(c.Published.Year())
	}
	return title + "|" + first + "|" + year
}

// Dedupe merges candidates sharing a Key. The result keeps first-seen order
// and the count of records folded into others.
func Dedupe(cands []types.Candidate) ([]types.Candidate, int) {
	order := make([]string, 0, len(cands))
	groups := make(map[string][]types.Candidate, len(cands))
	for _, c := range cands {
		k := Key(c)
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], c)
	}

	out := make([]types.Candidate, 0, len(order))
	for _, k := range order {
		out = append(out, Merge(groups[k]))
	}
	return out, len(cands) - len(out)
}

// Merge folds a group of records for one work into a single candidate. The
// record with the most populated fields wins conflicting values; empty
// fields are filled from the others in decreasing richness; source tags are
// unioned; the citation count is the maximum reported. A full publication
// date from any record beats a year-only one. The merged work is a preprint
// only if every record is one.
func Merge(group []types.Candidate) types.Candidate {
	if len(group) == 1 {
		c := group[0]
		c.Sources = unionSources(c.Sources)
		return c
	}

	ranked := make([]types.Candidate, len(group))
	copy(ranked, group)
	sort.SliceStable(ranked, func(i, j int) bool {
		return richness(ranked[i]) > richness(ranked[j])
	})

	m := ranked[0]
	var (
		sources   []string
		citations = -1
		preprint  = true
	)
	for _, c := range ranked {
		fillFrom(&m, c)
		sources = append(sources, c.Sources...)
		if c.Citations != nil && *c.Citations > citations {
			citations = *c.Citations
		}
		preprint = preprint && c.Preprint
	}
	if m.YearOnly {
		for _, c := range ranked {
			if !c.YearOnly && !c.Published.IsZero() {
				m.Published = c.Published
				m.YearOnly = false
				break
			}
		}
	}
	m.Citations = nil
	if citations >= 0 {
		m.Citations = &citations
	}
	m.Sources = unionSources(sources)
	m.Preprint = preprint
	return m
}

func fillFrom(dst *types.Candidate, src types.Candidate) {
	if dst.Identifier == "" {
		dst.Identifier = src.Identifier
	}
	if dst.Title == "" {
		dst.Title = src.Title
	}
	if dst.Abstract == "" {
		dst.Abstract = src.Abstract
	}
	if len(dst.Authors) == 0 {
		dst.Authors = src.Authors
	}
	if dst.Published.IsZero() {
		dst.Published = src.Published
		dst.YearOnly = src.YearOnly
	}
	if dst.Venue == "" {
		dst.Venue = src.Venue
	}
	if dst.DOI == "" {
		dst.DOI = src.DOI
	}
	if dst.URL == "" {
		dst.URL = src.URL
	}
}

// richness counts populated fields.
func richness(c types.Candidate) int {
	n := 0
	for _, set := range []bool{
		c.Identifier != "",
		c.Title != "",
		c.Abstract != "",
		len(c.Authors) > 0,
		!c.Published.IsZero(),
		c.Venue != "",
		c.DOI != "",
		c.URL != "",
		c.Citations != nil,
	} {
		if set {
			n++
		}
	}
	return n
}

func unionSources(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// ExcludeLibrary drops candidates already in the library, matched by DOI
// or normalised title. It returns the survivors and how many were dropped.
func ExcludeLibrary(cands []types.Candidate, items []types.LibraryItem) ([]types.Candidate, int) {
	dois := make(map[string]struct{}, len(items))
	titles := make(map[string]struct{}, len(items))
	for _, it := range items {
		if d := normalizeDOI(it.DOI); d != "" {
			dois[d] = struct{}{}
		}
		if t := NormalizeTitle(it.Title); t != "" {
			titles[t] = struct{}{}
		}
	}

	out := make([]types.Candidate, 0, len(cands))
	for _, c := range cands {
		if _, ok := dois[normalizeDOI(c.DOI)]; ok && c.DOI != "" {
			continue
		}
		if _, ok := titles[NormalizeTitle(c.Title)]; ok {
			continue
		}
		out = append(out, c)
	}
	return out, len(cands) - len(out)
}

func normalizeDOI(doi string) string {
	d := strings.ToLower(strings.TrimSpace(doi))
	for _, prefix := range []string{"https://doi.org/", "http://doi.org/", "http://dx.doi.org/", "https://dx.doi.org/", "doi:"} {
		d = strings.TrimPrefix(d, prefix)
	}
	return d
}
