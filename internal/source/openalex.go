// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/pdiddy/paperwatch/internal/httputil"
	"github.com/pdiddy/paperwatch/pkg/types"
)

// openAlexWorksBase is the OpenAlex Works endpoint. Declared as a var so
// tests can substitute an httptest server.
var openAlexWorksBase = "https://api.openalex.org/works"

const (
	defaultOpenAlexResults = 200
	openAlexMaxPerPage     = 200
)

// OpenAlex searches recent works. It is the main source of venue names and
// citation counts.
type OpenAlex struct {
	Client    *http.Client
	Limiter   *httputil.Limiter
	UserAgent string
	Config    types.OpenAlexConfig
}

// Name returns the source identifier.
func (o *OpenAlex) Name() string { return "openalex" }

// Fetch returns works matching the configured query published in window.
func (o *OpenAlex) Fetch(ctx context.Context, window Window) ([]types.Candidate, error) {
	cands, err := o.fetch(ctx, window)
	if err != nil {
		return nil, &types.SourceError{Source: o.Name(), Err: err}
	}
	return cands, nil
}

func (o *OpenAlex) fetch(ctx context.Context, window Window) ([]types.Candidate, error) {
	if strings.TrimSpace(o.Config.Query) == "" {
		return nil, fmt.Errorf("empty OpenAlex query")
	}
	limit := o.Config.MaxResults
	if limit <= 0 {
		limit = defaultOpenAlexResults
	}
	perPage := min(limit, openAlexMaxPerPage)

	var out []types.Candidate
	for page := 1; len(out) < limit; page++ {
		params := url.Values{
			"search":   {o.Config.Query},
			"filter":   {"from_publication_date:" + window.From.Format("2006-01-02") + ",to_publication_date:" + window.To.Format("2006-01-02")},
			"sort":     {"publication_date:desc"},
			"per_page": {strconv.Itoa(perPage)},
			"page":     {strconv.Itoa(page)},
		}
		if o.Config.Email != "" {
			params.Set("mailto", o.Config.Email)
		}

		resp, err := get(ctx, o.Client, o.Limiter, openAlexWorksBase+"?"+params.Encode(), o.UserAgent, nil)
		if err != nil {
			return nil, fmt.Errorf("OpenAlex API request: %w", err)
		}
		var oar openAlexResponse
		err = json.NewDecoder(resp.Body).Decode(&oar)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("parsing OpenAlex response: %w", err)
		}

		for _, w := range oar.Results {
			if c, ok := w.toCandidate(); ok {
				out = append(out, c)
			}
			if len(out) == limit {
				break
			}
		}
		if len(oar.Results) < perPage {
			break
		}
	}
	return out, nil
}

// reconstructAbstract converts OpenAlex's abstract_inverted_index back to
// plain text. The inverted index maps each word to a list of positions
// where that word appears.
func reconstructAbstract(invertedIndex map[string][]int) string {
	if len(invertedIndex) == 0 {
		return ""
	}

	type posWord struct {
		pos  int
		word string
	}
	var pairs []posWord
	for word, positions := range invertedIndex {
		for _, pos := range positions {
			pairs = append(pairs, posWord{pos: pos, word: word})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].pos < pairs[j].pos
	})

	words := make([]string, len(pairs))
	for i, p := range pairs {
		words[i] = p.word
	}
	return strings.Join(words, " ")
}

// OpenAlex API JSON structures.
type openAlexResponse struct {
	Results []openAlexWork `json:"results"`
}

type openAlexWork struct {
	ID                    string               `json:"id"`
	Title                 string               `json:"title"`
	DOI                   string               `json:"doi"`
	Type                  string               `json:"type"`
	PublicationDate       string               `json:"publication_date"`
	CitedByCount          *int                 `json:"cited_by_count"`
	Authorships           []openAlexAuthorship `json:"authorships"`
	AbstractInvertedIndex map[string][]int     `json:"abstract_inverted_index"`
	PrimaryLocation       *openAlexLocation    `json:"primary_location"`
}

type openAlexAuthorship struct {
	Author struct {
		DisplayName string `json:"display_name"`
	} `json:"author"`
}

type openAlexLocation struct {
	LandingPageURL string `json:"landing_page_url"`
	Source         *struct {
		DisplayName string `json:"display_name"`
		Type        string `json:"type"`
	} `json:"source"`
}

func (w openAlexWork) toCandidate() (types.Candidate, bool) {
	title := cleanText(w.Title)
	if title == "" {
		return types.Candidate{}, false
	}
	doi := strings.ToLower(strings.TrimPrefix(w.DOI, "https://doi.org/"))
	c := types.Candidate{
		Identifier: strings.TrimPrefix(w.ID, "https://openalex.org/"),
		Title:      title,
		Abstract:   reconstructAbstract(w.AbstractInvertedIndex),
		Published:  parseDate(w.PublicationDate),
		DOI:        doi,
		Citations:  w.CitedByCount,
		Sources:    []string{"openalex"},
		Preprint:   w.Type == "preprint",
	}
	for _, a := range w.Authorships {
		if name := cleanText(a.Author.DisplayName); name != "" {
			c.Authors = append(c.Authors, name)
		}
	}
	if loc := w.PrimaryLocation; loc != nil {
		c.URL = loc.LandingPageURL
		if loc.Source != nil {
			if loc.Source.Type == "repository" {
				c.Preprint = true
			} else {
				c.Venue = cleanText(loc.Source.DisplayName)
			}
		}
	}
	if c.URL == "" && doi != "" {
		c.URL = "https://doi.org/" + doi
	}
	return c, true
}
