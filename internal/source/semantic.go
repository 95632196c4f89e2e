// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/pdiddy/paperwatch/internal/httputil"
	"github.com/pdiddy/paperwatch/pkg/types"
)

// semanticAPIBase is the Semantic Scholar bulk search endpoint. Declared
// as a var so tests can substitute an httptest server.
var semanticAPIBase = "https://api.semanticscholar.org/graph/v1/paper/search/bulk"

const (
	semanticFields         = "title,abstract,authors,externalIds,venue,publicationDate,year,citationCount,url"
	defaultSemanticResults = 100
)

// preprintVenues are venue names Semantic Scholar uses for preprint servers.
var preprintVenues = []string{"arxiv", "biorxiv", "medrxiv", "ssrn", "research square"}

// SemanticScholar searches recent papers with citation counts.
type SemanticScholar struct {
	Client    *http.Client
	Limiter   *httputil.Limiter
	UserAgent string
	Config    types.SemanticScholarConfig
}

// Name returns the source identifier.
func (s *SemanticScholar) Name() string { return "semantic_scholar" }

// Fetch returns papers matching the configured query published in window.
func (s *SemanticScholar) Fetch(ctx context.Context, window Window) ([]types.Candidate, error) {
	cands, err := s.fetch(ctx, window)
	if err != nil {
		return nil, &types.SourceError{Source: s.Name(), Err: err}
	}
	return cands, nil
}

func (s *SemanticScholar) fetch(ctx context.Context, window Window) ([]types.Candidate, error) {
	if strings.TrimSpace(s.Config.Query) == "" {
		return nil, fmt.Errorf("empty Semantic Scholar query")
	}
	limit := s.Config.MaxResults
	if limit <= 0 {
		limit = defaultSemanticResults
	}

	header := http.Header{}
	if s.Config.APIKey != "" {
		header.Set("x-api-key", s.Config.APIKey)
	}

	var (
		out   []types.Candidate
		token string
	)
	for len(out) < limit {
		params := url.Values{
			"query":                 {s.Config.Query},
			"fields":                {semanticFields},
			"publicationDateOrYear": {window.From.Format("2006-01-02") + ":" + window.To.Format("2006-01-02")},
		}
		if token != "" {
			params.Set("token", token)
		}

		resp, err := get(ctx, s.Client, s.Limiter, semanticAPIBase+"?"+params.Encode(), s.UserAgent, header)
		if err != nil {
			return nil, fmt.Errorf("Semantic Scholar API request: %w", err)
		}
		var sr semanticResponse
		err = json.NewDecoder(resp.Body).Decode(&sr)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("parsing Semantic Scholar response: %w", err)
		}

		for _, p := range sr.Data {
			if c, ok := p.toCandidate(); ok {
				out = append(out, c)
			}
			if len(out) == limit {
				break
			}
		}
		if sr.Token == "" || len(sr.Data) == 0 {
			break
		}
		token = sr.Token
	}
	return out, nil
}

// Semantic Scholar API JSON structures.
type semanticResponse struct {
	Total int             `json:"total"`
	Token string          `json:"token"`
	Data  []semanticPaper `json:"data"`
}

type semanticPaper struct {
	PaperID         string              `json:"paperId"`
	Title           string              `json:"title"`
	Abstract        string              `json:"abstract"`
	Venue           string              `json:"venue"`
	URL             string              `json:"url"`
	Year            int                 `json:"year"`
	PublicationDate string              `json:"publicationDate"`
	CitationCount   *int                `json:"citationCount"`
	Authors         []semanticAuthor    `json:"authors"`
	ExternalIDs     semanticExternalIDs `json:"externalIds"`
}

type semanticAuthor struct {
	Name string `json:"name"`
}

type semanticExternalIDs struct {
	DOI   string `json:"DOI"`
	ArXiv string `json:"ArXiv"`
}

func (p semanticPaper) toCandidate() (types.Candidate, bool) {
	title := cleanText(p.Title)
	if title == "" {
		return types.Candidate{}, false
	}
	c := types.Candidate{
		Identifier: p.PaperID,
		Title:      title,
		Abstract:   cleanText(p.Abstract),
		Published:  parseDate(p.PublicationDate),
		DOI:        strings.ToLower(p.ExternalIDs.DOI),
		URL:        p.URL,
		Citations:  p.CitationCount,
		Sources:    []string{"semantic_scholar"},
	}
	if c.Published.IsZero() && p.Year > 0 {
		c.Published = parseDate(fmt.Sprint(p.Year))
		c.YearOnly = true
	}
	for _, a := range p.Authors {
		if name := cleanText(a.Name); name != "" {
			c.Authors = append(c.Authors, name)
		}
	}

	venue := cleanText(p.Venue)
	c.Preprint = venue == "" || isPreprintVenue(venue)
	if !c.Preprint {
		c.Venue = venue
	}
	return c, true
}

func isPreprintVenue(v string) bool {
	v = strings.ToLower(v)
	for _, p := range preprintVenues {
		if strings.Contains(v, p) {
			return true
		}
	}
	return false
}
