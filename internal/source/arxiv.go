// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/pdiddy/paperwatch/internal/httputil"
	"github.com/pdiddy/paperwatch/pkg/types"
)

// arxivAPIBase is the arXiv query endpoint. Declared as a var so tests
// can substitute an httptest server.
var arxivAPIBase = "https://export.arxiv.org/api/query"

const defaultArxivResults = 200

// Arxiv lists the newest submissions in the configured categories.
type Arxiv struct {
	Client    *http.Client
	Limiter   *httputil.Limiter
	UserAgent string
	Config    types.ArxivConfig
}

// Name returns the source identifier.
func (a *Arxiv) Name() string { return "arxiv" }

// Fetch returns submissions published inside window.
func (a *Arxiv) Fetch(ctx context.Context, window Window) ([]types.Candidate, error) {
	cands, err := a.fetch(ctx, window)
	if err != nil {
		return nil, &types.SourceError{Source: a.Name(), Err: err}
	}
	return cands, nil
}

func (a *Arxiv) fetch(ctx context.Context, window Window) ([]types.Candidate, error) {
	q := buildArxivQuery(a.Config.Categories)
	if q == "" {
		return nil, fmt.Errorf("no arXiv categories configured")
	}
	maxResults := a.Config.MaxResults
	if maxResults <= 0 {
		maxResults = defaultArxivResults
	}

	params := url.Values{
		"search_query": {q},
		"sortBy":       {"submittedDate"},
		"sortOrder":    {"descending"},
		"start":        {"0"},
		"max_results":  {strconv.Itoa(maxResults)},
	}
	resp, err := get(ctx, a.Client, a.Limiter, arxivAPIBase+"?"+params.Encode(), a.UserAgent, nil)
	if err != nil {
		return nil, fmt.Errorf("arXiv API request: %w", err)
	}
	defer resp.Body.Close()

	var feed arxivFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("parsing arXiv response: %w", err)
	}

	var out []types.Candidate
	for _, e := range feed.Entries {
		c, ok := e.toCandidate()
		if !ok || !window.Contains(c.Published) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// buildArxivQuery ORs the categories, e.g. "cat:cs.LG OR cat:cs.AI".
func buildArxivQuery(categories []string) string {
	var parts []string
	for _, c := range categories {
		if c = strings.TrimSpace(c); c != "" {
			parts = append(parts, "cat:"+c)
		}
	}
	return strings.Join(parts, " OR ")
}

// arXiv Atom feed XML structures.
type arxivFeed struct {
	Entries []arxivEntry `xml:"entry"`
}

type arxivEntry struct {
	ID         string        `xml:"id"`
	Title      string        `xml:"title"`
	Summary    string        `xml:"summary"`
	Published  string        `xml:"published"`
	Authors    []arxivAuthor `xml:"author"`
	Links      []arxivLink   `xml:"link"`
	DOI        string        `xml:"http://arxiv.org/schemas/atom doi"`
	JournalRef string        `xml:"http://arxiv.org/schemas/atom journal_ref"`
}

type arxivAuthor struct {
	Name string `xml:"name"`
}

type arxivLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
	Type string `xml:"type,attr"`
}

func (e arxivEntry) toCandidate() (types.Candidate, bool) {
	id := extractArxivID(e.ID)
	title := cleanText(e.Title)
	if id == "" || title == "" {
		return types.Candidate{}, false
	}

	c := types.Candidate{
		Identifier: id,
		Title:      title,
		Abstract:   cleanText(e.Summary),
		Published:  parseDate(e.Published),
		DOI:        strings.ToLower(strings.TrimSpace(e.DOI)),
		URL:        "https://arxiv.org/abs/" + id,
		Sources:    []string{"arxiv"},
		Preprint:   true,
	}
	for _, a := range e.Authors {
		if name := cleanText(a.Name); name != "" {
			c.Authors = append(c.Authors, name)
		}
	}
	for _, l := range e.Links {
		if l.Rel == "alternate" && l.Href != "" {
			c.URL = l.Href
		}
	}
	// A journal reference means the work has appeared in a venue.
	if ref := cleanText(e.JournalRef); ref != "" {
		c.Venue = ref
		c.Preprint = false
	}
	return c, true
}

// extractArxivID pulls the arXiv ID from the entry's <id> URL
// (e.g. "http://arxiv.org/abs/2301.07041v1" -> "2301.07041").
func extractArxivID(idURL string) string {
	const prefix = "/abs/"
	idx := strings.Index(idURL, prefix)
	if idx < 0 {
		return ""
	}
	id := idURL[idx+len(prefix):]

	// Strip version suffix (e.g. "v1", "v2").
	if vIdx := strings.LastIndex(id, "v"); vIdx > 0 {
		if _, err := strconv.Atoi(id[vIdx+1:]); err == nil {
			id = id[:vIdx]
		}
	}
	return id
}
