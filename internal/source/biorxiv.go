// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/pdiddy/paperwatch/internal/httputil"
	"github.com/pdiddy/paperwatch/pkg/types"
)

// biorxivAPIBase is the details endpoint shared by bioRxiv and medRxiv.
// Declared as a var so tests can substitute an httptest server.
var biorxivAPIBase = "https://api.biorxiv.org/details"

const (
	defaultPreprintResults = 300
	// biorxivPageSize is fixed by the API.
	biorxivPageSize = 100
)

// PreprintServer fetches new preprints from bioRxiv or medRxiv.
type PreprintServer struct {
	// Server is "biorxiv" or "medrxiv".
	Server    string
	Client    *http.Client
	Limiter   *httputil.Limiter
	UserAgent string
	Config    types.PreprintServerConfig
}

// Name returns the server name.
func (p *PreprintServer) Name() string { return p.Server }

// Fetch pages through the details API for the window's date interval.
func (p *PreprintServer) Fetch(ctx context.Context, window Window) ([]types.Candidate, error) {
	cands, err := p.fetch(ctx, window)
	if err != nil {
		return nil, &types.SourceError{Source: p.Name(), Err: err}
	}
	return cands, nil
}

func (p *PreprintServer) fetch(ctx context.Context, window Window) ([]types.Candidate, error) {
	limit := p.Config.MaxResults
	if limit <= 0 {
		limit = defaultPreprintResults
	}
	from := window.From.Format("2006-01-02")
	to := window.To.Format("2006-01-02")

	var out []types.Candidate
	seen := make(map[string]bool)
	for cursor := 0; len(out) < limit; cursor += biorxivPageSize {
		url := fmt.Sprintf("%s/%s/%s/%s/%d", biorxivAPIBase, p.Server, from, to, cursor)
		page, err := p.page(ctx, url)
		if err != nil {
			return nil, err
		}
		if len(page.Collection) == 0 {
			break
		}
		for _, r := range page.Collection {
			// The API lists every version; keep the first seen per DOI.
			if r.DOI == "" || seen[r.DOI] {
				continue
			}
			seen[r.DOI] = true
			out = append(out, r.toCandidate(p.Server))
			if len(out) == limit {
				break
			}
		}
		if len(page.Collection) < biorxivPageSize {
			break
		}
	}
	return out, nil
}

func (p *PreprintServer) page(ctx context.Context, url string) (biorxivResponse, error) {
	var page biorxivResponse
	resp, err := get(ctx, p.Client, p.Limiter, url, p.UserAgent, nil)
	if err != nil {
		return page, fmt.Errorf("%s API request: %w", p.Server, err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return page, fmt.Errorf("parsing %s response: %w", p.Server, err)
	}
	return page, nil
}

// bioRxiv API JSON structures.
type biorxivResponse struct {
	Messages   []biorxivMessage `json:"messages"`
	Collection []biorxivRecord  `json:"collection"`
}

type biorxivMessage struct {
	Status string `json:"status"`
}

type biorxivRecord struct {
	DOI       string `json:"doi"`
	Title     string `json:"title"`
	Authors   string `json:"authors"`
	Date      string `json:"date"`
	Version   string `json:"version"`
	Category  string `json:"category"`
	Abstract  string `json:"abstract"`
	Published string `json:"published"`
}

func (r biorxivRecord) toCandidate(server string) types.Candidate {
	c := types.Candidate{
		Identifier: r.DOI,
		Title:      cleanText(r.Title),
		Abstract:   cleanText(r.Abstract),
		Published:  parseDate(r.Date),
		DOI:        strings.ToLower(r.DOI),
		URL:        fmt.Sprintf("https://www.%s.org/content/%sv%s", server, r.DOI, versionOr1(r.Version)),
		Sources:    []string{server},
		Preprint:   true,
	}
	for _, a := range strings.Split(r.Authors, ";") {
		if a = cleanText(a); a != "" {
			c.Authors = append(c.Authors, a)
		}
	}
	return c
}

func versionOr1(v string) string {
	if _, err := strconv.Atoi(v); err != nil {
		return "1"
	}
	return v
}
