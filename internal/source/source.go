// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package source fetches recent papers from external APIs and normalises
// them into types.Candidate.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pdiddy/paperwatch/internal/httputil"
	"github.com/pdiddy/paperwatch/pkg/types"
)

// Window is the publication date range a fetch covers.
type Window struct {
	From time.Time
	To   time.Time
}

// WindowEnding returns the window of days days ending at now.
func WindowEnding(now time.Time, days int) Window {
	return Window{From: now.AddDate(0, 0, -days), To: now}
}

// Contains reports whether t falls in the window, inclusive at both ends.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.From) && !t.After(w.To)
}

// Source fetches candidates from one API. Implementations return
// *types.SourceError on failure.
type Source interface {
	Name() string
	Fetch(ctx context.Context, window Window) ([]types.Candidate, error)
}

// Result holds the merged output of every source.
type Result struct {
	Candidates []types.Candidate

	// Counts maps source name to the number of candidates it returned.
	Counts map[string]int

	// Errors lists failed sources, sorted by name.
	Errors []*types.SourceError
}

// FetchAll queries every source concurrently and joins the results before
// returning. A failing source is recorded in Result.Errors and the others
// continue. Candidates are returned grouped by source in the order sources
// were given, so the result does not depend on completion order.
func FetchAll(ctx context.Context, sources []Source, window Window, log zerolog.Logger, w io.Writer) Result {
	type sourceResult struct {
		idx   int
		cands []types.Candidate
		err   error
	}

	ch := make(chan sourceResult, len(sources))
	var wg sync.WaitGroup
	for i, s := range sources {
		wg.Add(1)
		go func(i int, s Source) {
			defer wg.Done()
			cands, err := s.Fetch(ctx, window)
			ch <- sourceResult{idx: i, cands: cands, err: err}
		}(i, s)
	}

	go func() {
		wg.Wait()
		close(ch)
	}()

	perSource := make([][]types.Candidate, len(sources))
	res := Result{Counts: make(map[string]int, len(sources))}
	for sr := range ch {
		name := sources[sr.idx].Name()
		if sr.err != nil {
			var se *types.SourceError
			if !errors.As(sr.err, &se) {
				se = &types.SourceError{Source: name, Err: sr.err}
			}
			res.Errors = append(res.Errors, se)
			log.Warn().Err(se.Err).Str("source", name).Msg("source failed")
			fmt.Fprintf(w, "warning: source %s failed: %v\n", name, se.Err)
			continue
		}
		perSource[sr.idx] = sr.cands
		res.Counts[name] = len(sr.cands)
		log.Info().Str("source", name).Int("candidates", len(sr.cands)).Msg("source fetched")
	}

	for _, cands := range perSource {
		res.Candidates = append(res.Candidates, cands...)
	}
	sort.Slice(res.Errors, func(i, j int) bool { return res.Errors[i].Source < res.Errors[j].Source })
	return res
}

// FromConfig builds the enabled sources. All share one HTTP client; each
// gets its own rate limiter.
func FromConfig(cfg types.SourcesConfig) []Source {
	client := &http.Client{Timeout: cfg.Timeout}
	limiter := func() *httputil.Limiter { return httputil.NewLimiter(cfg.RequestsPerSecond) }

	var out []Source
	if cfg.Arxiv.Enabled {
		out = append(out, &Arxiv{Client: client, Limiter: limiter(), UserAgent: cfg.UserAgent, Config: cfg.Arxiv})
	}
	if cfg.Biorxiv.Enabled {
		out = append(out, &PreprintServer{Server: "biorxiv", Client: client, Limiter: limiter(), UserAgent: cfg.UserAgent, Config: cfg.Biorxiv})
	}
	if cfg.Medrxiv.Enabled {
		out = append(out, &PreprintServer{Server: "medrxiv", Client: client, Limiter: limiter(), UserAgent: cfg.UserAgent, Config: cfg.Medrxiv})
	}
	if cfg.OpenAlex.Enabled {
		out = append(out, &OpenAlex{Client: client, Limiter: limiter(), UserAgent: cfg.UserAgent, Config: cfg.OpenAlex})
	}
	if cfg.SemanticScholar.Enabled {
		out = append(out, &SemanticScholar{Client: client, Limiter: limiter(), UserAgent: cfg.UserAgent, Config: cfg.SemanticScholar})
	}
	return out
}

// get issues a rate-limited GET and checks for HTTP 200.
func get(ctx context.Context, client *http.Client, limiter *httputil.Limiter, url, userAgent string, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}

	resp, err := limiter.Do(ctx, client, req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return resp, nil
}

// cleanText collapses runs of whitespace, including the line breaks APIs
// leave in titles and abstracts.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func parseDate(s string) time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02", "2006-01", "2006"} {
		if t, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
