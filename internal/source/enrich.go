// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"slices"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/pdiddy/paperwatch/internal/httputil"
	"github.com/pdiddy/paperwatch/pkg/types"
)

// semanticBatchBase is the Semantic Scholar paper batch endpoint. Declared
// as a var so tests can substitute an httptest server.
var semanticBatchBase = "https://api.semanticscholar.org/graph/v1/paper/batch"

const (
	semanticBatchFields = "abstract,citationCount"
	semanticBatchSize   = 500
)

var arxivIDPattern = regexp.MustCompile(`^\d{4}\.\d{4,5}$`)

// Enricher fills missing abstracts and citation counts from the Semantic
// Scholar batch API, looking candidates up by DOI or arXiv id. A nil
// *Enricher leaves candidates untouched.
type Enricher struct {
	Client    *http.Client
	Limiter   *httputil.Limiter
	UserAgent string
	APIKey    string
	Log       zerolog.Logger
}

// EnrichSummary counts what an enrichment pass did.
type EnrichSummary struct {
	Requested int
	Found     int
	Abstracts int
	Citations int
}

// NewEnricher returns an enricher for cfg, or nil when enrichment is off.
func NewEnricher(cfg types.SourcesConfig, log zerolog.Logger) *Enricher {
	if !cfg.Enrichment.Enabled {
		return nil
	}
	return &Enricher{
		Client:    &http.Client{Timeout: cfg.Timeout},
		Limiter:   httputil.NewLimiter(cfg.RequestsPerSecond),
		UserAgent: cfg.UserAgent,
		APIKey:    cfg.SemanticScholar.APIKey,
		Log:       log,
	}
}

// Enrich returns a copy of cands with empty abstracts and unknown citation
// counts filled where Semantic Scholar knows the paper. Existing values are
// never overwritten. On a request failure the candidates enriched so far
// are returned together with the error.
func (e *Enricher) Enrich(ctx context.Context, cands []types.Candidate) ([]types.Candidate, EnrichSummary, error) {
	var sum EnrichSummary
	out := slices.Clone(cands)
	if e == nil {
		return out, sum, nil
	}

	var (
		ids []string
		idx []int
	)
	for i, c := range out {
		if c.Abstract != "" && c.Citations != nil {
			continue
		}
		if id := lookupID(c); id != "" {
			ids = append(ids, id)
			idx = append(idx, i)
		}
	}
	sum.Requested = len(ids)

	for start := 0; start < len(ids); start += semanticBatchSize {
		end := min(start+semanticBatchSize, len(ids))
		papers, err := e.batch(ctx, ids[start:end])
		if err != nil {
			return out, sum, fmt.Errorf("Semantic Scholar enrichment: %w", err)
		}
		for j, p := range papers {
			if p == nil || start+j >= end {
				continue
			}
			sum.Found++
			c := &out[idx[start+j]]
			if abs := cleanText(p.Abstract); c.Abstract == "" && abs != "" {
				c.Abstract = abs
				sum.Abstracts++
			}
			if c.Citations == nil && p.CitationCount != nil {
				n := *p.CitationCount
				c.Citations = &n
				sum.Citations++
			}
		}
	}
	e.Log.Debug().Int("requested", sum.Requested).Int("found", sum.Found).
		Int("abstracts", sum.Abstracts).Int("citations", sum.Citations).Msg("candidates enriched")
	return out, sum, nil
}

type batchPaper struct {
	Abstract      string `json:"abstract"`
	CitationCount *int   `json:"citationCount"`
}

type batchRequest struct {
	IDs []string `json:"ids"`
}

// batch looks up ids in one request. The response lists papers in request
// order with null for unknown ids. A 400 or 404 means none of the ids are
// indexed yet, which is common for new papers.
func (e *Enricher) batch(ctx context.Context, ids []string) ([]*batchPaper, error) {
	body, err := json.Marshal(batchRequest{IDs: ids})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	u := semanticBatchBase + "?" + url.Values{"fields": {semanticBatchFields}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.UserAgent != "" {
		req.Header.Set("User-Agent", e.UserAgent)
	}
	if e.APIKey != "" {
		req.Header.Set("x-api-key", e.APIKey)
	}

	resp, err := e.Limiter.Do(ctx, e.Client, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusBadRequest, http.StatusNotFound:
		e.Log.Info().Int("ids", len(ids)).Int("status", resp.StatusCode).Msg("no candidates indexed by Semantic Scholar yet")
		return nil, nil
	default:
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	var papers []*batchPaper
	if err := json.NewDecoder(resp.Body).Decode(&papers); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	return papers, nil
}

// lookupID returns the Semantic Scholar id form for c: DOI first, then the
// arXiv id from an arxiv.org URL or an arXiv-tagged identifier.
func lookupID(c types.Candidate) string {
	if doi := strings.TrimSpace(c.DOI); doi != "" {
		return "DOI:" + doi
	}
	if strings.Contains(c.URL, "arxiv.org/") {
		if id := extractArxivID(c.URL); id != "" {
			return "ARXIV:" + id
		}
	}
	if slices.Contains(c.Sources, "arxiv") && arxivIDPattern.MatchString(c.Identifier) {
		return "ARXIV:" + c.Identifier
	}
	return ""
}
