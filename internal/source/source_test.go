// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paperwatch/internal/httputil"
	"github.com/pdiddy/paperwatch/pkg/types"
)

func init() {
	httputil.RetryBaseDelay = time.Millisecond
}

// --- mock source ---

type mockSource struct {
	name  string
	cands []types.Candidate
	err   error
	delay time.Duration
}

func (m *mockSource) Name() string { return m.name }

func (m *mockSource) Fetch(ctx context.Context, _ Window) ([]types.Candidate, error) {
	select {
	case <-time.After(m.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return m.cands, m.err
}

var testWindow = Window{
	From: time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC),
	To:   time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC),
}

func TestFetchAll_JoinsInSourceOrder(t *testing.T) {
	slow := &mockSource{name: "slow", delay: 20 * time.Millisecond, cands: []types.Candidate{{Identifier: "s1"}, {Identifier: "s2"}}}
	fast := &mockSource{name: "fast", cands: []types.Candidate{{Identifier: "f1"}}}

	var buf bytes.Buffer
	res := FetchAll(context.Background(), []Source{slow, fast}, testWindow, zerolog.Nop(), &buf)

	ids := make([]string, len(res.Candidates))
	for i, c := range res.Candidates {
		ids[i] = c.Identifier
	}
	assert.Equal(t, []string{"s1", "s2", "f1"}, ids)
	assert.Equal(t, map[string]int{"slow": 2, "fast": 1}, res.Counts)
	assert.Empty(t, res.Errors)
	assert.Empty(t, buf.String())
}

func TestFetchAll_FailingSourceRecorded(t *testing.T) {
	ok := &mockSource{name: "ok", cands: []types.Candidate{{Identifier: "a"}}}
	bad := &mockSource{name: "bad", err: &types.SourceError{Source: "bad", Err: errors.New("HTTP 500")}}
	raw := &mockSource{name: "raw", err: errors.New("connection refused")}

	var buf bytes.Buffer
	res := FetchAll(context.Background(), []Source{ok, bad, raw}, testWindow, zerolog.Nop(), &buf)

	require.Len(t, res.Candidates, 1)
	require.Len(t, res.Errors, 2)
	assert.Equal(t, "bad", res.Errors[0].Source)
	assert.Equal(t, "raw", res.Errors[1].Source)
	assert.Contains(t, buf.String(), "warning: source bad failed: HTTP 500")
	assert.Contains(t, buf.String(), "warning: source raw failed")
}

func TestFetchAll_NoSources(t *testing.T) {
	res := FetchAll(context.Background(), nil, testWindow, zerolog.Nop(), &bytes.Buffer{})
	assert.Empty(t, res.Candidates)
	assert.Empty(t, res.Errors)
}

func TestWindow(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	w := WindowEnding(now, 7)
	assert.Equal(t, time.Date(2026, 10, 12, 12, 0, 0, 0, time.UTC), w.From)
	assert.True(t, w.Contains(w.From))
	assert.True(t, w.Contains(w.To))
	assert.False(t, w.Contains(w.From.Add(-time.Second)))
	assert.False(t, w.Contains(time.Time{}))
}

func TestFromConfig(t *testing.T) {
	cfg := types.DefaultConfig().Sources
	cfg.Biorxiv.Enabled = true
	cfg.OpenAlex = types.OpenAlexConfig{Enabled: true, Query: "ml"}
	cfg.SemanticScholar = types.SemanticScholarConfig{Enabled: true, Query: "ml"}

	var names []string
	for _, s := range FromConfig(cfg) {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{"arxiv", "biorxiv", "openalex", "semantic_scholar"}, names)
}

func TestParseDate(t *testing.T) {
	assert.Equal(t, time.Date(2026, 10, 1, 9, 30, 0, 0, time.UTC), parseDate("2026-10-01T09:30:00Z"))
	assert.Equal(t, time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC), parseDate("2026-10-01"))
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), parseDate("2026"))
	assert.True(t, parseDate("NA").IsZero())
}
