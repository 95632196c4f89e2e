// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package metrics

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_WriteFile(t *testing.T) {
	r := NewRun()
	r.Candidates.WithLabelValues("fetched").Set(42)
	r.SourceErrors.WithLabelValues("arxiv").Inc()
	r.Recommendations.Set(20)

	path := filepath.Join(t.TempDir(), "paperwatch.prom")
	require.NoError(t, r.WriteFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, `paperwatch_candidates{stage="fetched"} 42`)
	assert.Contains(t, out, `paperwatch_source_errors_total{source="arxiv"} 1`)
	assert.Contains(t, out, "paperwatch_recommendations 20")
}

func TestRun_IndependentRegistries(t *testing.T) {
	a, b := NewRun(), NewRun()
	a.ProfileItems.Set(5)
	assert.Equal(t, 5.0, testutil.ToFloat64(a.ProfileItems))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.ProfileItems))
}
