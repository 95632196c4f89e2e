// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paperwatch/pkg/types"
)

func biorxivRecordJSON(doi, version string) string {
	return fmt.Sprintf(`{"doi":%q,"title":"Cell atlas %s","authors":"Smith, J.; Doe, A.;","date":"2026-10-15","version":%q,"category":"genomics","abstract":"An atlas.","published":"NA"}`,
		doi, doi, version)
}

func TestPreprintServer_FetchPages(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		require.Len(t, parts, 4)
		assert.Equal(t, "medrxiv", parts[0])
		assert.Equal(t, "2026-10-12", parts[1])
		assert.Equal(t, "2026-10-19", parts[2])

		var records []string
		switch parts[3] {
		case "0":
			for i := range biorxivPageSize {
				records = append(records, biorxivRecordJSON(fmt.Sprintf("10.1101/%04d", i), "1"))
			}
			// A second version of the first record.
			records[1] = biorxivRecordJSON("10.1101/0000", "2")
		case "100":
			records = append(records, biorxivRecordJSON("10.1101/9999", "x"))
		}
		fmt.Fprintf(w, `{"messages":[{"status":"ok"}],"collection":[%s]}`, strings.Join(records, ","))
	}))
	defer ts.Close()

	old := biorxivAPIBase
	biorxivAPIBase = ts.URL
	defer func() { biorxivAPIBase = old }()

	p := &PreprintServer{Server: "medrxiv", Client: ts.Client(), Config: types.PreprintServerConfig{Enabled: true, MaxResults: 500}}
	cands, err := p.Fetch(context.Background(), testWindow)
	require.NoError(t, err)

	assert.Equal(t, int32(2), calls.Load())
	require.Len(t, cands, 100, "99 unique on page one plus one on page two")

	first := cands[0]
	assert.Equal(t, "10.1101/0000", first.Identifier)
	assert.Equal(t, []string{"Smith, J.", "Doe, A."}, first.Authors)
	assert.Equal(t, "https://www.medrxiv.org/content/10.1101/0000v1", first.URL)
	assert.True(t, first.Preprint)
	assert.Equal(t, []string{"medrxiv"}, first.Sources)

	last := cands[len(cands)-1]
	assert.Equal(t, "https://www.medrxiv.org/content/10.1101/9999v1", last.URL)
}

func TestPreprintServer_MaxResults(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		var records []string
		for i := range biorxivPageSize {
			records = append(records, biorxivRecordJSON(fmt.Sprintf("10.1101/%04d", i), "1"))
		}
		fmt.Fprintf(w, `{"collection":[%s]}`, strings.Join(records, ","))
	}))
	defer ts.Close()

	old := biorxivAPIBase
	biorxivAPIBase = ts.URL
	defer func() { biorxivAPIBase = old }()

	p := &PreprintServer{Server: "biorxiv", Client: ts.Client(), Config: types.PreprintServerConfig{MaxResults: 10}}
	cands, err := p.Fetch(context.Background(), testWindow)
	require.NoError(t, err)
	assert.Len(t, cands, 10)
}

func TestPreprintServer_BadJSON(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"collection":`)
	}))
	defer ts.Close()

	old := biorxivAPIBase
	biorxivAPIBase = ts.URL
	defer func() { biorxivAPIBase = old }()

	_, err := (&PreprintServer{Server: "biorxiv", Client: ts.Client()}).Fetch(context.Background(), testWindow)
	assert.ErrorContains(t, err, "parsing biorxiv response")
}
