// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package output writes ranked recommendations. Sinks see only the final
// list; nothing is written when a run fails before ranking completes.
package output

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/paperwatch/internal/library"
	"github.com/pdiddy/paperwatch/pkg/types"
)

// Sink receives the ranked list of one run.
type Sink interface {
	Write(ctx context.Context, items []types.ScoredCandidate, runAt time.Time) error
}

// New returns the sink for a format name: "table", "json" or "csl".
func New(format string, w io.Writer) (Sink, error) {
	switch format {
	case "", "table":
		return &TableSink{W: w}, nil
	case "json":
		return &JSONSink{W: w}, nil
	case "csl":
		return &CSLSink{W: w}, nil
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
}

// JSONSink writes the list as an indented JSON document.
type JSONSink struct {
	W io.Writer
}

type jsonReport struct {
	GeneratedAt time.Time               `json:"generated_at"`
	Count       int                     `json:"count"`
	Items       []types.ScoredCandidate `json:"items"`
}

// Write encodes items with the run time.
func (s *JSONSink) Write(_ context.Context, items []types.ScoredCandidate, runAt time.Time) error {
	if items == nil {
		items = []types.ScoredCandidate{}
	}
	enc := json.NewEncoder(s.W)
	enc.SetIndent("", "  ")
	if err := enc.Encode(jsonReport{GeneratedAt: runAt.UTC(), Count: len(items), Items: items}); err != nil {
		return fmt.Errorf("writing JSON: %w", err)
	}
	return nil
}

// TableSink writes a human-readable table.
type TableSink struct {
	W io.Writer
}

// Write prints one row per recommendation.
func (s *TableSink) Write(_ context.Context, items []types.ScoredCandidate, runAt time.Time) error {
	if len(items) == 0 {
		fmt.Fprintln(s.W, "No recommendations.")
		return nil
	}

	fmt.Fprintf(s.W, "%-4s  %-5s  %-9s  %-56s  %-20s  %-10s  %s\n",
		"Rank", "Score", "Label", "Title", "Authors", "Published", "Sources")
	fmt.Fprintln(s.W, strings.Repeat("-", 124))

	for i, c := range items {
		published := ""
		if !c.Published.IsZero() {
			published = c.Published.Format("2006-01-02")
		}
		title := truncate(c.Title, 56)
		if c.Preprint {
			title = truncate("[pre] "+c.Title, 56)
		}
		fmt.Fprintf(s.W, "%-4d  %-5.3f  %-9s  %-56s  %-20s  %-10s  %s\n",
			i+1, c.Score, c.Label, title, formatAuthors(c.Authors), published, strings.Join(c.Sources, ","))
	}
	_, err := fmt.Fprintf(s.W, "\n%d recommendations (%s)\n", len(items), runAt.UTC().Format(time.RFC3339))
	return err
}

func formatAuthors(authors []string) string {
	switch len(authors) {
	case 0:
		return ""
	case 1:
		return truncate(authors[0], 20)
	default:
		return truncate(authors[0], 14) + " et al."
	}
}

// truncate shortens s to max runes.
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}

// CSLSink writes the list as CSL-YAML for import into a reference manager.
type CSLSink struct {
	W io.Writer
}

// Write encodes items as CSL entries. The note records score and label.
func (s *CSLSink) Write(_ context.Context, items []types.ScoredCandidate, runAt time.Time) error {
	entries := make([]library.CSLItem, 0, len(items))
	for _, c := range items {
		typ := "article-journal"
		if c.Preprint {
			typ = "article"
		}
		e := library.CSLItem{
			ID:             c.Identifier,
			Type:           typ,
			Title:          c.Title,
			Abstract:       c.Abstract,
			Issued:         library.NewCSLDate(c.Published),
			Accessed:       library.NewCSLDate(runAt.UTC()),
			DOI:            c.DOI,
			ContainerTitle: c.Venue,
			URL:            c.URL,
			Note:           fmt.Sprintf("paperwatch score %.3f (%s)", c.Score, c.Label),
		}
		for _, a := range c.Authors {
			e.Author = append(e.Author, library.ParseCSLName(a))
		}
		entries = append(entries, e)
	}

	enc := yaml.NewEncoder(s.W)
	enc.SetIndent(2)
	if err := enc.Encode(entries); err != nil {
		return fmt.Errorf("writing CSL: %w", err)
	}
	return enc.Close()
}
