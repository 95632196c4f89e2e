// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package library

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/paperwatch/pkg/types"
)

// CSLItem is a bibliographic entry in CSL (Citation Style Language) form,
// the export format of Zotero and most other reference managers. Only the
// fields the pipeline uses are decoded.
type CSLItem struct {
	ID             string    `yaml:"id"`
	Type           string    `yaml:"type"`
	Title          string    `yaml:"title"`
	Author         []CSLName `yaml:"author,omitempty"`
	Abstract       string    `yaml:"abstract,omitempty"`
	Issued         *CSLDate  `yaml:"issued,omitempty"`
	Accessed       *CSLDate  `yaml:"accessed,omitempty"`
	DOI            string    `yaml:"DOI,omitempty"`
	ContainerTitle string    `yaml:"container-title,omitempty"`
	URL            string    `yaml:"URL,omitempty"`
	Note           string    `yaml:"note,omitempty"`
}

// CSLName is a person's name in CSL form.
type CSLName struct {
	Family  string `yaml:"family,omitempty"`
	Given   string `yaml:"given,omitempty"`
	Literal string `yaml:"literal,omitempty"`
}

// String renders the name as "Given Family".
func (n CSLName) String() string {
	if n.Literal != "" {
		return n.Literal
	}
	return strings.TrimSpace(n.Given + " " + n.Family)
}

// NewCSLDate returns the date-parts form of t, or nil for the zero time.
func NewCSLDate(t time.Time) *CSLDate {
	if t.IsZero() {
		return nil
	}
	return &CSLDate{DateParts: [][]CSLDatePart{{CSLDatePart(t.Year()), CSLDatePart(t.Month()), CSLDatePart(t.Day())}}}
}

// ParseCSLName splits "Family, Given" or "Given Family" into CSL parts.
func ParseCSLName(s string) CSLName {
	s = strings.TrimSpace(s)
	if family, given, ok := strings.Cut(s, ","); ok {
		return CSLName{Family: strings.TrimSpace(family), Given: strings.TrimSpace(given)}
	}
	if i := strings.LastIndex(s, " "); i > 0 {
		return CSLName{Family: s[i+1:], Given: strings.TrimSpace(s[:i])}
	}
	return CSLName{Literal: s}
}

// CSLDate is a CSL date using date-parts.
type CSLDate struct {
	DateParts [][]CSLDatePart `yaml:"date-parts"`
}

// CSLDatePart is one year, month or day. CSL-JSON allows numbers or numeric
// strings ("2020"); both decode, and an empty string decodes as 0.
type CSLDatePart int

// UnmarshalYAML accepts integer and numeric string scalars.
func (p *CSLDatePart) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: date part must be a number", value.Line)
	}
	s := strings.TrimSpace(value.Value)
	if s == "" {
		*p = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("line %d: invalid date part %q", value.Line, value.Value)
	}
	*p = CSLDatePart(n)
	return nil
}

// Time returns the first date in d, defaulting missing month and day to 1.
func (d *CSLDate) Time() time.Time {
	if d == nil || len(d.DateParts) == 0 || len(d.DateParts[0]) == 0 {
		return time.Time{}
	}
	p := d.DateParts[0]
	year, month, day := int(p[0]), 1, 1
	if year <= 0 {
		return time.Time{}
	}
	if len(p) > 1 && p[1] > 0 {
		month = int(p[1])
	}
	if len(p) > 2 && p[2] > 0 {
		day = int(p[2])
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

// ParseCSL decodes a CSL-JSON or CSL-YAML list into library items. JSON is
// valid YAML, so one decoder reads both. Entries without an id or title are
// rejected.
func ParseCSL(r io.Reader) ([]types.LibraryItem, error) {
	var entries []CSLItem
	if err := yaml.NewDecoder(r).Decode(&entries); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("parsing CSL: %w", err)
	}

	items := make([]types.LibraryItem, 0, len(entries))
	for i, e := range entries {
		if strings.TrimSpace(e.ID) == "" {
			return nil, fmt.Errorf("CSL entry %d has no id", i)
		}
		if strings.TrimSpace(e.Title) == "" {
			return nil, fmt.Errorf("CSL entry %s has no title", e.ID)
		}
		items = append(items, e.toLibraryItem())
	}
	return items, nil
}

func (e CSLItem) toLibraryItem() types.LibraryItem {
	it := types.LibraryItem{
		Key:      strings.TrimSpace(e.ID),
		Title:    strings.TrimSpace(e.Title),
		Abstract: strings.TrimSpace(e.Abstract),
		Venue:    strings.TrimSpace(e.ContainerTitle),
		DOI:      strings.ToLower(strings.TrimSpace(e.DOI)),
		AddedAt:  e.Accessed.Time(),
	}
	for _, a := range e.Author {
		if name := a.String(); name != "" {
			it.Authors = append(it.Authors, name)
		}
	}
	if issued := e.Issued.Time(); !issued.IsZero() {
		it.Year = issued.Year()
	}
	it.ContentHash = it.ComputeContentHash()
	return it
}
