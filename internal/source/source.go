// Package source turns raw tabular downloads into normalized mortality records.
//
// Each normalizer is a pure function of its input table: it binds the table
// header against a declared Schema, filters rows to the source's year window
// and scope, and counts every dropped row by reason instead of failing.
// Only a header that lacks a required column is an error.
package source

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/couchcryptid/mortality-etl/internal/domain"
)

// Table is a raw tabular input: one header row and the data rows.
type Table struct {
	Header []string
	Rows   [][]string
}

// Len returns the number of data rows.
func (t Table) Len() int { return len(t.Rows) }

// Window is an inclusive year range. A zero To means open-ended.
type Window struct {
	From int `yaml:"from"`
	To   int `yaml:"to"`
}

// Contains reports whether year falls inside the window.
func (w Window) Contains(year int) bool {
	if year < w.From {
		return false
	}
	return w.To == 0 || year <= w.To
}

func (w Window) String() string {
	if w.To == 0 {
		return fmt.Sprintf("%d-present", w.From)
	}
	return fmt.Sprintf("%d-%d", w.From, w.To)
}

// Drop reasons.
const (
	DropOutOfScope     = "out_of_scope"
	DropOutOfWindow    = "out_of_window"
	DropNationalLabel  = "national_label"
	DropBadNumber      = "bad_number"
	DropBadDate        = "bad_date"
	DropBadWeek        = "bad_week"
	DropNoJurisdiction = "no_jurisdiction"
	DropNonPositive    = "non_positive_deaths"
)

// Result is the outcome of normalizing one table.
type Result struct {
	Batch   domain.SourceBatch
	Read    int
	Dropped map[string]int
}

func newResult(src domain.Source, read int) Result {
	return Result{
		Batch:   domain.SourceBatch{Source: src},
		Read:    read,
		Dropped: make(map[string]int),
	}
}

func (r *Result) drop(reason string) { r.Dropped[reason]++ }

func (r *Result) keep(rec domain.MortalityRecord) {
	r.Batch.Records = append(r.Batch.Records, rec)
}

// Kept returns the number of normalized records.
func (r Result) Kept() int { return len(r.Batch.Records) }

// DroppedTotal returns the number of rows dropped for any reason.
func (r Result) DroppedTotal() int {
	n := 0
	for _, c := range r.Dropped {
		n += c
	}
	return n
}

// DropReasons returns the drop reasons in sorted order.
func (r Result) DropReasons() []string {
	return slices.Sorted(maps.Keys(r.Dropped))
}

// Normalizer converts one source's table into a SourceBatch.
type Normalizer interface {
	Name() string
	Source() domain.Source
	Normalize(t Table) (Result, error)
}

// parseCount parses a death count or week number. Thousands separators and
// whole numbers written as floats ("57.0") are accepted; fractional values are
// rejected.
func parseCount(s string) (int, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0, fmt.Errorf("parse count: empty value")
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("parse count %q: not a number", s)
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("parse count %q: not a whole number", s)
	}
	return int(f), nil
}

// jurisdictionDeaths parses the fields every jurisdiction-level row shares.
// ok is false when the row was dropped.
func jurisdictionDeaths(res *Result, b Binding, row []string, excludeNational bool) (string, int, bool) {
	jurisdiction := b.Value(row, FieldJurisdiction)
	if jurisdiction == "" {
		res.drop(DropNoJurisdiction)
		return "", 0, false
	}
	if excludeNational && domain.IsNationalLabel(jurisdiction) {
		res.drop(DropNationalLabel)
		return "", 0, false
	}
	deaths, err := parseCount(b.Value(row, FieldDeaths))
	if err != nil {
		res.drop(DropBadNumber)
		return "", 0, false
	}
	if deaths <= 0 {
		res.drop(DropNonPositive)
		return "", 0, false
	}
	return jurisdiction, deaths, true
}

func validWeek(week int) bool {
	return week >= 1 && week <= domain.MaxEpiWeek
}
