package pipeline

import (
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/mortality-etl/internal/domain"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// CompleteYearWeeks is the number of weeks a state needs in a year to count
// as fully covered.
const CompleteYearWeeks = 52

// SourceSummary describes what one input contributed.
type SourceSummary struct {
	Name    string
	Source  domain.Source
	Read    int
	Kept    int
	Dropped map[string]int
	Error   string
}

// YearTotal is the national death total of one year.
type YearTotal struct {
	Year   int
	Deaths int
	Weeks  int
}

// Summary reports the outcome of a run.
type Summary struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time

	Sources              []SourceSummary
	Merge                domain.MergeStats
	DerivedNationalYears []int

	NationalRecords    int
	StateRecords       int
	FirstYear          int
	LastYear           int
	NationalTotals     []YearTotal
	PopulationCoverage float64

	LocalFileYear          int
	StatesWithCompleteYear int
	StatesInLocalFileYear  int
	Validation             domain.YearOverYearReport
}

func buildSummary(runID string, started, finished time.Time, outcomes []outcome, stats domain.MergeStats,
	derived []int, national, state []domain.AnnotatedRecord, report domain.YearOverYearReport, localYear int) *Summary {
	s := &Summary{
		RunID:                runID,
		StartedAt:            started,
		FinishedAt:           finished,
		Merge:                stats,
		DerivedNationalYears: derived,
		NationalRecords:      len(national),
		StateRecords:         len(state),
		LocalFileYear:        localYear,
		Validation:           report,
	}

	for _, o := range outcomes {
		ss := SourceSummary{
			Name:    o.name,
			Source:  o.result.Batch.Source,
			Read:    o.result.Read,
			Kept:    o.result.Kept(),
			Dropped: o.result.Dropped,
		}
		if o.err != nil {
			ss.Error = o.err.Error()
		}
		s.Sources = append(s.Sources, ss)
	}

	all := make([]domain.AnnotatedRecord, 0, len(national)+len(state))
	all = append(all, national...)
	all = append(all, state...)
	s.PopulationCoverage = domain.PopulationCoverage(all)
	for i, r := range all {
		if i == 0 || r.Year < s.FirstYear {
			s.FirstYear = r.Year
		}
		s.LastYear = max(s.LastYear, r.Year)
	}

	totals := make(map[int]*YearTotal)
	for _, r := range national {
		t, ok := totals[r.Year]
		if !ok {
			t = &YearTotal{Year: r.Year}
			totals[r.Year] = t
		}
		t.Deaths += r.Deaths
		t.Weeks++
	}
	for _, year := range slices.Sorted(maps.Keys(totals)) {
		s.NationalTotals = append(s.NationalTotals, *totals[year])
	}

	weeks := make(map[string]int)
	for _, r := range state {
		if r.Year == localYear {
			weeks[r.Jurisdiction]++
		}
	}
	s.StatesInLocalFileYear = len(weeks)
	for _, n := range weeks {
		if n >= CompleteYearWeeks {
			s.StatesWithCompleteYear++
		}
	}
	return s
}

// Print writes a human-readable report. Counts carry thousands separators;
// years are formatted as strings to stay ungrouped.
func (s *Summary) Print(w io.Writer) error {
	p := message.NewPrinter(language.English)
	lines := []struct {
		format string
		args   []any
	}{
		{"Run %s finished %s (%v)\n", []any{s.RunID, s.FinishedAt.Format(time.RFC3339), s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond)}},
		{"National records: %d\n", []any{s.NationalRecords}},
		{"State records:    %d\n", []any{s.StateRecords}},
		{"Years covered:    %s-%s\n", []any{strconv.Itoa(s.FirstYear), strconv.Itoa(s.LastYear)}},
		{"Population coverage: %.1f%%\n", []any{s.PopulationCoverage}},
		{"Duplicates removed:  %d\n", []any{s.Merge.Duplicates}},
	}
	for _, l := range lines {
		if _, err := p.Fprintf(w, l.format, l.args...); err != nil {
			return err
		}
	}

	if _, err := p.Fprintf(w, "\nSources:\n"); err != nil {
		return err
	}
	for _, src := range s.Sources {
		status := ""
		if src.Error != "" {
			status = " (unavailable: " + src.Error + ")"
		}
		if _, err := p.Fprintf(w, "  %-12s read %d, kept %d%s\n", src.Name, src.Read, src.Kept, status); err != nil {
			return err
		}
		for _, reason := range slices.Sorted(maps.Keys(src.Dropped)) {
			if _, err := p.Fprintf(w, "    dropped %-20s %d\n", reason, src.Dropped[reason]); err != nil {
				return err
			}
		}
	}

	if _, err := p.Fprintf(w, "\nNational deaths by year:\n"); err != nil {
		return err
	}
	for _, t := range s.NationalTotals {
		if _, err := p.Fprintf(w, "  %s: %d (%d weeks)\n", strconv.Itoa(t.Year), t.Deaths, t.Weeks); err != nil {
			return err
		}
	}
	if len(s.DerivedNationalYears) > 0 {
		if _, err := p.Fprintf(w, "  derived from state totals: %s\n", joinYears(s.DerivedNationalYears)); err != nil {
			return err
		}
	}

	_, err := p.Fprintf(w, "\n%s state coverage: %d of %d states with %d+ weeks\n",
		strconv.Itoa(s.LocalFileYear), s.StatesWithCompleteYear, s.StatesInLocalFileYear, CompleteYearWeeks)
	return err
}

func joinYears(years []int) string {
	parts := make([]string, len(years))
	for i, y := range years {
		parts[i] = strconv.Itoa(y)
	}
	return strings.Join(parts, ", ")
}
