package domain

import (
	"cmp"
	"errors"
	"slices"
)

// ErrNoInputData is returned by Merge when every source produced zero rows.
var ErrNoInputData = errors.New("no input data: every source produced zero rows")

// MergeStats counts what happened to the rows passed to Merge.
type MergeStats struct {
	Input        int
	Incomplete   int
	Duplicates   int
	OutOfScope   int
	NonPositive  int
	Output       int
	SourcesUsed  []Source
	EmptySources []Source
}

// Merge concatenates folded batches and reduces them to one row per
// (year, week, jurisdiction).
//
// Rows missing identity fields are dropped. Among duplicates the row with the
// highest Completeness wins; equal scores keep the row from the earliest
// batch. The survivors are restricted to known jurisdictions with positive
// death counts and returned in ascending (year, week, jurisdiction) order.
func Merge(batches ...FoldedBatch) ([]MortalityRecord, MergeStats, error) {
	var stats MergeStats
	var combined []MortalityRecord
	for _, b := range batches {
		if b.Len() == 0 {
			stats.EmptySources = append(stats.EmptySources, b.Source())
			continue
		}
		stats.SourcesUsed = append(stats.SourcesUsed, b.Source())
		combined = append(combined, b.Records()...)
	}
	stats.Input = len(combined)
	if len(combined) == 0 {
		return nil, stats, ErrNoInputData
	}

	complete := make([]MortalityRecord, 0, len(combined))
	for _, r := range combined {
		if !r.Complete() {
			stats.Incomplete++
			continue
		}
		if r.EpiWeek == 0 {
			r.EpiWeek = r.Week
		}
		complete = append(complete, r)
	}

	slices.SortStableFunc(complete, func(a, b MortalityRecord) int {
		return cmp.Or(
			compareKey(a, b),
			cmp.Compare(b.Completeness(), a.Completeness()),
		)
	})

	out := make([]MortalityRecord, 0, len(complete))
	for i, r := range complete {
		if i > 0 && complete[i-1].Key() == r.Key() {
			stats.Duplicates++
			continue
		}
		if !IsJurisdiction(r.Jurisdiction) {
			stats.OutOfScope++
			continue
		}
		if r.Deaths <= 0 {
			stats.NonPositive++
			continue
		}
		out = append(out, r)
	}

	SortRecords(out)
	stats.Output = len(out)
	return out, stats, nil
}

// SortRecords orders records by (year, week, jurisdiction).
func SortRecords(records []MortalityRecord) {
	slices.SortStableFunc(records, compareKey)
}

// Split separates the national series from the state-level series.
func Split(records []MortalityRecord) (national, state []MortalityRecord) {
	for _, r := range records {
		if r.IsNational() {
			national = append(national, r)
		} else {
			state = append(state, r)
		}
	}
	return national, state
}

func compareKey(a, b MortalityRecord) int {
	return cmp.Or(
		cmp.Compare(a.Year, b.Year),
		cmp.Compare(a.Week, b.Week),
		cmp.Compare(a.Jurisdiction, b.Jurisdiction),
	)
}
