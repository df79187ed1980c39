package domain

import "slices"

// UncoveredNationalYears returns the years that have state-level rows but no
// national row, in ascending order.
func UncoveredNationalYears(records []MortalityRecord) []int {
	stateYears := make(map[int]bool)
	nationalYears := make(map[int]bool)
	for _, r := range records {
		if r.IsNational() {
			nationalYears[r.Year] = true
		} else {
			stateYears[r.Year] = true
		}
	}

	var years []int
	for y := range stateYears {
		if !nationalYears[y] {
			years = append(years, y)
		}
	}
	slices.Sort(years)
	return years
}

// DeriveNational builds national rows for the given years by summing every
// jurisdiction row per (year, week). Rows already labelled national are
// ignored. The first non-empty week-ending date in each group is kept.
func DeriveNational(records []MortalityRecord, years []int) []MortalityRecord {
	if len(years) == 0 {
		return nil
	}
	want := make(map[int]bool, len(years))
	for _, y := range years {
		want[y] = true
	}

	index := make(map[yearWeek]int)
	var out []MortalityRecord
	for _, r := range records {
		if r.IsNational() || !want[r.Year] {
			continue
		}
		k := yearWeek{r.Year, r.Week}
		i, seen := index[k]
		if !seen {
			index[k] = len(out)
			out = append(out, MortalityRecord{
				Year:           r.Year,
				Week:           r.Week,
				EpiWeek:        r.EpiWeek,
				WeekEndingDate: r.WeekEndingDate,
				Jurisdiction:   NationalJurisdiction,
				Deaths:         r.Deaths,
				Source:         SourceDerived,
			})
			continue
		}
		out[i].Deaths += r.Deaths
		if !out[i].HasWeekEndingDate() {
			out[i].WeekEndingDate = r.WeekEndingDate
		}
	}

	SortRecords(out)
	return out
}
