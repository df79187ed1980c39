package domain

import (
	"slices"
	"strings"
)

const (
	// NationalJurisdiction labels the national aggregate series.
	NationalJurisdiction = "United States"
	// NewYork is the state label New York City rows are folded into.
	NewYork = "New York"
)

var stateJurisdictions = []string{
	"Alabama", "Alaska", "Arizona", "Arkansas", "California", "Colorado",
	"Connecticut", "Delaware", "District of Columbia", "Florida", "Georgia",
	"Hawaii", "Idaho", "Illinois", "Indiana", "Iowa", "Kansas", "Kentucky",
	"Louisiana", "Maine", "Maryland", "Massachusetts", "Michigan", "Minnesota",
	"Mississippi", "Missouri", "Montana", "Nebraska", "Nevada", "New Hampshire",
	"New Jersey", "New Mexico", "New York", "North Carolina", "North Dakota",
	"Ohio", "Oklahoma", "Oregon", "Pennsylvania", "Puerto Rico", "Rhode Island",
	"South Carolina", "South Dakota", "Tennessee", "Texas", "Utah", "Vermont",
	"Virginia", "Washington", "West Virginia", "Wisconsin", "Wyoming",
}

var validJurisdictions = func() map[string]struct{} {
	m := make(map[string]struct{}, len(stateJurisdictions)+1)
	for _, j := range stateJurisdictions {
		m[j] = struct{}{}
	}
	m[NationalJurisdiction] = struct{}{}
	return m
}()

// nationalLabels are the spellings sources use for a national total row.
var nationalLabels = map[string]struct{}{
	"united states": {},
	"us":            {},
	"usa":           {},
	"u.s.":          {},
	"national":      {},
	"total":         {},
}

// IsJurisdiction reports whether name is one of the 53 output jurisdictions.
func IsJurisdiction(name string) bool {
	_, ok := validJurisdictions[name]
	return ok
}

// IsNationalLabel reports whether name denotes a national total rather than a
// jurisdiction.
func IsNationalLabel(name string) bool {
	_, ok := nationalLabels[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// IsNewYorkCityLabel reports whether name is one of the New York City variants.
func IsNewYorkCityLabel(name string) bool {
	return strings.Contains(name, "New York City") || strings.Contains(name, "NYC")
}

// StateJurisdictions returns the 52 sub-national jurisdictions in alphabetical order.
func StateJurisdictions() []string {
	return slices.Clone(stateJurisdictions)
}

// Jurisdictions returns every output jurisdiction, national last.
func Jurisdictions() []string {
	return append(StateJurisdictions(), NationalJurisdiction)
}

// FoldNewYorkCity folds New York City rows into New York state.
//
// When both labels are present, deaths are summed per (year, week) and the
// first observed row supplies the remaining fields. When only the city is
// present it is relabelled. Otherwise the batch is returned unchanged. Folding
// an already folded batch is a no-op.
func FoldNewYorkCity(batch SourceBatch) FoldedBatch {
	var hasCity, hasState bool
	for i := range batch.Records {
		switch {
		case IsNewYorkCityLabel(batch.Records[i].Jurisdiction):
			hasCity = true
		case batch.Records[i].Jurisdiction == NewYork:
			hasState = true
		}
	}

	switch {
	case hasCity && hasState:
		return FoldedBatch{source: batch.Source, records: sumNewYork(batch.Records)}
	case hasCity:
		out := slices.Clone(batch.Records)
		for i := range out {
			if IsNewYorkCityLabel(out[i].Jurisdiction) {
				out[i].Jurisdiction = NewYork
			}
		}
		return FoldedBatch{source: batch.Source, records: out}
	default:
		return FoldedBatch{source: batch.Source, records: slices.Clone(batch.Records)}
	}
}

type yearWeek struct{ year, week int }

func sumNewYork(records []MortalityRecord) []MortalityRecord {
	out := make([]MortalityRecord, 0, len(records))
	index := make(map[yearWeek]int)

	for _, r := range records {
		if r.Jurisdiction != NewYork && !IsNewYorkCityLabel(r.Jurisdiction) {
			out = append(out, r)
			continue
		}
		k := yearWeek{r.Year, r.Week}
		i, seen := index[k]
		if !seen {
			r.Jurisdiction = NewYork
			index[k] = len(out)
			out = append(out, r)
			continue
		}
		out[i].Deaths += r.Deaths
		if !out[i].HasWeekEndingDate() {
			out[i].WeekEndingDate = r.WeekEndingDate
		}
		if out[i].EpiWeek == 0 {
			out[i].EpiWeek = r.EpiWeek
		}
	}
	return out
}
