package domain

import (
	"fmt"
	"time"
)

// Source identifies where a mortality row came from. Its value is written
// verbatim to the source_tag output column.
type Source string

const (
	SourceHistorical  Source = "World Mortality Dataset"
	SourceProvisional Source = "CDC Provisional"
	SourceArchived    Source = "Archived NCHS"
	SourceDerived     Source = "Calculated from State Data"
)

// LocalFileSource returns the source tag for a local file covering year.
func LocalFileSource(year int) Source {
	return Source(fmt.Sprintf("Local %d File", year))
}

// MortalityRecord is one weekly death count for one jurisdiction.
type MortalityRecord struct {
	Year           int       `json:"year"`
	Week           int       `json:"week"`
	EpiWeek        int       `json:"epi_week"`
	WeekEndingDate time.Time `json:"week_ending_date,omitzero"`
	Jurisdiction   string    `json:"jurisdiction"`
	Deaths         int       `json:"deaths"`
	Source         Source    `json:"source_tag"`
}

// Key returns the identity used for deduplication.
func (r MortalityRecord) Key() SeriesKey {
	return SeriesKey{Year: r.Year, Week: r.Week, Jurisdiction: r.Jurisdiction}
}

// HasWeekEndingDate reports whether the source supplied a week-ending date.
func (r MortalityRecord) HasWeekEndingDate() bool {
	return !r.WeekEndingDate.IsZero()
}

// Complete reports whether the fields required for identity are present.
func (r MortalityRecord) Complete() bool {
	return r.Year > 0 && r.Week >= 1 && r.Week <= MaxEpiWeek && r.Jurisdiction != ""
}

// Completeness counts the populated fields. Rows from richer sources score
// higher and win deduplication ties.
func (r MortalityRecord) Completeness() int {
	score := 0
	for _, populated := range []bool{
		r.Year != 0,
		r.Week != 0,
		r.EpiWeek != 0,
		r.HasWeekEndingDate(),
		r.Jurisdiction != "",
		r.Deaths != 0,
		r.Source != "",
	} {
		if populated {
			score++
		}
	}
	return score
}

// IsNational reports whether the record belongs to the national series.
func (r MortalityRecord) IsNational() bool {
	return r.Jurisdiction == NationalJurisdiction
}

// SeriesKey identifies a single (year, week, jurisdiction) cell.
type SeriesKey struct {
	Year         int
	Week         int
	Jurisdiction string
}

func (k SeriesKey) String() string {
	return fmt.Sprintf("%d-W%02d %s", k.Year, k.Week, k.Jurisdiction)
}

// SourceBatch is the normalized output of a single source, before New York
// City folding.
type SourceBatch struct {
	Source  Source
	Records []MortalityRecord
}

// FoldedBatch is a SourceBatch whose New York City rows have been folded into
// New York. It can only be produced by FoldNewYorkCity, so Merge never sees
// unfolded input.
type FoldedBatch struct {
	source  Source
	records []MortalityRecord
}

// Source returns the source tag of the batch.
func (b FoldedBatch) Source() Source { return b.source }

// Records returns the folded records. Callers must not modify the slice.
func (b FoldedBatch) Records() []MortalityRecord { return b.records }

// Len returns the number of folded records.
func (b FoldedBatch) Len() int { return len(b.records) }

// AnnotatedRecord is a MortalityRecord joined with population and the derived rate.
// Population and MortalityRatePer100k are nil when no estimate was found.
type AnnotatedRecord struct {
	MortalityRecord
	Population           *int64   `json:"population"`
	MortalityRatePer100k *float64 `json:"mortality_rate_per_100k"`
}

// HasPopulation reports whether a population estimate was joined.
func (r AnnotatedRecord) HasPopulation() bool {
	return r.Population != nil && *r.Population > 0
}

// Dataset names one of the two output series.
type Dataset string

const (
	DatasetNational Dataset = "national"
	DatasetState    Dataset = "state"
)

// DatasetOf returns the series a record belongs to.
func DatasetOf(r MortalityRecord) Dataset {
	if r.IsNational() {
		return DatasetNational
	}
	return DatasetState
}
