package domain

import "math"

// MaxPopulationFallbackYears bounds how far back a missing population estimate
// is looked up.
const MaxPopulationFallbackYears = 4

// PopulationRecord is a July 1 resident population estimate.
type PopulationRecord struct {
	Year         int
	Jurisdiction string
	Population   int64
}

type populationKey struct {
	year         int
	jurisdiction string
}

// PopulationTable is an immutable (year, jurisdiction) population lookup.
type PopulationTable struct {
	entries map[populationKey]int64
}

// NewPopulationTable indexes records. Later duplicates replace earlier ones;
// non-positive estimates are ignored.
func NewPopulationTable(records []PopulationRecord) *PopulationTable {
	t := &PopulationTable{entries: make(map[populationKey]int64, len(records))}
	for _, r := range records {
		if r.Population <= 0 {
			continue
		}
		t.entries[populationKey{r.Year, r.Jurisdiction}] = r.Population
	}
	return t
}

// Len returns the number of estimates in the table.
func (t *PopulationTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// Lookup returns the estimate for (year, jurisdiction), falling back to the
// nearest of the previous MaxPopulationFallbackYears years.
func (t *PopulationTable) Lookup(year int, jurisdiction string) (int64, bool) {
	if t == nil {
		return 0, false
	}
	for offset := 0; offset <= MaxPopulationFallbackYears; offset++ {
		if p, ok := t.entries[populationKey{year - offset, jurisdiction}]; ok {
			return p, true
		}
	}
	return 0, false
}

// RatePer100k returns deaths per 100,000 residents rounded to one decimal.
func RatePer100k(deaths int, population int64) float64 {
	return round1(float64(deaths) / float64(population) * 100000)
}

// Annotate joins each record with its population estimate and rate. Records
// without an estimate keep nil Population and MortalityRatePer100k.
func Annotate(records []MortalityRecord, table *PopulationTable) []AnnotatedRecord {
	out := make([]AnnotatedRecord, len(records))
	for i, r := range records {
		out[i].MortalityRecord = r
		pop, ok := table.Lookup(r.Year, r.Jurisdiction)
		if !ok {
			continue
		}
		rate := RatePer100k(r.Deaths, pop)
		out[i].Population = &pop
		out[i].MortalityRatePer100k = &rate
	}
	return out
}

// PopulationCoverage returns the share of records with a population estimate,
// as a percentage.
func PopulationCoverage(records []AnnotatedRecord) float64 {
	if len(records) == 0 {
		return 0
	}
	n := 0
	for _, r := range records {
		if r.HasPopulation() {
			n++
		}
	}
	return float64(n) / float64(len(records)) * 100
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
