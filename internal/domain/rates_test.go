package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPopulationTable_Lookup(t *testing.T) {
	table := NewPopulationTable([]PopulationRecord{
		{Year: 2020, Jurisdiction: "Ohio", Population: 11_800_000},
		{Year: 2021, Jurisdiction: "Ohio", Population: 11_780_000},
		{Year: 2021, Jurisdiction: "Texas", Population: 0},
	})

	tests := []struct {
		name         string
		year         int
		jurisdiction string
		want         int64
		ok           bool
	}{
		{"exact", 2020, "Ohio", 11_800_000, true},
		{"nearest prior year wins", 2022, "Ohio", 11_780_000, true},
		{"four years back", 2025, "Ohio", 11_780_000, true},
		{"five years back is too far", 2026, "Ohio", 0, false},
		{"no earlier estimate", 2019, "Ohio", 0, false},
		{"non-positive ignored", 2021, "Texas", 0, false},
		{"unknown jurisdiction", 2020, "Guam", 0, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := table.Lookup(tc.year, tc.jurisdiction)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
	assert.Equal(t, 2, table.Len())
}

func TestPopulationTable_Nil(t *testing.T) {
	var table *PopulationTable
	_, ok := table.Lookup(2020, "Ohio")
	assert.False(t, ok)
	assert.Equal(t, 0, table.Len())
}

func TestRatePer100k(t *testing.T) {
	assert.Equal(t, 100.0, RatePer100k(1000, 1_000_000))
	assert.Equal(t, 2.5, RatePer100k(123, 4_858_979))
	assert.Equal(t, 17.6, RatePer100k(57_000, 323_127_513))
}

func TestAnnotate(t *testing.T) {
	table := NewPopulationTable([]PopulationRecord{{Year: 2019, Jurisdiction: "Ohio", Population: 11_689_100}})
	records := []MortalityRecord{
		rec(2020, 1, "Ohio", 2500),
		rec(2020, 1, "Guam", 20),
	}

	out := Annotate(records, table)

	require.Len(t, out, 2)
	require.NotNil(t, out[0].Population)
	assert.Equal(t, int64(11_689_100), *out[0].Population)
	require.NotNil(t, out[0].MortalityRatePer100k)
	assert.Equal(t, 21.4, *out[0].MortalityRatePer100k)
	assert.Equal(t, records[0], out[0].MortalityRecord)

	assert.Nil(t, out[1].Population)
	assert.Nil(t, out[1].MortalityRatePer100k)
	assert.InDelta(t, 50.0, PopulationCoverage(out), 0.001)
}
