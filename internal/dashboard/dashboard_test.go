package dashboard

import (
	"context"
	"io"
	"log/slog"
	"math"
	"path/filepath"
	"testing"

	"github.com/couchcryptid/mortality-etl/internal/adapter/csvout"
	"github.com/couchcryptid/mortality-etl/internal/domain"
	"github.com/couchcryptid/mortality-etl/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(year, week int, jurisdiction string, deaths int, population int64) domain.AnnotatedRecord {
	r := domain.AnnotatedRecord{MortalityRecord: domain.MortalityRecord{
		Year: year, Week: week, EpiWeek: week,
		Jurisdiction: jurisdiction,
		Deaths:       deaths,
		Source:       domain.SourceProvisional,
	}}
	if population > 0 {
		rate := domain.RatePer100k(deaths, population)
		r.Population = &population
		r.MortalityRatePer100k = &rate
	}
	return r
}

func stateRecords() []domain.AnnotatedRecord {
	return []domain.AnnotatedRecord{
		record(2015, 1, "Ohio", 100, 1_000_000),
		record(2016, 1, "Ohio", 120, 1_000_000),
		record(2020, 1, "Ohio", 200, 1_000_000),
		record(2015, 1, "Texas", 300, 3_000_000),
		record(2020, 1, "Texas", 340, 3_000_000),
		record(2020, 2, "Texas", 310, 3_000_000),
	}
}

func stateTable() *Table {
	return NewTable(domain.DatasetState, stateRecords(), domain.DefaultGrowthRate)
}

func values(s Series) map[int]float64 {
	out := make(map[int]float64, len(s.Points))
	for _, p := range s.Points {
		out[p.Week] = p.Value
	}
	return out
}

func TestParseView(t *testing.T) {
	tests := []struct {
		in      string
		want    View
		wantErr bool
	}{
		{"", ViewRaw, false},
		{"raw", ViewRaw, false},
		{"Deaths_Per_100k", ViewPer100k, false},
		{"deviation_avg", ViewDeviationAvg, false},
		{" deviation_expected ", ViewDeviationExpected, false},
		{"excess", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseView(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrUnknownView)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBandForYear(t *testing.T) {
	tests := []struct {
		year int
		want Band
	}{
		{2014, BandOther},
		{2015, BandBaseline},
		{2019, BandBaseline},
		{2020, BandPandemic},
		{2022, BandPandemic},
		{2023, BandRecent},
		{2024, BandRecent},
		{2025, BandCurrent},
		{2026, BandOther},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, BandForYear(tt.year), "year %d", tt.year)
	}
	assert.Equal(t, "#DC143C", BandPandemic.Color)
}

func TestTable_Info(t *testing.T) {
	info := stateTable().Info()
	assert.Equal(t, domain.DatasetState, info.Dataset)
	assert.Equal(t, 6, info.Records)
	assert.Equal(t, []string{"Ohio", "Texas"}, info.Jurisdictions)
	assert.Equal(t, []int{2015, 2016, 2020}, info.Years)
	assert.True(t, info.HasPopulation)
	assert.Equal(t, Views(), info.Views)

	bare := NewTable(domain.DatasetState, []domain.AnnotatedRecord{record(2020, 1, "Ohio", 10, 0)}, 0).Info()
	assert.False(t, bare.HasPopulation)
	assert.NotContains(t, bare.Views, ViewPer100k)
}

func TestTable_Chart(t *testing.T) {
	growth := math.Pow(1+domain.DefaultGrowthRate, 5)

	tests := []struct {
		name          string
		view          View
		jurisdictions []string
		want          map[int]map[int]float64
		zeroLine      bool
	}{
		{
			name: "raw all states",
			view: ViewRaw,
			want: map[int]map[int]float64{
				2015: {1: 400},
				2016: {1: 120},
				2020: {1: 540, 2: 310},
			},
		},
		{
			name:          "raw selected state",
			view:          ViewRaw,
			jurisdictions: []string{"Ohio"},
			want: map[int]map[int]float64{
				2015: {1: 100},
				2016: {1: 120},
				2020: {1: 200},
			},
		},
		{
			name:          "per 100k sums deaths and population",
			view:          ViewPer100k,
			jurisdictions: []string{AllJurisdictions},
			want: map[int]map[int]float64{
				2015: {1: 10},
				2016: {1: 12},
				2020: {1: 13.5, 2: 10.3},
			},
		},
		{
			name: "deviation from average",
			view: ViewDeviationAvg,
			want: map[int]map[int]float64{
				2015: {1: -10},
				2016: {1: 10},
				2020: {1: 90 + 40, 2: 0},
			},
			zeroLine: true,
		},
		{
			name:          "deviation from expected",
			view:          ViewDeviationExpected,
			jurisdictions: []string{"Ohio", "Texas"},
			want: map[int]map[int]float64{
				2015: {1: 0},
				2016: {1: 120 - 100*(1+domain.DefaultGrowthRate)},
				2020: {1: 200 - 100*growth + 340 - 300*growth, 2: 0},
			},
			zeroLine: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chart, err := stateTable().Chart(tt.view, tt.jurisdictions, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.view, chart.View)
			assert.Equal(t, tt.zeroLine, chart.ZeroLine)
			require.Len(t, chart.Series, len(tt.want))
			for _, s := range chart.Series {
				want, ok := tt.want[s.Year]
				require.True(t, ok, "unexpected year %d", s.Year)
				assert.Equal(t, BandForYear(s.Year), s.Band)
				got := values(s)
				require.Len(t, got, len(want), "year %d", s.Year)
				for week, v := range want {
					assert.InDelta(t, v, got[week], 1e-9, "year %d week %d", s.Year, week)
				}
			}
		})
	}
}

func TestTable_Chart_Ordering(t *testing.T) {
	chart, err := stateTable().Chart(ViewRaw, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{2015, 2016, 2020}, []int{chart.Series[0].Year, chart.Series[1].Year, chart.Series[2].Year})
	assert.Equal(t, []Point{{Week: 1, Value: 540}, {Week: 2, Value: 310}}, chart.Series[2].Points)
	assert.Equal(t, "Raw Deaths per MMWR Week - All States Combined", chart.Title)
	assert.Equal(t, []string{"Ohio", "Texas"}, chart.Jurisdictions)
}

func TestTable_Chart_YearFilter(t *testing.T) {
	chart, err := stateTable().Chart(ViewRaw, []string{"Texas"}, []int{2020})
	require.NoError(t, err)
	require.Len(t, chart.Series, 1)
	assert.Equal(t, 2020, chart.Series[0].Year)
	assert.Equal(t, "Raw Deaths per MMWR Week - Texas", chart.Title)
}

func TestTable_Chart_Errors(t *testing.T) {
	_, err := stateTable().Chart(ViewRaw, []string{"Atlantis"}, nil)
	require.ErrorIs(t, err, ErrUnknownJurisdiction)

	bare := NewTable(domain.DatasetState, []domain.AnnotatedRecord{record(2020, 1, "Ohio", 10, 0)}, 0)
	_, err = bare.Chart(ViewPer100k, nil, nil)
	require.ErrorIs(t, err, ErrPopulationUnavailable)

	chart, err := bare.Chart(ViewRaw, nil, nil)
	require.NoError(t, err)
	assert.Len(t, chart.Series, 1)
}

func TestTable_Chart_NationalIgnoresSelection(t *testing.T) {
	table := NewTable(domain.DatasetNational, []domain.AnnotatedRecord{
		record(2020, 1, domain.NationalJurisdiction, 60_000, 330_000_000),
	}, domain.DefaultGrowthRate)

	chart, err := table.Chart(ViewRaw, []string{"Ohio"}, nil)
	require.NoError(t, err)
	require.Len(t, chart.Series, 1)
	assert.Equal(t, "Raw Deaths per MMWR Week - United States", chart.Title)
}

func TestTable_Metrics(t *testing.T) {
	growth := math.Pow(1+domain.DefaultGrowthRate, 5)

	m, err := stateTable().Metrics(nil)
	require.NoError(t, err)
	assert.Equal(t, 1370, m.TotalDeaths)
	require.NotNil(t, m.AvgAnnualRatePer100k)
	assert.InDelta(t, 595.7, *m.AvgAnnualRatePer100k, 1e-9)
	require.NotNil(t, m.PeakWeeklyRatePer100k)
	assert.InDelta(t, 13.5, *m.PeakWeeklyRatePer100k, 1e-9)
	assert.Equal(t, 130, m.DeathsAboveAvg)
	assert.Equal(t, int(200-100*growth+340-300*growth), m.DeathsAboveExpected)
	assert.InDelta(t, domain.DefaultGrowthRate, m.ExpectedGrowthRate, 1e-12)

	ohio, err := stateTable().Metrics([]string{"Ohio"})
	require.NoError(t, err)
	assert.Equal(t, 420, ohio.TotalDeaths)
	assert.InDelta(t, 20.0, *ohio.PeakWeeklyRatePer100k, 1e-9)
	assert.Equal(t, 90, ohio.DeathsAboveAvg)

	_, err = stateTable().Metrics([]string{"Atlantis"})
	require.ErrorIs(t, err, ErrUnknownJurisdiction)
}

func TestTable_Metrics_NoPopulation(t *testing.T) {
	table := NewTable(domain.DatasetState, []domain.AnnotatedRecord{
		record(2015, 1, "Ohio", 100, 0),
		record(2021, 1, "Ohio", 90, 0),
	}, 0)

	m, err := table.Metrics(nil)
	require.NoError(t, err)
	assert.Equal(t, 190, m.TotalDeaths)
	assert.Nil(t, m.AvgAnnualRatePer100k)
	assert.Nil(t, m.PeakWeeklyRatePer100k)
	assert.Zero(t, m.DeathsAboveAvg, "only positive deviations count")
}

func TestService(t *testing.T) {
	dir := t.TempDir()
	nationalPath := filepath.Join(dir, "national.csv")
	statePath := filepath.Join(dir, "state.csv")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	w := csvout.NewWriter(nationalPath, statePath, logger, observability.NewMetricsForTesting())
	ctx := context.Background()
	require.NoError(t, w.Load(ctx, domain.DatasetNational, []domain.AnnotatedRecord{
		record(2020, 1, domain.NationalJurisdiction, 60_000, 330_000_000),
	}))
	require.NoError(t, w.Load(ctx, domain.DatasetState, stateRecords()))

	svc := NewService(nationalPath, statePath, domain.DefaultGrowthRate, logger)
	require.Error(t, svc.CheckReadiness(ctx))
	_, err := svc.Table(domain.DatasetState)
	require.Error(t, err)

	require.NoError(t, svc.Reload())
	require.NoError(t, svc.CheckReadiness(ctx))

	infos, err := svc.Datasets()
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, domain.DatasetNational, infos[0].Dataset)
	assert.Equal(t, 1, infos[0].Records)
	assert.Equal(t, 6, infos[1].Records)

	state, err := svc.Table(domain.DatasetState)
	require.NoError(t, err)
	m, err := state.Metrics(nil)
	require.NoError(t, err)
	assert.Equal(t, 1370, m.TotalDeaths)

	_, err = svc.Table("county")
	require.ErrorIs(t, err, ErrUnknownDataset)

	svc.paths[domain.DatasetState] = filepath.Join(dir, "missing.csv")
	require.Error(t, svc.Reload())
	_, err = svc.Table(domain.DatasetState)
	require.NoError(t, err, "failed reload keeps the previous tables")
}
