package mockdata

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/couchcryptid/mortality-etl/internal/adapter/fetch"
	"github.com/couchcryptid/mortality-etl/internal/domain"
	"github.com/couchcryptid/mortality-etl/internal/observability"
	"github.com/couchcryptid/mortality-etl/internal/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeaths_Deterministic(t *testing.T) {
	assert.Equal(t, Deaths("Ohio", 2018, 5), Deaths("Ohio", 2018, 5))
	assert.Greater(t, Deaths("Ohio", 2018, 2), Deaths("Ohio", 2018, 28), "winter peak")
	assert.Greater(t, Deaths("Ohio", 2020, 10), Deaths("Ohio", 2019, 10), "pandemic excess")
	assert.Greater(t, Deaths("Wyoming", 2016, 1), 0)
}

func TestSplitNewYork(t *testing.T) {
	state, city := splitNewYork(1001)
	assert.Equal(t, 1001, state+city)
	assert.Equal(t, 450, city)
}

func TestMMWRWeekEnding(t *testing.T) {
	assert.Equal(t, time.Date(2020, 1, 4, 0, 0, 0, 0, time.UTC), mmwrWeekEnding(2020, 1))
	assert.Equal(t, time.Date(2021, 1, 9, 0, 0, 0, 0, time.UTC), mmwrWeekEnding(2021, 1))
	assert.Equal(t, time.Saturday, mmwrWeekEnding(2020, 30).Weekday())
}

func TestSaturdays(t *testing.T) {
	days := saturdays(2019)
	require.Len(t, days, 52)
	assert.Equal(t, time.Date(2019, 1, 5, 0, 0, 0, 0, time.UTC), days[0])
	assert.Equal(t, time.Date(2019, 12, 28, 0, 0, 0, 0, time.UTC), days[51])
}

func TestTables_MatchSchemas(t *testing.T) {
	tests := []struct {
		name   string
		table  source.Table
		schema source.Schema
	}{
		{"historical", HistoricalTable(), source.HistoricalSchema},
		{"provisional", ProvisionalTable(), source.ProvisionalSchema},
		{"archived", ArchivedTable(), source.ArchivedSchema},
		{"local file", LocalFileTable(), source.LocalFileSchema},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.schema.Bind(tt.table.Header)
			require.NoError(t, err)
			for i, row := range tt.table.Rows {
				require.Len(t, row, len(tt.table.Header), "row %d", i)
			}
		})
	}
}

func TestHistoricalTable_Normalizes(t *testing.T) {
	res, err := source.Historical{Window: source.DefaultHistoricalWindow}.Normalize(HistoricalTable())
	require.NoError(t, err)

	assert.Equal(t, (ArchivedLastYear-FirstYear+1)*WeeksPerYear, res.Kept())
	assert.Equal(t, 4, res.Dropped[source.DropOutOfScope], "three Canada rows and one monthly row")
	assert.Equal(t, NationalDeaths(2016, 10), res.Batch.Records[WeeksPerYear+9].Deaths)
}

func TestLocalFileTable_Normalizes(t *testing.T) {
	res, err := source.LocalFile{Year: LocalFileYear}.Normalize(LocalFileTable())
	require.NoError(t, err)

	assert.Equal(t, 52, res.Dropped[source.DropNationalLabel])
	assert.Equal(t, 52*53, res.Kept(), "52 states plus the New York City rows")
	for _, r := range res.Batch.Records {
		require.Equal(t, LocalFileYear, r.Year)
		require.GreaterOrEqual(t, r.Week, 1)
		require.LessOrEqual(t, r.Week, 51)
	}
}

func TestWrite_RoundTripsThroughFetch(t *testing.T) {
	for _, xlsx := range []bool{false, true} {
		files, err := Write(t.TempDir(), xlsx)
		require.NoError(t, err)

		client := fetch.NewClient(fetch.Options{}, slog.New(slog.NewTextHandler(io.Discard, nil)), observability.NewMetricsForTesting())
		table, err := client.Fetch(context.Background(), "local_file", files.LocalFile)
		require.NoError(t, err)

		want := LocalFileTable()
		assert.Equal(t, want.Header, table.Header)
		assert.Equal(t, want.Len(), table.Len())
		assert.Equal(t, want.Rows[7], table.Rows[7])
	}
}

func TestNationalDeaths(t *testing.T) {
	total := 0
	for _, j := range domain.StateJurisdictions() {
		total += Deaths(j, 2017, 20)
	}
	assert.Equal(t, total, NationalDeaths(2017, 20))
}
