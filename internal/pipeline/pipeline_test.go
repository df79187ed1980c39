package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/mortality-etl/internal/domain"
	"github.com/couchcryptid/mortality-etl/internal/mockdata"
	"github.com/couchcryptid/mortality-etl/internal/observability"
	"github.com/couchcryptid/mortality-etl/internal/pipeline"
	"github.com/couchcryptid/mortality-etl/internal/population"
	"github.com/couchcryptid/mortality-etl/internal/source"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// --- fakes ---

type fakeFetcher struct {
	tables   map[string]source.Table
	failures map[string]error
	delay    time.Duration

	mu       sync.Mutex
	calls    []string
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (f *fakeFetcher) Fetch(ctx context.Context, name, location string) (source.Table, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return source.Table{}, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	if err, ok := f.failures[location]; ok {
		return source.Table{}, err
	}
	t, ok := f.tables[location]
	if !ok {
		return source.Table{}, errors.New("not found: " + location)
	}
	return t, nil
}

type recordingLoader struct {
	err    error
	loaded map[domain.Dataset][]domain.AnnotatedRecord
	runIDs []string
}

func (l *recordingLoader) Load(ctx context.Context, dataset domain.Dataset, records []domain.AnnotatedRecord) error {
	if l.err != nil {
		return l.err
	}
	if l.loaded == nil {
		l.loaded = make(map[domain.Dataset][]domain.AnnotatedRecord)
	}
	l.loaded[dataset] = records
	l.runIDs = append(l.runIDs, observability.RunID(ctx))
	return nil
}

// --- helpers ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mockFetcher() *fakeFetcher {
	return &fakeFetcher{tables: map[string]source.Table{
		"historical.csv":  mockdata.HistoricalTable(),
		"provisional.csv": mockdata.ProvisionalTable(),
		"archived.csv":    mockdata.ArchivedTable(),
		"local.csv":       mockdata.LocalFileTable(),
	}}
}

func mockInputs() []pipeline.Input {
	return []pipeline.Input{
		{Normalizer: source.Historical{Window: source.DefaultHistoricalWindow}, Location: "historical.csv"},
		{Normalizer: source.Provisional{Window: source.DefaultProvisionalWindow}, Location: "provisional.csv"},
		{Normalizer: source.Archived{Window: source.DefaultArchivedWindow}, Location: "archived.csv"},
		{Normalizer: source.LocalFile{Year: mockdata.LocalFileYear}, Location: "local.csv"},
	}
}

func populationTable(t *testing.T) *domain.PopulationTable {
	t.Helper()
	table, err := population.Default()
	require.NoError(t, err)
	return table
}

func newPipeline(t *testing.T, f pipeline.Fetcher, sinks []pipeline.Sink, metrics *observability.Metrics, concurrency int) *pipeline.Pipeline {
	t.Helper()
	return pipeline.New(f, mockInputs(), populationTable(t), sinks, discardLogger(), metrics, pipeline.Options{
		Concurrency:   concurrency,
		ValidateYear:  mockdata.LocalFileYear,
		LocalFileYear: mockdata.LocalFileYear,
	})
}

// --- tests ---

func TestPipeline_CheckReadiness_BeforeRun(t *testing.T) {
	p := newPipeline(t, mockFetcher(), nil, observability.NewMetricsForTesting(), 1)
	require.Error(t, p.CheckReadiness(context.Background()))
	assert.Nil(t, p.LastSummary())
}

func TestPipeline_Run_SourceUnavailable(t *testing.T) {
	f := mockFetcher()
	f.failures = map[string]error{"provisional.csv": errors.New("connection reset")}
	loader := &recordingLoader{}
	metrics := observability.NewMetricsForTesting()
	p := newPipeline(t, f, []pipeline.Sink{{Name: "memory", Loader: loader}}, metrics, 4)

	summary, err := p.Run(context.Background())
	require.NoError(t, err)

	for _, r := range loader.loaded[domain.DatasetNational] {
		assert.Less(t, r.Year, mockdata.ProvisionalFirstYear)
	}
	require.Len(t, summary.Sources, 4)
	assert.Equal(t, "provisional", summary.Sources[1].Name)
	assert.Contains(t, summary.Sources[1].Error, "connection reset")
	assert.Equal(t, domain.SourceProvisional, summary.Sources[1].Source)
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.SourceEmpty.WithLabelValues("provisional")), 1e-9)
	assert.Contains(t, summary.Merge.EmptySources, domain.SourceProvisional)
	require.NoError(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_SchemaMismatchTreatedAsEmpty(t *testing.T) {
	f := mockFetcher()
	f.tables["archived.csv"] = source.Table{Header: []string{"week", "region", "count"}, Rows: [][]string{{"1", "Ohio", "5"}}}
	loader := &recordingLoader{}
	p := newPipeline(t, f, []pipeline.Sink{{Name: "memory", Loader: loader}}, observability.NewMetricsForTesting(), 2)

	summary, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Contains(t, summary.Sources[2].Error, "schema mismatch")
	for _, r := range loader.loaded[domain.DatasetState] {
		assert.GreaterOrEqual(t, r.Year, mockdata.LocalFileYear)
	}
}

func TestPipeline_Run_AllSourcesEmpty(t *testing.T) {
	f := &fakeFetcher{failures: map[string]error{
		"historical.csv":  errors.New("down"),
		"provisional.csv": errors.New("down"),
		"archived.csv":    errors.New("down"),
		"local.csv":       errors.New("missing"),
	}}
	loader := &recordingLoader{}
	p := newPipeline(t, f, []pipeline.Sink{{Name: "memory", Loader: loader}}, observability.NewMetricsForTesting(), 4)

	_, err := p.Run(context.Background())
	require.ErrorIs(t, err, domain.ErrNoInputData)
	assert.Empty(t, loader.loaded)
	assert.Error(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_DisabledSourceSkipped(t *testing.T) {
	f := mockFetcher()
	inputs := mockInputs()
	inputs[2].Location = ""
	p := pipeline.New(f, inputs, populationTable(t), nil, discardLogger(), observability.NewMetricsForTesting(),
		pipeline.Options{Concurrency: 1, ValidateYear: 2019, LocalFileYear: 2019})

	summary, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.NotContains(t, f.calls, "archived")
	assert.Zero(t, summary.Sources[2].Kept)
	assert.Empty(t, summary.Sources[2].Error)
}

func TestPipeline_Run_Sinks(t *testing.T) {
	tests := []struct {
		name     string
		optional bool
		wantErr  bool
	}{
		{"required sink failure fails the run", false, true},
		{"optional sink failure is logged", true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			primary := &recordingLoader{}
			broken := &recordingLoader{err: errors.New("broker unavailable")}
			p := newPipeline(t, mockFetcher(), []pipeline.Sink{
				{Name: "csv", Loader: primary},
				{Name: "kafka", Loader: broken, Optional: tt.optional},
			}, observability.NewMetricsForTesting(), 4)

			_, err := p.Run(context.Background())
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "kafka")
				assert.Error(t, p.CheckReadiness(context.Background()))
				return
			}
			require.NoError(t, err)
			assert.Len(t, primary.loaded, 2)
		})
	}
}

func TestPipeline_Run_ConcurrencyLimit(t *testing.T) {
	tests := []struct {
		concurrency int
		maxPeak     int32
	}{
		{1, 1},
		{2, 2},
	}
	for _, tt := range tests {
		f := mockFetcher()
		f.delay = 20 * time.Millisecond
		p := newPipeline(t, f, nil, observability.NewMetricsForTesting(), tt.concurrency)

		_, err := p.Run(context.Background())
		require.NoError(t, err)
		assert.Len(t, f.calls, 4)
		assert.LessOrEqual(t, f.peak.Load(), tt.maxPeak)
	}
}

func TestPipeline_Run_Cancelled(t *testing.T) {
	f := mockFetcher()
	f.delay = time.Second
	p := newPipeline(t, f, nil, observability.NewMetricsForTesting(), 4)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := p.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Error(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_UsesClock(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	domain.SetClock(clockwork.NewFakeClockAt(at))
	t.Cleanup(func() { domain.SetClock(nil) })

	metrics := observability.NewMetricsForTesting()
	p := newPipeline(t, mockFetcher(), nil, metrics, 4)

	summary, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, at, summary.StartedAt)
	assert.Equal(t, at, summary.FinishedAt)
	assert.InDelta(t, float64(at.Unix()), testutil.ToFloat64(metrics.LastSuccess), 1e-9)
	assert.InDelta(t, 0.0, testutil.ToFloat64(metrics.PipelineRunning), 1e-9)
}

func TestSummary_Print(t *testing.T) {
	p := newPipeline(t, mockFetcher(), nil, observability.NewMetricsForTesting(), 4)
	summary, err := p.Run(context.Background())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, summary.Print(&buf))
	out := buf.String()

	assert.Contains(t, out, "National records: 363")
	assert.Contains(t, out, "State records:    18,876")
	assert.Contains(t, out, "Years covered:    2015-2021")
	assert.Contains(t, out, "Population coverage: 100.0%")
	assert.Contains(t, out, "derived from state totals: 2019")
	assert.Contains(t, out, "2019 state coverage: 0 of 52 states with 52+ weeks")
	assert.Contains(t, out, "dropped national_label")
}

func TestLogReporter_CountsWarnings(t *testing.T) {
	metrics := observability.NewMetricsForTesting()
	r := pipeline.NewLogReporter(discardLogger(), metrics)

	r.Warn("total changed", "pct", 12.5)
	r.Info("top jurisdictions")
	r.Warn("jurisdiction missing")

	assert.InDelta(t, 2.0, testutil.ToFloat64(metrics.AdvisoryWarnings), 1e-9)
}
