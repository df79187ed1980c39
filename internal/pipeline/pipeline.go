package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/couchcryptid/mortality-etl/internal/domain"
	"github.com/couchcryptid/mortality-etl/internal/observability"
	"github.com/couchcryptid/mortality-etl/internal/source"
	"github.com/google/uuid"
)

// Fetcher retrieves the raw table of a source.
type Fetcher interface {
	Fetch(ctx context.Context, name, location string) (source.Table, error)
}

// Loader writes one output dataset.
type Loader interface {
	Load(ctx context.Context, dataset domain.Dataset, records []domain.AnnotatedRecord) error
}

// Input binds a normalizer to the location its table is fetched from.
type Input struct {
	Normalizer source.Normalizer
	Location   string
}

// Sink is a named Loader. Failures of optional sinks are logged and do not
// fail the run.
type Sink struct {
	Name     string
	Loader   Loader
	Optional bool
}

// Options tunes a run.
type Options struct {
	// Concurrency bounds simultaneous source fetches. 1 fetches sequentially.
	Concurrency int
	// ValidateYear is the year checked against the previous year.
	ValidateYear int
	// LocalFileYear is the year whose state coverage is reported.
	LocalFileYear int
}

// Pipeline compiles the canonical weekly series from all inputs.
type Pipeline struct {
	fetcher    Fetcher
	inputs     []Input
	population *domain.PopulationTable
	sinks      []Sink
	logger     *slog.Logger
	metrics    *observability.Metrics
	opts       Options

	ready atomic.Bool
	last  atomic.Pointer[Summary]
}

// New creates a Pipeline. Inputs are merged in the given order, which decides
// ties between equally complete duplicates.
func New(f Fetcher, inputs []Input, population *domain.PopulationTable, sinks []Sink,
	logger *slog.Logger, metrics *observability.Metrics, opts Options) *Pipeline {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Pipeline{
		fetcher:    f,
		inputs:     inputs,
		population: population,
		sinks:      sinks,
		logger:     logger,
		metrics:    metrics,
		opts:       opts,
	}
}

// CheckReadiness returns nil once a run has completed successfully.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not completed a run yet")
	}
	return nil
}

// LastSummary returns the summary of the most recent successful run, or nil.
func (p *Pipeline) LastSummary() *Summary {
	return p.last.Load()
}

// Run executes one full compile: extract, normalize, fold, merge, derive,
// annotate, validate and load. Source failures are logged and the source is
// treated as empty; the run fails only when no source produced data, a
// required sink fails, or ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	runID := uuid.NewString()
	ctx = observability.WithRunID(ctx, runID)
	logger := p.logger.With("run_id", runID)
	started := domain.Now()

	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)
	logger.Info("pipeline started", "sources", len(p.inputs), "concurrency", p.opts.Concurrency)

	outcomes, err := p.extract(ctx, logger)
	if err != nil {
		return nil, err
	}

	folded := make([]domain.FoldedBatch, len(outcomes))
	for i, o := range outcomes {
		folded[i] = domain.FoldNewYorkCity(o.result.Batch)
	}

	merged, stats, err := domain.Merge(folded...)
	if err != nil {
		logger.Error("no usable source data", "error", err)
		return nil, fmt.Errorf("merge: %w", err)
	}
	p.metrics.RecordsMerged.Set(float64(stats.Output))
	p.metrics.DuplicateRecords.Set(float64(stats.Duplicates))
	logger.Info("sources merged",
		"input", stats.Input, "output", stats.Output, "duplicates", stats.Duplicates,
		"incomplete", stats.Incomplete, "out_of_scope", stats.OutOfScope, "non_positive", stats.NonPositive)
	for _, s := range stats.EmptySources {
		logger.Warn("source contributed no rows", "source_tag", s)
	}

	uncovered := domain.UncoveredNationalYears(merged)
	if len(uncovered) > 0 {
		derived := domain.DeriveNational(merged, uncovered)
		merged = append(merged, derived...)
		domain.SortRecords(merged)
		logger.Info("national series derived from state totals", "years", uncovered, "records", len(derived))
	}

	nationalRows, stateRows := domain.Split(merged)
	national := domain.Annotate(nationalRows, p.population)
	state := domain.Annotate(stateRows, p.population)
	if p.population.Len() == 0 {
		logger.Warn("population table is empty; rates omitted")
	}

	report := domain.ValidateYearOverYear(merged, p.opts.ValidateYear)
	report.Report(NewLogReporter(logger, p.metrics))

	if err := p.load(ctx, logger, domain.DatasetNational, national); err != nil {
		return nil, err
	}
	if err := p.load(ctx, logger, domain.DatasetState, state); err != nil {
		return nil, err
	}

	finished := domain.Now()
	summary := buildSummary(runID, started, finished, outcomes, stats, uncovered, national, state, report, p.opts.LocalFileYear)
	p.metrics.RunDuration.Observe(finished.Sub(started).Seconds())
	p.metrics.LastSuccess.Set(float64(finished.Unix()))
	p.last.Store(summary)
	p.ready.Store(true)
	logger.Info("pipeline finished",
		"national_records", len(national), "state_records", len(state),
		"population_coverage_pct", summary.PopulationCoverage, "duration", finished.Sub(started))
	return summary, nil
}

func (p *Pipeline) load(ctx context.Context, logger *slog.Logger, dataset domain.Dataset, records []domain.AnnotatedRecord) error {
	for _, s := range p.sinks {
		err := s.Loader.Load(ctx, dataset, records)
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if s.Optional {
			logger.Warn("optional sink failed", "sink", s.Name, "dataset", dataset, "error", err)
			continue
		}
		return fmt.Errorf("load %s into %s: %w", dataset, s.Name, err)
	}
	return nil
}
