package main

import (
	"fmt"
	"log/slog"

	"github.com/couchcryptid/mortality-etl/internal/adapter/csvout"
	"github.com/couchcryptid/mortality-etl/internal/adapter/fetch"
	kafkaadapter "github.com/couchcryptid/mortality-etl/internal/adapter/kafka"
	"github.com/couchcryptid/mortality-etl/internal/config"
	"github.com/couchcryptid/mortality-etl/internal/domain"
	"github.com/couchcryptid/mortality-etl/internal/observability"
	"github.com/couchcryptid/mortality-etl/internal/pipeline"
	"github.com/couchcryptid/mortality-etl/internal/population"
	"github.com/couchcryptid/mortality-etl/internal/source"
)

// fetchCacheEntries holds every source table plus a spare.
const fetchCacheEntries = 5

// inputs maps the source catalog to normalizers in merge priority order.
func inputs(s config.Sources) []pipeline.Input {
	return []pipeline.Input{
		{Normalizer: source.Historical{Window: s.Historical.Window}, Location: s.Historical.ActiveLocation()},
		{Normalizer: source.Provisional{Window: s.Provisional.Window}, Location: s.Provisional.ActiveLocation()},
		{Normalizer: source.Archived{Window: s.Archived.Window}, Location: s.Archived.ActiveLocation()},
		{Normalizer: source.LocalFile{Year: s.LocalFileYear}, Location: s.LocalFile.ActiveLocation()},
	}
}

func loadPopulation(path string) (*domain.PopulationTable, error) {
	if path == "" {
		return population.Default()
	}
	return population.Load(path)
}

// buildPipeline wires the compile pipeline. The returned close func releases
// the sinks and must be called once the pipeline is no longer used.
func buildPipeline(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (*pipeline.Pipeline, func(), error) {
	if err := source.ValidateSchemas(); err != nil {
		return nil, nil, err
	}
	pop, err := loadPopulation(cfg.PopulationFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load population: %w", err)
	}

	var fetcher pipeline.Fetcher = fetch.NewClient(fetch.Options{
		MaxAttempts: cfg.FetchMaxAttempts,
		Backoff:     cfg.FetchBackoff,
		MaxBackoff:  fetch.DefaultOptions.MaxBackoff,
		Timeout:     cfg.FetchTimeout,
	}, logger, metrics)
	if cfg.FetchCacheTTL > 0 {
		fetcher = fetch.NewCachedFetcher(fetcher, cfg.FetchCacheTTL, fetchCacheEntries)
	}

	sinks := []pipeline.Sink{
		{Name: "csv", Loader: csvout.NewWriter(cfg.NationalPath(), cfg.StatePath(), logger, metrics)},
	}
	closeFn := func() {}
	if cfg.KafkaEnabled {
		writer := kafkaadapter.NewWriter(cfg, logger)
		sinks = append(sinks, pipeline.Sink{Name: "kafka", Loader: writer, Optional: true})
		closeFn = func() {
			if err := writer.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		}
		logger.Info("kafka publishing enabled", "topic", cfg.KafkaSinkTopic, "brokers", cfg.KafkaBrokers)
	}

	p := pipeline.New(fetcher, inputs(cfg.Sources), pop, sinks, logger, metrics, pipeline.Options{
		Concurrency:   cfg.FetchConcurrency,
		ValidateYear:  cfg.ValidateYear,
		LocalFileYear: cfg.Sources.LocalFileYear,
	})
	return p, closeFn, nil
}
