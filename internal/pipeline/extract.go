package pipeline

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/mortality-etl/internal/source"
	"golang.org/x/sync/errgroup"
)

// outcome is what one input produced. A failed input carries its error and
// an empty batch tagged with its source.
type outcome struct {
	name   string
	result source.Result
	err    error
}

// extract fetches and normalizes every input, at most Concurrency at a time.
// Outcomes keep the input order.
func (p *Pipeline) extract(ctx context.Context, logger *slog.Logger) ([]outcome, error) {
	outcomes := make([]outcome, len(p.inputs))

	var g errgroup.Group
	g.SetLimit(p.opts.Concurrency)
	for i, in := range p.inputs {
		g.Go(func() error {
			outcomes[i] = p.extractOne(ctx, logger, in)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

func (p *Pipeline) extractOne(ctx context.Context, logger *slog.Logger, in Input) outcome {
	name := in.Normalizer.Name()
	o := outcome{name: name}
	o.result.Batch.Source = in.Normalizer.Source()

	empty := func(err error) outcome {
		o.err = err
		p.metrics.SourceEmpty.WithLabelValues(name).Inc()
		return o
	}

	if in.Location == "" {
		logger.Info("source disabled", "source", name)
		return empty(nil)
	}

	table, err := p.fetcher.Fetch(ctx, name, in.Location)
	if err != nil {
		logger.Warn("source unavailable, continuing without it", "source", name, "location", in.Location, "error", err)
		return empty(err)
	}

	res, err := in.Normalizer.Normalize(table)
	if err != nil {
		logger.Warn("source table rejected", "source", name, "error", err)
		return empty(err)
	}
	o.result = res

	p.metrics.RowsNormalized.WithLabelValues(name).Add(float64(res.Kept()))
	for reason, n := range res.Dropped {
		p.metrics.RowsDropped.WithLabelValues(name, reason).Add(float64(n))
	}
	logger.Info("source normalized", "source", name, "read", res.Read, "kept", res.Kept(), "dropped", res.DroppedTotal())
	if res.Kept() == 0 {
		logger.Warn("source produced no rows", "source", name)
		p.metrics.SourceEmpty.WithLabelValues(name).Inc()
	}
	return o
}
