package pipeline

import (
	"log/slog"

	"github.com/couchcryptid/mortality-etl/internal/observability"
)

// LogReporter delivers advisory validation findings to the log and counts
// warnings.
type LogReporter struct {
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewLogReporter creates a LogReporter.
func NewLogReporter(logger *slog.Logger, metrics *observability.Metrics) LogReporter {
	return LogReporter{logger: logger, metrics: metrics}
}

func (r LogReporter) Warn(msg string, args ...any) {
	r.metrics.AdvisoryWarnings.Inc()
	r.logger.Warn(msg, args...)
}

func (r LogReporter) Info(msg string, args ...any) {
	r.logger.Info(msg, args...)
}
