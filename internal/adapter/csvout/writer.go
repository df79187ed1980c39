// Package csvout writes and reads the published mortality tables.
package csvout

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/couchcryptid/mortality-etl/internal/domain"
	"github.com/couchcryptid/mortality-etl/internal/observability"
)

// Header is the column order of both output files.
var Header = []string{
	"year", "week", "epi_week", "week_ending_date", "jurisdiction",
	"deaths", "population", "mortality_rate_per_100k", "source_tag",
}

const dateLayout = "2006-01-02"

// Writer writes each dataset to its own CSV file.
type Writer struct {
	paths   map[domain.Dataset]string
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewWriter creates a Writer for the national and state output paths.
func NewWriter(nationalPath, statePath string, logger *slog.Logger, metrics *observability.Metrics) *Writer {
	return &Writer{
		paths: map[domain.Dataset]string{
			domain.DatasetNational: nationalPath,
			domain.DatasetState:    statePath,
		},
		logger:  logger,
		metrics: metrics,
	}
}

// Path returns the file a dataset is written to.
func (w *Writer) Path(dataset domain.Dataset) string {
	return w.paths[dataset]
}

// Load replaces the dataset's file with records via WriteFile, so readers
// never see a partial table.
func (w *Writer) Load(ctx context.Context, dataset domain.Dataset, records []domain.AnnotatedRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, ok := w.paths[dataset]
	if !ok {
		return fmt.Errorf("unknown dataset %q", dataset)
	}
	if err := WriteFile(path, records); err != nil {
		return fmt.Errorf("write %s: %w", dataset, err)
	}

	w.metrics.RecordsWritten.WithLabelValues(string(dataset)).Add(float64(len(records)))
	w.logger.Info("dataset written", "dataset", dataset, "path", path, "records", len(records))
	return nil
}

// WriteFile replaces path with records. The table is written to a temporary
// file in the same directory and renamed into place.
func WriteFile(path string, records []domain.AnnotatedRecord) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after a successful rename

	if err := Write(tmp, records); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("publish %s: %w", path, err)
	}
	return nil
}

// Write encodes records with Header. Absent optional values are empty cells.
func Write(w io.Writer, records []domain.AnnotatedRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	row := make([]string, len(Header))
	for _, r := range records {
		row[0] = strconv.Itoa(r.Year)
		row[1] = strconv.Itoa(r.Week)
		row[2] = strconv.Itoa(r.EpiWeek)
		row[3] = ""
		if r.HasWeekEndingDate() {
			row[3] = r.WeekEndingDate.Format(dateLayout)
		}
		row[4] = r.Jurisdiction
		row[5] = strconv.Itoa(r.Deaths)
		row[6], row[7] = "", ""
		if r.Population != nil {
			row[6] = strconv.FormatInt(*r.Population, 10)
		}
		if r.MortalityRatePer100k != nil {
			row[7] = strconv.FormatFloat(*r.MortalityRatePer100k, 'f', 1, 64)
		}
		row[8] = string(r.Source)
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
