package csvout

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/mortality-etl/internal/domain"
)

// ErrMissingColumn is returned when a table lacks a required column.
var ErrMissingColumn = errors.New("missing required column")

var requiredColumns = []string{"year", "week", "jurisdiction", "deaths"}

// ReadFile reads an output table from path.
func ReadFile(path string) ([]domain.AnnotatedRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return records, nil
}

// Read decodes an output table. Only year, week, jurisdiction and deaths are
// required; population and rate columns may be absent or empty.
func Read(r io.Reader) ([]domain.AnnotatedRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: empty table", ErrMissingColumn)
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, c := range requiredColumns {
		if _, ok := idx[c]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, c)
		}
	}

	var out []domain.AnnotatedRecord
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rec, err := decodeRow(idx, row)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, rec)
	}
}

func decodeRow(idx map[string]int, row []string) (domain.AnnotatedRecord, error) {
	cell := func(name string) string {
		i, ok := idx[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var (
		rec domain.AnnotatedRecord
		err error
	)
	if rec.Year, err = strconv.Atoi(cell("year")); err != nil {
		return rec, fmt.Errorf("year: %w", err)
	}
	if rec.Week, err = strconv.Atoi(cell("week")); err != nil {
		return rec, fmt.Errorf("week: %w", err)
	}
	if rec.Deaths, err = atoiLoose(cell("deaths")); err != nil {
		return rec, fmt.Errorf("deaths: %w", err)
	}
	rec.Jurisdiction = cell("jurisdiction")
	rec.Source = domain.Source(cell("source_tag"))

	rec.EpiWeek = rec.Week
	if s := cell("epi_week"); s != "" {
		if rec.EpiWeek, err = strconv.Atoi(s); err != nil {
			return rec, fmt.Errorf("epi_week: %w", err)
		}
	}
	if s := cell("week_ending_date"); s != "" {
		if rec.WeekEndingDate, err = time.Parse(dateLayout, s); err != nil {
			return rec, fmt.Errorf("week_ending_date: %w", err)
		}
	}
	if s := cell("population"); s != "" {
		n, err := atoiLoose(s)
		if err != nil {
			return rec, fmt.Errorf("population: %w", err)
		}
		pop := int64(n)
		rec.Population = &pop
	}
	if s := cell("mortality_rate_per_100k"); s != "" {
		rate, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return rec, fmt.Errorf("mortality_rate_per_100k: %w", err)
		}
		rec.MortalityRatePer100k = &rate
	}
	return rec, nil
}

// atoiLoose accepts integers written as floats ("123.0"), as spreadsheet
// round-trips produce.
func atoiLoose(s string) (int, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("%q is not a whole number", s)
	}
	return int(f), nil
}
