// Package population loads July 1 resident population estimates.
//
// Census Bureau estimates for 2015-2025 covering the 50 states, the District
// of Columbia, Puerto Rico and the United States ship embedded in the binary.
// A CSV with the same header (year,jurisdiction,population) can replace them.
package population

import (
	_ "embed"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/couchcryptid/mortality-etl/internal/domain"
)

//go:embed data/population.csv
var embedded string

// Default returns the embedded estimates.
func Default() (*domain.PopulationTable, error) {
	records, err := Parse(strings.NewReader(embedded))
	if err != nil {
		return nil, fmt.Errorf("embedded population data: %w", err)
	}
	return domain.NewPopulationTable(records), nil
}

// Load reads estimates from path, or the embedded estimates when path is empty.
func Load(path string) (*domain.PopulationTable, error) {
	if path == "" {
		return Default()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open population file: %w", err)
	}
	defer f.Close()

	records, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("population file %s: %w", path, err)
	}
	return domain.NewPopulationTable(records), nil
}

// Parse reads year,jurisdiction,population rows. The header is required.
func Parse(r io.Reader) ([]domain.PopulationRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 3
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if !strings.EqualFold(header[0], "year") || !strings.EqualFold(header[1], "jurisdiction") || !strings.EqualFold(header[2], "population") {
		return nil, fmt.Errorf("unexpected header %v", header)
	}

	var out []domain.PopulationRecord
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		year, err := strconv.Atoi(row[0])
		if err != nil {
			line, _ := cr.FieldPos(0)
			return nil, fmt.Errorf("line %d: invalid year %q", line, row[0])
		}
		pop, err := strconv.ParseInt(row[2], 10, 64)
		if err != nil {
			line, _ := cr.FieldPos(2)
			return nil, fmt.Errorf("line %d: invalid population %q", line, row[2])
		}
		out = append(out, domain.PopulationRecord{Year: year, Jurisdiction: row[1], Population: pop})
	}
	return out, nil
}
