package fetch

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/couchcryptid/mortality-etl/internal/source"
	"github.com/xuri/excelize/v2"
)

var errNoHeader = errors.New("no header row")

func readCSV(r io.Reader) (source.Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return source.Table{}, errNoHeader
	}
	if err != nil {
		return source.Table{}, fmt.Errorf("read csv header: %w", err)
	}

	t := source.Table{Header: header}
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return source.Table{}, fmt.Errorf("read csv: %w", err)
		}
		if blank(row) {
			continue
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// readXLSX reads the first worksheet that has a header row.
func readXLSX(r io.Reader) (source.Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return source.Table{}, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			continue
		}
		start := 0
		for start < len(rows) && blank(rows[start]) {
			start++
		}
		if start == len(rows) {
			continue
		}
		t := source.Table{Header: rows[start]}
		for _, row := range rows[start+1:] {
			if blank(row) {
				continue
			}
			t.Rows = append(t.Rows, row)
		}
		return t, nil
	}
	return source.Table{}, errNoHeader
}

func blank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
