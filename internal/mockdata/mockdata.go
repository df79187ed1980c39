// Package mockdata generates deterministic synthetic tables in the layout of
// each source, so the pipeline can run offline.
//
// Coverage mirrors the real sources: national counts 2015-2018, archived
// state counts 2015-2018, a local state file for 2019 and provisional state
// and national counts 2020-2021. The 2019 national series is therefore
// derived from state totals. New York City is reported separately wherever
// the real sources do.
package mockdata

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/couchcryptid/mortality-etl/internal/domain"
	"github.com/couchcryptid/mortality-etl/internal/source"
	"github.com/xuri/excelize/v2"
)

// Year coverage of the generated tables.
const (
	FirstYear            = 2015
	ArchivedLastYear     = 2018
	LocalFileYear        = 2019
	ProvisionalFirstYear = 2020
	LastYear             = 2021
	WeeksPerYear         = 52
)

// newYorkCityShare is the part of New York's deaths reported under the city label.
const newYorkCityShare = 45

// File names written by Write.
const (
	HistoricalFile  = "world_mortality.csv"
	ProvisionalFile = "provisional.csv"
	ArchivedFile    = "archived_nchs.csv"
	LocalFileCSV    = "all_state_data_for_2019.csv"
	LocalFileXLSX   = "all_state_data_for_2019.xlsx"
)

// Files holds the paths of generated fixtures.
type Files struct {
	Historical  string
	Provisional string
	Archived    string
	LocalFile   string
}

// Deaths returns the synthetic weekly death count of a state jurisdiction.
// Counts follow a winter peak, a slow upward trend and a 2020-2021 excess.
func Deaths(jurisdiction string, year, week int) int {
	base := 150.0
	for i, j := range domain.StateJurisdictions() {
		if j == jurisdiction {
			base += float64(i * 23)
			break
		}
	}
	seasonal := 1 + 0.15*math.Cos(2*math.Pi*float64(week-2)/WeeksPerYear)
	trend := 1 + 0.01*float64(year-FirstYear)
	if year == 2020 || year == 2021 {
		trend += 0.2
	}
	return int(math.Round(base * seasonal * trend))
}

// NationalDeaths is the sum of Deaths over every state jurisdiction.
func NationalDeaths(year, week int) int {
	total := 0
	for _, j := range domain.StateJurisdictions() {
		total += Deaths(j, year, week)
	}
	return total
}

// splitNewYork divides New York's deaths into state and city rows.
func splitNewYork(deaths int) (state, city int) {
	city = deaths * newYorkCityShare / 100
	return deaths - city, city
}

// stateRows calls emit once per reported label for (year, week). New York is
// reported as two rows when splitCity is set.
func stateRows(year, week int, splitCity bool, emit func(label string, deaths int)) {
	for _, j := range domain.StateJurisdictions() {
		d := Deaths(j, year, week)
		if j == domain.NewYork && splitCity {
			state, city := splitNewYork(d)
			emit(j, state)
			emit("New York City", city)
			continue
		}
		emit(j, d)
	}
}

// HistoricalTable returns a World Mortality style long-format table.
func HistoricalTable() source.Table {
	t := source.Table{Header: []string{"iso3c", "country_name", "year", "time", "time_unit", "deaths"}}
	for year := FirstYear; year <= ArchivedLastYear; year++ {
		for week := 1; week <= WeeksPerYear; week++ {
			t.Rows = append(t.Rows, []string{"USA", domain.NationalJurisdiction, itoa(year), itoa(week), "weekly", itoa(NationalDeaths(year, week))})
		}
	}
	for week := 1; week <= 3; week++ {
		t.Rows = append(t.Rows, []string{"CAN", "Canada", itoa(FirstYear), itoa(week), "weekly", "5400"})
	}
	t.Rows = append(t.Rows, []string{"USA", domain.NationalJurisdiction, itoa(FirstYear), "1", "monthly", "230000"})
	return t
}

// ArchivedTable returns an NCHS surveillance style table with year*100+week codes.
func ArchivedTable() source.Table {
	t := source.Table{Header: []string{"MMWR Year/Week", "age", "State", "All Deaths", "Pneumonia and Influenza Deaths"}}
	for year := FirstYear; year <= ArchivedLastYear; year++ {
		for week := 1; week <= WeeksPerYear; week++ {
			code := itoa(year*100 + week)
			stateRows(year, week, true, func(label string, deaths int) {
				t.Rows = append(t.Rows, []string{code, "All", label, itoa(deaths), itoa(deaths / 12)})
			})
			t.Rows = append(t.Rows, []string{code, "All", "National", itoa(NationalDeaths(year, week)), "0"})
			if week == 1 {
				t.Rows = append(t.Rows, []string{code, "65 years and older", "Ohio", "900", "80"})
			}
		}
	}
	return t
}

// ProvisionalTable returns a CDC provisional export with weekly and monthly groups.
func ProvisionalTable() source.Table {
	t := source.Table{Header: []string{"Data As Of", "Group", "Year", "MMWR Week", "Week Ending Date", "State", "Total Deaths"}}
	for year := ProvisionalFirstYear; year <= LastYear; year++ {
		for week := 1; week <= WeeksPerYear; week++ {
			ending := mmwrWeekEnding(year, week).Format("01/02/2006")
			row := func(label string, deaths int) {
				t.Rows = append(t.Rows, []string{"09/27/2023", "By Week", itoa(year), itoa(week), ending, label, itoa(deaths)})
			}
			row(domain.NationalJurisdiction, NationalDeaths(year, week))
			stateRows(year, week, true, row)
		}
		t.Rows = append(t.Rows, []string{"09/27/2023", "By Month", itoa(year), "", "", domain.NationalJurisdiction, "280000"})
	}
	t.Rows = append(t.Rows, []string{"09/27/2023", "By Week", itoa(LastYear), "1", "", "Wyoming", ""})
	return t
}

// LocalFileTable returns a state file keyed by Saturday week-ending dates of
// LocalFileYear. Its deaths match Deaths at the week the row normalizes to.
func LocalFileTable() source.Table {
	t := source.Table{Header: []string{"Jurisdiction of Occurrence", "Week Ending Date", "All Cause", "Natural Cause"}}
	for _, date := range saturdays(LocalFileYear) {
		week := domain.ShiftLegacyWeek(domain.ResolveEpiWeek(date)).Week
		ds := date.Format("2006-01-02")
		stateRows(LocalFileYear, week, true, func(label string, deaths int) {
			t.Rows = append(t.Rows, []string{label, ds, itoa(deaths), itoa(deaths * 9 / 10)})
		})
		t.Rows = append(t.Rows, []string{domain.NationalJurisdiction, ds, "60000", "54000"})
	}
	return t
}

// Write writes the four fixtures to dir. When xlsx is set the local file is
// written as a workbook instead of CSV.
func Write(dir string, xlsx bool) (Files, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Files{}, fmt.Errorf("create fixture dir: %w", err)
	}
	files := Files{
		Historical:  filepath.Join(dir, HistoricalFile),
		Provisional: filepath.Join(dir, ProvisionalFile),
		Archived:    filepath.Join(dir, ArchivedFile),
		LocalFile:   filepath.Join(dir, LocalFileCSV),
	}
	writes := []struct {
		path  string
		table source.Table
	}{
		{files.Historical, HistoricalTable()},
		{files.Provisional, ProvisionalTable()},
		{files.Archived, ArchivedTable()},
	}
	for _, w := range writes {
		if err := writeCSV(w.path, w.table); err != nil {
			return Files{}, err
		}
	}

	if xlsx {
		files.LocalFile = filepath.Join(dir, LocalFileXLSX)
		return files, writeXLSX(files.LocalFile, LocalFileTable())
	}
	return files, writeCSV(files.LocalFile, LocalFileTable())
}

func writeCSV(path string, t source.Table) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(t.Header); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := w.WriteAll(t.Rows); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func writeXLSX(path string, t source.Table) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return fmt.Errorf("open sheet: %w", err)
	}
	rows := append([][]string{t.Header}, t.Rows...)
	for i, row := range rows {
		cells := make([]any, len(row))
		for j, v := range row {
			cells[j] = v
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, cells); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("flush sheet: %w", err)
	}
	return f.SaveAs(path)
}

// mmwrWeekEnding returns the Saturday ending MMWR week of year. Week 1 is the
// first week with at least four days in the year.
func mmwrWeekEnding(year, week int) time.Time {
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	start := jan4.AddDate(0, 0, -int(jan4.Weekday()))
	return start.AddDate(0, 0, 7*(week-1)+6)
}

// saturdays returns every Saturday in year.
func saturdays(year int) []time.Time {
	d := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	d = d.AddDate(0, 0, (int(time.Saturday)-int(d.Weekday())+7)%7)
	var out []time.Time
	for ; d.Year() == year; d = d.AddDate(0, 0, 7) {
		out = append(out, d)
	}
	return out
}

func itoa(n int) string { return strconv.Itoa(n) }
