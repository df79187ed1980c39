package source

import (
	"strings"

	"github.com/couchcryptid/mortality-etl/internal/domain"
)

// Default year windows. Each source covers years no better source supplies.
var (
	DefaultHistoricalWindow  = Window{From: 2015, To: 2020}
	DefaultProvisionalWindow = Window{From: 2020}
	DefaultArchivedWindow    = Window{From: 2015, To: 2018}
)

// DefaultLocalFileYear is the year the local state file covers.
const DefaultLocalFileYear = 2019

// Historical normalizes the long-format World Mortality dataset into the
// national weekly series.
type Historical struct {
	Window Window
}

func (Historical) Name() string { return "historical" }

func (Historical) Source() domain.Source { return domain.SourceHistorical }

// Normalize keeps weekly United States rows inside the window.
func (h Historical) Normalize(t Table) (Result, error) {
	res := newResult(domain.SourceHistorical, t.Len())
	b, err := HistoricalSchema.Bind(t.Header)
	if err != nil {
		return res, err
	}

	for _, row := range t.Rows {
		if b.Value(row, FieldCountry) != domain.NationalJurisdiction {
			res.drop(DropOutOfScope)
			continue
		}
		if b.Has(FieldTimeUnit) && !strings.EqualFold(b.Value(row, FieldTimeUnit), "weekly") {
			res.drop(DropOutOfScope)
			continue
		}
		year, err := parseCount(b.Value(row, FieldYear))
		if err != nil {
			res.drop(DropBadNumber)
			continue
		}
		if !h.Window.Contains(year) {
			res.drop(DropOutOfWindow)
			continue
		}
		week, err := parseCount(b.Value(row, FieldTime))
		if err != nil || !validWeek(week) {
			res.drop(DropBadWeek)
			continue
		}
		deaths, err := parseCount(b.Value(row, FieldDeaths))
		if err != nil {
			res.drop(DropBadNumber)
			continue
		}
		if deaths <= 0 {
			res.drop(DropNonPositive)
			continue
		}
		res.keep(domain.MortalityRecord{
			Year:         year,
			Week:         week,
			EpiWeek:      week,
			Jurisdiction: domain.NationalJurisdiction,
			Deaths:       deaths,
			Source:       domain.SourceHistorical,
		})
	}
	return res, nil
}

// Provisional normalizes the CDC provisional weekly export. National rows are
// kept as the direct national series for the years it covers.
type Provisional struct {
	Window Window
}

func (Provisional) Name() string { return "provisional" }

func (Provisional) Source() domain.Source { return domain.SourceProvisional }

// Normalize keeps weekly-group rows inside the window with a valid week.
func (p Provisional) Normalize(t Table) (Result, error) {
	res := newResult(domain.SourceProvisional, t.Len())
	b, err := ProvisionalSchema.Bind(t.Header)
	if err != nil {
		return res, err
	}

	for _, row := range t.Rows {
		if b.Has(FieldGroup) && !strings.EqualFold(b.Value(row, FieldGroup), "By Week") {
			res.drop(DropOutOfScope)
			continue
		}
		year, err := parseCount(b.Value(row, FieldYear))
		if err != nil {
			res.drop(DropBadNumber)
			continue
		}
		if !p.Window.Contains(year) {
			res.drop(DropOutOfWindow)
			continue
		}
		week, err := parseCount(b.Value(row, FieldWeek))
		if err != nil || !validWeek(week) {
			res.drop(DropBadWeek)
			continue
		}
		jurisdiction, deaths, ok := jurisdictionDeaths(&res, b, row, false)
		if !ok {
			continue
		}
		if domain.IsNationalLabel(jurisdiction) {
			jurisdiction = domain.NationalJurisdiction
		}

		rec := domain.MortalityRecord{
			Year:         year,
			Week:         week,
			EpiWeek:      week,
			Jurisdiction: jurisdiction,
			Deaths:       deaths,
			Source:       domain.SourceProvisional,
		}
		if d, err := domain.ParseDate(b.Value(row, FieldWeekEndingDate)); err == nil {
			rec.WeekEndingDate = d
		}
		res.keep(rec)
	}
	return res, nil
}

// Archived normalizes the archived NCHS surveillance snapshot, whose week is
// encoded as year*100 + week.
type Archived struct {
	Window Window
}

func (Archived) Name() string { return "archived" }

func (Archived) Source() domain.Source { return domain.SourceArchived }

// Normalize keeps all-ages jurisdiction rows inside the window.
func (a Archived) Normalize(t Table) (Result, error) {
	res := newResult(domain.SourceArchived, t.Len())
	b, err := ArchivedSchema.Bind(t.Header)
	if err != nil {
		return res, err
	}

	for _, row := range t.Rows {
		if b.Value(row, FieldAge) != "All" {
			res.drop(DropOutOfScope)
			continue
		}
		code, err := parseCount(b.Value(row, FieldYearWeek))
		if err != nil {
			res.drop(DropBadNumber)
			continue
		}
		year, week := code/100, code%100
		if !a.Window.Contains(year) {
			res.drop(DropOutOfWindow)
			continue
		}
		if !validWeek(week) {
			res.drop(DropBadWeek)
			continue
		}
		jurisdiction, deaths, ok := jurisdictionDeaths(&res, b, row, true)
		if !ok {
			continue
		}
		res.keep(domain.MortalityRecord{
			Year:         year,
			Week:         week,
			EpiWeek:      week,
			Jurisdiction: jurisdiction,
			Deaths:       deaths,
			Source:       domain.SourceArchived,
		})
	}
	return res, nil
}

// LocalFile normalizes a locally supplied state file keyed by week-ending
// date. Every row is assigned to Year and its week is shifted back by one to
// line up with the other sources.
type LocalFile struct {
	Year int
}

func (LocalFile) Name() string { return "local_file" }

func (l LocalFile) Source() domain.Source { return domain.LocalFileSource(l.year()) }

// Normalize resolves each row's epi week from its date and drops national rows.
func (l LocalFile) Normalize(t Table) (Result, error) {
	src := l.Source()
	res := newResult(src, t.Len())
	b, err := LocalFileSchema.Bind(t.Header)
	if err != nil {
		return res, err
	}

	for _, row := range t.Rows {
		date, epi, ok := domain.ResolveDateString(b.Value(row, FieldWeekEndingDate))
		if !ok {
			res.drop(DropBadDate)
			continue
		}
		jurisdiction, deaths, ok := jurisdictionDeaths(&res, b, row, true)
		if !ok {
			continue
		}
		week := domain.ShiftLegacyWeek(epi).Week
		res.keep(domain.MortalityRecord{
			Year:           l.year(),
			Week:           week,
			EpiWeek:        week,
			WeekEndingDate: date,
			Jurisdiction:   jurisdiction,
			Deaths:         deaths,
			Source:         src,
		})
	}
	return res, nil
}

func (l LocalFile) year() int {
	if l.Year == 0 {
		return DefaultLocalFileYear
	}
	return l.Year
}
