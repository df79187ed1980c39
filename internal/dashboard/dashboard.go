// Package dashboard turns the published mortality tables into chart series
// and summary metrics.
package dashboard

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"

	"github.com/couchcryptid/mortality-etl/internal/domain"
)

var (
	ErrUnknownDataset        = errors.New("unknown dataset")
	ErrUnknownView           = errors.New("unknown view")
	ErrUnknownJurisdiction   = errors.New("unknown jurisdiction")
	ErrPopulationUnavailable = errors.New("population data unavailable")
)

// AllJurisdictions selects every jurisdiction of a table.
const AllJurisdictions = "All States"

// WeeksPerYear annualizes a weekly rate.
const WeeksPerYear = 52.18

// Excess deaths are summed over these years.
const (
	PandemicStartYear = 2020
	PandemicEndYear   = 2022
)

// View selects what a chart plots.
type View string

const (
	ViewRaw               View = "raw"
	ViewPer100k           View = "deaths_per_100k"
	ViewDeviationAvg      View = "deviation_avg"
	ViewDeviationExpected View = "deviation_expected"
)

// Views lists the supported views in display order.
func Views() []View {
	return []View{ViewRaw, ViewPer100k, ViewDeviationAvg, ViewDeviationExpected}
}

// ParseView returns the view named s. An empty name selects ViewRaw.
func ParseView(s string) (View, error) {
	if s == "" {
		return ViewRaw, nil
	}
	v := View(strings.ToLower(strings.TrimSpace(s)))
	if slices.Contains(Views(), v) {
		return v, nil
	}
	return "", fmt.Errorf("%w %q", ErrUnknownView, s)
}

func (v View) title() string {
	switch v {
	case ViewPer100k:
		return "Deaths per 100k Population per MMWR Week"
	case ViewDeviationAvg:
		return "Deviation from 2015-2019 Average"
	case ViewDeviationExpected:
		return "Deviation from Expected Deaths"
	default:
		return "Raw Deaths per MMWR Week"
	}
}

func (v View) axis() string {
	switch v {
	case ViewPer100k:
		return "Deaths per 100k Population"
	case ViewDeviationAvg:
		return "Deaths Above/Below Average"
	case ViewDeviationExpected:
		return "Deaths Above/Below Expected"
	default:
		return "Deaths"
	}
}

// Band groups years that share a chart color.
type Band struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

var (
	BandBaseline = Band{Name: "Baseline", Color: "#2E8B57"}
	BandPandemic = Band{Name: "Pandemic", Color: "#DC143C"}
	BandRecent   = Band{Name: "Recent", Color: "#FF69B4"}
	BandCurrent  = Band{Name: "Current", Color: "#1E90FF"}
	BandOther    = Band{Name: "Other", Color: "#808080"}
)

// BandForYear returns the color band of year.
func BandForYear(year int) Band {
	switch {
	case year >= domain.BaselineStartYear && year <= domain.BaselineEndYear:
		return BandBaseline
	case year >= PandemicStartYear && year <= PandemicEndYear:
		return BandPandemic
	case year == 2023 || year == 2024:
		return BandRecent
	case year == 2025:
		return BandCurrent
	default:
		return BandOther
	}
}

// Point is one epi week of a series.
type Point struct {
	Week  int     `json:"week"`
	Value float64 `json:"value"`
}

// Series is one year of a chart.
type Series struct {
	Year   int     `json:"year"`
	Band   Band    `json:"band"`
	Points []Point `json:"points"`
}

// Chart is a set of yearly series aggregated over the selected jurisdictions.
type Chart struct {
	Dataset       domain.Dataset `json:"dataset"`
	View          View           `json:"view"`
	Title         string         `json:"title"`
	YAxis         string         `json:"y_axis"`
	Jurisdictions []string       `json:"jurisdictions"`
	ZeroLine      bool           `json:"zero_line"`
	Series        []Series       `json:"series"`
}

// Metrics summarizes the selected jurisdictions. Rate fields are nil when
// the table carries no population.
type Metrics struct {
	TotalDeaths           int      `json:"total_deaths"`
	AvgAnnualRatePer100k  *float64 `json:"avg_annual_rate_per_100k"`
	PeakWeeklyRatePer100k *float64 `json:"peak_weekly_rate_per_100k"`
	DeathsAboveAvg        int      `json:"deaths_above_avg_2020_2022"`
	DeathsAboveExpected   int      `json:"deaths_above_expected_2020_2022"`
	ExpectedGrowthRate    float64  `json:"expected_growth_rate"`
}

// DatasetInfo describes a loaded table.
type DatasetInfo struct {
	Dataset       domain.Dataset `json:"dataset"`
	Records       int            `json:"records"`
	Jurisdictions []string       `json:"jurisdictions"`
	Years         []int          `json:"years"`
	HasPopulation bool           `json:"has_population"`
	Views         []View         `json:"views"`
}

// Table is one dataset with baselines applied.
type Table struct {
	dataset       domain.Dataset
	growthRate    float64
	records       []domain.BaselinedRecord
	jurisdictions []string
	years         []int
	hasPopulation bool
}

// NewTable applies baselines to records once.
func NewTable(dataset domain.Dataset, records []domain.AnnotatedRecord, growthRate float64) *Table {
	t := &Table{
		dataset:    dataset,
		growthRate: growthRate,
		records:    domain.ApplyBaselines(records, growthRate),
	}
	jurisdictions := make(map[string]struct{})
	years := make(map[int]struct{})
	for _, r := range records {
		jurisdictions[r.Jurisdiction] = struct{}{}
		years[r.Year] = struct{}{}
		if r.HasPopulation() {
			t.hasPopulation = true
		}
	}
	t.jurisdictions = slices.Sorted(maps.Keys(jurisdictions))
	t.years = slices.Sorted(maps.Keys(years))
	return t
}

// Info describes the table.
func (t *Table) Info() DatasetInfo {
	views := Views()
	if !t.hasPopulation {
		views = slices.DeleteFunc(views, func(v View) bool { return v == ViewPer100k })
	}
	return DatasetInfo{
		Dataset:       t.dataset,
		Records:       len(t.records),
		Jurisdictions: t.jurisdictions,
		Years:         t.years,
		HasPopulation: t.hasPopulation,
		Views:         views,
	}
}

// Chart aggregates the selected jurisdictions by (year, epi week). An empty
// selection, or one containing AllJurisdictions, selects every jurisdiction.
// An empty years list selects every year.
func (t *Table) Chart(view View, jurisdictions []string, years []int) (Chart, error) {
	if view == ViewPer100k && !t.hasPopulation {
		return Chart{}, fmt.Errorf("%s view of %s: %w", view, t.dataset, ErrPopulationUnavailable)
	}
	selected, err := t.selection(jurisdictions)
	if err != nil {
		return Chart{}, err
	}

	type cell struct {
		sum        float64
		deaths     int
		population int64
	}
	type yearWeek struct{ year, week int }
	cells := make(map[yearWeek]*cell)
	for _, r := range t.records {
		if !selected(r.Jurisdiction) || (len(years) > 0 && !slices.Contains(years, r.Year)) {
			continue
		}
		k := yearWeek{r.Year, r.EpiWeek}
		c, ok := cells[k]
		if !ok {
			c = &cell{}
			cells[k] = c
		}
		c.deaths += r.Deaths
		if r.Population != nil {
			c.population += *r.Population
		}
		switch view {
		case ViewDeviationAvg:
			if r.DeviationFromAvg != nil {
				c.sum += *r.DeviationFromAvg
			}
		case ViewDeviationExpected:
			if r.DeviationFromExpected != nil {
				c.sum += *r.DeviationFromExpected
			}
		}
	}

	byYear := make(map[int][]Point)
	for k, c := range cells {
		var v float64
		switch view {
		case ViewRaw:
			v = float64(c.deaths)
		case ViewPer100k:
			if c.population == 0 {
				continue
			}
			v = domain.RatePer100k(c.deaths, c.population)
		default:
			v = c.sum
		}
		byYear[k.year] = append(byYear[k.year], Point{Week: k.week, Value: v})
	}

	chart := Chart{
		Dataset:       t.dataset,
		View:          view,
		Title:         view.title() + " - " + t.describe(jurisdictions),
		YAxis:         view.axis(),
		Jurisdictions: t.selected(jurisdictions),
		ZeroLine:      view == ViewDeviationAvg || view == ViewDeviationExpected,
	}
	for _, year := range slices.Sorted(maps.Keys(byYear)) {
		points := byYear[year]
		slices.SortFunc(points, func(a, b Point) int { return a.Week - b.Week })
		chart.Series = append(chart.Series, Series{Year: year, Band: BandForYear(year), Points: points})
	}
	return chart, nil
}

// Metrics summarizes the selected jurisdictions over every year.
func (t *Table) Metrics(jurisdictions []string) (Metrics, error) {
	selected, err := t.selection(jurisdictions)
	if err != nil {
		return Metrics{}, err
	}

	m := Metrics{ExpectedGrowthRate: t.growthRate}
	var (
		deaths, population float64
		aboveAvg, aboveExp float64
	)
	type yearWeek struct{ year, week int }
	weekly := make(map[yearWeek]*[2]float64)
	for _, r := range t.records {
		if !selected(r.Jurisdiction) {
			continue
		}
		m.TotalDeaths += r.Deaths
		deaths += float64(r.Deaths)
		w, ok := weekly[yearWeek{r.Year, r.EpiWeek}]
		if !ok {
			w = &[2]float64{}
			weekly[yearWeek{r.Year, r.EpiWeek}] = w
		}
		w[0] += float64(r.Deaths)
		if r.Population != nil {
			population += float64(*r.Population)
			w[1] += float64(*r.Population)
		}
		if r.Year < PandemicStartYear || r.Year > PandemicEndYear {
			continue
		}
		if r.DeviationFromAvg != nil && *r.DeviationFromAvg > 0 {
			aboveAvg += *r.DeviationFromAvg
		}
		if r.DeviationFromExpected != nil && *r.DeviationFromExpected > 0 {
			aboveExp += *r.DeviationFromExpected
		}
	}
	m.DeathsAboveAvg = int(aboveAvg)
	m.DeathsAboveExpected = int(aboveExp)

	if !t.hasPopulation || population == 0 {
		return m, nil
	}
	avg := round1(deaths / population * 100_000 * WeeksPerYear)
	m.AvgAnnualRatePer100k = &avg

	peak := math.Inf(-1)
	for _, w := range weekly {
		if w[1] > 0 {
			peak = max(peak, w[0]/w[1]*100_000)
		}
	}
	if !math.IsInf(peak, -1) {
		peak = round1(peak)
		m.PeakWeeklyRatePer100k = &peak
	}
	return m, nil
}

func (t *Table) selection(jurisdictions []string) (func(string) bool, error) {
	if t.all(jurisdictions) {
		return func(string) bool { return true }, nil
	}
	set := make(map[string]struct{}, len(jurisdictions))
	for _, j := range jurisdictions {
		if _, ok := slices.BinarySearch(t.jurisdictions, j); !ok {
			return nil, fmt.Errorf("%w %q in %s", ErrUnknownJurisdiction, j, t.dataset)
		}
		set[j] = struct{}{}
	}
	return func(j string) bool {
		_, ok := set[j]
		return ok
	}, nil
}

func (t *Table) all(jurisdictions []string) bool {
	return t.dataset == domain.DatasetNational || len(jurisdictions) == 0 || slices.Contains(jurisdictions, AllJurisdictions)
}

func (t *Table) selected(jurisdictions []string) []string {
	if t.all(jurisdictions) {
		return t.jurisdictions
	}
	return jurisdictions
}

func (t *Table) describe(jurisdictions []string) string {
	switch {
	case t.dataset == domain.DatasetNational:
		return domain.NationalJurisdiction
	case t.all(jurisdictions):
		return "All States Combined"
	default:
		return strings.Join(jurisdictions, ", ")
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
