package domain

import "math"

const (
	BaselineStartYear = 2015
	BaselineEndYear   = 2019

	// DefaultGrowthRate is the assumed annual growth in expected deaths.
	DefaultGrowthRate = 0.0131
)

// BaselinedRecord adds baseline comparisons to an AnnotatedRecord. Fields are
// nil when the jurisdiction has no data for the epi week in the baseline years.
type BaselinedRecord struct {
	AnnotatedRecord
	Avg2015To2019         *float64 `json:"avg_2015_2019"`
	Baseline2015          *float64 `json:"baseline_2015"`
	ExpectedDeaths        *float64 `json:"expected_deaths"`
	DeviationFromAvg      *float64 `json:"deviation_from_avg"`
	DeviationFromExpected *float64 `json:"deviation_from_expected"`
}

type baselineKey struct {
	jurisdiction string
	epiWeek      int
}

type mean struct {
	sum   float64
	count int
}

func (m *mean) add(v float64) { m.sum += v; m.count++ }

func (m mean) value() float64 { return m.sum / float64(m.count) }

// ApplyBaselines computes, per (jurisdiction, epi week), the 2015-2019 mean
// and the 2015 mean, then derives expected deaths as the 2015 mean grown at
// growthRate per year and each record's deviation from both.
func ApplyBaselines(records []AnnotatedRecord, growthRate float64) []BaselinedRecord {
	avg := make(map[baselineKey]*mean)
	base := make(map[baselineKey]*mean)
	for _, r := range records {
		k := baselineKey{r.Jurisdiction, r.EpiWeek}
		if r.Year >= BaselineStartYear && r.Year <= BaselineEndYear {
			accumulate(avg, k, float64(r.Deaths))
		}
		if r.Year == BaselineStartYear {
			accumulate(base, k, float64(r.Deaths))
		}
	}

	out := make([]BaselinedRecord, len(records))
	for i, r := range records {
		out[i].AnnotatedRecord = r
		k := baselineKey{r.Jurisdiction, r.EpiWeek}
		deaths := float64(r.Deaths)

		if m, ok := avg[k]; ok {
			a := m.value()
			dev := deaths - a
			out[i].Avg2015To2019 = &a
			out[i].DeviationFromAvg = &dev
		}
		if m, ok := base[k]; ok {
			b := m.value()
			expected := ExpectedDeaths(b, r.Year, growthRate)
			dev := deaths - expected
			out[i].Baseline2015 = &b
			out[i].ExpectedDeaths = &expected
			out[i].DeviationFromExpected = &dev
		}
	}
	return out
}

// ExpectedDeaths grows a 2015 baseline to year at growthRate per year.
func ExpectedDeaths(baseline2015 float64, year int, growthRate float64) float64 {
	return baseline2015 * math.Pow(1+growthRate, float64(year-BaselineStartYear))
}

func accumulate(m map[baselineKey]*mean, k baselineKey, v float64) {
	acc, ok := m[k]
	if !ok {
		acc = &mean{}
		m[k] = acc
	}
	acc.add(v)
}
