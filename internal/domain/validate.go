package domain

import (
	"cmp"
	"fmt"
	"math"
	"slices"
)

const (
	// JurisdictionChangeThreshold is the year-over-year change, in percent,
	// above which a single jurisdiction is flagged.
	JurisdictionChangeThreshold = 10.0
	// TotalChangeThreshold is the year-over-year change, in percent, above
	// which the combined jurisdiction total is flagged.
	TotalChangeThreshold = 5.0

	topJurisdictions = 5
)

// Reporter receives advisory findings. Implementations must not fail the run.
type Reporter interface {
	Warn(msg string, args ...any)
	Info(msg string, args ...any)
}

// JurisdictionChange is one jurisdiction's annual total in two consecutive years.
type JurisdictionChange struct {
	Jurisdiction  string
	Current       int
	Prior         int
	ChangePercent float64
	HasPrior      bool
}

// YearOverYearReport summarizes how the state-level totals of Year compare
// with Year-1.
type YearOverYearReport struct {
	Year          int
	Skipped       string
	CurrentTotal  int
	PriorTotal    int
	ChangePercent float64
	TotalFlagged  bool
	Flagged       []JurisdictionChange
	Missing       []string
	Added         []string
	Top           []JurisdictionChange
	PriorCount    int
	CurrentCount  int
}

// Warnings returns the number of findings that deserve attention.
func (rep YearOverYearReport) Warnings() int {
	n := len(rep.Flagged) + len(rep.Missing)
	if rep.TotalFlagged {
		n++
	}
	return n
}

// ValidateYearOverYear compares state-level annual totals of year against
// year-1. National rows are ignored. The result is advisory; when either year
// has no state data the report is marked skipped.
func ValidateYearOverYear(records []MortalityRecord, year int) YearOverYearReport {
	report := YearOverYearReport{Year: year}
	current := annualTotals(records, year)
	prior := annualTotals(records, year-1)
	if len(current) == 0 || len(prior) == 0 {
		report.Skipped = fmt.Sprintf("missing state-level data for %d or %d", year-1, year)
		return report
	}

	report.PriorCount = len(prior)
	report.CurrentCount = len(current)

	changes := make([]JurisdictionChange, 0, len(current))
	for j, deaths := range current {
		c := JurisdictionChange{Jurisdiction: j, Current: deaths}
		report.CurrentTotal += deaths
		if p, ok := prior[j]; ok {
			c.Prior = p
			c.HasPrior = true
			c.ChangePercent = percentChange(deaths, p)
			if math.Abs(c.ChangePercent) > JurisdictionChangeThreshold {
				report.Flagged = append(report.Flagged, c)
			}
		} else {
			report.Added = append(report.Added, j)
		}
		changes = append(changes, c)
	}
	for j, deaths := range prior {
		report.PriorTotal += deaths
		if _, ok := current[j]; !ok {
			report.Missing = append(report.Missing, j)
		}
	}

	report.ChangePercent = percentChange(report.CurrentTotal, report.PriorTotal)
	report.TotalFlagged = math.Abs(report.ChangePercent) > TotalChangeThreshold

	slices.SortFunc(report.Flagged, func(a, b JurisdictionChange) int {
		return cmp.Compare(a.Jurisdiction, b.Jurisdiction)
	})
	slices.Sort(report.Missing)
	slices.Sort(report.Added)
	slices.SortFunc(changes, func(a, b JurisdictionChange) int {
		return cmp.Or(cmp.Compare(b.Current, a.Current), cmp.Compare(a.Jurisdiction, b.Jurisdiction))
	})
	report.Top = changes[:min(topJurisdictions, len(changes))]
	return report
}

// Report sends the findings to r.
func (rep YearOverYearReport) Report(r Reporter) {
	if rep.Skipped != "" {
		r.Warn("year-over-year validation skipped", "year", rep.Year, "reason", rep.Skipped)
		return
	}
	for _, c := range rep.Flagged {
		r.Warn("jurisdiction deaths changed beyond threshold",
			"jurisdiction", c.Jurisdiction, "year", rep.Year,
			"prior", c.Prior, "current", c.Current,
			"change_pct", round1(c.ChangePercent), "threshold_pct", JurisdictionChangeThreshold)
	}
	if rep.TotalFlagged {
		r.Warn("total state deaths changed beyond threshold",
			"year", rep.Year, "prior", rep.PriorTotal, "current", rep.CurrentTotal,
			"change_pct", round1(rep.ChangePercent), "threshold_pct", TotalChangeThreshold)
	} else {
		r.Info("total state deaths change within threshold",
			"year", rep.Year, "change_pct", round1(rep.ChangePercent))
	}
	if len(rep.Missing) > 0 {
		r.Warn("jurisdictions missing compared with prior year", "year", rep.Year, "jurisdictions", rep.Missing)
	}
	if len(rep.Added) > 0 {
		r.Info("jurisdictions new compared with prior year", "year", rep.Year, "jurisdictions", rep.Added)
	}
	r.Info("jurisdiction counts", "prior_year", rep.Year-1, "prior", rep.PriorCount, "year", rep.Year, "current", rep.CurrentCount)
	for i, c := range rep.Top {
		args := []any{"rank", i + 1, "jurisdiction", c.Jurisdiction, "deaths", c.Current}
		if c.HasPrior {
			args = append(args, "change_pct", round1(c.ChangePercent))
		}
		r.Info("top jurisdiction by deaths", args...)
	}
}

func annualTotals(records []MortalityRecord, year int) map[string]int {
	totals := make(map[string]int)
	for _, r := range records {
		if r.Year != year || r.IsNational() {
			continue
		}
		totals[r.Jurisdiction] += r.Deaths
	}
	return totals
}

func percentChange(current, prior int) float64 {
	if prior == 0 {
		return 0
	}
	return float64(current-prior) / float64(prior) * 100
}
