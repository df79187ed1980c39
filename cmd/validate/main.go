// Command validate performs integrity checks over the compiled national and
// state mortality tables. It verifies key uniqueness, jurisdiction closure,
// positive counts, national/state separation and rate arithmetic.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -national us_national_mortality_2015_present.csv \
//	  -state state_mortality_2015_present.csv
package main

import (
	"flag"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/couchcryptid/mortality-etl/internal/adapter/csvout"
	"github.com/couchcryptid/mortality-etl/internal/config"
	"github.com/couchcryptid/mortality-etl/internal/domain"
)

// rateTolerance allows for the one-decimal rounding of the rate column.
const rateTolerance = 0.05

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	national := flag.String("national", config.DefaultNationalOutput, "path to the national output CSV")
	state := flag.String("state", config.DefaultStateOutput, "path to the state output CSV")
	flag.Parse()

	if code := run(os.Stdout, *national, *state); code != 0 {
		os.Exit(code)
	}
}

func run(w io.Writer, nationalPath, statePath string) int {
	fmt.Fprintln(w, "=== Mortality Table Integrity Validation ===")
	fmt.Fprintln(w)

	national, err := csvout.ReadFile(nationalPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load national table: %v\n", err)
		return 1
	}
	state, err := csvout.ReadFile(statePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load state table: %v\n", err)
		return 1
	}

	phases := []*phase{
		validateUniqueness(national, state),
		validateJurisdictions(national, state),
		validateCounts(national, state),
		validateSeparation(national, state),
		validateRates(national, state),
	}

	fmt.Fprintln(w)
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(w, "  %-42s %s\n", p.name, status)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Records: %d national, %d state\n", len(national), len(state))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(w, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(w, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(w, "\nAll validations passed.")
		return 0
	}
	fmt.Fprintln(w, "\nValidation FAILED.")
	return 1
}

type table struct {
	name    string
	records []domain.AnnotatedRecord
}

func tables(national, state []domain.AnnotatedRecord) []table {
	return []table{{"national", national}, {"state", state}}
}

// ── Phase 1: Uniqueness ──

func validateUniqueness(national, state []domain.AnnotatedRecord) *phase {
	p := &phase{name: "Phase 1: Key Uniqueness"}
	for _, t := range tables(national, state) {
		seen := make(map[domain.SeriesKey]int, len(t.records))
		for i, r := range t.records {
			if prev, ok := seen[r.Key()]; ok {
				p.errorf("%s row %d: %s duplicates row %d", t.name, i+1, r.Key(), prev)
				continue
			}
			seen[r.Key()] = i + 1
		}
	}
	return p
}

// ── Phase 2: Jurisdictions ──

func validateJurisdictions(national, state []domain.AnnotatedRecord) *phase {
	p := &phase{name: "Phase 2: Jurisdiction Closure"}
	for _, t := range tables(national, state) {
		for i, r := range t.records {
			switch {
			case domain.IsNewYorkCityLabel(r.Jurisdiction):
				p.errorf("%s row %d: New York City was not folded into New York", t.name, i+1)
			case !domain.IsJurisdiction(r.Jurisdiction):
				p.errorf("%s row %d: unknown jurisdiction %q", t.name, i+1, r.Jurisdiction)
			}
		}
	}
	return p
}

// ── Phase 3: Counts and weeks ──

func validateCounts(national, state []domain.AnnotatedRecord) *phase {
	p := &phase{name: "Phase 3: Deaths and Week Ranges"}
	for _, t := range tables(national, state) {
		for i, r := range t.records {
			if r.Deaths <= 0 {
				p.errorf("%s row %d: %s has %d deaths", t.name, i+1, r.Key(), r.Deaths)
			}
			if r.Week < 1 || r.Week > domain.MaxEpiWeek {
				p.errorf("%s row %d: week %d out of range", t.name, i+1, r.Week)
			}
			if r.EpiWeek < 1 || r.EpiWeek > domain.MaxEpiWeek {
				p.errorf("%s row %d: epi_week %d out of range", t.name, i+1, r.EpiWeek)
			}
		}
	}
	return p
}

// ── Phase 4: Separation ──

func validateSeparation(national, state []domain.AnnotatedRecord) *phase {
	p := &phase{name: "Phase 4: National/State Separation"}
	for i, r := range national {
		if !r.IsNational() {
			p.errorf("national row %d: %q is not %s", i+1, r.Jurisdiction, domain.NationalJurisdiction)
		}
	}
	for i, r := range state {
		if r.IsNational() {
			p.errorf("state row %d: national row in state table", i+1)
		}
	}
	return p
}

// ── Phase 5: Rates ──

func validateRates(national, state []domain.AnnotatedRecord) *phase {
	p := &phase{name: "Phase 5: Rate Arithmetic"}
	for _, t := range tables(national, state) {
		for i, r := range t.records {
			switch {
			case !r.HasPopulation() && r.MortalityRatePer100k != nil:
				p.errorf("%s row %d: rate without population", t.name, i+1)
			case r.HasPopulation() && r.MortalityRatePer100k == nil:
				p.errorf("%s row %d: population without rate", t.name, i+1)
			case r.HasPopulation():
				want := float64(r.Deaths) / float64(*r.Population) * 100_000
				if math.Abs(*r.MortalityRatePer100k-want) > rateTolerance {
					p.errorf("%s row %d: rate %.1f, want %.1f", t.name, i+1, *r.MortalityRatePer100k, want)
				}
			}
		}
	}
	return p
}
