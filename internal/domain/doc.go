// Package domain models weekly US all-cause mortality counts and the rules used
// to reconcile them across sources.
//
// # Data Sources
//
// Four heterogeneous inputs feed one canonical weekly series per jurisdiction:
//
//	World Mortality Dataset   national weekly deaths, long format, 2015-2020
//	CDC Provisional (r8kw)    jurisdiction weekly deaths, wide format, 2020-present
//	Archived NCHS snapshot    jurisdiction weekly deaths, YYYYWW encoded week, 2015-2018
//	Local state file          jurisdiction weekly deaths keyed by week-ending date, one year
//
// Year windows are chosen so the sources complement rather than overlap. When
// they do overlap on (year, week, jurisdiction), the row with the most
// populated fields wins; see [Merge].
//
// # Epidemiological Weeks
//
// Weeks are numbered from the first Sunday of the calendar year. Dates before
// that Sunday belong to the final week of the previous epi-year, and a week 53
// that reaches the next year's first Sunday becomes week 1 of the next year.
// See [ResolveEpiWeek]. This is close to, but not exactly, the CDC MMWR rule
// (which uses the four-day convention); the local file correction in
// [ShiftLegacyWeek] depends on this numbering.
//
// # Jurisdictions
//
// Output is restricted to the 50 states, the District of Columbia, Puerto Rico
// and the national aggregate "United States". New York City is reported by some
// sources as its own jurisdiction; [FoldNewYorkCity] folds it into New York
// state per source before any cross-source merge so the city is never counted
// twice.
//
// # Rates and Baselines
//
// Rates are deaths per 100,000 residents, rounded to one decimal place, using
// Census July 1 population estimates. A missing (year, jurisdiction) estimate
// falls back to the nearest of the four previous years. Baselines compare a
// week against the 2015-2019 average for the same jurisdiction and epi week,
// and against the 2015 value grown at a fixed annual rate.
package domain
