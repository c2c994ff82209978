/*
Package fiscal resolves fiscal period keys into concrete date ranges.

PURPOSE:
  Budgets are declared against fiscal keys, short strings identifying a
  yearly, quarterly, or monthly accounting period:

    "2024"      calendar year 2024
    "2024Q1"    first quarter of 2024
    "2024M03"   March 2024

  This package is the single place that understands these keys. Everything
  downstream (spend aggregation, budget analysis, the submission gate)
  resolves periods through here, so an off-by-one in this package would
  corrupt every trend and utilization figure in the system.

KEY SHAPES:
  Checked in this order:
    contains "M" -> monthly   YYYYMmm  (mm = 01-12, zero padded)
    contains "Q" -> quarterly YYYYQn   (n = 1-4)
    otherwise    -> yearly    YYYY

PREVIOUS PERIOD:
  Previous() walks one period back at the same granularity, with exact
  wraparound: 2024M01 -> 2023M12, 2024Q1 -> 2023Q4, 2024 -> 2023.

DESIGN:
  Pure functions only. No clock, no store, no side effects. All dates are
  UTC at day precision.

SEE ALSO:
  - budget/spend.go:  aggregates counted spend over a resolved period
  - budget/gate.go:   uses CandidateKeys for most-specific budget lookup
*/
package fiscal

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// KEY - Fiscal period identifier
// =============================================================================

// Key is a fiscal period identifier: "YYYY", "YYYYQn", or "YYYYMmm".
type Key string

func (k Key) String() string { return string(k) }

// Granularity is the resolution of a fiscal key.
type Granularity string

const (
	Monthly   Granularity = "monthly"
	Quarterly Granularity = "quarterly"
	Yearly    Granularity = "yearly"
)

// =============================================================================
// PERIOD - Resolved date range
// =============================================================================

// Period is the inclusive [Start, End] date range a fiscal key covers.
// Both bounds are UTC midnights.
type Period struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls within the period (inclusive).
func (p Period) Contains(t time.Time) bool {
	d := day(t)
	return !d.Before(p.Start) && !d.After(p.End)
}

func (p Period) String() string {
	return "[" + p.Start.Format("2006-01-02") + ", " + p.End.Format("2006-01-02") + "]"
}

func day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// =============================================================================
// PARSING
// =============================================================================

type parsedKey struct {
	granularity Granularity
	year        int
	month       int // 1-12, monthly only
	quarter     int // 1-4, quarterly only
}

func parse(k Key) (parsedKey, error) {
	s := string(k)

	switch {
	case strings.Contains(s, "M"):
		if len(s) != 7 || s[4] != 'M' {
			return parsedKey{}, invalidKey(k, "monthly key must be YYYYMmm")
		}
		year, err := parseYear(k, s[:4])
		if err != nil {
			return parsedKey{}, err
		}
		month, err := strconv.Atoi(s[5:7])
		if err != nil || month < 1 || month > 12 {
			return parsedKey{}, invalidKey(k, "month must be 01-12")
		}
		return parsedKey{granularity: Monthly, year: year, month: month}, nil

	case strings.Contains(s, "Q"):
		if len(s) != 6 || s[4] != 'Q' {
			return parsedKey{}, invalidKey(k, "quarterly key must be YYYYQn")
		}
		year, err := parseYear(k, s[:4])
		if err != nil {
			return parsedKey{}, err
		}
		quarter, err := strconv.Atoi(s[5:6])
		if err != nil || quarter < 1 || quarter > 4 {
			return parsedKey{}, invalidKey(k, "quarter must be 1-4")
		}
		return parsedKey{granularity: Quarterly, year: year, quarter: quarter}, nil

	default:
		year, err := parseYear(k, s)
		if err != nil {
			return parsedKey{}, err
		}
		return parsedKey{granularity: Yearly, year: year}, nil
	}
}

func parseYear(k Key, s string) (int, error) {
	if len(s) != 4 {
		return 0, invalidKey(k, "year must be 4 digits")
	}
	year, err := strconv.Atoi(s)
	if err != nil || year <= 0 {
		return 0, invalidKey(k, "year must be 4 digits")
	}
	return year, nil
}

// ParseGranularity returns the granularity of a key without resolving it.
func ParseGranularity(k Key) (Granularity, error) {
	p, err := parse(k)
	if err != nil {
		return "", err
	}
	return p.granularity, nil
}

// =============================================================================
// RESOLUTION
// =============================================================================

// Resolve maps a fiscal key to its inclusive date range.
func Resolve(k Key) (Period, error) {
	p, err := parse(k)
	if err != nil {
		return Period{}, err
	}

	switch p.granularity {
	case Monthly:
		start := time.Date(p.year, time.Month(p.month), 1, 0, 0, 0, 0, time.UTC)
		// Day 0 of the next month is the last day of this one.
		end := time.Date(p.year, time.Month(p.month)+1, 0, 0, 0, 0, 0, time.UTC)
		return Period{Start: start, End: end}, nil

	case Quarterly:
		startMonth := (p.quarter - 1) * 3
		start := time.Date(p.year, time.Month(startMonth)+1, 1, 0, 0, 0, 0, time.UTC)
		end := time.Date(p.year, time.Month(startMonth)+4, 0, 0, 0, 0, 0, time.UTC)
		return Period{Start: start, End: end}, nil

	default: // Yearly
		start := time.Date(p.year, time.January, 1, 0, 0, 0, 0, time.UTC)
		end := time.Date(p.year, time.December, 31, 0, 0, 0, 0, time.UTC)
		return Period{Start: start, End: end}, nil
	}
}

// Previous returns the chronologically preceding key at the same granularity.
// Wraparound is exact: the first month/quarter of a year steps into the
// last month/quarter of the previous year.
func Previous(k Key) (Key, error) {
	p, err := parse(k)
	if err != nil {
		return "", err
	}

	switch p.granularity {
	case Monthly:
		year, month := p.year, p.month-1
		if month == 0 {
			year, month = year-1, 12
		}
		return MonthlyKey(time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)), nil

	case Quarterly:
		year, quarter := p.year, p.quarter-1
		if quarter == 0 {
			year, quarter = year-1, 4
		}
		return Key(fmt.Sprintf("%04dQ%d", year, quarter)), nil

	default:
		return Key(fmt.Sprintf("%04d", p.year-1)), nil
	}
}

// Next returns the chronologically following key at the same granularity.
func Next(k Key) (Key, error) {
	p, err := parse(k)
	if err != nil {
		return "", err
	}

	switch p.granularity {
	case Monthly:
		year, month := p.year, p.month+1
		if month == 13 {
			year, month = year+1, 1
		}
		return MonthlyKey(time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)), nil

	case Quarterly:
		year, quarter := p.year, p.quarter+1
		if quarter == 5 {
			year, quarter = year+1, 1
		}
		return Key(fmt.Sprintf("%04dQ%d", year, quarter)), nil

	default:
		return Key(fmt.Sprintf("%04d", p.year+1)), nil
	}
}

// =============================================================================
// KEY GENERATORS - Date to key, most specific first
// =============================================================================

// MonthlyKey returns the monthly key covering t.
func MonthlyKey(t time.Time) Key {
	return Key(fmt.Sprintf("%04dM%02d", t.Year(), int(t.Month())))
}

// QuarterlyKey returns the quarterly key covering t.
func QuarterlyKey(t time.Time) Key {
	quarter := (int(t.Month())-1)/3 + 1
	return Key(fmt.Sprintf("%04dQ%d", t.Year(), quarter))
}

// YearlyKey returns the yearly key covering t.
func YearlyKey(t time.Time) Key {
	return Key(fmt.Sprintf("%04d", t.Year()))
}

// candidateGenerators is the budget lookup priority: the most granular
// period wins. Extending the scheme (e.g. weekly budgets) means adding a
// generator here, not branching at every call site.
var candidateGenerators = []func(time.Time) Key{
	MonthlyKey,
	QuarterlyKey,
	YearlyKey,
}

// CandidateKeys returns every fiscal key covering t, ordered most specific
// first. The submission gate takes the first key with an active budget.
func CandidateKeys(t time.Time) []Key {
	keys := make([]Key, 0, len(candidateGenerators))
	for _, gen := range candidateGenerators {
		keys = append(keys, gen(t))
	}
	return keys
}

// MonthKey returns the "YYYY-MM" bucket used for monthly spend breakdowns.
func MonthKey(t time.Time) string {
	return t.Format("2006-01")
}
