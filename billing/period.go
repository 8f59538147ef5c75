/*
period.go - Billing-cycle resolution

PURPOSE:
  Pure date arithmetic that maps a ledger entry's occurrence date plus a
  card's closing-day policy to the canonical invoice period, and turns a
  period back into concrete closing/due calendar dates.

STATEMENT CYCLE CONVENTION:
  A charge made AFTER the card's closing day belongs to the NEXT month's
  statement: the current cycle already closed, so the charge rolls forward.
  A charge on or before the closing day stays in the current month.

  closingDay=5, charge on Nov 3   -> 2025-11
  closingDay=5, charge on Nov 10  -> 2025-12
  closingDay=25, charge on Dec 30 -> 2026-01 (year wrap)

TIMEZONE SAFETY:
  The day-of-month used for the comparison is taken from the UTC date part
  of the occurrence timestamp. Callers store occurrence dates normalized to
  UTC midnight, so local-timezone rollover can never move an entry across a
  cycle boundary.

DUE DATE:
  The due date falls in the SAME calendar month as the period key, matching
  the product's observed behavior. Many card products bill into the
  following month. If that ever changes it changes here and nowhere else.

SEE ALSO:
  - invoice.go: Consumes ResolvePeriod when assigning entries
  - lifecycle.go: Uses Previous/CurrentPeriod for the closing sweep
*/
package billing

import (
	"fmt"
	"time"
)

// Defaults applied when a card has no configured ordinals.
const (
	DefaultClosingDay = 1
	DefaultDueDay     = 10
)

// PeriodKey identifies a billing cycle instance, canonical form "YYYY-MM".
// It is the one durable string format shared across the engine, the store
// and the API, and must be produced and parsed identically everywhere.
type PeriodKey string

// ResolvePeriod maps an occurrence date and a closing day to the period the
// entry bills into. A non-positive closingDay falls back to DefaultClosingDay.
// Purely a function of its inputs; no failure modes.
func ResolvePeriod(occurredAt time.Time, closingDay int) PeriodKey {
	if closingDay <= 0 {
		closingDay = DefaultClosingDay
	}

	year, month, day := occurredAt.UTC().Date()
	if day > closingDay {
		month++
		if month > time.December {
			month = time.January
			year++
		}
	}
	return newPeriodKey(year, month)
}

// PeriodOf returns the calendar period containing t, ignoring any closing
// day. Used for "current month" lookups (limits, current invoice).
func PeriodOf(t time.Time) PeriodKey {
	year, month, _ := t.UTC().Date()
	return newPeriodKey(year, month)
}

func newPeriodKey(year int, month time.Month) PeriodKey {
	return PeriodKey(fmt.Sprintf("%04d-%02d", year, int(month)))
}

// ParsePeriod splits a period key into year and month. Malformed keys are a
// ValidationError; keys produced by this package always parse.
func ParsePeriod(p PeriodKey) (int, time.Month, error) {
	var year, month int
	if n, err := fmt.Sscanf(string(p), "%4d-%2d", &year, &month); n != 2 || err != nil {
		return 0, 0, &ValidationError{Field: "period", Reason: "must be YYYY-MM"}
	}
	if len(p) != 7 || month < 1 || month > 12 {
		return 0, 0, &ValidationError{Field: "period", Reason: "must be YYYY-MM"}
	}
	return year, time.Month(month), nil
}

// Valid reports whether p is a well-formed period key.
func (p PeriodKey) Valid() bool {
	_, _, err := ParsePeriod(p)
	return err == nil
}

// Next returns the following calendar period, wrapping December into
// January of the next year. Returns p unchanged when p is malformed.
func (p PeriodKey) Next() PeriodKey {
	year, month, err := ParsePeriod(p)
	if err != nil {
		return p
	}
	month++
	if month > time.December {
		month = time.January
		year++
	}
	return newPeriodKey(year, month)
}

// Previous returns the preceding calendar period, wrapping January into
// December of the prior year. Returns p unchanged when p is malformed.
func (p PeriodKey) Previous() PeriodKey {
	year, month, err := ParsePeriod(p)
	if err != nil {
		return p
	}
	month--
	if month < time.January {
		month = time.December
		year--
	}
	return newPeriodKey(year, month)
}

// ClosingDateFor computes the actual closing date for a period, clamping the
// configured ordinal to the last valid day of that month (closing day 31 in
// April yields the 30th; 29 in a non-leap February yields the 28th).
func ClosingDateFor(closingDay int, period PeriodKey) time.Time {
	if closingDay <= 0 {
		closingDay = DefaultClosingDay
	}
	return dateInPeriod(closingDay, period)
}

// DueDateFor computes the payment due date for a period, with the same
// clamping rule. The due date stays within the period's own month.
func DueDateFor(dueDay int, period PeriodKey) time.Time {
	if dueDay <= 0 {
		dueDay = DefaultDueDay
	}
	return dateInPeriod(dueDay, period)
}

func dateInPeriod(day int, period PeriodKey) time.Time {
	year, month, err := ParsePeriod(period)
	if err != nil {
		return time.Time{}
	}
	if last := lastDayOfMonth(year, month); day > last {
		day = last
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func lastDayOfMonth(year int, month time.Month) int {
	// Day zero of the following month.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// MonthRange returns the inclusive [first day, last day] date range covered
// by a period, both at UTC midnight. Backs the limit recompute query.
func MonthRange(period PeriodKey) (time.Time, time.Time, error) {
	year, month, err := ParsePeriod(period)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(year, month, lastDayOfMonth(year, month), 0, 0, 0, 0, time.UTC)
	return start, end, nil
}
