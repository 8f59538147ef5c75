/*
limits.go - Category spending limit tracker

PURPOSE:
  Keeps each category limit's accumulated-spend figure consistent with the
  ledger, via two complementary strategies: a cheap incremental delta on
  every qualifying expense, and a full recompute that re-sums the month's
  entries and corrects any drift.

BEST-EFFORT CONTRACT:
  ApplyEntryDelta never returns an error. Limit bookkeeping is a side
  channel of the primary ledger write; its failures are logged and
  swallowed so they can never block a financial record from landing.
  Drift introduced by a swallowed failure (or by bulk edits that bypass
  the delta path) is repaired by RecomputeAll.

SEE ALSO:
  - period.go: MonthRange, the recompute's date window
*/
package billing

import (
	"context"
	"log"

	"github.com/shopspring/decimal"
)

// LimitTracker maintains per-category monthly spend accumulators.
type LimitTracker struct {
	store  Store
	clock  Clock
	logger *log.Logger
}

// NewLimitTracker creates a limit tracker. Nil clock means system time;
// nil logger means the standard logger.
func NewLimitTracker(store Store, clock Clock, logger *log.Logger) *LimitTracker {
	if clock == nil {
		clock = SystemClock()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &LimitTracker{store: store, clock: clock, logger: logger}
}

// ApplyEntryDelta increments the (user, category, current period) limit's
// accumulated spend by amount. No-op for non-expense kinds and for
// categories the user has not budgeted this month. Never fails: internal
// errors are logged and discarded.
func (t *LimitTracker) ApplyEntryDelta(ctx context.Context, userID, categoryID string, amount decimal.Decimal, kind EntryKind) {
	if kind != KindExpense {
		return
	}

	period := PeriodOf(t.clock.Now())
	limit, err := t.store.GetLimit(ctx, userID, categoryID, period)
	if err != nil {
		t.logger.Printf("[Limits] lookup %s/%s %s failed: %v", userID, categoryID, period, err)
		return
	}
	if limit == nil {
		// No budget defined for this category this month.
		return
	}

	if err := t.store.IncrementLimitSpend(ctx, limit.ID, amount); err != nil {
		t.logger.Printf("[Limits] increment %s failed: %v", limit.ID, err)
	}
}

// RecomputeAll overwrites every current-period limit of the user with the
// exact sum of matching expense entries in the month's date range.
func (t *LimitTracker) RecomputeAll(ctx context.Context, userID string) error {
	period := PeriodOf(t.clock.Now())
	from, to, err := MonthRange(period)
	if err != nil {
		return err
	}

	limits, err := t.store.LimitsForPeriod(ctx, userID, period)
	if err != nil {
		return storeErr("list limits", err)
	}

	for _, l := range limits {
		sum, err := t.store.SumEntries(ctx, EntryFilter{
			UserID:     userID,
			CategoryID: l.CategoryID,
			Kind:       KindExpense,
			From:       from,
			To:         to,
		})
		if err != nil {
			return storeErr("sum entries", err)
		}
		if err := t.store.SetLimitSpend(ctx, l.ID, sum); err != nil {
			return storeErr("set limit spend", err)
		}
	}
	return nil
}
