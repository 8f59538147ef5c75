/*
limits_test.go - Category limit tracker tests

PURPOSE:
  Documents the two bookkeeping strategies for category limits: the
  best-effort incremental delta applied per entry, and the exact full
  recompute that repairs drift. Limit failures must never surface to the
  caller recording the entry.
*/
package billing_test

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fluxo/finance-engine/billing"
	"github.com/fluxo/finance-engine/billing/store"
)

// =============================================================================
// TEST INFRASTRUCTURE
// =============================================================================

func newTestTracker(now time.Time) (*billing.LimitTracker, *store.Memory) {
	mem := store.NewMemory()
	quiet := log.New(io.Discard, "", 0)
	return billing.NewLimitTracker(mem, fixedClock{t: now}, quiet), mem
}

func saveTestLimit(t *testing.T, mem *store.Memory, userID, categoryID string, period billing.PeriodKey, amount string) *billing.CategoryLimit {
	t.Helper()
	limit := &billing.CategoryLimit{
		ID:          "lim-" + categoryID,
		UserID:      userID,
		CategoryID:  categoryID,
		Period:      period,
		LimitAmount: money(amount),
		SpentAmount: decimal.Zero,
	}
	if err := mem.SaveLimit(context.Background(), limit); err != nil {
		t.Fatalf("save limit: %v", err)
	}
	return limit
}

// failingLimitStore wraps the memory store and fails limit operations.
type failingLimitStore struct {
	*store.Memory
	failGet       bool
	failIncrement bool
}

func (f *failingLimitStore) GetLimit(ctx context.Context, userID, categoryID string, period billing.PeriodKey) (*billing.CategoryLimit, error) {
	if f.failGet {
		return nil, errors.New("disk on fire")
	}
	return f.Memory.GetLimit(ctx, userID, categoryID, period)
}

func (f *failingLimitStore) IncrementLimitSpend(ctx context.Context, id string, delta decimal.Decimal) error {
	if f.failIncrement {
		return errors.New("disk on fire")
	}
	return f.Memory.IncrementLimitSpend(ctx, id, delta)
}

// =============================================================================
// INCREMENTAL DELTAS
// =============================================================================

func TestApplyEntryDelta_ExpenseIncrementsSpend(t *testing.T) {
	// GIVEN: A 500 food budget for the current month
	// WHEN: A 75.50 expense in that category is recorded
	// THEN: The accumulated spend rises to 75.50

	now := date(2025, time.November, 10)
	tracker, mem := newTestTracker(now)
	ctx := context.Background()

	saveTestLimit(t, mem, "user-1", "food", "2025-11", "500")

	tracker.ApplyEntryDelta(ctx, "user-1", "food", money("75.50"), billing.KindExpense)

	reloaded, _ := mem.GetLimit(ctx, "user-1", "food", "2025-11")
	if !reloaded.SpentAmount.Equal(money("75.50")) {
		t.Errorf("expected spent 75.50, got %s", reloaded.SpentAmount)
	}
}

func TestApplyEntryDelta_IncomeIgnored(t *testing.T) {
	// Income never counts against a spending budget.

	now := date(2025, time.November, 10)
	tracker, mem := newTestTracker(now)
	ctx := context.Background()

	saveTestLimit(t, mem, "user-1", "food", "2025-11", "500")

	tracker.ApplyEntryDelta(ctx, "user-1", "food", money("75.50"), billing.KindIncome)

	reloaded, _ := mem.GetLimit(ctx, "user-1", "food", "2025-11")
	if !reloaded.SpentAmount.IsZero() {
		t.Errorf("expected spent 0, got %s", reloaded.SpentAmount)
	}
}

func TestApplyEntryDelta_NoBudget_NoOp(t *testing.T) {
	// GIVEN: No limit configured for the category
	// WHEN: An expense is recorded
	// THEN: Nothing is created; the tracker stays silent

	now := date(2025, time.November, 10)
	tracker, mem := newTestTracker(now)
	ctx := context.Background()

	tracker.ApplyEntryDelta(ctx, "user-1", "transport", money("30"), billing.KindExpense)

	limits, _ := mem.LimitsForPeriod(ctx, "user-1", "2025-11")
	if len(limits) != 0 {
		t.Errorf("expected no limits, got %d", len(limits))
	}
}

func TestApplyEntryDelta_WrongPeriod_NoOp(t *testing.T) {
	// A budget for a different month is not touched.

	now := date(2025, time.November, 10)
	tracker, mem := newTestTracker(now)
	ctx := context.Background()

	saveTestLimit(t, mem, "user-1", "food", "2025-10", "500")

	tracker.ApplyEntryDelta(ctx, "user-1", "food", money("75.50"), billing.KindExpense)

	old, _ := mem.GetLimit(ctx, "user-1", "food", "2025-10")
	if !old.SpentAmount.IsZero() {
		t.Errorf("october budget should be untouched, got %s", old.SpentAmount)
	}
}

func TestApplyEntryDelta_LookupFailure_Swallowed(t *testing.T) {
	// Limit bookkeeping must never propagate a failure to the entry write.

	now := date(2025, time.November, 10)
	mem := store.NewMemory()
	failing := &failingLimitStore{Memory: mem, failGet: true}
	tracker := billing.NewLimitTracker(failing, fixedClock{t: now}, log.New(io.Discard, "", 0))

	// Must not panic or error.
	tracker.ApplyEntryDelta(context.Background(), "user-1", "food", money("75.50"), billing.KindExpense)
}

func TestApplyEntryDelta_IncrementFailure_Swallowed(t *testing.T) {
	now := date(2025, time.November, 10)
	mem := store.NewMemory()
	saveTestLimit(t, mem, "user-1", "food", "2025-11", "500")
	failing := &failingLimitStore{Memory: mem, failIncrement: true}
	tracker := billing.NewLimitTracker(failing, fixedClock{t: now}, log.New(io.Discard, "", 0))

	tracker.ApplyEntryDelta(context.Background(), "user-1", "food", money("75.50"), billing.KindExpense)

	reloaded, _ := mem.GetLimit(context.Background(), "user-1", "food", "2025-11")
	if !reloaded.SpentAmount.IsZero() {
		t.Errorf("expected spent unchanged, got %s", reloaded.SpentAmount)
	}
}

// =============================================================================
// FULL RECOMPUTE
// =============================================================================

func TestRecomputeAll_CorrectsDrift(t *testing.T) {
	// GIVEN: A limit whose accumulator has drifted from the ledger
	// WHEN: RecomputeAll runs
	// THEN: The accumulator equals the exact sum of the month's expenses

	now := date(2025, time.November, 15)
	tracker, mem := newTestTracker(now)
	ctx := context.Background()

	limit := saveTestLimit(t, mem, "user-1", "food", "2025-11", "500")
	mem.SetLimitSpend(ctx, limit.ID, money("999")) // drift

	entries := []*billing.LedgerEntry{
		{ID: "e-1", UserID: "user-1", CategoryID: "food", Amount: money("40"), Kind: billing.KindExpense, Method: billing.MethodDebit, OccurredAt: date(2025, time.November, 2)},
		{ID: "e-2", UserID: "user-1", CategoryID: "food", Amount: money("60.25"), Kind: billing.KindExpense, Method: billing.MethodCash, OccurredAt: date(2025, time.November, 20)},
		// Outside the month
		{ID: "e-3", UserID: "user-1", CategoryID: "food", Amount: money("500"), Kind: billing.KindExpense, Method: billing.MethodDebit, OccurredAt: date(2025, time.October, 30)},
		// Wrong kind
		{ID: "e-4", UserID: "user-1", CategoryID: "food", Amount: money("80"), Kind: billing.KindIncome, Method: billing.MethodDebit, OccurredAt: date(2025, time.November, 5)},
		// Wrong category
		{ID: "e-5", UserID: "user-1", CategoryID: "transport", Amount: money("15"), Kind: billing.KindExpense, Method: billing.MethodDebit, OccurredAt: date(2025, time.November, 6)},
	}
	for _, e := range entries {
		if err := mem.CreateEntry(ctx, e); err != nil {
			t.Fatalf("create entry %s: %v", e.ID, err)
		}
	}

	if err := tracker.RecomputeAll(ctx, "user-1"); err != nil {
		t.Fatalf("recompute: %v", err)
	}

	reloaded, _ := mem.GetLimit(ctx, "user-1", "food", "2025-11")
	if !reloaded.SpentAmount.Equal(money("100.25")) {
		t.Errorf("expected spent 100.25, got %s", reloaded.SpentAmount)
	}
}

func TestRecomputeAll_ZeroEntries_ZeroSpend(t *testing.T) {
	now := date(2025, time.November, 15)
	tracker, mem := newTestTracker(now)
	ctx := context.Background()

	limit := saveTestLimit(t, mem, "user-1", "food", "2025-11", "500")
	mem.SetLimitSpend(ctx, limit.ID, money("123"))

	if err := tracker.RecomputeAll(ctx, "user-1"); err != nil {
		t.Fatalf("recompute: %v", err)
	}

	reloaded, _ := mem.GetLimit(ctx, "user-1", "food", "2025-11")
	if !reloaded.SpentAmount.IsZero() {
		t.Errorf("expected spent 0, got %s", reloaded.SpentAmount)
	}
}

// =============================================================================
// LIMIT STATE
// =============================================================================

func TestCategoryLimit_Exceeded(t *testing.T) {
	limit := billing.CategoryLimit{LimitAmount: money("100"), SpentAmount: money("99.99")}
	if limit.Exceeded() {
		t.Error("spend below the limit should not report exceeded")
	}

	limit.SpentAmount = money("100")
	if !limit.Exceeded() {
		t.Error("spend reaching the limit should report exceeded")
	}
}
