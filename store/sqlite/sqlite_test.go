/*
sqlite_test.go - SQLite store tests

Tests for:
- Invoice upsert uniqueness under the (card, period) index
- Status guards on close and payment updates
- Decimal-exact sums and limit increments
- Bulk paid flips and filtered listing
*/
package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxo/finance-engine/billing"
	"github.com/fluxo/finance-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func testEntry(id, userID, cardID, categoryID, amount string, kind billing.EntryKind, occurredAt time.Time) *billing.LedgerEntry {
	return &billing.LedgerEntry{
		ID:         id,
		UserID:     userID,
		CardID:     cardID,
		CategoryID: categoryID,
		Amount:     dec(amount),
		Kind:       kind,
		Method:     billing.MethodCredit,
		OccurredAt: occurredAt,
	}
}

func testInvoice(id, cardID string, period billing.PeriodKey) billing.Invoice {
	return billing.Invoice{
		ID:          id,
		CardID:      cardID,
		Period:      period,
		ClosingDate: billing.ClosingDateFor(5, period),
		DueDate:     billing.DueDateFor(12, period),
		Status:      billing.InvoiceOpen,
		TotalAmount: decimal.Zero,
		PaidAmount:  decimal.Zero,
	}
}

// =============================================================================
// INVOICE UNIQUENESS
// =============================================================================

func TestUpsertInvoice_ConflictReturnsExisting(t *testing.T) {
	// GIVEN: An invoice already stored for (card-1, 2025-11)
	// WHEN: A second upsert races in with a different ID for the same slot
	// THEN: The original row survives and is returned

	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.UpsertInvoice(ctx, testInvoice("inv-1", "card-1", "2025-11"))
	require.NoError(t, err)

	second, err := store.UpsertInvoice(ctx, testInvoice("inv-2", "card-1", "2025-11"))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "conflicting upsert should return the surviving row")
	assert.Equal(t, "inv-1", second.ID)
}

func TestUpsertInvoice_DifferentPeriods_Coexist(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.UpsertInvoice(ctx, testInvoice("inv-1", "card-1", "2025-11"))
	require.NoError(t, err)
	_, err = store.UpsertInvoice(ctx, testInvoice("inv-2", "card-1", "2025-12"))
	require.NoError(t, err)

	invoices, err := store.InvoicesByCard(ctx, "card-1")
	require.NoError(t, err)
	require.Len(t, invoices, 2)
	assert.Equal(t, billing.PeriodKey("2025-12"), invoices[0].Period, "most recent period first")
}

// =============================================================================
// STATUS GUARDS
// =============================================================================

func TestCloseInvoice_OnlyFiresOnOpen(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	inv, err := store.UpsertInvoice(ctx, testInvoice("inv-1", "card-1", "2025-11"))
	require.NoError(t, err)

	closedAt := day(2025, time.December, 1)
	require.NoError(t, store.CloseInvoice(ctx, inv.ID, closedAt))

	reloaded, err := store.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.InvoiceClosed, reloaded.Status)
	require.NotNil(t, reloaded.ClosedAt)

	// A second close is a no-op; the original timestamp stands.
	require.NoError(t, store.CloseInvoice(ctx, inv.ID, day(2026, time.January, 1)))
	again, err := store.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.ClosedAt.Equal(*again.ClosedAt), "closing timestamp must not move")
}

func TestSetInvoicePayment_PaidIsTerminal(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	inv, err := store.UpsertInvoice(ctx, testInvoice("inv-1", "card-1", "2025-11"))
	require.NoError(t, err)

	require.NoError(t, store.SetInvoicePayment(ctx, inv.ID, dec("100"), billing.InvoicePaid))

	// Any further payment update bounces off the status guard.
	require.NoError(t, store.SetInvoicePayment(ctx, inv.ID, dec("999"), billing.InvoiceClosed))

	reloaded, err := store.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.InvoicePaid, reloaded.Status)
	assert.True(t, reloaded.PaidAmount.Equal(dec("100")))
}

// =============================================================================
// ENTRIES
// =============================================================================

func TestEntries_RoundTripAndFilter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateEntry(ctx, testEntry("e-1", "user-1", "card-1", "food", "40.10", billing.KindExpense, day(2025, time.November, 2))))
	require.NoError(t, store.CreateEntry(ctx, testEntry("e-2", "user-1", "card-1", "food", "9.90", billing.KindExpense, day(2025, time.November, 30))))
	require.NoError(t, store.CreateEntry(ctx, testEntry("e-3", "user-1", "", "food", "100", billing.KindExpense, day(2025, time.December, 1))))
	require.NoError(t, store.CreateEntry(ctx, testEntry("e-4", "user-2", "", "food", "5", billing.KindExpense, day(2025, time.November, 10))))

	entries, err := store.ListEntries(ctx, billing.EntryFilter{
		UserID: "user-1",
		From:   day(2025, time.November, 1),
		To:     day(2025, time.November, 30),
	})
	require.NoError(t, err)
	require.Len(t, entries, 2, "date range is inclusive on both ends")
	assert.Equal(t, "e-1", entries[0].ID)
	assert.True(t, entries[0].Amount.Equal(dec("40.10")))
}

func TestSumEntries_DecimalExact(t *testing.T) {
	// Classic float trap: 0.1 + 0.2. The sum must be exactly 0.3.

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateEntry(ctx, testEntry("e-1", "user-1", "", "food", "0.1", billing.KindExpense, day(2025, time.November, 2))))
	require.NoError(t, store.CreateEntry(ctx, testEntry("e-2", "user-1", "", "food", "0.2", billing.KindExpense, day(2025, time.November, 3))))

	sum, err := store.SumEntries(ctx, billing.EntryFilter{UserID: "user-1", Kind: billing.KindExpense})
	require.NoError(t, err)
	assert.True(t, sum.Equal(dec("0.3")), "expected exactly 0.3, got %s", sum)
}

func TestMarkInvoiceEntriesPaid_BulkFlip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"e-1", "e-2"} {
		e := testEntry(id, "user-1", "card-1", "food", "10", billing.KindExpense, day(2025, time.November, 2))
		require.NoError(t, store.CreateEntry(ctx, e))
		require.NoError(t, store.SetEntryInvoice(ctx, id, "inv-1"))
	}
	// An entry on a different invoice must not flip.
	other := testEntry("e-3", "user-1", "card-1", "food", "10", billing.KindExpense, day(2025, time.November, 2))
	require.NoError(t, store.CreateEntry(ctx, other))
	require.NoError(t, store.SetEntryInvoice(ctx, "e-3", "inv-2"))

	require.NoError(t, store.MarkInvoiceEntriesPaid(ctx, "inv-1"))

	unpaid, err := store.EntriesByInvoice(ctx, "inv-1", true)
	require.NoError(t, err)
	assert.Empty(t, unpaid)

	all, err := store.EntriesByInvoice(ctx, "inv-1", false)
	require.NoError(t, err)
	require.Len(t, all, 2)
	for _, e := range all {
		assert.True(t, e.Paid)
	}

	e3, err := store.GetEntry(ctx, "e-3")
	require.NoError(t, err)
	assert.False(t, e3.Paid, "entries of other invoices must not flip")
}

// =============================================================================
// CARDS
// =============================================================================

func TestSaveCard_UpsertPreservesIdentity(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	limit := dec("3000")
	card := &billing.Card{
		ID:          "card-1",
		UserID:      "user-1",
		Name:        "Platinum",
		Network:     "visa",
		CreditLimit: &limit,
		ClosingDay:  5,
		DueDay:      12,
	}
	require.NoError(t, store.SaveCard(ctx, card))

	card.Name = "Platinum Renamed"
	card.ClosingDay = 10
	require.NoError(t, store.SaveCard(ctx, card))

	cards, err := store.ListCards(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, "Platinum Renamed", cards[0].Name)
	assert.Equal(t, 10, cards[0].ClosingDay)
	require.NotNil(t, cards[0].CreditLimit)
	assert.True(t, cards[0].CreditLimit.Equal(dec("3000")))
}

func TestGetCard_Missing_NilNil(t *testing.T) {
	store := newTestStore(t)

	card, err := store.GetCard(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, card)
}

// =============================================================================
// LIMITS
// =============================================================================

func TestLimits_UpsertAndIncrement(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	limit := &billing.CategoryLimit{
		ID:          "lim-1",
		UserID:      "user-1",
		CategoryID:  "food",
		Period:      "2025-11",
		LimitAmount: dec("500"),
		SpentAmount: decimal.Zero,
	}
	require.NoError(t, store.SaveLimit(ctx, limit))

	// Re-saving the same (user, category, period) updates in place.
	limit.ID = "lim-other"
	limit.LimitAmount = dec("600")
	require.NoError(t, store.SaveLimit(ctx, limit))

	stored, err := store.GetLimit(ctx, "user-1", "food", "2025-11")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "lim-1", stored.ID, "original row identity survives the upsert")
	assert.True(t, stored.LimitAmount.Equal(dec("600")))

	require.NoError(t, store.IncrementLimitSpend(ctx, "lim-1", dec("0.1")))
	require.NoError(t, store.IncrementLimitSpend(ctx, "lim-1", dec("0.2")))

	stored, err = store.GetLimit(ctx, "user-1", "food", "2025-11")
	require.NoError(t, err)
	assert.True(t, stored.SpentAmount.Equal(dec("0.3")), "increments must be decimal-exact, got %s", stored.SpentAmount)
}

func TestIncrementLimitSpend_MissingRow_NoOp(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.IncrementLimitSpend(context.Background(), "ghost", dec("10")))
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestWithTx_RollsBackOnError(t *testing.T) {
	// GIVEN: A transaction that writes an entry then fails
	// WHEN: WithTx returns the error
	// THEN: The entry is not persisted

	store := newTestStore(t)
	ctx := context.Background()

	err := store.WithTx(ctx, func(st billing.Store) error {
		if err := st.CreateEntry(ctx, testEntry("e-1", "user-1", "", "food", "10", billing.KindExpense, day(2025, time.November, 2))); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	entry, err := store.GetEntry(ctx, "e-1")
	require.NoError(t, err)
	assert.Nil(t, entry, "rolled-back entry must not exist")
}

func TestWithTx_CommitsOnSuccess(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.WithTx(ctx, func(st billing.Store) error {
		if err := st.CreateEntry(ctx, testEntry("e-1", "user-1", "card-1", "food", "10", billing.KindExpense, day(2025, time.November, 2))); err != nil {
			return err
		}
		if _, err := st.UpsertInvoice(ctx, testInvoice("inv-1", "card-1", "2025-11")); err != nil {
			return err
		}
		return st.SetEntryInvoice(ctx, "e-1", "inv-1")
	})
	require.NoError(t, err)

	entry, err := store.GetEntry(ctx, "e-1")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "inv-1", entry.InvoiceID)
}

// =============================================================================
// PAYMENTS
// =============================================================================

func TestPayments_AppendAndList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	p1 := &billing.InvoicePayment{
		ID: "pay-1", InvoiceID: "inv-1", Amount: dec("50"),
		Method: billing.MethodPix, PayerID: "user-1", Note: "first",
		CreatedAt: day(2025, time.December, 1),
	}
	p2 := &billing.InvoicePayment{
		ID: "pay-2", InvoiceID: "inv-1", Amount: dec("70"),
		Method: billing.MethodPix, PayerID: "user-1",
		CreatedAt: day(2025, time.December, 5),
	}
	require.NoError(t, store.CreatePayment(ctx, p1))
	require.NoError(t, store.CreatePayment(ctx, p2))

	payments, err := store.PaymentsByInvoice(ctx, "inv-1")
	require.NoError(t, err)
	require.Len(t, payments, 2)
	assert.Equal(t, "pay-1", payments[0].ID, "oldest first")
	assert.True(t, payments[0].Amount.Equal(dec("50")))
	assert.Equal(t, "first", payments[0].Note)
}
