/*
store.go - Persistence interface for the billing engine

PURPOSE:
  Defines the contract between the engine and the database. Implementations
  exist for SQLite (store/sqlite, production) and memory (billing/store,
  tests and dev).

CONVENTIONS:
  - Get* methods return (nil, nil) when the row does not exist; services
    translate that into NotFoundError. Store failures come back raw and are
    wrapped by services into StoreError.
  - All calls take context.Context; any of them may block on I/O.

UPSERT AS CONCURRENCY CONTROL:
  UpsertInvoice is the one conditional write. Two entries for the same
  card/period assigned concurrently both try to create the invoice; the
  store's UNIQUE(card, period) constraint decides the winner and the loser
  receives the existing row. Implementations MUST use a native
  conditional-insert primitive (INSERT ... ON CONFLICT), never a
  read-then-write sequence, or the race window comes back.

TRANSACTIONS:
  TxStore adds WithTx for the multi-step sequences the engine prefers to
  run atomically (assign-then-recompute, pay-then-flip-entries). Services
  fall back to sequential calls when the store does not implement it.

SEE ALSO:
  - store/sqlite/sqlite.go: Production implementation
  - billing/store/memory.go: In-memory implementation
*/
package billing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// FILTERS
// =============================================================================

// EntryFilter selects ledger entries for aggregation. Zero values are
// unbounded.
type EntryFilter struct {
	UserID     string
	CategoryID string
	Kind       EntryKind
	From       time.Time // inclusive
	To         time.Time // inclusive
}

// =============================================================================
// PER-ENTITY STORES
// =============================================================================

// EntryStore persists ledger entries.
type EntryStore interface {
	CreateEntry(ctx context.Context, e *LedgerEntry) error
	GetEntry(ctx context.Context, id string) (*LedgerEntry, error)
	ListEntries(ctx context.Context, f EntryFilter) ([]LedgerEntry, error)

	// SetEntryInvoice stamps the entry's invoice reference. Set once at
	// assignment time.
	SetEntryInvoice(ctx context.Context, entryID, invoiceID string) error

	// EntriesByInvoice returns entries referencing an invoice, optionally
	// restricted to unpaid ones (the recompute set).
	EntriesByInvoice(ctx context.Context, invoiceID string, unpaidOnly bool) ([]LedgerEntry, error)

	// MarkInvoiceEntriesPaid bulk-flips paid=true on every entry referencing
	// the invoice. The only path by which entries become paid.
	MarkInvoiceEntriesPaid(ctx context.Context, invoiceID string) error

	// SumEntries returns the plain sum of Amount over matching entries.
	SumEntries(ctx context.Context, f EntryFilter) (decimal.Decimal, error)
}

// CardStore persists card configuration.
type CardStore interface {
	SaveCard(ctx context.Context, c *Card) error
	GetCard(ctx context.Context, id string) (*Card, error)
	ListCards(ctx context.Context, userID string) ([]Card, error)
}

// InvoiceStore persists invoices.
type InvoiceStore interface {
	// UpsertInvoice inserts inv unless an invoice for (CardID, Period)
	// already exists, and returns the surviving row either way.
	UpsertInvoice(ctx context.Context, inv Invoice) (*Invoice, error)

	GetInvoice(ctx context.Context, id string) (*Invoice, error)

	// InvoicesByCard returns a card's invoices, most recent period first.
	InvoicesByCard(ctx context.Context, cardID string) ([]Invoice, error)

	// OpenInvoicesForPeriod returns all OPEN invoices with the given period
	// key, across cards. The closing sweep's work list.
	OpenInvoicesForPeriod(ctx context.Context, period PeriodKey) ([]Invoice, error)

	SetInvoiceTotal(ctx context.Context, id string, total decimal.Decimal) error

	// CloseInvoice flips status to CLOSED and stamps the actual closing time.
	CloseInvoice(ctx context.Context, id string, closedAt time.Time) error

	// SetInvoicePayment updates the cumulative paid amount and status after
	// a payment.
	SetInvoicePayment(ctx context.Context, id string, paidAmount decimal.Decimal, status InvoiceStatus) error
}

// PaymentStore persists invoice payments. Append-only: payments are never
// updated or deleted.
type PaymentStore interface {
	CreatePayment(ctx context.Context, p *InvoicePayment) error
	PaymentsByInvoice(ctx context.Context, invoiceID string) ([]InvoicePayment, error)
}

// LimitStore persists category limits.
type LimitStore interface {
	SaveLimit(ctx context.Context, l *CategoryLimit) error
	GetLimit(ctx context.Context, userID, categoryID string, period PeriodKey) (*CategoryLimit, error)
	LimitsForPeriod(ctx context.Context, userID string, period PeriodKey) ([]CategoryLimit, error)

	// IncrementLimitSpend atomically adds delta to the accumulated spend.
	IncrementLimitSpend(ctx context.Context, id string, delta decimal.Decimal) error

	// SetLimitSpend overwrites the accumulated spend with an exact figure.
	SetLimitSpend(ctx context.Context, id string, amount decimal.Decimal) error
}

// =============================================================================
// COMBINED STORE
// =============================================================================

// Store is the full persistence surface the engine consumes.
type Store interface {
	EntryStore
	CardStore
	InvoiceStore
	PaymentStore
	LimitStore
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// inTx runs fn atomically when the store supports it, sequentially
// otherwise. Callers using a non-transactional store must tolerate partial
// completion on crash.
func inTx(ctx context.Context, s Store, fn func(Store) error) error {
	if txs, ok := s.(TxStore); ok {
		return txs.WithTx(ctx, fn)
	}
	return fn(s)
}
