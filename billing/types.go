/*
Package billing implements the invoice and budget engine behind the Fluxo
finance application.

PURPOSE:
  This package contains the domain types and algorithms for credit-card
  billing cycles: assigning ledger entries to the correct monthly invoice,
  keeping invoice totals consistent with unpaid entries, moving invoices
  through their payment lifecycle, and tracking per-category monthly
  spending limits.

KEY CONCEPTS IN THIS FILE (types.go):
  - LedgerEntry: A single income or expense record (the atomic unit)
  - Card: Billing configuration for a payment instrument (closing/due day)
  - Invoice: One card's accumulated obligation for one billing period
  - InvoicePayment: An immutable record of a payment against an invoice
  - CategoryLimit: A monthly spending ceiling for one category

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal for money to avoid floating-point errors
  2. Sign convention: entry amounts are always positive; Kind carries meaning.
     On an invoice, EXPENSE entries add to the total and INCOME entries
     (refunds, cashback) subtract from it.
  3. Forward-only lifecycle: invoice status never regresses

SEE ALSO:
  - period.go: Billing-cycle resolution (date -> period key)
  - invoice.go: Invoice aggregation (upsert + total recompute)
  - lifecycle.go: Closing sweep and payments
  - limits.go: Category limit tracking
*/
package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ENTRY - A single financial movement
// =============================================================================

// EntryKind classifies a ledger entry as money in or money out.
type EntryKind string

const (
	KindIncome  EntryKind = "INCOME"
	KindExpense EntryKind = "EXPENSE"
)

// PaymentMethod tags how an entry was paid. Only credit-tagged entries are
// eligible for invoice assignment.
type PaymentMethod string

const (
	MethodCredit PaymentMethod = "CREDIT"
	MethodDebit  PaymentMethod = "DEBIT"
	MethodPix    PaymentMethod = "PIX"
	MethodCash   PaymentMethod = "CASH"
)

// LedgerEntry is a single financial movement. Amount is always positive;
// Kind determines how it contributes to totals.
//
// Entries are immutable once posted, with two exceptions owned by this
// package: InvoiceID is set once at assignment time, and Paid flips to true
// only when the owning invoice transitions to PAID.
type LedgerEntry struct {
	ID          string
	UserID      string
	CardID      string // empty for entries not backed by a card
	CategoryID  string
	Amount      decimal.Decimal
	Kind        EntryKind
	Method      PaymentMethod
	OccurredAt  time.Time
	Paid        bool
	InvoiceID   string // empty until assigned; never set on non-credit entries
	Description string
	CreatedAt   time.Time
}

// =============================================================================
// CARD - Billing configuration for a payment instrument
// =============================================================================

// Card holds the per-card billing policy. ClosingDay and DueDay are
// calendar-day ordinals (1..31); zero means unset, in which case the
// engine defaults apply (closing day 1, due day 10). When a month has
// fewer days than the configured ordinal, the ordinal is clamped to the
// month's last day.
type Card struct {
	ID          string
	UserID      string
	Name        string
	Network     string
	CreditLimit *decimal.Decimal // nil when no limit is configured
	ClosingDay  int
	DueDay      int
	Color       string
	Notes       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// =============================================================================
// INVOICE - One card's statement for one billing period
// =============================================================================

// InvoiceStatus is the invoice lifecycle state.
type InvoiceStatus string

const (
	InvoiceOpen   InvoiceStatus = "OPEN"
	InvoiceClosed InvoiceStatus = "CLOSED"
	InvoicePaid   InvoiceStatus = "PAID"
)

// CanTransitionTo reports whether moving from s to next is a legal forward
// transition. OPEN -> CLOSED -> PAID, with PAID reachable directly from OPEN.
// Status never regresses.
func (s InvoiceStatus) CanTransitionTo(next InvoiceStatus) bool {
	switch s {
	case InvoiceOpen:
		return next == InvoiceClosed || next == InvoicePaid
	case InvoiceClosed:
		return next == InvoicePaid
	default:
		return false
	}
}

// Invoice is one card's accumulated obligation for one billing period.
// At most one Invoice exists per (CardID, Period) pair; the store enforces
// this with a uniqueness constraint and the engine relies on it for
// race-free upserts.
type Invoice struct {
	ID          string
	CardID      string
	Period      PeriodKey
	ClosingDate time.Time
	DueDate     time.Time
	Status      InvoiceStatus
	TotalAmount decimal.Decimal // signed sum of unpaid entries
	PaidAmount  decimal.Decimal
	ClosedAt    *time.Time // actual closing timestamp, stamped by the sweep
	CreatedAt   time.Time
}

// Remaining returns the unpaid balance on the invoice.
func (i *Invoice) Remaining() decimal.Decimal {
	return i.TotalAmount.Sub(i.PaidAmount)
}

// =============================================================================
// PAYMENT - Immutable record of a payment against an invoice
// =============================================================================

// InvoicePayment records one partial or full payment. Payments are never
// mutated or deleted.
type InvoicePayment struct {
	ID        string
	InvoiceID string
	Amount    decimal.Decimal
	Method    PaymentMethod
	PayerID   string
	Note      string
	CreatedAt time.Time
}

// =============================================================================
// CATEGORY LIMIT - Monthly spending ceiling
// =============================================================================

// CategoryLimit is a monthly spending ceiling for one category. One limit
// exists per (UserID, CategoryID, Period); lookup is by this composite key.
type CategoryLimit struct {
	ID          string
	UserID      string
	CategoryID  string
	Period      PeriodKey
	LimitAmount decimal.Decimal
	SpentAmount decimal.Decimal
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Exceeded reports whether accumulated spend has reached the ceiling.
func (l *CategoryLimit) Exceeded() bool {
	return l.SpentAmount.GreaterThanOrEqual(l.LimitAmount)
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidateEntry checks a ledger entry before any store mutation is attempted.
func ValidateEntry(e *LedgerEntry) error {
	if e.UserID == "" {
		return &ValidationError{Field: "userId", Reason: "required"}
	}
	if !e.Amount.IsPositive() {
		return &ValidationError{Field: "amount", Reason: "must be positive"}
	}
	switch e.Kind {
	case KindIncome, KindExpense:
	default:
		return &ValidationError{Field: "kind", Reason: "must be INCOME or EXPENSE"}
	}
	if e.Method == MethodCredit && e.CardID == "" {
		return &ValidationError{Field: "cardId", Reason: "required for credit entries"}
	}
	if e.OccurredAt.IsZero() {
		return &ValidationError{Field: "occurredAt", Reason: "required"}
	}
	return nil
}

// ValidateCard checks card billing configuration. Day ordinals are either
// zero (unset, defaults apply) or within 1..31.
func ValidateCard(c *Card) error {
	if c.UserID == "" {
		return &ValidationError{Field: "userId", Reason: "required"}
	}
	if c.Name == "" {
		return &ValidationError{Field: "name", Reason: "required"}
	}
	if err := validateDayOrdinal("closingDay", c.ClosingDay); err != nil {
		return err
	}
	return validateDayOrdinal("dueDay", c.DueDay)
}

func validateDayOrdinal(field string, day int) error {
	if day < 0 || day > 31 {
		return &ValidationError{Field: field, Reason: "must be within 1..31"}
	}
	return nil
}

// ValidateLimit checks a category limit definition.
func ValidateLimit(l *CategoryLimit) error {
	if l.UserID == "" {
		return &ValidationError{Field: "userId", Reason: "required"}
	}
	if l.CategoryID == "" {
		return &ValidationError{Field: "categoryId", Reason: "required"}
	}
	if !l.LimitAmount.IsPositive() {
		return &ValidationError{Field: "limitAmount", Reason: "must be positive"}
	}
	if !l.Period.Valid() {
		return &ValidationError{Field: "period", Reason: "must be YYYY-MM"}
	}
	return nil
}
