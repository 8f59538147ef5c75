/*
lifecycle.go - Invoice state machine

PURPOSE:
  Moves invoices through OPEN -> CLOSED -> PAID (PAID reachable directly
  from OPEN when fully paid before the formal close). Two entry points:
  the periodic closing sweep, and explicit payment actions.

CLOCK INJECTION:
  Both operations depend on "today". The clock is injected so the sweep is
  deterministic under test; nothing here reads ambient system time.

PAYMENT SEMANTICS:
  Each payment creates an immutable InvoicePayment row and raises the
  invoice's cumulative paid amount. Reaching paid >= total flips the
  invoice to PAID and bulk-marks its entries paid. This is the only place
  entries transition paid false -> true. A partial payment leaves the invoice
  CLOSED with the balance outstanding. Payments against an already-PAID
  invoice are refused.

SEE ALSO:
  - invoice.go: EnsureInvoice, used to pre-create next-period invoices
  - api/scheduler.go: Drives CloseStaleInvoices on a schedule
*/
package billing

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LifecycleManager advances invoices through their payment lifecycle.
type LifecycleManager struct {
	store    Store
	invoices *InvoiceService
	clock    Clock
}

// NewLifecycleManager creates a lifecycle manager sharing the invoice
// service's store. A nil clock means system time.
func NewLifecycleManager(store Store, invoices *InvoiceService, clock Clock) *LifecycleManager {
	if clock == nil {
		clock = SystemClock()
	}
	return &LifecycleManager{store: store, invoices: invoices, clock: clock}
}

// CloseStaleInvoices flips every OPEN invoice from last calendar month to
// CLOSED, stamping the actual closing time, and pre-creates the current
// period's invoice for each affected card so the cycle never has a gap.
// Returns the number of invoices closed.
func (m *LifecycleManager) CloseStaleInvoices(ctx context.Context) (int, error) {
	now := m.clock.Now()
	stale := PeriodOf(now).Previous()

	open, err := m.store.OpenInvoicesForPeriod(ctx, stale)
	if err != nil {
		return 0, storeErr("list open invoices", err)
	}

	closed := 0
	for _, inv := range open {
		if err := m.store.CloseInvoice(ctx, inv.ID, now); err != nil {
			return closed, storeErr("close invoice", err)
		}
		closed++

		if _, err := m.invoices.CurrentInvoice(ctx, inv.CardID); err != nil {
			return closed, err
		}
	}
	return closed, nil
}

// RecordPayment registers a payment against an invoice and returns the
// updated invoice snapshot.
func (m *LifecycleManager) RecordPayment(ctx context.Context, invoiceID string, amount decimal.Decimal, method PaymentMethod, payerID, note string) (*Invoice, error) {
	if !amount.IsPositive() {
		return nil, &ValidationError{Field: "amount", Reason: "must be positive"}
	}

	var updated *Invoice
	err := inTx(ctx, m.store, func(st Store) error {
		inv, err := st.GetInvoice(ctx, invoiceID)
		if err != nil {
			return storeErr("get invoice", err)
		}
		if inv == nil {
			return &NotFoundError{Entity: "invoice", ID: invoiceID}
		}
		if inv.Status == InvoicePaid {
			return &InvalidStateError{Op: "record payment", Reason: "invoice already paid"}
		}

		if note == "" {
			note = fmt.Sprintf("Payment for invoice %s", inv.Period)
		}
		payment := &InvoicePayment{
			ID:        uuid.NewString(),
			InvoiceID: inv.ID,
			Amount:    amount,
			Method:    method,
			PayerID:   payerID,
			Note:      note,
			CreatedAt: m.clock.Now(),
		}
		if err := st.CreatePayment(ctx, payment); err != nil {
			return storeErr("create payment", err)
		}

		paid := inv.PaidAmount.Add(amount)
		status := InvoiceClosed
		if paid.GreaterThanOrEqual(inv.TotalAmount) {
			status = InvoicePaid
		}
		if err := st.SetInvoicePayment(ctx, inv.ID, paid, status); err != nil {
			return storeErr("update invoice payment", err)
		}

		if status == InvoicePaid {
			if err := st.MarkInvoiceEntriesPaid(ctx, inv.ID); err != nil {
				return storeErr("mark entries paid", err)
			}
		}

		snapshot := *inv
		snapshot.PaidAmount = paid
		snapshot.Status = status
		updated = &snapshot
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
