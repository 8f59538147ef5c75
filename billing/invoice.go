/*
invoice.go - Invoice aggregation

PURPOSE:
  Guarantees exactly one invoice per (card, period) and keeps the running
  total consistent with the unpaid entries referencing it.

THE SIGNED-SUM RULE:
  EXPENSE entries add to the invoice total, INCOME entries subtract (a
  refund or cashback reduces the statement balance). This is load-bearing
  business behavior; summing everything the same sign is wrong.

ORDERING:
  AssignEntry runs stamp-then-recompute strictly sequentially so the
  recompute observes the just-written assignment. When the store supports
  transactions the whole sequence is atomic.

SEE ALSO:
  - period.go: ResolvePeriod and the closing/due date math
  - lifecycle.go: Status transitions and payments
*/
package billing

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceService ensures invoices exist and keeps their totals correct.
type InvoiceService struct {
	store Store
	clock Clock
}

// NewInvoiceService creates an invoice service. A nil clock means system time.
func NewInvoiceService(store Store, clock Clock) *InvoiceService {
	if clock == nil {
		clock = SystemClock()
	}
	return &InvoiceService{store: store, clock: clock}
}

// EnsureInvoice returns the invoice for (cardID, period), creating it with
// status OPEN and computed closing/due dates when absent. Safe under
// concurrent invocation: the store's uniqueness constraint arbitrates and
// the existing row wins.
func (s *InvoiceService) EnsureInvoice(ctx context.Context, cardID string, period PeriodKey) (*Invoice, error) {
	card, err := s.getCard(ctx, s.store, cardID)
	if err != nil {
		return nil, err
	}
	return s.ensureInvoice(ctx, s.store, card, period)
}

func (s *InvoiceService) ensureInvoice(ctx context.Context, st Store, card *Card, period PeriodKey) (*Invoice, error) {
	inv := Invoice{
		ID:          uuid.NewString(),
		CardID:      card.ID,
		Period:      period,
		ClosingDate: ClosingDateFor(card.ClosingDay, period),
		DueDate:     DueDateFor(card.DueDay, period),
		Status:      InvoiceOpen,
		TotalAmount: decimal.Zero,
		PaidAmount:  decimal.Zero,
		CreatedAt:   s.clock.Now(),
	}

	got, err := st.UpsertInvoice(ctx, inv)
	if err != nil {
		return nil, storeErr("upsert invoice", err)
	}
	return got, nil
}

// AssignEntry resolves the entry's billing period, ensures the matching
// invoice exists, stamps the entry's invoice reference and recomputes the
// invoice total. Only credit-tagged entries are eligible.
func (s *InvoiceService) AssignEntry(ctx context.Context, entryID string) error {
	entry, err := s.store.GetEntry(ctx, entryID)
	if err != nil {
		return storeErr("get entry", err)
	}
	if entry == nil {
		return &NotFoundError{Entity: "entry", ID: entryID}
	}
	if entry.Method != MethodCredit {
		return &InvalidStateError{Op: "assign entry", Reason: "only credit entries bill to an invoice"}
	}
	if entry.CardID == "" {
		return &NotFoundError{Entity: "card", ID: ""}
	}

	card, err := s.getCard(ctx, s.store, entry.CardID)
	if err != nil {
		return err
	}

	period := ResolvePeriod(entry.OccurredAt, card.ClosingDay)

	return inTx(ctx, s.store, func(st Store) error {
		inv, err := s.ensureInvoice(ctx, st, card, period)
		if err != nil {
			return err
		}
		if err := st.SetEntryInvoice(ctx, entry.ID, inv.ID); err != nil {
			return storeErr("stamp entry invoice", err)
		}
		return recomputeTotal(ctx, st, inv.ID)
	})
}

// RecomputeTotal recalculates the invoice's running total from its unpaid
// entries. Idempotent: with no intervening entry changes, repeated calls
// yield the same total.
func (s *InvoiceService) RecomputeTotal(ctx context.Context, invoiceID string) error {
	inv, err := s.store.GetInvoice(ctx, invoiceID)
	if err != nil {
		return storeErr("get invoice", err)
	}
	if inv == nil {
		return &NotFoundError{Entity: "invoice", ID: invoiceID}
	}
	return recomputeTotal(ctx, s.store, invoiceID)
}

func recomputeTotal(ctx context.Context, st Store, invoiceID string) error {
	entries, err := st.EntriesByInvoice(ctx, invoiceID, true)
	if err != nil {
		return storeErr("load invoice entries", err)
	}

	total := decimal.Zero
	for _, e := range entries {
		if e.Kind == KindIncome {
			total = total.Sub(e.Amount)
		} else {
			total = total.Add(e.Amount)
		}
	}

	if err := st.SetInvoiceTotal(ctx, invoiceID, total); err != nil {
		return storeErr("set invoice total", err)
	}
	return nil
}

// CurrentInvoice returns the card's invoice for the current calendar
// period, creating it when absent.
func (s *InvoiceService) CurrentInvoice(ctx context.Context, cardID string) (*Invoice, error) {
	return s.EnsureInvoice(ctx, cardID, PeriodOf(s.clock.Now()))
}

func (s *InvoiceService) getCard(ctx context.Context, st Store, cardID string) (*Card, error) {
	card, err := st.GetCard(ctx, cardID)
	if err != nil {
		return nil, storeErr("get card", err)
	}
	if card == nil {
		return nil, &NotFoundError{Entity: "card", ID: cardID}
	}
	return card, nil
}
