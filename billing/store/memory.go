// Package store provides an in-memory billing.Store implementation
// (for testing/dev).
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fluxo/finance-engine/billing"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu           sync.RWMutex
	entries      map[string]billing.LedgerEntry
	cards        map[string]billing.Card
	invoices     map[string]billing.Invoice
	invoiceByKey map[invoiceKey]string
	payments     map[string][]billing.InvoicePayment
	limits       map[string]billing.CategoryLimit
	limitByKey   map[limitKey]string
}

type invoiceKey struct {
	CardID string
	Period billing.PeriodKey
}

type limitKey struct {
	UserID     string
	CategoryID string
	Period     billing.PeriodKey
}

func NewMemory() *Memory {
	return &Memory{
		entries:      make(map[string]billing.LedgerEntry),
		cards:        make(map[string]billing.Card),
		invoices:     make(map[string]billing.Invoice),
		invoiceByKey: make(map[invoiceKey]string),
		payments:     make(map[string][]billing.InvoicePayment),
		limits:       make(map[string]billing.CategoryLimit),
		limitByKey:   make(map[limitKey]string),
	}
}

// =============================================================================
// ENTRIES
// =============================================================================

func (m *Memory) CreateEntry(_ context.Context, e *billing.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[e.ID] = *e
	return nil
}

func (m *Memory) GetEntry(_ context.Context, id string) (*billing.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (m *Memory) ListEntries(_ context.Context, f billing.EntryFilter) ([]billing.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []billing.LedgerEntry
	for _, e := range m.entries {
		if matchesFilter(e, f) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OccurredAt.Before(out[j].OccurredAt) })
	return out, nil
}

func (m *Memory) SetEntryInvoice(_ context.Context, entryID, invoiceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[entryID]
	if !ok {
		return nil
	}
	e.InvoiceID = invoiceID
	m.entries[entryID] = e
	return nil
}

func (m *Memory) EntriesByInvoice(_ context.Context, invoiceID string, unpaidOnly bool) ([]billing.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []billing.LedgerEntry
	for _, e := range m.entries {
		if e.InvoiceID != invoiceID {
			continue
		}
		if unpaidOnly && e.Paid {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OccurredAt.Before(out[j].OccurredAt) })
	return out, nil
}

func (m *Memory) MarkInvoiceEntriesPaid(_ context.Context, invoiceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, e := range m.entries {
		if e.InvoiceID == invoiceID {
			e.Paid = true
			m.entries[id] = e
		}
	}
	return nil
}

func (m *Memory) SumEntries(_ context.Context, f billing.EntryFilter) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sum := decimal.Zero
	for _, e := range m.entries {
		if matchesFilter(e, f) {
			sum = sum.Add(e.Amount)
		}
	}
	return sum, nil
}

func matchesFilter(e billing.LedgerEntry, f billing.EntryFilter) bool {
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	if f.CategoryID != "" && e.CategoryID != f.CategoryID {
		return false
	}
	if f.Kind != "" && e.Kind != f.Kind {
		return false
	}
	if !f.From.IsZero() && e.OccurredAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.OccurredAt.After(endOfDay(f.To)) {
		return false
	}
	return true
}

func endOfDay(t time.Time) time.Time {
	y, mo, d := t.UTC().Date()
	return time.Date(y, mo, d, 23, 59, 59, 999999999, time.UTC)
}

// =============================================================================
// CARDS
// =============================================================================

func (m *Memory) SaveCard(_ context.Context, c *billing.Card) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cards[c.ID] = *c
	return nil
}

func (m *Memory) GetCard(_ context.Context, id string) (*billing.Card, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.cards[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m *Memory) ListCards(_ context.Context, userID string) ([]billing.Card, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []billing.Card
	for _, c := range m.cards {
		if userID == "" || c.UserID == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// =============================================================================
// INVOICES
// =============================================================================

func (m *Memory) UpsertInvoice(_ context.Context, inv billing.Invoice) (*billing.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := invoiceKey{CardID: inv.CardID, Period: inv.Period}
	if id, ok := m.invoiceByKey[k]; ok {
		existing := m.invoices[id]
		return &existing, nil
	}

	m.invoices[inv.ID] = inv
	m.invoiceByKey[k] = inv.ID
	return &inv, nil
}

func (m *Memory) GetInvoice(_ context.Context, id string) (*billing.Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inv, ok := m.invoices[id]
	if !ok {
		return nil, nil
	}
	return &inv, nil
}

func (m *Memory) InvoicesByCard(_ context.Context, cardID string) ([]billing.Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []billing.Invoice
	for _, inv := range m.invoices {
		if inv.CardID == cardID {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period > out[j].Period })
	return out, nil
}

func (m *Memory) OpenInvoicesForPeriod(_ context.Context, period billing.PeriodKey) ([]billing.Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []billing.Invoice
	for _, inv := range m.invoices {
		if inv.Period == period && inv.Status == billing.InvoiceOpen {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CardID < out[j].CardID })
	return out, nil
}

func (m *Memory) SetInvoiceTotal(_ context.Context, id string, total decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[id]
	if !ok {
		return nil
	}
	inv.TotalAmount = total
	m.invoices[id] = inv
	return nil
}

func (m *Memory) CloseInvoice(_ context.Context, id string, closedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[id]
	if !ok {
		return nil
	}
	if inv.Status.CanTransitionTo(billing.InvoiceClosed) {
		inv.Status = billing.InvoiceClosed
		inv.ClosedAt = &closedAt
		m.invoices[id] = inv
	}
	return nil
}

func (m *Memory) SetInvoicePayment(_ context.Context, id string, paidAmount decimal.Decimal, status billing.InvoiceStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[id]
	if !ok {
		return nil
	}
	inv.PaidAmount = paidAmount
	if inv.Status != status && inv.Status.CanTransitionTo(status) {
		inv.Status = status
	}
	m.invoices[id] = inv
	return nil
}

// =============================================================================
// PAYMENTS
// =============================================================================

func (m *Memory) CreatePayment(_ context.Context, p *billing.InvoicePayment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments[p.InvoiceID] = append(m.payments[p.InvoiceID], *p)
	return nil
}

func (m *Memory) PaymentsByInvoice(_ context.Context, invoiceID string) ([]billing.InvoicePayment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]billing.InvoicePayment, len(m.payments[invoiceID]))
	copy(out, m.payments[invoiceID])
	return out, nil
}

// =============================================================================
// LIMITS
// =============================================================================

func (m *Memory) SaveLimit(_ context.Context, l *billing.CategoryLimit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limits[l.ID] = *l
	m.limitByKey[limitKey{UserID: l.UserID, CategoryID: l.CategoryID, Period: l.Period}] = l.ID
	return nil
}

func (m *Memory) GetLimit(_ context.Context, userID, categoryID string, period billing.PeriodKey) (*billing.CategoryLimit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.limitByKey[limitKey{UserID: userID, CategoryID: categoryID, Period: period}]
	if !ok {
		return nil, nil
	}
	l := m.limits[id]
	return &l, nil
}

func (m *Memory) LimitsForPeriod(_ context.Context, userID string, period billing.PeriodKey) ([]billing.CategoryLimit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []billing.CategoryLimit
	for _, l := range m.limits {
		if l.UserID == userID && l.Period == period {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CategoryID < out[j].CategoryID })
	return out, nil
}

func (m *Memory) IncrementLimitSpend(_ context.Context, id string, delta decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.limits[id]
	if !ok {
		return nil
	}
	l.SpentAmount = l.SpentAmount.Add(delta)
	m.limits[id] = l
	return nil
}

func (m *Memory) SetLimitSpend(_ context.Context, id string, amount decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.limits[id]
	if !ok {
		return nil
	}
	l.SpentAmount = amount
	m.limits[id] = l
	return nil
}

// =============================================================================
// MAINTENANCE
// =============================================================================

// Reset wipes all data. Used by tests and demo scenario loading.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]billing.LedgerEntry)
	m.cards = make(map[string]billing.Card)
	m.invoices = make(map[string]billing.Invoice)
	m.invoiceByKey = make(map[invoiceKey]string)
	m.payments = make(map[string][]billing.InvoicePayment)
	m.limits = make(map[string]billing.CategoryLimit)
	m.limitByKey = make(map[limitKey]string)
	return nil
}
