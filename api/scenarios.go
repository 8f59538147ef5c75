/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for testing and demos. Each scenario creates cards, ledger entries,
	invoices, and budgets that demonstrate specific features.

AVAILABLE SCENARIOS:

	getting-started: Single card, one month of spending, one budget
	two-cards:       Two cards with different closing days
	payment-history: Past invoices closed and partially/fully paid
	budget-blowout:  Category budgets with one over its ceiling

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create cards
 3. Create ledger entries through the normal services (so credit
    purchases land on invoices and budgets track spend)
 4. Optionally close past invoices and record payments

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "getting-started"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx)
 3. Add case to LoadScenario handler

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: ResetDatabase, scenario route handlers
  - billing/invoice.go: invoice assignment used by the loaders
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fluxo/finance-engine/billing"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "getting-started",
		Name:        "Getting Started",
		Description: "One credit card, a month of typical spending, a food budget",
	},
	{
		ID:          "two-cards",
		Name:        "Two Cards",
		Description: "Cards with different closing days splitting the same spending dates",
	},
	{
		ID:          "payment-history",
		Name:        "Payment History",
		Description: "Closed invoices from past months, one fully paid, one partial",
	},
	{
		ID:          "budget-blowout",
		Name:        "Budget Blowout",
		Description: "Several category budgets with one pushed past its ceiling",
	},
}

const demoUserID = "user-demo"

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	if h.currentScenario == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}

	for _, s := range scenarios {
		if s.ID == h.currentScenario {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}

	// Scenario ID exists but not in list (shouldn't happen)
	writeJSON(w, http.StatusOK, ScenarioDTO{
		ID:          h.currentScenario,
		Name:        h.currentScenario,
		Description: "Currently loaded scenario",
	})
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()

	rs, ok := h.Store.(resetter)
	if !ok {
		writeError(w, http.StatusNotImplemented, "Store does not support reset", nil)
		return
	}
	if err := rs.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""

	var err error
	switch req.ScenarioID {
	case "getting-started":
		err = h.loadGettingStartedScenario(ctx)
	case "two-cards":
		err = h.loadTwoCardsScenario(ctx)
	case "payment-history":
		err = h.loadPaymentHistoryScenario(ctx)
	case "budget-blowout":
		err = h.loadBudgetBlowoutScenario(ctx)
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	h.currentScenario = req.ScenarioID

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadGettingStartedScenario(ctx context.Context) error {
	now := h.clock.Now()

	if err := h.seedCard(ctx, "card-everyday", "Everyday Card", "2500", 5, 12); err != nil {
		return err
	}

	// Budgets track the calendar month regardless of card cycles.
	period := billing.PeriodOf(now)
	if err := h.seedBudget(ctx, "lim-food", "food", period, "800"); err != nil {
		return err
	}

	// A month of typical spending on the card plus a cash income entry.
	seeds := []entrySeed{
		{id: "entry-001", cardID: "card-everyday", category: "food", amount: "235.40", kind: billing.KindExpense, method: billing.MethodCredit, daysAgo: 20, desc: "Groceries"},
		{id: "entry-002", cardID: "card-everyday", category: "food", amount: "89.90", kind: billing.KindExpense, method: billing.MethodCredit, daysAgo: 14, desc: "Dinner out"},
		{id: "entry-003", cardID: "card-everyday", category: "transport", amount: "120", kind: billing.KindExpense, method: billing.MethodCredit, daysAgo: 10, desc: "Fuel"},
		{id: "entry-004", cardID: "card-everyday", category: "shopping", amount: "310", kind: billing.KindExpense, method: billing.MethodCredit, daysAgo: 6, desc: "New headphones"},
		{id: "entry-005", category: "salary", amount: "5200", kind: billing.KindIncome, method: billing.MethodPix, daysAgo: 3, desc: "Monthly salary"},
	}
	return h.seedEntries(ctx, now, seeds)
}

func (h *Handler) loadTwoCardsScenario(ctx context.Context) error {
	now := h.clock.Now()

	// Closing day 3 rolls most of the month into the next cycle;
	// closing day 28 keeps it in the current one.
	if err := h.seedCard(ctx, "card-early", "Early Closer", "1500", 3, 10); err != nil {
		return err
	}
	if err := h.seedCard(ctx, "card-late", "Late Closer", "4000", 28, 5); err != nil {
		return err
	}

	seeds := []entrySeed{
		{id: "entry-101", cardID: "card-early", category: "food", amount: "45.50", kind: billing.KindExpense, method: billing.MethodCredit, daysAgo: 12, desc: "Lunch"},
		{id: "entry-102", cardID: "card-late", category: "food", amount: "45.50", kind: billing.KindExpense, method: billing.MethodCredit, daysAgo: 12, desc: "Lunch"},
		{id: "entry-103", cardID: "card-early", category: "travel", amount: "890", kind: billing.KindExpense, method: billing.MethodCredit, daysAgo: 8, desc: "Flight tickets"},
		{id: "entry-104", cardID: "card-late", category: "home", amount: "260", kind: billing.KindExpense, method: billing.MethodCredit, daysAgo: 2, desc: "Utilities"},
	}
	return h.seedEntries(ctx, now, seeds)
}

func (h *Handler) loadPaymentHistoryScenario(ctx context.Context) error {
	now := h.clock.Now()

	if err := h.seedCard(ctx, "card-history", "History Card", "3000", 1, 10); err != nil {
		return err
	}

	// Two past cycles plus the current one.
	seeds := []entrySeed{
		{id: "entry-201", cardID: "card-history", category: "food", amount: "640.25", kind: billing.KindExpense, method: billing.MethodCredit, daysAgo: 70, desc: "Groceries"},
		{id: "entry-202", cardID: "card-history", category: "shopping", amount: "199.99", kind: billing.KindExpense, method: billing.MethodCredit, daysAgo: 65, desc: "Running shoes"},
		{id: "entry-203", cardID: "card-history", category: "food", amount: "512.80", kind: billing.KindExpense, method: billing.MethodCredit, daysAgo: 40, desc: "Groceries"},
		{id: "entry-204", cardID: "card-history", category: "transport", amount: "95", kind: billing.KindExpense, method: billing.MethodCredit, daysAgo: 35, desc: "Ride shares"},
		{id: "entry-205", cardID: "card-history", category: "food", amount: "310.40", kind: billing.KindExpense, method: billing.MethodCredit, daysAgo: 5, desc: "Groceries"},
	}
	if err := h.seedEntries(ctx, now, seeds); err != nil {
		return err
	}

	// Close the two past invoices and pay them: the oldest in full,
	// the next one partially.
	oldest := billing.ResolvePeriod(now.AddDate(0, 0, -70), 1)
	middle := billing.ResolvePeriod(now.AddDate(0, 0, -40), 1)

	if err := h.closeAndPay(ctx, "card-history", oldest, "full"); err != nil {
		return err
	}
	return h.closeAndPay(ctx, "card-history", middle, "300")
}

func (h *Handler) loadBudgetBlowoutScenario(ctx context.Context) error {
	now := h.clock.Now()

	if err := h.seedCard(ctx, "card-budget", "Budget Card", "2000", 5, 15); err != nil {
		return err
	}

	period := billing.PeriodOf(now)
	budgets := []struct {
		id, category, amount string
	}{
		{"lim-food", "food", "600"},
		{"lim-transport", "transport", "200"},
		{"lim-entertainment", "entertainment", "150"},
	}
	for _, b := range budgets {
		if err := h.seedBudget(ctx, b.id, b.category, period, b.amount); err != nil {
			return err
		}
	}

	// Entertainment lands at 212.50 against a 150 ceiling.
	seeds := []entrySeed{
		{id: "entry-301", cardID: "card-budget", category: "food", amount: "410", kind: billing.KindExpense, method: billing.MethodCredit, daysAgo: 9, desc: "Groceries"},
		{id: "entry-302", cardID: "card-budget", category: "transport", amount: "80", kind: billing.KindExpense, method: billing.MethodCredit, daysAgo: 7, desc: "Fuel"},
		{id: "entry-303", cardID: "card-budget", category: "entertainment", amount: "129.90", kind: billing.KindExpense, method: billing.MethodCredit, daysAgo: 5, desc: "Concert tickets"},
		{id: "entry-304", cardID: "card-budget", category: "entertainment", amount: "82.60", kind: billing.KindExpense, method: billing.MethodCredit, daysAgo: 2, desc: "Streaming annual plan"},
	}
	return h.seedEntries(ctx, now, seeds)
}

// =============================================================================
// SEEDING HELPERS
// =============================================================================

type entrySeed struct {
	id       string
	cardID   string
	category string
	amount   string
	kind     billing.EntryKind
	method   billing.PaymentMethod
	daysAgo  int
	desc     string
}

func (h *Handler) seedCard(ctx context.Context, id, name, creditLimit string, closingDay, dueDay int) error {
	limit, err := decimal.NewFromString(creditLimit)
	if err != nil {
		return fmt.Errorf("scenario card %s: %w", id, err)
	}
	card := &billing.Card{
		ID:          id,
		UserID:      demoUserID,
		Name:        name,
		CreditLimit: &limit,
		ClosingDay:  closingDay,
		DueDay:      dueDay,
	}
	if err := billing.ValidateCard(card); err != nil {
		return err
	}
	return h.Store.SaveCard(ctx, card)
}

func (h *Handler) seedBudget(ctx context.Context, id, category string, period billing.PeriodKey, amount string) error {
	limitAmount, err := decimal.NewFromString(amount)
	if err != nil {
		return fmt.Errorf("scenario budget %s: %w", id, err)
	}
	return h.Store.SaveLimit(ctx, &billing.CategoryLimit{
		ID:          id,
		UserID:      demoUserID,
		CategoryID:  category,
		Period:      period,
		LimitAmount: limitAmount,
	})
}

// seedEntries creates entries through the same path the API uses so
// credit purchases are assigned to invoices and budgets track spend.
func (h *Handler) seedEntries(ctx context.Context, now time.Time, seeds []entrySeed) error {
	for _, s := range seeds {
		amount, err := decimal.NewFromString(s.amount)
		if err != nil {
			return fmt.Errorf("scenario entry %s: %w", s.id, err)
		}
		entry := &billing.LedgerEntry{
			ID:          s.id,
			UserID:      demoUserID,
			CardID:      s.cardID,
			CategoryID:  s.category,
			Amount:      amount,
			Kind:        s.kind,
			Method:      s.method,
			OccurredAt:  now.AddDate(0, 0, -s.daysAgo),
			Description: s.desc,
		}
		if err := billing.ValidateEntry(entry); err != nil {
			return err
		}
		if err := h.Store.CreateEntry(ctx, entry); err != nil {
			return err
		}
		if entry.Method == billing.MethodCredit && entry.CardID != "" {
			if err := h.Invoices.AssignEntry(ctx, entry.ID); err != nil {
				return err
			}
		}
		h.Limits.ApplyEntryDelta(ctx, entry.UserID, entry.CategoryID, entry.Amount, entry.Kind)
	}
	return nil
}

// closeAndPay closes the invoice for the given period and records a
// payment against it. Pass paid="" to close without paying, or "full"
// to settle the whole invoice.
func (h *Handler) closeAndPay(ctx context.Context, cardID string, period billing.PeriodKey, paid string) error {
	inv, err := h.Invoices.EnsureInvoice(ctx, cardID, period)
	if err != nil {
		return err
	}
	if err := h.Store.CloseInvoice(ctx, inv.ID, h.clock.Now()); err != nil {
		return err
	}
	if paid == "" {
		return nil
	}

	var amount decimal.Decimal
	if paid == "full" {
		amount = inv.TotalAmount
	} else {
		amount, err = decimal.NewFromString(paid)
		if err != nil {
			return fmt.Errorf("scenario payment for %s: %w", inv.ID, err)
		}
	}
	_, err = h.Lifecycle.RecordPayment(ctx, inv.ID, amount, billing.MethodPix, demoUserID, "")
	return err
}
