/*
handlers_test.go - Unit tests for API handlers

Tests for:
- Entry creation (invoice assignment + limit side effects)
- Payment recording and error mapping
- Card and limit endpoints
*/
package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fluxo/finance-engine/api"
	"github.com/fluxo/finance-engine/billing"
	"github.com/fluxo/finance-engine/billing/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type fixedClock struct {
	t time.Time
}

func (c fixedClock) Now() time.Time { return c.t }

func newTestServer(now time.Time) (*httptest.Server, *api.Handler, *store.Memory) {
	mem := store.NewMemory()
	handler := api.NewHandler(mem, fixedClock{t: now})
	server := httptest.NewServer(api.NewRouter(handler, nil))
	return server, handler, mem
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func seedCard(t *testing.T, mem *store.Memory, id string) {
	t.Helper()
	limit := decimal.NewFromInt(1000)
	card := &billing.Card{
		ID:          id,
		UserID:      "user-1",
		Name:        "Test Card",
		CreditLimit: &limit,
		ClosingDay:  5,
		DueDay:      12,
	}
	if err := mem.SaveCard(context.Background(), card); err != nil {
		t.Fatalf("seed card: %v", err)
	}
}

// =============================================================================
// ENTRY ENDPOINTS
// =============================================================================

func TestCreateEntry_CreditExpense_AssignedToInvoice(t *testing.T) {
	// GIVEN: A card and a food budget
	// WHEN: A credit expense is posted
	// THEN: 201, the entry carries an invoice ID, and the budget's spend rises

	server, _, mem := newTestServer(time.Date(2025, time.November, 10, 0, 0, 0, 0, time.UTC))
	defer server.Close()
	seedCard(t, mem, "card-1")

	ctx := context.Background()
	limit := &billing.CategoryLimit{
		ID: "lim-1", UserID: "user-1", CategoryID: "food",
		Period: "2025-11", LimitAmount: decimal.NewFromInt(500),
	}
	if err := mem.SaveLimit(ctx, limit); err != nil {
		t.Fatalf("seed limit: %v", err)
	}

	resp := postJSON(t, server.URL+"/api/entries", map[string]any{
		"user_id":     "user-1",
		"card_id":     "card-1",
		"category_id": "food",
		"amount":      "150",
		"kind":        "EXPENSE",
		"method":      "CREDIT",
		"occurred_at": "2025-11-03",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	var entry struct {
		ID        string `json:"id"`
		InvoiceID string `json:"invoice_id"`
		Amount    string `json:"amount"`
	}
	decodeJSON(t, resp, &entry)
	if entry.InvoiceID == "" {
		t.Error("credit entry should be assigned to an invoice")
	}
	if entry.Amount != "150" {
		t.Errorf("expected amount 150, got %s", entry.Amount)
	}

	reloaded, _ := mem.GetLimit(ctx, "user-1", "food", "2025-11")
	if !reloaded.SpentAmount.Equal(decimal.NewFromInt(150)) {
		t.Errorf("expected limit spend 150, got %s", reloaded.SpentAmount)
	}
}

func TestCreateEntry_InvalidAmount_BadRequest(t *testing.T) {
	server, _, _ := newTestServer(time.Date(2025, time.November, 10, 0, 0, 0, 0, time.UTC))
	defer server.Close()

	resp := postJSON(t, server.URL+"/api/entries", map[string]any{
		"user_id":     "user-1",
		"amount":      "not-money",
		"kind":        "EXPENSE",
		"method":      "CASH",
		"occurred_at": "2025-11-03",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestCreateEntry_ValidationFailure_BadRequest(t *testing.T) {
	// Credit entries without a card are a domain validation error.

	server, _, _ := newTestServer(time.Date(2025, time.November, 10, 0, 0, 0, 0, time.UTC))
	defer server.Close()

	resp := postJSON(t, server.URL+"/api/entries", map[string]any{
		"user_id":     "user-1",
		"amount":      "50",
		"kind":        "EXPENSE",
		"method":      "CREDIT",
		"occurred_at": "2025-11-03",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

// =============================================================================
// PAYMENT ENDPOINTS
// =============================================================================

func TestRecordPayment_FullFlow(t *testing.T) {
	// GIVEN: An invoice totaling 150 built through the API
	// WHEN: A 150 payment is posted
	// THEN: The response invoice is PAID with zero remaining

	server, _, mem := newTestServer(time.Date(2025, time.November, 10, 0, 0, 0, 0, time.UTC))
	defer server.Close()
	seedCard(t, mem, "card-1")

	resp := postJSON(t, server.URL+"/api/entries", map[string]any{
		"user_id":     "user-1",
		"card_id":     "card-1",
		"amount":      "150",
		"kind":        "EXPENSE",
		"method":      "CREDIT",
		"occurred_at": "2025-11-03",
	})
	var entry struct {
		InvoiceID string `json:"invoice_id"`
	}
	decodeJSON(t, resp, &entry)
	if entry.InvoiceID == "" {
		t.Fatal("entry was not assigned to an invoice")
	}

	payURL := fmt.Sprintf("%s/api/invoices/%s/payments", server.URL, entry.InvoiceID)
	resp = postJSON(t, payURL, map[string]any{
		"amount":   "150",
		"method":   "PIX",
		"payer_id": "user-1",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var invoice struct {
		Status    string `json:"status"`
		Remaining string `json:"remaining"`
	}
	decodeJSON(t, resp, &invoice)
	if invoice.Status != string(billing.InvoicePaid) {
		t.Errorf("expected PAID, got %s", invoice.Status)
	}
	if invoice.Remaining != "0" {
		t.Errorf("expected remaining 0, got %s", invoice.Remaining)
	}
}

func TestRecordPayment_MissingInvoice_NotFound(t *testing.T) {
	server, _, _ := newTestServer(time.Date(2025, time.November, 10, 0, 0, 0, 0, time.UTC))
	defer server.Close()

	resp := postJSON(t, server.URL+"/api/invoices/ghost/payments", map[string]any{
		"amount":   "10",
		"payer_id": "user-1",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

func TestRecordPayment_NegativeAmount_BadRequest(t *testing.T) {
	server, _, mem := newTestServer(time.Date(2025, time.November, 10, 0, 0, 0, 0, time.UTC))
	defer server.Close()
	seedCard(t, mem, "card-1")

	inv, err := mem.UpsertInvoice(context.Background(), billing.Invoice{
		ID: "inv-1", CardID: "card-1", Period: "2025-11",
		Status: billing.InvoiceOpen,
	})
	if err != nil {
		t.Fatalf("seed invoice: %v", err)
	}

	resp := postJSON(t, fmt.Sprintf("%s/api/invoices/%s/payments", server.URL, inv.ID), map[string]any{
		"amount":   "-10",
		"payer_id": "user-1",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

// =============================================================================
// INVOICE ENDPOINTS
// =============================================================================

func TestRecomputeInvoice_StableTotal(t *testing.T) {
	// GIVEN: An invoice built from one credit expense
	// WHEN: The recompute endpoint is hit twice
	// THEN: Both responses carry the same total

	server, _, mem := newTestServer(time.Date(2025, time.November, 10, 0, 0, 0, 0, time.UTC))
	defer server.Close()
	seedCard(t, mem, "card-1")

	resp := postJSON(t, server.URL+"/api/entries", map[string]any{
		"user_id":     "user-1",
		"card_id":     "card-1",
		"amount":      "150",
		"kind":        "EXPENSE",
		"method":      "CREDIT",
		"occurred_at": "2025-11-03",
	})
	var entry struct {
		InvoiceID string `json:"invoice_id"`
	}
	decodeJSON(t, resp, &entry)
	if entry.InvoiceID == "" {
		t.Fatal("entry was not assigned to an invoice")
	}

	recomputeURL := fmt.Sprintf("%s/api/invoices/%s/recompute", server.URL, entry.InvoiceID)
	var first, second struct {
		Total string `json:"total_amount"`
	}

	resp = postJSON(t, recomputeURL, map[string]any{})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	decodeJSON(t, resp, &first)

	resp = postJSON(t, recomputeURL, map[string]any{})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	decodeJSON(t, resp, &second)

	if first.Total != "150" {
		t.Errorf("expected total 150, got %s", first.Total)
	}
	if second.Total != first.Total {
		t.Errorf("repeated recompute changed the total: %s then %s", first.Total, second.Total)
	}
}

func TestRecomputeInvoice_Missing_NotFound(t *testing.T) {
	server, _, _ := newTestServer(time.Date(2025, time.November, 10, 0, 0, 0, 0, time.UTC))
	defer server.Close()

	resp := postJSON(t, server.URL+"/api/invoices/ghost/recompute", map[string]any{})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

// =============================================================================
// CARD ENDPOINTS
// =============================================================================

func TestSaveCard_CreateAndSummary(t *testing.T) {
	server, _, _ := newTestServer(time.Date(2025, time.November, 10, 0, 0, 0, 0, time.UTC))
	defer server.Close()

	resp := postJSON(t, server.URL+"/api/cards", map[string]any{
		"user_id":      "user-1",
		"name":         "Gold",
		"credit_limit": "2000",
		"closing_day":  5,
		"due_day":      12,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	var card struct {
		ID string `json:"id"`
	}
	decodeJSON(t, resp, &card)
	if card.ID == "" {
		t.Fatal("expected a generated card ID")
	}

	summaryResp, err := http.Get(fmt.Sprintf("%s/api/cards/%s/summary", server.URL, card.ID))
	if err != nil {
		t.Fatalf("GET summary: %v", err)
	}
	if summaryResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", summaryResp.StatusCode)
	}

	var summary struct {
		TotalSpent     string `json:"total_spent"`
		AvailableLimit string `json:"available_limit"`
	}
	decodeJSON(t, summaryResp, &summary)
	if summary.TotalSpent != "0" {
		t.Errorf("expected zero spend, got %s", summary.TotalSpent)
	}
}

func TestSaveCard_InvalidClosingDay_BadRequest(t *testing.T) {
	server, _, _ := newTestServer(time.Date(2025, time.November, 10, 0, 0, 0, 0, time.UTC))
	defer server.Close()

	resp := postJSON(t, server.URL+"/api/cards", map[string]any{
		"user_id":     "user-1",
		"name":        "Broken",
		"closing_day": 42,
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestGetCard_Missing_NotFound(t *testing.T) {
	server, _, _ := newTestServer(time.Date(2025, time.November, 10, 0, 0, 0, 0, time.UTC))
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/cards/ghost")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

// =============================================================================
// LIMIT ENDPOINTS
// =============================================================================

func TestSaveLimit_DefaultsToCurrentPeriod(t *testing.T) {
	server, _, _ := newTestServer(time.Date(2025, time.November, 10, 0, 0, 0, 0, time.UTC))
	defer server.Close()

	resp := postJSON(t, server.URL+"/api/limits", map[string]any{
		"user_id":      "user-1",
		"category_id":  "food",
		"limit_amount": "500",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	var limit struct {
		Period string `json:"period"`
	}
	decodeJSON(t, resp, &limit)
	if limit.Period != "2025-11" {
		t.Errorf("expected period 2025-11, got %s", limit.Period)
	}
}

// =============================================================================
// ADMIN ENDPOINTS
// =============================================================================

func TestCloseInvoices_SweepEndpoint(t *testing.T) {
	// GIVEN: An OPEN invoice for last month
	// WHEN: The sweep endpoint is hit
	// THEN: It reports one closed invoice

	server, handler, mem := newTestServer(time.Date(2025, time.December, 10, 0, 0, 0, 0, time.UTC))
	defer server.Close()
	seedCard(t, mem, "card-1")

	if _, err := handler.Invoices.EnsureInvoice(context.Background(), "card-1", "2025-11"); err != nil {
		t.Fatalf("seed invoice: %v", err)
	}

	resp := postJSON(t, server.URL+"/api/admin/close-invoices", map[string]any{})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result struct {
		Closed int `json:"closed"`
	}
	decodeJSON(t, resp, &result)
	if result.Closed != 1 {
		t.Errorf("expected 1 closed invoice, got %d", result.Closed)
	}
}
