/*
handlers.go - HTTP API handlers for the billing engine

PURPOSE:
  Exposes the billing engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Entries:
    GET    /api/entries                 List entries (filterable)
    POST   /api/entries                 Record an entry
    GET    /api/entries/{id}            Get entry details

  Cards:
    GET    /api/cards                   List cards for a user
    POST   /api/cards                   Create or update a card
    GET    /api/cards/{id}              Get card details
    GET    /api/cards/{id}/invoices     Invoice history
    GET    /api/cards/{id}/invoice      Current invoice (created on demand)
    GET    /api/cards/{id}/summary      Dashboard summary

  Invoices:
    GET    /api/invoices/{id}           Invoice with its entries
    POST   /api/invoices/{id}/recompute Re-derive total from entries
    GET    /api/invoices/{id}/payments  Payment history
    POST   /api/invoices/{id}/payments  Record a payment

  Limits:
    GET    /api/limits                  List limits for a user/period
    POST   /api/limits                  Create or update a limit
    POST   /api/limits/recompute        Re-derive spent amounts

  Admin:
    POST   /api/admin/close-invoices    Run the closing sweep now
    POST   /api/reset                   Database reset (dev only)

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Store: Database access
  - Invoices/Lifecycle/Limits: Domain services

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input
  3. Call domain logic
  4. Serialize response
  5. Handle errors

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid state transitions
  - 404: Resource not found
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fluxo/finance-engine/billing"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     billing.Store
	Invoices  *billing.InvoiceService
	Lifecycle *billing.LifecycleManager
	Limits    *billing.LimitTracker

	clock billing.Clock

	// ID of the last demo scenario loaded, empty after a reset.
	currentScenario string
}

// NewHandler creates a handler with the given store. A nil clock falls
// back to the system clock.
func NewHandler(store billing.Store, clock billing.Clock) *Handler {
	if clock == nil {
		clock = billing.SystemClock()
	}
	invoices := billing.NewInvoiceService(store, clock)
	return &Handler{
		Store:     store,
		Invoices:  invoices,
		Lifecycle: billing.NewLifecycleManager(store, invoices, clock),
		Limits:    billing.NewLimitTracker(store, clock, nil),
		clock:     clock,
	}
}

// =============================================================================
// ENTRY HANDLERS
// =============================================================================

// CreateEntry records a ledger entry. Credit entries are attached to their
// card's invoice; expense entries feed the category limit tracker.
func (h *Handler) CreateEntry(w http.ResponseWriter, r *http.Request) {
	var req CreateEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount (use a decimal string)", err)
		return
	}

	occurredAt, err := time.Parse("2006-01-02", req.OccurredAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid occurred_at format (use YYYY-MM-DD)", err)
		return
	}

	entry := billing.LedgerEntry{
		ID:          uuid.NewString(),
		UserID:      req.UserID,
		CardID:      req.CardID,
		CategoryID:  req.CategoryID,
		Amount:      amount,
		Kind:        billing.EntryKind(req.Kind),
		Method:      billing.PaymentMethod(req.Method),
		OccurredAt:  occurredAt,
		Description: req.Description,
		CreatedAt:   h.clock.Now(),
	}

	if err := billing.ValidateEntry(&entry); err != nil {
		respondError(w, err)
		return
	}

	ctx := r.Context()
	if err := h.Store.CreateEntry(ctx, &entry); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create entry", err)
		return
	}

	if entry.Method == billing.MethodCredit && entry.CardID != "" {
		if err := h.Invoices.AssignEntry(ctx, entry.ID); err != nil {
			respondError(w, err)
			return
		}
	}

	// Best effort; never blocks entry creation.
	h.Limits.ApplyEntryDelta(ctx, entry.UserID, entry.CategoryID, entry.Amount, entry.Kind)

	stored, err := h.Store.GetEntry(ctx, entry.ID)
	if err != nil || stored == nil {
		writeJSON(w, http.StatusCreated, toEntryDTO(entry))
		return
	}
	writeJSON(w, http.StatusCreated, toEntryDTO(*stored))
}

// ListEntries returns entries matching the query filters.
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := billing.EntryFilter{
		UserID:     q.Get("user_id"),
		CategoryID: q.Get("category_id"),
		Kind:       billing.EntryKind(q.Get("kind")),
	}
	if from := q.Get("from"); from != "" {
		t, err := time.Parse("2006-01-02", from)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid from date (use YYYY-MM-DD)", err)
			return
		}
		filter.From = t
	}
	if to := q.Get("to"); to != "" {
		t, err := time.Parse("2006-01-02", to)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid to date (use YYYY-MM-DD)", err)
			return
		}
		filter.To = t
	}

	entries, err := h.Store.ListEntries(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list entries", err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTOs(entries))
}

// GetEntry returns a single entry.
func (h *Handler) GetEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	entry, err := h.Store.GetEntry(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get entry", err)
		return
	}
	if entry == nil {
		writeError(w, http.StatusNotFound, "Entry not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTO(*entry))
}

// =============================================================================
// CARD HANDLERS
// =============================================================================

// SaveCard creates or updates a card.
func (h *Handler) SaveCard(w http.ResponseWriter, r *http.Request) {
	var req SaveCardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	created := req.ID == ""
	if created {
		req.ID = uuid.NewString()
	}

	card := billing.Card{
		ID:         req.ID,
		UserID:     req.UserID,
		Name:       req.Name,
		Network:    req.Network,
		ClosingDay: req.ClosingDay,
		DueDay:     req.DueDay,
		Color:      req.Color,
		Notes:      req.Notes,
	}
	if req.CreditLimit != "" {
		limit, err := decimal.NewFromString(req.CreditLimit)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid credit_limit (use a decimal string)", err)
			return
		}
		card.CreditLimit = &limit
	}

	if err := billing.ValidateCard(&card); err != nil {
		respondError(w, err)
		return
	}

	if err := h.Store.SaveCard(r.Context(), &card); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save card", err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, toCardDTO(card))
}

// ListCards returns all cards for a user.
func (h *Handler) ListCards(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id query parameter is required", nil)
		return
	}

	cards, err := h.Store.ListCards(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list cards", err)
		return
	}

	dtos := make([]CardDTO, len(cards))
	for i, c := range cards {
		dtos[i] = toCardDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetCard returns a single card.
func (h *Handler) GetCard(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	card, err := h.Store.GetCard(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get card", err)
		return
	}
	if card == nil {
		writeError(w, http.StatusNotFound, "Card not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toCardDTO(*card))
}

// CardInvoices returns a card's invoice history, most recent first.
func (h *Handler) CardInvoices(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()

	card, err := h.Store.GetCard(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get card", err)
		return
	}
	if card == nil {
		writeError(w, http.StatusNotFound, "Card not found", nil)
		return
	}

	invoices, err := h.Store.InvoicesByCard(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list invoices", err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceDTOs(invoices))
}

// CurrentInvoice returns the card's invoice for the current period,
// creating it if it does not exist yet.
func (h *Handler) CurrentInvoice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()

	invoice, err := h.Invoices.CurrentInvoice(ctx, id)
	if err != nil {
		respondError(w, err)
		return
	}

	dto := toInvoiceDTO(*invoice)
	entries, err := h.Store.EntriesByInvoice(ctx, invoice.ID, false)
	if err == nil {
		dto.Entries = toEntryDTOs(entries)
	}
	writeJSON(w, http.StatusOK, dto)
}

// CardSummary returns the dashboard view of a card.
func (h *Handler) CardSummary(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	summary, err := h.Invoices.CardSummary(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}

	dto := CardSummaryDTO{
		Card:           toCardDTO(summary.Card),
		TotalSpent:     summary.TotalSpent.String(),
		AvailableLimit: summary.AvailableLimit.String(),
		Utilization:    summary.Utilization.String(),
	}
	if summary.CurrentInvoice != nil {
		inv := toInvoiceDTO(*summary.CurrentInvoice)
		dto.CurrentInvoice = &inv
	}
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// INVOICE HANDLERS
// =============================================================================

// GetInvoice returns an invoice with its entries.
func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()

	invoice, err := h.Store.GetInvoice(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get invoice", err)
		return
	}
	if invoice == nil {
		writeError(w, http.StatusNotFound, "Invoice not found", nil)
		return
	}

	dto := toInvoiceDTO(*invoice)
	entries, err := h.Store.EntriesByInvoice(ctx, id, false)
	if err == nil {
		dto.Entries = toEntryDTOs(entries)
	}
	writeJSON(w, http.StatusOK, dto)
}

// RecomputeInvoice re-derives an invoice's total from its entries.
func (h *Handler) RecomputeInvoice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()

	if err := h.Invoices.RecomputeTotal(ctx, id); err != nil {
		respondError(w, err)
		return
	}

	invoice, err := h.Store.GetInvoice(ctx, id)
	if err != nil || invoice == nil {
		writeError(w, http.StatusInternalServerError, "Failed to reload invoice", err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceDTO(*invoice))
}

// ListPayments returns an invoice's payment history.
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()

	invoice, err := h.Store.GetInvoice(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get invoice", err)
		return
	}
	if invoice == nil {
		writeError(w, http.StatusNotFound, "Invoice not found", nil)
		return
	}

	payments, err := h.Store.PaymentsByInvoice(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list payments", err)
		return
	}

	dtos := make([]PaymentDTO, len(payments))
	for i, p := range payments {
		dtos[i] = toPaymentDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// RecordPayment records a payment toward an invoice and returns the
// updated invoice.
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req RecordPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount (use a decimal string)", err)
		return
	}

	method := billing.PaymentMethod(req.Method)
	if req.Method == "" {
		method = billing.MethodPix
	}

	invoice, err := h.Lifecycle.RecordPayment(r.Context(), id, amount, method, req.PayerID, req.Note)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceDTO(*invoice))
}

// =============================================================================
// LIMIT HANDLERS
// =============================================================================

// SaveLimit creates or updates a category limit. Defaults to the current
// period when none is given.
func (h *Handler) SaveLimit(w http.ResponseWriter, r *http.Request) {
	var req SaveLimitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	period := billing.PeriodKey(req.Period)
	if req.Period == "" {
		period = billing.PeriodOf(h.clock.Now())
	}

	amount, err := decimal.NewFromString(req.LimitAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid limit_amount (use a decimal string)", err)
		return
	}

	limit := billing.CategoryLimit{
		ID:          uuid.NewString(),
		UserID:      req.UserID,
		CategoryID:  req.CategoryID,
		Period:      period,
		LimitAmount: amount,
		SpentAmount: decimal.Zero,
	}

	if err := billing.ValidateLimit(&limit); err != nil {
		respondError(w, err)
		return
	}

	ctx := r.Context()
	if err := h.Store.SaveLimit(ctx, &limit); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save limit", err)
		return
	}

	// The upsert may have kept an existing row; return the canonical one.
	stored, err := h.Store.GetLimit(ctx, limit.UserID, limit.CategoryID, limit.Period)
	if err != nil || stored == nil {
		writeJSON(w, http.StatusCreated, toLimitDTO(limit))
		return
	}
	writeJSON(w, http.StatusCreated, toLimitDTO(*stored))
}

// ListLimits returns a user's limits for a period (current by default).
func (h *Handler) ListLimits(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID := q.Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id query parameter is required", nil)
		return
	}

	period := billing.PeriodKey(q.Get("period"))
	if period == "" {
		period = billing.PeriodOf(h.clock.Now())
	}
	if !period.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid period format (use YYYY-MM)", nil)
		return
	}

	limits, err := h.Store.LimitsForPeriod(r.Context(), userID, period)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list limits", err)
		return
	}

	dtos := make([]LimitDTO, len(limits))
	for i, l := range limits {
		dtos[i] = toLimitDTO(l)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// RecomputeLimits re-derives spent amounts from the ledger.
func (h *Handler) RecomputeLimits(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id query parameter is required", nil)
		return
	}

	if err := h.Limits.RecomputeAll(r.Context(), userID); err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// CloseInvoices runs the closing sweep immediately.
func (h *Handler) CloseInvoices(w http.ResponseWriter, r *http.Request) {
	closed, err := h.Lifecycle.CloseStaleInvoices(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Closing sweep failed", err)
		return
	}
	writeJSON(w, http.StatusOK, CloseSweepResultDTO{
		Closed: closed,
		RanAt:  h.clock.Now().Format(time.RFC3339),
	})
}

// resetter is implemented by stores that can wipe all data.
type resetter interface {
	Reset(ctx context.Context) error
}

// ResetDatabase wipes all data (dev only).
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	rs, ok := h.Store.(resetter)
	if !ok {
		writeError(w, http.StatusNotImplemented, "Store does not support reset", nil)
		return
	}
	if err := rs.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

// respondError maps domain errors to HTTP status codes.
func respondError(w http.ResponseWriter, err error) {
	switch {
	case billing.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error(), nil)
	case billing.IsClientError(err):
		writeError(w, http.StatusBadRequest, err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
