/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  Monetary amounts cross the wire as decimal strings ("149.90"), never as
  JSON numbers. Clients that parse them as floats inherit float problems;
  the engine does not.

TYPES:
  Entries:  EntryDTO, CreateEntryRequest
  Cards:    CardDTO, SaveCardRequest, CardSummaryDTO
  Invoices: InvoiceDTO, PaymentDTO, RecordPaymentRequest
  Limits:   LimitDTO, SaveLimitRequest

VALIDATION:
  Validation is done in the billing package, not in DTOs. DTOs are pure
  data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - billing/types.go: Domain types these map from
*/
package api

import (
	"time"

	"github.com/fluxo/finance-engine/billing"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// EntryDTO represents a ledger entry in API responses.
type EntryDTO struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	CardID      string `json:"card_id,omitempty"`
	CategoryID  string `json:"category_id,omitempty"`
	Amount      string `json:"amount"`
	Kind        string `json:"kind"`
	Method      string `json:"method"`
	OccurredAt  string `json:"occurred_at"`
	Paid        bool   `json:"paid"`
	InvoiceID   string `json:"invoice_id,omitempty"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
}

// CreateEntryRequest is the request to record a ledger entry.
type CreateEntryRequest struct {
	UserID      string `json:"user_id"`
	CardID      string `json:"card_id,omitempty"`
	CategoryID  string `json:"category_id,omitempty"`
	Amount      string `json:"amount"`
	Kind        string `json:"kind"`
	Method      string `json:"method"`
	OccurredAt  string `json:"occurred_at"` // ISO date (YYYY-MM-DD)
	Description string `json:"description,omitempty"`
}

// CardDTO represents a card in API responses.
type CardDTO struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	Name        string `json:"name"`
	Network     string `json:"network,omitempty"`
	CreditLimit string `json:"credit_limit,omitempty"`
	ClosingDay  int    `json:"closing_day"`
	DueDay      int    `json:"due_day"`
	Color       string `json:"color,omitempty"`
	Notes       string `json:"notes,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
}

// SaveCardRequest is the request to create or update a card.
type SaveCardRequest struct {
	ID          string `json:"id,omitempty"` // empty = create
	UserID      string `json:"user_id"`
	Name        string `json:"name"`
	Network     string `json:"network,omitempty"`
	CreditLimit string `json:"credit_limit,omitempty"`
	ClosingDay  int    `json:"closing_day"`
	DueDay      int    `json:"due_day"`
	Color       string `json:"color,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

// InvoiceDTO represents an invoice in API responses.
type InvoiceDTO struct {
	ID          string     `json:"id"`
	CardID      string     `json:"card_id"`
	Period      string     `json:"period"`
	ClosingDate string     `json:"closing_date"`
	DueDate     string     `json:"due_date"`
	Status      string     `json:"status"`
	TotalAmount string     `json:"total_amount"`
	PaidAmount  string     `json:"paid_amount"`
	Remaining   string     `json:"remaining"`
	ClosedAt    *string    `json:"closed_at,omitempty"`
	Entries     []EntryDTO `json:"entries,omitempty"`
}

// PaymentDTO represents an invoice payment.
type PaymentDTO struct {
	ID        string `json:"id"`
	InvoiceID string `json:"invoice_id"`
	Amount    string `json:"amount"`
	Method    string `json:"method"`
	PayerID   string `json:"payer_id"`
	Note      string `json:"note,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

// RecordPaymentRequest is the request to pay toward an invoice.
type RecordPaymentRequest struct {
	Amount  string `json:"amount"`
	Method  string `json:"method,omitempty"`
	PayerID string `json:"payer_id"`
	Note    string `json:"note,omitempty"`
}

// LimitDTO represents a category spending limit.
type LimitDTO struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	CategoryID  string `json:"category_id"`
	Period      string `json:"period"`
	LimitAmount string `json:"limit_amount"`
	SpentAmount string `json:"spent_amount"`
	Exceeded    bool   `json:"exceeded"`
}

// SaveLimitRequest is the request to create or update a limit.
type SaveLimitRequest struct {
	UserID      string `json:"user_id"`
	CategoryID  string `json:"category_id"`
	Period      string `json:"period,omitempty"` // empty = current period
	LimitAmount string `json:"limit_amount"`
}

// CardSummaryDTO is the dashboard view of a card.
type CardSummaryDTO struct {
	Card           CardDTO     `json:"card"`
	CurrentInvoice *InvoiceDTO `json:"current_invoice,omitempty"`
	TotalSpent     string      `json:"total_spent"`
	AvailableLimit string      `json:"available_limit"`
	Utilization    string      `json:"utilization"`
}

// CloseSweepResultDTO reports a closing sweep run.
type CloseSweepResultDTO struct {
	Closed int    `json:"closed"`
	RanAt  string `json:"ran_at"`
}

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects a demo scenario to load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toEntryDTO(e billing.LedgerEntry) EntryDTO {
	return EntryDTO{
		ID:          e.ID,
		UserID:      e.UserID,
		CardID:      e.CardID,
		CategoryID:  e.CategoryID,
		Amount:      e.Amount.String(),
		Kind:        string(e.Kind),
		Method:      string(e.Method),
		OccurredAt:  e.OccurredAt.Format("2006-01-02"),
		Paid:        e.Paid,
		InvoiceID:   e.InvoiceID,
		Description: e.Description,
		CreatedAt:   e.CreatedAt.Format(time.RFC3339),
	}
}

func toEntryDTOs(entries []billing.LedgerEntry) []EntryDTO {
	dtos := make([]EntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toEntryDTO(e)
	}
	return dtos
}

func toCardDTO(c billing.Card) CardDTO {
	dto := CardDTO{
		ID:         c.ID,
		UserID:     c.UserID,
		Name:       c.Name,
		Network:    c.Network,
		ClosingDay: c.ClosingDay,
		DueDay:     c.DueDay,
		Color:      c.Color,
		Notes:      c.Notes,
		CreatedAt:  c.CreatedAt.Format(time.RFC3339),
	}
	if c.CreditLimit != nil {
		dto.CreditLimit = c.CreditLimit.String()
	}
	return dto
}

func toInvoiceDTO(inv billing.Invoice) InvoiceDTO {
	dto := InvoiceDTO{
		ID:          inv.ID,
		CardID:      inv.CardID,
		Period:      string(inv.Period),
		ClosingDate: inv.ClosingDate.Format("2006-01-02"),
		DueDate:     inv.DueDate.Format("2006-01-02"),
		Status:      string(inv.Status),
		TotalAmount: inv.TotalAmount.String(),
		PaidAmount:  inv.PaidAmount.String(),
		Remaining:   inv.Remaining().String(),
	}
	if inv.ClosedAt != nil {
		s := inv.ClosedAt.Format(time.RFC3339)
		dto.ClosedAt = &s
	}
	return dto
}

func toInvoiceDTOs(invoices []billing.Invoice) []InvoiceDTO {
	dtos := make([]InvoiceDTO, len(invoices))
	for i, inv := range invoices {
		dtos[i] = toInvoiceDTO(inv)
	}
	return dtos
}

func toPaymentDTO(p billing.InvoicePayment) PaymentDTO {
	return PaymentDTO{
		ID:        p.ID,
		InvoiceID: p.InvoiceID,
		Amount:    p.Amount.String(),
		Method:    string(p.Method),
		PayerID:   p.PayerID,
		Note:      p.Note,
		CreatedAt: p.CreatedAt.Format(time.RFC3339),
	}
}

func toLimitDTO(l billing.CategoryLimit) LimitDTO {
	return LimitDTO{
		ID:          l.ID,
		UserID:      l.UserID,
		CategoryID:  l.CategoryID,
		Period:      string(l.Period),
		LimitAmount: l.LimitAmount.String(),
		SpentAmount: l.SpentAmount.String(),
		Exceeded:    l.Exceeded(),
	}
}
