/*
summary.go - Card usage summary

Aggregates a card's open obligation: the latest not-yet-paid invoice, the
unpaid spend across open and closed invoices, and how much of the credit
limit that spend consumes.
*/
package billing

import (
	"context"

	"github.com/shopspring/decimal"
)

var oneHundred = decimal.NewFromInt(100)

// CardSummary is a point-in-time view of a card's usage.
type CardSummary struct {
	Card           Card
	CurrentInvoice *Invoice // latest OPEN/CLOSED invoice, nil when none
	TotalSpent     decimal.Decimal
	AvailableLimit decimal.Decimal // zero when the card has no limit
	Utilization    decimal.Decimal // percent of limit consumed, capped at 100
}

// CardSummary computes the summary for one card. The unpaid spend uses the
// same signed-sum convention as invoice totals, so refunds reduce it.
func (s *InvoiceService) CardSummary(ctx context.Context, cardID string) (*CardSummary, error) {
	card, err := s.getCard(ctx, s.store, cardID)
	if err != nil {
		return nil, err
	}

	invoices, err := s.store.InvoicesByCard(ctx, cardID)
	if err != nil {
		return nil, storeErr("list invoices", err)
	}

	summary := &CardSummary{
		Card:           *card,
		TotalSpent:     decimal.Zero,
		AvailableLimit: decimal.Zero,
		Utilization:    decimal.Zero,
	}

	for i := range invoices {
		inv := invoices[i]
		if inv.Status == InvoicePaid {
			continue
		}
		// InvoicesByCard orders most recent period first.
		if summary.CurrentInvoice == nil {
			summary.CurrentInvoice = &inv
		}

		entries, err := s.store.EntriesByInvoice(ctx, inv.ID, true)
		if err != nil {
			return nil, storeErr("load invoice entries", err)
		}
		for _, e := range entries {
			if e.Kind == KindIncome {
				summary.TotalSpent = summary.TotalSpent.Sub(e.Amount)
			} else {
				summary.TotalSpent = summary.TotalSpent.Add(e.Amount)
			}
		}
	}

	if card.CreditLimit != nil && card.CreditLimit.IsPositive() {
		summary.AvailableLimit = card.CreditLimit.Sub(summary.TotalSpent)
		util := summary.TotalSpent.Div(*card.CreditLimit).Mul(oneHundred)
		if util.GreaterThan(oneHundred) {
			util = oneHundred
		}
		if util.IsNegative() {
			util = decimal.Zero
		}
		summary.Utilization = util
	}

	return summary, nil
}
