package services

import (
	"context"
	"fmt"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/invoice"
	"fintrack/internal/log"
	"fintrack/internal/storage"
)

// InvoiceService groups card expenses into statements.
type InvoiceService struct {
	repo   *storage.Repository
	logger *log.Logger
}

func NewInvoiceService(repo *storage.Repository, logger *log.Logger) *InvoiceService {
	return &InvoiceService{repo: repo, logger: logger.WithComponent(log.ComponentInvoice)}
}

// Resolve returns the statement period an expense on date falls into.
func (s *InvoiceService) Resolve(date time.Time, closingDay int) (core.Period, error) {
	return invoice.Resolve(date, closingDay)
}

// CardInvoices returns every invoice of a card that has expenses.
func (s *InvoiceService) CardInvoices(ctx context.Context, userID, cardID string) ([]invoice.Invoice, error) {
	card, err := s.repo.Card(ctx, userID, cardID)
	if err != nil {
		return nil, err
	}
	expenses, err := s.repo.CardExpenses(ctx, userID, cardID)
	if err != nil {
		return nil, fmt.Errorf("load expenses of card %s: %w", cardID, err)
	}

	invoices, err := invoice.Group(card, expenses)
	if err != nil {
		return nil, err
	}
	s.logger.DebugContext(ctx, "Grouped card invoices",
		log.FieldUserID, userID,
		log.FieldCardID, cardID,
		log.FieldCount, len(invoices))
	return invoices, nil
}

// OpenTotals returns, per card, the total of the invoice that is open at
// now. Cards without expenses on it are left out.
func (s *InvoiceService) OpenTotals(ctx context.Context, userID string, cards []core.Card, now time.Time) (map[string]core.Money, error) {
	totals := make(map[string]core.Money)
	for _, card := range cards {
		key, err := invoice.Cycle(now, card.ClosingDay)
		if err != nil {
			return nil, fmt.Errorf("card %s: %w", card.ID, err)
		}
		expenses, err := s.repo.CardExpenses(ctx, userID, card.ID)
		if err != nil {
			return nil, err
		}
		invoices, err := invoice.Group(card, expenses)
		if err != nil {
			return nil, err
		}
		for _, inv := range invoices {
			if inv.Key.Year == key.Year && inv.Key.Month == key.Month {
				totals[card.ID] = inv.Total
			}
		}
	}
	return totals, nil
}
