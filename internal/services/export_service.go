package services

import (
	"context"
	"io"

	"fintrack/internal/core"
	"fintrack/internal/export"
	"fintrack/internal/log"
	"fintrack/internal/storage"
)

// ExportService writes a user's transactions out of the app.
type ExportService struct {
	repo    *storage.Repository
	periods *PeriodService
	sheets  *export.SheetsExporter
	logger  *log.Logger
}

// NewExportService builds the service. sheets may be nil, in which case
// Sheets exports report ErrUnavailable.
func NewExportService(repo *storage.Repository, periods *PeriodService, sheets *export.SheetsExporter, logger *log.Logger) *ExportService {
	return &ExportService{repo: repo, periods: periods, sheets: sheets, logger: logger.WithComponent(log.ComponentExport)}
}

// TransactionsCSV writes the transactions of p, or of the current period
// when p is zero, as CSV.
func (s *ExportService) TransactionsCSV(ctx context.Context, w io.Writer, userID string, p core.Period) error {
	txs, categories, cards, err := s.load(ctx, userID, p)
	if err != nil {
		return err
	}
	return export.WriteTransactionsCSV(w, txs, categories, cards)
}

// ExportSheets appends the transactions of p to the configured sheet.
func (s *ExportService) ExportSheets(ctx context.Context, userID string, p core.Period) (string, int, error) {
	if s.sheets == nil {
		return "", 0, ErrUnavailable
	}
	txs, categories, cards, err := s.load(ctx, userID, p)
	if err != nil {
		return "", 0, err
	}
	rng, n, err := s.sheets.ExportTransactions(ctx, txs, categories, cards)
	if err != nil {
		return "", 0, err
	}
	s.logger.InfoContext(ctx, "Exported transactions to Google Sheets",
		log.FieldUserID, userID,
		log.FieldOperation, log.OpExport,
		log.FieldCount, n,
		"range", rng)
	return rng, n, nil
}

func (s *ExportService) load(ctx context.Context, userID string, p core.Period) ([]core.Transaction, map[string]string, map[string]string, error) {
	if p.Start.IsZero() && p.End.IsZero() {
		var err error
		if p, err = s.periods.Current(ctx, userID); err != nil {
			return nil, nil, nil, err
		}
	} else if err := p.Validate(); err != nil {
		return nil, nil, nil, err
	}

	txs, err := s.repo.Transactions(ctx, userID, p)
	if err != nil {
		return nil, nil, nil, err
	}
	cats, err := s.repo.Categories(ctx, userID)
	if err != nil {
		return nil, nil, nil, err
	}
	cards, err := s.repo.Cards(ctx, userID)
	if err != nil {
		return nil, nil, nil, err
	}

	catNames := make(map[string]string, len(cats))
	for _, c := range cats {
		catNames[c.ID] = c.Name
	}
	cardNames := make(map[string]string, len(cards))
	for _, c := range cards {
		cardNames[c.ID] = c.Name
	}
	return txs, catNames, cardNames, nil
}
