package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"fintrack/internal/core"
	"fintrack/internal/log"
)

// RowAppender appends rows after the last filled row of a sheet and
// returns the updated A1 range.
type RowAppender interface {
	AppendRows(ctx context.Context, sheet string, rows [][]any) (string, error)
}

// GoogleSheets appends rows to one spreadsheet through the Sheets API.
type GoogleSheets struct {
	svc           *gsheet.Service
	spreadsheetID string
}

var _ RowAppender = (*GoogleSheets)(nil)

// NewGoogleSheets authenticates with service account credentials from
// GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or
// GOOGLE_APPLICATION_CREDENTIALS.
func NewGoogleSheets(ctx context.Context, spreadsheetID string) (*GoogleSheets, error) {
	if strings.TrimSpace(spreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return &GoogleSheets{svc: svc, spreadsheetID: spreadsheetID}, nil
}

func serviceAccountCredentials() ([]byte, error) {
	if inline := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON")); inline != "" {
		return []byte(inline), nil
	}
	file := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if file == "" {
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read service account file: %w", err)
	}
	return data, nil
}

func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	creds, err := serviceAccountCredentials()
	if err != nil {
		return nil, err
	}
	log.FromContext(ctx).WithComponent(log.ComponentExport).InfoContext(ctx,
		"Creating Google Sheets service with Service Account",
		"credentials_size", len(creds),
		"scope", gsheet.SpreadsheetsScope)

	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return svc, nil
}

func (g *GoogleSheets) AppendRows(ctx context.Context, sheet string, rows [][]any) (string, error) {
	if g.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	rng := fmt.Sprintf("%s!A:%c", sheet, 'A'+len(Header)-1)
	resp, err := g.svc.Spreadsheets.Values.Append(g.spreadsheetID, rng, &gsheet.ValueRange{Values: rows}).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("append to sheet %s: %w", sheet, err)
	}
	if resp.Updates == nil {
		return "", nil
	}
	return resp.Updates.UpdatedRange, nil
}

// SheetsExporter writes transactions to a named sheet.
type SheetsExporter struct {
	appender RowAppender
	sheet    string
}

func NewSheetsExporter(appender RowAppender, sheet string) *SheetsExporter {
	return &SheetsExporter{appender: appender, sheet: sheet}
}

// ExportTransactions appends txs in date order, with amounts as numbers so
// the sheet can sum them. It returns the updated range and the row count.
func (e *SheetsExporter) ExportTransactions(ctx context.Context, txs []core.Transaction, categories, cards map[string]string) (string, int, error) {
	if len(txs) == 0 {
		return "", 0, nil
	}

	rows := transactionRows(txs, categories, cards)
	values := make([][]any, len(rows))
	for i, row := range rows {
		v := make([]any, len(row))
		for j, cell := range row {
			v[j] = cell
		}
		// amount column as a number
		if f, err := core.ParseMoney(row[3]); err == nil {
			v[3] = f.Float64()
		}
		values[i] = v
	}

	rng, err := e.appender.AppendRows(ctx, e.sheet, values)
	if err != nil {
		return "", 0, err
	}
	return rng, len(values), nil
}
