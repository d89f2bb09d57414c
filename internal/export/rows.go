// Package export renders ledger data as CSV, PNG charts and Google Sheets
// rows.
package export

import (
	"slices"
	"time"

	"fintrack/internal/core"
)

// Header is the column layout shared by the CSV and Sheets exports.
var Header = []string{"date", "type", "description", "amount", "category", "card"}

// transactionRows returns one row per transaction in date order. Amounts are
// fixed to two decimals and category/card ids are replaced by names when
// known.
func transactionRows(txs []core.Transaction, categories, cards map[string]string) [][]string {
	sorted := slices.Clone(txs)
	slices.SortStableFunc(sorted, func(a, b core.Transaction) int {
		return a.Date.Compare(b.Date)
	})

	rows := make([][]string, 0, len(sorted))
	for _, tx := range sorted {
		rows = append(rows, []string{
			tx.Date.Format(time.DateOnly),
			string(tx.Type),
			tx.Description,
			tx.Amount.StringFixed(2),
			nameOf(categories, tx.CategoryID),
			nameOf(cards, tx.CardID),
		})
	}
	return rows
}

func nameOf(names map[string]string, id string) string {
	if name, ok := names[id]; ok {
		return name
	}
	return id
}
