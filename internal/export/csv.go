package export

import (
	"encoding/csv"
	"fmt"
	"io"

	"fintrack/internal/core"
)

// WriteTransactionsCSV writes txs with a header row.
func WriteTransactionsCSV(w io.Writer, txs []core.Transaction, categories, cards map[string]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	if err := cw.WriteAll(transactionRows(txs, categories, cards)); err != nil {
		return fmt.Errorf("write csv rows: %w", err)
	}
	return nil
}
