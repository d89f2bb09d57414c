package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"fintrack/internal/core"
)

// readLedger parses reserve transactions from CSV rows of
// date,type,amount. A first row whose date column reads "date" is skipped.
// type is add or withdraw (the reserve_ prefix is optional).
func readLedger(r io.Reader) ([]core.ReserveTransaction, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 3
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	var txs []core.ReserveTransaction
	for first := true; ; first = false {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return txs, nil
		}
		if err != nil {
			return nil, fmt.Errorf("ledger: %w", err)
		}
		if first && strings.EqualFold(strings.TrimSpace(rec[0]), "date") {
			continue
		}
		line, _ := cr.FieldPos(0)

		tx, err := parseLedgerRow(rec)
		if err != nil {
			return nil, fmt.Errorf("ledger line %d: %w", line, err)
		}
		tx.ID = strconv.Itoa(line)
		txs = append(txs, tx)
	}
}

func parseLedgerRow(rec []string) (core.ReserveTransaction, error) {
	if strings.TrimSpace(rec[0]) == "" {
		return core.ReserveTransaction{}, core.InvalidArgument("date is required")
	}
	date, err := parseDay(rec[0])
	if err != nil {
		return core.ReserveTransaction{}, err
	}

	var typ core.ReserveTransactionType
	switch strings.ToLower(strings.TrimSpace(rec[1])) {
	case "add", string(core.ReserveAdd):
		typ = core.ReserveAdd
	case "withdraw", string(core.ReserveWithdraw):
		typ = core.ReserveWithdraw
	default:
		return core.ReserveTransaction{}, core.InvalidArgument("unknown transaction type %q", rec[1])
	}

	amount, err := strconv.ParseFloat(strings.TrimSpace(rec[2]), 64)
	if err != nil {
		return core.ReserveTransaction{}, core.InvalidArgument("amount %q is not a number", rec[2])
	}

	tx := core.ReserveTransaction{Amount: amount, Date: date, Type: typ}
	return tx, tx.Validate()
}
