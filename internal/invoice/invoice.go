// Package invoice maps credit-card expenses onto statement cycles.
//
// A card with closing day C bills, in month M, every purchase from day C+1 of
// month M-1 through day C of month M. A purchase made on the closing day
// itself stays in the cycle that closes that day.
package invoice

import (
	"fmt"
	"slices"
	"time"

	"fintrack/internal/core"
)

// Key identifies an invoice by card and nominal billing month.
type Key struct {
	CardID string     `json:"cardId"`
	Year   int        `json:"year"`
	Month  time.Month `json:"month"`
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%04d-%02d", k.CardID, k.Year, int(k.Month))
}

// Invoice is one statement with the expenses billed on it.
type Invoice struct {
	Key      Key                `json:"key"`
	Period   core.Period        `json:"period"`
	Total    core.Money         `json:"total"`
	Expenses []core.Transaction `json:"expenses"`
}

// Cycle returns the nominal (year, month) of the invoice an expense dated
// expenseDate is billed on. The card id of the returned key is empty.
func Cycle(expenseDate time.Time, closingDay int) (Key, error) {
	if err := core.ValidateDay("closing day", closingDay); err != nil {
		return Key{}, err
	}
	y, m, d := expenseDate.Date()
	if d > closingDay {
		m++
		if m > time.December {
			m = time.January
			y++
		}
	}
	return Key{Year: y, Month: m}, nil
}

// Resolve returns the statement period an expense dated expenseDate belongs
// to: from day closingDay+1 of the previous month at 00:00:00.000 to day
// closingDay of the invoice month at 23:59:59.999.
func Resolve(expenseDate time.Time, closingDay int) (core.Period, error) {
	k, err := Cycle(expenseDate, closingDay)
	if err != nil {
		return core.Period{}, err
	}
	return periodOf(k, closingDay, expenseDate.Location()), nil
}

func periodOf(k Key, closingDay int, loc *time.Location) core.Period {
	return core.Period{
		Start: time.Date(k.Year, k.Month-1, closingDay+1, 0, 0, 0, 0, loc),
		End:   time.Date(k.Year, k.Month, closingDay, 23, 59, 59, int(999*time.Millisecond), loc),
	}
}

// DueDate returns the payment due date of an invoice. A due day before the
// closing day falls in the month after the invoice month.
func DueDate(k Key, closingDay, dueDay int, loc *time.Location) (time.Time, error) {
	if err := core.ValidateDay("closing day", closingDay); err != nil {
		return time.Time{}, err
	}
	if err := core.ValidateDay("due day", dueDay); err != nil {
		return time.Time{}, err
	}
	m := k.Month
	if dueDay <= closingDay {
		m++
	}
	return time.Date(k.Year, m, dueDay, 0, 0, 0, 0, loc), nil
}

// Group buckets card expenses into invoices ordered by period start.
// Income rows are ignored.
func Group(card core.Card, txs []core.Transaction) ([]Invoice, error) {
	if err := core.ValidateDay("closing day", card.ClosingDay); err != nil {
		return nil, err
	}

	byKey := make(map[Key]*Invoice)
	for _, tx := range txs {
		if tx.Type != core.Expense {
			continue
		}
		k, err := Cycle(tx.Date, card.ClosingDay)
		if err != nil {
			return nil, err
		}
		k.CardID = card.ID

		inv, ok := byKey[k]
		if !ok {
			inv = &Invoice{Key: k, Period: periodOf(k, card.ClosingDay, tx.Date.Location())}
			byKey[k] = inv
		}
		inv.Total = inv.Total.Add(tx.Amount)
		inv.Expenses = append(inv.Expenses, tx)
	}

	out := make([]Invoice, 0, len(byKey))
	for _, inv := range byKey {
		slices.SortStableFunc(inv.Expenses, func(a, b core.Transaction) int {
			return a.Date.Compare(b.Date)
		})
		out = append(out, *inv)
	}
	slices.SortFunc(out, func(a, b Invoice) int {
		return a.Period.Start.Compare(b.Period.Start)
	})
	return out, nil
}
