// Package reserve replays a savings reserve ledger day by day.
//
// Each simulated day first credits that day's pro-rata yield, the monthly
// rate divided by the number of days in the day's month, on the balance
// carried from the previous day, and only then books the day's deposits and
// withdrawals. Balances are float64 and never rounded so results match the
// series already shown to users.
package reserve

import (
	"slices"
	"time"

	"fintrack/internal/core"
)

// PointLayout is the day/month label of each history point.
const PointLayout = "02/01"

// Project computes the daily balance series of a reserve over p.
//
// The opening balance is the signed sum of every transaction dated before
// p.Start. LastDailyYield is the yield credited on the final simulated day,
// zero when that day's opening balance was not positive or the rate is zero.
func Project(txs []core.ReserveTransaction, p core.Period, monthlyRate float64) (core.ReserveHistoryResult, error) {
	if err := p.Validate(); err != nil {
		return core.ReserveHistoryResult{}, err
	}
	if monthlyRate < 0 {
		return core.ReserveHistoryResult{}, core.InvalidArgument("monthly yield rate %v must not be negative", monthlyRate)
	}

	loc := p.Start.Location()
	balance := Balance(txs, p.Start)

	window := make([]core.ReserveTransaction, 0, len(txs))
	for _, tx := range txs {
		if p.Contains(tx.Date) {
			window = append(window, tx)
		}
	}
	slices.SortStableFunc(window, func(a, b core.ReserveTransaction) int {
		return a.Date.Compare(b.Date)
	})

	points := make([]core.HistoryPoint, 0, p.Days())
	dailyYield := 0.0
	next := 0

	for d := core.StartOfDay(p.Start); !dayAfter(d, p.End.In(loc)); d = d.AddDate(0, 0, 1) {
		dailyRate := monthlyRate / float64(core.DaysIn(d.Year(), d.Month()))

		if balance > 0 && dailyRate > 0 {
			dailyYield = balance * dailyRate
			balance += dailyYield
		} else {
			dailyYield = 0
		}

		// window is sorted, so the day's transactions are the next run of
		// entries dated on d.
		dayTotal := 0.0
		for next < len(window) && !dayAfter(window[next].Date.In(loc), d) {
			dayTotal += window[next].Signed()
			next++
		}
		balance += dayTotal

		points = append(points, core.HistoryPoint{
			Date:    d.Format(PointLayout),
			Balance: balance,
		})
	}

	return core.ReserveHistoryResult{Points: points, LastDailyYield: dailyYield}, nil
}

// Balance returns the signed sum of all transactions dated strictly before at.
func Balance(txs []core.ReserveTransaction, at time.Time) float64 {
	total := 0.0
	for _, tx := range txs {
		if tx.Date.Before(at) {
			total += tx.Signed()
		}
	}
	return total
}

// dayAfter reports whether t's calendar date is later than d's.
func dayAfter(t, d time.Time) bool {
	ty, tm, td := t.Date()
	dy, dm, dd := d.Date()
	if ty != dy {
		return ty > dy
	}
	if tm != dm {
		return tm > dm
	}
	return td > dd
}
