// Package period computes custom financial months anchored to a user-chosen
// start day.
//
// A financial period with start day S runs from day S of one month to day
// S-1 of the next. Days that do not exist in a month roll over the way
// time.Date normalizes them, so start day 31 in a 30-day month lands on the
// 1st of the following month.
package period

import (
	"slices"
	"time"

	"fintrack/internal/core"
)

// DefaultRange is the number of periods enumerated on each side of today.
const DefaultRange = 6

// Current returns the financial period containing now.
func Current(now time.Time, startDay int) (core.Period, error) {
	if err := core.ValidateDay("start day", startDay); err != nil {
		return core.Period{}, err
	}
	return Around(now, startDay), nil
}

// Around applies the start/end derivation relative to ref. If ref's day is
// on or after startDay the period starts this month, otherwise it started
// last month.
func Around(ref time.Time, startDay int) core.Period {
	y, m, d := ref.Date()
	loc := ref.Location()

	startMonth := m
	if d < startDay {
		startMonth = m - 1
	}
	start := time.Date(y, startMonth, startDay, 0, 0, 0, 0, loc)
	end := time.Date(y, startMonth+1, startDay-1, 23, 59, 59, int(999*time.Millisecond), loc)
	return core.Period{Start: start, End: end}
}

// Enumerate lists the periods derived from the first day of each month in
// [now-rng months, now+rng months], deduplicated by start date and sorted
// ascending. Labels are localized for locale (see Label).
func Enumerate(now time.Time, startDay, rng int, locale string) ([]core.FinancialPeriodOption, error) {
	if err := core.ValidateDay("start day", startDay); err != nil {
		return nil, err
	}
	if rng < 0 {
		return nil, core.InvalidArgument("range %d must not be negative", rng)
	}

	y, m, _ := now.Date()
	seen := make(map[string]struct{}, 2*rng+1)
	out := make([]core.FinancialPeriodOption, 0, 2*rng+1)

	for i := rng; i >= -rng; i-- {
		ref := time.Date(y, m-time.Month(i), 1, 0, 0, 0, 0, now.Location())
		p := Around(ref, startDay)

		value := p.Start.Format(time.DateOnly)
		if _, dup := seen[value]; dup {
			continue
		}
		seen[value] = struct{}{}

		out = append(out, core.FinancialPeriodOption{
			Label: Label(p.Start, locale),
			Value: value,
			Start: p.Start,
			End:   p.End,
		})
	}

	slices.SortStableFunc(out, func(a, b core.FinancialPeriodOption) int {
		return a.Start.Compare(b.Start)
	})
	return out, nil
}
