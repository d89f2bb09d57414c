package notify

import (
	"fmt"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/invoice"
)

// reminderHour is the local hour reminders fire at.
const reminderHour = 9

// Planner derives invoice closing and due reminders from a user's cards.
type Planner struct {
	LeadDays int
}

// Plan returns the reminders for the invoice of each card that is open at
// now. Reminders whose fire time already passed are left out. IDs are
// stable per card and invoice month, so planning again replaces rather than
// duplicates. totals, when it has an entry for a card, is quoted in the
// body.
func (p Planner) Plan(userID string, cards []core.Card, totals map[string]core.Money, now time.Time) ([]Notification, error) {
	var out []Notification
	for _, card := range cards {
		if err := card.Validate(); err != nil {
			return nil, fmt.Errorf("card %s: %w", card.ID, err)
		}

		period, err := invoice.Resolve(now, card.ClosingDay)
		if err != nil {
			return nil, err
		}
		key, err := invoice.Cycle(now, card.ClosingDay)
		if err != nil {
			return nil, err
		}
		key.CardID = card.ID

		amount := ""
		if total, ok := totals[card.ID]; ok && total.IsPositive() {
			amount = " (" + total.String() + ")"
		}

		closing := core.StartOfDay(period.End)
		out = p.appendIfFuture(out, now, Notification{
			ID:     reminderID(userID, key, "closing"),
			UserID: userID,
			Title:  "Invoice closing soon",
			Body: fmt.Sprintf("%s invoice%s closes on %s",
				card.Name, amount, closing.Format("02/01")),
			FireAt: p.fireTime(closing),
		})

		if card.DueDay == 0 {
			continue
		}
		due, err := invoice.DueDate(key, card.ClosingDay, card.DueDay, now.Location())
		if err != nil {
			return nil, err
		}
		out = p.appendIfFuture(out, now, Notification{
			ID:     reminderID(userID, key, "due"),
			UserID: userID,
			Title:  "Invoice due soon",
			Body: fmt.Sprintf("%s invoice%s is due on %s",
				card.Name, amount, due.Format("02/01")),
			FireAt: p.fireTime(due),
		})
	}
	sortByFireTime(out)
	return out, nil
}

func (p Planner) fireTime(day time.Time) time.Time {
	d := day.AddDate(0, 0, -p.LeadDays)
	return time.Date(d.Year(), d.Month(), d.Day(), reminderHour, 0, 0, 0, d.Location())
}

func (p Planner) appendIfFuture(out []Notification, now time.Time, n Notification) []Notification {
	if n.FireAt.Before(now) {
		return out
	}
	return append(out, n)
}

func reminderID(userID string, k invoice.Key, kind string) string {
	return fmt.Sprintf("%s:%s:%s", userID, k, kind)
}
