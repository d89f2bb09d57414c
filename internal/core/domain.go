package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"

	ReserveAdd      ReserveTransactionType = "reserve_add"
	ReserveWithdraw ReserveTransactionType = "reserve_withdraw"

	OpCreated ChangeOp = "created"
	OpUpdated ChangeOp = "updated"
	OpDeleted ChangeOp = "deleted"
	// OpResync tells a subscriber it missed events and must treat every
	// document as possibly changed.
	OpResync ChangeOp = "resync"
)

type (
	TransactionType        string
	ReserveTransactionType string
	ChangeOp               string

	// Period is a closed date window. Start sits at 00:00:00.000 and End at
	// 23:59:59.999 of their calendar days.
	Period struct {
		Start time.Time `json:"startDate"`
		End   time.Time `json:"endDate"`
	}

	FinancialPeriodOption struct {
		Label string    `json:"label"`
		Value string    `json:"value"`
		Start time.Time `json:"startDate"`
		End   time.Time `json:"endDate"`
	}

	Card struct {
		ID         string `json:"id"`
		Name       string `json:"name"`
		ClosingDay int    `json:"closingDay"`
		DueDay     int    `json:"dueDay,omitempty"`
	}

	Transaction struct {
		ID          string          `json:"id"`
		Type        TransactionType `json:"type"`
		Description string          `json:"description"`
		Amount      Money           `json:"amount"`
		Date        time.Time       `json:"date"`
		CategoryID  string          `json:"categoryId,omitempty"`
		CardID      string          `json:"cardId,omitempty"`
	}

	Category struct {
		ID           string `json:"id"`
		Name         string `json:"name"`
		MonthlyLimit Money  `json:"monthlyLimit"`
	}

	Reserve struct {
		ID               string  `json:"id"`
		Name             string  `json:"name"`
		Goal             Money   `json:"goal"`
		MonthlyYieldRate float64 `json:"monthlyYieldRate"`
	}

	ReserveTransaction struct {
		ID        string                 `json:"id"`
		ReserveID string                 `json:"reserveId"`
		Amount    float64                `json:"amount"`
		Date      time.Time              `json:"date"`
		Type      ReserveTransactionType `json:"type"`
	}

	HistoryPoint struct {
		Date    string  `json:"date"`
		Balance float64 `json:"balance"`
	}

	ReserveHistoryResult struct {
		Points         []HistoryPoint `json:"historyPoints"`
		LastDailyYield float64        `json:"lastDailyYield"`
	}

	// Partnership links two users that share a dashboard.
	Partnership struct {
		ID        string    `json:"id"`
		PartnerID string    `json:"partnerId"`
		Since     time.Time `json:"since"`
	}

	Settings struct {
		FinancialStartDay int    `json:"financialStartDay"`
		Locale            string `json:"locale,omitempty"`
	}

	// ChangeEvent reports a write to one document of a user's collection.
	ChangeEvent struct {
		Op         ChangeOp  `json:"op"`
		UserID     string    `json:"userId"`
		Collection string    `json:"collection"`
		DocID      string    `json:"docId"`
		At         time.Time `json:"at"`
	}
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
)

// InvalidArgument wraps ErrInvalidArgument with a formatted reason.
func InvalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// ValidateDay checks a day-of-month setting such as a period start day or a
// card closing day.
func ValidateDay(name string, day int) error {
	if day < 1 || day > 31 {
		return InvalidArgument("%s %d out of range [1,31]", name, day)
	}
	return nil
}

// NewPeriod builds a period covering the calendar days of start and end.
func NewPeriod(start, end time.Time) Period {
	return Period{Start: StartOfDay(start), End: EndOfDay(end)}
}

func (p Period) Validate() error {
	if p.Start.IsZero() || p.End.IsZero() {
		return InvalidArgument("period bounds must be set")
	}
	if p.Start.After(p.End) {
		return InvalidArgument("period start %s after end %s",
			p.Start.Format(time.DateOnly), p.End.Format(time.DateOnly))
	}
	return nil
}

// Contains reports whether t falls inside the period, bounds included.
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && !t.After(p.End)
}

// Days returns the number of calendar days spanned by the period.
func (p Period) Days() int {
	n := 0
	for d := StartOfDay(p.Start); !d.After(p.End); d = d.AddDate(0, 0, 1) {
		n++
	}
	return n
}

func (t ReserveTransactionType) IsValid() bool {
	return t == ReserveAdd || t == ReserveWithdraw
}

// Signed returns the amount with the sign its type applies to a balance.
func (rt ReserveTransaction) Signed() float64 {
	if rt.Type == ReserveWithdraw {
		return -rt.Amount
	}
	return rt.Amount
}

func (rt ReserveTransaction) Validate() error {
	if !rt.Type.IsValid() {
		return InvalidArgument("unknown reserve transaction type %q", rt.Type)
	}
	if rt.Amount <= 0 {
		return InvalidArgument("reserve transaction amount must be positive")
	}
	if rt.Date.IsZero() {
		return InvalidArgument("reserve transaction date cannot be zero")
	}
	return nil
}

func (c Card) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return InvalidArgument("card name cannot be empty")
	}
	if err := ValidateDay("closing day", c.ClosingDay); err != nil {
		return err
	}
	if c.DueDay != 0 {
		return ValidateDay("due day", c.DueDay)
	}
	return nil
}

func (t Transaction) Validate() error {
	if t.Type != Income && t.Type != Expense {
		return InvalidArgument("unknown transaction type %q", t.Type)
	}
	if strings.TrimSpace(t.Description) == "" {
		return InvalidArgument("empty description")
	}
	if len(t.Description) > 200 {
		return InvalidArgument("description too long (max 200 characters)")
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if t.Date.IsZero() {
		return InvalidArgument("transaction date cannot be zero")
	}
	return nil
}

func (r Reserve) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return InvalidArgument("reserve name cannot be empty")
	}
	if r.MonthlyYieldRate < 0 {
		return InvalidArgument("monthly yield rate must not be negative")
	}
	return nil
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return InvalidArgument("category name cannot be empty")
	}
	if c.MonthlyLimit.IsNegative() {
		return InvalidArgument("category monthly limit must not be negative")
	}
	return nil
}

// Validate checks a partnership owned by userID.
func (p Partnership) Validate(userID string) error {
	if strings.TrimSpace(p.PartnerID) == "" || p.PartnerID == userID {
		return InvalidArgument("partner id must name another user")
	}
	return nil
}

func (s Settings) Validate() error {
	return ValidateDay("financial start day", s.FinancialStartDay)
}
