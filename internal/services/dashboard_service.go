package services

import (
	"context"
	"fmt"
	"slices"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/storage"
)

// Totals sums a set of transactions.
type Totals struct {
	Income   core.Money `json:"income"`
	Expenses core.Money `json:"expenses"`
	Balance  core.Money `json:"balance"`
}

func (t *Totals) add(tx core.Transaction) {
	switch tx.Type {
	case core.Income:
		t.Income = t.Income.Add(tx.Amount)
	case core.Expense:
		t.Expenses = t.Expenses.Add(tx.Amount)
	}
	t.Balance = t.Income.Sub(t.Expenses)
}

// CategoryUsage is the spending of one category against its monthly limit.
type CategoryUsage struct {
	Category   core.Category `json:"category"`
	Spent      core.Money    `json:"spent"`
	Remaining  core.Money    `json:"remaining"`
	OverBudget bool          `json:"overBudget"`
}

// PartnerSummary is the partner's side of a shared dashboard.
type PartnerSummary struct {
	PartnerID string `json:"partnerId"`
	Totals    Totals `json:"totals"`
}

type Dashboard struct {
	Period     core.Period     `json:"period"`
	Totals     Totals          `json:"totals"`
	Categories []CategoryUsage `json:"categories"`
	Partner    *PartnerSummary `json:"partner,omitempty"`
	Combined   *Totals         `json:"combined,omitempty"`
}

// DashboardService summarizes a user's current financial period.
type DashboardService struct {
	repo    *storage.Repository
	periods *PeriodService
	logger  *log.Logger
}

func NewDashboardService(repo *storage.Repository, periods *PeriodService, logger *log.Logger) *DashboardService {
	return &DashboardService{repo: repo, periods: periods, logger: logger.WithComponent(log.ComponentDashboard)}
}

// Summary builds the dashboard for the user's current period. When the
// user and the partner both name each other in a partnership, the
// partner's totals over the same dates are added, along with the combined
// totals.
func (s *DashboardService) Summary(ctx context.Context, userID string) (Dashboard, error) {
	p, err := s.periods.Current(ctx, userID)
	if err != nil {
		return Dashboard{}, err
	}
	txs, err := s.repo.Transactions(ctx, userID, p)
	if err != nil {
		return Dashboard{}, fmt.Errorf("load transactions: %w", err)
	}
	categories, err := s.repo.Categories(ctx, userID)
	if err != nil {
		return Dashboard{}, fmt.Errorf("load categories: %w", err)
	}

	d := Dashboard{Period: p, Totals: sum(txs), Categories: categoryUsage(categories, txs)}

	partnership, err := s.mutualPartnership(ctx, userID)
	if err != nil {
		return Dashboard{}, err
	}
	if partnership != nil {
		partnerTxs, err := s.repo.Transactions(ctx, partnership.PartnerID, p)
		if err != nil {
			return Dashboard{}, fmt.Errorf("load partner transactions: %w", err)
		}
		pt := sum(partnerTxs)
		d.Partner = &PartnerSummary{PartnerID: partnership.PartnerID, Totals: pt}
		combined := sum(append(slices.Clone(txs), partnerTxs...))
		d.Combined = &combined
	}

	s.logger.DebugContext(ctx, "Built dashboard",
		log.NewFields().WithUser(userID).WithPeriod(p.Start, p.End).ToSlice()...)
	return d, nil
}

// mutualPartnership returns the user's partnership only when the partner
// has a partnership naming the user back.
func (s *DashboardService) mutualPartnership(ctx context.Context, userID string) (*core.Partnership, error) {
	mine, err := s.repo.Partnership(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load partnership: %w", err)
	}
	if mine == nil {
		return nil, nil
	}
	theirs, err := s.repo.Partnership(ctx, mine.PartnerID)
	if err != nil {
		return nil, fmt.Errorf("load partner's partnership: %w", err)
	}
	if theirs == nil || theirs.PartnerID != userID {
		s.logger.DebugContext(ctx, "Partnership not confirmed by partner",
			log.NewFields().WithUser(userID).ToSlice()...)
		return nil, nil
	}
	return mine, nil
}

func sum(txs []core.Transaction) Totals {
	var t Totals
	for _, tx := range txs {
		t.add(tx)
	}
	return t
}

// categoryUsage reports every category in name order. Categories without a
// limit are never over budget.
func categoryUsage(categories []core.Category, txs []core.Transaction) []CategoryUsage {
	spent := make(map[string]core.Money)
	for _, tx := range txs {
		if tx.Type == core.Expense && tx.CategoryID != "" {
			spent[tx.CategoryID] = spent[tx.CategoryID].Add(tx.Amount)
		}
	}

	out := make([]CategoryUsage, 0, len(categories))
	for _, c := range categories {
		u := CategoryUsage{Category: c, Spent: spent[c.ID]}
		if c.MonthlyLimit.IsPositive() {
			u.Remaining = c.MonthlyLimit.Sub(u.Spent)
			u.OverBudget = u.Spent.GreaterThan(c.MonthlyLimit.Decimal)
		}
		out = append(out, u)
	}
	slices.SortFunc(out, func(a, b CategoryUsage) int {
		switch {
		case a.Category.Name < b.Category.Name:
			return -1
		case a.Category.Name > b.Category.Name:
			return 1
		}
		return 0
	})
	return out
}
