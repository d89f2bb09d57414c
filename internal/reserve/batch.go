package reserve

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"fintrack/internal/core"
)

// Input is one reserve to project.
type Input struct {
	Reserve      core.Reserve
	Transactions []core.ReserveTransaction
	Period       core.Period
}

// Output pairs a reserve with its projected history.
type Output struct {
	Reserve core.Reserve              `json:"reserve"`
	History core.ReserveHistoryResult `json:"history"`
}

// ProjectAll projects every input concurrently, at most limit at a time
// (unbounded when limit <= 0). Outputs keep the input order. The first
// failing projection cancels the rest.
func ProjectAll(ctx context.Context, inputs []Input, limit int) ([]Output, error) {
	out := make([]Output, len(inputs))

	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}

	for i, in := range inputs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := Project(in.Transactions, in.Period, in.Reserve.MonthlyYieldRate)
			if err != nil {
				return fmt.Errorf("project reserve %s: %w", in.Reserve.ID, err)
			}
			out[i] = Output{Reserve: in.Reserve, History: res}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
