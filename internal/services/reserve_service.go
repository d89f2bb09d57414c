package services

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"fintrack/internal/cache"
	"fintrack/internal/core"
	"fintrack/internal/export"
	"fintrack/internal/log"
	"fintrack/internal/reserve"
	"fintrack/internal/storage"
)

// projectionWorkers bounds concurrent projections for one request.
const projectionWorkers = 4

// ReserveService projects reserve balances and caches the results until
// the reserve or its ledger changes.
type ReserveService struct {
	repo    *storage.Repository
	periods *PeriodService
	cache   cache.Cache[core.ReserveHistoryResult]
	logger  *log.Logger

	// mu orders cache writes against invalidations. A projection is only
	// cached when no invalidation of its user happened since its ledger
	// was read.
	mu    sync.Mutex
	gens  map[string]uint64
	epoch uint64
}

// cacheStamp identifies the invalidation state a projection was read under.
type cacheStamp struct {
	epoch, gen uint64
}

func NewReserveService(repo *storage.Repository, periods *PeriodService, c cache.Cache[core.ReserveHistoryResult], logger *log.Logger) *ReserveService {
	return &ReserveService{
		repo:    repo,
		periods: periods,
		cache:   c,
		logger:  logger.WithComponent(log.ComponentReserve),
		gens:    make(map[string]uint64),
	}
}

// History projects one reserve over p, or over the user's current period
// when p is the zero Period.
func (s *ReserveService) History(ctx context.Context, userID, reserveID string, p core.Period) (core.Reserve, core.ReserveHistoryResult, error) {
	p, err := s.resolvePeriod(ctx, userID, p)
	if err != nil {
		return core.Reserve{}, core.ReserveHistoryResult{}, err
	}
	stamp := s.stamp(userID)
	res, err := s.repo.Reserve(ctx, userID, reserveID)
	if err != nil {
		return core.Reserve{}, core.ReserveHistoryResult{}, err
	}

	key := cacheKey(userID, res, p)
	if s.cache != nil {
		if hit, ok := s.cache.Get(key); ok {
			return res, hit, nil
		}
	}

	txs, err := s.repo.ReserveTransactions(ctx, userID, reserveID)
	if err != nil {
		return core.Reserve{}, core.ReserveHistoryResult{}, err
	}

	start := time.Now()
	out, err := reserve.Project(txs, p, res.MonthlyYieldRate)
	if err != nil {
		return core.Reserve{}, core.ReserveHistoryResult{}, fmt.Errorf("project reserve %s: %w", reserveID, err)
	}
	fields := log.NewFields().
		WithUser(userID).
		WithOperation(log.OpProject).
		WithPeriod(p.Start, p.End).
		ToSlice()
	s.logger.DebugContext(ctx, "Projected reserve", append(fields,
		log.FieldReserveID, reserveID,
		log.FieldDuration, time.Since(start).Milliseconds(),
		log.FieldCount, len(out.Points))...)

	if s.cache != nil && !s.cacheResult(userID, key, stamp, out) {
		s.logger.DebugContext(ctx, "Skipped caching superseded projection",
			log.FieldUserID, userID, log.FieldReserveID, reserveID)
	}
	return res, out, nil
}

// HistoryAll projects every reserve of the user over the same period.
func (s *ReserveService) HistoryAll(ctx context.Context, userID string, p core.Period) ([]reserve.Output, error) {
	p, err := s.resolvePeriod(ctx, userID, p)
	if err != nil {
		return nil, err
	}
	reserves, err := s.repo.Reserves(ctx, userID)
	if err != nil {
		return nil, err
	}

	inputs := make([]reserve.Input, 0, len(reserves))
	for _, res := range reserves {
		txs, err := s.repo.ReserveTransactions(ctx, userID, res.ID)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, reserve.Input{Reserve: res, Transactions: txs, Period: p})
	}
	return reserve.ProjectAll(ctx, inputs, projectionWorkers)
}

// Chart renders the projection of one reserve as a PNG.
func (s *ReserveService) Chart(ctx context.Context, userID, reserveID string, p core.Period) ([]byte, error) {
	p, err := s.resolvePeriod(ctx, userID, p)
	if err != nil {
		return nil, err
	}
	res, hist, err := s.History(ctx, userID, reserveID, p)
	if err != nil {
		return nil, err
	}
	return export.RenderReserveChart(res.Name, p, hist, res.Goal.Float64())
}

// Watch drops cached projections of a user whenever one of their reserves
// or reserve transactions changes. It returns when ctx is done.
func (s *ReserveService) Watch(ctx context.Context, store storage.DocumentStore) {
	if s.cache == nil {
		return
	}
	events, cancel := store.Subscribe("", "")
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Op == core.OpResync {
				n := s.invalidateAll()
				s.logger.WarnContext(ctx, "Missed change events, dropped every reserve projection",
					log.FieldCount, n)
				continue
			}
			if ev.Collection != storage.CollReserves && ev.Collection != storage.CollReserveTransactions {
				continue
			}
			n := s.invalidate(ev.UserID)
			s.logger.DebugContext(ctx, "Invalidated reserve projections",
				log.FieldUserID, ev.UserID,
				log.FieldCollection, ev.Collection,
				log.FieldCount, n)
		}
	}
}

func (s *ReserveService) stamp(userID string) cacheStamp {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cacheStamp{epoch: s.epoch, gen: s.gens[userID]}
}

// cacheResult stores out under key unless the user's projections were
// invalidated after stamp was taken. It reports whether out was stored.
func (s *ReserveService) cacheResult(userID, key string, stamp cacheStamp, out core.ReserveHistoryResult) bool {
	if s.cache == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if (cacheStamp{epoch: s.epoch, gen: s.gens[userID]}) != stamp {
		return false
	}
	s.cache.Set(key, out)
	return true
}

func (s *ReserveService) invalidate(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gens[userID]++
	return s.cache.DeletePrefix(userID + "|")
}

func (s *ReserveService) invalidateAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
	return s.cache.DeletePrefix("")
}

func (s *ReserveService) resolvePeriod(ctx context.Context, userID string, p core.Period) (core.Period, error) {
	if p.Start.IsZero() && p.End.IsZero() {
		return s.periods.Current(ctx, userID)
	}
	return p, p.Validate()
}

func cacheKey(userID string, res core.Reserve, p core.Period) string {
	return userID + "|" + res.ID + "|" +
		p.Start.Format(time.RFC3339Nano) + "|" + p.End.Format(time.RFC3339Nano) + "|" +
		strconv.FormatFloat(res.MonthlyYieldRate, 'g', -1, 64)
}
