package services

import (
	"context"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/period"
	"fintrack/internal/storage"
)

// PeriodDefaults apply to users that never saved settings.
type PeriodDefaults struct {
	StartDay int
	Range    int
	Locale   string
}

// PeriodService resolves a user's financial calendar.
type PeriodService struct {
	repo     *storage.Repository
	defaults PeriodDefaults
	now      func() time.Time
}

func NewPeriodService(repo *storage.Repository, defaults PeriodDefaults) *PeriodService {
	if defaults.StartDay == 0 {
		defaults.StartDay = 1
	}
	if defaults.Locale == "" {
		defaults.Locale = period.DefaultLocale
	}
	return &PeriodService{repo: repo, defaults: defaults, now: time.Now}
}

func (s *PeriodService) DefaultRange() int {
	return s.defaults.Range
}

// Now is the service clock.
func (s *PeriodService) Now() time.Time {
	return s.now()
}

// Settings returns the user's settings with defaults filled in.
func (s *PeriodService) Settings(ctx context.Context, userID string) (core.Settings, error) {
	st, ok, err := s.repo.Settings(ctx, userID)
	if err != nil {
		return core.Settings{}, err
	}
	if !ok || st.FinancialStartDay == 0 {
		st.FinancialStartDay = s.defaults.StartDay
	}
	if st.Locale == "" {
		st.Locale = s.defaults.Locale
	}
	return st, nil
}

func (s *PeriodService) UpdateSettings(ctx context.Context, userID string, st core.Settings) (core.Settings, error) {
	return s.repo.SaveSettings(ctx, userID, st)
}

// Current returns the financial period containing now for the user.
func (s *PeriodService) Current(ctx context.Context, userID string) (core.Period, error) {
	st, err := s.Settings(ctx, userID)
	if err != nil {
		return core.Period{}, err
	}
	return period.Current(s.now(), st.FinancialStartDay)
}

// Options lists the selectable periods rng months around the current one,
// labelled in locale or, when empty, in the user's locale.
func (s *PeriodService) Options(ctx context.Context, userID string, rng int, locale string) ([]core.FinancialPeriodOption, error) {
	st, err := s.Settings(ctx, userID)
	if err != nil {
		return nil, err
	}
	if locale == "" {
		locale = st.Locale
	}
	return period.Enumerate(s.now(), st.FinancialStartDay, rng, locale)
}
