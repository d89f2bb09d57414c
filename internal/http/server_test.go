package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/cache"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/notify"
	"fintrack/internal/reserve"
	"fintrack/internal/services"
	"fintrack/internal/storage"
)

type testServer struct {
	srv  *Server
	repo *storage.Repository
}

func newTestServer(t *testing.T, writesPerMinute int) *testServer {
	t.Helper()
	logger := log.New(log.Config{Output: &bytes.Buffer{}})
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "api.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	repo := storage.NewRepository(store)
	periods := services.NewPeriodService(repo, services.PeriodDefaults{StartDay: 1, Range: 1, Locale: "en"})
	invoices := services.NewInvoiceService(repo, logger)
	lru := cache.NewLRUCache[core.ReserveHistoryResult](16, time.Minute)
	scheduler := notify.NewScheduler(notify.NewLogDispatcher(logger), logger)

	srv := NewServer(":0", Services{
		Store:         store,
		Periods:       periods,
		Invoices:      invoices,
		Reserves:      services.NewReserveService(repo, periods, lru, logger),
		Dashboard:     services.NewDashboardService(repo, periods, logger),
		Notifications: services.NewNotificationService(repo, invoices, 3, nil, scheduler, logger),
		Export:        services.NewExportService(repo, periods, nil, logger),
	}, Limits{WritesPerMinute: writesPerMinute, MaxPeriodDays: 400}, logger)
	t.Cleanup(func() { srv.Shutdown(context.Background()) })

	return &testServer{srv: srv, repo: repo}
}

func (ts *testServer) do(t *testing.T, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	switch b := body.(type) {
	case nil:
		rd = bytes.NewReader(nil)
	case string:
		rd = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if user != "" {
		req.Header.Set(UserIDHeader, user)
	}
	rr := httptest.NewRecorder()
	ts.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func TestHealthAndHeaders(t *testing.T) {
	ts := newTestServer(t, 60)

	rr := ts.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.True(t, strings.HasPrefix(rr.Header().Get(RequestIDHeader), "req_"))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rr = httptest.NewRecorder()
	ts.srv.Handler.ServeHTTP(rr, req)
	assert.Equal(t, "abc-123", rr.Header().Get(RequestIDHeader))
}

func TestMissingUser(t *testing.T) {
	ts := newTestServer(t, 60)

	rr := ts.do(t, http.MethodGet, "/api/periods/current", "", nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	body := decodeBody[ErrorBody](t, rr)
	assert.Contains(t, body.Error, UserIDHeader)
	assert.Equal(t, rr.Header().Get(RequestIDHeader), body.RequestID)

	rr = ts.do(t, http.MethodGet, "/api/periods/current", "a|b", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestPeriods(t *testing.T) {
	ts := newTestServer(t, 60)

	rr := ts.do(t, http.MethodGet, "/api/periods/current", "u1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	p := decodeBody[core.Period](t, rr)
	assert.True(t, p.Contains(time.Now()))
	assert.Equal(t, 1, p.Start.Day())

	rr = ts.do(t, http.MethodGet, "/api/periods", "u1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decodeBody[[]core.FinancialPeriodOption](t, rr), 3)

	rr = ts.do(t, http.MethodGet, "/api/periods?range=2&locale=pt-BR", "u1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	opts := decodeBody[[]core.FinancialPeriodOption](t, rr)
	require.Len(t, opts, 5)
	assert.Equal(t, opts[2].Start.Format(time.DateOnly), opts[2].Value)

	rr = ts.do(t, http.MethodGet, "/api/periods?range=abc", "u1", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = ts.do(t, http.MethodGet, "/api/periods?range=-1", "u1", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSettings(t *testing.T) {
	ts := newTestServer(t, 60)

	rr := ts.do(t, http.MethodGet, "/api/settings", "u1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, core.Settings{FinancialStartDay: 1, Locale: "en"}, decodeBody[core.Settings](t, rr))

	rr = ts.do(t, http.MethodPut, "/api/settings", "u1", core.Settings{FinancialStartDay: 10, Locale: "pt"})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = ts.do(t, http.MethodGet, "/api/periods/current", "u1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 10, decodeBody[core.Period](t, rr).Start.Day())

	rr = ts.do(t, http.MethodPut, "/api/settings", "u1", core.Settings{FinancialStartDay: 0})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = ts.do(t, http.MethodPut, "/api/settings", "u1", "{not json")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestResolveInvoice(t *testing.T) {
	ts := newTestServer(t, 60)

	rr := ts.do(t, http.MethodGet, "/api/invoices/resolve?date=2025-07-25&closingDay=20", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	p := decodeBody[core.Period](t, rr)
	assert.True(t, p.Start.Equal(time.Date(2025, 7, 21, 0, 0, 0, 0, time.UTC)))
	assert.True(t, p.End.Equal(time.Date(2025, 8, 20, 23, 59, 59, 999000000, time.UTC)))

	for _, q := range []string{
		"closingDay=20",
		"date=2025-07-25",
		"date=2025-07-25&closingDay=32",
		"date=25/07/2025&closingDay=20",
		"date=2025-07-25&closingDay=x",
	} {
		rr := ts.do(t, http.MethodGet, "/api/invoices/resolve?"+q, "", nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code, q)
	}
}

func TestCardInvoices(t *testing.T) {
	ts := newTestServer(t, 60)
	ctx := context.Background()

	card, err := ts.repo.SaveCard(ctx, "u1", core.Card{Name: "Visa", ClosingDay: 20})
	require.NoError(t, err)
	for _, d := range []int{15, 25} {
		_, err := ts.repo.AddTransaction(ctx, "u1", core.Transaction{
			Type: core.Expense, Description: "x", Amount: core.MoneyFromCents(1000),
			Date: time.Date(2025, 7, d, 12, 0, 0, 0, time.UTC), CardID: card.ID,
		})
		require.NoError(t, err)
	}

	rr := ts.do(t, http.MethodGet, "/api/cards/"+card.ID+"/invoices", "u1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var invoices []struct {
		Total    core.Money         `json:"total"`
		Expenses []core.Transaction `json:"expenses"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &invoices))
	require.Len(t, invoices, 2)
	assert.Equal(t, int64(1000), invoices[0].Total.Cents())

	rr = ts.do(t, http.MethodGet, "/api/cards/missing/invoices", "u1", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	// Another user's card is invisible.
	rr = ts.do(t, http.MethodGet, "/api/cards/"+card.ID+"/invoices", "u2", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestReserveEndpoints(t *testing.T) {
	ts := newTestServer(t, 60)
	ctx := context.Background()

	res, err := ts.repo.SaveReserve(ctx, "u1", core.Reserve{Name: "Trip", Goal: core.MoneyFromCents(500000), MonthlyYieldRate: 0.31})
	require.NoError(t, err)
	_, err = ts.repo.AddReserveTransaction(ctx, "u1", core.ReserveTransaction{
		ReserveID: res.ID, Amount: 1000, Type: core.ReserveAdd, Date: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	rr := ts.do(t, http.MethodGet, "/api/reserves/"+res.ID+"/history?start=2025-03-01&end=2025-03-03", "u1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	out := decodeBody[reserve.Output](t, rr)
	assert.Equal(t, res.ID, out.Reserve.ID)
	require.Len(t, out.History.Points, 3)
	assert.Equal(t, "01/03", out.History.Points[0].Date)
	assert.InDelta(t, 1000.0, out.History.Points[0].Balance, 1e-9)
	assert.InDelta(t, 1010.0, out.History.Points[1].Balance, 1e-9)
	assert.InDelta(t, 10.1, out.History.LastDailyYield, 1e-9)

	rr = ts.do(t, http.MethodGet, "/api/reserves/history?start=2025-03-01&end=2025-03-03", "u1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decodeBody[[]reserve.Output](t, rr), 1)

	rr = ts.do(t, http.MethodGet, "/api/reserves/"+res.ID+"/chart.png?start=2025-03-01&end=2025-03-10", "u1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "image/png", rr.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rr.Body.Bytes(), []byte("\x89PNG")))

	for _, q := range []string{
		"start=2025-03-01",
		"start=2025-03-05&end=2025-03-01",
		"start=x&end=2025-03-01",
		"start=1000-01-01&end=2999-12-31",
	} {
		rr := ts.do(t, http.MethodGet, "/api/reserves/"+res.ID+"/history?"+q, "u1", nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code, q)
	}
	for _, path := range []string{
		"/api/reserves/history",
		"/api/reserves/" + res.ID + "/chart.png",
		"/api/export/transactions.csv",
	} {
		rr := ts.do(t, http.MethodGet, path+"?start=2024-01-01&end=2025-12-31", "u1", nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code, path)
	}
	rr = ts.do(t, http.MethodGet, "/api/reserves/missing/history", "u1", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestDashboard(t *testing.T) {
	ts := newTestServer(t, 60)
	ctx := context.Background()

	_, err := ts.repo.AddTransaction(ctx, "u1", core.Transaction{
		Type: core.Income, Description: "salary", Amount: core.MoneyFromCents(300000), Date: time.Now(),
	})
	require.NoError(t, err)
	_, err = ts.repo.AddTransaction(ctx, "u1", core.Transaction{
		Type: core.Expense, Description: "rent", Amount: core.MoneyFromCents(120000), Date: time.Now(),
	})
	require.NoError(t, err)

	rr := ts.do(t, http.MethodGet, "/api/dashboard", "u1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	d := decodeBody[services.Dashboard](t, rr)
	assert.Equal(t, int64(300000), d.Totals.Income.Cents())
	assert.Equal(t, int64(180000), d.Totals.Balance.Cents())
	assert.Nil(t, d.Partner)
}

func TestExportEndpoints(t *testing.T) {
	ts := newTestServer(t, 60)
	ctx := context.Background()

	_, err := ts.repo.AddTransaction(ctx, "u1", core.Transaction{
		Type: core.Expense, Description: "coffee", Amount: core.MoneyFromCents(350),
		Date: time.Date(2025, 5, 2, 9, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	rr := ts.do(t, http.MethodGet, "/api/export/transactions.csv?start=2025-05-01&end=2025-05-31", "u1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "transactions.csv")
	lines := strings.Split(strings.TrimSpace(rr.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "date,type,description"))
	assert.Contains(t, lines[1], "coffee")
	assert.Contains(t, lines[1], "3.50")

	rr = ts.do(t, http.MethodPost, "/api/export/sheets", "u1", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestPlanReminders(t *testing.T) {
	ts := newTestServer(t, 60)

	rr := ts.do(t, http.MethodPost, "/api/reminders", "u1", nil)
	require.Equal(t, http.StatusAccepted, rr.Code)
	assert.JSONEq(t, `{"scheduled":0,"reminders":[]}`, strings.ReplaceAll(rr.Body.String(), "null", "[]"))
}

func TestDocumentCRUD(t *testing.T) {
	ts := newTestServer(t, 60)

	rr := ts.do(t, http.MethodPost, "/api/docs/categories", "u1", map[string]any{"name": "Food", "monthlyLimit": "300"})
	require.Equal(t, http.StatusCreated, rr.Code)
	created := decodeBody[storage.Document](t, rr)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, "/api/docs/categories/"+created.ID, rr.Header().Get("Location"))

	rr = ts.do(t, http.MethodGet, "/api/docs/categories/"+created.ID, "u1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"id":"`+created.ID+`","name":"Food","monthlyLimit":"300"}`, string(decodeBody[storage.Document](t, rr).Data))

	rr = ts.do(t, http.MethodPut, "/api/docs/categories/"+created.ID, "u1", map[string]any{"name": "Groceries"})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = ts.do(t, http.MethodPut, "/api/docs/categories/fixed-id", "u1", map[string]any{"name": "Fun"})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = ts.do(t, http.MethodGet, "/api/docs/categories", "u1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decodeBody[[]storage.Document](t, rr), 2)

	rr = ts.do(t, http.MethodGet, "/api/docs/categories", "u2", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())

	rr = ts.do(t, http.MethodDelete, "/api/docs/categories/"+created.ID, "u1", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	rr = ts.do(t, http.MethodGet, "/api/docs/categories/"+created.ID, "u1", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	rr = ts.do(t, http.MethodDelete, "/api/docs/categories/"+created.ID, "u1", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = ts.do(t, http.MethodGet, "/api/docs/secrets", "u1", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	rr = ts.do(t, http.MethodPost, "/api/docs/categories", "u1", `[1,2]`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = ts.do(t, http.MethodPost, "/api/docs/categories", "u1", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestDocumentWritesAreValidated(t *testing.T) {
	ts := newTestServer(t, 60)
	ctx := context.Background()

	res, err := ts.repo.SaveReserve(ctx, "u1", core.Reserve{Name: "Trip"})
	require.NoError(t, err)

	rr := ts.do(t, http.MethodPost, "/api/docs/reserve_transactions", "u1", map[string]any{
		"reserveId": res.ID, "amount": -500, "type": "bogus", "date": "2025-01-02T00:00:00Z",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = ts.do(t, http.MethodPut, "/api/docs/reserve_transactions/t1", "u1", map[string]any{
		"reserveId": res.ID, "amount": 500, "type": "bogus", "date": "2025-01-02T00:00:00Z",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = ts.do(t, http.MethodGet, "/api/reserves/"+res.ID+"/history?start=2025-01-01&end=2025-01-03", "u1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	for _, p := range decodeBody[reserve.Output](t, rr).History.Points {
		assert.Zero(t, p.Balance, p.Date)
	}

	rr = ts.do(t, http.MethodPut, "/api/docs/settings/profile", "u1", map[string]any{"financialStartDay": 45})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = ts.do(t, http.MethodGet, "/api/periods/current", "u1", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = ts.do(t, http.MethodPut, "/api/docs/settings/profile", "u1", map[string]any{"financialStartDay": 10})
	require.Equal(t, http.StatusOK, rr.Code)
	st, err := ts.srv.svc.Periods.Settings(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 10, st.FinancialStartDay)
}

func TestDocumentListFilters(t *testing.T) {
	ts := newTestServer(t, 60)

	for _, doc := range []map[string]any{
		{"type": "expense", "description": "a", "amount": "1", "date": "2025-05-01T10:00:00Z"},
		{"type": "income", "description": "b", "amount": "2", "date": "2025-05-15T10:00:00Z"},
		{"type": "expense", "description": "c", "amount": "3", "date": "2025-06-01T10:00:00Z"},
	} {
		rr := ts.do(t, http.MethodPost, "/api/docs/transactions", "u1", doc)
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	}

	rr := ts.do(t, http.MethodGet, "/api/docs/transactions?from=2025-05-01&to=2025-05-31", "u1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decodeBody[[]storage.Document](t, rr), 2)

	rr = ts.do(t, http.MethodGet, "/api/docs/transactions?type=expense", "u1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decodeBody[[]storage.Document](t, rr), 2)

	rr = ts.do(t, http.MethodGet, "/api/docs/transactions?from=yesterday", "u1", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestWriteRateLimit(t *testing.T) {
	ts := newTestServer(t, 2)

	for i := 0; i < 2; i++ {
		rr := ts.do(t, http.MethodPost, "/api/docs/categories", "u1", map[string]any{"name": "c"})
		require.Equal(t, http.StatusCreated, rr.Code)
	}
	rr := ts.do(t, http.MethodPost, "/api/docs/categories", "u1", map[string]any{"name": "c"})
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "60", rr.Header().Get("Retry-After"))

	// Reads and other users are unaffected.
	rr = ts.do(t, http.MethodGet, "/api/docs/categories", "u1", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	rr = ts.do(t, http.MethodPost, "/api/docs/categories", "u2", map[string]any{"name": "c"})
	assert.Equal(t, http.StatusCreated, rr.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t, 60)
	rr := ts.do(t, http.MethodDelete, "/api/dashboard", "u1", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}
