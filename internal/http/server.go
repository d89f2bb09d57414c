package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"fintrack/internal/log"
	"fintrack/internal/services"
	"fintrack/internal/storage"
)

// Services are the collaborators the API delegates to. Notifications and
// Export may be nil; the matching endpoints then answer 503.
type Services struct {
	Store         storage.DocumentStore
	Periods       *services.PeriodService
	Invoices      *services.InvoiceService
	Reserves      *services.ReserveService
	Dashboard     *services.DashboardService
	Notifications *services.NotificationService
	Export        *services.ExportService
}

// Limits bounds what a single caller can ask of the server.
type Limits struct {
	// WritesPerMinute bounds POST, PUT and DELETE requests per user.
	WritesPerMinute int
	// MaxPeriodDays is the longest start/end window a request may name.
	// Reserve projections walk it day by day.
	MaxPeriodDays int
}

// DefaultMaxPeriodDays applies when Limits.MaxPeriodDays is not set.
const DefaultMaxPeriodDays = 5 * 366

type Server struct {
	http.Server
	svc           Services
	logger        *log.Logger
	httpLog       *log.StructuredLogger
	limiter       *rateLimiter
	maxPeriodDays int

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(addr string, svc Services, limits Limits, logger *log.Logger) *Server {
	logger = logger.WithComponent(log.ComponentHTTP)
	if limits.MaxPeriodDays <= 0 {
		limits.MaxPeriodDays = DefaultMaxPeriodDays
	}
	s := &Server{
		svc:           svc,
		logger:        logger,
		httpLog:       log.NewStructuredLogger(logger),
		limiter:       newRateLimiter(limits.WritesPerMinute, 5*time.Minute),
		maxPeriodDays: limits.MaxPeriodDays,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)

	mux.HandleFunc("GET /api/periods/current", s.handleCurrentPeriod)
	mux.HandleFunc("GET /api/periods", s.handlePeriods)
	mux.HandleFunc("GET /api/settings", s.handleGetSettings)
	mux.HandleFunc("PUT /api/settings", s.handlePutSettings)

	mux.HandleFunc("GET /api/invoices/resolve", s.handleResolveInvoice)
	mux.HandleFunc("GET /api/cards/{id}/invoices", s.handleCardInvoices)

	mux.HandleFunc("GET /api/reserves/history", s.handleAllReserveHistory)
	mux.HandleFunc("GET /api/reserves/{id}/history", s.handleReserveHistory)
	mux.HandleFunc("GET /api/reserves/{id}/chart.png", s.handleReserveChart)

	mux.HandleFunc("GET /api/dashboard", s.handleDashboard)
	mux.HandleFunc("POST /api/reminders", s.handlePlanReminders)

	mux.HandleFunc("GET /api/export/transactions.csv", s.handleExportCSV)
	mux.HandleFunc("POST /api/export/sheets", s.handleExportSheets)

	mux.HandleFunc("GET /api/docs/{collection}", s.handleListDocs)
	mux.HandleFunc("POST /api/docs/{collection}", s.handleCreateDoc)
	mux.HandleFunc("GET /api/docs/{collection}/{id}", s.handleGetDoc)
	mux.HandleFunc("PUT /api/docs/{collection}/{id}", s.handlePutDoc)
	mux.HandleFunc("DELETE /api/docs/{collection}/{id}", s.handleDeleteDoc)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.withTrace(withSecurityHeaders(s.withWriteLimit(mux))),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Shutdown stops the rate limiter sweeper and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
