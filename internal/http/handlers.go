package http

import (
	"bytes"
	"net/http"
	"strings"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/reserve"
	"fintrack/internal/services"
)

func (s *Server) handleCurrentPeriod(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, r, err, log.OpRead)
		return
	}
	p, err := s.svc.Periods.Current(r.Context(), uid)
	if err != nil {
		writeError(w, r, err, log.OpRead)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handlePeriods(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, r, err, log.OpList)
		return
	}
	q := r.URL.Query()
	rng, err := parseIntParam(q, "range", s.svc.Periods.DefaultRange())
	if err != nil {
		writeError(w, r, err, log.OpList)
		return
	}
	opts, err := s.svc.Periods.Options(r.Context(), uid, rng, strings.TrimSpace(q.Get("locale")))
	if err != nil {
		writeError(w, r, err, log.OpList)
		return
	}
	writeJSON(w, http.StatusOK, opts)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, r, err, log.OpRead)
		return
	}
	st, err := s.svc.Periods.Settings(r.Context(), uid)
	if err != nil {
		writeError(w, r, err, log.OpRead)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, r, err, log.OpUpdate)
		return
	}
	var st core.Settings
	if err := decodeJSON(w, r, &st); err != nil {
		writeError(w, r, err, log.OpUpdate)
		return
	}
	saved, err := s.svc.Periods.UpdateSettings(r.Context(), uid, st)
	if err != nil {
		writeError(w, r, err, log.OpUpdate)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// handleResolveInvoice is a pure calculation and needs no user.
func (s *Server) handleResolveInvoice(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if strings.TrimSpace(q.Get("date")) == "" {
		writeError(w, r, core.InvalidArgument("date is required"), log.OpRead)
		return
	}
	date, err := parseDate(q.Get("date"))
	if err != nil {
		writeError(w, r, err, log.OpRead)
		return
	}
	closingDay, err := parseIntParam(q, "closingDay", 0)
	if err != nil {
		writeError(w, r, err, log.OpRead)
		return
	}
	p, err := s.svc.Invoices.Resolve(date, closingDay)
	if err != nil {
		writeError(w, r, err, log.OpRead)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleCardInvoices(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, r, err, log.OpGroup)
		return
	}
	invoices, err := s.svc.Invoices.CardInvoices(r.Context(), uid, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err, log.OpGroup)
		return
	}
	writeJSON(w, http.StatusOK, invoices)
}

func (s *Server) handleReserveHistory(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, r, err, log.OpProject)
		return
	}
	p, err := parsePeriod(r.URL.Query(), s.maxPeriodDays)
	if err != nil {
		writeError(w, r, err, log.OpProject)
		return
	}
	res, hist, err := s.svc.Reserves.History(r.Context(), uid, r.PathValue("id"), p)
	if err != nil {
		writeError(w, r, err, log.OpProject)
		return
	}
	writeJSON(w, http.StatusOK, reserve.Output{Reserve: res, History: hist})
}

func (s *Server) handleAllReserveHistory(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, r, err, log.OpProject)
		return
	}
	p, err := parsePeriod(r.URL.Query(), s.maxPeriodDays)
	if err != nil {
		writeError(w, r, err, log.OpProject)
		return
	}
	out, err := s.svc.Reserves.HistoryAll(r.Context(), uid, p)
	if err != nil {
		writeError(w, r, err, log.OpProject)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleReserveChart(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, r, err, log.OpExport)
		return
	}
	p, err := parsePeriod(r.URL.Query(), s.maxPeriodDays)
	if err != nil {
		writeError(w, r, err, log.OpExport)
		return
	}
	png, err := s.svc.Reserves.Chart(r.Context(), uid, r.PathValue("id"), p)
	if err != nil {
		writeError(w, r, err, log.OpExport)
		return
	}
	writeBytes(w, "image/png", png)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, r, err, log.OpRead)
		return
	}
	d, err := s.svc.Dashboard.Summary(r.Context(), uid)
	if err != nil {
		writeError(w, r, err, log.OpRead)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handlePlanReminders(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, r, err, log.OpSchedule)
		return
	}
	if s.svc.Notifications == nil {
		writeError(w, r, services.ErrUnavailable, log.OpSchedule)
		return
	}
	planned, err := s.svc.Notifications.PlanUser(r.Context(), uid)
	if err != nil {
		writeError(w, r, err, log.OpSchedule)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"scheduled": len(planned), "reminders": planned})
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, r, err, log.OpExport)
		return
	}
	if s.svc.Export == nil {
		writeError(w, r, services.ErrUnavailable, log.OpExport)
		return
	}
	p, err := parsePeriod(r.URL.Query(), s.maxPeriodDays)
	if err != nil {
		writeError(w, r, err, log.OpExport)
		return
	}
	// Buffered so a failure midway still yields a clean error response.
	var buf bytes.Buffer
	if err := s.svc.Export.TransactionsCSV(r.Context(), &buf, uid, p); err != nil {
		writeError(w, r, err, log.OpExport)
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="transactions.csv"`)
	writeBytes(w, "text/csv; charset=utf-8", buf.Bytes())
}

func (s *Server) handleExportSheets(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, r, err, log.OpExport)
		return
	}
	if s.svc.Export == nil {
		writeError(w, r, services.ErrUnavailable, log.OpExport)
		return
	}
	p, err := parsePeriod(r.URL.Query(), s.maxPeriodDays)
	if err != nil {
		writeError(w, r, err, log.OpExport)
		return
	}
	rng, n, err := s.svc.Export.ExportSheets(r.Context(), uid, p)
	if err != nil {
		writeError(w, r, err, log.OpExport)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"range": rng, "rows": n})
}
