// Package http exposes the finance core as a JSON API.
//
// This file holds the helpers that turn query strings, headers and bodies
// into domain values. Every parse failure wraps core.ErrInvalidArgument so
// handlers can hand it straight to writeError.
package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"fintrack/internal/core"
)

const (
	// UserIDHeader carries the stable id issued by the auth provider.
	UserIDHeader = "X-User-ID"

	maxUserIDLength = 128
	maxBodyBytes    = 1 << 20
)

// userID returns the authenticated user of the request.
func userID(r *http.Request) (string, error) {
	id := sanitizeInput(r.Header.Get(UserIDHeader))
	if id == "" {
		return "", core.InvalidArgument("missing %s header", UserIDHeader)
	}
	if len(id) > maxUserIDLength || strings.ContainsAny(id, "|/") {
		return "", core.InvalidArgument("malformed %s header", UserIDHeader)
	}
	return id, nil
}

// parseDate accepts a YYYY-MM-DD date or an RFC 3339 timestamp.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, core.InvalidArgument("date %q must be YYYY-MM-DD or RFC 3339", s)
	}
	return t, nil
}

// parsePeriod reads the start and end query parameters. Both absent yields
// the zero period, which services read as "the current period". Windows
// spanning more than maxDays calendar days are rejected.
func parsePeriod(q url.Values, maxDays int) (core.Period, error) {
	start, end := strings.TrimSpace(q.Get("start")), strings.TrimSpace(q.Get("end"))
	if start == "" && end == "" {
		return core.Period{}, nil
	}
	if start == "" || end == "" {
		return core.Period{}, core.InvalidArgument("start and end must be given together")
	}
	s, err := parseDate(start)
	if err != nil {
		return core.Period{}, err
	}
	e, err := parseDate(end)
	if err != nil {
		return core.Period{}, err
	}
	p := core.NewPeriod(s, e)
	if err := p.Validate(); err != nil {
		return core.Period{}, err
	}
	if !p.End.Before(p.Start.AddDate(0, 0, maxDays)) {
		return core.Period{}, core.InvalidArgument("period %s..%s spans more than %d days",
			p.Start.Format(time.DateOnly), p.End.Format(time.DateOnly), maxDays)
	}
	return p, nil
}

// parseIntParam returns the integer value of name, or def when absent.
func parseIntParam(q url.Values, name string, def int) (int, error) {
	v := strings.TrimSpace(q.Get(name))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, core.InvalidArgument("%s %q is not an integer", name, v)
	}
	return n, nil
}

// decodeJSON decodes a bounded request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return core.InvalidArgument("empty request body")
		}
		return core.InvalidArgument("malformed JSON body: %v", err)
	}
	return nil
}

// readRawJSON returns the request body as raw JSON for the document store.
func readRawJSON(w http.ResponseWriter, r *http.Request) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := decodeJSON(w, r, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
