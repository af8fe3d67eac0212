package web

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/JonMunkholm/secmaster/internal/core"
	"github.com/JonMunkholm/secmaster/internal/security"
	"github.com/JonMunkholm/secmaster/internal/snapshot"
)

// handleHealth returns 200 when both stores answer and 503 otherwise.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Health(r.Context()); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleScan lists cached securities.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", snapshot.DefaultScanLimit)
	entries, err := s.service.Scan(r.Context(), limit)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if entries == nil {
		entries = []snapshot.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleCount(w http.ResponseWriter, r *http.Request) {
	n, err := s.service.Count(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"count": n})
}

// handleSearch finds cached securities by one key column value.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	field, value := q.Get("field"), q.Get("value")
	if field == "" || value == "" {
		respondError(w, r, core.ErrEmptyKey)
		return
	}
	entries, err := s.service.Search(r.Context(), field, value)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if entries == nil {
		entries = []snapshot.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleRuleTrace(w http.ResponseWriter, r *http.Request) {
	issues, err := s.service.RuleTrace(r.Context(), parseIntParam(r, "limit", 100))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, issues)
}

// handleDetail returns the newest version, history and ages for a key.
func (s *Server) handleDetail(w http.ResponseWriter, r *http.Request) {
	d, err := s.service.Detail(r.Context(), keyFromQuery(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := s.service.Versions(r.Context(), keyFromQuery(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, versions)
}

func (s *Server) handleAsOf(w http.ResponseWriter, r *http.Request) {
	v, err := s.service.AsOf(r.Context(), keyFromQuery(r), r.URL.Query().Get("applied_date"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	rec, err := s.service.Snapshot(r.Context(), keyFromQuery(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleReloadStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.ReloadStatus())
}

// handleReload rebuilds both stores from the configured input directory.
// A reload is not cancelled when the client disconnects.
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	ctx := context.WithoutCancel(r.Context())
	sum, err := s.service.TryReload(ctx, "")
	if err != nil {
		respondError(w, r, err)
		return
	}

	status := http.StatusOK
	if !sum.OK() {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, sum)
}

// keyFromQuery reads a key from a pipe-joined "key" parameter, or from
// one parameter per key column.
func keyFromQuery(r *http.Request) security.Key {
	q := r.URL.Query()
	if k := q.Get("key"); k != "" {
		return security.ParseKey(k)
	}
	vals := make([]string, len(security.KeyColumns))
	for i, col := range security.KeyColumns {
		vals[i] = q.Get(col)
	}
	return security.KeyFromValues(vals)
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}

// clientIP returns the host part of RemoteAddr.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}
