package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/gray-logic-chroma/internal/journal"
)

// handleJournalEvents returns lifecycle transitions, newest first.
//
// Query parameters: group, kind, limit.
func (s *Server) handleJournalEvents(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeUnavailable(w, "journal not configured")
		return
	}
	q := r.URL.Query()
	limit, ok := parseLimit(w, q.Get("limit"))
	if !ok {
		return
	}

	events, err := s.journal.Events(r.Context(), journal.Filter{
		Group: q.Get("group"),
		Kind:  q.Get("kind"),
		Limit: limit,
	})
	if err != nil {
		s.logger.Error("failed to query journal events", "error", err)
		writeInternalError(w, "failed to query journal")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events, "count": len(events)})
}

// handleJournalFailures returns render failures, newest first.
func (s *Server) handleJournalFailures(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeUnavailable(w, "journal not configured")
		return
	}
	limit, ok := parseLimit(w, r.URL.Query().Get("limit"))
	if !ok {
		return
	}

	failures, err := s.journal.Failures(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to query render failures", "error", err)
		writeInternalError(w, "failed to query journal")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"failures": failures, "count": len(failures)})
}

// parseLimit reads an optional non-negative limit, writing a 400 on error.
func parseLimit(w http.ResponseWriter, raw string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeBadRequest(w, "limit must be a non-negative integer")
		return 0, false
	}
	return n, true
}
