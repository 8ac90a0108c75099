package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/sqlsight/sqlsight/internal/analyst"
	"github.com/sqlsight/sqlsight/internal/auth"
	"github.com/sqlsight/sqlsight/internal/history"
)

func handleListHistory(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Analyst == nil {
		writeAnalystUnavailable(w, r)
		return
	}

	filter := history.ListFilter{Caller: auth.Principal(r.Context())}
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a positive integer", false, map[string]any{"limit": raw})
			return
		}
		filter.Limit = limit
	}

	entries, err := deps.Analyst.History(r.Context(), filter)
	if err != nil {
		writeHistoryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"limit":   filter.NormalizedLimit(),
	})
}

func handleGetHistory(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Analyst == nil {
		writeAnalystUnavailable(w, r)
		return
	}

	entry, err := deps.Analyst.HistoryEntry(r.Context(), r.PathValue("id"))
	if err != nil {
		writeHistoryError(w, r, err)
		return
	}
	if caller := auth.Principal(r.Context()); caller != "" && entry.Caller != caller {
		writeError(r.Context(), w, http.StatusNotFound, "HISTORY_NOT_FOUND", "history entry not found", false, nil)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func writeHistoryError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, analyst.ErrHistoryDisabled):
		writeError(r.Context(), w, http.StatusServiceUnavailable, "HISTORY_DISABLED", err.Error(), false, nil)
	case errors.Is(err, history.ErrInvalidID):
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_QUERY_ID", err.Error(), false, nil)
	case errors.Is(err, history.ErrNotFound):
		writeError(r.Context(), w, http.StatusNotFound, "HISTORY_NOT_FOUND", "history entry not found", false, nil)
	default:
		writeError(r.Context(), w, http.StatusInternalServerError, "HISTORY_FAILED", "failed to load query history", true, map[string]any{"details": err.Error()})
	}
}
