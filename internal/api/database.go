package api

import (
	"net/http"

	"github.com/sqlsight/sqlsight/internal/examples"
)

func handleDatabaseInfo(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Analyst == nil {
		writeAnalystUnavailable(w, r)
		return
	}
	info, err := deps.Analyst.DatabaseInfo(r.Context())
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "SCHEMA_FETCH_FAILED", "failed to load database info", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func handleListTables(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Analyst == nil {
		writeAnalystUnavailable(w, r)
		return
	}
	tables, err := deps.Analyst.Tables(r.Context())
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "SCHEMA_FETCH_FAILED", "failed to list tables", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tables": tables})
}

func handleExamples(deps Dependencies, w http.ResponseWriter, _ *http.Request) {
	catalog := deps.Examples
	if catalog == nil {
		defaults := examples.Default()
		catalog = &defaults
	}
	writeJSON(w, http.StatusOK, catalog)
}
