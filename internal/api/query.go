package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/sqlsight/sqlsight/internal/analyst"
	"github.com/sqlsight/sqlsight/internal/auth"
	"github.com/sqlsight/sqlsight/internal/chart"
)

type questionRequest struct {
	Question  string `json:"question"`
	ChartType string `json:"chart_type"`
}

func handleQuery(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Analyst == nil {
		writeAnalystUnavailable(w, r)
		return
	}
	request, ok := decodeQuestion(w, r)
	if !ok {
		return
	}

	answer, err := deps.Analyst.Ask(r.Context(), analyst.Question{
		Text:      request.Question,
		ChartType: request.ChartType,
		Caller:    auth.Principal(r.Context()),
	})
	if err != nil {
		writeQuestionError(r.Context(), w, err, "QUERY_FAILED")
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func handleTranslate(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Analyst == nil {
		writeAnalystUnavailable(w, r)
		return
	}
	request, ok := decodeQuestion(w, r)
	if !ok {
		return
	}

	translation, err := deps.Analyst.Translate(r.Context(), request.Question, request.ChartType)
	if err != nil {
		writeQuestionError(r.Context(), w, err, "TRANSLATE_FAILED")
		return
	}
	writeJSON(w, http.StatusOK, translation)
}

func decodeQuestion(w http.ResponseWriter, r *http.Request) (questionRequest, bool) {
	var request questionRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid question request body", false, map[string]any{"details": err.Error()})
		return questionRequest{}, false
	}
	if strings.TrimSpace(request.Question) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		return questionRequest{}, false
	}
	return request, true
}

// writeQuestionError maps analyst input errors to 400; anything else is an
// upstream failure reported under failCode.
func writeQuestionError(ctx context.Context, w http.ResponseWriter, err error, failCode string) {
	switch {
	case errors.Is(err, analyst.ErrQuestionRequired):
		writeError(ctx, w, http.StatusBadRequest, "QUESTION_REQUIRED", err.Error(), false, nil)
	case errors.Is(err, analyst.ErrInvalidChartType):
		writeError(ctx, w, http.StatusBadRequest, "INVALID_CHART_TYPE", err.Error(), false, map[string]any{
			"allowed": chart.Types(),
		})
	default:
		writeError(ctx, w, http.StatusBadGateway, failCode, "failed to answer the question", true, map[string]any{"details": err.Error()})
	}
}

func writeAnalystUnavailable(w http.ResponseWriter, r *http.Request) {
	writeError(r.Context(), w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "SQL agent service is not available", true, nil)
}
