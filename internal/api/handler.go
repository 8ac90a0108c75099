package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sqlsight/sqlsight/internal/analyst"
	"github.com/sqlsight/sqlsight/internal/auth"
	"github.com/sqlsight/sqlsight/internal/config"
	"github.com/sqlsight/sqlsight/internal/examples"
	"github.com/sqlsight/sqlsight/internal/history"
	"github.com/sqlsight/sqlsight/internal/observability"
)

const serviceDescription = "Ask questions about your data in plain language and get chart-ready answers"

type ReadinessCheck func(ctx context.Context) error

// Analyst is the question answering surface served over HTTP.
type Analyst interface {
	Ask(ctx context.Context, q analyst.Question) (analyst.Answer, error)
	Translate(ctx context.Context, question, chartHint string) (analyst.Translation, error)
	Tables(ctx context.Context) ([]string, error)
	DatabaseInfo(ctx context.Context) (analyst.DatabaseInfo, error)
	History(ctx context.Context, filter history.ListFilter) ([]history.Entry, error)
	HistoryEntry(ctx context.Context, id string) (history.Entry, error)
}

type Dependencies struct {
	Logger         *slog.Logger
	Readiness      ReadinessCheck
	AuthMiddleware func(http.Handler) http.Handler
	// DatabaseCheck backs the database_connected flag of the health endpoint.
	DatabaseCheck     ReadinessCheck
	DependencyTimeout time.Duration
	Analyst           Analyst
	Examples          *examples.Catalog
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"name":        cfg.Service.Name,
			"status":      "running",
			"version":     cfg.Service.Version,
			"description": serviceDescription,
		})
	})

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, r *http.Request) {
		handleHealth(cfg, deps, w, r)
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), dependencyTimeout(deps))
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	protected := http.NewServeMux()
	protected.Handle("POST /v1/query", auth.RequireRole(auth.RoleAnalyst, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleQuery(deps, w, r)
	})))
	protected.Handle("POST /v1/query/translate", auth.RequireRole(auth.RoleAnalyst, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleTranslate(deps, w, r)
	})))
	protected.Handle("GET /v1/history", auth.RequireRole(auth.RoleAnalyst, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleListHistory(deps, w, r)
	})))
	protected.Handle("GET /v1/history/{id}", auth.RequireRole(auth.RoleAnalyst, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleGetHistory(deps, w, r)
	})))
	protected.Handle("GET /v1/database/info", auth.RequireRole(auth.RoleViewer, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleDatabaseInfo(deps, w, r)
	})))
	protected.Handle("GET /v1/database/tables", auth.RequireRole(auth.RoleViewer, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleListTables(deps, w, r)
	})))
	protected.Handle("GET /v1/examples", auth.RequireRole(auth.RoleViewer, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleExamples(deps, w, r)
	})))

	var protectedHandler http.Handler = protected
	if cfg.Auth.Required {
		if deps.AuthMiddleware == nil {
			if deps.Logger != nil {
				deps.Logger.Error("auth required but auth middleware missing")
			}
			protectedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(r.Context(), w, http.StatusInternalServerError, "AUTH_MIDDLEWARE_MISSING", "auth middleware is required by configuration", false, nil)
			})
		} else {
			protectedHandler = deps.AuthMiddleware(protectedHandler)
		}
	}
	for _, pattern := range protectedRoutes {
		mux.Handle(pattern, protectedHandler)
	}

	middlewares := []func(http.Handler) http.Handler{
		CORSMiddleware(cfg.HTTP.CORSOrigins),
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

var protectedRoutes = []string{
	"POST /v1/query",
	"POST /v1/query/translate",
	"GET /v1/history",
	"GET /v1/history/{id}",
	"GET /v1/database/info",
	"GET /v1/database/tables",
	"GET /v1/examples",
}

func handleHealth(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	connected := false
	if deps.DatabaseCheck != nil {
		ctx, cancel := context.WithTimeout(r.Context(), dependencyTimeout(deps))
		connected = deps.DatabaseCheck(ctx) == nil
		cancel()
	}
	status := "healthy"
	if deps.Analyst == nil || !connected {
		status = "unhealthy"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":             status,
		"service":            cfg.Service.Name,
		"database_connected": connected,
	})
}

func dependencyTimeout(deps Dependencies) time.Duration {
	if deps.DependencyTimeout <= 0 {
		return 2 * time.Second
	}
	return deps.DependencyTimeout
}

// CheckMetadataDSN fails when history is enabled without a metadata database.
func CheckMetadataDSN(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.Metadata.Enabled && cfg.Metadata.DSN == "" {
			return errors.New("metadata dsn is not configured")
		}
		return nil
	}
}

func CheckAIConfig(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.AI.APIKey == "" {
			return errors.New("ai api key is not configured")
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}
