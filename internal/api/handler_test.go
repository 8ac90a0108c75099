package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sqlsight/sqlsight/internal/analyst"
	"github.com/sqlsight/sqlsight/internal/auth"
	"github.com/sqlsight/sqlsight/internal/config"
	"github.com/sqlsight/sqlsight/internal/history"
)

func TestRootReturnsBanner(t *testing.T) {
	h := NewHandler(testConfig(t, nil), Dependencies{})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["name"] != "sqlsight-api" || body["status"] != "running" || body["version"] != "1.0.0" {
		t.Fatalf("banner = %#v", body)
	}

	missing := httptest.NewRecorder()
	h.ServeHTTP(missing, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if missing.Code != http.StatusNotFound {
		t.Fatalf("unknown path status = %d", missing.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	h := NewHandler(testConfig(t, nil), Dependencies{
		Analyst:       &fakeAnalyst{},
		DatabaseCheck: func(context.Context) error { return nil },
	})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["status"] != "healthy" || body["database_connected"] != true {
		t.Fatalf("health = %#v", body)
	}
}

func TestHealthReportsUnhealthyWithoutAnalyst(t *testing.T) {
	h := NewHandler(testConfig(t, nil), Dependencies{
		DatabaseCheck: func(context.Context) error { return errors.New("refused") },
	})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/health", nil))

	body := decodeBody(t, rr)
	if body["status"] != "unhealthy" || body["database_connected"] != false {
		t.Fatalf("health = %#v", body)
	}
}

func TestReadyEndpointReturns503WhenDependencyFails(t *testing.T) {
	h := NewHandler(testConfig(t, nil), Dependencies{
		Readiness: func(context.Context) error {
			return errors.New("dependency down")
		},
	})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/ready", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["error_code"] != "NOT_READY" || body["retryable"] != true {
		t.Fatalf("error body = %#v", body)
	}
}

func TestProtectedRouteRequiresAuth(t *testing.T) {
	cfg := testConfig(t, map[string]string{"SQLSIGHT_AUTH_REQUIRED": "true"})
	validator, err := auth.NewStaticAPIKeyValidator("k1:alice:viewer")
	if err != nil {
		t.Fatalf("validator setup failed: %v", err)
	}

	h := NewHandler(cfg, Dependencies{
		AuthMiddleware: auth.Middleware(nil, validator),
		Analyst:        &fakeAnalyst{tables: []string{"commercial"}},
	})

	unauthResp := httptest.NewRecorder()
	h.ServeHTTP(unauthResp, httptest.NewRequest(http.MethodGet, "/v1/database/tables", nil))
	if unauthResp.Code != http.StatusUnauthorized {
		t.Fatalf("unauth status = %d", unauthResp.Code)
	}

	authReq := httptest.NewRequest(http.MethodGet, "/v1/database/tables", nil)
	authReq.Header.Set("X-API-Key", "k1")
	authResp := httptest.NewRecorder()
	h.ServeHTTP(authResp, authReq)
	if authResp.Code != http.StatusOK {
		t.Fatalf("auth status = %d", authResp.Code)
	}

	queryReq := httptest.NewRequest(http.MethodPost, "/v1/query", strings.NewReader(`{"question":"total sales"}`))
	queryReq.Header.Set("Authorization", "Bearer k1")
	queryResp := httptest.NewRecorder()
	h.ServeHTTP(queryResp, queryReq)
	if queryResp.Code != http.StatusForbidden {
		t.Fatalf("viewer query status = %d", queryResp.Code)
	}
}

func TestAuthRequiredWithoutMiddlewareFailsClosed(t *testing.T) {
	cfg := testConfig(t, map[string]string{"SQLSIGHT_AUTH_REQUIRED": "true"})
	h := NewHandler(cfg, Dependencies{Analyst: &fakeAnalyst{}})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/examples", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	cfg := testConfig(t, map[string]string{"SQLSIGHT_HTTP_CORS_ORIGINS": "https://app.example.com"})
	h := NewHandler(cfg, Dependencies{Analyst: &fakeAnalyst{}})

	req := httptest.NewRequest(http.MethodOptions, "/v1/query", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Fatalf("allow origin = %q", got)
	}
	if got := rr.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Fatalf("allow credentials = %q", got)
	}
	if !strings.Contains(rr.Header().Get("Access-Control-Allow-Headers"), "X-API-Key") {
		t.Fatalf("allow headers = %q", rr.Header().Get("Access-Control-Allow-Headers"))
	}

	other := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	other.Header.Set("Origin", "https://evil.example.com")
	otherResp := httptest.NewRecorder()
	h.ServeHTTP(otherResp, other)
	if got := otherResp.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unexpected allow origin %q", got)
	}
}

func TestCORSWildcardOmitsCredentials(t *testing.T) {
	cfg := testConfig(t, map[string]string{"SQLSIGHT_HTTP_CORS_ORIGINS": "*"})
	h := NewHandler(cfg, Dependencies{Analyst: &fakeAnalyst{}})

	req := httptest.NewRequest(http.MethodOptions, "/v1/query", nil)
	req.Header.Set("Origin", "https://anywhere.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("allow origin = %q", got)
	}
	if got := rr.Header().Values("Access-Control-Allow-Credentials"); len(got) != 0 {
		t.Fatalf("allow credentials = %v, want none", got)
	}
}

func TestCombineReadinessChecksStopsOnFirstFailure(t *testing.T) {
	order := make([]int, 0, 3)
	combined := CombineReadinessChecks(
		func(_ context.Context) error {
			order = append(order, 1)
			return nil
		},
		nil,
		func(_ context.Context) error {
			order = append(order, 2)
			return errors.New("boom")
		},
		func(_ context.Context) error {
			order = append(order, 3)
			return nil
		},
	)

	err := combined(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("execution order = %#v", order)
	}
}

func TestConfigReadinessChecks(t *testing.T) {
	cfg := testConfig(t, nil)
	if err := CheckAIConfig(cfg)(context.Background()); err == nil {
		t.Fatal("expected missing api key error")
	}
	cfg.AI.APIKey = "sk-test"
	if err := CheckAIConfig(cfg)(context.Background()); err != nil {
		t.Fatalf("CheckAIConfig() error = %v", err)
	}

	cfg.Metadata.Enabled = true
	cfg.Metadata.DSN = ""
	if err := CheckMetadataDSN(cfg)(context.Background()); err == nil {
		t.Fatal("expected missing metadata dsn error")
	}
}

type fakeAnalyst struct {
	answer      analyst.Answer
	askErr      error
	lastAsk     analyst.Question
	translation analyst.Translation
	tables      []string
	info        analyst.DatabaseInfo
	infoErr     error
	entries     []history.Entry
	entry       history.Entry
	historyErr  error
	lastFilter  history.ListFilter
}

func (f *fakeAnalyst) Ask(_ context.Context, q analyst.Question) (analyst.Answer, error) {
	f.lastAsk = q
	if f.askErr != nil {
		return analyst.Answer{}, f.askErr
	}
	return f.answer, nil
}

func (f *fakeAnalyst) Translate(_ context.Context, question, _ string) (analyst.Translation, error) {
	if f.askErr != nil {
		return analyst.Translation{}, f.askErr
	}
	f.lastAsk = analyst.Question{Text: question}
	return f.translation, nil
}

func (f *fakeAnalyst) Tables(context.Context) ([]string, error) {
	return f.tables, f.infoErr
}

func (f *fakeAnalyst) DatabaseInfo(context.Context) (analyst.DatabaseInfo, error) {
	return f.info, f.infoErr
}

func (f *fakeAnalyst) History(_ context.Context, filter history.ListFilter) ([]history.Entry, error) {
	f.lastFilter = filter
	return f.entries, f.historyErr
}

func (f *fakeAnalyst) HistoryEntry(context.Context, string) (history.Entry, error) {
	return f.entry, f.historyErr
}

func testConfig(t *testing.T, values map[string]string) config.Config {
	t.Helper()
	cfg, err := config.Load("sqlsight-api", mapLookup(values))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}
	return cfg
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("json decode failed: %v body=%s", err, rr.Body.String())
	}
	return body
}

func mapLookup(values map[string]string) config.LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}
