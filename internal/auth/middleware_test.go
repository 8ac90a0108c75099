package auth

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestStaticAPIKeyValidatorParsing(t *testing.T) {
	validator, err := NewStaticAPIKeyValidator("k1:ops-team:viewer, k2:ana:analyst|viewer")
	if err != nil {
		t.Fatalf("NewStaticAPIKeyValidator() error = %v", err)
	}
	identity, ok := validator.Validate(context.Background(), "k2")
	if !ok {
		t.Fatal("expected key to be valid")
	}
	if identity.Principal != "ana" || len(identity.Roles) != 2 {
		t.Fatalf("identity = %+v", identity)
	}
	if _, ok := validator.Validate(context.Background(), "k3"); ok {
		t.Fatal("unknown key should be rejected")
	}
}

func TestStaticAPIKeyValidatorRejectsBadSpec(t *testing.T) {
	for _, spec := range []string{"invalid", "k1::analyst", "k1:p:", "k1:p:admin"} {
		if _, err := NewStaticAPIKeyValidator(spec); err == nil {
			t.Fatalf("NewStaticAPIKeyValidator(%q) expected error", spec)
		}
	}
}

func TestAnalystImpliesViewer(t *testing.T) {
	analyst := Identity{Principal: "a", Roles: []string{RoleAnalyst}}
	viewer := Identity{Principal: "v", Roles: []string{RoleViewer}}
	if !analyst.HasRole(RoleViewer) {
		t.Fatal("analyst should hold viewer")
	}
	if viewer.HasRole(RoleAnalyst) {
		t.Fatal("viewer must not hold analyst")
	}
}

func TestMiddlewareRequiresKey(t *testing.T) {
	validator, err := NewStaticAPIKeyValidator("k1:p1:viewer")
	if err != nil {
		t.Fatalf("validator setup: %v", err)
	}

	mw := Middleware(slog.New(slog.NewJSONHandler(io.Discard, nil)), validator)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	for name, header := range map[string][2]string{
		"missing":      {"", ""},
		"wrong key":    {"X-API-Key", "k2"},
		"basic scheme": {"Authorization", "Basic k1"},
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/database/tables", nil)
			if header[0] != "" {
				req.Header.Set(header[0], header[1])
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			if rr.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
			}
			var body map[string]any
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body["error_code"] != "UNAUTHORIZED" {
				t.Fatalf("body = %v", body)
			}
		})
	}
}

func TestMiddlewareInjectsIdentity(t *testing.T) {
	validator, err := NewStaticAPIKeyValidator("k1:p1:analyst")
	if err != nil {
		t.Fatalf("validator setup: %v", err)
	}

	mw := Middleware(nil, validator)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := Principal(r.Context()); got != "p1" {
			t.Fatalf("Principal = %q", got)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/history", nil)
	req.Header.Set("Authorization", "bearer k1")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestRequireRole(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	handler := RequireRole(RoleAnalyst, ok)

	tests := []struct {
		name string
		ctx  context.Context
		want int
	}{
		{name: "anonymous", ctx: context.Background(), want: http.StatusNoContent},
		{name: "analyst", ctx: WithIdentity(context.Background(), Identity{Principal: "a", Roles: []string{RoleAnalyst}}), want: http.StatusNoContent},
		{name: "viewer", ctx: WithIdentity(context.Background(), Identity{Principal: "v", Roles: []string{RoleViewer}}), want: http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/query", nil).WithContext(tt.ctx))
			if rr.Code != tt.want {
				t.Fatalf("status = %d, want %d", rr.Code, tt.want)
			}
		})
	}
}
