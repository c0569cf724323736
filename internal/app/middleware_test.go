package app

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridian-retail/meridian/internal/shared"
)

func TestScopeMiddlewarePopulatesContext(t *testing.T) {
	var got shared.Scope
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = shared.ScopeFromContext(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/stock/movements", nil)
	req.Header.Set(HeaderTenantID, "7")
	req.Header.Set(HeaderBranchID, "3")
	req.Header.Set(HeaderActorID, "42")
	rec := httptest.NewRecorder()

	ScopeMiddleware(next).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, shared.Scope{TenantID: 7, BranchID: 3, ActorID: 42}, got)
}

func TestScopeMiddlewareRejectsMissingTenant(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run without a tenant")
	})

	req := httptest.NewRequest(http.MethodGet, "/stock/movements", nil)
	rec := httptest.NewRecorder()

	ScopeMiddleware(next).ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Body.String(), "tenant")
}

func TestRequestIDMiddlewareEchoesClientID(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(HeaderRequestID, "req-123")
	rec := httptest.NewRecorder()

	requestIDMiddleware(next).ServeHTTP(rec, req)
	require.Equal(t, "req-123", rec.Header().Get(HeaderRequestID))
}

func TestRequestIDMiddlewareIssuesID(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	requestIDMiddleware(next).ServeHTTP(rec, req)
	require.NotEmpty(t, rec.Header().Get(HeaderRequestID))
}
