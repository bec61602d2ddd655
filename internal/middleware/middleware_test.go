package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"benefits-gateway/internal/domain"
	"benefits-gateway/internal/usecase"
	"benefits-gateway/pkg/httputil"
)

var testPublicPaths = []string{"/api/health", "/api/public/"}

// fakeValidator はテスト用のモック。"Bearer good" のみ受け付ける。
type fakeValidator struct {
	identity *domain.Identity
}

func (v *fakeValidator) Validate(ctx context.Context, authorization string) (*domain.Identity, error) {
	if authorization == "" {
		return nil, usecase.ErrMissingToken
	}
	if authorization != "Bearer good" {
		return nil, fmt.Errorf("%w: token is malformed", domain.ErrAuthentication)
	}
	return v.identity, nil
}

// fakeRecorder はテスト用のモック。
type fakeRecorder struct {
	mu      sync.Mutex
	entries []*domain.AuditEntry
}

func (r *fakeRecorder) Record(ctx context.Context, entry *domain.AuditEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
}

// fakeMetrics はテスト用のモック。
type fakeMetrics struct {
	authFailures []string
	tenants      []string
}

func (m *fakeMetrics) AuthFailed(reason string)     { m.authFailures = append(m.authFailures, reason) }
func (m *fakeMetrics) TenantResolved(source string) { m.tenants = append(m.tenants, source) }

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) httputil.ErrorResponse {
	t.Helper()
	var body httputil.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

// pipeline は RequestContext → Authenticate → Tenant → Audit の順に組み立てる。
func pipeline(validator TokenValidator, recorder AuditRecorder, metrics *fakeMetrics, final http.Handler) http.Handler {
	resolver := usecase.NewTenantResolver(usecase.TenantResolverConfig{
		Header:             "X-Tenant-ID",
		QueryParam:         "tenantId",
		ReservedSubdomains: []string{"www", "api"},
	})
	h := Audit(recorder)(final)
	h = Tenant(resolver, testPublicPaths, metrics)(h)
	h = Authenticate(validator, testPublicPaths, metrics)(h)
	return RequestContext(h)
}

func TestPipeline_ForwardsAuthenticatedTenantRequest(t *testing.T) {
	identity := &domain.Identity{Subject: "u1", Role: "EMPLOYEE"}
	recorder := &fakeRecorder{}
	metrics := &fakeMetrics{}

	var seen *domain.RequestContext
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = domain.RequestContextFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/enrollments", nil)
	req.Host = "acme.benefits.example"
	req.Header.Set("Authorization", "Bearer good")
	req.Header.Set(httputil.RequestIDHeader, "req-123")
	req.Header.Set("User-Agent", "portal/1.0")
	rec := httptest.NewRecorder()

	pipeline(&fakeValidator{identity: identity}, recorder, metrics, final).ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, seen)
	assert.Equal(t, "req-123", seen.RequestID)
	assert.NotEmpty(t, seen.TraceID)
	assert.Equal(t, "acme", seen.TenantID)
	assert.Equal(t, "tenant_acme", seen.TenantSchema)
	assert.Same(t, identity, seen.Identity)
	assert.Equal(t, "req-123", rec.Header().Get(httputil.RequestIDHeader))
	assert.Equal(t, seen.TraceID, rec.Header().Get(TraceIDHeader))
	assert.Equal(t, []string{"subdomain"}, metrics.tenants)

	require.Len(t, recorder.entries, 1)
	entry := recorder.entries[0]
	assert.Equal(t, "u1", entry.Subject)
	assert.Equal(t, "acme", entry.TenantID)
	assert.Equal(t, "GET /api/enrollments", entry.Action)
	assert.Equal(t, "portal/1.0", entry.UserAgent)
	assert.Equal(t, "req-123", entry.RequestID)
}

func TestPipeline_RejectsMissingToken(t *testing.T) {
	recorder := &fakeRecorder{}
	metrics := &fakeMetrics{}
	called := false
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

	req := httptest.NewRequest(http.MethodGet, "/api/enrollments", nil)
	req.Header.Set("X-Tenant-ID", "acme")
	rec := httptest.NewRecorder()

	pipeline(&fakeValidator{}, recorder, metrics, final).ServeHTTP(rec, req)

	assert.False(t, called)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "AUTHENTICATION_ERROR", body.Code)
	assert.NotEmpty(t, body.RequestID)
	assert.Equal(t, rec.Header().Get(httputil.RequestIDHeader), body.RequestID)
	assert.Equal(t, []string{"missing"}, metrics.authFailures)
	assert.Empty(t, recorder.entries)
}

func TestPipeline_RejectsUnresolvedTenant(t *testing.T) {
	recorder := &fakeRecorder{}
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not be reached")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/enrollments", nil)
	req.Host = "localhost:3000"
	req.Header.Set("Authorization", "Bearer good")
	rec := httptest.NewRecorder()

	pipeline(&fakeValidator{identity: &domain.Identity{Subject: "u1"}}, recorder, &fakeMetrics{}, final).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "TENANT_REQUIRED", decodeError(t, rec).Code)
	assert.Empty(t, recorder.entries)
}

func TestPipeline_PublicPathSkipsAuthAndAudit(t *testing.T) {
	recorder := &fakeRecorder{}
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	for _, path := range []string{"/api/health", "/api/public/plans"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		pipeline(&fakeValidator{}, recorder, &fakeMetrics{}, final).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
	assert.Empty(t, recorder.entries)
}

func TestIsPublicPath(t *testing.T) {
	assert.True(t, IsPublicPath("/api/health", testPublicPaths))
	assert.True(t, IsPublicPath("/api/public/docs/1", testPublicPaths))
	assert.False(t, IsPublicPath("/api/healthz", testPublicPaths))
	assert.False(t, IsPublicPath("/api/public", testPublicPaths))
	assert.False(t, IsPublicPath("/api/enrollments", testPublicPaths))
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{domain.ErrAuthentication, http.StatusUnauthorized, "AUTHENTICATION_ERROR"},
		{domain.ErrAuthorization, http.StatusForbidden, "AUTHORIZATION_ERROR"},
		{domain.ErrTenantRequired, http.StatusBadRequest, "TENANT_REQUIRED"},
		{domain.ErrInvalidTenantID, http.StatusBadRequest, "INVALID_TENANT"},
		{domain.ErrRateLimited, http.StatusTooManyRequests, "RATE_LIMITED"},
		{domain.ErrUpstreamUnavailable, http.StatusBadGateway, "SERVICE_UNAVAILABLE"},
		{domain.ErrRouteNotFound, http.StatusNotFound, "NOT_FOUND"},
		{errors.New("dial tcp 10.0.0.5:3306: connection refused"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.wantCode, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/x", nil)
			rec := httptest.NewRecorder()
			rec.Header().Set(httputil.RequestIDHeader, "req-9")

			WriteError(rec, req, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			body := decodeError(t, rec)
			assert.Equal(t, tt.wantCode, body.Code)
			assert.Equal(t, "req-9", body.RequestID)
			assert.NotContains(t, body.Message, "10.0.0.5")
		})
	}
}

func TestRateLimiter(t *testing.T) {
	limiter := NewRateLimiter(2, time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	handler := limiter.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/benefits", nil)
		req.RemoteAddr = ip + ":51000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, do("10.0.0.1"))
	assert.Equal(t, http.StatusOK, do("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, do("10.0.0.1"))
	// 別のクライアントは独立して数える
	assert.Equal(t, http.StatusOK, do("10.0.0.2"))

	// 30秒で1件分回復する
	now = now.Add(30 * time.Second)
	assert.Equal(t, http.StatusOK, do("10.0.0.1"))
}

func TestSecurityHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "SAMEORIGIN", rec.Header().Get("X-Frame-Options"))
	assert.Contains(t, rec.Header().Get("Strict-Transport-Security"), "max-age=31536000")
}

func TestRequestContext_GeneratesIDs(t *testing.T) {
	var rc *domain.RequestContext
	rec := httptest.NewRecorder()
	RequestContext(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc = domain.RequestContextFrom(r.Context())
	})).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.NotNil(t, rc)
	assert.Len(t, rc.RequestID, 36)
	assert.Len(t, rc.TraceID, 36)
	assert.Equal(t, rc.RequestID, rec.Header().Get(httputil.RequestIDHeader))
}
