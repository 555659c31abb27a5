package api

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mdip/config"
	"mdip/core/auth"
	"mdip/core/store"
)

func TestRequireAnyRoleDeniesMissingRole(t *testing.T) {
	a := newTestAPI(t, nil)
	handler := a.srv.requireAnyRole(auth.RoleAdmin)(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	req := httptest.NewRequest(http.MethodGet, "/api/accounts/users", nil)
	req = req.WithContext(auth.WithUser(req.Context(), &store.User{ID: 2, Username: "editor1", Role: "editor"}))
	rr := httptest.NewRecorder()
	handler(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected forbidden, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/accounts/users", nil)
	rr = httptest.NewRecorder()
	handler(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized without user, got %d", rr.Code)
	}
}

func TestRequireAnyRoleAdminPassesEveryGate(t *testing.T) {
	a := newTestAPI(t, nil)
	handler := a.srv.requireAnyRole(auth.RoleEditor, auth.RoleAnalyst)(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	req := httptest.NewRequest(http.MethodPost, "/api/incidents", nil)
	req = req.WithContext(auth.WithUser(req.Context(), &store.User{ID: 1, Username: "admin", Role: "admin"}))
	rr := httptest.NewRecorder()
	handler(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected admin to pass, got %d", rr.Code)
	}
}

func TestIsHTTPSRequestWithTLS(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.TLS = &tls.ConnectionState{}
	if !isHTTPSRequest(req, &config.AppConfig{}) {
		t.Fatalf("expected https request when TLS state is present")
	}
}

func TestIsHTTPSRequestWithTrustedProxyForwardedProto(t *testing.T) {
	cfg := &config.AppConfig{
		Security: config.SecurityConfig{
			TrustedProxies: []string{"10.0.0.10"},
		},
	}
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.RemoteAddr = "10.0.0.10:12345"
	req.Header.Set("X-Forwarded-Proto", "https")
	if !isHTTPSRequest(req, cfg) {
		t.Fatalf("expected https request behind trusted proxy with x-forwarded-proto=https")
	}
}

func TestIsHTTPSRequestIgnoresUntrustedProxyHeader(t *testing.T) {
	cfg := &config.AppConfig{
		Security: config.SecurityConfig{
			TrustedProxies: []string{"10.0.0.10"},
		},
	}
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.RemoteAddr = "192.168.1.20:12345"
	req.Header.Set("X-Forwarded-Proto", "https")
	if isHTTPSRequest(req, cfg) {
		t.Fatalf("expected non-https for untrusted proxy source")
	}
}

func TestClientIPUsesNearestUntrustedXFFHop(t *testing.T) {
	s := &Server{
		cfg: &config.AppConfig{
			Security: config.SecurityConfig{
				TrustedProxies: []string{"10.0.0.10", "10.0.0.11"},
			},
		},
	}
	req := httptest.NewRequest(http.MethodGet, "/api/auth/login", nil)
	req.RemoteAddr = "10.0.0.10:54321"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.11")
	got := s.clientIP(req)
	if got != "203.0.113.9" {
		t.Fatalf("expected client ip 203.0.113.9, got %s", got)
	}
}

func TestClientIPIgnoresXFFForUntrustedRemote(t *testing.T) {
	s := &Server{
		cfg: &config.AppConfig{
			Security: config.SecurityConfig{
				TrustedProxies: []string{"10.0.0.10"},
			},
		},
	}
	req := httptest.NewRequest(http.MethodGet, "/api/auth/login", nil)
	req.RemoteAddr = "192.168.1.20:54321"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.10")
	got := s.clientIP(req)
	if got != "192.168.1.20" {
		t.Fatalf("expected remote addr ip for untrusted source, got %s", got)
	}
}

func TestClientIPInvalidXFFFallsBackToRealIP(t *testing.T) {
	s := &Server{
		cfg: &config.AppConfig{
			Security: config.SecurityConfig{
				TrustedProxies: []string{"10.0.0.10"},
			},
		},
	}
	req := httptest.NewRequest(http.MethodGet, "/api/auth/login", nil)
	req.RemoteAddr = "10.0.0.10:54321"
	req.Header.Set("X-Forwarded-For", "garbage,not-an-ip")
	req.Header.Set("X-Real-IP", "198.51.100.8")
	got := s.clientIP(req)
	if got != "198.51.100.8" {
		t.Fatalf("expected fallback to valid X-Real-IP, got %s", got)
	}
}

func TestSecurityHeadersSetHSTSForTrustedProxyHTTPS(t *testing.T) {
	s := &Server{
		cfg: &config.AppConfig{
			Security: config.SecurityConfig{
				TrustedProxies: []string{"10.0.0.10"},
			},
		},
	}
	h := s.securityHeadersMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.RemoteAddr = "10.0.0.10:12345"
	req.Header.Set("X-Forwarded-Proto", "https")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Header().Get("Strict-Transport-Security") == "" {
		t.Fatalf("expected HSTS header for trusted proxy https request")
	}
}

func TestSecurityHeadersSkipHSTSForUntrustedProxy(t *testing.T) {
	s := &Server{
		cfg: &config.AppConfig{
			Security: config.SecurityConfig{
				TrustedProxies: []string{"10.0.0.10"},
			},
		},
	}
	h := s.securityHeadersMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.RemoteAddr = "192.168.1.20:12345"
	req.Header.Set("X-Forwarded-Proto", "https")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Header().Get("Strict-Transport-Security") != "" {
		t.Fatalf("expected no HSTS header for untrusted proxy source")
	}
}

func TestWithAuthRejectsMalformedHeader(t *testing.T) {
	a := newTestAPI(t, nil)
	h := a.srv.withAuth(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	for _, header := range []string{"", "Basic abc", "Bearer", "Bearer    "} {
		req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rr := httptest.NewRecorder()
		h(rr, req)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: expected unauthorized, got %d", header, rr.Code)
		}
	}
}

func TestRequestLimiterEvictsIdleBuckets(t *testing.T) {
	l := newLimiter(1, time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	if !l.allow("a") {
		t.Fatalf("first request must pass")
	}
	if l.allow("a") {
		t.Fatalf("second request inside the window must be throttled")
	}
	now = now.Add(loginLimiterTTL + 2*time.Minute)
	if !l.allow("b") {
		t.Fatalf("new key must pass")
	}
	if _, ok := l.buckets["a"]; ok {
		t.Fatalf("idle bucket was not evicted")
	}
	if !l.allow("a") {
		t.Fatalf("evicted key starts with a full bucket")
	}
}

func TestRequestLimiterCapsBucketCount(t *testing.T) {
	l := newLimiter(5, time.Minute)
	l.maxBuckets = 2
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	for _, key := range []string{"a", "b", "c"} {
		l.allow(key)
		now = now.Add(time.Second)
	}
	now = now.Add(loginLimiterCleanupInterval)
	l.allow("c")
	if len(l.buckets) != 2 {
		t.Fatalf("expected 2 buckets, got %d", len(l.buckets))
	}
	if _, ok := l.buckets["a"]; ok {
		t.Fatalf("oldest bucket should be evicted first")
	}
}

func TestRequestIDPreservedWhenProvided(t *testing.T) {
	s := &Server{}
	h := s.requestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if got := rr.Header().Get(requestIDHeader); got != "abc-123" {
		t.Fatalf("expected request id to be echoed, got %q", got)
	}
}
