package metrics

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewServer_AllowedIPs(t *testing.T) {
	tests := []struct {
		name       string
		allowedIPs []string
		wantCount  int
	}{
		{name: "empty list", allowedIPs: nil, wantCount: 0},
		{name: "single IP", allowedIPs: []string{"192.168.1.1"}, wantCount: 1},
		{name: "CIDR notation", allowedIPs: []string{"192.168.0.0/16", "10.0.0.0/8"}, wantCount: 2},
		{name: "with invalid", allowedIPs: []string{"192.168.1.1", "invalid", "10.0.0.1"}, wantCount: 2},
		{name: "IPv6", allowedIPs: []string{"::1", "fe80::/10"}, wantCount: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer(New(), ":9090", "/metrics", tt.allowedIPs, testLogger())
			if len(s.allowed) != tt.wantCount {
				t.Errorf("expected %d allowed networks, got %d", tt.wantCount, len(s.allowed))
			}
		})
	}
}

func TestServer_IsAllowed(t *testing.T) {
	s := NewServer(New(), ":9090", "/metrics", []string{
		"192.168.1.100",
		"10.0.0.0/8",
		"::1",
		"fe80::/10",
	}, testLogger())

	tests := []struct {
		ip      string
		allowed bool
	}{
		{"192.168.1.100", true},
		{"192.168.1.101", false},
		{"10.255.255.255", true},
		{"11.0.0.1", false},
		{"::1", true},
		{"fe80::1", true},
		{"2001:db8::1", false},
	}

	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			if got := s.isAllowed(netip.MustParseAddr(tt.ip)); got != tt.allowed {
				t.Errorf("isAllowed(%s) = %v, want %v", tt.ip, got, tt.allowed)
			}
		})
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{name: "remote addr", remoteAddr: "192.168.1.100:12345", want: "192.168.1.100"},
		{name: "forwarded chain", remoteAddr: "127.0.0.1:1", headers: map[string]string{"X-Forwarded-For": "10.0.0.1, 192.168.1.1"}, want: "10.0.0.1"},
		{name: "real ip", remoteAddr: "127.0.0.1:1", headers: map[string]string{"X-Real-IP": "172.16.0.1"}, want: "172.16.0.1"},
		{name: "v4 mapped", remoteAddr: "[::ffff:10.1.2.3]:80", want: "10.1.2.3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/metrics", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			ip, ok := clientIP(req)
			if !ok || ip.String() != tt.want {
				t.Errorf("clientIP() = %s, %v, want %s", ip, ok, tt.want)
			}
		})
	}
}

func TestServer_Handler(t *testing.T) {
	m := New()
	m.IncOpen()
	s := NewServer(m, ":9090", "/metrics", []string{"192.168.1.0/24"}, testLogger())
	h := s.Handler()

	req := httptest.NewRequest("GET", "/metrics", nil)
	req.RemoteAddr = "192.168.1.7:5000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("allowed scrape status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "reviewflow_opens_total 1") {
		t.Error("scrape output missing opens counter")
	}

	req = httptest.NewRequest("GET", "/metrics", nil)
	req.RemoteAddr = "10.0.0.1:5000"
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("denied scrape status = %d, want 403", rec.Code)
	}

	req = httptest.NewRequest("GET", "/health", nil)
	req.RemoteAddr = "10.0.0.1:5000"
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("health status = %d, want 200", rec.Code)
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.ObserveUpload("ok", 1, 0, 0, 0)
	m.ObserveSend("smtp", "sent", 0.1)
	m.IncEmailSkipped("smtp")
	m.DispatchStarted()
	m.DispatchFinished("ok")
	m.IncDispatchRejected("no_recipients")
	m.IncQuotaExceeded()
	m.IncOpen()
	m.IncClick()
	m.ObserveMatch(2, 1)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	if h := m.HTTPMiddleware(next); h == nil {
		t.Error("HTTPMiddleware() on nil metrics returned nil")
	}
}

func TestHTTPMiddleware(t *testing.T) {
	m := New()
	h := m.HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	req := httptest.NewRequest("GET", "/api/v1/customers/0b9c2f3e-0e0f-4a4b-9a9a-1c2d3e4f5a6b", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)

	s := NewServer(m, "", "", nil, testLogger())
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()

	if !strings.Contains(body, `path="/api/v1/customers/{id}"`) {
		t.Error("request path should be normalized")
	}
	if !strings.Contains(body, `reviewflow_http_errors_total{error_type="not_found"} 1`) {
		t.Error("404 should be counted as not_found")
	}
}

func TestCategorizeStatus(t *testing.T) {
	tests := map[int]string{
		500: "server_error",
		503: "server_error",
		429: "rate_limited",
		409: "conflict",
		401: "auth_error",
		404: "not_found",
		422: "bad_request",
		418: "client_error",
	}
	for status, want := range tests {
		if got := categorizeStatus(status); got != want {
			t.Errorf("categorizeStatus(%d) = %q, want %q", status, got, want)
		}
	}
}
