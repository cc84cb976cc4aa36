package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/trialmatch/trialrag/internal/pkg/logger"
)

func TestDefaultRateLimiterConfig(t *testing.T) {
	cfg := DefaultRateLimiterConfig()

	if cfg.RequestsPerSecond != 10 || cfg.Burst != 20 {
		t.Errorf("defaults = %+v", cfg)
	}
	if cfg.CleanupInterval != time.Minute || cfg.StaleAfter != 5*time.Minute {
		t.Errorf("intervals = %v, %v", cfg.CleanupInterval, cfg.StaleAfter)
	}
}

func TestRateLimiter_Allow(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{RequestsPerSecond: 2, Burst: 2})
	defer rl.Close()

	clientIP := "192.168.1.100"

	// Burst of 2
	if !rl.Allow(clientIP) || !rl.Allow(clientIP) {
		t.Fatal("expected burst requests to be allowed")
	}
	if rl.Allow(clientIP) {
		t.Error("expected third request to be denied")
	}

	time.Sleep(600 * time.Millisecond)

	if !rl.Allow(clientIP) {
		t.Error("expected request to be allowed after refill")
	}
}

func TestRateLimiter_MultipleClients(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{RequestsPerSecond: 5, Burst: 5})
	defer rl.Close()

	for i := 0; i < 5; i++ {
		if !rl.Allow("10.0.0.1") || !rl.Allow("10.0.0.2") {
			t.Fatalf("request %d should be allowed for both clients", i)
		}
	}
	if rl.Allow("10.0.0.1") || rl.Allow("10.0.0.2") {
		t.Error("both clients should be limited independently")
	}
	if rl.Clients() != 2 {
		t.Errorf("Clients() = %d, want 2", rl.Clients())
	}
}

func TestRateLimiter_ConcurrentAccess(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{RequestsPerSecond: 100, Burst: 100})
	defer rl.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			ip := "192.168.1." + string(rune('0'+n))
			for j := 0; j < 10; j++ {
				rl.Allow(ip)
			}
		}(i)
	}
	wg.Wait()

	if rl.Clients() != 10 {
		t.Errorf("Clients() = %d, want 10", rl.Clients())
	}
}

func TestRateLimiter_Sweep(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{RequestsPerSecond: 1, Burst: 1, StaleAfter: time.Minute})
	defer rl.Close()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.Allow("old")
	now = now.Add(50 * time.Second)
	rl.Allow("fresh")
	now = now.Add(20 * time.Second)

	rl.sweep()

	if rl.Clients() != 1 {
		t.Fatalf("Clients() = %d, want 1", rl.Clients())
	}
	rl.mu.RLock()
	_, kept := rl.clients["fresh"]
	rl.mu.RUnlock()
	if !kept {
		t.Error("fresh client should survive the sweep")
	}
}

func TestRateLimiter_CloseIdempotent(t *testing.T) {
	rl := NewRateLimiter(DefaultRateLimiterConfig())
	rl.Close()
	rl.Close()
}

func TestRateLimiter_Middleware(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{RequestsPerSecond: 2, Burst: 2})
	defer rl.Close()

	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/evaluation/score", nil)
		req.RemoteAddr = "192.168.1.100:12345"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 2; i++ {
		if rec := do(); rec.Code != http.StatusOK {
			t.Errorf("request %d: status %d, want 200", i, rec.Code)
		}
	}

	rec := do()
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "1" {
		t.Errorf("Retry-After = %q", rec.Header().Get("Retry-After"))
	}
	if !strings.Contains(rec.Body.String(), "RATE_LIMITED") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name    string
		remote  string
		headers map[string]string
		want    string
	}{
		{"remote addr", "192.168.1.100:12345", nil, "192.168.1.100"},
		{"forwarded for", "10.0.0.1:12345", map[string]string{"X-Forwarded-For": "203.0.113.1, 198.51.100.1"}, "203.0.113.1"},
		{"real ip", "10.0.0.1:12345", map[string]string{"X-Real-IP": "203.0.113.50"}, "203.0.113.50"},
		{"forwarded wins", "10.0.0.1:12345", map[string]string{"X-Forwarded-For": "203.0.113.1", "X-Real-IP": "203.0.113.50"}, "203.0.113.1"},
		{"ipv6", "[2001:db8::1]:12345", nil, "[2001:db8::1]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := getClientIP(req); got != tt.want {
				t.Errorf("getClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLogging(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithWriter(&buf, "debug", "text")

	handler := Logging(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/boom" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("ok"))
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))

	out := buf.String()
	if !strings.Contains(out, "path=/healthz") || !strings.Contains(out, "status=200") {
		t.Errorf("missing debug line:\n%s", out)
	}
	if !strings.Contains(out, "HTTP request failed") || !strings.Contains(out, "status=502") {
		t.Errorf("missing warn line:\n%s", out)
	}
}

func TestRecovery(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithWriter(&buf, "info", "text")

	handler := Recovery(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/evaluation/score", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "INTERNAL_ERROR") {
		t.Errorf("body = %s", rec.Body.String())
	}
	if !strings.Contains(buf.String(), "Panic recovered") {
		t.Errorf("log = %s", buf.String())
	}
}
