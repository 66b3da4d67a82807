package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestLimiter(t *testing.T) {
	// Burst of 2 means two immediate requests pass, the third is limited
	limiter := NewLimiter(10, 2)

	if !limiter.Allow("test-key") {
		t.Error("First request should be allowed")
	}
	if !limiter.Allow("test-key") {
		t.Error("Second request should be allowed")
	}
	if limiter.Allow("test-key") {
		t.Error("Third request should be rate limited")
	}

	// 10 req/s refills one token every 100ms
	time.Sleep(150 * time.Millisecond)
	if !limiter.Allow("test-key") {
		t.Error("Request after waiting should be allowed")
	}
}

func TestLimiterKeysAreIndependent(t *testing.T) {
	limiter := NewLimiter(10, 1)

	if !limiter.Allow("a") {
		t.Error("first key should be allowed")
	}
	if !limiter.Allow("b") {
		t.Error("second key should have its own bucket")
	}
}

func TestMiddleware(t *testing.T) {
	limiter := NewLimiter(10, 2)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	wrapped := limiter.Middleware(func(r *http.Request) string { return "test-key" })(handler)

	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		wrapped.ServeHTTP(rr, httptest.NewRequest("GET", "/test", nil))
		if rr.Code != http.StatusOK {
			t.Errorf("Request %d should succeed, got status %d", i+1, rr.Code)
		}
	}

	rr := httptest.NewRecorder()
	wrapped.ServeHTTP(rr, httptest.NewRequest("GET", "/test", nil))
	if rr.Code != http.StatusTooManyRequests {
		t.Errorf("Third request should be rate limited, got status %d", rr.Code)
	}
}

func TestCleanup(t *testing.T) {
	limiter := NewLimiter(10, 1)
	limiter.Allow("stale-key")

	limiter.Cleanup(0)

	limiter.mu.Lock()
	_, exists := limiter.limiters["stale-key"]
	limiter.mu.Unlock()
	if exists {
		t.Error("stale limiter should have been removed")
	}
}

func TestIPKeyFunc(t *testing.T) {
	tests := []struct {
		name          string
		remoteAddr    string
		xForwardedFor string
		expectedKey   string
	}{
		{
			name:        "Direct connection",
			remoteAddr:  "192.168.1.1:12345",
			expectedKey: "192.168.1.1",
		},
		{
			name:          "Spoofed forwarded header ignored",
			remoteAddr:    "192.168.1.1:12345",
			xForwardedFor: "203.0.113.1",
			expectedKey:   "192.168.1.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/test", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xForwardedFor != "" {
				req.Header.Set("X-Forwarded-For", tt.xForwardedFor)
			}
			if key := IPKeyFunc(req); key != tt.expectedKey {
				t.Errorf("Expected key %s, got %s", tt.expectedKey, key)
			}
		})
	}
}

func TestForwardedKeyFunc(t *testing.T) {
	req := httptest.NewRequest("GET", "/test", nil)
	req.RemoteAddr = "10.0.0.2:443"
	req.Header.Set("X-Forwarded-For", "203.0.113.1, 10.0.0.1")
	if key := ForwardedKeyFunc(req); key != "203.0.113.1" {
		t.Errorf("Expected first forwarded hop, got %s", key)
	}

	req = httptest.NewRequest("GET", "/test", nil)
	req.RemoteAddr = "10.0.0.2:443"
	if key := ForwardedKeyFunc(req); key != "10.0.0.2" {
		t.Errorf("Expected remote address fallback, got %s", key)
	}
}
