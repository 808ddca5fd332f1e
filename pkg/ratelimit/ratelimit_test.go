package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestLimiter(t *testing.T) {
	// Burst of 2: two immediate requests pass, the third waits on
	// refill.
	limiter := NewLimiter(10, 2)

	if !limiter.Allow("robot-1") {
		t.Error("First request should be allowed")
	}
	if !limiter.Allow("robot-1") {
		t.Error("Second request should be allowed")
	}
	if limiter.Allow("robot-1") {
		t.Error("Third request should be rate limited")
	}

	// 10 req/s means one token roughly every 100ms.
	time.Sleep(150 * time.Millisecond)
	if !limiter.Allow("robot-1") {
		t.Error("Request after waiting should be allowed")
	}
}

func TestLimiterKeysIndependent(t *testing.T) {
	limiter := NewLimiter(1, 1)

	if !limiter.Allow("robot-a") {
		t.Error("robot-a first request should be allowed")
	}
	if !limiter.Allow("robot-b") {
		t.Error("robot-b should have its own bucket")
	}
	if limiter.Allow("robot-a") {
		t.Error("robot-a second request should be rate limited")
	}
}

func TestMiddleware(t *testing.T) {
	limiter := NewLimiter(10, 2)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	wrapped := limiter.Middleware(func(r *http.Request) string {
		return "test-key"
	})(handler)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest("GET", "/api/schedules", nil)
		rr := httptest.NewRecorder()
		wrapped.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Errorf("Request %d should succeed, got status %d", i+1, rr.Code)
		}
	}

	req := httptest.NewRequest("GET", "/api/schedules", nil)
	rr := httptest.NewRecorder()
	wrapped.ServeHTTP(rr, req)
	if rr.Code != http.StatusTooManyRequests {
		t.Errorf("Third request should be rate limited, got status %d", rr.Code)
	}
}

func TestCleanupOldLimiters(t *testing.T) {
	limiter := NewLimiter(10, 2)
	limiter.Allow("stale-key")

	if removed := limiter.CleanupOldLimiters(0); removed != 1 {
		t.Errorf("Expected 1 limiter removed, got %d", removed)
	}
	if removed := limiter.CleanupOldLimiters(time.Hour); removed != 0 {
		t.Errorf("Expected 0 limiters removed, got %d", removed)
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
			expectedKey: "192.168.1.1:12345",
		},
		{
			name:          "Behind proxy",
			remoteAddr:    "127.0.0.1:12345",
			xForwardedFor: "203.0.113.1",
			expectedKey:   "203.0.113.1",
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
