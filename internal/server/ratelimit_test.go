package server

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func serveFrom(h http.Handler, addr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/query", nil)
	req.RemoteAddr = addr
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRateLimit_AllowsBurst(t *testing.T) {
	t.Parallel()

	rl, stop := newRateLimiter(100, 5, nil)
	defer stop()
	h := rl.middleware(okHandler)

	for i := range 5 {
		if w := serveFrom(h, "127.0.0.1:12345"); w.Code != http.StatusOK {
			t.Errorf("request %d: expected 200, got %d", i, w.Code)
		}
	}
}

func TestRateLimit_RejectsOverBurst(t *testing.T) {
	t.Parallel()

	var rs reasons
	rl, stop := newRateLimiter(0.001, 1, rs.add)
	defer stop()
	h := rl.middleware(okHandler)

	if w := serveFrom(h, "10.0.0.2:1234"); w.Code != http.StatusOK {
		t.Fatalf("first request: expected 200, got %d", w.Code)
	}
	w := serveFrom(h, "10.0.0.2:1234")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: expected 429, got %d", w.Code)
	}

	secs, err := strconv.Atoi(w.Header().Get("Retry-After"))
	if err != nil || secs < 1 {
		t.Errorf("Retry-After: expected whole seconds >= 1, got %q", w.Header().Get("Retry-After"))
	}
	if len(rs.got) != 1 || rs.got[0] != rejectRateLimited {
		t.Errorf("reject hook: got %v", rs.got)
	}
}

func TestRateLimit_RefusedRequestsDoNotConsumeTokens(t *testing.T) {
	t.Parallel()

	// 20 rps: one token every 50ms.
	rl, stop := newRateLimiter(20, 1, nil)
	defer stop()
	h := rl.middleware(okHandler)

	serveFrom(h, "10.0.0.3:1")
	for range 5 {
		serveFrom(h, "10.0.0.3:1")
	}
	time.Sleep(120 * time.Millisecond)
	if w := serveFrom(h, "10.0.0.3:1"); w.Code != http.StatusOK {
		t.Errorf("expected bucket to refill after refusals, got %d", w.Code)
	}
}

func TestRateLimit_PerIPIsolation(t *testing.T) {
	t.Parallel()

	rl, stop := newRateLimiter(0.001, 1, nil)
	defer stop()
	h := rl.middleware(okHandler)

	for range 5 {
		serveFrom(h, "192.168.1.1:1111")
	}
	if w := serveFrom(h, "192.168.1.2:2222"); w.Code != http.StatusOK {
		t.Errorf("IP B: expected 200, got %d", w.Code)
	}
}

func TestRateLimit_Evict(t *testing.T) {
	t.Parallel()

	rl, stop := newRateLimiter(10, 1, nil)
	stop()
	stop()

	now := time.Now()
	rl.limiterFor("10.0.0.1", now.Add(-2*limiterIdleTTL))
	rl.limiterFor("10.0.0.2", now)
	rl.evict(now)

	if n := rl.size(); n != 1 {
		t.Errorf("expected 1 visitor after eviction, got %d", n)
	}
}

func TestRetryAfter(t *testing.T) {
	t.Parallel()

	cases := []struct {
		delay time.Duration
		ok    bool
		want  string
	}{
		{10 * time.Millisecond, true, "1"},
		{1500 * time.Millisecond, true, "2"},
		{30 * time.Second, true, "30"},
		{0, false, "60"},
	}
	for _, tc := range cases {
		if got := retryAfter(tc.delay, tc.ok); got != tc.want {
			t.Errorf("retryAfter(%v, %v): got %q, want %q", tc.delay, tc.ok, got, tc.want)
		}
	}
}

func TestClientIP(t *testing.T) {
	t.Parallel()

	cases := []struct {
		remoteAddr string
		wantIP     string
	}{
		{"127.0.0.1:54321", "127.0.0.1"},
		{"10.0.0.1:80", "10.0.0.1"},
		{"[::1]:8080", "::1"},
		{"noport", "noport"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = tc.remoteAddr
		if got := clientIP(req); got != tc.wantIP {
			t.Errorf("remoteAddr=%q: expected %q, got %q", tc.remoteAddr, tc.wantIP, got)
		}
	}
}
