package server

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/karthikgk97/notion-llm/internal/logging"
)

const (
	defaultRateLimit = 10
	defaultRateBurst = 20

	// limiterIdleTTL is how long an IP may stay silent before its bucket is evicted.
	limiterIdleTTL = 5 * time.Minute
	evictInterval  = time.Minute
)

// visitor is one client IP's token bucket.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter enforces a per-IP token bucket on the protected API routes.
// Queries and answers both embed text and may call a chat model, so one
// client must not be able to monopolise the backends.
type rateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rps      rate.Limit
	burst    int
	// reject, when set, is called for every refused request.
	reject func(reason string)
}

// newRateLimiter starts the eviction loop; call the returned stop to end it.
func newRateLimiter(rps float64, burst int, reject func(reason string)) (*rateLimiter, func()) {
	rl := &rateLimiter{
		visitors: make(map[string]*visitor),
		rps:      rate.Limit(rps),
		burst:    burst,
		reject:   reject,
	}

	done := make(chan struct{})
	go func() {
		t := time.NewTicker(evictInterval)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case now := <-t.C:
				rl.evict(now)
			}
		}
	}()

	var once sync.Once
	return rl, func() { once.Do(func() { close(done) }) }
}

func (rl *rateLimiter) limiterFor(ip string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, ok := rl.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter
}

// evict drops buckets idle for longer than limiterIdleTTL.
func (rl *rateLimiter) evict(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := now.Add(-limiterIdleTTL)
	for ip, v := range rl.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(rl.visitors, ip)
		}
	}
}

// size reports the number of tracked IPs.
func (rl *rateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.visitors)
}

// middleware answers 429 with a Retry-After header, in whole seconds, once
// the caller's bucket is empty.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		now := time.Now()
		ip := clientIP(r)

		res := rl.limiterFor(ip, now).ReserveN(now, 1)
		delay := res.DelayFrom(now)
		if res.OK() && delay == 0 {
			next.ServeHTTP(w, r)
			return
		}
		// Give the token back so a refused request does not push the
		// caller's next slot further out.
		res.CancelAt(now)
		w.Header().Set("Retry-After", retryAfter(delay, res.OK()))

		logging.FromContext(r.Context()).Warn("rate limit exceeded", slog.String("ip", ip))
		if rl.reject != nil {
			rl.reject(rejectRateLimited)
		}
		writeError(r.Context(), w, http.StatusTooManyRequests, "rate limit exceeded")
	})
}

// retryAfter renders delay as a Retry-After value of at least one second.
func retryAfter(delay time.Duration, ok bool) string {
	if !ok || delay == rate.InfDuration {
		return "60"
	}
	return strconv.Itoa(max(1, int(math.Ceil(delay.Seconds()))))
}

// clientIP is RemoteAddr without the port. X-Forwarded-For is ignored; a
// proxy in front must rewrite RemoteAddr if per-client limits matter there.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
