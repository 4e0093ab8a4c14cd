package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/jx"
)

// RateLimitConfig configures the sliding window rate limiter.
type RateLimitConfig struct {
	// Max is the number of requests a key may make per Window.
	Max    int
	Window time.Duration
	// KeyFunc names the budget a request is charged to. Defaults to ClientIP.
	KeyFunc func(*http.Request) string
}

// window approximates a sliding window from two fixed buckets: the count of
// the previous bucket is weighted by how much of it still overlaps.
type window struct {
	start time.Time
	curr  float64
	prev  float64
}

// advance moves w forward so that now falls into its current bucket.
func (w *window) advance(now time.Time, span time.Duration) {
	elapsed := now.Sub(w.start)
	switch {
	case elapsed < span:
		return
	case elapsed < 2*span:
		w.prev = w.curr
	default:
		w.prev = 0
	}
	w.curr = 0
	w.start = now.Truncate(span)
}

func (w *window) weight(now time.Time, span time.Duration) float64 {
	overlap := 1 - now.Sub(w.start).Seconds()/span.Seconds()
	return w.prev*math.Max(overlap, 0) + w.curr
}

type limiter struct {
	cfg     RateLimitConfig
	mu      sync.Mutex
	windows map[string]*window
}

func newLimiter(cfg RateLimitConfig) *limiter {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = ClientIP
	}
	return &limiter{cfg: cfg, windows: make(map[string]*window)}
}

// take charges one request to key. It reports the requests left in the
// window, when the current bucket ends and whether the request fits.
func (l *limiter) take(key string, now time.Time) (left int, reset time.Time, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, found := l.windows[key]
	if !found {
		w = &window{start: now}
		l.windows[key] = w
	}
	w.advance(now, l.cfg.Window)

	reset = w.start.Add(l.cfg.Window)
	used := w.weight(now, l.cfg.Window)
	if used >= float64(l.cfg.Max) {
		return 0, reset, false
	}
	w.curr++
	return max(int(float64(l.cfg.Max)-used-1), 0), reset, true
}

// evict drops windows idle for two full spans.
func (l *limiter) evict(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for key, w := range l.windows {
		if now.Sub(w.start) >= 2*l.cfg.Window {
			delete(l.windows, key)
		}
	}
}

func (l *limiter) evictEvery(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				l.evict(now)
			}
		}
	}()
}

// RateLimit returns a middleware that enforces a per-key sliding window
// limit. Rejected requests get 429 with Retry-After and the shop's JSON error
// body. Every response carries the X-RateLimit-* headers.
//
// Idle keys are never evicted; long-running servers should use
// RateLimitWithCleanup.
func RateLimit(cfg RateLimitConfig) Middleware {
	return newLimiter(cfg).middleware()
}

// RateLimitWithCleanup is RateLimit with idle keys evicted every two windows
// until ctx is done.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	l := newLimiter(cfg)
	l.evictEvery(ctx, 2*cfg.Window)
	return l.middleware()
}

func (l *limiter) middleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			left, reset, ok := l.take(l.cfg.KeyFunc(r), time.Now())

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(l.cfg.Max))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(left))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
			if ok {
				next.ServeHTTP(w, r)
				return
			}

			wait := max(time.Until(reset), 0)
			h.Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			h.Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write(tooManyRequestsBody)
		})
	}
}

var tooManyRequestsBody = func() []byte {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	e.Obj(func(e *jx.Encoder) {
		e.Field("code", func(e *jx.Encoder) { e.Int(http.StatusTooManyRequests) })
		e.Field("kind", func(e *jx.Encoder) { e.Str("rate_limited") })
		e.Field("message", func(e *jx.Encoder) { e.Str("rate limit exceeded") })
	})
	return append([]byte(nil), e.Bytes()...)
}()

const usersPrefix = "/api/users/"

// UserKeyFunc charges requests to the customer making them: the X-User-ID
// header, then the {id} of /api/users/{id}/... routes, then the client IP.
//
// Shoppers behind one office or carrier NAT share an address, so an IP
// budget would let one customer's checkout retries lock out the others.
// Anonymous catalog browsing still falls back to the IP.
func UserKeyFunc(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get("X-User-ID")); id != "" {
		return "user:" + id
	}
	if rest, ok := strings.CutPrefix(r.URL.Path, usersPrefix); ok {
		id, _, _ := strings.Cut(rest, "/")
		if _, err := strconv.ParseInt(id, 10, 64); err == nil {
			return "user:" + id
		}
	}
	return ClientIP(r)
}

// ClientIP returns the first X-Forwarded-For hop, then X-Real-IP, then the
// host part of RemoteAddr.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
