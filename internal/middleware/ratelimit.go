package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LoginLimiter throttles login attempts per client IP.
//
// WHY RATE LIMIT LOGIN?
// The credential is a last name plus a birthdate. Birthdates are a small search
// space (about 36,500 days per century), so an unthrottled endpoint could be
// walked for a known name in minutes. A token bucket per IP makes that take
// months without bothering a real user who mistypes once or twice.
//
// TOKEN BUCKET:
// Each IP gets a bucket holding up to `burst` tokens, refilled at `perMinute`
// tokens per minute. Every attempt takes one token; an empty bucket means 429.
//
// Keyed by r.RemoteAddr: the socket peer, or the forwarded client address
// when the server is configured to trust its proxy and chi's RealIP runs first.
type LoginLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	metrics  *Metrics
	logger   *slog.Logger
	now      func() time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLoginLimiter allows perMinute attempts per minute per IP, with bursts of
// up to burst. metrics may be nil.
func NewLoginLimiter(perMinute, burst int, metrics *Metrics, logger *slog.Logger) *LoginLimiter {
	if perMinute <= 0 {
		perMinute = 10
	}
	if burst <= 0 {
		burst = 5
	}
	return &LoginLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    burst,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// Handler is the middleware. Mount it on the login route only.
func (l *LoginLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		res := l.reserve(ip)

		if delay := res.DelayFrom(l.now()); delay > 0 {
			// Don't hold the token: the request is rejected, not queued.
			res.CancelAt(l.now())
			l.metrics.RateLimited()
			l.logger.Warn("login rate limit exceeded", slog.String("ip", ip))

			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]string{
				"error": "Too many login attempts",
				"code":  "rate_limited",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (l *LoginLimiter) reserve(ip string) *rate.Reservation {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter.ReserveN(now, 1)
}

// Cleanup forgets IPs not seen for idle. A forgotten IP starts again with a
// full bucket, so idle should be at least the time a bucket takes to refill.
func (l *LoginLimiter) Cleanup(idle time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-idle)
	for ip, v := range l.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(l.visitors, ip)
		}
	}
}

// StartCleanup runs Cleanup every interval until ctx is cancelled.
func (l *LoginLimiter) StartCleanup(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.Cleanup(idle)
			}
		}
	}()
}

func (l *LoginLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}

// clientIP strips the port from r.RemoteAddr. RealIP leaves a bare IP, so a
// missing port is not an error.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
