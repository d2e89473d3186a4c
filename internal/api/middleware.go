package api

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"jobhub/internal/errors"
	"jobhub/internal/lifecycle"
	"jobhub/internal/logger"
)

type contextKey string

// UserContextKey holds the authenticated user id.
const UserContextKey contextKey = "user_id"

// UserIDHeader carries the identity established by the upstream auth proxy.
const UserIDHeader = "X-User-ID"

// UserID returns the identity attached by RequireUser.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(UserContextKey).(string)
	return id
}

func extractUserID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(UserIDHeader)); id != "" {
		return id
	}
	// Browsers cannot set headers on WebSocket upgrades
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return strings.TrimSpace(r.URL.Query().Get("user_id"))
	}
	return ""
}

// RequireUser rejects requests without an identity.
func (a *API) RequireUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := extractUserID(r)
		if id == "" {
			a.writeError(w, r, errors.Wrap(errors.ErrUnauthorized, "missing identity"))
			return
		}
		ctx := context.WithValue(r.Context(), UserContextKey, id)
		next(w, r.WithContext(ctx))
	}
}

// userLimiter keeps one token bucket per user. A bucket idle for longer than
// it takes to refill is indistinguishable from a new one, so sweep drops it.
type userLimiter struct {
	limit rate.Limit
	burst int
	idle  time.Duration
	now   func() time.Time

	mu       sync.Mutex
	limiters map[string]*userBucket
}

type userBucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func newUserLimiter(limit rate.Limit, burst int) *userLimiter {
	if burst < 1 {
		burst = 1
	}
	idle := time.Minute
	if limit > 0 {
		if refill := time.Duration(float64(burst) / float64(limit) * float64(time.Second)); refill > idle {
			idle = refill
		}
	}
	return &userLimiter{
		limit:    limit,
		burst:    burst,
		idle:     idle,
		now:      time.Now,
		limiters: make(map[string]*userBucket),
	}
}

func (l *userLimiter) allow(userID string) bool {
	now := l.now()
	l.mu.Lock()
	b, ok := l.limiters[userID]
	if !ok {
		b = &userBucket{lim: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[userID] = b
	}
	b.lastSeen = now
	l.mu.Unlock()
	return b.lim.AllowN(now, 1)
}

// sweep drops buckets unused for longer than the refill window and reports
// how many were removed.
func (l *userLimiter) sweep() int {
	cutoff := l.now().Add(-l.idle)
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for id, b := range l.limiters {
		if b.lastSeen.Before(cutoff) {
			delete(l.limiters, id)
			n++
		}
	}
	return n
}

func (l *userLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// RunLimiterJanitor evicts idle per-user rate limiters every interval until
// ctx is done.
func (a *API) RunLimiterJanitor(ctx context.Context, interval time.Duration) {
	if a.limiter == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := a.limiter.sweep(); n > 0 {
				a.logger.Debugw("Evicted idle rate limiters", "count", n)
			}
		}
	}
}

// PerMinute converts a per-minute quota into a rate.Limit.
func PerMinute(n int) rate.Limit {
	if n <= 0 {
		return 0
	}
	return rate.Limit(float64(n) / 60.0)
}

// rateLimited must run inside RequireUser.
func (a *API) rateLimited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if a.limiter != nil && !a.limiter.allow(UserID(r.Context())) {
			w.Header().Set("Retry-After", "60")
			writeMessage(w, http.StatusTooManyRequests, lifecycle.SeverityWarning,
				"Bạn thao tác quá nhanh, vui lòng thử lại sau.")
			return
		}
		next(w, r)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// Hijack lets WebSocket upgrades pass through the recorder.
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	s.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func (a *API) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		a.logger.Debugw("HTTP request",
			logger.FieldMethod, r.Method,
			logger.FieldPath, r.URL.Path,
			logger.FieldStatus, rec.status,
			logger.FieldDurationMS, time.Since(start).Milliseconds(),
		)
	})
}

func corsMiddleware(allowed []string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && originAllowed(allowed, origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+UserIDHeader)
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func originAllowed(allowed []string, origin string) bool {
	for _, a := range allowed {
		if a == "*" || strings.HasPrefix(origin, a) {
			return true
		}
	}
	return false
}
