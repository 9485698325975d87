package middleware

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/rollcare/rollcare/internal/platform/apperr"
)

// Quota is a token-bucket allowance: Rate tokens per second up to Burst.
type Quota struct {
	Rate  float64
	Burst int
}

func (q Quota) String() string {
	return fmt.Sprintf("%g:%d", q.Rate, q.Burst)
}

// Decision is a limiter's answer for one request.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Limiter decides whether a request keyed by key may proceed under q.
type Limiter interface {
	Allow(ctx context.Context, key string, q Quota) (Decision, error)
}

// RateLimitConfig holds rate limiting configuration. Routes overrides Default
// for a route, keyed by "METHOD /registered/path".
type RateLimitConfig struct {
	Default Quota
	Routes  map[string]Quota
	Limiter Limiter
	Logger  zerolog.Logger
}

// DefaultQuota returns default rate limiting settings.
func DefaultQuota() Quota {
	return Quota{Rate: 100, Burst: 200}
}

// RateLimit rejects requests over quota with RATE_LIMITED (429) and a
// Retry-After header. Limiter backend failures let the request through.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	if cfg.Limiter == nil {
		cfg.Limiter = NewMemoryLimiter()
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			quota := cfg.Default
			key := "ip:" + c.RealIP()
			route := c.Request().Method + " " + c.Path()
			if q, ok := cfg.Routes[route]; ok {
				quota = q
				key += "|" + route
			}

			d, err := cfg.Limiter.Allow(c.Request().Context(), key, quota)
			if err != nil {
				cfg.Logger.Warn().Err(err).
					Str("request_id", RequestIDFrom(c)).
					Str("key", key).
					Msg("rate limiter unavailable, allowing request")
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(quota.Burst))
			if !d.Allowed {
				h.Set("Retry-After", strconv.Itoa(retrySeconds(d.RetryAfter)))
				h.Set("X-RateLimit-Remaining", "0")
				return apperr.RateLimited("Too many requests, retry later")
			}
			return next(c)
		}
	}
}

func retrySeconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}

// ParseRouteQuotas parses "POST /api/v1/patients=5:10;GET /api/v1/quotes=20:40"
// into per-route quotas.
func ParseRouteQuotas(s string) (map[string]Quota, error) {
	out := make(map[string]Quota)
	for _, entry := range strings.Split(s, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		route, quota, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("rate limit route %q: missing '='", entry)
		}
		fields := strings.Fields(route)
		if len(fields) != 2 {
			return nil, fmt.Errorf("rate limit route %q: want \"METHOD /path\"", route)
		}
		rs, bs, ok := strings.Cut(quota, ":")
		if !ok {
			return nil, fmt.Errorf("rate limit route %q: want rate:burst", entry)
		}
		r, err := strconv.ParseFloat(rs, 64)
		if err != nil || r <= 0 {
			return nil, fmt.Errorf("rate limit route %q: invalid rate %q", entry, rs)
		}
		b, err := strconv.Atoi(bs)
		if err != nil || b <= 0 {
			return nil, fmt.Errorf("rate limit route %q: invalid burst %q", entry, bs)
		}
		out[strings.ToUpper(fields[0])+" "+fields[1]] = Quota{Rate: r, Burst: b}
	}
	return out, nil
}

type visitor struct {
	limiter  *rate.Limiter
	quota    Quota
	lastSeen time.Time
}

// MemoryLimiter keeps one token bucket per key in process memory. Idle
// buckets are evicted opportunistically.
type MemoryLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	ttl      time.Duration
	lookups  uint64
	now      func() time.Time
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		visitors: make(map[string]*visitor),
		ttl:      10 * time.Minute,
		now:      time.Now,
	}
}

func (m *MemoryLimiter) Allow(_ context.Context, key string, q Quota) (Decision, error) {
	now := m.now()
	lim := m.visitor(key, q, now)

	r := lim.ReserveN(now, 1)
	if !r.OK() {
		return Decision{Allowed: false, RetryAfter: time.Second}, nil
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return Decision{Allowed: false, RetryAfter: delay}, nil
	}
	return Decision{Allowed: true}, nil
}

func (m *MemoryLimiter) visitor(key string, q Quota, now time.Time) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lookups++
	if m.lookups >= 5000 {
		for k, v := range m.visitors {
			if now.Sub(v.lastSeen) >= m.ttl {
				delete(m.visitors, k)
			}
		}
		m.lookups = 0
	}

	if v, ok := m.visitors[key]; ok && v.quota == q {
		v.lastSeen = now
		return v.limiter
	}
	burst := q.Burst
	if burst <= 0 {
		burst = 1
	}
	lim := rate.NewLimiter(rate.Limit(q.Rate), burst)
	m.visitors[key] = &visitor{limiter: lim, quota: q, lastSeen: now}
	return lim
}
