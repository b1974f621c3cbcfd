// Package ratelimit limits mutating requests per caller.
//
// The Redis limiter keeps a sliding-window log in a sorted set per key and
// sits behind a circuit breaker: when Redis is failing, requests are let
// through rather than rejected. Without Redis a per-process token bucket is
// used.
package ratelimit

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/example/video-platform/internal/platform/api"
	"github.com/example/video-platform/internal/platform/auth"
	"github.com/example/video-platform/internal/platform/httpserver"
	"github.com/example/video-platform/internal/platform/metrics"
)

type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

type Options struct {
	Prefix string
	Limit  int
	Window time.Duration
	Redis  *redis.Client
	Logger *zap.Logger
}

// New returns a Redis limiter when a client is given and an in-memory
// limiter otherwise.
func New(opts Options) Limiter {
	if opts.Limit <= 0 {
		opts.Limit = 10
	}
	if opts.Window <= 0 {
		opts.Window = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Redis == nil {
		return NewMemory(opts.Limit, opts.Window)
	}
	return newRedisLimiter(opts)
}

type redisLimiter struct {
	client *redis.Client
	prefix string
	limit  int
	window time.Duration
	cb     *gobreaker.CircuitBreaker[bool]
	log    *zap.Logger
}

func newRedisLimiter(opts Options) *redisLimiter {
	l := &redisLimiter{
		client: opts.Redis,
		prefix: opts.Prefix + ":ratelimit:",
		limit:  opts.Limit,
		window: opts.Window,
		log:    opts.Logger,
	}
	l.cb = gobreaker.NewCircuitBreaker[bool](gobreaker.Settings{
		Name:        "ratelimit-redis",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			l.log.Info("circuit-breaker state change", zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
	return l
}

// Allow fails open: Redis errors and an open breaker both admit the request.
func (l *redisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	ok, err := l.cb.Execute(func() (bool, error) { return l.allow(ctx, key) })
	if err != nil {
		l.log.Warn("rate limiter unavailable, allowing request", zap.Error(err))
		return true, nil
	}
	return ok, nil
}

func (l *redisLimiter) allow(ctx context.Context, key string) (bool, error) {
	now := time.Now()
	k := l.prefix + key
	pipe := l.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, k, "-inf", strconv.FormatInt(now.Add(-l.window).UnixMicro(), 10))
	pipe.ZAdd(ctx, k, redis.Z{Score: float64(now.UnixMicro()), Member: uuid.NewString()})
	card := pipe.ZCard(ctx, k)
	pipe.Expire(ctx, k, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return card.Val() <= int64(l.limit), nil
}

// Memory is a per-process token bucket refilling limit tokens per window.
type Memory struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64
	burst   int
	now     func() time.Time
}

type bucket struct {
	tokens float64
	last   time.Time
}

func NewMemory(limit int, window time.Duration) *Memory {
	return &Memory{
		buckets: make(map[string]*bucket),
		rate:    float64(limit) / window.Seconds(),
		burst:   limit,
		now:     time.Now,
	}
}

func (m *Memory) Allow(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	b, ok := m.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(m.burst), last: now}
		m.buckets[key] = b
	}
	b.tokens = min(float64(m.burst), b.tokens+now.Sub(b.last).Seconds()*m.rate)
	b.last = now

	if b.tokens < 1 {
		return false, nil
	}
	b.tokens--
	return true, nil
}

// Middleware limits by authenticated user id, falling back to client IP.
// Mount it inside the routed group so rejections are labelled by pattern.
func Middleware(l Limiter, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, ok := auth.UserIDFromContext(r.Context())
			if !ok || key == "" {
				key = clientIP(r)
			}
			allowed, err := l.Allow(r.Context(), key)
			if err == nil && !allowed {
				if m != nil {
					m.RateLimited.WithLabelValues(metrics.Route(r)).Inc()
				}
				rid := httpserver.RequestIDFromContext(r.Context())
				api.RateLimited(w, api.CodeRateLimited, "Too many requests", rid, nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.SplitN(fwd, ",", 2)[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
