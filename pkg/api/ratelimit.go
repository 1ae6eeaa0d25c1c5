package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/glottahq/glotta/pkg/log"
	"github.com/glottahq/glotta/pkg/metrics"
	"github.com/glottahq/glotta/pkg/store"
)

const (
	// rateWindowTTL keeps per-minute counters around slightly longer
	// than their window so late arrivals still land on a live key.
	rateWindowTTL = 2 * time.Minute

	bucketIdleTTL       = 10 * time.Minute
	bucketSweepInterval = 5 * time.Minute
)

// ipLimiter throttles clients per IP with two layers: an in-process
// token bucket for bursts and a shared per-minute counter in the store
// so the sustained limit holds across instances. Store failures never
// reject a request.
type ipLimiter struct {
	store *store.Client
	limit int // sustained requests per minute
	burst int

	mu        sync.Mutex
	buckets   map[string]*bucketEntry
	lastSweep time.Time

	log zerolog.Logger
}

type bucketEntry struct {
	bucket   *rate.Limiter
	lastSeen time.Time
}

func newIPLimiter(st *store.Client, perMinute, burst int) *ipLimiter {
	return &ipLimiter{
		store:     st,
		limit:     perMinute,
		burst:     burst,
		buckets:   make(map[string]*bucketEntry),
		lastSweep: time.Now(),
		log:       log.WithComponent("ratelimit"),
	}
}

func (l *ipLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if exemptPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		ip := clientIP(r)
		if !l.allow(r.Context(), ip) {
			metrics.RateLimitRejectionsTotal.Inc()
			l.log.Warn().Str("ip", ip).Str("path", r.URL.Path).Msg("rate limit exceeded")
			w.Header().Set("Retry-After", "60")
			httpError(w, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Health probes and metric scrapes are never throttled.
func exemptPath(path string) bool {
	switch path {
	case "/health", "/api/v1/health", "/metrics":
		return true
	}
	return false
}

func (l *ipLimiter) allow(ctx context.Context, ip string) bool {
	if !l.bucketFor(ip).Allow() {
		return false
	}

	minute := time.Now().Unix() / 60
	key := fmt.Sprintf("rate_limit:%s:%d", ip, minute)
	count, err := l.store.Incr(ctx, key, rateWindowTTL)
	if err != nil {
		l.log.Warn().Err(err).Msg("rate counter unavailable, allowing request")
		return true
	}
	return count <= int64(l.limit)
}

// bucketFor returns the caller's token bucket, creating it on first
// sight. Buckets refill at limit/60 per second so an idle minute
// restores the full sustained budget.
func (l *ipLimiter) bucketFor(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.Sub(l.lastSweep) > bucketSweepInterval {
		for key, e := range l.buckets {
			if now.Sub(e.lastSeen) > bucketIdleTTL {
				delete(l.buckets, key)
			}
		}
		l.lastSweep = now
	}

	e, ok := l.buckets[ip]
	if !ok {
		e = &bucketEntry{bucket: rate.NewLimiter(rate.Limit(float64(l.limit)/60.0), l.burst)}
		l.buckets[ip] = e
	}
	e.lastSeen = now
	return e.bucket
}
