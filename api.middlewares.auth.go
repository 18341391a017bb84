package main

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// minLimiterIdle is the shortest time a bucket is kept after its last use.
const minLimiterIdle = 10 * time.Minute

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// LoginLimiter keeps one token bucket per source ip. Buckets not used
// for longer than the idle period are evicted by Sweep.
type LoginLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	idle     time.Duration
	now      func() time.Time
	limiters map[string]*limiterEntry
}

// NewLoginLimiter provides a limiter allowing `r` attempts per second
// with bursts of `burst` attempts for each source ip. The idle period
// is long enough for a bucket to refill before it is evicted.
func NewLoginLimiter(r float64, burst int) *LoginLimiter {
	idle := minLimiterIdle
	if r > 0 {
		if refill := time.Duration(float64(burst) / r * float64(time.Second)); refill > idle {
			idle = refill
		}
	}
	return &LoginLimiter{
		limit:    rate.Limit(r),
		burst:    burst,
		idle:     idle,
		now:      time.Now,
		limiters: make(map[string]*limiterEntry),
	}
}

// Allow reports whether an attempt from ip may proceed now.
func (ll *LoginLimiter) Allow(ip string) bool {
	ll.mu.Lock()
	now := ll.now()
	entry, found := ll.limiters[ip]
	if !found {
		entry = &limiterEntry{limiter: rate.NewLimiter(ll.limit, ll.burst)}
		ll.limiters[ip] = entry
	}
	entry.lastSeen = now
	ll.mu.Unlock()
	return entry.limiter.AllowN(now, 1)
}

// Sweep evicts the buckets idle for longer than the idle period
// and returns how many were removed.
func (ll *LoginLimiter) Sweep() int {
	ll.mu.Lock()
	defer ll.mu.Unlock()
	now := ll.now()
	removed := 0
	for ip, entry := range ll.limiters {
		if now.Sub(entry.lastSeen) > ll.idle {
			delete(ll.limiters, ip)
			removed++
		}
	}
	return removed
}

// Size returns the number of buckets currently kept.
func (ll *LoginLimiter) Size() int {
	ll.mu.Lock()
	defer ll.mu.Unlock()
	return len(ll.limiters)
}

// Run sweeps idle buckets at each tick until ctx is done.
func (ll *LoginLimiter) Run(ctx context.Context, every time.Duration) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			ll.Sweep()
		}
	}
}

// LoginRateLimitMiddleware rejects with 429 the credentials attempts
// exceeding the configured rate for the caller ip.
func (api *APIHandler) LoginRateLimitMiddleware(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		ip := api.ClientIP(r)
		if api.limiter != nil && !api.limiter.Allow(ip) {
			w.Header().Set("Retry-After", "1")
			api.Fail(w, r, ErrTooManyLogins, "login attempts rate exceeded", zap.String("request.ip", ip))
			return
		}
		next(w, r, ps)
	}
}

// ClientIP returns the ip used to identify the caller. Forwarding headers
// are only honored when the server runs behind a trusted proxy.
func (api *APIHandler) ClientIP(r *http.Request) string {
	if api.config != nil && api.config.Server.TrustProxyHeaders {
		return GetRequestSourceIP(r)
	}
	return GetRemoteIP(r)
}

// AuthMiddleware requires a valid bearer token and attaches
// the authenticated user to the request context.
func (api *APIHandler) AuthMiddleware(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		token, found := bearerToken(r)
		if !found {
			api.Fail(w, r, ErrUnauthenticated, "missing bearer token")
			return
		}
		user, err := api.userService.Authenticate(r.Context(), token)
		if err != nil {
			api.Fail(w, r, err, "failed to authenticate request")
			return
		}

		ctx := context.WithValue(r.Context(), ContextAuthUser, user)
		logger := api.GetLoggerFromContext(ctx).With(zap.String("user", user.Username))
		ctx = context.WithValue(ctx, ContextLogger, logger)
		next(w, r.WithContext(ctx), ps)
	}
}

// AdminOnlyMiddleware must run after AuthMiddleware. It
// rejects with 403 users without the ADMIN role.
func (api *APIHandler) AdminOnlyMiddleware(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		user, ok := GetAuthUserFromContext(r.Context())
		if !ok {
			api.Fail(w, r, ErrUnauthenticated, "no authenticated user")
			return
		}
		if !user.IsAdmin() {
			api.Fail(w, r, ErrForbidden, "admin role required")
			return
		}
		next(w, r, ps)
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
