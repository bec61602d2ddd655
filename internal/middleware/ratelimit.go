package middleware

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"benefits-gateway/internal/domain"
)

// ipLimiterTTL を過ぎて使われていないクライアントの状態は破棄する。
const ipLimiterTTL = 30 * time.Minute

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter はクライアントIPごとのトークンバケットでリクエスト数を制限する。
// window あたり requests 件を上限とし、バーストも同じ件数まで許す。
type RateLimiter struct {
	requests int
	limit    rate.Limit
	now      func() time.Time

	mu        sync.Mutex
	clients   map[string]*ipLimiter
	lastSweep time.Time
}

// NewRateLimiter は新しいRateLimiterを生成する。
func NewRateLimiter(requests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: requests,
		limit:    rate.Every(window / time.Duration(requests)),
		now:      time.Now,
		clients:  make(map[string]*ipLimiter),
	}
}

// Allow はクライアントのリクエストを許可するかを返す。
func (l *RateLimiter) Allow(client string) bool {
	now := l.now()

	l.mu.Lock()
	if now.Sub(l.lastSweep) > time.Minute {
		for ip, c := range l.clients {
			if now.Sub(c.lastSeen) > ipLimiterTTL {
				delete(l.clients, ip)
			}
		}
		l.lastSweep = now
	}
	c, ok := l.clients[client]
	if !ok {
		c = &ipLimiter{limiter: rate.NewLimiter(l.limit, l.requests)}
		l.clients[client] = c
	}
	c.lastSeen = now
	l.mu.Unlock()

	return c.limiter.AllowN(now, 1)
}

// Handler は上限を超えたリクエストを429で拒否するミドルウェアを返す。
func (l *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("RateLimit-Limit", strconv.Itoa(l.requests))
		if !l.Allow(clientIP(r)) {
			WriteError(w, r, domain.ErrRateLimited)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
