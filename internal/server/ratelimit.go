package server

import (
	"net"
	"net/http"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

const maxTrackedClients = 1024

// uploadLimiter hands out one token bucket per client address. The least
// recently seen clients are evicted once maxTrackedClients is reached.
type uploadLimiter struct {
	clients *lru.Cache[string, *rate.Limiter]
	limit   rate.Limit
	burst   int
}

// newUploadLimiter returns nil when perMinute <= 0.
func newUploadLimiter(perMinute, burst int) *uploadLimiter {
	if perMinute <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	clients, err := lru.New[string, *rate.Limiter](maxTrackedClients)
	if err != nil {
		return nil
	}
	return &uploadLimiter{
		clients: clients,
		limit:   rate.Every(time.Minute / time.Duration(perMinute)),
		burst:   burst,
	}
}

func (l *uploadLimiter) allow(r *http.Request) bool {
	if l == nil {
		return true
	}
	key := clientAddress(r)
	limiter, ok := l.clients.Get(key)
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.clients.Add(key, limiter)
	}
	return limiter.Allow()
}

func clientAddress(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
