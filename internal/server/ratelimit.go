package server

import (
	"net"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ipRateLimiter keeps one token bucket per client IP. Loopback clients are
// never limited.
type ipRateLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientLimiter
	rps     float64
	burst   int
	now     func() time.Time
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newIPRateLimiter(rps float64, burst int) *ipRateLimiter {
	return &ipRateLimiter{
		clients: make(map[string]*clientLimiter),
		rps:     rps,
		burst:   burst,
		now:     time.Now,
	}
}

func (l *ipRateLimiter) allow(ip string) bool {
	if l == nil || l.rps <= 0 || l.burst <= 0 {
		return true
	}

	clientIP := normalizeRateLimitIP(ip)
	if clientIP == "" || isLoopbackClientIP(clientIP) {
		return true
	}

	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	client, ok := l.clients[clientIP]
	if !ok {
		client = &clientLimiter{limiter: rate.NewLimiter(rate.Limit(l.rps), l.burst)}
		l.clients[clientIP] = client
	}
	client.lastSeen = now
	return client.limiter.AllowN(now, 1)
}

// cleanup forgets clients idle for longer than maxAge.
func (l *ipRateLimiter) cleanup(maxAge time.Duration) {
	if l == nil || maxAge <= 0 {
		return
	}

	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	for ip, client := range l.clients {
		if client == nil || now.Sub(client.lastSeen) > maxAge {
			delete(l.clients, ip)
		}
	}
}

func (l *ipRateLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

func normalizeRateLimitIP(ip string) string {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return ""
	}

	if strings.EqualFold(ip, "localhost") {
		return "localhost"
	}

	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}

	ip = strings.Trim(ip, "[]")
	if zoneIndex := strings.Index(ip, "%"); zoneIndex >= 0 {
		ip = ip[:zoneIndex]
	}

	if parsed := net.ParseIP(ip); parsed != nil {
		return parsed.String()
	}

	return strings.ToLower(ip)
}

func isLoopbackClientIP(ip string) bool {
	if strings.EqualFold(strings.TrimSpace(ip), "localhost") {
		return true
	}

	parsed := net.ParseIP(strings.TrimSpace(ip))
	return parsed != nil && parsed.IsLoopback()
}
