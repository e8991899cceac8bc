package api

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"gprbooking/internal/config"

	"golang.org/x/time/rate"
)

const (
	limiterIdleTTL    = 10 * time.Minute
	limiterSweepEvery = time.Minute
)

type limiterEntry struct {
	lim      *rate.Limiter
	lastSeen atomic.Int64
}

// rateLimiter hands out one token bucket per client key. A zero RPS disables it.
// Buckets idle for limiterIdleTTL are dropped.
type rateLimiter struct {
	limiters  sync.Map // map[string]*limiterEntry
	rps       float64
	burst     int
	lastSweep atomic.Int64
	now       func() time.Time
}

func newRateLimiter(cfg config.APIRateLimitConfig) *rateLimiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = 5
	}
	l := &rateLimiter{rps: cfg.RPS, burst: burst, now: time.Now}
	l.lastSweep.Store(l.now().UnixNano())
	return l
}

func (l *rateLimiter) enabled() bool { return l != nil && l.rps > 0 }

func (l *rateLimiter) allow(key string) bool {
	if !l.enabled() {
		return true
	}
	now := l.now().UnixNano()
	l.sweep(now)

	entry := l.getEntry(key)
	entry.lastSeen.Store(now)
	return entry.lim.Allow()
}

func (l *rateLimiter) getEntry(key string) *limiterEntry {
	if v, ok := l.limiters.Load(key); ok {
		return v.(*limiterEntry)
	}
	fresh := &limiterEntry{lim: rate.NewLimiter(rate.Limit(l.rps), l.burst)}
	actual, _ := l.limiters.LoadOrStore(key, fresh)
	return actual.(*limiterEntry)
}

func (l *rateLimiter) sweep(now int64) {
	last := l.lastSweep.Load()
	if now-last < int64(limiterSweepEvery) || !l.lastSweep.CompareAndSwap(last, now) {
		return
	}
	cutoff := now - int64(limiterIdleTTL)
	l.limiters.Range(func(k, v any) bool {
		if v.(*limiterEntry).lastSeen.Load() < cutoff {
			l.limiters.Delete(k)
		}
		return true
	})
}

func (l *rateLimiter) size() int {
	n := 0
	l.limiters.Range(func(_, _ any) bool { n++; return true })
	return n
}

// ipResolver finds the client address of a request. X-Forwarded-For is
// honoured only when the socket peer is a configured trusted proxy.
type ipResolver struct {
	trusted []netip.Prefix
}

// newIPResolver accepts single addresses and CIDR ranges; unparsable entries are skipped.
func newIPResolver(entries []string) *ipResolver {
	r := &ipResolver{}
	for _, e := range entries {
		if p, ok := parseProxyEntry(e); ok {
			r.trusted = append(r.trusted, p)
		}
	}
	return r
}

func parseProxyEntry(raw string) (netip.Prefix, bool) {
	raw = strings.TrimSpace(raw)
	if p, err := netip.ParsePrefix(raw); err == nil {
		return p.Masked(), true
	}
	if a, err := netip.ParseAddr(raw); err == nil {
		a = a.Unmap()
		return netip.PrefixFrom(a, a.BitLen()), true
	}
	return netip.Prefix{}, false
}

func (r *ipResolver) isTrusted(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range r.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// clientIP walks X-Forwarded-For from the right past trusted proxies and
// returns the first untrusted hop. Without a trusted peer it is the socket peer.
func (r *ipResolver) clientIP(req *http.Request) string {
	peer := remoteHost(req.RemoteAddr)
	peerIP, err := netip.ParseAddr(peer)
	if err != nil || len(r.trusted) == 0 || !r.isTrusted(peerIP) {
		return peer
	}

	hops := strings.Split(strings.Join(req.Header.Values("X-Forwarded-For"), ","), ",")
	client := peer
	for i := len(hops) - 1; i >= 0; i-- {
		hop, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
		if err != nil {
			break
		}
		client = hop.Unmap().String()
		if !r.isTrusted(hop) {
			break
		}
	}
	return client
}

func remoteHost(remoteAddr string) string {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil && host != "" {
		return host
	}
	if remoteAddr != "" {
		return remoteAddr
	}
	return clientKeyUnknown
}
