package middleware

import (
	"context"
	"crypto/sha256"
	"fmt"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/diagnosis/parcel-bookings/internal/http/response"
	"github.com/diagnosis/parcel-bookings/pkg/logger"
)

// Limiter counts hits per key inside a fixed window.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// RateLimitConfig defines rate limiting parameters
type RateLimitConfig struct {
	Name     string                         // Namespace so routes do not share counters
	Requests int                            // Max requests per window
	Window   time.Duration                  // Time window duration
	KeyFunc  func(r *http.Request) []string // Function to generate rate limit keys
	SkipFunc func(r *http.Request) bool     // Function to skip rate limiting

	// TrustedProxies are the peers whose forwarding headers are believed by
	// the default key func. Empty means every request is keyed on RemoteAddr.
	TrustedProxies []netip.Prefix
}

// RateLimiter provides rate limiting functionality
type RateLimiter struct {
	limiter Limiter
	config  RateLimitConfig
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(limiter Limiter, config RateLimitConfig) *RateLimiter {
	if config.KeyFunc == nil {
		config.KeyFunc = ClientIPKeyFunc(config.TrustedProxies)
	}
	return &RateLimiter{limiter: limiter, config: config}
}

// Middleware returns the rate limiting middleware
func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rl.config.SkipFunc != nil && rl.config.SkipFunc(r) {
				next.ServeHTTP(w, r)
				return
			}

			for _, key := range rl.config.KeyFunc(r) {
				if !rl.checkRateLimit(r.Context(), key) {
					w.Header().Set("Retry-After", fmt.Sprintf("%d", int(rl.config.Window.Seconds())))
					response.RateLimit(w, "Too many requests. Try again later.")
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// checkRateLimit fails open: a limiter outage must not take the route down.
func (rl *RateLimiter) checkRateLimit(ctx context.Context, key string) bool {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	hashedKey := fmt.Sprintf("%s:%x", rl.config.Name, sha256.Sum256([]byte(key)))
	ok, err := rl.limiter.Allow(ctx, hashedKey, rl.config.Requests, rl.config.Window)
	if err != nil {
		logger.WarnContext(ctx, "rate limiter unavailable, allowing request", "limit", rl.config.Name, "error", err)
		return true
	}
	return ok
}

// ClientIPKeyFunc limits by client address, as resolved by ClientIP.
func ClientIPKeyFunc(trusted []netip.Prefix) func(r *http.Request) []string {
	return func(r *http.Request) []string {
		if ip := ClientIP(r, trusted); ip != "" {
			return []string{"ip:" + ip}
		}
		return nil
	}
}

// ClientIP returns the address of the client that sent r. X-Forwarded-For
// and X-Real-IP are only honoured when the direct peer is a trusted proxy;
// X-Forwarded-For is then read right to left and the first hop that is not
// itself a trusted proxy wins.
func ClientIP(r *http.Request, trusted []netip.Prefix) string {
	peer, ok := remoteIP(r.RemoteAddr)
	if !ok {
		return r.RemoteAddr
	}
	if !isTrusted(peer, trusted) {
		return peer.String()
	}

	if xff := r.Header.Values("X-Forwarded-For"); len(xff) > 0 {
		hops := strings.Split(strings.Join(xff, ","), ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
			if err != nil {
				break
			}
			hop = hop.Unmap()
			if !isTrusted(hop, trusted) {
				return hop.String()
			}
		}
	}
	if xri, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); err == nil {
		return xri.Unmap().String()
	}
	return peer.String()
}

func remoteIP(remoteAddr string) (netip.Addr, bool) {
	if ap, err := netip.ParseAddrPort(remoteAddr); err == nil {
		return ap.Addr().Unmap(), true
	}
	if ip, err := netip.ParseAddr(remoteAddr); err == nil {
		return ip.Unmap(), true
	}
	return netip.Addr{}, false
}

func isTrusted(ip netip.Addr, trusted []netip.Prefix) bool {
	for _, p := range trusted {
		if p.Contains(ip) {
			return true
		}
	}
	return false
}
