package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/storefront-backend/api/responses"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/storefront-backend/pkg/redis"
)

// RateLimitPolicy is a fixed-window budget per client IP.
type RateLimitPolicy struct {
	Window         time.Duration
	Limit          int64
	BypassPrefixes []string
}

func (p RateLimitPolicy) enabled() bool {
	return p.Window > 0 && p.Limit > 0
}

func (p RateLimitPolicy) bypassed(path string) bool {
	for _, prefix := range p.BypassPrefixes {
		prefix = strings.TrimSpace(prefix)
		if prefix != "" && strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// RateLimit enforces the policy. When the store is unreachable requests are
// let through and the failure is logged.
func RateLimit(policy RateLimitPolicy, store pkgredis.RateLimitStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || store == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if policy.bypassed(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			ip := clientIP(r)
			win, err := store.FixedWindowAllow(ctx, "ip:"+ip, policy.Limit, policy.Window)
			if err != nil {
				if logg != nil {
					logg.Error(logg.WithField(ctx, "ip", maskIP(ip)), "rate_limit.store_unavailable", err)
				}
				next.ServeHTTP(w, r)
				return
			}

			remaining := policy.Limit - win.Count
			if remaining < 0 {
				remaining = 0
			}
			resetSeconds := int64((win.ResetIn + time.Second - 1) / time.Second)
			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.FormatInt(policy.Limit, 10))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(resetSeconds, 10))

			if !win.Allowed {
				h.Set("Retry-After", strconv.FormatInt(resetSeconds, 10))
				if logg != nil {
					logg.Warn(logg.WithFields(ctx, map[string]any{
						"ip":       maskIP(ip),
						"attempts": win.Count,
						"limit":    policy.Limit,
					}), "rate_limit.blocked")
				}
				responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if header := r.Header.Get("X-Forwarded-For"); header != "" {
		for _, part := range strings.Split(header, ",") {
			if ip := strings.TrimSpace(part); ip != "" {
				return ip
			}
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}

// maskIP drops the host part of an address before it reaches the logs:
// the last IPv4 octet, or everything past the first two IPv6 groups.
func maskIP(ip string) string {
	switch {
	case ip == "" || ip == "unknown":
		return ip
	case strings.Contains(ip, "."):
		if parts := strings.Split(ip, "."); len(parts) == 4 {
			return strings.Join(parts[:3], ".") + ".xxx"
		}
	case strings.Contains(ip, ":"):
		groups := strings.FieldsFunc(ip, func(r rune) bool { return r == ':' })
		if len(groups) >= 2 {
			return groups[0] + ":" + groups[1] + "::/??"
		}
	}
	return ip
}
