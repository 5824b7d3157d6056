package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CORSMiddleware serves the browser-based admin console and kiosk screens.
type CORSMiddleware struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration
	Skip             func(*http.Request) bool
}

func (m CORSMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Skip != nil && m.Skip(r) {
			next.ServeHTTP(w, r)
			return
		}

		origin := strings.TrimSpace(r.Header.Get("Origin"))
		if allowed := m.allowOrigin(origin); allowed != "" {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", allowed)
			h.Add("Vary", "Origin")
			if m.AllowCredentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}
			if len(m.exposedHeaders()) > 0 {
				h.Set("Access-Control-Expose-Headers", strings.Join(m.exposedHeaders(), ", "))
			}
		}

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			h := w.Header()
			h.Set("Access-Control-Allow-Methods", strings.Join(m.allowedMethods(), ", "))
			h.Set("Access-Control-Allow-Headers", strings.Join(m.allowedHeaders(), ", "))
			if m.MaxAge > 0 {
				h.Set("Access-Control-Max-Age", strconv.Itoa(max(int(m.MaxAge.Seconds()), 0)))
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// allowOrigin returns the value for Access-Control-Allow-Origin, or "" when
// the origin is not allowed. With credentials the origin is echoed, never "*".
func (m CORSMiddleware) allowOrigin(origin string) string {
	if origin == "" {
		return ""
	}
	wildcard := len(m.AllowedOrigins) == 0
	for _, allowed := range m.AllowedOrigins {
		allowed = strings.TrimSpace(allowed)
		if allowed == "*" {
			wildcard = true
			break
		}
		if allowed != "" && strings.EqualFold(allowed, origin) {
			return origin
		}
	}
	if !wildcard {
		return ""
	}
	if m.AllowCredentials {
		return origin
	}
	return "*"
}

func (m CORSMiddleware) allowedMethods() []string {
	if len(m.AllowedMethods) > 0 {
		return m.AllowedMethods
	}
	return []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}
}

func (m CORSMiddleware) allowedHeaders() []string {
	if len(m.AllowedHeaders) > 0 {
		return m.AllowedHeaders
	}
	return []string{"Authorization", "Content-Type", "X-Request-ID", APIKeyHeader, "Idempotency-Key"}
}

func (m CORSMiddleware) exposedHeaders() []string {
	if len(m.ExposedHeaders) > 0 {
		return m.ExposedHeaders
	}
	return []string{"X-Request-ID"}
}
