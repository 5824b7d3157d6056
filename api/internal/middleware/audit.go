package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"cafeteria-menu-system/api/internal/models"
	"cafeteria-menu-system/shared/authx"
	"cafeteria-menu-system/shared/devicex"
	"cafeteria-menu-system/shared/httpx"
	"cafeteria-menu-system/shared/logx"
)

type AuditWriter interface {
	WriteAuditLog(ctx context.Context, entries []models.AuditLog) error
}

// AuditMiddleware records administrative writes and rejected
// authentications. Entries are written in the background.
type AuditMiddleware struct {
	Enabled bool
	Repo    AuditWriter
	Logger  logx.Logger
	Skip    func(*http.Request) bool
	Timeout time.Duration
}

func (m AuditMiddleware) Wrap(next http.Handler) http.Handler {
	if !m.Enabled || m.Repo == nil {
		return next
	}
	timeout := m.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Skip != nil && m.Skip(r) {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		lrw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		ctx, device := devicex.Track(r.Context())
		next.ServeHTTP(lrw, r.WithContext(ctx))

		if !shouldAudit(r, lrw.statusCode) {
			return
		}

		resourceType, resourceID := resourceFromPath(r.URL.Path)
		entry := models.AuditLog{
			OccurredAt:   time.Now().UTC(),
			Action:       actionForRequest(r, lrw.statusCode),
			ResourceType: resourceType,
			ResourceID:   resourceID,
			RequestID:    httpx.RequestIDFromContext(r.Context()),
			Method:       r.Method,
			Path:         r.URL.Path,
			StatusCode:   lrw.statusCode,
			DurationMS:   time.Since(start).Milliseconds(),
			ClientIP:     clientIP(r),
			UserAgent:    strings.TrimSpace(r.UserAgent()),
			Details:      auditDetails(r, lrw.statusCode),
		}
		if resourceType != nil && *resourceType == "locations" && resourceID != nil {
			if id, err := uuid.Parse(*resourceID); err == nil {
				entry.LocationID = &id
			}
		}
		if d, ok := device(); ok {
			entry.DeviceID = &d.ID
			entry.LocationID = &d.LocationID
		}
		if auth, ok := authx.FromContext(r.Context()); ok {
			entry.Subject = auth.Subject
		}

		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			if err := m.Repo.WriteAuditLog(ctx, []models.AuditLog{entry}); err != nil {
				m.Logger.Warn(context.Background(), "audit_write_failed", "audit write failed",
					slog.String("error_code", "INTERNAL_ERROR"),
					slog.String("error", err.Error()),
				)
			}
		}()
	})
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *loggingResponseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func shouldAudit(r *http.Request, statusCode int) bool {
	if statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden {
		return true
	}
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return strings.Contains(r.URL.Path, "/admin/")
}

func actionForRequest(r *http.Request, statusCode int) string {
	switch statusCode {
	case http.StatusUnauthorized:
		return "auth_failed"
	case http.StatusForbidden:
		return "forbidden"
	}
	path := strings.TrimSuffix(r.URL.Path, "/")
	for _, verb := range []string{"activate", "deactivate", "enable", "disable"} {
		if strings.HasSuffix(path, "/"+verb) {
			return verb
		}
	}
	switch r.Method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}

func auditDetails(r *http.Request, statusCode int) []byte {
	details := map[string]any{
		"status_code": statusCode,
	}
	if key := strings.TrimSpace(r.Header.Get("Idempotency-Key")); key != "" {
		details["idempotency_key"] = key
	}
	b, err := sonic.Marshal(details)
	if err != nil {
		return nil
	}
	return b
}

var auditedResources = map[string]bool{
	"locations":  true,
	"devices":    true,
	"menu-items": true,
}

// resourceFromPath finds the first audited collection in an /api/v1 path
// and the segment that follows it.
func resourceFromPath(path string) (*string, *string) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 3 || parts[0] != "api" || parts[1] != "v1" {
		return nil, nil
	}
	for i := 2; i < len(parts); i++ {
		if !auditedResources[parts[i]] {
			continue
		}
		resource := parts[i]
		var id *string
		if i+1 < len(parts) {
			if val := strings.TrimSpace(parts[i+1]); val != "" {
				id = &val
			}
		}
		return &resource, id
	}
	return nil, nil
}

func clientIP(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); v != "" {
		first, _, _ := strings.Cut(v, ",")
		return strings.TrimSpace(first)
	}
	if v := strings.TrimSpace(r.Header.Get("X-Real-IP")); v != "" {
		return v
	}
	return r.RemoteAddr
}
