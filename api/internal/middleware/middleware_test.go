package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"cafeteria-menu-system/api/internal/models"
	"cafeteria-menu-system/core/domain"
	"cafeteria-menu-system/core/eventlog"
	"cafeteria-menu-system/shared/authx"
	"cafeteria-menu-system/shared/devicex"
	"cafeteria-menu-system/shared/logx"
)

type stubVerifier struct {
	auth authx.AuthContext
	err  error
}

func (v stubVerifier) Verify(context.Context, string) (authx.AuthContext, error) {
	return v.auth, v.err
}

type stubDevices map[string]domain.Device

func (s stubDevices) AuthenticateDevice(_ context.Context, key string) (domain.Device, error) {
	switch key {
	case "boom":
		return domain.Device{}, errors.New("store down")
	case "disabled":
		return domain.Device{}, &domain.ValidationError{Field: "api_key", Message: "device disabled", Err: domain.ErrDeviceDisabled}
	}
	d, ok := s[key]
	if !ok {
		return domain.Device{}, domain.ErrDeviceNotFound
	}
	return d, nil
}

type auditRecorder chan models.AuditLog

func (a auditRecorder) WriteAuditLog(_ context.Context, entries []models.AuditLog) error {
	for _, e := range entries {
		a <- e
	}
	return nil
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestAuthMiddleware(t *testing.T) {
	admin := authx.AuthContext{Subject: "alice", Roles: []string{"menu-admin"}}
	tests := []struct {
		name     string
		verifier authx.Verifier
		role     string
		header   string
		want     int
	}{
		{name: "no verifier", header: "Bearer t", want: http.StatusServiceUnavailable},
		{name: "missing token", verifier: stubVerifier{auth: admin}, want: http.StatusUnauthorized},
		{name: "invalid token", verifier: stubVerifier{err: authx.ErrInvalidToken}, header: "Bearer t", want: http.StatusUnauthorized},
		{name: "missing role", verifier: stubVerifier{auth: authx.AuthContext{Subject: "bob"}}, role: "menu-admin", header: "Bearer t", want: http.StatusForbidden},
		{name: "role matches", verifier: stubVerifier{auth: admin}, role: "MENU-ADMIN", header: "bearer t", want: http.StatusOK},
		{name: "no role required", verifier: stubVerifier{auth: authx.AuthContext{Subject: "bob"}}, header: "Bearer t", want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			h := AuthMiddleware{Verifier: tt.verifier, Role: tt.role}.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				auth, _ := authx.FromContext(r.Context())
				seen = auth.Subject
			}))
			req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/locations", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rec.Code)
			}
			if tt.want == http.StatusOK && seen == "" {
				t.Fatalf("auth context not attached")
			}
		})
	}
}

func TestAPIKeyMiddleware(t *testing.T) {
	device := domain.Device{ID: uuid.New(), LocationID: uuid.New(), Name: "Lobby", Type: domain.DeviceTypeDailyMenu, Enabled: true}
	devices := stubDevices{"good": device}

	tests := []struct {
		key  string
		want int
	}{
		{key: "", want: http.StatusUnauthorized},
		{key: "unknown", want: http.StatusUnauthorized},
		{key: "disabled", want: http.StatusForbidden},
		{key: "boom", want: http.StatusInternalServerError},
		{key: "good", want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("key=%q", tt.key), func(t *testing.T) {
			var got devicex.DeviceContext
			h := APIKeyMiddleware{Devices: devices, Logger: logx.Discard()}.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got, _ = devicex.FromContext(r.Context())
			}))
			req := httptest.NewRequest(http.MethodGet, "/api/v1/kiosk/today", nil)
			if tt.key != "" {
				req.Header.Set(APIKeyHeader, tt.key)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rec.Code)
			}
			if tt.want == http.StatusOK && (got.ID != device.ID || got.LocationID != device.LocationID || got.Type != "DailyMenu") {
				t.Fatalf("unexpected device context %+v", got)
			}
		})
	}
}

func TestAPIKeyMiddlewareWithoutDependencies(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/kiosk/today", nil)
	req.Header.Set(APIKeyHeader, "boom")

	rec := httptest.NewRecorder()
	APIKeyMiddleware{}.Wrap(okHandler).ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without an authenticator, got %d", rec.Code)
	}

	// The zero logger is silent, so a lookup failure still answers.
	rec = httptest.NewRecorder()
	APIKeyMiddleware{Devices: stubDevices{}}.Wrap(okHandler).ServeHTTP(rec, req)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 for a failing lookup, got %d", rec.Code)
	}
}

func TestStoreRequired(t *testing.T) {
	rec := httptest.NewRecorder()
	StoreRequiredMiddleware{}.Wrap(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/locations", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without a log, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	StoreRequiredMiddleware{Log: eventlog.NewMemory()}.Wrap(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/locations", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	h := CORSMiddleware{AllowedOrigins: []string{"https://admin.example"}, MaxAge: time.Minute}.Wrap(okHandler)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/locations", nil)
	req.Header.Set("Origin", "https://admin.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://admin.example" {
		t.Fatalf("unexpected allow origin %q", got)
	}
	if got := rec.Header().Get("Access-Control-Max-Age"); got != "60" {
		t.Fatalf("unexpected max age %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/locations", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unexpected allow origin for foreign site %q", got)
	}
}

func TestCORSWildcard(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://kiosk.example")

	rec := httptest.NewRecorder()
	CORSMiddleware{}.Wrap(okHandler).ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("expected wildcard, got %q", got)
	}

	rec = httptest.NewRecorder()
	CORSMiddleware{AllowCredentials: true}.Wrap(okHandler).ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://kiosk.example" {
		t.Fatalf("credentials must echo the origin, got %q", got)
	}
}

func TestClientRateLimiter(t *testing.T) {
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	l := NewClientRateLimiter(1, 2, time.Minute)
	l.now = func() time.Time { return now }

	if !l.Allow("a") || !l.Allow("a") {
		t.Fatalf("burst should be allowed")
	}
	if l.Allow("a") {
		t.Fatalf("third request should be limited")
	}
	if !l.Allow("b") {
		t.Fatalf("other clients have their own bucket")
	}
	now = now.Add(time.Second)
	if !l.Allow("a") {
		t.Fatalf("token should refill after a second")
	}
	now = now.Add(2 * time.Minute)
	l.Allow("c")
	if _, ok := l.clients["a"]; ok {
		t.Fatalf("idle client should be forgotten")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	h := RateLimitMiddleware{Limiter: NewClientRateLimiter(1, 1, time.Minute)}.Wrap(okHandler)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/locations", nil)
	req.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Retry-After") == "" {
		t.Fatalf("expected 429 with Retry-After, got %d", rec.Code)
	}
}

func TestAuditRecordsAdminWrite(t *testing.T) {
	recorder := make(auditRecorder, 1)
	locationID := uuid.New()
	h := AuditMiddleware{Enabled: true, Repo: recorder, Logger: logx.Discard()}.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/locations/"+locationID.String()+"/deactivate", nil)
	req = req.WithContext(authx.WithAuth(req.Context(), authx.AuthContext{Subject: "alice"}))
	h.ServeHTTP(httptest.NewRecorder(), req)

	select {
	case entry := <-recorder:
		if entry.Action != "deactivate" || entry.Subject != "alice" || entry.StatusCode != http.StatusNoContent {
			t.Fatalf("unexpected entry %+v", entry)
		}
		if entry.ResourceType == nil || *entry.ResourceType != "locations" || entry.LocationID == nil || *entry.LocationID != locationID {
			t.Fatalf("unexpected resource %+v", entry)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("audit entry not written")
	}
}

func TestAuditRecordsDevice(t *testing.T) {
	recorder := make(auditRecorder, 1)
	device := devicex.DeviceContext{ID: uuid.New(), LocationID: uuid.New()}
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = devicex.WithDevice(r.Context(), device)
		w.WriteHeader(http.StatusForbidden)
	})
	h := AuditMiddleware{Enabled: true, Repo: recorder}.Wrap(inner)
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/kiosk/today", nil))

	select {
	case entry := <-recorder:
		if entry.Action != "forbidden" || entry.DeviceID == nil || *entry.DeviceID != device.ID {
			t.Fatalf("unexpected entry %+v", entry)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("audit entry not written")
	}
}

func TestAuditSkipsPublicReads(t *testing.T) {
	recorder := make(auditRecorder, 1)
	h := AuditMiddleware{Enabled: true, Repo: recorder}.Wrap(okHandler)
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/locations", nil))
	select {
	case entry := <-recorder:
		t.Fatalf("public read should not be audited: %+v", entry)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestResourceFromPath(t *testing.T) {
	tests := []struct {
		path         string
		resource, id string
	}{
		{path: "/api/v1/admin/devices/abc/enable", resource: "devices", id: "abc"},
		{path: "/api/v1/menu-items/xyz", resource: "menu-items", id: "xyz"},
		{path: "/api/v1/admin/locations", resource: "locations"},
		{path: "/healthz"},
	}
	for _, tt := range tests {
		res, id := resourceFromPath(tt.path)
		gotRes, gotID := "", ""
		if res != nil {
			gotRes = *res
		}
		if id != nil {
			gotID = *id
		}
		if gotRes != tt.resource || gotID != tt.id {
			t.Fatalf("%s: got (%q, %q), want (%q, %q)", tt.path, gotRes, gotID, tt.resource, tt.id)
		}
	}
}
