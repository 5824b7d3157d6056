package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"cafeteria-menu-system/core/domain"
	"cafeteria-menu-system/shared/devicex"
	"cafeteria-menu-system/shared/httpx"
	"cafeteria-menu-system/shared/logx"
)

const APIKeyHeader = "X-API-Key"

type DeviceAuthenticator interface {
	AuthenticateDevice(ctx context.Context, apiKey string) (domain.Device, error)
}

// APIKeyMiddleware authenticates kiosk devices by the key handed out at
// registration.
type APIKeyMiddleware struct {
	Devices DeviceAuthenticator
	Logger  logx.Logger
	Skip    func(*http.Request) bool
}

func (m APIKeyMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Skip != nil && m.Skip(r) {
			next.ServeHTTP(w, r)
			return
		}
		if m.Devices == nil {
			httpx.WriteError(w, r, http.StatusServiceUnavailable, "FAILED_PRECONDITION", "device authentication not configured", nil)
			return
		}

		key := strings.TrimSpace(r.Header.Get(APIKeyHeader))
		if key == "" {
			httpx.WriteError(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", "missing api key", nil)
			return
		}
		device, err := m.Devices.AuthenticateDevice(r.Context(), key)
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrDeviceDisabled):
			httpx.WriteError(w, r, http.StatusForbidden, "PERMISSION_DENIED", "device disabled", nil)
			return
		case domain.IsNotFound(err):
			httpx.WriteError(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", "invalid api key", nil)
			return
		default:
			m.Logger.Error(r.Context(), "device_auth_failed", "device authentication failed",
				slog.String("error_code", "INTERNAL_ERROR"),
				slog.String("error", err.Error()),
			)
			httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "device authentication failed", nil)
			return
		}

		ctx := devicex.WithDevice(r.Context(), devicex.DeviceContext{
			ID:         device.ID,
			Name:       device.Name,
			Type:       device.Type.String(),
			LocationID: device.LocationID,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
