// Package handlers exposes the menu service over HTTP.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"cafeteria-menu-system/core/domain"
	"cafeteria-menu-system/core/eventlog"
	"cafeteria-menu-system/core/menu"
	"cafeteria-menu-system/shared/cachex"
	"cafeteria-menu-system/shared/httpx"
	"cafeteria-menu-system/shared/logx"
	"cafeteria-menu-system/shared/metricsx"
)

// StatusClientClosedRequest is written when the caller went away before the
// command finished.
const StatusClientClosedRequest = 499

type Handler struct {
	menu     *menu.Service
	cache    *cachex.Client
	cacheTTL time.Duration
	logger   logx.Logger
}

type Option func(*Handler)

// WithTodayMenuCache caches today-menu responses per location and date.
func WithTodayMenuCache(c *cachex.Client, ttl time.Duration) Option {
	return func(h *Handler) {
		h.cache = c
		h.cacheTTL = ttl
	}
}

func WithLogger(l logx.Logger) Option { return func(h *Handler) { h.logger = l } }

func New(svc *menu.Service, opts ...Option) *Handler {
	h := &Handler{menu: svc, logger: logx.Discard()}
	for _, opt := range opts {
		opt(h)
	}
	if h.cacheTTL <= 0 {
		h.cache = nil
	}
	return h
}

// Guards wrap the route groups. A nil guard leaves the group open.
type Guards struct {
	Admin func(http.Handler) http.Handler
	Kiosk func(http.Handler) http.Handler
}

func (h *Handler) Register(mux *http.ServeMux, g Guards) {
	admin := guard(g.Admin)
	kiosk := guard(g.Kiosk)

	mux.HandleFunc("GET /api/v1/locations", h.listLocations)
	mux.HandleFunc("GET /api/v1/locations/{id}/menu/today", h.todayMenu)
	mux.HandleFunc("GET /api/v1/menu-items/{id}", h.menuItem)

	mux.Handle("POST /api/v1/admin/locations", admin(http.HandlerFunc(h.createLocation)))
	mux.Handle("GET /api/v1/admin/locations/{id}", admin(http.HandlerFunc(h.getLocation)))
	mux.Handle("POST /api/v1/admin/locations/{id}/activate", admin(http.HandlerFunc(h.activateLocation)))
	mux.Handle("POST /api/v1/admin/locations/{id}/deactivate", admin(http.HandlerFunc(h.deactivateLocation)))

	mux.Handle("POST /api/v1/admin/devices", admin(http.HandlerFunc(h.registerDevice)))
	mux.Handle("POST /api/v1/admin/devices/{id}/enable", admin(http.HandlerFunc(h.enableDevice)))
	mux.Handle("POST /api/v1/admin/devices/{id}/disable", admin(http.HandlerFunc(h.disableDevice)))

	mux.Handle("POST /api/v1/admin/locations/{id}/menus", admin(http.HandlerFunc(h.createDailyMenu)))
	mux.Handle("GET /api/v1/admin/locations/{id}/menus/{date}", admin(http.HandlerFunc(h.getDailyMenu)))
	mux.Handle("POST /api/v1/admin/locations/{id}/menus/{date}/items", admin(http.HandlerFunc(h.addMenuItem)))
	mux.Handle("DELETE /api/v1/admin/locations/{id}/menus/{date}/items/{itemId}", admin(http.HandlerFunc(h.removeMenuItem)))
	mux.Handle("POST /api/v1/admin/locations/{id}/menus/{date}/enable", admin(http.HandlerFunc(h.enableMenu)))
	mux.Handle("POST /api/v1/admin/locations/{id}/menus/{date}/disable", admin(http.HandlerFunc(h.disableMenu)))

	mux.Handle("GET /api/v1/kiosk/today", kiosk(http.HandlerFunc(h.kioskToday)))
	mux.Handle("GET /api/v1/kiosk/menu-items/{id}", kiosk(http.HandlerFunc(h.kioskMenuItem)))
}

func guard(g func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	if g == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return g
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, domain.NewValidationError(name, "must be a uuid")
	}
	return id, nil
}

func pathDate(r *http.Request, name string) (domain.Date, error) {
	return domain.ParseDate(r.PathValue(name))
}

// writeError maps service errors onto the error envelope.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.Is(err, domain.ErrDeviceDisabled):
		httpx.WriteError(w, r, http.StatusForbidden, "PERMISSION_DENIED", "device disabled", nil)
	case domain.IsNotFound(err):
		httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.As(err, &verr):
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", verr.Error(), map[string]string{"field": verr.Field})
	case errors.Is(err, eventlog.ErrVersionConflict):
		httpx.WriteError(w, r, http.StatusConflict, "ABORTED", "concurrent modification, retry the request", nil)
	case errors.Is(err, context.Canceled):
		httpx.WriteError(w, r, StatusClientClosedRequest, "CANCELLED", "request cancelled", nil)
	case errors.Is(err, context.DeadlineExceeded):
		httpx.WriteError(w, r, http.StatusGatewayTimeout, "DEADLINE_EXCEEDED", "request deadline exceeded", nil)
	default:
		h.logger.Error(r.Context(), "request_failed", "request failed",
			slog.String("error_code", "INTERNAL_ERROR"),
			slog.String("error", err.Error()),
			slog.String("path", r.URL.Path),
		)
		httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error", nil)
	}
}

func (h *Handler) invalidateToday(ctx context.Context, locationID uuid.UUID, date domain.Date) {
	if h.cache == nil {
		return
	}
	if err := h.cache.Delete(ctx, h.cache.TodayMenuKey(locationID, date.String())); err != nil {
		h.logger.Warn(ctx, "cache_invalidate_failed", "today menu cache invalidation failed",
			slog.String("error", err.Error()),
			slog.String("location_id", locationID.String()),
			slog.String("date", date.String()),
		)
	}
}

// cachedTodayMenu serves GetTodayMenu through the optional cache.
func (h *Handler) cachedTodayMenu(ctx context.Context, locationID uuid.UUID) (menu.TodayMenu, error) {
	if h.cache == nil {
		return h.menu.GetTodayMenu(ctx, locationID)
	}
	date, err := h.menu.TodayIn(ctx, locationID)
	if err != nil {
		return menu.TodayMenu{}, err
	}
	key := h.cache.TodayMenuKey(locationID, date.String())
	var cached menu.TodayMenu
	hit, err := h.cache.GetJSON(ctx, key, &cached)
	if err != nil {
		h.logger.Warn(ctx, "cache_read_failed", "today menu cache read failed", slog.String("error", err.Error()))
	}
	if hit {
		// An entry written by a reader that raced a menu command carries the
		// older version and is replaced.
		current, err := h.menu.DailyMenuVersion(ctx, locationID, date)
		hit = err == nil && current == cached.Version
	}
	metricsx.IncCacheLookup("today_menu", hit)
	if hit {
		return cached, nil
	}

	out, err := h.menu.GetTodayMenu(ctx, locationID)
	if err != nil {
		return menu.TodayMenu{}, err
	}
	if err := h.cache.SetJSON(ctx, h.cache.TodayMenuKey(locationID, out.Date.String()), out, h.cacheTTL); err != nil {
		h.logger.Warn(ctx, "cache_write_failed", "today menu cache write failed", slog.String("error", err.Error()))
	}
	return out, nil
}
