package handlers

import (
	"net/http"

	"github.com/google/uuid"

	"cafeteria-menu-system/core/domain"
	"cafeteria-menu-system/core/menu"
	"cafeteria-menu-system/shared/httpx"
)

type registerDeviceRequest struct {
	Name       string    `json:"name"`
	Type       string    `json:"type"`
	LocationID uuid.UUID `json:"location_id"`
}

func (h *Handler) registerDevice(w http.ResponseWriter, r *http.Request) {
	var req registerDeviceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error(), nil)
		return
	}
	typ, err := domain.ParseDeviceType(req.Type)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out, err := h.menu.RegisterDevice(r.Context(), menu.RegisterDevice{
		Name:       req.Name,
		Type:       typ,
		LocationID: req.LocationID,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	// the key is shown once; keep it out of shared caches
	w.Header().Set("Cache-Control", "no-store")
	httpx.WriteJSON(w, http.StatusCreated, out)
}

func (h *Handler) enableDevice(w http.ResponseWriter, r *http.Request) {
	h.idCommand(w, r, h.menu.EnableDevice)
}

func (h *Handler) disableDevice(w http.ResponseWriter, r *http.Request) {
	h.idCommand(w, r, h.menu.DisableDevice)
}
