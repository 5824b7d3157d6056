package handlers

import (
	"net/http"

	"cafeteria-menu-system/core/domain"
	"cafeteria-menu-system/shared/devicex"
	"cafeteria-menu-system/shared/httpx"
)

// kioskToday serves the today menu of the calling device's location.
func (h *Handler) kioskToday(w http.ResponseWriter, r *http.Request) {
	d, ok := devicex.FromContext(r.Context())
	if !ok {
		httpx.WriteError(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", "missing device context", nil)
		return
	}
	out, err := h.cachedTodayMenu(r.Context(), d.LocationID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

// kioskMenuItem only shows items of the device's own location.
func (h *Handler) kioskMenuItem(w http.ResponseWriter, r *http.Request) {
	d, ok := devicex.FromContext(r.Context())
	if !ok {
		httpx.WriteError(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", "missing device context", nil)
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	view, err := h.menu.GetMenuItem(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if view.LocationID != d.LocationID {
		h.writeError(w, r, domain.ErrMenuItemNotFound)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, view)
}
