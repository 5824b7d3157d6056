package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"cafeteria-menu-system/core/domain"
	"cafeteria-menu-system/core/menu"
	"cafeteria-menu-system/core/projection"
	"cafeteria-menu-system/shared/httpx"
)

type createLocationRequest struct {
	ID       *uuid.UUID `json:"id,omitempty"`
	Name     string     `json:"name"`
	TimeZone string     `json:"time_zone"`
}

type idResponse struct {
	ID uuid.UUID `json:"id"`
}

func (h *Handler) listLocations(w http.ResponseWriter, r *http.Request) {
	locations, err := h.menu.ListLocations(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"locations": locations})
}

func (h *Handler) createLocation(w http.ResponseWriter, r *http.Request) {
	var req createLocationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error(), nil)
		return
	}
	cmd := menu.CreateLocation{Name: req.Name, TimeZone: req.TimeZone}
	if req.ID != nil {
		cmd.ID = *req.ID
	}
	id, err := h.menu.CreateLocation(r.Context(), cmd)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, idResponse{ID: id})
}

func (h *Handler) getLocation(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	l, err := h.menu.GetLocation(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, locationView(l))
}

func (h *Handler) activateLocation(w http.ResponseWriter, r *http.Request) {
	h.idCommand(w, r, h.menu.ActivateLocation)
}

func (h *Handler) deactivateLocation(w http.ResponseWriter, r *http.Request) {
	h.idCommand(w, r, h.menu.DeactivateLocation)
}

func (h *Handler) idCommand(w http.ResponseWriter, r *http.Request, op func(context.Context, uuid.UUID) error) {
	id, err := pathUUID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := op(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func locationView(l domain.Location) projection.LocationView {
	return projection.LocationView{ID: l.ID, Name: l.Name, TimeZone: l.TimeZone, Active: l.Active}
}
