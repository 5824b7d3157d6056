package handlers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"cafeteria-menu-system/core/domain"
	"cafeteria-menu-system/core/menu"
	"cafeteria-menu-system/shared/httpx"
)

const idempotencyKeyHeader = "Idempotency-Key"

type createDailyMenuRequest struct {
	Date string `json:"date"`
}

type menuItemRequest struct {
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	EmployeePrice   decimal.Decimal `json:"employee_price"`
	ExternalPrice   decimal.Decimal `json:"external_price"`
	Allergens       []string        `json:"allergens"`
	Type            string          `json:"type"`
	IsSpecialOffer  bool            `json:"is_special_offer"`
	SpecialOfferDay *string         `json:"special_offer_day,omitempty"`
	IdempotencyKey  string          `json:"idempotency_key,omitempty"`
}

func (req menuItemRequest) fields() (domain.MenuItemFields, error) {
	typ, err := domain.ParseMenuType(req.Type)
	if err != nil {
		return domain.MenuItemFields{}, err
	}
	f := domain.MenuItemFields{
		Name:           req.Name,
		Description:    req.Description,
		EmployeePrice:  req.EmployeePrice,
		ExternalPrice:  req.ExternalPrice,
		Allergens:      req.Allergens,
		Type:           typ,
		IsSpecialOffer: req.IsSpecialOffer,
	}
	if req.SpecialOfferDay != nil && strings.TrimSpace(*req.SpecialOfferDay) != "" {
		day, err := domain.ParseWeekday(*req.SpecialOfferDay)
		if err != nil {
			return domain.MenuItemFields{}, err
		}
		f.SpecialOfferDay = &day
	}
	return f, nil
}

func (h *Handler) createDailyMenu(w http.ResponseWriter, r *http.Request) {
	locationID, err := pathUUID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req createDailyMenuRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error(), nil)
		return
	}
	date, err := domain.ParseDate(req.Date)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	id, err := h.menu.CreateDailyMenu(r.Context(), locationID, date)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.invalidateToday(r.Context(), locationID, date)
	httpx.WriteJSON(w, http.StatusCreated, idResponse{ID: id})
}

func (h *Handler) getDailyMenu(w http.ResponseWriter, r *http.Request) {
	locationID, date, ok := h.menuPath(w, r)
	if !ok {
		return
	}
	view, err := h.menu.GetDailyMenu(r.Context(), locationID, date)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) addMenuItem(w http.ResponseWriter, r *http.Request) {
	locationID, date, ok := h.menuPath(w, r)
	if !ok {
		return
	}
	var req menuItemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error(), nil)
		return
	}
	fields, err := req.fields()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	key := strings.TrimSpace(r.Header.Get(idempotencyKeyHeader))
	if key == "" {
		key = req.IdempotencyKey
	}
	id, err := h.menu.AddMenuItem(r.Context(), menu.AddMenuItem{
		LocationID:     locationID,
		Date:           date,
		Fields:         fields,
		IdempotencyKey: key,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.invalidateToday(r.Context(), locationID, date)
	httpx.WriteJSON(w, http.StatusCreated, idResponse{ID: id})
}

func (h *Handler) removeMenuItem(w http.ResponseWriter, r *http.Request) {
	locationID, date, ok := h.menuPath(w, r)
	if !ok {
		return
	}
	itemID, err := pathUUID(r, "itemId")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.menu.RemoveMenuItem(r.Context(), locationID, date, itemID); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.invalidateToday(r.Context(), locationID, date)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) enableMenu(w http.ResponseWriter, r *http.Request) {
	h.menuToggle(w, r, true)
}

func (h *Handler) disableMenu(w http.ResponseWriter, r *http.Request) {
	h.menuToggle(w, r, false)
}

func (h *Handler) menuToggle(w http.ResponseWriter, r *http.Request, enabled bool) {
	locationID, date, ok := h.menuPath(w, r)
	if !ok {
		return
	}
	op := h.menu.DisableMenu
	if enabled {
		op = h.menu.EnableMenu
	}
	if err := op(r.Context(), locationID, date); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.invalidateToday(r.Context(), locationID, date)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) menuPath(w http.ResponseWriter, r *http.Request) (uuid.UUID, domain.Date, bool) {
	id, err := pathUUID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return uuid.Nil, domain.Date{}, false
	}
	date, err := pathDate(r, "date")
	if err != nil {
		h.writeError(w, r, err)
		return uuid.Nil, domain.Date{}, false
	}
	return id, date, true
}

func (h *Handler) todayMenu(w http.ResponseWriter, r *http.Request) {
	locationID, err := pathUUID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out, err := h.cachedTodayMenu(r.Context(), locationID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) menuItem(w http.ResponseWriter, r *http.Request) {
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
	httpx.WriteJSON(w, http.StatusOK, view)
}
