package domain

import (
	"slices"
	"time"

	"github.com/google/uuid"

	"cafeteria-menu-system/shared/workflow"
)

// DailyMenu is keyed by (location, date). Items keep insertion order and
// are unique by id.
type DailyMenu struct {
	ID         uuid.UUID
	LocationID uuid.UUID
	Date       Date
	Enabled    bool
	Version    int

	items []MenuItem
}

func NewDailyMenu(locationID uuid.UUID, date Date, now time.Time) (DailyMenuCreated, error) {
	if locationID == uuid.Nil {
		return DailyMenuCreated{}, NewValidationError("location_id", "location id is required")
	}
	if date.IsZero() {
		return DailyMenuCreated{}, NewValidationError("date", "date is required")
	}
	return DailyMenuCreated{
		Header:      NewHeader(now),
		DailyMenuID: DailyMenuID(locationID, date),
		LocationID:  locationID,
		Date:        date,
	}, nil
}

func (m DailyMenu) Exists() bool { return m.Version > 0 }

func (m DailyMenu) StreamKey() string { return DailyMenuStream(m.LocationID, m.Date) }

// Items returns a copy of the live collection.
func (m DailyMenu) Items() []MenuItem {
	out := make([]MenuItem, len(m.items))
	copy(out, m.items)
	return out
}

// Visible returns the items a customer may see: none while disabled.
func (m DailyMenu) Visible() []MenuItem {
	if !m.Enabled {
		return []MenuItem{}
	}
	return m.Items()
}

func (m DailyMenu) Item(id uuid.UUID) (MenuItem, bool) {
	if i := m.indexOf(id); i >= 0 {
		return m.items[i], true
	}
	return MenuItem{}, false
}

func (m DailyMenu) AddItem(item MenuItem, now time.Time) MenuItemAdded {
	return MenuItemAdded{
		Header:      NewHeader(now),
		DailyMenuID: m.ID,
		LocationID:  m.LocationID,
		Date:        m.Date,
		Item:        item,
	}
}

// RemoveItem returns false when the item is not on the menu.
func (m DailyMenu) RemoveItem(id uuid.UUID, now time.Time) (MenuItemRemoved, bool) {
	if m.indexOf(id) < 0 {
		return MenuItemRemoved{}, false
	}
	return MenuItemRemoved{
		Header:      NewHeader(now),
		DailyMenuID: m.ID,
		LocationID:  m.LocationID,
		Date:        m.Date,
		MenuItemID:  id,
	}, true
}

func (m DailyMenu) SetEnabled(enabled bool, now time.Time) (DailyMenuEvent, bool) {
	from := workflow.ToggleState(workflow.KindDailyMenu, m.Enabled)
	to := workflow.ToggleState(workflow.KindDailyMenu, enabled)
	switch workflow.EventTypeForTransition(workflow.KindDailyMenu, from, to) {
	case TypeDailyMenuEnabled:
		return DailyMenuEnabled{Header: NewHeader(now), DailyMenuID: m.ID, LocationID: m.LocationID, Date: m.Date}, true
	case TypeDailyMenuDisabled:
		return DailyMenuDisabled{Header: NewHeader(now), DailyMenuID: m.ID, LocationID: m.LocationID, Date: m.Date}, true
	}
	return nil, false
}

func (m *DailyMenu) Apply(e DailyMenuEvent) {
	e.AcceptDailyMenu(dailyMenuFold{m})
	m.Version++
}

func (m DailyMenu) indexOf(id uuid.UUID) int {
	return slices.IndexFunc(m.items, func(it MenuItem) bool { return it.ID == id })
}

type dailyMenuFold struct{ m *DailyMenu }

// materialize initializes identity from whichever event opens the stream.
func (f dailyMenuFold) materialize(id uuid.UUID, locationID uuid.UUID, date Date) {
	if f.m.Version > 0 {
		return
	}
	f.m.ID = id
	f.m.LocationID = locationID
	f.m.Date = date
	f.m.Enabled = true
}

func (f dailyMenuFold) OnDailyMenuCreated(e DailyMenuCreated) {
	f.materialize(e.DailyMenuID, e.LocationID, e.Date)
}

func (f dailyMenuFold) OnDailyMenuEnabled(e DailyMenuEnabled) {
	f.materialize(e.DailyMenuID, e.LocationID, e.Date)
	f.m.Enabled = true
}

func (f dailyMenuFold) OnDailyMenuDisabled(e DailyMenuDisabled) {
	f.materialize(e.DailyMenuID, e.LocationID, e.Date)
	f.m.Enabled = false
}

func (f dailyMenuFold) OnMenuItemAdded(e MenuItemAdded) {
	f.materialize(e.DailyMenuID, e.LocationID, e.Date)
	if i := f.m.indexOf(e.Item.ID); i >= 0 {
		f.m.items[i] = e.Item
		return
	}
	f.m.items = append(f.m.items, e.Item)
}

func (f dailyMenuFold) OnMenuItemRemoved(e MenuItemRemoved) {
	f.materialize(e.DailyMenuID, e.LocationID, e.Date)
	if i := f.m.indexOf(e.MenuItemID); i >= 0 {
		f.m.items = slices.Delete(f.m.items, i, i+1)
	}
}
