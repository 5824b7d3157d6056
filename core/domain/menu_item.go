package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type MenuType int

const (
	MenuTypeBreakfast MenuType = iota + 1
	MenuTypeLunch
	MenuTypeAfternoonTea
)

var menuTypeNames = map[MenuType]string{
	MenuTypeBreakfast:    "Breakfast",
	MenuTypeLunch:        "Lunch",
	MenuTypeAfternoonTea: "AfternoonTea",
}

func (t MenuType) String() string {
	if name, ok := menuTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("MenuType(%d)", int(t))
}

func (t MenuType) Valid() bool {
	_, ok := menuTypeNames[t]
	return ok
}

func ParseMenuType(s string) (MenuType, error) {
	norm := strings.ReplaceAll(strings.TrimSpace(s), "_", "")
	for t, name := range menuTypeNames {
		if strings.EqualFold(norm, name) {
			return t, nil
		}
	}
	return 0, NewValidationError("type", fmt.Sprintf("unknown menu type %q", s))
}

func (t MenuType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid menu type %d", int(t))
	}
	return []byte(t.String()), nil
}

func (t *MenuType) UnmarshalText(b []byte) error {
	parsed, err := ParseMenuType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Weekday is a time.Weekday that travels as its English name.
type Weekday time.Weekday

func ParseWeekday(s string) (Weekday, error) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(strings.TrimSpace(s), d.String()) {
			return Weekday(d), nil
		}
	}
	return 0, NewValidationError("special_offer_day", fmt.Sprintf("unknown weekday %q", s))
}

func (w Weekday) String() string { return time.Weekday(w).String() }

func (w Weekday) MarshalText() ([]byte, error) {
	if w < Weekday(time.Sunday) || w > Weekday(time.Saturday) {
		return nil, fmt.Errorf("invalid weekday %d", int(w))
	}
	return []byte(w.String()), nil
}

func (w *Weekday) UnmarshalText(b []byte) error {
	parsed, err := ParseWeekday(string(b))
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}

// MenuItem is immutable once built by NewMenuItem.
type MenuItem struct {
	ID              uuid.UUID       `json:"id"`
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	EmployeePrice   decimal.Decimal `json:"employee_price"`
	ExternalPrice   decimal.Decimal `json:"external_price"`
	Allergens       []string        `json:"allergens"`
	Type            MenuType        `json:"type"`
	IsSpecialOffer  bool            `json:"is_special_offer"`
	SpecialOfferDay *Weekday        `json:"special_offer_day,omitempty"`
}

// MenuItemFields is the caller-supplied part of a MenuItem.
type MenuItemFields struct {
	Name            string
	Description     string
	EmployeePrice   decimal.Decimal
	ExternalPrice   decimal.Decimal
	Allergens       []string
	Type            MenuType
	IsSpecialOffer  bool
	SpecialOfferDay *Weekday
}

func NewMenuItem(id uuid.UUID, f MenuItemFields) (MenuItem, error) {
	if id == uuid.Nil {
		return MenuItem{}, NewValidationError("id", "menu item id is required")
	}
	name := strings.TrimSpace(f.Name)
	if name == "" {
		return MenuItem{}, NewValidationError("name", "name is required")
	}
	if f.EmployeePrice.IsNegative() {
		return MenuItem{}, NewValidationError("employee_price", "must not be negative")
	}
	if f.ExternalPrice.IsNegative() {
		return MenuItem{}, NewValidationError("external_price", "must not be negative")
	}
	if !f.Type.Valid() {
		return MenuItem{}, NewValidationError("type", "menu type is required")
	}
	if f.SpecialOfferDay != nil && !f.IsSpecialOffer {
		return MenuItem{}, NewValidationError("special_offer_day", "only allowed on special offers")
	}

	item := MenuItem{
		ID:             id,
		Name:           name,
		Description:    strings.TrimSpace(f.Description),
		EmployeePrice:  f.EmployeePrice,
		ExternalPrice:  f.ExternalPrice,
		Allergens:      NormalizeAllergens(f.Allergens),
		Type:           f.Type,
		IsSpecialOffer: f.IsSpecialOffer,
	}
	if f.SpecialOfferDay != nil {
		day := *f.SpecialOfferDay
		item.SpecialOfferDay = &day
	}
	return item, nil
}

// NormalizeAllergens trims, drops empties and deduplicates by value.
func NormalizeAllergens(in []string) []string {
	out := make([]string, 0, len(in))
	for _, a := range in {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		out = append(out, a)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// OfferedOn reports whether the special offer applies on the given date.
func (m MenuItem) OfferedOn(d Date) bool {
	if !m.IsSpecialOffer {
		return false
	}
	if m.SpecialOfferDay == nil {
		return true
	}
	return time.Weekday(*m.SpecialOfferDay) == d.Weekday()
}

// Equal compares prices by value, so 1.5 equals 1.50.
func (m MenuItem) Equal(o MenuItem) bool {
	if m.ID != o.ID || m.Name != o.Name || m.Description != o.Description || m.Type != o.Type || m.IsSpecialOffer != o.IsSpecialOffer {
		return false
	}
	if !m.EmployeePrice.Equal(o.EmployeePrice) || !m.ExternalPrice.Equal(o.ExternalPrice) {
		return false
	}
	if (m.SpecialOfferDay == nil) != (o.SpecialOfferDay == nil) {
		return false
	}
	if m.SpecialOfferDay != nil && *m.SpecialOfferDay != *o.SpecialOfferDay {
		return false
	}
	return slices.Equal(NormalizeAllergens(m.Allergens), NormalizeAllergens(o.Allergens))
}
