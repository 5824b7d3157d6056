package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event type tags. These are persisted and must never change.
const (
	TypeLocationCreated     = "LocationCreated"
	TypeLocationActivated   = "LocationActivated"
	TypeLocationDeactivated = "LocationDeactivated"
	TypeDeviceRegistered    = "DeviceRegistered"
	TypeDeviceEnabled       = "DeviceEnabled"
	TypeDeviceDisabled      = "DeviceDisabled"
	TypeDailyMenuCreated    = "DailyMenuCreated"
	TypeDailyMenuEnabled    = "DailyMenuEnabled"
	TypeDailyMenuDisabled   = "DailyMenuDisabled"
	TypeMenuItemAdded       = "MenuItemAdded"
	TypeMenuItemRemoved     = "MenuItemRemoved"
)

// Catalog lists every event type tag.
func Catalog() []string {
	return []string{
		TypeLocationCreated,
		TypeLocationActivated,
		TypeLocationDeactivated,
		TypeDeviceRegistered,
		TypeDeviceEnabled,
		TypeDeviceDisabled,
		TypeDailyMenuCreated,
		TypeDailyMenuEnabled,
		TypeDailyMenuDisabled,
		TypeMenuItemAdded,
		TypeMenuItemRemoved,
	}
}

// Header is carried by every event.
type Header struct {
	EventID    uuid.UUID `json:"event_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

func NewHeader(now time.Time) Header {
	return Header{EventID: newID(), OccurredAt: now.UTC()}
}

func (h Header) EventHeader() Header { return h }

// Event is the closed set of domain events. The unexported check method
// seals the interface to this package.
type Event interface {
	EventType() string
	EventHeader() Header
	OwnerLocation() uuid.UUID
	check() error
}

type LocationEvent interface {
	Event
	AcceptLocation(LocationVisitor)
}

type DeviceEvent interface {
	Event
	AcceptDevice(DeviceVisitor)
}

type DailyMenuEvent interface {
	Event
	AcceptDailyMenu(DailyMenuVisitor)
}

type LocationVisitor interface {
	OnLocationCreated(LocationCreated)
	OnLocationActivated(LocationActivated)
	OnLocationDeactivated(LocationDeactivated)
}

type DeviceVisitor interface {
	OnDeviceRegistered(DeviceRegistered)
	OnDeviceEnabled(DeviceEnabled)
	OnDeviceDisabled(DeviceDisabled)
}

type DailyMenuVisitor interface {
	OnDailyMenuCreated(DailyMenuCreated)
	OnDailyMenuEnabled(DailyMenuEnabled)
	OnDailyMenuDisabled(DailyMenuDisabled)
	OnMenuItemAdded(MenuItemAdded)
	OnMenuItemRemoved(MenuItemRemoved)
}

// Visitor handles every event in the catalog.
type Visitor interface {
	LocationVisitor
	DeviceVisitor
	DailyMenuVisitor
}

// Visit dispatches e to the matching visitor method.
func Visit(e Event, v Visitor) {
	switch e := e.(type) {
	case LocationEvent:
		e.AcceptLocation(v)
	case DeviceEvent:
		e.AcceptDevice(v)
	case DailyMenuEvent:
		e.AcceptDailyMenu(v)
	}
}

var errMissingID = errors.New("missing identifier")

func requireIDs(ids ...uuid.UUID) error {
	for _, id := range ids {
		if id == uuid.Nil {
			return errMissingID
		}
	}
	return nil
}

type LocationCreated struct {
	Header
	LocationID uuid.UUID `json:"location_id"`
	Name       string    `json:"name"`
	TimeZone   string    `json:"time_zone"`
}

func (LocationCreated) EventType() string { return TypeLocationCreated }
func (e LocationCreated) OwnerLocation() uuid.UUID { return e.LocationID }
func (e LocationCreated) AcceptLocation(v LocationVisitor) { v.OnLocationCreated(e) }
func (e LocationCreated) check() error {
	if err := requireIDs(e.LocationID); err != nil {
		return err
	}
	if e.TimeZone == "" {
		return errors.New("missing time zone")
	}
	return nil
}

type LocationActivated struct {
	Header
	LocationID uuid.UUID `json:"location_id"`
}

func (LocationActivated) EventType() string { return TypeLocationActivated }
func (e LocationActivated) OwnerLocation() uuid.UUID { return e.LocationID }
func (e LocationActivated) AcceptLocation(v LocationVisitor) { v.OnLocationActivated(e) }
func (e LocationActivated) check() error { return requireIDs(e.LocationID) }

type LocationDeactivated struct {
	Header
	LocationID uuid.UUID `json:"location_id"`
}

func (LocationDeactivated) EventType() string { return TypeLocationDeactivated }
func (e LocationDeactivated) OwnerLocation() uuid.UUID { return e.LocationID }
func (e LocationDeactivated) AcceptLocation(v LocationVisitor) { v.OnLocationDeactivated(e) }
func (e LocationDeactivated) check() error { return requireIDs(e.LocationID) }

type DeviceRegistered struct {
	Header
	DeviceID     uuid.UUID  `json:"device_id"`
	LocationID   uuid.UUID  `json:"location_id"`
	Name         string     `json:"name"`
	Type         DeviceType `json:"type"`
	APIKeyHash   string     `json:"api_key_sha256"`
	RegisteredAt time.Time  `json:"registered_at"`
}

func (DeviceRegistered) EventType() string { return TypeDeviceRegistered }
func (e DeviceRegistered) OwnerLocation() uuid.UUID { return e.LocationID }
func (e DeviceRegistered) AcceptDevice(v DeviceVisitor) { v.OnDeviceRegistered(e) }
func (e DeviceRegistered) check() error {
	if err := requireIDs(e.DeviceID, e.LocationID); err != nil {
		return err
	}
	if e.APIKeyHash == "" {
		return errors.New("missing api key hash")
	}
	if !e.Type.Valid() {
		return fmt.Errorf("invalid device type %s", e.Type)
	}
	return nil
}

type DeviceEnabled struct {
	Header
	DeviceID   uuid.UUID `json:"device_id"`
	LocationID uuid.UUID `json:"location_id"`
}

func (DeviceEnabled) EventType() string { return TypeDeviceEnabled }
func (e DeviceEnabled) OwnerLocation() uuid.UUID { return e.LocationID }
func (e DeviceEnabled) AcceptDevice(v DeviceVisitor) { v.OnDeviceEnabled(e) }
func (e DeviceEnabled) check() error { return requireIDs(e.DeviceID) }

type DeviceDisabled struct {
	Header
	DeviceID   uuid.UUID `json:"device_id"`
	LocationID uuid.UUID `json:"location_id"`
}

func (DeviceDisabled) EventType() string { return TypeDeviceDisabled }
func (e DeviceDisabled) OwnerLocation() uuid.UUID { return e.LocationID }
func (e DeviceDisabled) AcceptDevice(v DeviceVisitor) { v.OnDeviceDisabled(e) }
func (e DeviceDisabled) check() error { return requireIDs(e.DeviceID) }

type DailyMenuCreated struct {
	Header
	DailyMenuID uuid.UUID `json:"daily_menu_id"`
	LocationID  uuid.UUID `json:"location_id"`
	Date        Date      `json:"date"`
}

func (DailyMenuCreated) EventType() string { return TypeDailyMenuCreated }
func (e DailyMenuCreated) OwnerLocation() uuid.UUID { return e.LocationID }
func (e DailyMenuCreated) AcceptDailyMenu(v DailyMenuVisitor) { v.OnDailyMenuCreated(e) }
func (e DailyMenuCreated) check() error { return requireIDs(e.DailyMenuID, e.LocationID) }

type DailyMenuEnabled struct {
	Header
	DailyMenuID uuid.UUID `json:"daily_menu_id"`
	LocationID  uuid.UUID `json:"location_id"`
	Date        Date      `json:"date"`
}

func (DailyMenuEnabled) EventType() string { return TypeDailyMenuEnabled }
func (e DailyMenuEnabled) OwnerLocation() uuid.UUID { return e.LocationID }
func (e DailyMenuEnabled) AcceptDailyMenu(v DailyMenuVisitor) { v.OnDailyMenuEnabled(e) }
func (e DailyMenuEnabled) check() error { return requireIDs(e.DailyMenuID) }

type DailyMenuDisabled struct {
	Header
	DailyMenuID uuid.UUID `json:"daily_menu_id"`
	LocationID  uuid.UUID `json:"location_id"`
	Date        Date      `json:"date"`
}

func (DailyMenuDisabled) EventType() string { return TypeDailyMenuDisabled }
func (e DailyMenuDisabled) OwnerLocation() uuid.UUID { return e.LocationID }
func (e DailyMenuDisabled) AcceptDailyMenu(v DailyMenuVisitor) { v.OnDailyMenuDisabled(e) }
func (e DailyMenuDisabled) check() error { return requireIDs(e.DailyMenuID) }

type MenuItemAdded struct {
	Header
	DailyMenuID uuid.UUID `json:"daily_menu_id"`
	LocationID  uuid.UUID `json:"location_id"`
	Date        Date      `json:"date"`
	Item        MenuItem  `json:"menu_item"`
}

func (MenuItemAdded) EventType() string { return TypeMenuItemAdded }
func (e MenuItemAdded) OwnerLocation() uuid.UUID { return e.LocationID }
func (e MenuItemAdded) AcceptDailyMenu(v DailyMenuVisitor) { v.OnMenuItemAdded(e) }
func (e MenuItemAdded) check() error {
	if err := requireIDs(e.DailyMenuID, e.Item.ID); err != nil {
		return err
	}
	if !e.Item.Type.Valid() {
		return fmt.Errorf("invalid menu type %s", e.Item.Type)
	}
	return nil
}

type MenuItemRemoved struct {
	Header
	DailyMenuID uuid.UUID `json:"daily_menu_id"`
	LocationID  uuid.UUID `json:"location_id"`
	Date        Date      `json:"date"`
	MenuItemID  uuid.UUID `json:"menu_item_id"`
}

func (MenuItemRemoved) EventType() string { return TypeMenuItemRemoved }
func (e MenuItemRemoved) OwnerLocation() uuid.UUID { return e.LocationID }
func (e MenuItemRemoved) AcceptDailyMenu(v DailyMenuVisitor) { v.OnMenuItemRemoved(e) }
func (e MenuItemRemoved) check() error { return requireIDs(e.DailyMenuID, e.MenuItemID) }
