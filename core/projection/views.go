// Package projection maintains read models folded from the global event
// log. Views are eventually consistent with the log and rebuildable from it.
package projection

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"cafeteria-menu-system/core/domain"
)

// ErrCheckpointMoved means another projector committed first. The caller
// should reload the checkpoint and continue from there.
var ErrCheckpointMoved = errors.New("projection checkpoint moved")

type LocationView struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	TimeZone string    `json:"time_zone"`
	Active   bool      `json:"active"`
}

// MenuItemView is the first MenuItemAdded seen for an item id. Removing the
// item from its menu does not remove the view.
type MenuItemView struct {
	Item        domain.MenuItem `json:"item"`
	LocationID  uuid.UUID       `json:"location_id"`
	DailyMenuID uuid.UUID       `json:"daily_menu_id"`
	Date        domain.Date     `json:"date"`
	AddedAt     time.Time       `json:"added_at"`
	Position    uint64          `json:"position"`
}

type DeviceView struct {
	ID           uuid.UUID         `json:"id"`
	LocationID   uuid.UUID         `json:"location_id"`
	Name         string            `json:"name"`
	Type         domain.DeviceType `json:"type"`
	APIKeyHash   string            `json:"api_key_sha256"`
	Enabled      bool              `json:"enabled"`
	RegisteredAt time.Time         `json:"registered_at"`
}

// Reader is the query side of a view store.
type Reader interface {
	Checkpoint(ctx context.Context) (uint64, error)
	Locations(ctx context.Context) ([]LocationView, error)
	Location(ctx context.Context, id uuid.UUID) (LocationView, bool, error)
	MenuItem(ctx context.Context, id uuid.UUID) (MenuItemView, bool, error)
	Device(ctx context.Context, id uuid.UUID) (DeviceView, bool, error)
	DeviceByKeyHash(ctx context.Context, hash string) (DeviceView, bool, error)
}

// Store persists views together with the log position they reflect.
type Store interface {
	Reader
	// Commit writes changes and moves the checkpoint from -> to atomically.
	// It returns ErrCheckpointMoved when the stored checkpoint is not from.
	Commit(ctx context.Context, from uint64, to uint64, changes Changes) error
	// Reset drops every view and rewinds the checkpoint to zero.
	Reset(ctx context.Context) error
}

// Changes is the set of views touched by one batch.
type Changes struct {
	Locations map[uuid.UUID]LocationView
	MenuItems map[uuid.UUID]MenuItemView
	Devices   map[uuid.UUID]DeviceView
}

func newChanges() Changes {
	return Changes{
		Locations: map[uuid.UUID]LocationView{},
		MenuItems: map[uuid.UUID]MenuItemView{},
		Devices:   map[uuid.UUID]DeviceView{},
	}
}

func (c Changes) Empty() bool {
	return len(c.Locations) == 0 && len(c.MenuItems) == 0 && len(c.Devices) == 0
}
