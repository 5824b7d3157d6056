package menu

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"cafeteria-menu-system/core/domain"
	"cafeteria-menu-system/core/eventlog"
)

// CreateDailyMenu opens the menu stream for (location, date). Creating a
// menu that already exists returns its id.
func (s *Service) CreateDailyMenu(ctx context.Context, locationID uuid.UUID, date domain.Date) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.run(ctx, "create_daily_menu", func(ctx context.Context) error {
		if _, err := s.requireLocation(ctx, locationID); err != nil {
			return err
		}
		created, err := domain.NewDailyMenu(locationID, date, s.now())
		if err != nil {
			return err
		}
		stream := domain.DailyMenuStream(locationID, date)
		if _, ok, err := eventlog.Last(ctx, s.log, stream); err != nil {
			return fmt.Errorf("read %s: %w", stream, err)
		} else if ok {
			id = created.DailyMenuID
			return nil
		}
		if err := s.append(ctx, stream, eventlog.NoStream, created); err != nil {
			return err
		}
		id = created.DailyMenuID
		return nil
	})
	return id, err
}

type AddMenuItem struct {
	LocationID uuid.UUID
	// Date is the calendar date that identifies the daily menu.
	Date   domain.Date
	Fields domain.MenuItemFields
	// IdempotencyKey makes retries of the same request add the item once.
	IdempotencyKey string
}

func (s *Service) AddMenuItem(ctx context.Context, cmd AddMenuItem) (uuid.UUID, error) {
	if cmd.LocationID == uuid.Nil {
		return uuid.Nil, domain.NewValidationError("location_id", "location id is required")
	}
	if cmd.Date.IsZero() {
		return uuid.Nil, domain.NewValidationError("date", "date is required")
	}
	key := strings.TrimSpace(cmd.IdempotencyKey)
	id := domain.NewID()
	if key != "" {
		id = domain.MenuItemIDForKey(cmd.LocationID, cmd.Date, key)
	}
	item, err := domain.NewMenuItem(id, cmd.Fields)
	if err != nil {
		return uuid.Nil, err
	}

	err = s.run(ctx, "add_menu_item", func(ctx context.Context) error {
		stream := domain.DailyMenuStream(cmd.LocationID, cmd.Date)
		if _, ok, err := eventlog.Last(ctx, s.log, stream); err != nil {
			return fmt.Errorf("read %s: %w", stream, err)
		} else if !ok {
			return fmt.Errorf("%w: %s", domain.ErrDailyMenuNotFound, stream)
		}
		if key != "" {
			seen, err := s.itemEverAdded(ctx, stream, id)
			if err != nil || seen {
				return err
			}
		}
		m := domain.DailyMenu{
			ID:         domain.DailyMenuID(cmd.LocationID, cmd.Date),
			LocationID: cmd.LocationID,
			Date:       cmd.Date,
		}
		return s.append(ctx, stream, eventlog.Any, m.AddItem(item, s.now()))
	})
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// itemEverAdded reports whether the stream holds a MenuItemAdded for id,
// even if the item was removed since.
func (s *Service) itemEverAdded(ctx context.Context, stream string, id uuid.UUID) (bool, error) {
	seen := false
	err := replay(ctx, s, stream, func(e domain.DailyMenuEvent) {
		if added, ok := e.(domain.MenuItemAdded); ok && added.Item.ID == id {
			seen = true
		}
	})
	return seen, err
}

// RemoveMenuItem is a no-op when the item is not on the menu.
func (s *Service) RemoveMenuItem(ctx context.Context, locationID uuid.UUID, date domain.Date, itemID uuid.UUID) error {
	return s.run(ctx, "remove_menu_item", func(ctx context.Context) error {
		m, err := s.requireDailyMenu(ctx, locationID, date)
		if err != nil {
			return err
		}
		e, ok := m.RemoveItem(itemID, s.now())
		if !ok {
			return nil
		}
		return s.append(ctx, m.StreamKey(), eventlog.Any, e)
	})
}

func (s *Service) EnableMenu(ctx context.Context, locationID uuid.UUID, date domain.Date) error {
	return s.setMenuEnabled(ctx, "enable_menu", locationID, date, true)
}

func (s *Service) DisableMenu(ctx context.Context, locationID uuid.UUID, date domain.Date) error {
	return s.setMenuEnabled(ctx, "disable_menu", locationID, date, false)
}

func (s *Service) setMenuEnabled(ctx context.Context, command string, locationID uuid.UUID, date domain.Date, enabled bool) error {
	return s.run(ctx, command, func(ctx context.Context) error {
		m, err := s.requireDailyMenu(ctx, locationID, date)
		if err != nil {
			return err
		}
		e, changed := m.SetEnabled(enabled, s.now())
		if !changed {
			return nil
		}
		return s.append(ctx, m.StreamKey(), eventlog.Any, e)
	})
}

func (s *Service) requireDailyMenu(ctx context.Context, locationID uuid.UUID, date domain.Date) (domain.DailyMenu, error) {
	if locationID == uuid.Nil {
		return domain.DailyMenu{}, domain.NewValidationError("location_id", "location id is required")
	}
	if date.IsZero() {
		return domain.DailyMenu{}, domain.NewValidationError("date", "date is required")
	}
	m, err := s.loadDailyMenu(ctx, locationID, date)
	if err != nil {
		return domain.DailyMenu{}, err
	}
	if !m.Exists() {
		return domain.DailyMenu{}, fmt.Errorf("%w: %s", domain.ErrDailyMenuNotFound, domain.DailyMenuStream(locationID, date))
	}
	return m, nil
}
