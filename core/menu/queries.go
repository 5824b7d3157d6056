package menu

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"cafeteria-menu-system/core/domain"
	"cafeteria-menu-system/core/eventlog"
	"cafeteria-menu-system/core/projection"
	"cafeteria-menu-system/core/zone"
)

// TodayMenu is what a customer sees for a location right now. Items is
// empty, never nil, when the menu is missing or disabled.
type TodayMenu struct {
	LocationID uuid.UUID         `json:"location_id"`
	Date       domain.Date       `json:"date"`
	TimeZone   string            `json:"time_zone"`
	Enabled    bool              `json:"enabled"`
	// Version is the daily menu stream version the items were folded from.
	Version    int               `json:"version"`
	Items      []domain.MenuItem `json:"items"`
}

// MenuView is the full state of one daily menu, including disabled ones.
type MenuView struct {
	ID         uuid.UUID         `json:"id"`
	LocationID uuid.UUID         `json:"location_id"`
	Date       domain.Date       `json:"date"`
	Enabled    bool              `json:"enabled"`
	Version    int               `json:"version"`
	Items      []domain.MenuItem `json:"items"`
}

// GetTodayMenu resolves "today" in the location's own time zone.
func (s *Service) GetTodayMenu(ctx context.Context, locationID uuid.UUID) (TodayMenu, error) {
	var out TodayMenu
	err := s.run(ctx, "get_today_menu", func(ctx context.Context) error {
		l, err := s.requireLocation(ctx, locationID)
		if err != nil {
			return err
		}
		tz, err := zone.Resolve(l.TimeZone)
		if err != nil {
			return err
		}
		today := zone.Today(s.now(), tz)
		m, err := s.loadDailyMenu(ctx, locationID, today)
		if err != nil {
			return err
		}
		out = TodayMenu{
			LocationID: locationID,
			Date:       today,
			TimeZone:   l.TimeZone,
			Enabled:    m.Exists() && m.Enabled,
			Version:    m.Version,
			Items:      m.Visible(),
		}
		return nil
	})
	return out, err
}

// TodayIn returns the current calendar date of a location.
func (s *Service) TodayIn(ctx context.Context, locationID uuid.UUID) (domain.Date, error) {
	l, err := s.requireLocation(ctx, locationID)
	if err != nil {
		return domain.Date{}, err
	}
	return zone.TodayIn(s.clock, l.TimeZone)
}

// DailyMenuVersion is the version of a daily menu stream, 0 when the menu
// was never created. It costs one backward read.
func (s *Service) DailyMenuVersion(ctx context.Context, locationID uuid.UUID, date domain.Date) (int, error) {
	rec, ok, err := eventlog.Last(ctx, s.log, domain.DailyMenuStream(locationID, date))
	if err != nil || !ok {
		return 0, err
	}
	return int(rec.StreamVersion) + 1, nil
}

func (s *Service) GetDailyMenu(ctx context.Context, locationID uuid.UUID, date domain.Date) (MenuView, error) {
	var out MenuView
	err := s.run(ctx, "get_daily_menu", func(ctx context.Context) error {
		m, err := s.requireDailyMenu(ctx, locationID, date)
		if err != nil {
			return err
		}
		out = MenuView{
			ID:         m.ID,
			LocationID: m.LocationID,
			Date:       m.Date,
			Enabled:    m.Enabled,
			Version:    m.Version,
			Items:      m.Items(),
		}
		return nil
	})
	return out, err
}

// GetMenuItem returns the item as first added, even after removal.
func (s *Service) GetMenuItem(ctx context.Context, id uuid.UUID) (projection.MenuItemView, error) {
	var out projection.MenuItemView
	err := s.run(ctx, "get_menu_item", func(ctx context.Context) error {
		if id == uuid.Nil {
			return domain.NewValidationError("id", "menu item id is required")
		}
		var (
			ok  bool
			err error
		)
		if s.views != nil {
			out, ok, err = s.views.MenuItem(ctx, id)
			if err == nil && !ok {
				// The item may have been appended after the last commit.
				var views projection.Reader
				if views, err = s.reader(ctx); err == nil {
					out, ok, err = views.MenuItem(ctx, id)
				}
			}
		} else {
			out, ok, err = s.scanMenuItem(ctx, id)
		}
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrMenuItemNotFound, id)
		}
		return nil
	})
	return out, err
}

// scanMenuItem walks the global log and stops at the first MenuItemAdded
// for id. Undecodable events are logged and skipped.
func (s *Service) scanMenuItem(ctx context.Context, id uuid.UUID) (projection.MenuItemView, bool, error) {
	for rec, err := range s.log.ReadAllForward(ctx, 0) {
		if err != nil {
			return projection.MenuItemView{}, false, err
		}
		if typ, _ := domain.CanonicalType(rec.Type); typ != domain.TypeMenuItemAdded {
			continue
		}
		e, err := domain.Decode(rec.Type, rec.Data)
		if err != nil {
			s.decodeFailed(ctx, rec, err)
			continue
		}
		added := e.(domain.MenuItemAdded)
		if added.Item.ID != id {
			continue
		}
		return projection.MenuItemView{
			Item:        added.Item,
			LocationID:  added.LocationID,
			DailyMenuID: added.DailyMenuID,
			Date:        added.Date,
			AddedAt:     added.OccurredAt,
			Position:    rec.Position,
		}, true, nil
	}
	return projection.MenuItemView{}, false, nil
}

// reader returns the maintained views with the uncommitted log tail folded
// on top or, without views, a fresh fold of the whole log.
func (s *Service) reader(ctx context.Context) (projection.Reader, error) {
	if s.views != nil {
		return projection.Tail(ctx, s.log, s.views, s.logger)
	}
	return projection.Scan(ctx, s.log, s.logger)
}
