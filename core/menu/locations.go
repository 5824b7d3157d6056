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

type CreateLocation struct {
	// ID may be chosen by the caller; a new id is generated when nil.
	ID       uuid.UUID
	Name     string
	TimeZone string
}

// CreateLocation opens a new location stream. A second create for the same
// id fails with eventlog.ErrVersionConflict.
func (s *Service) CreateLocation(ctx context.Context, cmd CreateLocation) (uuid.UUID, error) {
	tz, err := zone.Resolve(cmd.TimeZone)
	if err != nil {
		return uuid.Nil, err
	}
	id := cmd.ID
	if id == uuid.Nil {
		id = domain.NewID()
	}
	err = s.run(ctx, "create_location", func(ctx context.Context) error {
		created, err := domain.NewLocation(id, cmd.Name, tz, s.now())
		if err != nil {
			return err
		}
		return s.append(ctx, domain.LocationStream(id), eventlog.NoStream, created)
	})
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

func (s *Service) ActivateLocation(ctx context.Context, id uuid.UUID) error {
	return s.setLocationActive(ctx, "activate_location", id, true)
}

func (s *Service) DeactivateLocation(ctx context.Context, id uuid.UUID) error {
	return s.setLocationActive(ctx, "deactivate_location", id, false)
}

func (s *Service) setLocationActive(ctx context.Context, command string, id uuid.UUID, active bool) error {
	return s.run(ctx, command, func(ctx context.Context) error {
		l, err := s.requireLocation(ctx, id)
		if err != nil {
			return err
		}
		e, changed := l.SetActive(active, s.now())
		if !changed {
			return nil
		}
		return s.append(ctx, domain.LocationStream(id), eventlog.Any, e)
	})
}

// GetLocation returns the location folded from its stream.
func (s *Service) GetLocation(ctx context.Context, id uuid.UUID) (domain.Location, error) {
	var l domain.Location
	err := s.run(ctx, "get_location", func(ctx context.Context) error {
		var err error
		l, err = s.requireLocation(ctx, id)
		return err
	})
	return l, err
}

// ListLocations returns every location ordered by name.
func (s *Service) ListLocations(ctx context.Context) ([]projection.LocationView, error) {
	var out []projection.LocationView
	err := s.run(ctx, "list_locations", func(ctx context.Context) error {
		views, err := s.reader(ctx)
		if err != nil {
			return err
		}
		out, err = views.Locations(ctx)
		if err != nil {
			return fmt.Errorf("list locations: %w", err)
		}
		return nil
	})
	return out, err
}
