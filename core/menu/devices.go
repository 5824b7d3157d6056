package menu

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"cafeteria-menu-system/core/domain"
	"cafeteria-menu-system/core/eventlog"
)

type RegisterDevice struct {
	Name       string
	Type       domain.DeviceType
	LocationID uuid.UUID
}

// RegisteredDevice carries the plaintext API key. It is returned once and
// cannot be recovered later.
type RegisteredDevice struct {
	DeviceID uuid.UUID `json:"device_id"`
	APIKey   string    `json:"api_key"`
}

func (s *Service) RegisterDevice(ctx context.Context, cmd RegisterDevice) (RegisteredDevice, error) {
	var out RegisteredDevice
	err := s.run(ctx, "register_device", func(ctx context.Context) error {
		if _, err := s.requireLocation(ctx, cmd.LocationID); err != nil {
			return err
		}
		id := domain.NewID()
		registered, key, err := domain.RegisterDevice(id, cmd.Name, cmd.Type, cmd.LocationID, s.now())
		if err != nil {
			return err
		}
		if err := s.append(ctx, domain.DeviceStream(id), eventlog.NoStream, registered); err != nil {
			return err
		}
		out = RegisteredDevice{DeviceID: id, APIKey: key}
		return nil
	})
	return out, err
}

func (s *Service) EnableDevice(ctx context.Context, id uuid.UUID) error {
	return s.setDeviceEnabled(ctx, "enable_device", id, true)
}

func (s *Service) DisableDevice(ctx context.Context, id uuid.UUID) error {
	return s.setDeviceEnabled(ctx, "disable_device", id, false)
}

func (s *Service) setDeviceEnabled(ctx context.Context, command string, id uuid.UUID, enabled bool) error {
	return s.run(ctx, command, func(ctx context.Context) error {
		d, err := s.requireDevice(ctx, id)
		if err != nil {
			return err
		}
		e, changed := d.SetEnabled(enabled, s.now())
		if !changed {
			return nil
		}
		return s.append(ctx, domain.DeviceStream(id), eventlog.Any, e)
	})
}

func (s *Service) requireDevice(ctx context.Context, id uuid.UUID) (domain.Device, error) {
	if id == uuid.Nil {
		return domain.Device{}, domain.NewValidationError("device_id", "device id is required")
	}
	d, err := s.loadDevice(ctx, id)
	if err != nil {
		return domain.Device{}, err
	}
	if !d.Exists() {
		return domain.Device{}, fmt.Errorf("%w: %s", domain.ErrDeviceNotFound, id)
	}
	return d, nil
}

// AuthenticateDevice resolves a kiosk by its API key. The key index only
// locates the device; its enabled flag is taken from the device stream.
func (s *Service) AuthenticateDevice(ctx context.Context, apiKey string) (domain.Device, error) {
	var out domain.Device
	err := s.run(ctx, "authenticate_device", func(ctx context.Context) error {
		apiKey = strings.TrimSpace(apiKey)
		if apiKey == "" {
			return domain.NewValidationError("api_key", "api key is required")
		}
		views, err := s.reader(ctx)
		if err != nil {
			return err
		}
		view, ok, err := views.DeviceByKeyHash(ctx, domain.HashAPIKey(apiKey))
		if err != nil {
			return fmt.Errorf("lookup device key: %w", err)
		}
		if !ok {
			return domain.ErrDeviceNotFound
		}
		d, err := s.requireDevice(ctx, view.ID)
		if err != nil {
			return err
		}
		if !d.Enabled {
			return &domain.ValidationError{Field: "api_key", Message: "device disabled", Err: domain.ErrDeviceDisabled}
		}
		out = d
		return nil
	})
	return out, err
}
