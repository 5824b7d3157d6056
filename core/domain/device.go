package domain

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"cafeteria-menu-system/shared/workflow"
)

type DeviceType int

const (
	DeviceTypeSingleDish DeviceType = iota + 1
	DeviceTypeDailyMenu
)

var deviceTypeNames = map[DeviceType]string{
	DeviceTypeSingleDish: "SingleDish",
	DeviceTypeDailyMenu:  "DailyMenu",
}

func (t DeviceType) String() string {
	if name, ok := deviceTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("DeviceType(%d)", int(t))
}

func (t DeviceType) Valid() bool {
	_, ok := deviceTypeNames[t]
	return ok
}

func ParseDeviceType(s string) (DeviceType, error) {
	norm := strings.ReplaceAll(strings.TrimSpace(s), "_", "")
	for t, name := range deviceTypeNames {
		if strings.EqualFold(norm, name) {
			return t, nil
		}
	}
	return 0, NewValidationError("type", fmt.Sprintf("unknown device type %q", s))
}

func (t DeviceType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid device type %d", int(t))
	}
	return []byte(t.String()), nil
}

func (t *DeviceType) UnmarshalText(b []byte) error {
	parsed, err := ParseDeviceType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

type Device struct {
	ID           uuid.UUID
	LocationID   uuid.UUID
	Name         string
	Type         DeviceType
	APIKeyHash   string
	Enabled      bool
	RegisteredAt time.Time
	Version      int
}

// GenerateAPIKey encodes a fresh random UUID as unpadded base64url.
func GenerateAPIKey() string {
	id := uuid.New()
	return base64.RawURLEncoding.EncodeToString(id[:])
}

func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// RegisterDevice builds the registration event and returns the plaintext
// key. Only the key's hash is persisted.
func RegisterDevice(id uuid.UUID, name string, typ DeviceType, locationID uuid.UUID, now time.Time) (DeviceRegistered, string, error) {
	if id == uuid.Nil {
		return DeviceRegistered{}, "", NewValidationError("device_id", "device id is required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return DeviceRegistered{}, "", NewValidationError("name", "name is required")
	}
	if !typ.Valid() {
		return DeviceRegistered{}, "", NewValidationError("type", "device type is required")
	}
	if locationID == uuid.Nil {
		return DeviceRegistered{}, "", NewValidationError("location_id", "location id is required")
	}
	key := GenerateAPIKey()
	return DeviceRegistered{
		Header:       NewHeader(now),
		DeviceID:     id,
		LocationID:   locationID,
		Name:         name,
		Type:         typ,
		APIKeyHash:   HashAPIKey(key),
		RegisteredAt: now.UTC(),
	}, key, nil
}

func (d Device) Exists() bool { return d.Version > 0 }

func (d Device) SetEnabled(enabled bool, now time.Time) (DeviceEvent, bool) {
	from := workflow.ToggleState(workflow.KindDevice, d.Enabled)
	to := workflow.ToggleState(workflow.KindDevice, enabled)
	switch workflow.EventTypeForTransition(workflow.KindDevice, from, to) {
	case TypeDeviceEnabled:
		return DeviceEnabled{Header: NewHeader(now), DeviceID: d.ID, LocationID: d.LocationID}, true
	case TypeDeviceDisabled:
		return DeviceDisabled{Header: NewHeader(now), DeviceID: d.ID, LocationID: d.LocationID}, true
	}
	return nil, false
}

func (d *Device) Apply(e DeviceEvent) {
	e.AcceptDevice(deviceFold{d})
	d.Version++
}

type deviceFold struct{ d *Device }

func (f deviceFold) OnDeviceRegistered(e DeviceRegistered) {
	f.d.ID = e.DeviceID
	f.d.LocationID = e.LocationID
	f.d.Name = e.Name
	f.d.Type = e.Type
	f.d.APIKeyHash = e.APIKeyHash
	f.d.RegisteredAt = e.RegisteredAt
	f.d.Enabled = true
}

func (f deviceFold) OnDeviceEnabled(DeviceEnabled) { f.d.Enabled = true }

func (f deviceFold) OnDeviceDisabled(DeviceDisabled) { f.d.Enabled = false }
