package domain

import (
	"errors"
	"strings"

	"github.com/bytedance/sonic"
)

var canonicalTypes = func() map[string]string {
	m := make(map[string]string, len(Catalog()))
	for _, t := range Catalog() {
		m[strings.ToLower(t)] = t
	}
	return m
}()

// CanonicalType resolves a stored tag case-insensitively.
func CanonicalType(tag string) (string, bool) {
	t, ok := canonicalTypes[strings.ToLower(strings.TrimSpace(tag))]
	return t, ok
}

// Encode returns the type tag and JSON payload for e.
func Encode(e Event) (string, []byte, error) {
	if e == nil {
		return "", nil, errors.New("encode nil event")
	}
	payload, err := sonic.Marshal(e)
	if err != nil {
		return "", nil, err
	}
	return e.EventType(), payload, nil
}

// Decode turns a stored (tag, payload) pair back into a typed event.
func Decode(tag string, payload []byte) (Event, error) {
	canonical, ok := CanonicalType(tag)
	if !ok {
		return nil, &DecodingError{Type: tag, Err: ErrUnknownEventType}
	}
	switch canonical {
	case TypeLocationCreated:
		return decodeAs[LocationCreated](tag, payload)
	case TypeLocationActivated:
		return decodeAs[LocationActivated](tag, payload)
	case TypeLocationDeactivated:
		return decodeAs[LocationDeactivated](tag, payload)
	case TypeDeviceRegistered:
		return decodeAs[DeviceRegistered](tag, payload)
	case TypeDeviceEnabled:
		return decodeAs[DeviceEnabled](tag, payload)
	case TypeDeviceDisabled:
		return decodeAs[DeviceDisabled](tag, payload)
	case TypeDailyMenuCreated:
		return decodeAs[DailyMenuCreated](tag, payload)
	case TypeDailyMenuEnabled:
		return decodeAs[DailyMenuEnabled](tag, payload)
	case TypeDailyMenuDisabled:
		return decodeAs[DailyMenuDisabled](tag, payload)
	case TypeMenuItemAdded:
		return decodeAs[MenuItemAdded](tag, payload)
	case TypeMenuItemRemoved:
		return decodeAs[MenuItemRemoved](tag, payload)
	}
	return nil, &DecodingError{Type: tag, Err: ErrUnknownEventType}
}

func decodeAs[T Event](tag string, payload []byte) (Event, error) {
	var e T
	if err := sonic.Unmarshal(payload, &e); err != nil {
		return nil, &DecodingError{Type: tag, Err: err}
	}
	if err := e.check(); err != nil {
		return nil, &DecodingError{Type: tag, Err: err}
	}
	return e, nil
}
