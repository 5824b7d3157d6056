package devicex

import (
	"context"

	"github.com/google/uuid"
)

type contextKey struct{}

type slotKey struct{}

type slot struct {
	device DeviceContext
	set    bool
}

// DeviceContext identifies the kiosk device a request was authenticated as.
type DeviceContext struct {
	ID         uuid.UUID
	Name       string
	Type       string
	LocationID uuid.UUID
}

func WithDevice(ctx context.Context, device DeviceContext) context.Context {
	if s, ok := ctx.Value(slotKey{}).(*slot); ok {
		s.device, s.set = device, true
	}
	return context.WithValue(ctx, contextKey{}, device)
}

// Track lets an outer handler observe a device attached further down the
// chain. The returned func reports it once the inner handler returned.
func Track(ctx context.Context) (context.Context, func() (DeviceContext, bool)) {
	s := &slot{}
	return context.WithValue(ctx, slotKey{}, s), func() (DeviceContext, bool) {
		return s.device, s.set
	}
}

func FromContext(ctx context.Context) (DeviceContext, bool) {
	if v := ctx.Value(contextKey{}); v != nil {
		if d, ok := v.(DeviceContext); ok {
			return d, true
		}
	}
	return DeviceContext{}, false
}

func LocationIDFromContext(ctx context.Context) uuid.UUID {
	if d, ok := FromContext(ctx); ok {
		return d.LocationID
	}
	return uuid.Nil
}
