package projection

import (
	"context"
	"maps"
	"slices"

	"github.com/google/uuid"

	"cafeteria-menu-system/core/eventlog"
	"cafeteria-menu-system/shared/logx"
)

// Tail folds the events past base's checkpoint on top of base without
// committing them, so a query sees every event already in the log even
// when the projector has not caught up yet.
func Tail(ctx context.Context, log eventlog.Log, base Reader, logger logx.Logger) (Reader, error) {
	from, err := base.Checkpoint(ctx)
	if err != nil {
		return nil, err
	}
	p := NewProjector(log, nil, WithLogger(logger), WithName("tail"))
	b := &batch{store: base, changes: newChanges()}
	to := from
	for rec, err := range log.ReadAllForward(ctx, from) {
		if err != nil {
			return nil, err
		}
		p.apply(ctx, b, rec)
		if b.err != nil {
			return nil, b.err
		}
		to = rec.Position
	}
	if to == from {
		return base, nil
	}
	return &overlay{base: base, changes: b.changes, checkpoint: to}, nil
}

// overlay answers from uncommitted changes first, then from base.
type overlay struct {
	base       Reader
	changes    Changes
	checkpoint uint64
}

func (o *overlay) Checkpoint(context.Context) (uint64, error) { return o.checkpoint, nil }

func (o *overlay) Locations(ctx context.Context) ([]LocationView, error) {
	committed, err := o.base.Locations(ctx)
	if err != nil {
		return nil, err
	}
	merged := make(map[uuid.UUID]LocationView, len(committed)+len(o.changes.Locations))
	for _, l := range committed {
		merged[l.ID] = l
	}
	maps.Copy(merged, o.changes.Locations)
	out := slices.Collect(maps.Values(merged))
	SortLocations(out)
	return out, nil
}

func (o *overlay) Location(ctx context.Context, id uuid.UUID) (LocationView, bool, error) {
	if v, ok := o.changes.Locations[id]; ok {
		return v, true, nil
	}
	return o.base.Location(ctx, id)
}

func (o *overlay) MenuItem(ctx context.Context, id uuid.UUID) (MenuItemView, bool, error) {
	if v, ok := o.changes.MenuItems[id]; ok {
		return v, true, nil
	}
	return o.base.MenuItem(ctx, id)
}

func (o *overlay) Device(ctx context.Context, id uuid.UUID) (DeviceView, bool, error) {
	if v, ok := o.changes.Devices[id]; ok {
		return v, true, nil
	}
	return o.base.Device(ctx, id)
}

func (o *overlay) DeviceByKeyHash(ctx context.Context, hash string) (DeviceView, bool, error) {
	for _, v := range o.changes.Devices {
		if v.APIKeyHash == hash {
			return v, true, nil
		}
	}
	v, ok, err := o.base.DeviceByKeyHash(ctx, hash)
	if err != nil || !ok {
		return v, ok, err
	}
	if changed, ok := o.changes.Devices[v.ID]; ok {
		return changed, true, nil
	}
	return v, true, nil
}
