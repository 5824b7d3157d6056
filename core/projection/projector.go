package projection

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"cafeteria-menu-system/core/domain"
	"cafeteria-menu-system/core/eventlog"
	"cafeteria-menu-system/shared/logx"
	"cafeteria-menu-system/shared/metricsx"
	"cafeteria-menu-system/shared/observability"
)

const (
	DefaultName      = "menu_views"
	defaultBatchSize = 200
	maxCommitRetries = 5
)

// Sink observes every batch the projector commits.
type Sink interface {
	Observe(ctx context.Context, batch []eventlog.RecordedEvent) error
}

// Projector folds the global log into a Store. Each batch is committed
// with a compare-and-set on the checkpoint, so several projectors may run
// against one store and replays are harmless.
type Projector struct {
	log       eventlog.Log
	store     Store
	logger    logx.Logger
	name      string
	batchSize int
	sink      Sink
	wake      chan struct{}
}

type Option func(*Projector)

func WithLogger(l logx.Logger) Option { return func(p *Projector) { p.logger = l } }

func WithName(name string) Option { return func(p *Projector) { p.name = name } }

func WithSink(s Sink) Option { return func(p *Projector) { p.sink = s } }

func WithBatchSize(n int) Option {
	return func(p *Projector) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

func NewProjector(log eventlog.Log, store Store, opts ...Option) *Projector {
	p := &Projector{
		log:       log,
		store:     store,
		name:      DefaultName,
		batchSize: defaultBatchSize,
		wake:      make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Projector) Store() Store { return p.store }

// Trigger asks a running projector to catch up without waiting for the
// next poll. It never blocks.
func (p *Projector) Trigger() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// CatchUp projects every event after the stored checkpoint and returns how
// many events were applied.
func (p *Projector) CatchUp(ctx context.Context) (applied int, err error) {
	ctx, span := observability.StartSpan(ctx, "projection.catch_up", attribute.String("projection", p.name))
	defer func() {
		span.SetAttributes(attribute.Int("projection.applied", applied))
		observability.EndSpan(span, err)
	}()

	retries := 0
	for {
		n, more, err := p.step(ctx)
		applied += n
		switch {
		case errors.Is(err, ErrCheckpointMoved):
			retries++
			if retries > maxCommitRetries {
				return applied, err
			}
			continue
		case err != nil:
			return applied, err
		case !more:
			return applied, nil
		}
	}
}

// step projects one batch. more reports whether the batch was full.
func (p *Projector) step(ctx context.Context) (int, bool, error) {
	from, err := p.store.Checkpoint(ctx)
	if err != nil {
		return 0, false, err
	}

	b := &batch{store: p.store, changes: newChanges()}
	recs := make([]eventlog.RecordedEvent, 0, p.batchSize)
	to := from
	for rec, err := range p.log.ReadAllForward(ctx, from) {
		if err != nil {
			return 0, false, err
		}
		recs = append(recs, rec)
		to = rec.Position
		p.apply(ctx, b, rec)
		if b.err != nil {
			return 0, false, b.err
		}
		if len(recs) >= p.batchSize {
			break
		}
	}
	if len(recs) == 0 {
		return 0, false, nil
	}

	if err := p.store.Commit(ctx, from, to, b.changes); err != nil {
		return 0, false, err
	}
	metricsx.SetProjectionCheckpoint(p.name, to)
	metricsx.AddProjectionApplied(p.name, len(recs))
	p.observe(ctx, recs)
	return len(recs), len(recs) >= p.batchSize, nil
}

func (p *Projector) apply(ctx context.Context, b *batch, rec eventlog.RecordedEvent) {
	e, err := domain.Decode(rec.Type, rec.Data)
	if err != nil {
		metricsx.IncDecodeFailure(rec.Type)
		p.logger.Warn(ctx, "event_decode_failed", "skipping undecodable event",
			slog.String("projection", p.name),
			slog.String("stream_key", rec.StreamKey),
			slog.Uint64("position", rec.Position),
			slog.String("event_type", rec.Type),
			slog.String("error", err.Error()),
		)
		return
	}
	b.ctx = ctx
	b.rec = rec
	domain.Visit(e, b)
}

func (p *Projector) observe(ctx context.Context, recs []eventlog.RecordedEvent) {
	if p.sink == nil {
		return
	}
	if err := p.sink.Observe(ctx, recs); err != nil {
		p.logger.Warn(ctx, "projection_sink_failed", "sink rejected batch",
			slog.String("projection", p.name),
			slog.Int("events", len(recs)),
			slog.String("error", err.Error()),
		)
	}
}

// Run catches up every interval, or sooner on Trigger, until ctx ends.
func (p *Projector) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		if n, err := p.CatchUp(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.logger.Error(ctx, "projection_failed", "catch up failed",
				slog.String("projection", p.name),
				slog.String("error_code", "PROJECTION_FAILED"),
				slog.String("error", err.Error()),
			)
		} else if n > 0 {
			p.logger.Debug(ctx, "projection_advanced", "projection advanced",
				slog.String("projection", p.name),
				slog.Int("applied", n),
			)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		case <-p.wake:
		}
	}
}

// Scan folds the whole log into a fresh memory store. It is the fallback
// when no maintained views are available.
func Scan(ctx context.Context, log eventlog.Log, logger logx.Logger) (*MemoryStore, error) {
	store := NewMemoryStore()
	p := NewProjector(log, store, WithLogger(logger), WithName("scan"), WithBatchSize(1<<16))
	if _, err := p.CatchUp(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// batch applies events on top of the store, reading its own writes first.
type batch struct {
	ctx     context.Context
	rec     eventlog.RecordedEvent
	store   Reader
	changes Changes
	err     error
}

func (b *batch) location(id uuid.UUID) (LocationView, bool) {
	if v, ok := b.changes.Locations[id]; ok {
		return v, true
	}
	v, ok, err := b.store.Location(b.ctx, id)
	if err != nil {
		b.err = err
	}
	return v, ok
}

func (b *batch) device(id uuid.UUID) (DeviceView, bool) {
	if v, ok := b.changes.Devices[id]; ok {
		return v, true
	}
	v, ok, err := b.store.Device(b.ctx, id)
	if err != nil {
		b.err = err
	}
	return v, ok
}

func (b *batch) hasMenuItem(id uuid.UUID) bool {
	if _, ok := b.changes.MenuItems[id]; ok {
		return true
	}
	_, ok, err := b.store.MenuItem(b.ctx, id)
	if err != nil {
		b.err = err
	}
	return ok
}

func (b *batch) OnLocationCreated(e domain.LocationCreated) {
	if _, ok := b.location(e.LocationID); ok {
		return
	}
	b.changes.Locations[e.LocationID] = LocationView{ID: e.LocationID, Name: e.Name, TimeZone: e.TimeZone, Active: true}
}

func (b *batch) OnLocationActivated(e domain.LocationActivated) { b.setLocationActive(e.LocationID, true) }

func (b *batch) OnLocationDeactivated(e domain.LocationDeactivated) {
	b.setLocationActive(e.LocationID, false)
}

func (b *batch) setLocationActive(id uuid.UUID, active bool) {
	v, ok := b.location(id)
	if !ok {
		return
	}
	v.Active = active
	b.changes.Locations[id] = v
}

func (b *batch) OnDeviceRegistered(e domain.DeviceRegistered) {
	if _, ok := b.device(e.DeviceID); ok {
		return
	}
	b.changes.Devices[e.DeviceID] = DeviceView{
		ID:           e.DeviceID,
		LocationID:   e.LocationID,
		Name:         e.Name,
		Type:         e.Type,
		APIKeyHash:   e.APIKeyHash,
		Enabled:      true,
		RegisteredAt: e.RegisteredAt,
	}
}

func (b *batch) OnDeviceEnabled(e domain.DeviceEnabled) { b.setDeviceEnabled(e.DeviceID, true) }

func (b *batch) OnDeviceDisabled(e domain.DeviceDisabled) { b.setDeviceEnabled(e.DeviceID, false) }

func (b *batch) setDeviceEnabled(id uuid.UUID, enabled bool) {
	v, ok := b.device(id)
	if !ok {
		return
	}
	v.Enabled = enabled
	b.changes.Devices[id] = v
}

// Daily menu state is always folded from its own stream, so only the
// first MenuItemAdded per item is indexed here.
func (b *batch) OnDailyMenuCreated(domain.DailyMenuCreated)   {}
func (b *batch) OnDailyMenuEnabled(domain.DailyMenuEnabled)   {}
func (b *batch) OnDailyMenuDisabled(domain.DailyMenuDisabled) {}
func (b *batch) OnMenuItemRemoved(domain.MenuItemRemoved)     {}

func (b *batch) OnMenuItemAdded(e domain.MenuItemAdded) {
	if b.hasMenuItem(e.Item.ID) {
		return
	}
	b.changes.MenuItems[e.Item.ID] = MenuItemView{
		Item:        e.Item,
		LocationID:  e.LocationID,
		DailyMenuID: e.DailyMenuID,
		Date:        e.Date,
		AddedAt:     e.OccurredAt,
		Position:    b.rec.Position,
	}
}
