// Package menu implements the cafeteria commands and queries on top of an
// event log. Aggregates are rebuilt from their streams on every call.
package menu

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"cafeteria-menu-system/core/domain"
	"cafeteria-menu-system/core/eventlog"
	"cafeteria-menu-system/core/projection"
	"cafeteria-menu-system/core/zone"
	"cafeteria-menu-system/shared/logx"
	"cafeteria-menu-system/shared/metricsx"
	"cafeteria-menu-system/shared/observability"
)

// maxAttempts is one try plus one retry after a version conflict.
const maxAttempts = 2

type Service struct {
	log         eventlog.Log
	clock       zone.Clock
	logger      logx.Logger
	views       projection.Reader
	afterAppend func(context.Context, eventlog.AppendResult)
}

type Option func(*Service)

func WithClock(c zone.Clock) Option { return func(s *Service) { s.clock = c } }

func WithLogger(l logx.Logger) Option { return func(s *Service) { s.logger = l } }

// WithViews answers ListLocations, GetMenuItem and AuthenticateDevice from
// maintained views instead of scanning the log.
func WithViews(r projection.Reader) Option { return func(s *Service) { s.views = r } }

// WithAppendHook is called after every successful append.
func WithAppendHook(fn func(context.Context, eventlog.AppendResult)) Option {
	return func(s *Service) { s.afterAppend = fn }
}

func NewService(log eventlog.Log, opts ...Option) *Service {
	s := &Service{log: log, clock: zone.SystemClock{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) now() time.Time { return s.clock.Now() }

// run executes op and retries it once when it loses an append race.
func (s *Service) run(ctx context.Context, command string, op func(context.Context) error) (err error) {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "menu."+command, attribute.String("menu.command", command))
	defer func() {
		metricsx.ObserveCommand(command, Outcome(err), time.Since(start))
		observability.EndSpan(span, err)
	}()

	for attempt := 1; ; attempt++ {
		if err = ctx.Err(); err != nil {
			return err
		}
		err = op(ctx)
		if !errors.Is(err, eventlog.ErrVersionConflict) {
			return err
		}
		metricsx.IncVersionConflict(command, attempt)
		if attempt >= maxAttempts {
			return err
		}
		s.logger.Warn(ctx, "version_conflict", "retrying after concurrent write",
			slog.String("command", command),
			slog.Int("attempt", attempt),
		)
	}
}

// Outcome classifies err for metrics and logs.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "deadline"
	case errors.Is(err, eventlog.ErrVersionConflict):
		return "conflict"
	case domain.IsNotFound(err):
		return "not_found"
	case domain.IsValidation(err):
		return "invalid"
	default:
		return "error"
	}
}

// ToEventData encodes e for appending.
func ToEventData(e domain.Event) (eventlog.EventData, error) {
	typ, payload, err := domain.Encode(e)
	if err != nil {
		return eventlog.EventData{}, fmt.Errorf("encode %s: %w", e.EventType(), err)
	}
	h := e.EventHeader()
	return eventlog.EventData{
		EventID:    h.EventID,
		Type:       typ,
		LocationID: e.OwnerLocation(),
		OccurredAt: h.OccurredAt,
		Data:       payload,
	}, nil
}

func (s *Service) append(ctx context.Context, stream string, expected eventlog.ExpectedVersion, events ...domain.Event) error {
	data := make([]eventlog.EventData, 0, len(events))
	for _, e := range events {
		d, err := ToEventData(e)
		if err != nil {
			return err
		}
		data = append(data, d)
	}
	res, err := s.log.Append(ctx, stream, expected, data...)
	if err != nil {
		return fmt.Errorf("append to %s: %w", stream, err)
	}
	for _, e := range events {
		metricsx.IncEventsAppended(e.EventType(), 1)
	}
	s.logger.Debug(ctx, "events_appended", "events appended",
		slog.String("stream_key", stream),
		slog.Int("count", len(events)),
		slog.Uint64("last_position", res.LastPosition),
	)
	if s.afterAppend != nil {
		s.afterAppend(ctx, res)
	}
	return nil
}

// replay folds a stream in order. A payload that does not decode fails the
// read and is logged.
func replay[E domain.Event](ctx context.Context, s *Service, stream string, apply func(E)) error {
	for rec, err := range s.log.ReadStreamForward(ctx, stream) {
		if err != nil {
			return fmt.Errorf("read %s: %w", stream, err)
		}
		e, err := domain.Decode(rec.Type, rec.Data)
		if err != nil {
			s.decodeFailed(ctx, rec, err)
			return err
		}
		typed, ok := e.(E)
		if !ok {
			return fmt.Errorf("%s in %s at version %d: %w", rec.Type, stream, rec.StreamVersion, domain.ErrUnexpectedEvent)
		}
		apply(typed)
	}
	return nil
}

func (s *Service) decodeFailed(ctx context.Context, rec eventlog.RecordedEvent, err error) {
	metricsx.IncDecodeFailure(rec.Type)
	s.logger.Warn(ctx, "event_decode_failed", "stored event does not decode",
		slog.String("stream_key", rec.StreamKey),
		slog.Uint64("position", rec.Position),
		slog.String("event_type", rec.Type),
		slog.String("error", err.Error()),
	)
}

func (s *Service) loadLocation(ctx context.Context, id uuid.UUID) (domain.Location, error) {
	var l domain.Location
	err := replay(ctx, s, domain.LocationStream(id), func(e domain.LocationEvent) { l.Apply(e) })
	return l, err
}

func (s *Service) loadDevice(ctx context.Context, id uuid.UUID) (domain.Device, error) {
	var d domain.Device
	err := replay(ctx, s, domain.DeviceStream(id), func(e domain.DeviceEvent) { d.Apply(e) })
	return d, err
}

func (s *Service) loadDailyMenu(ctx context.Context, locationID uuid.UUID, date domain.Date) (domain.DailyMenu, error) {
	var m domain.DailyMenu
	err := replay(ctx, s, domain.DailyMenuStream(locationID, date), func(e domain.DailyMenuEvent) { m.Apply(e) })
	return m, err
}

// requireLocation replays the location and fails when it was never created.
func (s *Service) requireLocation(ctx context.Context, id uuid.UUID) (domain.Location, error) {
	if id == uuid.Nil {
		return domain.Location{}, domain.NewValidationError("location_id", "location id is required")
	}
	l, err := s.loadLocation(ctx, id)
	if err != nil {
		return domain.Location{}, err
	}
	if !l.Exists() {
		return domain.Location{}, fmt.Errorf("%w: %s", domain.ErrLocationNotFound, id)
	}
	return l, nil
}
