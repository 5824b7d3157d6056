package projection

import (
	"context"

	"cafeteria-menu-system/core/domain"
	"cafeteria-menu-system/core/eventlog"
	"cafeteria-menu-system/shared/influxx"
	"cafeteria-menu-system/shared/metricsx"
)

// InfluxSink records one menu_events point per projected event.
type InfluxSink struct {
	Client *influxx.Client
}

func (s InfluxSink) Observe(ctx context.Context, batch []eventlog.RecordedEvent) error {
	points := make([]influxx.EventPoint, 0, len(batch))
	for _, rec := range batch {
		typ, ok := domain.CanonicalType(rec.Type)
		if !ok {
			typ = rec.Type
		}
		points = append(points, influxx.EventPoint{
			EventType:     typ,
			AggregateType: domain.AggregateTypeOf(rec.StreamKey),
			LocationID:    rec.LocationID.String(),
			Position:      rec.Position,
			StreamVersion: rec.StreamVersion,
			OccurredAt:    rec.OccurredAt,
		})
	}
	if err := s.Client.WriteEvents(ctx, points); err != nil {
		metricsx.IncInfluxWriteFailure()
		return err
	}
	return nil
}
