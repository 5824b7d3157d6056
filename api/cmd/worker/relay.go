package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"cafeteria-menu-system/api/internal/models"
	"cafeteria-menu-system/api/internal/repos"
	"cafeteria-menu-system/shared/events"
	"cafeteria-menu-system/shared/logx"
	"cafeteria-menu-system/shared/metricsx"
)

type outboxStore interface {
	GetByID(ctx context.Context, eventID uuid.UUID) (models.OutboxEvent, error)
	MarkDelivered(ctx context.Context, eventID uuid.UUID) error
	MarkFailed(ctx context.Context, eventID uuid.UUID, attempts int, nextRetryAt *time.Time, lastErr string, dead bool) error
}

type publisher interface {
	PublishEnvelope(ctx context.Context, env events.Envelope) error
}

type retryPolicy struct {
	Base        time.Duration
	Max         time.Duration
	MaxAttempts int
}

// delay grows quadratically from Base and is capped at Max.
func (p retryPolicy) delay(attempt int) time.Duration {
	base := p.Base
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	limit := p.Max
	if limit <= 0 {
		limit = time.Minute
	}
	if attempt <= 0 {
		return base
	}
	delay := time.Duration(attempt*attempt) * base
	if delay > limit || delay <= 0 {
		return limit
	}
	return delay
}

type relay struct {
	store  outboxStore
	pub    publisher
	policy retryPolicy
	logger logx.Logger
	now    func() time.Time
}

// fail records a failed attempt and reports whether the row went dead.
func (r relay) fail(ctx context.Context, event models.OutboxEvent, cause error) (bool, error) {
	attempts := event.Attempts + 1
	dead := r.policy.MaxAttempts > 0 && attempts >= r.policy.MaxAttempts
	next := r.now().UTC().Add(r.policy.delay(attempts))
	if err := r.store.MarkFailed(ctx, event.EventID, attempts, &next, cause.Error(), dead); err != nil {
		return dead, err
	}
	if dead {
		metricsx.IncOutboxDispatch("dead")
		r.logger.Warn(ctx, "outbox_dead", "outbox event moved to dead-letter",
			slog.String("event_id", event.EventID.String()),
			slog.String("event_type", event.EventType),
			slog.Int("attempts", attempts),
			slog.String("error", cause.Error()),
		)
	} else {
		metricsx.IncOutboxDispatch("retry")
	}
	return dead, nil
}

// dispatch publishes one outbox row. A returned error asks asynq to retry
// the task; dead-lettered rows return nil.
func (r relay) dispatch(ctx context.Context, eventID uuid.UUID) error {
	event, err := r.store.GetByID(ctx, eventID)
	if err != nil {
		return err
	}
	if event.Status == repos.OutboxStatusDelivered || event.Status == repos.OutboxStatusDead {
		return nil
	}

	var env events.Envelope
	if err := sonic.Unmarshal(event.Payload, &env); err != nil {
		// A payload that cannot be decoded never will be.
		event.Attempts = max(event.Attempts, r.policy.MaxAttempts-1)
		_, markErr := r.fail(ctx, event, fmt.Errorf("decode envelope: %w", err))
		return markErr
	}

	if err := r.pub.PublishEnvelope(ctx, env); err != nil {
		dead, markErr := r.fail(ctx, event, err)
		if markErr != nil {
			return markErr
		}
		if dead {
			return nil
		}
		return err
	}
	if err := r.store.MarkDelivered(ctx, event.EventID); err != nil {
		return err
	}
	metricsx.IncOutboxDispatch("delivered")
	return nil
}
