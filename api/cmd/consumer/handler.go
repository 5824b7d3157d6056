package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"cafeteria-menu-system/core/projection"
	"cafeteria-menu-system/shared/lockx"
	"cafeteria-menu-system/shared/logx"
	"cafeteria-menu-system/shared/metricsx"
	"cafeteria-menu-system/shared/mqx"
)

const projectionLockKey = "menu:projection:lock"

// catchUpHandler treats bus messages as wake-ups. The log stays the source
// of truth; the envelope only says how far the projection must reach.
type catchUpHandler struct {
	projector *projection.Projector
	rdb       *redis.Client
	lockTTL   time.Duration
	logger    logx.Logger
}

// handle reports whether msg can be committed.
func (h catchUpHandler) handle(ctx context.Context, msg kafka.Message) bool {
	env, err := mqx.DecodeEnvelope(msg)
	if err != nil {
		metricsx.IncDecodeFailure(mqx.Header(msg, "event_type"))
		h.logger.Warn(ctx, "envelope_decode_failed", "skipping undecodable message",
			slog.Int64("offset", msg.Offset),
			slog.Int("partition", msg.Partition),
			slog.String("error", err.Error()),
		)
		return true
	}

	checkpoint, err := h.projector.Store().Checkpoint(ctx)
	if err != nil {
		h.logger.Error(ctx, "checkpoint_read_failed", "failed to read projection checkpoint",
			slog.String("error_code", "INTERNAL_ERROR"),
			slog.String("error", err.Error()),
		)
		return false
	}
	if env.Position != 0 && env.Position <= checkpoint {
		return true
	}

	// A busy lock means another consumer is projecting and will reach this
	// position, so the message is committed either way.
	_, err = lockx.WithLock(ctx, h.rdb, projectionLockKey, h.lockTTL, func(ctx context.Context) error {
		applied, err := h.projector.CatchUp(ctx)
		if applied > 0 {
			h.logger.Debug(ctx, "projection_caught_up", "projection caught up",
				slog.Int("applied", applied),
				slog.Uint64("position", env.Position),
			)
		}
		return err
	})
	if err != nil {
		h.logger.Error(ctx, "projection_failed", "projection catch-up failed",
			slog.String("error_code", "INTERNAL_ERROR"),
			slog.String("event_type", env.EventType),
			slog.Uint64("position", env.Position),
			slog.String("error", err.Error()),
		)
		return false
	}
	return true
}
