package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"cafeteria-menu-system/core/projection"
	"cafeteria-menu-system/shared/cachex"
	"cafeteria-menu-system/shared/lockx"
)

const projectionLockKey = "menu:projection:lock"

var errProjectionBusy = errors.New("another projector holds the projection lock")

func newProjectionCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "projection",
		Short:   "Inspect and rebuild the read models",
		GroupID: "system",
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Compare the projection checkpoint with the log head",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(cmd.Context()); err != nil {
				return err
			}
			head, err := a.logHead(cmd.Context())
			if err != nil {
				return err
			}
			var checkpoint uint64
			if a.cfg.RedisAddr != "" {
				cache, err := cachex.New(a.cfg)
				if err != nil {
					return err
				}
				defer cache.Close()
				if checkpoint, err = projection.NewRedisStore(cache.Client(), "").Checkpoint(cmd.Context()); err != nil {
					return err
				}
			}
			if a.jsonOutput {
				return a.printJSON(map[string]any{"head": head, "checkpoint": checkpoint, "lag": head - min(head, checkpoint)})
			}
			_, err = fmt.Fprintf(a.out, "head %d  checkpoint %d  lag %d\n", head, checkpoint, head-min(head, checkpoint))
			return err
		},
	}

	rebuild := &cobra.Command{
		Use:   "rebuild",
		Short: "Drop the views and replay the whole log into them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(cmd.Context()); err != nil {
				return err
			}
			started := time.Now()
			var (
				applied int
				err     error
			)
			if a.cfg.RedisAddr == "" {
				applied, err = a.rebuild(cmd.Context(), projection.NewMemoryStore())
			} else {
				applied, err = a.rebuildRedis(cmd.Context())
			}
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(a.out, "Replayed %d event(s) in %s\n", applied, time.Since(started).Round(time.Millisecond))
			return err
		},
	}

	cmd.AddCommand(status, rebuild)
	return cmd
}

func (a *app) rebuildRedis(ctx context.Context) (int, error) {
	cache, err := cachex.New(a.cfg)
	if err != nil {
		return 0, err
	}
	defer cache.Close()

	ttl := time.Duration(max(a.cfg.ProjectionLockTTL, 1)) * time.Second
	var applied int
	ran, err := lockx.WithLock(ctx, cache.Client(), projectionLockKey, ttl, func(ctx context.Context) error {
		var err error
		applied, err = a.rebuild(ctx, projection.NewRedisStore(cache.Client(), ""))
		return err
	})
	if err != nil {
		return applied, err
	}
	if !ran {
		return 0, errProjectionBusy
	}
	return applied, nil
}

func (a *app) rebuild(ctx context.Context, store projection.Store) (int, error) {
	if err := store.Reset(ctx); err != nil {
		return 0, fmt.Errorf("reset views: %w", err)
	}
	p := projection.NewProjector(a.log, store,
		projection.WithLogger(a.logger),
		projection.WithName("rebuild"),
		projection.WithBatchSize(a.cfg.ProjectionBatchSize),
	)
	return p.CatchUp(ctx)
}
