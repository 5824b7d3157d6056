package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"cafeteria-menu-system/api/internal/eventstore"
	"cafeteria-menu-system/core/eventlog"
	"cafeteria-menu-system/core/menu"
	"cafeteria-menu-system/shared/config"
	"cafeteria-menu-system/shared/logx"
)

// app holds what every subcommand needs. Tests build one around an
// in-memory log and skip the store setup.
type app struct {
	cfg        config.Config
	logger     logx.Logger
	store      *eventstore.Store
	log        eventlog.Log
	svc        *menu.Service
	jsonOutput bool
	out        io.Writer
}

func (a *app) open(ctx context.Context) error {
	if a.svc != nil {
		return nil
	}
	store, err := eventstore.Open(ctx, a.cfg)
	if err != nil {
		return fmt.Errorf("open %s event store: %w", a.cfg.EventStore, err)
	}
	a.store = store
	a.log = store.Log
	a.svc = menu.NewService(store.Log, menu.WithLogger(a.logger))
	return nil
}

// logHead is the position of the newest event, 0 for an empty log.
func (a *app) logHead(ctx context.Context) (uint64, error) {
	if a.store != nil && a.store.Events != nil {
		return a.store.Events.LastPosition(ctx)
	}
	var head uint64
	for rec, err := range a.log.ReadAllForward(ctx, 0) {
		if err != nil {
			return 0, err
		}
		head = rec.Position
	}
	return head, nil
}

func (a *app) close() {
	if a.store != nil {
		a.store.Close()
		a.store = nil
		a.log = nil
		a.svc = nil
	}
}

func newRootCmd(a *app) *cobra.Command {
	var (
		storeKind   string
		databaseURL string
		sqlitePath  string
	)
	root := &cobra.Command{
		Use:           "menuctl <command>",
		Short:         "Operate the cafeteria menu event store",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.out = cmd.OutOrStdout()
			if storeKind != "" {
				a.cfg.EventStore = strings.ToLower(storeKind)
			}
			if databaseURL != "" {
				a.cfg.DatabaseURL = databaseURL
			}
			if sqlitePath != "" {
				a.cfg.SQLitePath = sqlitePath
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}
	root.PersistentFlags().StringVar(&storeKind, "store", "", "event store: postgres, sqlite or memory (default from config)")
	root.PersistentFlags().StringVar(&databaseURL, "database-url", "", "postgres connection string (default from config)")
	root.PersistentFlags().StringVar(&sqlitePath, "sqlite-path", "", "sqlite database file (default from config)")
	root.PersistentFlags().BoolVar(&a.jsonOutput, "json", false, "output as JSON")

	root.AddGroup(
		&cobra.Group{ID: "admin", Title: "Administration:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)

	root.AddCommand(newLocationCmd(a))
	root.AddCommand(newDeviceCmd(a))
	root.AddCommand(newMenuCmd(a))
	root.AddCommand(newMigrateCmd(a))
	root.AddCommand(newProjectionCmd(a))
	root.AddCommand(newStatsCmd(a))
	root.AddCommand(newAuditCmd(a))
	return root
}

func main() {
	cfg, problems := config.Load("menuctl", 8080)
	logger := logx.New(cfg.ServiceName, cfg.Env, strings.TrimSpace(os.Getenv("VERSION")), cfg.LogLevel)
	for _, p := range problems {
		fmt.Fprintf(os.Stderr, "config: %s: %s\n", p.Field, p.Message)
	}

	a := &app{cfg: cfg, logger: logger, out: os.Stdout}
	if err := newRootCmd(a).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
