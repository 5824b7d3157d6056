package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"cafeteria-menu-system/api/internal/repos"
)

func newMigrateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "migrate",
		Short:   "Manage the postgres schema",
		GroupID: "system",
	}

	withMigrator := func(fn func(*repos.Migrator) error) error {
		m, err := repos.NewMigrator(a.cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer m.Close()
		return fn(m)
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(m *repos.Migrator) error {
				if err := m.Up(); err != nil {
					return err
				}
				v, _, err := m.Version()
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(a.out, "Schema at version %d\n", v)
				return err
			})
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(m *repos.Migrator) error {
				if err := m.Down(steps); err != nil {
					return err
				}
				v, _, err := m.Version()
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(a.out, "Schema at version %d\n", v)
				return err
			})
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back; 0 rolls back everything")

	version := &cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(m *repos.Migrator) error {
				v, dirty, err := m.Version()
				if err != nil {
					return err
				}
				if a.jsonOutput {
					return a.printJSON(map[string]any{"version": v, "dirty": dirty})
				}
				_, err = fmt.Fprintf(a.out, "%d%s\n", v, onOff(dirty, " (dirty)", ""))
				return err
			})
		},
	}

	cmd.AddCommand(up, down, version)
	return cmd
}
