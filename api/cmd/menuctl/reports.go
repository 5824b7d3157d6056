package main

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"cafeteria-menu-system/api/internal/repos"
	"cafeteria-menu-system/shared/influxx"
)

func newStatsCmd(a *app) *cobra.Command {
	var window time.Duration
	cmd := &cobra.Command{
		Use:     "stats",
		Short:   "Count projected events per type from InfluxDB",
		GroupID: "system",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := influxx.New(a.cfg)
			if err != nil {
				return err
			}
			defer client.Close()
			if err := client.Ping(cmd.Context()); err != nil {
				return fmt.Errorf("influx unavailable: %w", err)
			}
			counts, err := client.EventCounts(cmd.Context(), window)
			if err != nil {
				return err
			}
			if a.jsonOutput {
				return a.printJSON(counts)
			}
			types := make([]string, 0, len(counts))
			for typ := range counts {
				types = append(types, typ)
			}
			slices.Sort(types)
			w := a.table("EVENT TYPE\tCOUNT")
			for _, typ := range types {
				fmt.Fprintf(w, "%s\t%d\n", typ, counts[typ])
			}
			return w.Flush()
		},
	}
	cmd.Flags().DurationVar(&window, "window", 24*time.Hour, "trailing time window")
	return cmd
}

func newAuditCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:     "audit",
		Short:   "Show recent audited API requests",
		GroupID: "system",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(cmd.Context()); err != nil {
				return err
			}
			if a.store == nil || a.store.Pool == nil {
				return errors.New("audit log requires the postgres event store")
			}
			entries, err := repos.NewAuditRepo(a.store.Pool).Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if a.jsonOutput {
				return a.printJSON(entries)
			}
			w := a.table("TIME\tACTION\tSTATUS\tMETHOD\tPATH\tSUBJECT")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
					e.OccurredAt.Format(time.RFC3339), e.Action, e.StatusCode, e.Method, e.Path, e.Subject)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "number of entries, newest first")
	return cmd
}
