package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"cafeteria-menu-system/core/menu"
)

func newLocationCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "location",
		Short:   "Manage cafeteria locations",
		GroupID: "admin",
	}

	var (
		name     string
		timeZone string
		id       string
	)
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a location",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := menu.CreateLocation{Name: name, TimeZone: timeZone}
			if id != "" {
				parsed, err := uuid.Parse(id)
				if err != nil {
					return fmt.Errorf("invalid --id: %w", err)
				}
				req.ID = parsed
			}
			if err := a.open(cmd.Context()); err != nil {
				return err
			}
			created, err := a.svc.CreateLocation(cmd.Context(), req)
			if err != nil {
				return err
			}
			if a.jsonOutput {
				return a.printJSON(map[string]any{"id": created})
			}
			_, err = fmt.Fprintf(a.out, "Created location %s\n", created)
			return err
		},
	}
	create.Flags().StringVar(&name, "name", "", "display name")
	create.Flags().StringVar(&timeZone, "tz", "", "IANA time zone, e.g. Europe/Berlin")
	create.Flags().StringVar(&id, "id", "", "explicit location id (optional)")
	_ = create.MarkFlagRequired("name")
	_ = create.MarkFlagRequired("tz")

	list := &cobra.Command{
		Use:   "list",
		Short: "List locations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(cmd.Context()); err != nil {
				return err
			}
			locations, err := a.svc.ListLocations(cmd.Context())
			if err != nil {
				return err
			}
			if a.jsonOutput {
				return a.printJSON(locations)
			}
			w := a.table("ID\tNAME\tTIME ZONE\tSTATUS")
			for _, l := range locations {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", l.ID, l.Name, l.TimeZone, onOff(l.Active, "active", "inactive"))
			}
			return w.Flush()
		},
	}

	cmd.AddCommand(create, list,
		idCommand(a, "activate", "Activate a location", a.activateLocation),
		idCommand(a, "deactivate", "Deactivate a location", a.deactivateLocation),
	)
	return cmd
}

func (a *app) activateLocation(ctx context.Context, id uuid.UUID) error {
	return a.svc.ActivateLocation(ctx, id)
}

func (a *app) deactivateLocation(ctx context.Context, id uuid.UUID) error {
	return a.svc.DeactivateLocation(ctx, id)
}

// idCommand builds a "<verb> <id>" subcommand around a state toggle.
func idCommand(a *app, verb string, short string, op func(context.Context, uuid.UUID) error) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid id %q: %w", args[0], err)
			}
			if err := a.open(cmd.Context()); err != nil {
				return err
			}
			if err := op(cmd.Context(), id); err != nil {
				return err
			}
			_, err = fmt.Fprintf(a.out, "%s: %s ok\n", id, verb)
			return err
		},
	}
}
