package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"cafeteria-menu-system/core/domain"
	"cafeteria-menu-system/core/menu"
)

func newDeviceCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "device",
		Short:   "Manage kiosk devices",
		GroupID: "admin",
	}

	var (
		name       string
		deviceType string
		locationID string
	)
	register := &cobra.Command{
		Use:   "register",
		Short: "Register a device and print its API key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := uuid.Parse(locationID)
			if err != nil {
				return fmt.Errorf("invalid --location: %w", err)
			}
			typ, err := domain.ParseDeviceType(deviceType)
			if err != nil {
				return err
			}
			if err := a.open(cmd.Context()); err != nil {
				return err
			}
			dev, err := a.svc.RegisterDevice(cmd.Context(), menu.RegisterDevice{Name: name, Type: typ, LocationID: loc})
			if err != nil {
				return err
			}
			if a.jsonOutput {
				return a.printJSON(dev)
			}
			_, err = fmt.Fprintf(a.out, "Registered device %s\nAPI key: %s\nThe key is shown once; store it now.\n", dev.DeviceID, dev.APIKey)
			return err
		},
	}
	register.Flags().StringVar(&name, "name", "", "device name")
	register.Flags().StringVar(&deviceType, "type", "", "device type")
	register.Flags().StringVar(&locationID, "location", "", "location id")
	_ = register.MarkFlagRequired("name")
	_ = register.MarkFlagRequired("type")
	_ = register.MarkFlagRequired("location")

	cmd.AddCommand(register,
		idCommand(a, "enable", "Enable a device", func(ctx context.Context, id uuid.UUID) error {
			return a.svc.EnableDevice(ctx, id)
		}),
		idCommand(a, "disable", "Disable a device", func(ctx context.Context, id uuid.UUID) error {
			return a.svc.DisableDevice(ctx, id)
		}),
	)
	return cmd
}
