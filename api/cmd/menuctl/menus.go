package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"cafeteria-menu-system/core/domain"
	"cafeteria-menu-system/core/menu"
)

// menuTarget is the (location, date) pair that addresses a daily menu.
type menuTarget struct {
	location string
	date     string
}

func (t *menuTarget) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&t.location, "location", "", "location id")
	cmd.Flags().StringVar(&t.date, "date", "", "menu date, YYYY-MM-DD")
	_ = cmd.MarkFlagRequired("location")
	_ = cmd.MarkFlagRequired("date")
}

func (t menuTarget) parse() (uuid.UUID, domain.Date, error) {
	loc, err := uuid.Parse(t.location)
	if err != nil {
		return uuid.Nil, domain.Date{}, fmt.Errorf("invalid --location: %w", err)
	}
	date, err := domain.ParseDate(t.date)
	if err != nil {
		return uuid.Nil, domain.Date{}, err
	}
	return loc, date, nil
}

func newMenuCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "menu",
		Short:   "Manage daily menus",
		GroupID: "admin",
	}
	cmd.AddCommand(
		newMenuCreateCmd(a),
		newMenuAddItemCmd(a),
		newMenuRemoveItemCmd(a),
		newMenuToggleCmd(a, "enable", true),
		newMenuToggleCmd(a, "disable", false),
		newMenuShowCmd(a),
		newMenuTodayCmd(a),
		newMenuItemCmd(a),
	)
	return cmd
}

func newMenuCreateCmd(a *app) *cobra.Command {
	var target menuTarget
	c := &cobra.Command{
		Use:   "create",
		Short: "Create the daily menu for a location and date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, date, err := target.parse()
			if err != nil {
				return err
			}
			if err := a.open(cmd.Context()); err != nil {
				return err
			}
			id, err := a.svc.CreateDailyMenu(cmd.Context(), loc, date)
			if err != nil {
				return err
			}
			if a.jsonOutput {
				return a.printJSON(map[string]any{"id": id})
			}
			_, err = fmt.Fprintf(a.out, "Daily menu %s for %s\n", id, date)
			return err
		},
	}
	target.bind(c)
	return c
}

func newMenuAddItemCmd(a *app) *cobra.Command {
	var (
		target         menuTarget
		name           string
		description    string
		menuType       string
		employeePrice  string
		externalPrice  string
		allergens      []string
		specialOffer   bool
		offerDay       string
		idempotencyKey string
	)
	c := &cobra.Command{
		Use:   "add-item",
		Short: "Add an item to a daily menu",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, date, err := target.parse()
			if err != nil {
				return err
			}
			typ, err := domain.ParseMenuType(menuType)
			if err != nil {
				return err
			}
			employee, err := decimal.NewFromString(employeePrice)
			if err != nil {
				return domain.NewValidationError("employee_price", "employee price must be a decimal number")
			}
			external, err := decimal.NewFromString(externalPrice)
			if err != nil {
				return domain.NewValidationError("external_price", "external price must be a decimal number")
			}
			fields := domain.MenuItemFields{
				Name:           name,
				Description:    description,
				EmployeePrice:  employee,
				ExternalPrice:  external,
				Allergens:      allergens,
				Type:           typ,
				IsSpecialOffer: specialOffer,
			}
			if offerDay != "" {
				day, err := domain.ParseWeekday(offerDay)
				if err != nil {
					return err
				}
				fields.SpecialOfferDay = &day
			}
			if err := a.open(cmd.Context()); err != nil {
				return err
			}
			id, err := a.svc.AddMenuItem(cmd.Context(), menu.AddMenuItem{
				LocationID:     loc,
				Date:           date,
				Fields:         fields,
				IdempotencyKey: idempotencyKey,
			})
			if err != nil {
				return err
			}
			if a.jsonOutput {
				return a.printJSON(map[string]any{"id": id})
			}
			_, err = fmt.Fprintf(a.out, "Added menu item %s\n", id)
			return err
		},
	}
	target.bind(c)
	c.Flags().StringVar(&name, "name", "", "item name")
	c.Flags().StringVar(&description, "description", "", "item description")
	c.Flags().StringVar(&menuType, "type", "", "menu type")
	c.Flags().StringVar(&employeePrice, "employee-price", "0", "price for employees")
	c.Flags().StringVar(&externalPrice, "external-price", "0", "price for external guests")
	c.Flags().StringSliceVar(&allergens, "allergen", nil, "allergen code (repeatable)")
	c.Flags().BoolVar(&specialOffer, "special-offer", false, "mark as special offer")
	c.Flags().StringVar(&offerDay, "offer-day", "", "weekday the special offer applies to")
	c.Flags().StringVar(&idempotencyKey, "idempotency-key", "", "key that makes retries add the item once")
	_ = c.MarkFlagRequired("name")
	_ = c.MarkFlagRequired("type")
	return c
}

func newMenuRemoveItemCmd(a *app) *cobra.Command {
	var target menuTarget
	c := &cobra.Command{
		Use:   "remove-item <item-id>",
		Short: "Remove an item from a daily menu",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, date, err := target.parse()
			if err != nil {
				return err
			}
			itemID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid item id %q: %w", args[0], err)
			}
			if err := a.open(cmd.Context()); err != nil {
				return err
			}
			if err := a.svc.RemoveMenuItem(cmd.Context(), loc, date, itemID); err != nil {
				return err
			}
			_, err = fmt.Fprintf(a.out, "Removed menu item %s\n", itemID)
			return err
		},
	}
	target.bind(c)
	return c
}

func newMenuToggleCmd(a *app, verb string, enabled bool) *cobra.Command {
	var target menuTarget
	c := &cobra.Command{
		Use:   verb,
		Short: onOff(enabled, "Enable", "Disable") + " a daily menu",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, date, err := target.parse()
			if err != nil {
				return err
			}
			if err := a.open(cmd.Context()); err != nil {
				return err
			}
			if enabled {
				err = a.svc.EnableMenu(cmd.Context(), loc, date)
			} else {
				err = a.svc.DisableMenu(cmd.Context(), loc, date)
			}
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(a.out, "Menu %s %s: %s ok\n", loc, date, verb)
			return err
		},
	}
	target.bind(c)
	return c
}

func newMenuShowCmd(a *app) *cobra.Command {
	var target menuTarget
	c := &cobra.Command{
		Use:   "show",
		Short: "Show a daily menu, enabled or not",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, date, err := target.parse()
			if err != nil {
				return err
			}
			if err := a.open(cmd.Context()); err != nil {
				return err
			}
			view, err := a.svc.GetDailyMenu(cmd.Context(), loc, date)
			if err != nil {
				return err
			}
			if a.jsonOutput {
				return a.printJSON(view)
			}
			fmt.Fprintf(a.out, "Menu %s  %s  %s  version %d\n", view.ID, view.Date, onOff(view.Enabled, "enabled", "disabled"), view.Version)
			return a.printItems(view.Items)
		},
	}
	target.bind(c)
	return c
}

func newMenuTodayCmd(a *app) *cobra.Command {
	var location string
	c := &cobra.Command{
		Use:   "today",
		Short: "Show what a location serves today",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := uuid.Parse(location)
			if err != nil {
				return fmt.Errorf("invalid --location: %w", err)
			}
			if err := a.open(cmd.Context()); err != nil {
				return err
			}
			today, err := a.svc.GetTodayMenu(cmd.Context(), loc)
			if err != nil {
				return err
			}
			if a.jsonOutput {
				return a.printJSON(today)
			}
			fmt.Fprintf(a.out, "%s (%s): %d item(s)\n", today.Date, today.TimeZone, len(today.Items))
			return a.printItems(today.Items)
		},
	}
	c.Flags().StringVar(&location, "location", "", "location id")
	_ = c.MarkFlagRequired("location")
	return c
}

func newMenuItemCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "item <item-id>",
		Short: "Look up a menu item by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid item id %q: %w", args[0], err)
			}
			if err := a.open(cmd.Context()); err != nil {
				return err
			}
			view, err := a.svc.GetMenuItem(cmd.Context(), id)
			if err != nil {
				return err
			}
			if a.jsonOutput {
				return a.printJSON(view)
			}
			fmt.Fprintf(a.out, "Location %s  menu %s\n", view.LocationID, view.Date)
			return a.printItems([]domain.MenuItem{view.Item})
		},
	}
}
