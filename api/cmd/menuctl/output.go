package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/bytedance/sonic"

	"cafeteria-menu-system/core/domain"
)

func (a *app) printJSON(v any) error {
	data, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	_, err = fmt.Fprintln(a.out, string(data))
	return err
}

func (a *app) table(header string) *tabwriter.Writer {
	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, header)
	return w
}

func (a *app) printItems(items []domain.MenuItem) error {
	w := a.table("ID\tTYPE\tNAME\tEMPLOYEE\tEXTERNAL\tALLERGENS\tOFFER")
	for _, it := range items {
		offer := ""
		if it.IsSpecialOffer {
			offer = "yes"
			if it.SpecialOfferDay != nil {
				offer = it.SpecialOfferDay.String()
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			it.ID, it.Type, it.Name,
			it.EmployeePrice.StringFixed(2), it.ExternalPrice.StringFixed(2),
			strings.Join(it.Allergens, ","), offer,
		)
	}
	return w.Flush()
}

func onOff(b bool, on string, off string) string {
	if b {
		return on
	}
	return off
}
