package domain

import (
	"strings"

	"github.com/google/uuid"
)

const (
	AggregateLocation  = "location"
	AggregateDevice    = "device"
	AggregateDailyMenu = "dailymenu"
)

// idNamespace scopes content-derived identifiers of this system.
var idNamespace = uuid.MustParse("6f1d3c1e-5b7a-4c52-9f0e-2a8d4b6c7e90")

func LocationStream(id uuid.UUID) string {
	return AggregateLocation + "-" + id.String()
}

func DeviceStream(id uuid.UUID) string {
	return AggregateDevice + "-" + id.String()
}

func DailyMenuStream(locationID uuid.UUID, date Date) string {
	return AggregateDailyMenu + "-" + locationID.String() + "-" + date.String()
}

// AggregateTypeOf returns the stream category, the prefix before the first dash.
func AggregateTypeOf(streamKey string) string {
	category, _, _ := strings.Cut(streamKey, "-")
	return category
}

// DailyMenuID is derived from the (location, date) key so every writer
// agrees on the same identity.
func DailyMenuID(locationID uuid.UUID, date Date) uuid.UUID {
	return uuid.NewSHA1(idNamespace, []byte(DailyMenuStream(locationID, date)))
}

// MenuItemIDForKey derives a menu item id from an idempotency key.
func MenuItemIDForKey(locationID uuid.UUID, date Date, key string) uuid.UUID {
	return uuid.NewSHA1(idNamespace, []byte(DailyMenuStream(locationID, date)+"/item/"+key))
}

func NewID() uuid.UUID { return newID() }

func newID() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return id
}
