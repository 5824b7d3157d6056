package domain

import (
	"encoding/base64"
	"errors"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func newItem(t *testing.T, name string) MenuItem {
	t.Helper()
	item, err := NewMenuItem(NewID(), MenuItemFields{
		Name:          name,
		EmployeePrice: decimal.NewFromInt(1),
		ExternalPrice: decimal.NewFromInt(2),
		Type:          MenuTypeBreakfast,
	})
	if err != nil {
		t.Fatalf("new item: %v", err)
	}
	return item
}

func createdMenu(t *testing.T) DailyMenu {
	t.Helper()
	created, err := NewDailyMenu(testLocation, testDate, testNow)
	if err != nil {
		t.Fatalf("new daily menu: %v", err)
	}
	var m DailyMenu
	m.Apply(created)
	return m
}

func TestLocationFold(t *testing.T) {
	zone, err := time.LoadLocation("Europe/Prague")
	if err != nil {
		t.Fatalf("load zone: %v", err)
	}
	created, err := NewLocation(testLocation, " Main Campus ", zone, testNow)
	if err != nil {
		t.Fatalf("new location: %v", err)
	}
	var l Location
	l.Apply(created)
	if !l.Exists() || !l.Active || l.Name != "Main Campus" || l.TimeZone != "Europe/Prague" {
		t.Fatalf("unexpected location state: %+v", l)
	}

	if _, changed := l.SetActive(true, testNow); changed {
		t.Fatalf("activating an active location must be a no-op")
	}
	ev, changed := l.SetActive(false, testNow)
	if !changed || ev.EventType() != TypeLocationDeactivated {
		t.Fatalf("expected deactivation event, got %v %v", ev, changed)
	}
	l.Apply(ev)
	if l.Active || l.Version != 2 {
		t.Fatalf("unexpected state after deactivate: %+v", l)
	}
}

func TestNewLocationValidation(t *testing.T) {
	if _, err := NewLocation(testLocation, "  ", time.UTC, testNow); !IsValidation(err) {
		t.Fatalf("expected validation error for blank name, got %v", err)
	}
	_, err := NewLocation(testLocation, "x", nil, testNow)
	if !errors.Is(err, ErrInvalidTimeZone) {
		t.Fatalf("expected invalid time zone, got %v", err)
	}
}

func TestRegisterDeviceKey(t *testing.T) {
	ev, key, err := RegisterDevice(testDevice, "Lobby", DeviceTypeSingleDish, testLocation, testNow)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if strings.ContainsAny(key, "+/=") {
		t.Fatalf("key is not url safe: %q", key)
	}
	raw, err := base64.RawURLEncoding.DecodeString(key)
	if err != nil || len(raw) != 16 {
		t.Fatalf("key should encode 16 bytes: %q %v", key, err)
	}
	if ev.APIKeyHash != HashAPIKey(key) || strings.Contains(ev.APIKeyHash, key) {
		t.Fatalf("event must carry only the key hash")
	}

	var d Device
	d.Apply(ev)
	if !d.Enabled || d.LocationID != testLocation {
		t.Fatalf("unexpected device: %+v", d)
	}
	off, changed := d.SetEnabled(false, testNow)
	if !changed {
		t.Fatalf("expected disable event")
	}
	d.Apply(off)
	if _, changed := d.SetEnabled(false, testNow); changed {
		t.Fatalf("second disable must be a no-op")
	}
}

func TestDailyMenuAddRemoveMatchesModel(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	pool := make([]MenuItem, 6)
	for i := range pool {
		pool[i] = newItem(t, "dish")
	}

	for round := 0; round < 50; round++ {
		m := createdMenu(t)
		want := map[uuid.UUID]bool{}
		for step := 0; step < 30; step++ {
			item := pool[rng.Intn(len(pool))]
			if rng.Intn(2) == 0 {
				m.Apply(m.AddItem(item, testNow))
				want[item.ID] = true
				continue
			}
			ev := MenuItemRemoved{Header: NewHeader(testNow), DailyMenuID: m.ID, LocationID: testLocation, Date: testDate, MenuItemID: item.ID}
			m.Apply(ev)
			delete(want, item.ID)
		}

		items := m.Items()
		if len(items) != len(want) {
			t.Fatalf("round %d: got %d items want %d", round, len(items), len(want))
		}
		seen := map[uuid.UUID]bool{}
		for _, it := range items {
			if !want[it.ID] || seen[it.ID] {
				t.Fatalf("round %d: unexpected or duplicate item %s", round, it.ID)
			}
			seen[it.ID] = true
		}
	}
}

func TestDailyMenuAddReplacesSameID(t *testing.T) {
	m := createdMenu(t)
	item := newItem(t, "Soup")
	m.Apply(m.AddItem(item, testNow))
	renamed := item
	renamed.Name = "Soup of the day"
	m.Apply(m.AddItem(renamed, testNow))
	items := m.Items()
	if len(items) != 1 || items[0].Name != "Soup of the day" {
		t.Fatalf("expected replaced item, got %+v", items)
	}
}

func TestDailyMenuToggleIsOrderSensitive(t *testing.T) {
	base := createdMenu(t)
	disabled := DailyMenuDisabled{Header: NewHeader(testNow), DailyMenuID: base.ID, LocationID: testLocation, Date: testDate}
	enabled := DailyMenuEnabled{Header: NewHeader(testNow), DailyMenuID: base.ID, LocationID: testLocation, Date: testDate}

	a := createdMenu(t)
	a.Apply(disabled)
	a.Apply(enabled)
	if !a.Enabled {
		t.Fatalf("disabled then enabled should be enabled")
	}

	b := createdMenu(t)
	b.Apply(enabled)
	b.Apply(disabled)
	if b.Enabled {
		t.Fatalf("enabled then disabled should be disabled")
	}
	b.Apply(b.AddItem(newItem(t, "Tea"), testNow))
	if len(b.Visible()) != 0 || len(b.Items()) != 1 {
		t.Fatalf("disabled menu must hide items without dropping them")
	}
}

func TestDailyMenuRemoveMissingIsNoop(t *testing.T) {
	m := createdMenu(t)
	if _, ok := m.RemoveItem(NewID(), testNow); ok {
		t.Fatalf("removing an absent item must not emit an event")
	}
	if _, changed := m.SetEnabled(true, testNow); changed {
		t.Fatalf("enabling an enabled menu must not emit an event")
	}
}

func TestDailyMenuIDIsDeterministic(t *testing.T) {
	if DailyMenuID(testLocation, testDate) != DailyMenuID(testLocation, testDate) {
		t.Fatalf("daily menu id must be content derived")
	}
	if DailyMenuID(testLocation, testDate) == DailyMenuID(testLocation, testDate.AddDays(1)) {
		t.Fatalf("different dates must yield different ids")
	}
	if got := AggregateTypeOf(DailyMenuStream(testLocation, testDate)); got != AggregateDailyMenu {
		t.Fatalf("unexpected aggregate type %q", got)
	}
}

func TestNewMenuItemValidation(t *testing.T) {
	day := Weekday(time.Monday)
	cases := []MenuItemFields{
		{Name: "", Type: MenuTypeLunch},
		{Name: "x", Type: MenuTypeLunch, EmployeePrice: decimal.NewFromInt(-1)},
		{Name: "x", Type: 0},
		{Name: "x", Type: MenuTypeLunch, SpecialOfferDay: &day},
	}
	for i, f := range cases {
		if _, err := NewMenuItem(NewID(), f); !IsValidation(err) {
			t.Fatalf("case %d: expected validation error, got %v", i, err)
		}
	}
}

func TestAllergensAreDeduplicated(t *testing.T) {
	got := NormalizeAllergens([]string{"nuts", "gluten", "nuts ", ""})
	if len(got) != 2 || got[0] != "gluten" || got[1] != "nuts" {
		t.Fatalf("unexpected allergens %v", got)
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2026-02-28")
	if err != nil || d.AddDays(1).String() != "2026-03-01" {
		t.Fatalf("unexpected date arithmetic: %v %v", d, err)
	}
	if _, err := ParseDate("28/02/2026"); !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
