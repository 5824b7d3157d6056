package domain

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	testNow      = time.Date(2026, 10, 17, 8, 30, 0, 0, time.UTC)
	testLocation = uuid.MustParse("0191f5a0-0000-7000-8000-000000000001")
	testDevice   = uuid.MustParse("0191f5a0-0000-7000-8000-000000000002")
	testDate     = Date{Year: 2026, Month: time.October, Day: 17}
)

func soup(t *testing.T) MenuItem {
	t.Helper()
	day := Weekday(time.Friday)
	item, err := NewMenuItem(uuid.MustParse("0191f5a0-0000-7000-8000-0000000000aa"), MenuItemFields{
		Name:            "Soup",
		Description:     "Tomato",
		EmployeePrice:   decimal.RequireFromString("1.50"),
		ExternalPrice:   decimal.RequireFromString("3.00"),
		Allergens:       []string{"gluten", " gluten", "celery"},
		Type:            MenuTypeLunch,
		IsSpecialOffer:  true,
		SpecialOfferDay: &day,
	})
	if err != nil {
		t.Fatalf("new menu item: %v", err)
	}
	return item
}

func sampleEvents(t *testing.T) []Event {
	h := Header{EventID: uuid.MustParse("0191f5a0-0000-7000-8000-0000000000ff"), OccurredAt: testNow}
	menuID := DailyMenuID(testLocation, testDate)
	return []Event{
		LocationCreated{Header: h, LocationID: testLocation, Name: "Main Campus", TimeZone: "Europe/Prague"},
		LocationActivated{Header: h, LocationID: testLocation},
		LocationDeactivated{Header: h, LocationID: testLocation},
		DeviceRegistered{Header: h, DeviceID: testDevice, LocationID: testLocation, Name: "Lobby", Type: DeviceTypeDailyMenu, APIKeyHash: HashAPIKey("k"), RegisteredAt: testNow},
		DeviceEnabled{Header: h, DeviceID: testDevice, LocationID: testLocation},
		DeviceDisabled{Header: h, DeviceID: testDevice, LocationID: testLocation},
		DailyMenuCreated{Header: h, DailyMenuID: menuID, LocationID: testLocation, Date: testDate},
		DailyMenuEnabled{Header: h, DailyMenuID: menuID, LocationID: testLocation, Date: testDate},
		DailyMenuDisabled{Header: h, DailyMenuID: menuID, LocationID: testLocation, Date: testDate},
		MenuItemAdded{Header: h, DailyMenuID: menuID, LocationID: testLocation, Date: testDate, Item: soup(t)},
		MenuItemRemoved{Header: h, DailyMenuID: menuID, LocationID: testLocation, Date: testDate, MenuItemID: soup(t).ID},
	}
}

func eventsEqual(a, b Event) bool {
	am, aok := a.(MenuItemAdded)
	bm, bok := b.(MenuItemAdded)
	if aok && bok {
		return am.Header == bm.Header && am.DailyMenuID == bm.DailyMenuID && am.LocationID == bm.LocationID &&
			am.Date == bm.Date && am.Item.Equal(bm.Item)
	}
	return reflect.DeepEqual(a, b)
}

func TestCodecRoundTripCoversCatalog(t *testing.T) {
	seen := map[string]bool{}
	for _, ev := range sampleEvents(t) {
		tag, payload, err := Encode(ev)
		if err != nil {
			t.Fatalf("encode %s: %v", ev.EventType(), err)
		}
		if tag != ev.EventType() {
			t.Fatalf("tag mismatch: %s vs %s", tag, ev.EventType())
		}
		decoded, err := Decode(tag, payload)
		if err != nil {
			t.Fatalf("decode %s: %v", tag, err)
		}
		if !eventsEqual(ev, decoded) {
			t.Fatalf("round trip mismatch for %s:\n got %#v\nwant %#v", tag, decoded, ev)
		}
		seen[tag] = true
	}
	for _, tag := range Catalog() {
		if !seen[tag] {
			t.Fatalf("catalog event %s has no round-trip sample", tag)
		}
	}
}

func TestDecodeIsCaseInsensitive(t *testing.T) {
	ev := LocationActivated{Header: NewHeader(testNow), LocationID: testLocation}
	_, payload, err := Encode(ev)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := Decode("locationactivated", payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.EventType() != TypeLocationActivated {
		t.Fatalf("unexpected type %s", decoded.EventType())
	}
}

func TestDecodeErrors(t *testing.T) {
	cases := []struct {
		name    string
		tag     string
		payload string
		unknown bool
	}{
		{name: "unknown tag", tag: "LocationRenamed", payload: `{}`, unknown: true},
		{name: "malformed json", tag: TypeLocationCreated, payload: `{"location_id":`},
		{name: "wrong shape", tag: TypeMenuItemAdded, payload: `{"menu_item":"soup"}`},
		{name: "missing ids", tag: TypeDailyMenuCreated, payload: `{"date":"2026-10-17"}`},
		{name: "missing device type", tag: TypeDeviceRegistered, payload: `{"device_id":"0191f5a0-0000-7000-8000-000000000002","location_id":"0191f5a0-0000-7000-8000-000000000001","api_key_sha256":"x"}`},
		{name: "missing menu type", tag: TypeMenuItemAdded, payload: `{"daily_menu_id":"0191f5a0-0000-7000-8000-000000000003","location_id":"0191f5a0-0000-7000-8000-000000000001","date":"2026-10-17","menu_item":{"id":"0191f5a0-0000-7000-8000-000000000004","name":"Soup","employee_price":"1.50","external_price":"3.00"}}`},
		{name: "bad enum", tag: TypeDeviceRegistered, payload: `{"device_id":"0191f5a0-0000-7000-8000-000000000002","location_id":"0191f5a0-0000-7000-8000-000000000001","type":"Toaster","api_key_sha256":"x"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(tc.tag, []byte(tc.payload))
			var de *DecodingError
			if !errors.As(err, &de) {
				t.Fatalf("expected DecodingError, got %v", err)
			}
			if tc.unknown != errors.Is(err, ErrUnknownEventType) {
				t.Fatalf("unexpected unknown-type classification: %v", err)
			}
		})
	}
}

func TestVisitDispatchesEveryEvent(t *testing.T) {
	rec := &recordingVisitor{}
	for _, ev := range sampleEvents(t) {
		Visit(ev, rec)
	}
	if !reflect.DeepEqual(rec.seen, Catalog()) {
		t.Fatalf("visitor saw %v, want %v", rec.seen, Catalog())
	}
}

type recordingVisitor struct{ seen []string }

func (r *recordingVisitor) OnLocationCreated(e LocationCreated) { r.seen = append(r.seen, e.EventType()) }
func (r *recordingVisitor) OnLocationActivated(e LocationActivated) { r.seen = append(r.seen, e.EventType()) }
func (r *recordingVisitor) OnLocationDeactivated(e LocationDeactivated) { r.seen = append(r.seen, e.EventType()) }
func (r *recordingVisitor) OnDeviceRegistered(e DeviceRegistered) { r.seen = append(r.seen, e.EventType()) }
func (r *recordingVisitor) OnDeviceEnabled(e DeviceEnabled) { r.seen = append(r.seen, e.EventType()) }
func (r *recordingVisitor) OnDeviceDisabled(e DeviceDisabled) { r.seen = append(r.seen, e.EventType()) }
func (r *recordingVisitor) OnDailyMenuCreated(e DailyMenuCreated) { r.seen = append(r.seen, e.EventType()) }
func (r *recordingVisitor) OnDailyMenuEnabled(e DailyMenuEnabled) { r.seen = append(r.seen, e.EventType()) }
func (r *recordingVisitor) OnDailyMenuDisabled(e DailyMenuDisabled) { r.seen = append(r.seen, e.EventType()) }
func (r *recordingVisitor) OnMenuItemAdded(e MenuItemAdded) { r.seen = append(r.seen, e.EventType()) }
func (r *recordingVisitor) OnMenuItemRemoved(e MenuItemRemoved) { r.seen = append(r.seen, e.EventType()) }
