package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"cafeteria-menu-system/core/domain"
	"cafeteria-menu-system/core/eventlog"
	"cafeteria-menu-system/core/menu"
	"cafeteria-menu-system/core/zone"
	"cafeteria-menu-system/shared/config"
	"cafeteria-menu-system/shared/logx"
)

const testLocation = "3f0d5b8e-2f7c-4c1e-9d6a-5b7e9c2a1f00"

var clockNow = time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)

func newTestApp() *app {
	log := eventlog.NewMemory()
	return &app{
		cfg:    config.Config{EventStore: config.EventStoreMemory, ProjectionBatchSize: 50},
		logger: logx.Discard(),
		log:    log,
		svc:    menu.NewService(log, menu.WithClock(zone.FixedClock(clockNow)), menu.WithLogger(logx.Discard())),
	}
}

func run(t *testing.T, a *app, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd(a)
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func mustRun(t *testing.T, a *app, args ...string) string {
	t.Helper()
	out, err := run(t, a, args...)
	if err != nil {
		t.Fatalf("menuctl %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func TestLocationLifecycle(t *testing.T) {
	a := newTestApp()

	out := mustRun(t, a, "location", "create", "--id", testLocation, "--name", "North Hall", "--tz", "Europe/Berlin")
	if !strings.Contains(out, testLocation) {
		t.Fatalf("unexpected create output %q", out)
	}
	mustRun(t, a, "location", "deactivate", testLocation)

	out = mustRun(t, a, "--json", "location", "list")
	var locations []struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		TimeZone string `json:"time_zone"`
		Active   bool   `json:"active"`
	}
	if err := json.Unmarshal([]byte(out), &locations); err != nil {
		t.Fatalf("decode list: %v\n%s", err, out)
	}
	if len(locations) != 1 || locations[0].ID != testLocation || locations[0].Active || locations[0].TimeZone != "Europe/Berlin" {
		t.Fatalf("unexpected locations %+v", locations)
	}

	_, err := run(t, a, "location", "create", "--id", testLocation, "--name", "Again", "--tz", "UTC")
	if !errors.Is(err, eventlog.ErrVersionConflict) {
		t.Fatalf("expected version conflict on duplicate id, got %v", err)
	}
}

func TestLocationCreateValidation(t *testing.T) {
	a := newTestApp()
	if _, err := run(t, a, "location", "create", "--name", "Nowhere", "--tz", "Mars/Olympus"); !domain.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := run(t, a, "location", "create", "--name", "Missing zone"); err == nil {
		t.Fatalf("expected required flag error")
	}
	if _, err := run(t, a, "location", "activate", "not-a-uuid"); err == nil {
		t.Fatalf("expected invalid id error")
	}
}

func TestMenuWorkflow(t *testing.T) {
	a := newTestApp()
	mustRun(t, a, "location", "create", "--id", testLocation, "--name", "North Hall", "--tz", "UTC")
	target := []string{"--location", testLocation, "--date", "2024-06-03"}

	mustRun(t, a, append([]string{"menu", "create"}, target...)...)
	out := mustRun(t, a, append([]string{"--json", "menu", "add-item",
		"--name", "Lentil soup", "--type", "lunch",
		"--employee-price", "3.50", "--external-price", "5.00",
		"--allergen", "celery", "--idempotency-key", "soup-1"}, target...)...)
	var added struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal([]byte(out), &added); err != nil || added.ID == "" {
		t.Fatalf("decode add-item: %v\n%s", err, out)
	}

	// Same idempotency key, same item.
	again := mustRun(t, a, append([]string{"--json", "menu", "add-item",
		"--name", "Lentil soup", "--type", "lunch", "--idempotency-key", "soup-1"}, target...)...)
	if !strings.Contains(again, added.ID) {
		t.Fatalf("idempotent add returned %q, want %s", again, added.ID)
	}

	out = mustRun(t, a, "menu", "today", "--location", testLocation)
	if !strings.Contains(out, "Lentil soup") || !strings.Contains(out, "3.50") {
		t.Fatalf("today menu missing item:\n%s", out)
	}

	mustRun(t, a, append([]string{"menu", "disable"}, target...)...)
	out = mustRun(t, a, "--json", "menu", "today", "--location", testLocation)
	var today struct {
		Enabled bool              `json:"enabled"`
		Items   []json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal([]byte(out), &today); err != nil {
		t.Fatalf("decode today: %v\n%s", err, out)
	}
	if today.Enabled || len(today.Items) != 0 {
		t.Fatalf("disabled menu should serve nothing, got %+v", today)
	}

	out = mustRun(t, a, append([]string{"menu", "show"}, target...)...)
	if !strings.Contains(out, "disabled") || !strings.Contains(out, "Lentil soup") {
		t.Fatalf("show should list items of a disabled menu:\n%s", out)
	}

	mustRun(t, a, append([]string{"menu", "remove-item", added.ID}, target...)...)
	out = mustRun(t, a, "menu", "item", added.ID)
	if !strings.Contains(out, "Lentil soup") {
		t.Fatalf("removed item should stay retrievable:\n%s", out)
	}

	// Removing an item that is no longer on the menu is a no-op.
	mustRun(t, a, append([]string{"menu", "remove-item", added.ID}, target...)...)
	if _, err := run(t, a, "menu", "show", "--location", testLocation, "--date", "2024-06-04"); !domain.IsNotFound(err) {
		t.Fatalf("expected daily menu not found, got %v", err)
	}
}

func TestDeviceRegisterAndToggle(t *testing.T) {
	a := newTestApp()
	mustRun(t, a, "location", "create", "--id", testLocation, "--name", "North Hall", "--tz", "UTC")

	out := mustRun(t, a, "--json", "device", "register", "--name", "Lobby screen", "--type", "daily_menu", "--location", testLocation)
	var dev menu.RegisteredDevice
	if err := json.Unmarshal([]byte(out), &dev); err != nil || dev.APIKey == "" {
		t.Fatalf("decode register: %v\n%s", err, out)
	}

	mustRun(t, a, "device", "disable", dev.DeviceID.String())
	if _, err := a.svc.AuthenticateDevice(context.Background(), dev.APIKey); !errors.Is(err, domain.ErrDeviceDisabled) {
		t.Fatalf("expected disabled device, got %v", err)
	}
	mustRun(t, a, "device", "enable", dev.DeviceID.String())
	if _, err := a.svc.AuthenticateDevice(context.Background(), dev.APIKey); err != nil {
		t.Fatalf("authenticate: %v", err)
	}

	if _, err := run(t, a, "device", "register", "--name", "Ghost", "--type", "single_dish", "--location", "6a1c1bd0-0b51-4a2e-8f55-2e9c4b7d3a10"); !domain.IsNotFound(err) {
		t.Fatalf("expected location not found, got %v", err)
	}
}

func TestProjectionRebuildAndStatus(t *testing.T) {
	a := newTestApp()
	mustRun(t, a, "location", "create", "--id", testLocation, "--name", "North Hall", "--tz", "UTC")
	mustRun(t, a, "location", "deactivate", testLocation)

	out := mustRun(t, a, "projection", "rebuild")
	if !strings.Contains(out, "Replayed 2 event(s)") {
		t.Fatalf("unexpected rebuild output %q", out)
	}

	out = mustRun(t, a, "--json", "projection", "status")
	var status struct {
		Head uint64 `json:"head"`
	}
	if err := json.Unmarshal([]byte(out), &status); err != nil || status.Head != 2 {
		t.Fatalf("unexpected status %q (err %v)", out, err)
	}
}

func TestMigrateRequiresDatabaseURL(t *testing.T) {
	a := newTestApp()
	if _, err := run(t, a, "migrate", "version"); err == nil {
		t.Fatalf("expected error without a database url")
	}
}

func TestReportsNeedBackends(t *testing.T) {
	a := newTestApp()
	if _, err := run(t, a, "stats"); err == nil {
		t.Fatalf("expected error without influx settings")
	}
	if _, err := run(t, a, "audit"); err == nil {
		t.Fatalf("expected error without a postgres store")
	}
}
