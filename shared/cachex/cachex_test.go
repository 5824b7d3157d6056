package cachex

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewFromClient(rdb, "test:"), mr
}

func TestSetGetJSON(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()
	key := c.TodayMenuKey(uuid.MustParse("2b1c7f0e-3c39-4c8e-9a43-2f1c0b6a4d11"), "2024-03-04")
	if key != "test:menu:today:2b1c7f0e-3c39-4c8e-9a43-2f1c0b6a4d11:2024-03-04" {
		t.Fatalf("unexpected key %q", key)
	}

	var got payload
	ok, err := c.GetJSON(ctx, key, &got)
	if err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}

	if err := c.SetJSON(ctx, key, payload{Name: "soup", Count: 2}, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	ok, err = c.GetJSON(ctx, key, &got)
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if got.Name != "soup" || got.Count != 2 {
		t.Fatalf("unexpected payload %+v", got)
	}

	mr.FastForward(2 * time.Minute)
	ok, _ = c.GetJSON(ctx, key, &got)
	if ok {
		t.Fatalf("expected expiry")
	}
}

func TestGetJSONDropsUnreadablePayload(t *testing.T) {
	c, mr := newTestClient(t)
	if err := mr.Set("test:broken", "{not json"); err != nil {
		t.Fatal(err)
	}
	var got payload
	ok, err := c.GetJSON(context.Background(), "test:broken", &got)
	if err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
	if mr.Exists("test:broken") {
		t.Fatalf("expected broken key to be deleted")
	}
}

func TestNilClientIsDisabledCache(t *testing.T) {
	var c *Client
	ctx := context.Background()
	if err := c.SetJSON(ctx, "k", payload{}, time.Second); err != nil {
		t.Fatalf("set on nil: %v", err)
	}
	ok, err := c.GetJSON(ctx, "k", &payload{})
	if ok || err != nil {
		t.Fatalf("get on nil: ok=%v err=%v", ok, err)
	}
	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete on nil: %v", err)
	}
	if err := c.Ping(ctx); err == nil {
		t.Fatalf("expected ping error on nil client")
	}
}
