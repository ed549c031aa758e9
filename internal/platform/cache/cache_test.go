package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
)

type statsPayload struct {
	Open int `json:"open"`
	Done int `json:"done"`
}

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	c, err := New(Config{Addr: mr.Addr(), TTL: time.Second})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestCache_RoundTrip(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	in := statsPayload{Open: 3, Done: 7}
	if err := c.SetJSON(ctx, "stats", in); err != nil {
		t.Fatalf("SetJSON error: %v", err)
	}

	var out statsPayload
	if err := c.GetJSON(ctx, "stats", &out); err != nil {
		t.Fatalf("GetJSON error: %v", err)
	}
	if out != in {
		t.Errorf("got %+v, want %+v", out, in)
	}
}

func TestCache_MissAndExpiry(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	var out statsPayload
	if err := c.GetJSON(ctx, "absent", &out); !errors.Is(err, ErrMiss) {
		t.Errorf("expected ErrMiss for absent key, got %v", err)
	}

	if err := c.SetJSON(ctx, "stats", statsPayload{Open: 1}); err != nil {
		t.Fatalf("SetJSON error: %v", err)
	}
	mr.FastForward(2 * time.Second)
	if err := c.GetJSON(ctx, "stats", &out); !errors.Is(err, ErrMiss) {
		t.Errorf("expected ErrMiss after expiry, got %v", err)
	}
}

func TestCache_Invalidate(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	if err := c.SetJSON(ctx, "stats", statsPayload{Open: 1}); err != nil {
		t.Fatalf("SetJSON error: %v", err)
	}
	if err := c.Invalidate(ctx, "stats"); err != nil {
		t.Fatalf("Invalidate error: %v", err)
	}

	var out statsPayload
	if err := c.GetJSON(ctx, "stats", &out); !errors.Is(err, ErrMiss) {
		t.Errorf("expected ErrMiss after invalidate, got %v", err)
	}
}

func TestCache_RequiresAddr(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error for missing address")
	}
}
