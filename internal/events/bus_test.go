package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type failingSink struct{}

func (failingSink) Name() string { return "failing" }
func (failingSink) Handle(context.Context, Event) error { return errors.New("broker unavailable") }

func TestBusFansOut(t *testing.T) {
	bus := NewBus(16, nil)
	first, second := NewHistory(10), NewHistory(10)
	bus.Subscribe(failingSink{})
	bus.Subscribe(first)
	bus.Subscribe(second)

	var mu sync.Mutex
	var failures []string
	bus.OnSinkError(func(sink string) {
		mu.Lock()
		failures = append(failures, sink)
		mu.Unlock()
	})

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	bus.Publish(New(MarketCreated, 1, "0xabc", now))
	bus.Publish(New(BetCommitted, 1, "0xdef", now))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := bus.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, h := range []*History{first, second} {
		if h.Len() != 2 {
			t.Errorf("history got %d events, want 2", h.Len())
		}
	}
	mu.Lock()
	defer mu.Unlock()
	if len(failures) != 2 || failures[0] != "failing" {
		t.Errorf("sink failures = %v", failures)
	}
}

func TestBusDropsWhenFull(t *testing.T) {
	bus := NewBus(1, nil)
	ev := New(BetRevealed, 3, "", time.Now())
	bus.Publish(ev)
	bus.Publish(ev)
	bus.Publish(ev)
	if bus.Dropped() != 2 {
		t.Errorf("dropped = %d, want 2", bus.Dropped())
	}
}

func TestHistory(t *testing.T) {
	h := NewHistory(3)
	now := time.Now()
	for i := uint64(1); i <= 5; i++ {
		h.Add(New(MarketCreated, i, "", now))
	}
	if h.Len() != 3 {
		t.Fatalf("len = %d, want 3", h.Len())
	}
	recent := h.Recent(2)
	if len(recent) != 2 || recent[0].MarketID != 4 || recent[1].MarketID != 5 {
		t.Errorf("recent = %+v", recent)
	}
	if all := h.Recent(0); len(all) != 3 || all[0].MarketID != 3 {
		t.Errorf("recent(0) = %+v", all)
	}
	if got := h.ForMarket(5); len(got) != 1 {
		t.Errorf("for market = %+v", got)
	}
	if got := h.ForMarket(1); len(got) != 0 {
		t.Errorf("trimmed market still present: %+v", got)
	}
}

func TestEventWithCopiesData(t *testing.T) {
	base := New(RefundClaimed, 2, "0x1", time.Now()).With("reason", "cancelled")
	derived := base.With("fee", "0")
	if _, ok := base.Data["fee"]; ok {
		t.Error("With mutated the original event")
	}
	if derived.Data["reason"] != "cancelled" || derived.ID != base.ID {
		t.Errorf("derived = %+v", derived)
	}
	if New(RefundClaimed, 2, "", time.Now()).ID == base.ID {
		t.Error("event IDs should be unique")
	}
}
