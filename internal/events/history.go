package events

import (
	"context"
	"sync"
)

// History stores the most recent events
type History struct {
	mu     sync.RWMutex
	events []Event
	maxLen int
}

// NewHistory creates a new event history with max capacity
func NewHistory(maxLen int) *History {
	if maxLen <= 0 {
		maxLen = 1000
	}
	return &History{
		events: make([]Event, 0, maxLen),
		maxLen: maxLen,
	}
}

func (h *History) Name() string { return "history" }

// Handle records ev.
func (h *History) Handle(_ context.Context, ev Event) error {
	h.Add(ev)
	return nil
}

// Add records a new event
func (h *History) Add(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.events = append(h.events, ev)

	// Trim if exceeds max length
	if len(h.events) > h.maxLen {
		h.events = h.events[len(h.events)-h.maxLen:]
	}
}

// Recent returns the most recent n events, oldest first
func (h *History) Recent(n int) []Event {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if n <= 0 || n > len(h.events) {
		n = len(h.events)
	}

	result := make([]Event, n)
	copy(result, h.events[len(h.events)-n:])
	return result
}

// ForMarket returns the retained events of one market, oldest first
func (h *History) ForMarket(marketID uint64) []Event {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var result []Event
	for _, ev := range h.events {
		if ev.MarketID == marketID {
			result = append(result, ev)
		}
	}
	return result
}

// Len returns the number of retained events
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.events)
}
