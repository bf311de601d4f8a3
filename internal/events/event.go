package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type names a protocol notification
type Type string

const (
	MarketCreated   Type = "MarketCreated"
	BetCommitted    Type = "BetCommitted"
	BetRevealed     Type = "BetRevealed"
	MarketResolved  Type = "MarketResolved"
	MarketCancelled Type = "MarketCancelled"
	WinningsClaimed Type = "WinningsClaimed"
	RefundClaimed   Type = "RefundClaimed"
)

// Event is a fire-and-forget notification about a state change. Amounts
// are decimal ether strings.
type Event struct {
	ID        string            `json:"id"`
	Type      Type              `json:"type"`
	MarketID  uint64            `json:"market_id"`
	Seq       uint64            `json:"seq,omitempty"`
	Account   string            `json:"account,omitempty"`
	Amount    string            `json:"amount,omitempty"`
	Outcome   *bool             `json:"outcome,omitempty"`
	Data      map[string]string `json:"data,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// New creates an event with a fresh ID
func New(t Type, marketID uint64, account string, ts time.Time) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      t,
		MarketID:  marketID,
		Account:   account,
		Timestamp: ts,
	}
}

// With returns a copy of e with an extra data field.
func (e Event) With(key, value string) Event {
	data := make(map[string]string, len(e.Data)+1)
	for k, v := range e.Data {
		data[k] = v
	}
	data[key] = value
	e.Data = data
	return e
}

// Publisher accepts events without blocking the caller.
type Publisher interface {
	Publish(Event)
}

// Discard is a Publisher that drops every event.
type Discard struct{}

func (Discard) Publish(Event) {}

// Recorder is a Publisher that keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of the recorded events in order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Types returns the recorded event types in order.
func (r *Recorder) Types() []Type {
	evs := r.Events()
	out := make([]Type, len(evs))
	for i, ev := range evs {
		out[i] = ev.Type
	}
	return out
}
