package events

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Sink receives events from the Bus. Errors are logged and never reach
// the protocol.
type Sink interface {
	Name() string
	Handle(ctx context.Context, ev Event) error
}

// Bus fans events out to every sink from a single dispatcher goroutine.
type Bus struct {
	sinks       []Sink
	ch          chan Event
	log         *zap.Logger
	timeout     time.Duration
	onSinkError func(sink string)
	dropped     atomic.Uint64
}

// NewBus creates a bus buffering up to size pending events
func NewBus(size int, log *zap.Logger) *Bus {
	if size <= 0 {
		size = 1024
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Bus{
		ch:      make(chan Event, size),
		log:     log,
		timeout: 5 * time.Second,
	}
}

// Subscribe registers a sink. Must be called before Run.
func (b *Bus) Subscribe(s Sink) {
	b.sinks = append(b.sinks, s)
}

// OnSinkError registers a hook invoked with the sink name on every failure.
func (b *Bus) OnSinkError(fn func(sink string)) {
	b.onSinkError = fn
}

// Publish enqueues ev. When the buffer is full the event is dropped.
func (b *Bus) Publish(ev Event) {
	select {
	case b.ch <- ev:
	default:
		b.dropped.Add(1)
		b.log.Warn("event buffer full, dropping event",
			zap.String("type", string(ev.Type)),
			zap.Uint64("market_id", ev.MarketID))
	}
}

// Dropped returns the number of events dropped because the buffer was full.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Run dispatches events until ctx is cancelled, then drains what is
// already buffered.
func (b *Bus) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case ev := <-b.ch:
					b.dispatch(context.Background(), ev)
				default:
					return nil
				}
			}
		case ev := <-b.ch:
			b.dispatch(ctx, ev)
		}
	}
}

func (b *Bus) dispatch(ctx context.Context, ev Event) {
	for _, s := range b.sinks {
		sctx, cancel := context.WithTimeout(ctx, b.timeout)
		err := s.Handle(sctx, ev)
		cancel()
		if err != nil {
			b.log.Warn("event sink failed",
				zap.String("sink", s.Name()),
				zap.String("type", string(ev.Type)),
				zap.Uint64("market_id", ev.MarketID),
				zap.Error(err))
			if b.onSinkError != nil {
				b.onSinkError(s.Name())
			}
		}
	}
}
