package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"darkbet-backend/internal/events"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func TestKafkaSinkKeysByMarket(t *testing.T) {
	w := &fakeWriter{}
	sink := NewKafkaSink(w)
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ev := events.New(events.BetRevealed, 12, "0xabc", ts).With("shares", "2")
	ev.Seq = 7

	if err := sink.Handle(context.Background(), ev); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("messages = %d", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != "12" || !msg.Time.Equal(ts) {
		t.Errorf("key=%s time=%s", msg.Key, msg.Time)
	}
	headers := make(map[string]string)
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	if headers["type"] != "BetRevealed" || headers["seq"] != "7" {
		t.Errorf("headers = %+v", msg.Headers)
	}

	var decoded events.Event
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if decoded.ID != ev.ID || decoded.Seq != 7 || decoded.Data["shares"] != "2" {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestKafkaSinkReportsWriteErrors(t *testing.T) {
	sink := NewKafkaSink(&fakeWriter{err: errors.New("leader not available")})
	err := sink.Handle(context.Background(), events.New(events.MarketCreated, 1, "", time.Now()))
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestNewKafkaWriter(t *testing.T) {
	w := NewKafkaWriter([]string{"kafka-1:9092", "kafka-2:9092"}, "darkbet.market-events")
	if w.Topic != "darkbet.market-events" || w.Addr == nil {
		t.Errorf("writer = topic %s addr %v", w.Topic, w.Addr)
	}
	if _, ok := w.Balancer.(*kafka.LeastBytes); !ok {
		t.Errorf("balancer = %T", w.Balancer)
	}
}
