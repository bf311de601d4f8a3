package metrics

import (
	"context"
	"errors"
	"io"
	"math/big"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"darkbet-backend/internal/events"
	"darkbet-backend/internal/market"
)

func value(c prometheus.Collector) float64 {
	ch := make(chan prometheus.Metric, 1)
	c.Collect(ch)
	var pb dto.Metric
	if err := (<-ch).Write(&pb); err != nil {
		return -1
	}
	if pb.Counter != nil {
		return pb.Counter.GetValue()
	}
	return pb.Gauge.GetValue()
}

func TestSinkCountsEventsAndRefreshesGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	state := func() ([]*market.Market, *big.Int, *big.Int) {
		return []*market.Market{
			{ID: 1, Status: market.StatusActive},
			{ID: 2, Status: market.StatusActive},
			{ID: 3, Status: market.StatusCancelled},
		}, market.MustParseEther("1.5"), market.MustParseEther("0.25")
	}
	sink := NewSink(m, state)

	now := time.Now()
	for _, typ := range []events.Type{events.BetCommitted, events.BetCommitted, events.BetRevealed} {
		if err := sink.Handle(context.Background(), events.New(typ, 1, "", now)); err != nil {
			t.Fatalf("handle: %v", err)
		}
	}

	if got := value(m.Events.WithLabelValues("BetCommitted")); got != 2 {
		t.Errorf("committed = %v", got)
	}
	if got := value(m.Markets.WithLabelValues("active")); got != 2 {
		t.Errorf("active markets = %v", got)
	}
	if got := value(m.Markets.WithLabelValues("resolved")); got != 0 {
		t.Errorf("resolved markets = %v", got)
	}
	if got := value(m.Escrowed); got != 1.5 {
		t.Errorf("escrowed = %v", got)
	}
	if got := value(m.FeeBalance); got != 0.25 {
		t.Errorf("fees = %v", got)
	}
}

func TestObserveError(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveError(market.ErrAlreadyClaimed)
	m.ObserveError(errors.New("boom"))
	m.ObserveError(nil)
	m.ObserveSinkFailure("kafka")

	if got := value(m.Errors.WithLabelValues("AlreadyClaimed")); got != 1 {
		t.Errorf("AlreadyClaimed = %v", got)
	}
	if got := value(m.Errors.WithLabelValues("Internal")); got != 1 {
		t.Errorf("Internal = %v", got)
	}
	if got := value(m.SinkFailures.WithLabelValues("kafka")); got != 1 {
		t.Errorf("sink failures = %v", got)
	}
}

func TestServer(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg).ObserveSinkFailure("redis")

	healthy := true
	srv := NewServer("0", reg, func(context.Context) error {
		if !healthy {
			return errors.New("postgres down")
		}
		return nil
	})

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `darkbet_event_sink_failures_total{sink="redis"} 1`) {
		t.Errorf("metrics output missing counter:\n%s", body)
	}

	rec = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	if rec.Code != 200 {
		t.Errorf("healthz = %d", rec.Code)
	}

	healthy = false
	rec = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	if rec.Code != 503 {
		t.Errorf("unhealthy healthz = %d", rec.Code)
	}
}

func TestTrackDropped(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	bus := events.NewBus(1, nil)
	m.TrackDropped(bus.Dropped)

	for i := 0; i < 3; i++ {
		bus.Publish(events.New(events.MarketCreated, 1, "", time.Unix(0, 0)))
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var got float64 = -1
	for _, f := range families {
		if f.GetName() == "darkbet_events_dropped_total" {
			got = f.GetMetric()[0].GetCounter().GetValue()
		}
	}
	if got != 2 {
		t.Errorf("darkbet_events_dropped_total = %v, want 2", got)
	}
}
