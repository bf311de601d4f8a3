package metrics

import (
	"context"
	"math/big"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"darkbet-backend/internal/events"
	"darkbet-backend/internal/market"
)

// Metrics are the protocol's prometheus collectors
type Metrics struct {
	Events       *prometheus.CounterVec
	Errors       *prometheus.CounterVec
	SinkFailures *prometheus.CounterVec
	Requests     *prometheus.CounterVec
	Markets      *prometheus.GaugeVec
	Escrowed     prometheus.Gauge
	FeeBalance   prometheus.Gauge

	reg prometheus.Registerer
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "darkbet_events_total",
			Help: "protocol events by type",
		}, []string{"type"}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "darkbet_errors_total",
			Help: "rejected operations by error kind",
		}, []string{"kind"}),
		SinkFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "darkbet_event_sink_failures_total",
			Help: "event deliveries that failed, by sink",
		}, []string{"sink"}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "darkbet_http_requests_total",
			Help: "API requests by method and status code",
		}, []string{"method", "code"}),
		Markets: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "darkbet_markets",
			Help: "markets by status",
		}, []string{"status"}),
		Escrowed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "darkbet_escrowed_ether",
			Help: "funds held in market escrow",
		}),
		FeeBalance: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "darkbet_fee_balance_ether",
			Help: "collected fees not yet withdrawn",
		}),
		reg: reg,
	}
	reg.MustRegister(m.Events, m.Errors, m.SinkFailures, m.Requests, m.Markets, m.Escrowed, m.FeeBalance)
	return m
}

// ObserveError counts a rejected operation
func (m *Metrics) ObserveError(err error) {
	if err == nil {
		return
	}
	m.Errors.WithLabelValues(string(market.KindOf(err))).Inc()
}

// TrackDropped exports the number of events discarded because the bus
// buffer was full. dropped is read at scrape time.
func (m *Metrics) TrackDropped(dropped func() uint64) {
	m.reg.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "darkbet_events_dropped_total",
		Help: "events discarded because the event bus buffer was full",
	}, func() float64 { return float64(dropped()) }))
}

// ObserveSinkFailure counts a failed event delivery
func (m *Metrics) ObserveSinkFailure(sink string) {
	m.SinkFailures.WithLabelValues(sink).Inc()
}

// State reports the values behind the gauges
type State func() (markets []*market.Market, escrowed, fees *big.Int)

// Refresh sets the gauges from a state snapshot
func (m *Metrics) Refresh(state State) {
	markets, escrowed, fees := state()

	counts := make(map[market.Status]int)
	for _, mk := range markets {
		counts[mk.Status]++
	}
	for st := market.StatusActive; st <= market.StatusCancelled; st++ {
		m.Markets.WithLabelValues(st.String()).Set(float64(counts[st]))
	}
	m.Escrowed.Set(toEther(escrowed))
	m.FeeBalance.Set(toEther(fees))
}

// Sink counts events and refreshes the gauges after each one
type Sink struct {
	metrics *Metrics
	state   State
}

// NewSink creates an event sink feeding m. state may be nil.
func NewSink(m *Metrics, state State) *Sink {
	return &Sink{metrics: m, state: state}
}

func (s *Sink) Name() string { return "metrics" }

func (s *Sink) Handle(_ context.Context, ev events.Event) error {
	s.metrics.Events.WithLabelValues(string(ev.Type)).Inc()
	if s.state != nil {
		s.metrics.Refresh(s.state)
	}
	return nil
}

func toEther(wei *big.Int) float64 {
	if wei == nil {
		return 0
	}
	return decimal.NewFromBigInt(wei, -market.EtherDecimals).InexactFloat64()
}
