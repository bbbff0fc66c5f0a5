package web

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teslashibe/go-blursafe/pkg/bridge"
	"github.com/teslashibe/go-blursafe/pkg/hub"
	"github.com/teslashibe/go-blursafe/pkg/page"
	"github.com/teslashibe/go-blursafe/pkg/scheduler"
)

// Metrics exposes service counters in the Prometheus text format.
type Metrics struct {
	registry *prometheus.Registry
	events   *prometheus.CounterVec

	mu     sync.Mutex
	counts map[scheduler.EventKind]uint64
}

// NewMetrics registers gauges over manager, the bridge (may be nil) and
// the dashboard hub on a private registry.
func NewMetrics(manager *page.Manager, b *bridge.Bridge, events *hub.Hub) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "blursafe_scheduler_events_total",
			Help: "Scheduler session events by kind.",
		}, []string{"kind"}),
		counts: make(map[scheduler.EventKind]uint64),
	}

	m.registry.MustRegister(
		m.events,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "blursafe_pages",
			Help: "Connected pages.",
		}, func() float64 { return float64(manager.Len()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "blursafe_sessions",
			Help: "Armed video sessions across pages.",
		}, func() float64 { return float64(manager.SessionCount()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "blursafe_dashboard_clients",
			Help: "Connected dashboard event streams.",
		}, func() float64 { return float64(events.ClientCount()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "blursafe_dashboard_dropped_total",
			Help: "Dashboard clients dropped for falling behind.",
		}, func() float64 { return float64(events.Dropped()) }),
	)

	if b != nil {
		stat := func(pick func(bridge.Stats) uint64) func() float64 {
			return func() float64 { return float64(pick(b.GetStats())) }
		}
		m.registry.MustRegister(
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Name: "blursafe_bridge_messages_received_total",
				Help: "Messages received from pages.",
			}, stat(func(s bridge.Stats) uint64 { return s.MessagesReceived })),
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Name: "blursafe_bridge_messages_sent_total",
				Help: "Messages sent to pages.",
			}, stat(func(s bridge.Stats) uint64 { return s.MessagesSent })),
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Name: "blursafe_bridge_frames_received_total",
				Help: "Video frames uploaded by pages.",
			}, stat(func(s bridge.Stats) uint64 { return s.FramesReceived })),
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Name: "blursafe_bridge_parse_errors_total",
				Help: "Page messages that failed to parse.",
			}, stat(func(s bridge.Stats) uint64 { return s.ParseErrors })),
		)
	}
	return m
}

// Observe counts one scheduler event.
func (m *Metrics) Observe(kind scheduler.EventKind) {
	m.events.WithLabelValues(string(kind)).Inc()
	m.mu.Lock()
	m.counts[kind]++
	m.mu.Unlock()
}

// Counts returns event totals keyed by kind.
func (m *Metrics) Counts() map[string]uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]uint64, len(m.counts))
	for k, v := range m.counts {
		out[string(k)] = v
	}
	return out
}

// Handler serves the registry.
func (m *Metrics) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}
