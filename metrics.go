package dpx

import "github.com/prometheus/client_golang/prometheus"

// Metrics exposes counts and gauges for a Peer's connection pool and
// channel lifecycle. It is optional: a Peer with a nil *Metrics simply
// skips every call site.
//
// Grounded on luzrain-outline-ss-server/service/metrics/metrics.go's
// Namespace/Subsystem-qualified Gauge/Counter layout, trimmed to the
// counters a connection-pooling transport (rather than a proxy) can
// actually produce.
type Metrics struct {
	connectionsOpen   prometheus.Gauge
	connectionsTotal  prometheus.Counter
	channelsOpen      prometheus.Gauge
	channelsTotal     prometheus.Counter
	openDispatchFails prometheus.Counter
}

// NewMetrics constructs a Metrics and registers its collectors with
// registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		connectionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dpx",
			Subsystem: "duplex",
			Name:      "connections_open",
			Help:      "Count of duplex TCP connections currently in a Peer's pool",
		}),
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dpx",
			Subsystem: "duplex",
			Name:      "connections_total",
			Help:      "Count of duplex TCP connections ever adopted by a Peer",
		}),
		channelsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dpx",
			Subsystem: "channel",
			Name:      "open",
			Help:      "Count of channels currently open on a Peer",
		}),
		channelsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dpx",
			Subsystem: "channel",
			Name:      "opened_total",
			Help:      "Count of channels ever opened (locally or remotely) on a Peer",
		}),
		openDispatchFails: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dpx",
			Subsystem: "channel",
			Name:      "open_dispatch_failures_total",
			Help:      "Count of OPEN frames that could not be dispatched to any connection",
		}),
	}
	registerer.MustRegister(m.connectionsOpen, m.connectionsTotal, m.channelsOpen, m.channelsTotal, m.openDispatchFails)
	return m
}

func (m *Metrics) ConnectionOpened() {
	m.connectionsOpen.Inc()
	m.connectionsTotal.Inc()
}

func (m *Metrics) ConnectionClosed() {
	m.connectionsOpen.Dec()
}

func (m *Metrics) ChannelOpened() {
	m.channelsOpen.Inc()
	m.channelsTotal.Inc()
}

func (m *Metrics) ChannelClosed() {
	m.channelsOpen.Dec()
}

func (m *Metrics) OpenDispatchFailed() {
	m.openDispatchFails.Inc()
}
