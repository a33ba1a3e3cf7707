package live

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the session's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	FramesSent        prometheus.Counter
	FramesReceived    prometheus.Counter
	FramesDropped     prometheus.Counter
	ParseErrors       prometheus.Counter
	Heartbeats        prometheus.Counter
	ReconnectAttempts prometheus.Counter
	Connected         prometheus.Gauge
	Joins             *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg when it is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FramesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "liveclient",
			Name:      "frames_sent_total",
			Help:      "Frames written to the transport",
		}),
		FramesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "liveclient",
			Name:      "frames_received_total",
			Help:      "Frames read from the transport",
		}),
		FramesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "liveclient",
			Name:      "frames_dropped_total",
			Help:      "Outbound frames dropped because the transport was not open",
		}),
		ParseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "liveclient",
			Name:      "parse_errors_total",
			Help:      "Inbound frames or payloads that failed to parse",
		}),
		Heartbeats: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "liveclient",
			Name:      "heartbeats_total",
			Help:      "Heartbeat frames sent",
		}),
		ReconnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "liveclient",
			Name:      "reconnect_attempts_total",
			Help:      "Scheduled reconnect attempts",
		}),
		Connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "liveclient",
			Name:      "connected",
			Help:      "1 while the transport is open",
		}),
		Joins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "liveclient",
			Name:      "channel_joins_total",
			Help:      "Channel join replies by result",
		}, []string{"result"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.FramesSent,
			m.FramesReceived,
			m.FramesDropped,
			m.ParseErrors,
			m.Heartbeats,
			m.ReconnectAttempts,
			m.Connected,
			m.Joins,
		)
	}
	return m
}

func (m *Metrics) incSent() {
	if m != nil {
		m.FramesSent.Inc()
	}
}

func (m *Metrics) incReceived() {
	if m != nil {
		m.FramesReceived.Inc()
	}
}

func (m *Metrics) incDropped() {
	if m != nil {
		m.FramesDropped.Inc()
	}
}

func (m *Metrics) incParseError() {
	if m != nil {
		m.ParseErrors.Inc()
	}
}

func (m *Metrics) incHeartbeat() {
	if m != nil {
		m.Heartbeats.Inc()
	}
}

func (m *Metrics) incReconnect() {
	if m != nil {
		m.ReconnectAttempts.Inc()
	}
}

func (m *Metrics) setConnected(up bool) {
	if m == nil {
		return
	}
	if up {
		m.Connected.Set(1)
	} else {
		m.Connected.Set(0)
	}
}

func (m *Metrics) incJoin(result string) {
	if m != nil {
		m.Joins.WithLabelValues(result).Inc()
	}
}
