// Package metrics provides the Prometheus instrumentation shared by the
// qpack and quic packages. It is optional: passing a nil *Metrics (or not
// calling New) disables instrumentation entirely.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles the collectors driven by the QPACK encoder and the QUIC
// session/flusher. A single instance may be shared across many sessions;
// per-connection cardinality is deliberately not modeled as a label to
// avoid unbounded series growth.
type Metrics struct {
	BlockedStreams          prometheus.Gauge
	DynamicTableSizeBytes   prometheus.Gauge
	DynamicTableInsertCount prometheus.Counter
	FlusherIterations       prometheus.Counter
	SessionCloses           prometheus.Counter
}

// New registers and returns a Metrics bundle against reg. If reg is nil,
// New still returns a usable Metrics whose collectors are simply never
// scraped (they are not registered anywhere).
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		BlockedStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "qpack_blocked_streams",
			Help: "Number of streams currently blocked on QPACK decoder acknowledgements.",
		}),
		DynamicTableSizeBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "qpack_dynamic_table_size_bytes",
			Help: "Current accounted size of the QPACK dynamic table.",
		}),
		DynamicTableInsertCount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qpack_dynamic_table_insert_count",
			Help: "Total entries ever inserted into the QPACK dynamic table.",
		}),
		FlusherIterations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quic_flusher_iterations_total",
			Help: "Total iterations of the QUIC session egress flusher.",
		}),
		SessionCloses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quic_session_closes_total",
			Help: "Total QUIC sessions closed.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.BlockedStreams,
			m.DynamicTableSizeBytes,
			m.DynamicTableInsertCount,
			m.FlusherIterations,
			m.SessionCloses,
		)
	}
	return m
}
