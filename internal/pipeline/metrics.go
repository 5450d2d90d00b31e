package pipeline

import (
	"sync/atomic"

	"firestige.xyz/flowanalyzer/internal/extract"
	"firestige.xyz/flowanalyzer/internal/metrics"
)

// Metrics contains per-pipeline counters.
type Metrics struct {
	Received       atomic.Uint64
	Retransmission atomic.Uint64
	Requests       atomic.Uint64
	Responses      atomic.Uint64
	Data           atomic.Uint64
	Reported       atomic.Uint64
	ReportErrors   atomic.Uint64
}

// Reset resets all counters to zero.
func (m *Metrics) Reset() {
	m.Received.Store(0)
	m.Retransmission.Store(0)
	m.Requests.Store(0)
	m.Responses.Store(0)
	m.Data.Store(0)
	m.Reported.Store(0)
	m.ReportErrors.Store(0)
}

// observe mirrors one record into the Prometheus collectors.
func observe(typ string, source extract.HeaderSource) {
	metrics.PacketsTotal.WithLabelValues(metrics.StageEmitted).Inc()
	metrics.RecordsTotal.WithLabelValues(typ).Inc()
	metrics.HeaderSourceTotal.WithLabelValues(source.String()).Inc()
}
