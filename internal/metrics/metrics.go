// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline stage labels.
const (
	StageReceived   = "received"
	StageSkipped    = "skipped"
	StageRetransmit = "retransmission"
	StageEmitted    = "emitted"
)

var (
	// PacketsTotal counts packets by how far they got through the pipeline.
	PacketsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowanalyzer_packets_total",
			Help: "Total number of packets seen by the extraction pipeline",
		},
		[]string{"stage"},
	)

	// RecordsTotal counts emitted records by type.
	RecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowanalyzer_records_total",
			Help: "Total number of output records emitted",
		},
		[]string{"type"},
	)

	// HeaderSourceTotal counts which field supplied the header preview.
	HeaderSourceTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowanalyzer_header_source_total",
			Help: "Total number of records per header preview source",
		},
		[]string{"source"},
	)

	// ReporterErrorsTotal counts reporter errors by reporter name.
	ReporterErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowanalyzer_reporter_errors_total",
			Help: "Total number of reporter errors",
		},
		[]string{"reporter"},
	)
)
