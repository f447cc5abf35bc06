// Package metrics declares the Prometheus metrics exported by the xlog
// collector and the xkpi replay command.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConnAttemptsTotal counts every dial attempt to a base station,
	// labeled by the resulting outcome ("ok", "handshake_error", "io_error").
	ConnAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xlte_conn_attempts_total",
			Help: "Number of connection attempts to a base station, by outcome.",
		},
		[]string{"outcome"},
	)

	// ReconnectsTotal counts scheduler reconnect-loop iterations.
	ReconnectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "xlte_reconnects_total",
			Help: "Number of times the scheduler reconnected to the base station.",
		},
	)

	// RequestsTotal counts queries issued per LogSpec name.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xlte_requests_total",
			Help: "Number of queries issued to the base station, by spec name.",
		},
		[]string{"spec"},
	)

	// RotationsTotal counts Writer log-rotation events.
	RotationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "xlte_rotations_total",
			Help: "Number of times the xlog writer rotated its output file.",
		},
	)

	// LOSEventsTotal counts loss-of-sync events detected by the reader.
	LOSEventsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "xlte_los_events_total",
			Help: "Number of loss-of-sync events detected while reading an xlog file.",
		},
	)

	// ParseErrorsTotal counts malformed-line/parse errors seen by the reader.
	ParseErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "xlte_parse_errors_total",
			Help: "Number of parse errors encountered while reading an xlog file.",
		},
	)
)
