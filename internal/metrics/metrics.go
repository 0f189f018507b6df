// Package metrics provides Prometheus metrics for the USB link.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Direction label values.
const (
	DirRecv = "recv"
	DirSend = "send"
)

// Metrics tracks link, framing and dispatch counters.
//
// All metrics use the usbridge_ prefix. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	// PacketsTotal counts whole packets by direction and command
	PacketsTotal *prometheus.CounterVec

	// BytesTotal counts header and payload bytes by direction
	BytesTotal *prometheus.CounterVec

	// FramingErrorsTotal counts headers discarded for a bad magic
	FramingErrorsTotal prometheus.Counter

	// UnknownCommandsTotal counts packets with an unsupported command
	UnknownCommandsTotal prometheus.Counter

	// RequestDuration tracks router latency by route and outcome
	RequestDuration *prometheus.HistogramVec

	// ConnectsTotal counts devices bound successfully
	ConnectsTotal prometheus.Counter

	// FaultsTotal counts lifecycle restarts after an error
	FaultsTotal prometheus.Counter

	// LinkState is 1 for the current lifecycle state and 0 for the others
	LinkState *prometheus.GaugeVec
}

// New creates link metrics and registers them on reg.
// Panics if registration fails (expected during initialization only).
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PacketsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "usbridge_packets_total",
				Help: "Total packets by direction and command",
			},
			[]string{"direction", "command"},
		),
		BytesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "usbridge_bytes_total",
				Help: "Total bytes moved over the bulk endpoints by direction",
			},
			[]string{"direction"},
		),
		FramingErrorsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "usbridge_framing_errors_total",
				Help: "Total packet headers discarded for a bad magic",
			},
		),
		UnknownCommandsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "usbridge_unknown_commands_total",
				Help: "Total packets ignored for an unsupported command",
			},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "usbridge_request_duration_seconds",
				Help:    "Forwarded request duration in seconds, reply included",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "outcome"},
		),
		ConnectsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "usbridge_connects_total",
				Help: "Total devices configured and bound",
			},
		),
		FaultsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "usbridge_link_faults_total",
				Help: "Total lifecycle restarts caused by an error",
			},
		),
		LinkState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "usbridge_link_state",
				Help: "Current link lifecycle state (1 = active)",
			},
			[]string{"state"},
		),
	}

	reg.MustRegister(
		m.PacketsTotal,
		m.BytesTotal,
		m.FramingErrorsTotal,
		m.UnknownCommandsTotal,
		m.RequestDuration,
		m.ConnectsTotal,
		m.FaultsTotal,
		m.LinkState,
	)

	return m
}

// RecordPacket records one whole packet of n bytes (header included).
func (m *Metrics) RecordPacket(direction string, command uint32, n int) {
	if m == nil {
		return
	}
	m.PacketsTotal.WithLabelValues(direction, strconv.FormatUint(uint64(command), 10)).Inc()
	m.BytesTotal.WithLabelValues(direction).Add(float64(n))
}

// RecordFramingError records a discarded header.
func (m *Metrics) RecordFramingError() {
	if m == nil {
		return
	}
	m.FramingErrorsTotal.Inc()
}

// RecordUnknownCommand records an ignored packet.
func (m *Metrics) RecordUnknownCommand() {
	if m == nil {
		return
	}
	m.UnknownCommandsTotal.Inc()
}

// RecordRequest records a forwarded request.
//
// Parameters:
//   - route: matched route pattern, or "unmatched"
//   - outcome: "ok", "error" or "bad_request"
func (m *Metrics) RecordRequest(route, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(route, outcome).Observe(d.Seconds())
}

// RecordConnect records a bound device.
func (m *Metrics) RecordConnect() {
	if m == nil {
		return
	}
	m.ConnectsTotal.Inc()
}

// RecordFault records a lifecycle restart.
func (m *Metrics) RecordFault() {
	if m == nil {
		return
	}
	m.FaultsTotal.Inc()
}

// SetLinkState marks state as current among all.
func (m *Metrics) SetLinkState(state string, all []string) {
	if m == nil {
		return
	}
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		m.LinkState.WithLabelValues(s).Set(v)
	}
}

// RegisterOpenTransfers exposes the number of open progress trackers.
func RegisterOpenTransfers(reg prometheus.Registerer, count func() int) {
	reg.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "usbridge_open_transfers",
			Help: "Number of currently open progress trackers",
		},
		func() float64 { return float64(count()) },
	))
}
