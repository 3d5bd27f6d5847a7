package jtag

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts probe exchanges. A nil *Metrics records nothing.
type Metrics struct {
	framesSent    *prometheus.CounterVec
	bytesSent     *prometheus.CounterVec
	bytesReceived *prometheus.CounterVec
	timeouts      *prometheus.CounterVec
	decodeErrors  *prometheus.CounterVec
	exchangeTime  *prometheus.HistogramVec
}

// NewMetrics creates the probe collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = "djtag"
	}
	labels := []string{"command"}
	m := &Metrics{
		framesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "probe", Name: "frames_sent_total",
			Help: "Command frames written to the probe.",
		}, labels),
		bytesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "probe", Name: "bytes_sent_total",
			Help: "Bytes written to the bulk OUT endpoint.",
		}, labels),
		bytesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "probe", Name: "bytes_received_total",
			Help: "Bytes read from the bulk IN endpoint.",
		}, labels),
		timeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "probe", Name: "read_timeouts_total",
			Help: "Reads that returned no data within the timeout.",
		}, labels),
		decodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "probe", Name: "decode_errors_total",
			Help: "Replies rejected by the codec.",
		}, labels),
		exchangeTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "probe", Name: "exchange_seconds",
			Help:    "Write plus read latency per command.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, labels),
	}
	if reg != nil {
		reg.MustRegister(m.framesSent, m.bytesSent, m.bytesReceived, m.timeouts, m.decodeErrors, m.exchangeTime)
	}
	return m
}

func (m *Metrics) sent(cmd string, n int) {
	if m == nil {
		return
	}
	m.framesSent.WithLabelValues(cmd).Inc()
	m.bytesSent.WithLabelValues(cmd).Add(float64(n))
}

func (m *Metrics) received(cmd string, n int) {
	if m == nil {
		return
	}
	m.bytesReceived.WithLabelValues(cmd).Add(float64(n))
}

func (m *Metrics) timeout(cmd string) {
	if m == nil {
		return
	}
	m.timeouts.WithLabelValues(cmd).Inc()
}

func (m *Metrics) decodeError(cmd string) {
	if m == nil {
		return
	}
	m.decodeErrors.WithLabelValues(cmd).Inc()
}

func (m *Metrics) observe(cmd string, seconds float64) {
	if m == nil {
		return
	}
	m.exchangeTime.WithLabelValues(cmd).Observe(seconds)
}
