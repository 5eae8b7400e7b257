package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "crane_"

	resultSuccess = "success"
	resultDropped = "dropped"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	messagesTotal    *prometheus.CounterVec
	decodeErrors     *prometheus.CounterVec
	checksumMismatch prometheus.Counter
	mergeLatency     prometheus.Histogram
	ticketEvents     *prometheus.CounterVec
	pendingDevices   prometheus.Gauge
)

// Init registers ingestion metrics. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		messagesTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "messages_total",
				Help: "Inbound transport messages by result",
			},
			[]string{"result"},
		)
		decodeErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "decode_errors_total",
				Help: "Dropped messages by reason",
			},
			[]string{"reason"},
		)
		checksumMismatch = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "checksum_mismatch_total",
				Help: "Messages persisted with an invalid checksum",
			},
		)
		mergeLatency = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "snapshot_merge_seconds",
				Help:    "Snapshot merge and persist latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
		)
		ticketEvents = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ticket_events_total",
				Help: "Ticket lifecycle events by type",
			},
			[]string{"type"},
		)
		pendingDevices = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "pending_devices",
				Help: "Devices awaiting approval",
			},
		)

		prometheus.MustRegister(
			messagesTotal,
			decodeErrors,
			checksumMismatch,
			mergeLatency,
			ticketEvents,
			pendingDevices,
		)
	})
}

// IncMessageSuccess counts a fully processed message.
func IncMessageSuccess() { incMessage(resultSuccess) }

// IncMessageDropped counts a dropped message and the drop reason.
func IncMessageDropped(reason string) {
	incMessage(resultDropped)
	if decodeErrors != nil {
		decodeErrors.WithLabelValues(reason).Inc()
	}
}

// IncMessageError counts a message that failed mid-pipeline.
func IncMessageError() { incMessage(resultError) }

func incMessage(result string) {
	if messagesTotal != nil {
		messagesTotal.WithLabelValues(result).Inc()
	}
}

// IncChecksumMismatch counts a tolerated checksum failure.
func IncChecksumMismatch() {
	if checksumMismatch != nil {
		checksumMismatch.Inc()
	}
}

// ObserveMergeLatency records one snapshot merge round trip.
func ObserveMergeLatency(d time.Duration) {
	if mergeLatency != nil {
		mergeLatency.Observe(d.Seconds())
	}
}

// IncTicketEvent counts a ticket lifecycle transition.
func IncTicketEvent(eventType string) {
	if ticketEvents != nil {
		ticketEvents.WithLabelValues(eventType).Inc()
	}
}

// SetPendingDevices tracks the pending-device table size.
func SetPendingDevices(n int) {
	if pendingDevices != nil {
		pendingDevices.Set(float64(n))
	}
}
