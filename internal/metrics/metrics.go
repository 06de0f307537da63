// Package metrics holds the Prometheus collectors for stream-playout.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BuffersForwarded counts buffers handed to the consumer, by stream.
	BuffersForwarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playout_buffers_forwarded_total",
		Help: "Buffers extracted from an output stage and forwarded to the consumer",
	}, []string{"stream"})

	// BytesForwarded counts payload bytes handed to the consumer, by stream.
	BytesForwarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playout_bytes_forwarded_total",
		Help: "Payload bytes forwarded to the consumer",
	}, []string{"stream"})

	// SignalsSkipped counts new-sample signals that produced nothing to forward.
	SignalsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playout_signals_skipped_total",
		Help: "New-sample signals skipped because no sample or no buffer was available",
	}, []string{"stream", "reason"})

	// Seeks counts seek submissions by origin and result.
	Seeks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playout_seeks_total",
		Help: "Seek requests submitted to the engine",
	}, []string{"origin", "result"})

	// LoopRestarts counts end-of-stream loop restarts.
	LoopRestarts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "playout_loop_restarts_total",
		Help: "Playback restarts from position zero after end-of-stream",
	})

	// FatalErrors counts fatal pipeline errors by category.
	FatalErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playout_fatal_errors_total",
		Help: "Fatal pipeline errors reported on the bus",
	}, []string{"category"})

	// BusDrops counts buffers dropped by fan-out subscribers with full channels.
	BusDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playout_bus_dropped_total",
		Help: "Buffers dropped by the fan-out bus because a subscriber was full",
	}, []string{"subscriber"})
)

// ObserveForward records one forwarded buffer.
func ObserveForward(stream string, bytes int) {
	BuffersForwarded.WithLabelValues(stream).Inc()
	BytesForwarded.WithLabelValues(stream).Add(float64(bytes))
}

// ObserveSkip records a skipped new-sample signal.
func ObserveSkip(stream, reason string) {
	SignalsSkipped.WithLabelValues(stream, reason).Inc()
}

// ObserveSeek records a seek submission.
func ObserveSeek(origin string, ok bool) {
	result := "ok"
	if !ok {
		result = "rejected"
	}
	Seeks.WithLabelValues(origin, result).Inc()
}
