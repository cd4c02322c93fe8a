// Package metrics defines the prometheus collectors exported by gyrodesk.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gyrodesk"

var (
	// SessionsActive is 1 while a control client is connected
	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "control",
			Name:      "sessions_active",
			Help:      "Number of connected control sessions",
		},
	)

	// Takeovers counts connections evicted by a newer client
	Takeovers = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "control",
			Name:      "takeovers_total",
			Help:      "Total number of control sessions evicted by a newer connection",
		},
	)

	// Messages counts control lines by classified kind ("invalid" for discarded lines)
	Messages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "control",
			Name:      "messages_total",
			Help:      "Total number of control messages by kind",
		},
		[]string{"kind"},
	)

	// Frames counts streaming iterations by outcome
	Frames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "frames_total",
			Help:      "Total number of frame iterations by transport and result",
		},
		[]string{"transport", "result"}, // result: sent, capture_error, encode_error, send_error, skipped
	)

	// Fragments counts datagrams written by the datagram transport
	Fragments = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "fragments_total",
			Help:      "Total number of frame fragments sent",
		},
	)

	// FrameBytes is a histogram of encoded frame sizes
	FrameBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "frame_bytes",
			Help:      "Encoded frame size in bytes",
			Buckets:   prometheus.ExponentialBuckets(4<<10, 2, 8), // 4KiB .. 512KiB
		},
		[]string{"transport"},
	)

	// IterationSeconds is a histogram of capture+encode+send time per frame
	IterationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "iteration_seconds",
			Help:      "Time spent capturing, encoding and sending one frame",
			Buckets:   []float64{.005, .01, .025, .05, .083, .1, .25, .5, 1},
		},
		[]string{"transport"},
	)
)

var (
	registry     *prometheus.Registry
	registerOnce sync.Once
)

// Registry returns the registry holding all gyrodesk collectors plus the
// standard process and Go runtime collectors.
func Registry() *prometheus.Registry {
	registerOnce.Do(func() {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			SessionsActive,
			Takeovers,
			Messages,
			Frames,
			Fragments,
			FrameBytes,
			IterationSeconds,
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	})
	return registry
}

// Handler serves the registry in the prometheus text format
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry(), promhttp.HandlerOpts{})
}
