// Package observability exposes Prometheus metrics for upstream calls and chat streams.
package observability

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"househunt/internal/pkg/llmclient"
	"househunt/internal/usage"
)

var (
	upstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "househunt_upstream_requests_total",
			Help: "Provider calls by provider and HTTP status (\"error\" when no response arrived)",
		},
		[]string{"provider", "status"},
	)

	upstreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "househunt_upstream_request_duration_seconds",
			Help:    "Time until the provider answered with response headers",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	chatStreams = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "househunt_chat_streams_total",
			Help: "Chat requests by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	chatFragments = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "househunt_chat_stream_fragments",
			Help:    "Text fragments written per chat stream",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
		[]string{"provider"},
	)

	timeToFirstFragment = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "househunt_chat_time_to_first_fragment_seconds",
			Help:    "Time from request start to the first text fragment",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	streamsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "househunt_chat_streams_in_flight",
			Help: "Chat streams currently being written",
		},
	)
)

// NewPrometheusHooks returns llmclient hooks that record upstream call metrics.
func NewPrometheusHooks() llmclient.Hooks {
	return llmclient.Hooks{
		OnRequestEnd: func(_ context.Context, info llmclient.ResponseInfo) {
			status := "error"
			if info.StatusCode != 0 {
				status = strconv.Itoa(info.StatusCode)
			}
			upstreamRequests.WithLabelValues(info.Provider, status).Inc()
			upstreamDuration.WithLabelValues(info.Provider).Observe(info.Duration.Seconds())
		},
	}
}

// StreamRecorder records chat stream metrics. The zero value discards everything.
type StreamRecorder struct {
	enabled bool
}

// NewStreamRecorder returns a recorder that writes metrics when enabled is true.
func NewStreamRecorder(enabled bool) *StreamRecorder {
	return &StreamRecorder{enabled: enabled}
}

// Started marks a stream as in flight. The returned func must be called once it ends.
func (r *StreamRecorder) Started() func() {
	if r == nil || !r.enabled {
		return func() {}
	}
	streamsInFlight.Inc()
	return streamsInFlight.Dec
}

// FirstFragment records the latency of the first fragment.
func (r *StreamRecorder) FirstFragment(provider string, elapsed time.Duration) {
	if r == nil || !r.enabled {
		return
	}
	timeToFirstFragment.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// Finished records a stream's outcome, one of the usage.Outcome values, and
// its fragment count. Rejected streams never had fragments to count.
func (r *StreamRecorder) Finished(provider, outcome string, fragments int) {
	if r == nil || !r.enabled {
		return
	}
	chatStreams.WithLabelValues(provider, outcome).Inc()
	if outcome != usage.OutcomeRejected {
		chatFragments.WithLabelValues(provider).Observe(float64(fragments))
	}
}
