package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "caseassist"

// Outcome of a chat completion stream.
type Outcome string

const (
	OutcomeOK               Outcome = "ok"
	OutcomeUpstreamError    Outcome = "upstream_error"
	OutcomeStreamError      Outcome = "stream_error"
	OutcomeClientDisconnect Outcome = "client_disconnect"
)

// Metrics for the chat pipeline. A nil *Metrics is valid and records nothing.
type Metrics struct {
	SearchDuration   prometheus.Histogram
	SearchResults    prometheus.Histogram
	SearchFailures   prometheus.Counter
	Completions      *prometheus.CounterVec
	TimeToFirstChunk prometheus.Histogram
	StreamDuration   *prometheus.HistogramVec
	ActiveStreams    prometheus.Gauge
	HTTPRequests     *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SearchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Time taken to query the search index.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		SearchResults: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_results",
			Help:      "Number of documents returned by the search index.",
			Buckets:   []float64{0, 1, 2, 5, 10, 15, 25},
		}),
		SearchFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_failures_total",
			Help:      "Search queries that failed and were replaced with an empty result.",
		}),
		Completions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completions_total",
			Help:      "Chat completions by outcome.",
		}, []string{"outcome"}),
		TimeToFirstChunk: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "time_to_first_chunk_seconds",
			Help:      "Time from the start of the completion call to the first streamed chunk.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
		}),
		StreamDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stream_duration_seconds",
			Help:      "Total completion stream duration.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
		}, []string{"outcome"}),
		ActiveStreams: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_streams",
			Help:      "Completion streams currently open.",
		}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by status code and method.",
		}, []string{"code", "method"}),
	}
}

func (m *Metrics) ObserveSearch(d time.Duration, results int, err error) {
	if m == nil {
		return
	}
	m.SearchDuration.Observe(d.Seconds())
	if err != nil {
		m.SearchFailures.Inc()
		return
	}
	m.SearchResults.Observe(float64(results))
}

func (m *Metrics) ObserveFirstChunk(d time.Duration) {
	if m == nil {
		return
	}
	m.TimeToFirstChunk.Observe(d.Seconds())
}

// CountCompletion records a completion that ended with outcome.
func (m *Metrics) CountCompletion(outcome Outcome) {
	if m == nil {
		return
	}
	m.Completions.WithLabelValues(string(outcome)).Inc()
}

// StreamOpened records the start of a completion stream. Call the returned
// function once the stream has ended.
func (m *Metrics) StreamOpened() (closed func(outcome Outcome)) {
	if m == nil {
		return func(Outcome) {}
	}
	start := time.Now()
	m.ActiveStreams.Inc()
	return func(outcome Outcome) {
		m.ActiveStreams.Dec()
		m.CountCompletion(outcome)
		m.StreamDuration.WithLabelValues(string(outcome)).Observe(time.Since(start).Seconds())
	}
}

// Instrument counts requests to next.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return promhttp.InstrumentHandlerCounter(m.HTTPRequests, next)
}

// Handler serves the metrics in the given registry.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
