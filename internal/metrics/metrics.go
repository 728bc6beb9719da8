// Package metrics holds the Prometheus instrumentation of the prospect
// services. Collectors register with the default registry unless a Metrics
// value is created with New.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/OFFIS-RIT/prospect/pkg/common"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "prospect"

// Metrics bundles every collector the services record to.
type Metrics struct {
	LookupsTotal       *prometheus.CounterVec
	LookupSeconds      *prometheus.HistogramVec
	Disambiguations    *prometheus.CounterVec
	ExtractionFailures prometheus.Counter
	EmbeddingTimeouts  prometheus.Counter
	RPCCallsTotal      *prometheus.CounterVec
	ReportJobsTotal    *prometheus.CounterVec
	ModelTokens        *prometheus.CounterVec
	ModelSeconds       *prometheus.HistogramVec
}

// Default is registered with prometheus.DefaultRegisterer.
var Default = New(prometheus.DefaultRegisterer)

// New creates a new set of collectors registered with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		LookupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lookups_total",
				Help:      "Backend lookup calls by backend, operation and outcome",
			},
			[]string{"backend", "operation", "status"},
		),
		LookupSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "lookup_seconds",
				Help:      "Backend lookup latency",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"backend", "operation"},
		),
		Disambiguations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "disambiguations_total",
				Help:      "Disambiguation outcomes by confidence",
			},
			[]string{"confidence"},
		),
		ExtractionFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "extraction_failures_total",
				Help:      "Queries whose intent could not be extracted",
			},
		),
		EmbeddingTimeouts: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "embedding_timeouts_total",
				Help:      "Embedding calls that exceeded their timeout",
			},
		),
		RPCCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rpc_calls_total",
				Help:      "JSON-RPC calls by method and result code",
			},
			[]string{"method", "code"},
		),
		ReportJobsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "report_jobs_total",
				Help:      "Report jobs by file format and outcome",
			},
			[]string{"format", "status"},
		),
		ModelTokens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "llm_tokens_total",
				Help:      "Tokens reported by model providers, by direction",
			},
			[]string{"provider", "model", "kind"},
		),
		ModelSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "llm_request_seconds",
				Help:      "Model provider request latency",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"provider", "model", "operation"},
		),
	}
}

// ObserveLookup records one backend call started at start.
func (m *Metrics) ObserveLookup(backend, operation string, start time.Time, err error) {
	m.LookupsTotal.WithLabelValues(backend, operation, statusOf(err)).Inc()
	m.LookupSeconds.WithLabelValues(backend, operation).Observe(time.Since(start).Seconds())
}

// ObserveLookup records to Default.
func ObserveLookup(backend, operation string, start time.Time, err error) {
	Default.ObserveLookup(backend, operation, start, err)
}

// ObserveModelCall records the usage of one successful model request.
// operation is "chat" or "embed"; zero token counts are not added.
func (m *Metrics) ObserveModelCall(provider, model, operation string, inputTokens, outputTokens int, d time.Duration) {
	if inputTokens > 0 {
		m.ModelTokens.WithLabelValues(provider, model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		m.ModelTokens.WithLabelValues(provider, model, "output").Add(float64(outputTokens))
	}
	m.ModelSeconds.WithLabelValues(provider, model, operation).Observe(d.Seconds())
}

func statusOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, common.ErrTimeout):
		return string(common.KindTimeout)
	default:
		return "error"
	}
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
