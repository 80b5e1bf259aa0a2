// Package metrics defines the Prometheus collectors for the gateway and the
// scrape handler that serves them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "relay"

// Metrics bundles every gateway collector behind one registry.
//
// Metrics exposed:
//   - relay_requests_total{alias,outcome}: completed gateway requests
//   - relay_request_duration_seconds{alias}: end-to-end latency
//   - relay_provider_requests_total{provider,model}: upstream calls
//   - relay_provider_errors_total{provider,kind}: upstream failures by kind
//   - relay_fallbacks_total{alias}: silent profile fallbacks
//   - relay_keypool_keys{provider,state}: pool population by state
//   - relay_cache_events_total{event}: cache hits, misses, rejections
//   - relay_agent_iterations{agent}: reasoning loop length
//   - relay_tool_calls_total{tool,status}: tool dispatches
type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	providerReqs    *prometheus.CounterVec
	providerErrors  *prometheus.CounterVec
	fallbacks       *prometheus.CounterVec
	keypoolKeys     *prometheus.GaugeVec
	cacheEvents     *prometheus.CounterVec
	agentIterations *prometheus.HistogramVec
	toolCalls       *prometheus.CounterVec
}

// New creates the collectors and registers them, along with the standard Go
// and process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Completed gateway requests by alias and outcome",
			},
			[]string{"alias", "outcome"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "End-to-end request latency in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"alias"},
		),
		providerReqs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_requests_total",
				Help:      "Upstream provider calls by provider and model",
			},
			[]string{"provider", "model"},
		),
		providerErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_errors_total",
				Help:      "Upstream provider failures by classified kind",
			},
			[]string{"provider", "kind"},
		),
		fallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fallbacks_total",
				Help:      "Silent fallbacks to the next chain profile",
			},
			[]string{"alias"},
		),
		keypoolKeys: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "keypool_keys",
				Help:      "Credential pool population by state",
			},
			[]string{"provider", "state"},
		),
		cacheEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_events_total",
				Help:      "Response cache hits, misses, and admission rejections",
			},
			[]string{"event"},
		),
		agentIterations: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "agent_iterations",
				Help:      "Reasoning loop iterations per agent run",
				Buckets:   []float64{1, 2, 3, 4, 5, 6, 8, 10},
			},
			[]string{"agent"},
		),
		toolCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tool_calls_total",
				Help:      "Tool dispatches by tool name and status",
			},
			[]string{"tool", "status"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests,
		m.requestDuration,
		m.providerReqs,
		m.providerErrors,
		m.fallbacks,
		m.keypoolKeys,
		m.cacheEvents,
		m.agentIterations,
		m.toolCalls,
	)
	return m
}

// Handler returns the scrape handler for the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRequest records one completed gateway request.
func (m *Metrics) RecordRequest(alias, outcome string, seconds float64) {
	m.requests.WithLabelValues(alias, outcome).Inc()
	m.requestDuration.WithLabelValues(alias).Observe(seconds)
}

// RecordProviderRequest records one upstream call.
func (m *Metrics) RecordProviderRequest(provider, model string) {
	m.providerReqs.WithLabelValues(provider, model).Inc()
}

// RecordProviderError records one classified upstream failure. Kinds follow
// the credential lifecycle: "auth", "rate_limit", "upstream", "bad_request",
// "timeout", "network", "parse".
func (m *Metrics) RecordProviderError(provider, kind string) {
	m.providerErrors.WithLabelValues(provider, kind).Inc()
}

// RecordFallback records one silent fallback for an alias.
func (m *Metrics) RecordFallback(alias string) {
	m.fallbacks.WithLabelValues(alias).Inc()
}

// SetKeypoolGauge sets the pool population gauge for one provider state
// ("available", "in_flight", "quarantined", "retired").
func (m *Metrics) SetKeypoolGauge(provider, state string, count int) {
	m.keypoolKeys.WithLabelValues(provider, state).Set(float64(count))
}

// RecordCacheEvent records a cache "hit", "miss", "write", or "reject".
func (m *Metrics) RecordCacheEvent(event string) {
	m.cacheEvents.WithLabelValues(event).Inc()
}

// RecordAgentIterations records the loop length of a finished agent run.
func (m *Metrics) RecordAgentIterations(agent string, iterations int) {
	m.agentIterations.WithLabelValues(agent).Observe(float64(iterations))
}

// RecordToolCall records one tool dispatch with status "ok" or "error".
func (m *Metrics) RecordToolCall(tool, status string) {
	m.toolCalls.WithLabelValues(tool, status).Inc()
}
