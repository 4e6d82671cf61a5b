package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the muse engine.
type Metrics struct {
	RequestTotal      *prometheus.CounterVec
	RequestDurationMs *prometheus.HistogramVec
	StreamChunksTotal *prometheus.CounterVec
	TokensTotal       *prometheus.CounterVec
	CacheTotal        *prometheus.CounterVec
	RetriesTotal      *prometheus.CounterVec
	PolicyDenials     *prometheus.CounterVec
	ProviderUp        *prometheus.GaugeVec
	QualityScore      *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		RequestTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "muse_request_total",
			Help: "Total generation requests, by type and outcome.",
		}, []string{"type", "provider", "model", "status"}),

		RequestDurationMs: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "muse_request_duration_ms",
			Help:    "End-to-end generation duration in milliseconds.",
			Buckets: []float64{100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000, 120000},
		}, []string{"provider", "model"}),

		StreamChunksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "muse_stream_chunks_total",
			Help: "Total streamed content chunks delivered.",
		}, []string{"provider"}),

		TokensTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "muse_tokens_total",
			Help: "Estimated tokens processed.",
		}, []string{"provider", "model", "direction"}),

		CacheTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "muse_cache_total",
			Help: "Response cache lookups, by result.",
		}, []string{"result"}),

		RetriesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "muse_retries_total",
			Help: "Retry attempts after timeout-class failures.",
		}, []string{"provider"}),

		PolicyDenials: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "muse_policy_denials_total",
			Help: "Requests rejected by the admission policy.",
		}, []string{"type", "provider"}),

		ProviderUp: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "muse_provider_up",
			Help: "Whether the provider passed its last health check.",
		}, []string{"provider"}),

		QualityScore: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "muse_quality_score",
			Help:    "Overall quality score of completed generations.",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		}, []string{"provider"}),
	}
}

// RequestLabels holds the label values for recording one generation.
type RequestLabels struct {
	Type             string
	Provider         string
	Model            string
	Status           string
	DurationMs       float64
	PromptTokens     int
	CompletionTokens int
	QualityScore     float64
}

// RecordRequest records metrics for a finished generation.
func (m *Metrics) RecordRequest(labels RequestLabels) {
	m.RequestTotal.WithLabelValues(
		labels.Type, labels.Provider, labels.Model, labels.Status,
	).Inc()

	m.RequestDurationMs.WithLabelValues(
		labels.Provider, labels.Model,
	).Observe(labels.DurationMs)

	if labels.PromptTokens > 0 {
		m.TokensTotal.WithLabelValues(
			labels.Provider, labels.Model, "prompt",
		).Add(float64(labels.PromptTokens))
	}
	if labels.CompletionTokens > 0 {
		m.TokensTotal.WithLabelValues(
			labels.Provider, labels.Model, "completion",
		).Add(float64(labels.CompletionTokens))
	}
	if labels.QualityScore > 0 {
		m.QualityScore.WithLabelValues(labels.Provider).Observe(labels.QualityScore)
	}
}

// RecordCache records a cache lookup outcome ("hit" or "miss").
func (m *Metrics) RecordCache(result string) {
	m.CacheTotal.WithLabelValues(result).Inc()
}

// RecordRetry records a retry attempt against a provider.
func (m *Metrics) RecordRetry(provider string) {
	m.RetriesTotal.WithLabelValues(provider).Inc()
}

// RecordPolicyDenial records an admission policy rejection.
func (m *Metrics) RecordPolicyDenial(requestType, provider string) {
	m.PolicyDenials.WithLabelValues(requestType, provider).Inc()
}

// RecordStreamChunk counts one delivered stream chunk.
func (m *Metrics) RecordStreamChunk(provider string) {
	m.StreamChunksTotal.WithLabelValues(provider).Inc()
}

// SetProviderUp flips the provider health gauge.
func (m *Metrics) SetProviderUp(provider string, up bool) {
	v := 0.0
	if up {
		v = 1.0
	}
	m.ProviderUp.WithLabelValues(provider).Set(v)
}
