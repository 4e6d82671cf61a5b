package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	c, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("failed to get metric: %v", err)
	}
	var metric dto.Metric
	c.Write(&metric)
	return *metric.Counter.Value
}

// testMetrics builds Metrics on a private registry so tests do not pollute
// the default one.
func testMetrics() *Metrics {
	return &Metrics{
		RequestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "test_muse_request_total", Help: "test",
		}, []string{"type", "provider", "model", "status"}),
		RequestDurationMs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "test_muse_request_duration_ms", Help: "test",
			Buckets: []float64{100, 1000, 10000},
		}, []string{"provider", "model"}),
		StreamChunksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "test_muse_stream_chunks_total", Help: "test",
		}, []string{"provider"}),
		TokensTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "test_muse_tokens_total", Help: "test",
		}, []string{"provider", "model", "direction"}),
		CacheTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "test_muse_cache_total", Help: "test",
		}, []string{"result"}),
		RetriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "test_muse_retries_total", Help: "test",
		}, []string{"provider"}),
		PolicyDenials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "test_muse_policy_denials_total", Help: "test",
		}, []string{"type", "provider"}),
		ProviderUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "test_muse_provider_up", Help: "test",
		}, []string{"provider"}),
		QualityScore: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "test_muse_quality_score", Help: "test",
			Buckets: []float64{0.5, 0.8, 1.0},
		}, []string{"provider"}),
	}
}

func TestRecordRequest(t *testing.T) {
	m := testMetrics()

	m.RecordRequest(RequestLabels{
		Type:             "story_writing",
		Provider:         "openai",
		Model:            "gpt-3.5-turbo",
		Status:           "completed",
		DurationMs:       850,
		PromptTokens:     120,
		CompletionTokens: 480,
		QualityScore:     0.85,
	})

	if got := counterValue(t, m.RequestTotal, "story_writing", "openai", "gpt-3.5-turbo", "completed"); got != 1 {
		t.Errorf("expected request count 1, got %v", got)
	}
	if got := counterValue(t, m.TokensTotal, "openai", "gpt-3.5-turbo", "prompt"); got != 120 {
		t.Errorf("expected 120 prompt tokens, got %v", got)
	}
	if got := counterValue(t, m.TokensTotal, "openai", "gpt-3.5-turbo", "completion"); got != 480 {
		t.Errorf("expected 480 completion tokens, got %v", got)
	}
}

func TestRecordCacheAndRetry(t *testing.T) {
	m := testMetrics()

	m.RecordCache("hit")
	m.RecordCache("hit")
	m.RecordCache("miss")
	m.RecordRetry("openai")

	if got := counterValue(t, m.CacheTotal, "hit"); got != 2 {
		t.Errorf("expected 2 cache hits, got %v", got)
	}
	if got := counterValue(t, m.CacheTotal, "miss"); got != 1 {
		t.Errorf("expected 1 cache miss, got %v", got)
	}
	if got := counterValue(t, m.RetriesTotal, "openai"); got != 1 {
		t.Errorf("expected 1 retry, got %v", got)
	}
}

func TestSetProviderUp(t *testing.T) {
	m := testMetrics()

	m.SetProviderUp("openai", true)
	g, _ := m.ProviderUp.GetMetricWithLabelValues("openai")
	var metric dto.Metric
	g.Write(&metric)
	if *metric.Gauge.Value != 1 {
		t.Errorf("expected gauge 1, got %v", *metric.Gauge.Value)
	}

	m.SetProviderUp("openai", false)
	g.Write(&metric)
	if *metric.Gauge.Value != 0 {
		t.Errorf("expected gauge 0, got %v", *metric.Gauge.Value)
	}
}
