// Package netquality estimates network conditions and derives request
// timeouts and retry behavior from them. A writing session often runs on
// flaky hotel or train wifi; the engine adapts instead of failing hard.
package netquality

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/inkwell-labs/muse-engine/internal/config"
)

// Quality is a coarse classification of current network conditions.
type Quality string

const (
	QualityExcellent    Quality = "excellent"
	QualityGood         Quality = "good"
	QualityPoor         Quality = "poor"
	QualityDisconnected Quality = "disconnected"
)

// Dialer abstracts the connectivity probe so tests can fake latency.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Monitor probes a well-known endpoint to classify network quality and keeps
// per-outcome counters that drive adaptive timeouts.
type Monitor struct {
	cfg    config.NetworkConfig
	dialer Dialer
	logger *slog.Logger

	mu          sync.Mutex
	lastProbe   time.Time
	lastQuality Quality
	lastLatency time.Duration

	successes            uint64
	failures             uint64
	timeouts             uint64
	consecutiveSuccesses int
	consecutiveFailures  int

	adaptiveTimeout time.Duration
}

// defaultAdaptiveTimeout is the neutral starting point for the learned
// timeout; the ratio against it scales the quality-mapped base.
const defaultAdaptiveTimeout = 60 * time.Second

func NewMonitor(cfg config.NetworkConfig, logger *slog.Logger) *Monitor {
	return &Monitor{
		cfg:             cfg,
		dialer:          &net.Dialer{},
		logger:          logger,
		lastQuality:     QualityGood,
		adaptiveTimeout: defaultAdaptiveTimeout,
	}
}

// classify maps probe latency onto a quality level.
func classify(latency time.Duration) Quality {
	switch {
	case latency < 500*time.Millisecond:
		return QualityExcellent
	case latency < time.Second:
		return QualityGood
	case latency < 3*time.Second:
		return QualityPoor
	default:
		return QualityDisconnected
	}
}

// Check probes connectivity, reusing the last result while it is fresh.
func (m *Monitor) Check(ctx context.Context) Quality {
	m.mu.Lock()
	if time.Since(m.lastProbe) < m.cfg.CheckInterval && !m.lastProbe.IsZero() {
		q := m.lastQuality
		m.mu.Unlock()
		return q
	}
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	start := time.Now()
	conn, err := m.dialer.DialContext(ctx, "tcp", m.cfg.ProbeAddress)
	latency := time.Since(start)

	quality := QualityDisconnected
	if err == nil {
		conn.Close()
		quality = classify(latency)
	}

	m.mu.Lock()
	m.lastProbe = time.Now()
	m.lastQuality = quality
	m.lastLatency = latency
	m.mu.Unlock()

	if quality == QualityDisconnected {
		m.logger.Warn("network probe failed", "address", m.cfg.ProbeAddress, "error", err)
	} else {
		m.logger.Debug("network probe", "quality", string(quality), "latency", latency)
	}
	return quality
}

// Connected reports whether the last probe reached the endpoint.
func (m *Monitor) Connected(ctx context.Context) bool {
	return m.Check(ctx) != QualityDisconnected
}

// OptimalTimeout maps current network quality to a request timeout, scaled
// by the learned adaptive ratio and clamped to the configured bounds. Recent
// failures lengthen the next deadline, a run of successes shortens it.
func (m *Monitor) OptimalTimeout(ctx context.Context) time.Duration {
	var base time.Duration
	switch m.Check(ctx) {
	case QualityExcellent:
		base = 30 * time.Second
	case QualityGood:
		base = 60 * time.Second
	case QualityPoor:
		base = 90 * time.Second
	default:
		base = 120 * time.Second
	}

	m.mu.Lock()
	ratio := float64(m.adaptiveTimeout) / float64(defaultAdaptiveTimeout)
	m.mu.Unlock()
	return m.clamp(time.Duration(float64(base) * ratio))
}

// RecordSuccess feeds a successful request into the adaptive timeout. After
// three consecutive successes the timeout shrinks by 10%.
func (m *Monitor) RecordSuccess() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.successes++
	m.consecutiveSuccesses++
	m.consecutiveFailures = 0

	if m.consecutiveSuccesses >= 3 {
		m.adaptiveTimeout = m.clamp(time.Duration(float64(m.adaptiveTimeout) * 0.9))
		m.consecutiveSuccesses = 0
	}
}

// RecordFailure feeds a failed request into the adaptive timeout. After two
// consecutive failures the timeout grows by 50%. Timeout-class failures are
// counted separately.
func (m *Monitor) RecordFailure(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.failures++
	if IsTimeout(err) {
		m.timeouts++
	}
	m.consecutiveFailures++
	m.consecutiveSuccesses = 0

	if m.consecutiveFailures >= 2 {
		m.adaptiveTimeout = m.clamp(time.Duration(float64(m.adaptiveTimeout) * 1.5))
		m.consecutiveFailures = 0
	}
}

func (m *Monitor) clamp(d time.Duration) time.Duration {
	if d < m.cfg.MinTimeout {
		return m.cfg.MinTimeout
	}
	if d > m.cfg.MaxTimeout {
		return m.cfg.MaxTimeout
	}
	return d
}

// AdaptiveTimeout returns the current learned timeout.
func (m *Monitor) AdaptiveTimeout() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.adaptiveTimeout
}

// Counters is a snapshot of the monitor's cumulative outcome counts.
type Counters struct {
	Successes uint64
	Failures  uint64
	Timeouts  uint64
}

func (m *Monitor) Counters() Counters {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Counters{
		Successes: m.successes,
		Failures:  m.failures,
		Timeouts:  m.timeouts,
	}
}
