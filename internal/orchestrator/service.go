// Package orchestrator coordinates generation requests end to end: provider
// selection, admission policy, rate limits, caching, retries, and progress
// events. It is the one entry point the rest of the application talks to.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/inkwell-labs/muse-engine/internal/ai"
	"github.com/inkwell-labs/muse-engine/internal/cache"
	"github.com/inkwell-labs/muse-engine/internal/config"
	"github.com/inkwell-labs/muse-engine/internal/events"
	"github.com/inkwell-labs/muse-engine/internal/history"
	"github.com/inkwell-labs/muse-engine/internal/netquality"
	"github.com/inkwell-labs/muse-engine/internal/policy"
	"github.com/inkwell-labs/muse-engine/internal/provider"
	"github.com/inkwell-labs/muse-engine/internal/ratelimit"
	"github.com/inkwell-labs/muse-engine/internal/telemetry"
)

// ErrRateLimited marks admission failures caused by a provider rate limit,
// so transports can answer with the right status code.
var ErrRateLimited = errors.New("rate limit exceeded")

// Deps carries everything the service needs. Optional fields may be nil;
// the corresponding feature is skipped.
type Deps struct {
	Config    config.OrchestratorConfig
	Providers func() *config.ProvidersConfig

	Manager *provider.Manager
	Health  *provider.HealthTracker
	Network *netquality.Monitor
	Cache   *cache.Cache
	Limiter *ratelimit.Limiter
	Budget  *ratelimit.BudgetTracker
	Gate    *policy.Gate
	Bus     *events.Bus
	History *history.Memory
	Store   *history.Store
	Metrics *telemetry.Metrics
	Logger  *slog.Logger
}

// Service orchestrates AI generation requests.
type Service struct {
	cfg       config.OrchestratorConfig
	providers func() *config.ProvidersConfig

	manager *provider.Manager
	health  *provider.HealthTracker
	network *netquality.Monitor
	cache   *cache.Cache
	limiter *ratelimit.Limiter
	budget  *ratelimit.BudgetTracker
	gate    *policy.Gate
	bus     *events.Bus
	history *history.Memory
	store   *history.Store
	metrics *telemetry.Metrics
	logger  *slog.Logger

	sem chan struct{}

	mu     sync.Mutex
	active map[string]context.CancelFunc

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func New(d Deps) *Service {
	maxConcurrent := d.Config.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 10
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Providers == nil {
		d.Providers = func() *config.ProvidersConfig { return nil }
	}
	return &Service{
		cfg:       d.Config,
		providers: d.Providers,
		manager:   d.Manager,
		health:    d.Health,
		network:   d.Network,
		cache:     d.Cache,
		limiter:   d.Limiter,
		budget:    d.Budget,
		gate:      d.Gate,
		bus:       d.Bus,
		history:   d.History,
		store:     d.Store,
		metrics:   d.Metrics,
		logger:    d.Logger,
		sem:       make(chan struct{}, maxConcurrent),
		active:    make(map[string]context.CancelFunc),
		stop:      make(chan struct{}),
	}
}

// SupportedProviders lists the provider names the engine can use.
func (s *Service) SupportedProviders() []string {
	return s.manager.SupportedProviders()
}

// ProviderCapabilities reports what a provider can do.
func (s *Service) ProviderCapabilities(name string) ([]ai.Capability, error) {
	client, err := s.clientFor(name)
	if err != nil {
		return nil, err
	}
	return client.Capabilities(), nil
}

// Available reports whether at least one provider is reachable right now.
func (s *Service) Available(ctx context.Context) bool {
	if s.network != nil && !s.network.Connected(ctx) {
		return false
	}
	for _, name := range s.SupportedProviders() {
		if s.health == nil || s.health.Available(name) {
			return true
		}
	}
	return false
}

// CancelRequest cancels an in-flight request by ID. It reports whether the
// request was found.
func (s *Service) CancelRequest(id string) bool {
	s.mu.Lock()
	cancel, ok := s.active[id]
	s.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// StartHealthLoop runs periodic provider health checks until Shutdown.
func (s *Service) StartHealthLoop(ctx context.Context) {
	interval := s.cfg.HealthCheckInterval
	if interval <= 0 {
		interval = time.Minute
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.checkProviderHealth(ctx)
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (s *Service) checkProviderHealth(ctx context.Context) {
	for _, client := range s.manager.Clients() {
		up := client.Healthy(ctx)
		if s.metrics != nil {
			s.metrics.SetProviderUp(client.Name(), up)
		}
		if s.health != nil {
			if up {
				s.health.RecordSuccess(client.Name())
			} else {
				s.health.RecordFailure(client.Name())
			}
		}
		if !up {
			s.logger.Warn("provider health check failed",
				"provider", client.Name(), "error", client.LastError())
		}
	}
}

// Shutdown stops background work, cancels in-flight requests, and
// disconnects providers.
func (s *Service) Shutdown() {
	s.stopOnce.Do(func() { close(s.stop) })

	s.mu.Lock()
	for _, cancel := range s.active {
		cancel()
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.manager.DisconnectAll()
	if s.bus != nil {
		s.bus.Close()
	}
	s.logger.Info("orchestrator stopped")
}

// Statistics is a point-in-time view of engine activity.
type Statistics struct {
	Providers map[string]provider.Stats
	Breakers  map[string]provider.BreakerState
	Cache     cache.Stats
	Network   netquality.Counters
	History   int
	InFlight  int
}

func (s *Service) Statistics() Statistics {
	stats := Statistics{Providers: make(map[string]provider.Stats)}
	for _, c := range s.manager.Clients() {
		stats.Providers[c.Name()] = c.Stats()
	}
	if s.health != nil {
		stats.Breakers = s.health.States()
	}
	if s.cache != nil {
		stats.Cache = s.cache.Stats()
	}
	if s.network != nil {
		stats.Network = s.network.Counters()
	}
	if s.history != nil {
		stats.History = s.history.Len()
	}
	s.mu.Lock()
	stats.InFlight = len(s.active)
	s.mu.Unlock()
	return stats
}

// RecentHistory returns up to n recent generations, newest first.
func (s *Service) RecentHistory(n int) []history.Record {
	if s.history == nil {
		return nil
	}
	return s.history.Recent(n)
}

// TokensToday sums tokens recorded per provider in the usage log since local
// midnight. Without a database it returns nothing.
func (s *Service) TokensToday(ctx context.Context) map[string]int64 {
	if s.store == nil {
		return nil
	}
	now := time.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	usage, err := s.store.TokensSince(ctx, midnight)
	if err != nil {
		s.logger.Warn("token usage query failed", "error", err)
		return nil
	}
	return usage
}

// providerConfig returns the loaded config for a provider name, or a zero
// config that Manager fills with built-in defaults.
func (s *Service) providerConfig(name string) config.ProviderConfig {
	if pc := s.providers(); pc != nil {
		if cfg, ok := pc.Providers[name]; ok {
			return cfg
		}
	}
	return config.ProviderConfig{}
}

// clientFor builds or reuses the client for a provider name.
func (s *Service) clientFor(name string) (provider.Client, error) {
	return s.manager.GetByName(name, s.providerConfig(name))
}

// resolveProvider picks the provider for a request: an explicit "provider"
// parameter wins, then the configured default, skipping providers whose
// breaker is open when an alternative is closed.
func (s *Service) resolveProvider(req *ai.Request) (string, error) {
	name := req.StringParameter("provider", s.cfg.DefaultProvider)
	if _, err := provider.ParseKind(name); err != nil {
		return "", err
	}

	if s.health != nil && !s.health.Available(name) {
		for _, alt := range s.SupportedProviders() {
			if alt != name && s.health.Available(alt) {
				s.logger.Warn("provider unavailable, falling back",
					"provider", name, "fallback", alt)
				return alt, nil
			}
		}
		// Every breaker open: stick with the original and let it probe.
	}
	return name, nil
}

// connectedClient resolves, builds, and connects the client for a request.
func (s *Service) connectedClient(ctx context.Context, req *ai.Request) (provider.Client, error) {
	name, err := s.resolveProvider(req)
	if err != nil {
		return nil, err
	}
	client, err := s.manager.CreateAndConnect(ctx, name, s.providerConfig(name))
	if err != nil {
		if s.health != nil {
			s.health.RecordFailure(name)
		}
		return nil, err
	}
	return client, nil
}

// admit runs policy, rate limit, and budget checks for a request.
func (s *Service) admit(ctx context.Context, req *ai.Request, client provider.Client) error {
	name := client.Name()

	if s.gate != nil && s.gate.Enabled() {
		model := s.modelFor(req, client)
		if d := s.gate.Admit(ctx, req, name, model); !d.Allowed {
			if s.metrics != nil {
				s.metrics.RecordPolicyDenial(string(req.Type), name)
			}
			return fmt.Errorf("request denied by policy: %s", d.Reason)
		}
	}

	if s.limiter != nil {
		rl := s.providerConfig(name).RateLimit
		result, err := s.limiter.Allow(ctx, name, rl.Requests, rl.Window)
		if err == nil && !result.Allowed {
			return fmt.Errorf("%w for %s, retry in %s", ErrRateLimited, name, result.RetryAfter)
		}
	}

	if s.budget != nil {
		limit := int64(s.providerConfig(name).MaxTokens) * 1000
		result, err := s.budget.CheckDailyTokens(ctx, name, limit)
		if err == nil && !result.Allowed {
			return fmt.Errorf("daily token budget exhausted for %s (%d/%d)",
				name, result.SpentTokens, result.LimitTokens)
		}
	}

	return nil
}

func (s *Service) modelFor(req *ai.Request, client provider.Client) string {
	def := provider.DefaultConfig(client.Kind())
	cfg := s.providerConfig(client.Name()).WithDefaults(def)
	return req.StringParameter("model", cfg.DefaultModel)
}

// requestTimeout derives the deadline for one attempt: network-optimal base
// scaled by the request's priority.
func (s *Service) requestTimeout(ctx context.Context, req *ai.Request) time.Duration {
	base := s.cfg.RequestTimeout
	if s.network != nil {
		base = s.network.OptimalTimeout(ctx)
	}
	if base <= 0 {
		base = 30 * time.Second
	}
	return time.Duration(float64(base) * req.Priority.TimeoutMultiplier())
}

// track registers a cancellable request and returns its cleanup.
func (s *Service) track(id string, cancel context.CancelFunc) func() {
	s.mu.Lock()
	s.active[id] = cancel
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.active, id)
		s.mu.Unlock()
	}
}

func (s *Service) publish(ev events.Event) {
	if s.bus != nil {
		s.bus.Publish(ev)
	}
}

// record captures a finished request in history, the usage log, and metrics.
func (s *Service) record(ctx context.Context, req *ai.Request, resp *ai.Response) {
	rec := history.Record{
		RequestID:     req.ID,
		Type:          string(req.Type),
		Provider:      resp.Provider,
		Model:         resp.Model,
		Status:        string(resp.Status),
		PromptPreview: preview(req.Prompt, 80),
		Tokens:        resp.Quality.TokenCount,
		Duration:      resp.Duration(),
		CreatedAt:     time.Now(),
	}
	if s.history != nil {
		s.history.Add(rec)
	}
	if s.store != nil {
		if err := s.store.Insert(ctx, rec); err != nil {
			s.logger.Warn("usage log insert failed", "error", err)
		}
	}
	if s.budget != nil && resp.Quality.TokenCount > 0 {
		s.budget.RecordTokens(ctx, resp.Provider, int64(resp.Quality.TokenCount))
	}
	if s.metrics != nil {
		s.metrics.RecordRequest(telemetry.RequestLabels{
			Type:             string(req.Type),
			Provider:         resp.Provider,
			Model:            resp.Model,
			Status:           string(resp.Status),
			DurationMs:       float64(resp.Duration().Milliseconds()),
			PromptTokens:     req.EstimatedTokens(),
			CompletionTokens: resp.Quality.TokenCount,
			QualityScore:     resp.Quality.OverallQualityScore(),
		})
	}
}

func preview(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
