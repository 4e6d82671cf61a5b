package provider

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/inkwell-labs/muse-engine/internal/config"
)

// Manager creates and caches provider clients. Two calls with the same kind
// and an equivalent config share one client instance, so connection state
// and concurrency limits stay consistent across the engine.
type Manager struct {
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[string]Client
}

func NewManager(logger *slog.Logger) *Manager {
	return &Manager{
		logger:  logger,
		clients: make(map[string]Client),
	}
}

// DefaultConfig returns the built-in settings for a provider kind. Loaded
// provider config is layered on top of these via WithDefaults.
func DefaultConfig(kind Kind) config.ProviderConfig {
	base := config.ProviderConfig{
		MaxTokens:     2000,
		Temperature:   0.7,
		Timeout:       30 * time.Second,
		StreamTimeout: 60 * time.Second,
		MaxConcurrent: 10,
	}
	switch kind {
	case KindOpenAI:
		base.BaseURL = "https://api.openai.com/v1"
		base.DefaultModel = "gpt-3.5-turbo"
	case KindDeepSeek:
		base.BaseURL = "https://api.deepseek.com/v1"
		base.DefaultModel = "deepseek-chat"
	}
	return base
}

// SupportedProviders lists the provider names the engine can build clients
// for.
func (m *Manager) SupportedProviders() []string {
	names := make([]string, 0, len(Kinds()))
	for _, k := range Kinds() {
		names = append(names, string(k))
	}
	return names
}

// Get returns the cached client for the kind and config, creating one on
// first use.
func (m *Manager) Get(kind Kind, cfg config.ProviderConfig) Client {
	cfg = cfg.WithDefaults(DefaultConfig(kind))
	key := cacheKey(kind, cfg)

	m.mu.RLock()
	c, ok := m.clients[key]
	m.mu.RUnlock()
	if ok {
		return c
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.clients[key]; ok {
		return c
	}
	c = m.create(kind, cfg)
	m.clients[key] = c
	m.logger.Debug("provider client created", "provider", string(kind), "base_url", cfg.BaseURL)
	return c
}

// GetByName resolves the provider name and returns its client.
func (m *Manager) GetByName(name string, cfg config.ProviderConfig) (Client, error) {
	kind, err := ParseKind(name)
	if err != nil {
		return nil, err
	}
	return m.Get(kind, cfg), nil
}

// CreateAndConnect builds (or reuses) a client and ensures it is connected.
func (m *Manager) CreateAndConnect(ctx context.Context, name string, cfg config.ProviderConfig) (Client, error) {
	c, err := m.GetByName(name, cfg)
	if err != nil {
		return nil, err
	}
	if c.Connected() {
		return c, nil
	}
	if !c.Connect(ctx) {
		return nil, fmt.Errorf("connect provider %s: %w", name, c.LastError())
	}
	return c, nil
}

// create builds a client for a kind. The switch is the single growth point
// for new providers.
func (m *Manager) create(kind Kind, cfg config.ProviderConfig) Client {
	switch kind {
	case KindOpenAI, KindDeepSeek:
		return newOpenAIClient(kind, cfg, m.logger)
	default:
		// Unreachable: ParseKind gates every external entry point.
		panic(fmt.Sprintf("provider: no client constructor for kind %q", kind))
	}
}

// Clients returns a snapshot of all cached clients.
func (m *Manager) Clients() []Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Client, 0, len(m.clients))
	for _, c := range m.clients {
		out = append(out, c)
	}
	return out
}

// DisconnectAll disconnects every cached client but keeps them cached.
func (m *Manager) DisconnectAll() {
	for _, c := range m.Clients() {
		c.Disconnect()
	}
}

// ClearCache disconnects and drops every cached client.
func (m *Manager) ClearCache() {
	m.mu.Lock()
	clients := m.clients
	m.clients = make(map[string]Client)
	m.mu.Unlock()
	for _, c := range clients {
		c.Disconnect()
	}
}

// cacheKey identifies a client by kind plus the config fields that change
// its behavior. The API key is truncated so the full secret never sits in a
// map key.
func cacheKey(kind Kind, cfg config.ProviderConfig) string {
	return fmt.Sprintf("%s|%s|%s|%s", kind, cfg.BaseURL, cfg.DefaultModel, redactKey(cfg.APIKey))
}

func redactKey(key string) string {
	if len(key) <= 8 {
		return key
	}
	return key[:8]
}
