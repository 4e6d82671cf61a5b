package config

import "time"

type ProvidersConfig struct {
	Providers map[string]ProviderConfig `yaml:"providers"`
}

// ProviderConfig holds everything needed to talk to one OpenAI-compatible
// provider endpoint.
type ProviderConfig struct {
	APIKey        string            `yaml:"api_key"`
	BaseURL       string            `yaml:"base_url"`
	DefaultModel  string            `yaml:"default_model"`
	MaxTokens     int               `yaml:"max_tokens"`
	Temperature   float64           `yaml:"temperature"`
	Timeout       time.Duration     `yaml:"timeout"`
	StreamTimeout time.Duration     `yaml:"stream_timeout"`
	MaxConcurrent int               `yaml:"max_concurrent_requests"`
	Headers       map[string]string `yaml:"headers,omitempty"`
	RateLimit     RateLimitConfig   `yaml:"rate_limit"`
}

// RateLimitConfig bounds requests per provider over a sliding window.
// Zero Requests disables the limit.
type RateLimitConfig struct {
	Requests int64         `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

// withDefaults fills unset fields from the given fallback config.
func (p ProviderConfig) WithDefaults(def ProviderConfig) ProviderConfig {
	if p.BaseURL == "" {
		p.BaseURL = def.BaseURL
	}
	if p.DefaultModel == "" {
		p.DefaultModel = def.DefaultModel
	}
	if p.MaxTokens == 0 {
		p.MaxTokens = def.MaxTokens
	}
	if p.Temperature == 0 {
		p.Temperature = def.Temperature
	}
	if p.Timeout == 0 {
		p.Timeout = def.Timeout
	}
	if p.StreamTimeout == 0 {
		p.StreamTimeout = def.StreamTimeout
	}
	if p.MaxConcurrent == 0 {
		p.MaxConcurrent = def.MaxConcurrent
	}
	return p
}
