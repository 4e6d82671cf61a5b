package ai

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrEmptyRequest is returned when a request carries neither a prompt nor
// document context.
var ErrEmptyRequest = errors.New("request must contain a prompt or context")

// Request is a single unit of work for a provider: what to generate, from
// which input, and with which parameters.
type Request struct {
	ID      string
	Prompt  string
	Context string

	Type     RequestType
	Mode     ExecutionMode
	Priority Priority

	// Parameters carries per-request overrides: max_tokens, temperature,
	// model, provider. Metadata is free-form tagging for callers.
	Parameters map[string]any
	Metadata   map[string]any

	CreatedAt time.Time
	UpdatedAt time.Time

	Streaming bool

	cancelled bool
}

// RequestOption customizes a request at construction time.
type RequestOption func(*Request)

func WithType(t RequestType) RequestOption {
	return func(r *Request) { r.Type = t }
}

func WithMode(m ExecutionMode) RequestOption {
	return func(r *Request) { r.Mode = m }
}

func WithPriority(p Priority) RequestOption {
	return func(r *Request) { r.Priority = p }
}

func WithParameter(key string, value any) RequestOption {
	return func(r *Request) { r.Parameters[key] = value }
}

func WithStreaming() RequestOption {
	return func(r *Request) { r.Streaming = true }
}

// NewRequest builds a request from a prompt and optional document context.
// At least one of the two must be non-blank.
func NewRequest(prompt, context string, opts ...RequestOption) (*Request, error) {
	if strings.TrimSpace(prompt) == "" && strings.TrimSpace(context) == "" {
		return nil, ErrEmptyRequest
	}
	now := time.Now()
	r := &Request{
		ID:         uuid.NewString(),
		Prompt:     prompt,
		Context:    context,
		Type:       TypeTextGeneration,
		Mode:       ModeManualInput,
		Priority:   PriorityNormal,
		Parameters: make(map[string]any),
		Metadata:   make(map[string]any),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// SetPrompt replaces the prompt. Blank prompts are rejected.
func (r *Request) SetPrompt(prompt string) error {
	trimmed := strings.TrimSpace(prompt)
	if trimmed == "" {
		return errors.New("prompt must not be blank")
	}
	r.Prompt = trimmed
	r.touch()
	return nil
}

// SetContext replaces the document context. An empty context is allowed as
// long as the prompt still carries content.
func (r *Request) SetContext(context string) {
	r.Context = strings.TrimSpace(context)
	r.touch()
}

func (r *Request) SetParameter(key string, value any) error {
	if key == "" {
		return errors.New("parameter key must not be empty")
	}
	r.Parameters[key] = value
	r.touch()
	return nil
}

func (r *Request) SetMetadata(key string, value any) error {
	if key == "" {
		return errors.New("metadata key must not be empty")
	}
	r.Metadata[key] = value
	r.touch()
	return nil
}

// Cancel marks the request as cancelled. Cancellation is one-way and
// cooperative: in-flight provider calls are not aborted, callers observe the
// flag and stop treating the request as active.
func (r *Request) Cancel() {
	r.cancelled = true
	r.touch()
}

func (r *Request) Cancelled() bool { return r.cancelled }

// Valid reports whether the request still carries content and has not been
// cancelled.
func (r *Request) Valid() bool {
	hasContent := strings.TrimSpace(r.Prompt) != "" || strings.TrimSpace(r.Context) != ""
	return hasContent && !r.cancelled
}

func (r *Request) ContentLength() int {
	return len(r.Prompt) + len(r.Context)
}

// EstimatedTokens is a rough chars/4 estimate of the input size.
func (r *Request) EstimatedTokens() int {
	return (len(r.Prompt) + 1 + len(r.Context)) / 4
}

// StringParameter returns a string-typed parameter, or fallback when absent
// or of another type.
func (r *Request) StringParameter(key, fallback string) string {
	if v, ok := r.Parameters[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// IntParameter returns an integer-typed parameter, accepting float64 values
// as produced by JSON decoding.
func (r *Request) IntParameter(key string, fallback int) int {
	switch v := r.Parameters[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return fallback
}

// FloatParameter returns a float-typed parameter, accepting int values.
func (r *Request) FloatParameter(key string, fallback float64) float64 {
	switch v := r.Parameters[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return fallback
}

func (r *Request) touch() {
	r.UpdatedAt = time.Now()
}
