package provider

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/inkwell-labs/muse-engine/internal/ai"
)

// Kind identifies a supported provider backend. The set is closed: adding a
// provider means adding a constant here and a case in Manager.create.
type Kind string

const (
	KindOpenAI   Kind = "openai"
	KindDeepSeek Kind = "deepseek"
)

// Kinds returns all supported provider kinds in display order.
func Kinds() []Kind {
	return []Kind{KindOpenAI, KindDeepSeek}
}

// ParseKind resolves a provider name to its Kind, case-insensitively.
func ParseKind(name string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "openai":
		return KindOpenAI, nil
	case "deepseek":
		return KindDeepSeek, nil
	default:
		supported := make([]string, 0, len(Kinds()))
		for _, k := range Kinds() {
			supported = append(supported, string(k))
		}
		return "", fmt.Errorf("%w: %q (supported: %s)",
			ErrUnsupportedProvider, name, strings.Join(supported, ", "))
	}
}

var (
	ErrUnsupportedProvider = errors.New("unsupported provider")
	ErrNotConnected        = errors.New("provider not connected")
	ErrEmptyCompletion     = errors.New("provider returned an empty completion")
)

// Stats is a point-in-time snapshot of a client's request counters.
type Stats struct {
	Requests   uint64
	Successes  uint64
	Failures   uint64
	Connected  bool
	LastUsedAt time.Time
}

// Client is a connection to one OpenAI-compatible provider endpoint.
//
// Connect reports success as a bool and never returns an error; the failure
// reason is retained and available through LastError. All other operations
// require a prior successful Connect.
type Client interface {
	Name() string
	Kind() Kind

	Connect(ctx context.Context) bool
	Disconnect()
	Connected() bool
	Healthy(ctx context.Context) bool
	LastError() error

	Capabilities() []ai.Capability
	Stats() Stats

	// GenerateText runs a buffered completion and returns the full text.
	GenerateText(ctx context.Context, req *ai.Request) (string, error)

	// GenerateTextStream starts a streaming completion. The returned sequence
	// yields content chunks in arrival order; a non-nil error ends the stream.
	GenerateTextStream(ctx context.Context, req *ai.Request) (iter.Seq2[string, error], error)

	// Process runs the request end to end and always returns a response:
	// failures and timeouts are folded into the response status rather than
	// surfaced as errors.
	Process(ctx context.Context, req *ai.Request, stream bool) *ai.Response
}
