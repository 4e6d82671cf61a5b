// Package policy is an OPA-based admission gate in front of the providers.
// Deployments use it to pin expensive request types to cheap providers, cap
// token spend per request class, or block categories outright.
package policy

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/rego"

	"github.com/inkwell-labs/muse-engine/internal/ai"
	"github.com/inkwell-labs/muse-engine/internal/config"
)

// Input is the document handed to OPA for each admission decision.
type Input struct {
	Request RequestInput `json:"request"`
	Time    TimeInput    `json:"time"`
}

type RequestInput struct {
	Type            string `json:"type"`
	Category        string `json:"category"`
	Priority        string `json:"priority"`
	Provider        string `json:"provider"`
	Model           string `json:"model"`
	EstimatedTokens int    `json:"estimated_tokens"`
	Streaming       bool   `json:"streaming"`
}

type TimeInput struct {
	Hour int    `json:"hour"`
	Day  string `json:"day"`
}

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed bool
	Reason  string
}

// Gate evaluates Rego policies against incoming requests. When disabled it
// admits everything; when enabled but unloaded it fails closed.
type Gate struct {
	cfg    config.PolicyConfig
	logger *slog.Logger

	mu       sync.RWMutex
	prepared *rego.PreparedEvalQuery
}

func NewGate(cfg config.PolicyConfig, logger *slog.Logger) *Gate {
	return &Gate{cfg: cfg, logger: logger}
}

func (g *Gate) Enabled() bool { return g.cfg.Enabled }

// Load compiles every .rego file under the configured bundle path.
func (g *Gate) Load() error {
	modules, err := loadRegoDir(g.cfg.BundlePath)
	if err != nil {
		return fmt.Errorf("load rego files: %w", err)
	}
	if len(modules) == 0 {
		g.logger.Warn("no rego files found", "path", g.cfg.BundlePath)
		return nil
	}
	if err := g.LoadFromModules(modules); err != nil {
		return err
	}
	g.logger.Info("admission policies loaded", "modules", len(modules))
	return nil
}

// LoadFromModules compiles policies from in-memory sources.
func (g *Gate) LoadFromModules(modules map[string]string) error {
	opts := []func(*rego.Rego){
		rego.Query("[data.muse.admission.allow, data.muse.admission.reason]"),
	}
	for name, src := range modules {
		opts = append(opts, rego.Module(name, src))
	}

	prepared, err := rego.New(opts...).PrepareForEval(context.Background())
	if err != nil {
		return fmt.Errorf("prepare rego: %w", err)
	}

	g.mu.Lock()
	g.prepared = &prepared
	g.mu.Unlock()
	return nil
}

// Admit decides whether a request may proceed to the given provider/model.
func (g *Gate) Admit(ctx context.Context, req *ai.Request, provider, model string) Decision {
	if !g.cfg.Enabled {
		return Decision{Allowed: true}
	}

	g.mu.RLock()
	prepared := g.prepared
	g.mu.RUnlock()
	if prepared == nil {
		return Decision{Allowed: false, Reason: "no policies loaded"}
	}

	timeout := g.cfg.EvaluationTimeout
	if timeout == 0 {
		timeout = 100 * time.Millisecond
	}
	evalCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	now := time.Now().UTC()
	input := Input{
		Request: RequestInput{
			Type:            string(req.Type),
			Category:        req.Type.Category(),
			Priority:        string(req.Priority),
			Provider:        provider,
			Model:           model,
			EstimatedTokens: req.EstimatedTokens(),
			Streaming:       req.Streaming,
		},
		Time: TimeInput{Hour: now.Hour(), Day: now.Weekday().String()},
	}

	results, err := prepared.Eval(evalCtx, rego.EvalInput(input))
	if err != nil {
		g.logger.Error("policy evaluation failed", "error", err)
		return Decision{Allowed: false, Reason: "policy evaluation error: " + err.Error()}
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return Decision{Allowed: false, Reason: "no policy result"}
	}

	arr, ok := results[0].Expressions[0].Value.([]interface{})
	if !ok || len(arr) < 2 {
		return Decision{Allowed: false, Reason: "unexpected policy result format"}
	}

	allowed, _ := arr[0].(bool)
	reason, _ := arr[1].(string)
	return Decision{Allowed: allowed, Reason: reason}
}

// loadRegoDir reads all .rego files from a directory, non-recursively.
func loadRegoDir(dir string) (map[string]string, error) {
	modules := make(map[string]string)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".rego" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		modules[entry.Name()] = string(data)
	}
	return modules, nil
}
