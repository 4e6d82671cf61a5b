package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/inkwell-labs/muse-engine/internal/ai"
	"github.com/inkwell-labs/muse-engine/internal/config"
)

// openaiClient talks to any OpenAI-compatible /chat/completions endpoint.
// Both supported kinds speak the same wire format, so one implementation
// serves them all; only the base URL, default model, and auth differ.
type openaiClient struct {
	name   string
	kind   Kind
	cfg    config.ProviderConfig
	client *http.Client
	logger *slog.Logger

	// sem bounds in-flight requests per client.
	sem chan struct{}

	requests  atomic.Uint64
	successes atomic.Uint64
	failures  atomic.Uint64

	mu        sync.RWMutex
	connected bool
	lastErr   error
	lastUsed  time.Time
}

func newOpenAIClient(kind Kind, cfg config.ProviderConfig, logger *slog.Logger) *openaiClient {
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &openaiClient{
		name: string(kind),
		kind: kind,
		cfg:  cfg,
		client: &http.Client{
			// No client-level timeout: streams outlive any single deadline,
			// so per-request contexts carry the deadlines instead.
			Transport: &http.Transport{
				MaxIdleConns:        maxConcurrent,
				MaxIdleConnsPerHost: maxConcurrent,
				IdleConnTimeout:     90 * time.Second,
				ForceAttemptHTTP2:   true,
			},
		},
		logger: logger.With("provider", string(kind)),
		sem:    make(chan struct{}, maxConcurrent),
	}
}

func (c *openaiClient) Name() string { return c.name }
func (c *openaiClient) Kind() Kind   { return c.kind }

func (c *openaiClient) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

func (c *openaiClient) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

func (c *openaiClient) setError(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
}

// Connect verifies the endpoint with a minimal one-token completion. It
// reports the outcome as a bool; the failure reason lands in LastError.
func (c *openaiClient) Connect(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	probe := chatRequest{
		Model:     c.cfg.DefaultModel,
		Messages:  []chatMessage{{Role: "user", Content: "ping"}},
		MaxTokens: 1,
	}
	if _, _, err := c.complete(ctx, probe); err != nil {
		c.setError(fmt.Errorf("connect %s: %w", c.name, err))
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
		c.logger.Warn("provider connection check failed", "error", err)
		return false
	}

	c.mu.Lock()
	c.connected = true
	c.lastErr = nil
	c.mu.Unlock()
	c.logger.Info("provider connected", "base_url", c.cfg.BaseURL, "model", c.cfg.DefaultModel)
	return true
}

func (c *openaiClient) Disconnect() {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	c.client.CloseIdleConnections()
}

// Healthy re-probes the endpoint without flipping the connected flag on a
// transient failure; the caller decides what to do with the answer.
func (c *openaiClient) Healthy(ctx context.Context) bool {
	if !c.Connected() {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	probe := chatRequest{
		Model:     c.cfg.DefaultModel,
		Messages:  []chatMessage{{Role: "user", Content: "ping"}},
		MaxTokens: 1,
	}
	_, _, err := c.complete(ctx, probe)
	if err != nil {
		c.setError(err)
		return false
	}
	return true
}

func (c *openaiClient) Capabilities() []ai.Capability {
	return []ai.Capability{
		ai.CapTextGeneration,
		ai.CapStreamingOutput,
		ai.CapConversation,
		ai.CapCreativeWriting,
		ai.CapTextAnalysis,
		ai.CapTextOptimization,
		ai.CapTextSummarization,
		ai.CapTranslation,
		ai.CapQuestionAnswering,
		ai.CapContextAwareness,
	}
}

func (c *openaiClient) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		Requests:   c.requests.Load(),
		Successes:  c.successes.Load(),
		Failures:   c.failures.Load(),
		Connected:  c.connected,
		LastUsedAt: c.lastUsed,
	}
}

// acquire blocks until a concurrency slot is free or the context ends.
func (c *openaiClient) acquire(ctx context.Context) error {
	select {
	case c.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *openaiClient) release() { <-c.sem }

func (c *openaiClient) touch() {
	c.mu.Lock()
	c.lastUsed = time.Now()
	c.mu.Unlock()
}

// buildMessages maps a request onto the chat message array. Background
// context rides in a system message so the prompt stays clean.
func (c *openaiClient) buildMessages(req *ai.Request) []chatMessage {
	var msgs []chatMessage
	if req.Context != "" {
		msgs = append(msgs, chatMessage{
			Role:    "system",
			Content: "Background context:\n" + req.Context,
		})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: req.Prompt})
	return msgs
}

func (c *openaiClient) buildChatRequest(req *ai.Request, stream bool) chatRequest {
	cr := chatRequest{
		Model:       c.cfg.DefaultModel,
		Messages:    c.buildMessages(req),
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
		Stream:      stream,
	}
	cr.Model = req.StringParameter("model", cr.Model)
	cr.MaxTokens = req.IntParameter("max_tokens", cr.MaxTokens)
	cr.Temperature = req.FloatParameter("temperature", cr.Temperature)
	return cr
}

func (c *openaiClient) GenerateText(ctx context.Context, req *ai.Request) (string, error) {
	if !c.Connected() {
		return "", fmt.Errorf("%w: %s", ErrNotConnected, c.name)
	}
	if err := c.acquire(ctx); err != nil {
		return "", err
	}
	defer c.release()

	c.requests.Add(1)
	c.touch()

	content, usage, err := c.complete(ctx, c.buildChatRequest(req, false))
	if err != nil {
		c.failures.Add(1)
		c.setError(err)
		return "", err
	}
	c.successes.Add(1)
	c.logger.Debug("completion finished",
		"request_id", req.ID,
		"prompt_tokens", usage.PromptTokens,
		"completion_tokens", usage.CompletionTokens)
	return content, nil
}

func (c *openaiClient) GenerateTextStream(ctx context.Context, req *ai.Request) (iter.Seq2[string, error], error) {
	if !c.Connected() {
		return nil, fmt.Errorf("%w: %s", ErrNotConnected, c.name)
	}
	if err := c.acquire(ctx); err != nil {
		return nil, err
	}

	c.requests.Add(1)
	c.touch()

	resp, err := c.send(ctx, c.buildChatRequest(req, true))
	if err != nil {
		c.release()
		c.failures.Add(1)
		c.setError(err)
		return nil, err
	}

	stream := streamChunks(resp.Body)
	return func(yield func(string, error) bool) {
		defer c.release()
		failed := false
		for chunk, err := range stream {
			if err != nil {
				failed = true
				c.setError(err)
			}
			if !yield(chunk, err) {
				break
			}
		}
		if failed {
			c.failures.Add(1)
		} else {
			c.successes.Add(1)
		}
	}, nil
}

// Process runs a request end to end and folds every failure mode into the
// response, so callers always get a usable Response back.
func (c *openaiClient) Process(ctx context.Context, req *ai.Request, stream bool) *ai.Response {
	resp, err := ai.NewResponse(req.ID)
	if err != nil {
		resp, _ = ai.NewResponse(uuid.NewString())
		resp.Fail(err.Error())
		return resp
	}
	resp.SetProviderInfo(c.name, c.cfg.DefaultModel)
	if err := resp.StartProcessing(); err != nil {
		resp.Fail(err.Error())
		return resp
	}

	start := time.Now()
	if stream && req.Type.SupportsStreaming() {
		seq, err := c.GenerateTextStream(ctx, req)
		if err != nil {
			c.finishFailed(resp, err)
			return resp
		}
		for chunk, err := range seq {
			if err != nil {
				c.finishFailed(resp, err)
				return resp
			}
			if err := resp.AppendChunk(chunk); err != nil {
				resp.Fail(err.Error())
				return resp
			}
		}
		if err := resp.Complete(resp.Content); err != nil {
			resp.Fail(err.Error())
			return resp
		}
	} else {
		content, err := c.GenerateText(ctx, req)
		if err != nil {
			c.finishFailed(resp, err)
			return resp
		}
		if err := resp.Complete(content); err != nil {
			resp.Fail(err.Error())
			return resp
		}
	}

	resp.Quality.ResponseTime = time.Since(start)
	return resp
}

func (c *openaiClient) finishFailed(resp *ai.Response, err error) {
	switch {
	case errors.Is(err, context.Canceled):
		resp.Cancel()
	case isTimeout(err):
		resp.MarkTimeout()
	default:
		resp.Fail(err.Error())
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}

// complete performs a buffered chat completion.
func (c *openaiClient) complete(ctx context.Context, cr chatRequest) (string, usage, error) {
	resp, err := c.send(ctx, cr)
	if err != nil {
		return "", usage{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", usage{}, fmt.Errorf("read %s response: %w", c.name, err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", usage{}, fmt.Errorf("unmarshal %s response: %w", c.name, err)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return "", usage{}, fmt.Errorf("%w from %s", ErrEmptyCompletion, c.name)
	}
	return parsed.Choices[0].Message.Content, parsed.Usage, nil
}

// send issues the HTTP request and checks the status code. The caller owns
// the response body.
func (c *openaiClient) send(ctx context.Context, cr chatRequest) (*http.Response, error) {
	data, err := json.Marshal(cr)
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", c.name, err)
	}

	url := c.cfg.BaseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create http request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	for k, v := range c.cfg.Headers {
		if v != "" {
			httpReq.Header.Set(k, v)
		}
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", c.name, err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("%s returned status %d: %s", c.name, resp.StatusCode, string(body))
	}
	return resp, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage usage `json:"usage"`
}
