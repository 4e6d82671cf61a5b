package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/inkwell-labs/muse-engine/internal/cache"
	"github.com/inkwell-labs/muse-engine/internal/config"
	"github.com/inkwell-labs/muse-engine/internal/history"
	"github.com/inkwell-labs/muse-engine/internal/orchestrator"
	"github.com/inkwell-labs/muse-engine/internal/provider"
)

// stubProvider answers connect probes and serves a fixed completion or
// stream.
func stubProvider(completion string, chunks []string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			MaxTokens int  `json:"max_tokens"`
			Stream    bool `json:"stream"`
		}
		json.NewDecoder(r.Body).Decode(&req)

		if req.Stream && req.MaxTokens != 1 {
			w.Header().Set("Content-Type", "text/event-stream")
			flusher := w.(http.Flusher)
			for _, c := range chunks {
				data, _ := json.Marshal(map[string]any{
					"choices": []map[string]any{{"delta": map[string]string{"content": c}}},
				})
				fmt.Fprintf(w, "data: %s\n\n", data)
				flusher.Flush()
			}
			fmt.Fprint(w, "data: [DONE]\n\n")
			return
		}

		content := completion
		if req.MaxTokens == 1 {
			content = "ok"
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{
				"message":       map[string]string{"role": "assistant", "content": content},
				"finish_reason": "stop",
			}},
		})
	}))
}

func testAPI(t *testing.T, providerURL string) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	providers := &config.ProvidersConfig{
		Providers: map[string]config.ProviderConfig{
			"openai": {APIKey: "sk-test", BaseURL: providerURL, Timeout: 5 * time.Second},
		},
	}
	svc := orchestrator.New(orchestrator.Deps{
		Config: config.OrchestratorConfig{
			DefaultProvider: "openai",
			MaxConcurrent:   4,
			RequestTimeout:  5 * time.Second,
		},
		Providers: func() *config.ProvidersConfig { return providers },
		Manager:   provider.NewManager(logger),
		Health:    provider.NewHealthTracker(5, time.Second),
		Cache:     cache.New(time.Hour, 100, nil, logger),
		History:   history.NewMemory(10),
		Logger:    logger,
	})
	t.Cleanup(svc.Shutdown)

	h := NewHandler(svc, logger)
	r := chi.NewRouter()
	h.Routes(r)
	return r
}

func TestGenerate(t *testing.T) {
	srv := stubProvider("Once upon a time.", nil)
	defer srv.Close()
	api := testAPI(t, srv.URL)

	body := `{"prompt": "Write an opening.", "context": "A story about dragons.", "type": "story_writing"}`
	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/generate", strings.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Status  string `json:"status"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if resp.Status != "completed" {
		t.Errorf("expected completed, got %s", resp.Status)
	}
	if resp.Content != "Once upon a time." {
		t.Errorf("unexpected content: %q", resp.Content)
	}
}

func TestGenerate_InvalidJSON(t *testing.T) {
	srv := stubProvider("x", nil)
	defer srv.Close()
	api := testAPI(t, srv.URL)

	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/generate", strings.NewReader("{broken")))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestGenerate_EmptyInputs(t *testing.T) {
	srv := stubProvider("x", nil)
	defer srv.Close()
	api := testAPI(t, srv.URL)

	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/generate", strings.NewReader(`{}`)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty prompt and context, got %d", rec.Code)
	}
}

func TestGenerateStream(t *testing.T) {
	srv := stubProvider("", []string{"the dragon", " appeared."})
	defer srv.Close()
	api := testAPI(t, srv.URL)

	body := `{"prompt": "Continue.", "type": "story_writing"}`
	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/generate/stream", strings.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("expected SSE content type, got %s", ct)
	}

	var content strings.Builder
	sawDone := false
	for _, line := range strings.Split(rec.Body.String(), "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			sawDone = true
			break
		}
		var chunk struct {
			Content string `json:"content"`
		}
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			t.Fatalf("bad SSE payload %q: %v", data, err)
		}
		content.WriteString(chunk.Content)
	}
	if !sawDone {
		t.Error("stream should end with [DONE]")
	}
	if content.String() != "the dragon appeared." {
		t.Errorf("assembled content wrong: %q", content.String())
	}
}

func TestListProviders(t *testing.T) {
	srv := stubProvider("x", nil)
	defer srv.Close()
	api := testAPI(t, srv.URL)

	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/providers", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Providers []struct {
			Name         string   `json:"name"`
			Capabilities []string `json:"capabilities"`
		} `json:"providers"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(resp.Providers) != 2 {
		t.Fatalf("expected 2 providers, got %d", len(resp.Providers))
	}
	if resp.Providers[0].Name != "openai" || len(resp.Providers[0].Capabilities) == 0 {
		t.Errorf("unexpected provider entry: %+v", resp.Providers[0])
	}
}

func TestHistoryEndpoint(t *testing.T) {
	srv := stubProvider("generated", nil)
	defer srv.Close()
	api := testAPI(t, srv.URL)

	body := `{"prompt": "hello"}`
	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/generate", strings.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("generate failed: %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	api.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/history?limit=5", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		History []struct {
			Status string `json:"status"`
		} `json:"history"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(resp.History) != 1 || resp.History[0].Status != "completed" {
		t.Errorf("unexpected history: %+v", resp.History)
	}
}

func TestStatsEndpoint(t *testing.T) {
	srv := stubProvider("x", nil)
	defer srv.Close()
	api := testAPI(t, srv.URL)

	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/stats", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	for _, key := range []string{"providers", "cache", "network", "history_size", "in_flight", "tokens_today"} {
		if _, ok := resp[key]; !ok {
			t.Errorf("stats payload missing %q", key)
		}
	}
}

func TestWriteSetupError_RateLimitMapsTo429(t *testing.T) {
	rec := httptest.NewRecorder()
	writeSetupError(rec, "req-1", fmt.Errorf("%w for openai, retry in 1s", orchestrator.ErrRateLimited))
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("rate limit denial should map to 429, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	writeSetupError(rec, "req-1", errors.New("no provider reachable"))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("other setup failures should map to 503, got %d", rec.Code)
	}
}

func TestCancelRequest_InvalidID(t *testing.T) {
	srv := stubProvider("x", nil)
	defer srv.Close()
	api := testAPI(t, srv.URL)

	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/v1/requests/not-a-uuid", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	api.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/v1/requests/00000000-0000-0000-0000-000000000001", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown id, got %d", rec.Code)
	}
}
