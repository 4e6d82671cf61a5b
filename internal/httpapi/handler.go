// Package httpapi exposes the orchestrator over HTTP for local front-ends:
// the editor UI talks to these endpoints instead of linking the engine in.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/inkwell-labs/muse-engine/internal/ai"
	"github.com/inkwell-labs/muse-engine/internal/httputil"
	"github.com/inkwell-labs/muse-engine/internal/orchestrator"
)

// Handler holds dependencies for the engine HTTP handlers.
type Handler struct {
	svc    *orchestrator.Service
	logger *slog.Logger
}

func NewHandler(svc *orchestrator.Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Routes mounts all engine endpoints on a chi router.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/v1/generate", h.Generate)
	r.Post("/v1/generate/stream", h.GenerateStream)
	r.Get("/v1/providers", h.ListProviders)
	r.Get("/v1/history", h.History)
	r.Get("/v1/stats", h.Stats)
	r.Delete("/v1/requests/{id}", h.CancelRequest)
}

// generateRequest is the JSON body for both generate endpoints.
type generateRequest struct {
	Prompt     string         `json:"prompt"`
	Context    string         `json:"context,omitempty"`
	Type       string         `json:"type,omitempty"`
	Mode       string         `json:"mode,omitempty"`
	Priority   string         `json:"priority,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

func (g generateRequest) build(streaming bool) (*ai.Request, error) {
	var opts []ai.RequestOption
	if streaming {
		opts = append(opts, ai.WithStreaming())
	}
	if g.Type != "" {
		opts = append(opts, ai.WithType(ai.RequestType(g.Type)))
	}
	if g.Mode != "" {
		opts = append(opts, ai.WithMode(ai.ExecutionMode(g.Mode)))
	}
	if g.Priority != "" {
		opts = append(opts, ai.WithPriority(ai.Priority(g.Priority)))
	}
	for k, v := range g.Parameters {
		opts = append(opts, ai.WithParameter(k, v))
	}
	return ai.NewRequest(g.Prompt, g.Context, opts...)
}

// generateResponse is the JSON shape of a finished generation.
type generateResponse struct {
	ID        string `json:"id"`
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
	Content   string `json:"content,omitempty"`
	Error     string `json:"error,omitempty"`
	Provider  string `json:"provider,omitempty"`
	Model     string `json:"model,omitempty"`
	CacheHit  bool   `json:"cache_hit"`
	Tokens    int    `json:"tokens"`
	Duration  string `json:"duration"`
}

func toGenerateResponse(resp *ai.Response) generateResponse {
	return generateResponse{
		ID:        resp.ID,
		RequestID: resp.RequestID,
		Status:    string(resp.Status),
		Content:   resp.Content,
		Error:     resp.Err,
		Provider:  resp.Provider,
		Model:     resp.Model,
		CacheHit:  resp.Quality.CacheHit,
		Tokens:    resp.Quality.TokenCount,
		Duration:  resp.Duration().String(),
	}
}

// Generate handles POST /v1/generate.
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")

	var body generateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httputil.WriteBadRequestError(w, reqID, "invalid JSON: "+err.Error())
		return
	}
	req, err := body.build(false)
	if err != nil {
		httputil.WriteBadRequestError(w, reqID, err.Error())
		return
	}

	start := time.Now()
	resp := h.svc.ProcessRequest(r.Context(), req)

	h.logger.Info("generation finished",
		"request_id", req.ID,
		"type", string(req.Type),
		"status", string(resp.Status),
		"provider", resp.Provider,
		"cache_hit", resp.Quality.CacheHit,
		"duration_ms", time.Since(start).Milliseconds())

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toGenerateResponse(resp))
}

// ListProviders handles GET /v1/providers.
func (h *Handler) ListProviders(w http.ResponseWriter, r *http.Request) {
	stats := h.svc.Statistics()

	type providerInfo struct {
		Name         string   `json:"name"`
		Capabilities []string `json:"capabilities"`
		Breaker      string   `json:"breaker,omitempty"`
		Connected    bool     `json:"connected"`
	}

	var out []providerInfo
	for _, name := range h.svc.SupportedProviders() {
		info := providerInfo{Name: name}
		if caps, err := h.svc.ProviderCapabilities(name); err == nil {
			for _, c := range caps {
				info.Capabilities = append(info.Capabilities, string(c))
			}
		}
		if st, ok := stats.Providers[name]; ok {
			info.Connected = st.Connected
		}
		if br, ok := stats.Breakers[name]; ok {
			info.Breaker = string(br)
		}
		out = append(out, info)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"providers": out})
}

// History handles GET /v1/history.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			httputil.WriteBadRequestError(w, w.Header().Get("X-Request-ID"), "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	records := h.svc.RecentHistory(limit)
	type historyEntry struct {
		RequestID     string    `json:"request_id"`
		Type          string    `json:"type"`
		Provider      string    `json:"provider"`
		Model         string    `json:"model"`
		Status        string    `json:"status"`
		PromptPreview string    `json:"prompt_preview"`
		Tokens        int       `json:"tokens"`
		DurationMs    int64     `json:"duration_ms"`
		CreatedAt     time.Time `json:"created_at"`
	}
	out := make([]historyEntry, 0, len(records))
	for _, rec := range records {
		out = append(out, historyEntry{
			RequestID:     rec.RequestID,
			Type:          rec.Type,
			Provider:      rec.Provider,
			Model:         rec.Model,
			Status:        rec.Status,
			PromptPreview: rec.PromptPreview,
			Tokens:        rec.Tokens,
			DurationMs:    rec.Duration.Milliseconds(),
			CreatedAt:     rec.CreatedAt,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"history": out})
}

// Stats handles GET /v1/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats := h.svc.Statistics()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"providers": stats.Providers,
		"breakers":  stats.Breakers,
		"cache": map[string]any{
			"hits":    stats.Cache.Hits,
			"misses":  stats.Cache.Misses,
			"entries": stats.Cache.Entries,
		},
		"network": map[string]any{
			"successes": stats.Network.Successes,
			"failures":  stats.Network.Failures,
			"timeouts":  stats.Network.Timeouts,
		},
		"history_size": stats.History,
		"in_flight":    stats.InFlight,
		"tokens_today": h.svc.TokensToday(r.Context()),
	})
}

// CancelRequest handles DELETE /v1/requests/{id}.
func (h *Handler) CancelRequest(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")

	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		httputil.WriteBadRequestError(w, reqID, "invalid request id")
		return
	}
	if !h.svc.CancelRequest(id) {
		httputil.WriteNotFoundError(w, reqID, "no in-flight request with that id")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
