package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/inkwell-labs/muse-engine/internal/httputil"
	"github.com/inkwell-labs/muse-engine/internal/orchestrator"
)

// GenerateStream handles POST /v1/generate/stream: chunks go out as SSE
// data events, the stream ends with [DONE], and mid-stream failures arrive
// as an error event.
func (h *Handler) GenerateStream(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")

	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.WriteInternalError(w, reqID, "streaming not supported")
		return
	}

	var body generateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httputil.WriteBadRequestError(w, reqID, "invalid JSON: "+err.Error())
		return
	}
	req, err := body.build(true)
	if err != nil {
		httputil.WriteBadRequestError(w, reqID, err.Error())
		return
	}

	seq, err := h.svc.ProcessRequestStream(r.Context(), req)
	if err != nil {
		writeSetupError(w, reqID, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for chunk, err := range seq {
		if err != nil {
			h.logger.Error("stream failed", "request_id", req.ID, "error", err)
			payload, _ := json.Marshal(map[string]string{"error": err.Error()})
			fmt.Fprintf(w, "event: error\ndata: %s\n\n", payload)
			flusher.Flush()
			return
		}
		payload, _ := json.Marshal(map[string]string{"content": chunk})
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
	}

	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

// writeSetupError maps a stream setup failure onto the right status code.
func writeSetupError(w http.ResponseWriter, reqID string, err error) {
	if errors.Is(err, orchestrator.ErrRateLimited) {
		httputil.WriteRateLimitError(w, reqID, err.Error())
		return
	}
	httputil.WriteServiceUnavailableError(w, reqID, err.Error())
}
