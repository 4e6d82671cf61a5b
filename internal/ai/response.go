package ai

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a response. Transitions are monotonic
// toward a terminal state and enforced by a single transition function.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusStreaming  Status = "streaming"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
	StatusTimeout    Status = "timeout"
)

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusTimeout:
		return true
	}
	return false
}

// ErrMissingRequestID is returned when a response is built without the
// request it answers.
var ErrMissingRequestID = errors.New("response must reference a request ID")

// Response accumulates the result of one request: streamed chunks, final
// content, status, and quality measurements.
type Response struct {
	ID        string
	RequestID string
	Content   string

	Status Status
	Err    string // set only on failure or timeout

	Provider string
	Model    string

	Quality  QualityMetrics
	Metadata map[string]any

	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt time.Time

	Streaming bool
	chunks    []string
}

// NewResponse creates a pending response bound to a request.
func NewResponse(requestID string) (*Response, error) {
	if requestID == "" {
		return nil, ErrMissingRequestID
	}
	now := time.Now()
	return &Response{
		ID:        uuid.NewString(),
		RequestID: requestID,
		Status:    StatusPending,
		Quality:   NewQualityMetrics(),
		Metadata:  make(map[string]any),
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// transition is the only place status changes. It rejects moves out of a
// terminal state and moves that would go backwards.
func (r *Response) transition(to Status) error {
	if r.Status == to {
		return nil
	}
	if r.Status.Terminal() {
		return fmt.Errorf("response %s is already %s, cannot become %s", r.ID, r.Status, to)
	}
	switch to {
	case StatusProcessing:
		if r.Status != StatusPending {
			return fmt.Errorf("cannot move response from %s to %s", r.Status, to)
		}
	case StatusStreaming:
		if r.Status != StatusPending && r.Status != StatusProcessing {
			return fmt.Errorf("cannot move response from %s to %s", r.Status, to)
		}
	case StatusCompleted, StatusFailed, StatusCancelled, StatusTimeout:
		// any non-terminal state may finish
	default:
		return fmt.Errorf("unknown response status %q", to)
	}
	r.Status = to
	r.UpdatedAt = time.Now()
	return nil
}

// StartProcessing marks the response as being worked on.
func (r *Response) StartProcessing() error {
	return r.transition(StatusProcessing)
}

// AppendChunk records one streamed delta, in arrival order. The first chunk
// moves the response into the streaming state.
func (r *Response) AppendChunk(chunk string) error {
	if r.Status.Terminal() {
		return fmt.Errorf("response %s is %s, content is frozen", r.ID, r.Status)
	}
	if r.Status != StatusStreaming {
		if err := r.transition(StatusStreaming); err != nil {
			return err
		}
		r.Streaming = true
	}
	r.chunks = append(r.chunks, chunk)
	r.Content += chunk
	r.UpdatedAt = time.Now()
	r.Quality.CalculateContentMetrics(r.Content)
	return nil
}

// Complete finishes the response. A non-empty finalContent replaces whatever
// was accumulated.
func (r *Response) Complete(finalContent string) error {
	if err := r.transition(StatusCompleted); err != nil {
		return err
	}
	if finalContent != "" {
		r.Content = finalContent
	}
	r.Quality.CalculateContentMetrics(r.Content)
	r.CompletedAt = r.UpdatedAt
	r.Streaming = false
	return nil
}

// Fail marks the response failed with the given message.
func (r *Response) Fail(msg string) error {
	if err := r.transition(StatusFailed); err != nil {
		return err
	}
	r.Err = msg
	r.CompletedAt = r.UpdatedAt
	r.Streaming = false
	return nil
}

// Cancel marks the response cancelled.
func (r *Response) Cancel() error {
	if err := r.transition(StatusCancelled); err != nil {
		return err
	}
	r.CompletedAt = r.UpdatedAt
	r.Streaming = false
	return nil
}

// MarkTimeout marks the response as timed out.
func (r *Response) MarkTimeout() error {
	if err := r.transition(StatusTimeout); err != nil {
		return err
	}
	r.Err = "request timed out"
	r.CompletedAt = r.UpdatedAt
	r.Streaming = false
	return nil
}

// SetProviderInfo records which provider and model served the response.
func (r *Response) SetProviderInfo(provider, model string) {
	r.Provider = provider
	r.Model = model
	r.UpdatedAt = time.Now()
}

func (r *Response) Succeeded() bool {
	return r.Status == StatusCompleted
}

func (r *Response) Failed() bool {
	return r.Status == StatusFailed || r.Status == StatusTimeout
}

func (r *Response) InProgress() bool {
	return !r.Status.Terminal()
}

// Duration is the elapsed time from creation to completion, or to now while
// still in progress.
func (r *Response) Duration() time.Duration {
	if !r.CompletedAt.IsZero() {
		return r.CompletedAt.Sub(r.CreatedAt)
	}
	if r.InProgress() {
		return time.Since(r.CreatedAt)
	}
	return 0
}

// ContentPreview returns the first 100 runes of the content.
func (r *Response) ContentPreview() string {
	runes := []rune(r.Content)
	if len(runes) <= 100 {
		return r.Content
	}
	return string(runes[:100]) + "..."
}

// Chunks returns a copy of the streamed chunks in arrival order.
func (r *Response) Chunks() []string {
	out := make([]string, len(r.chunks))
	copy(out, r.chunks)
	return out
}

// StreamContent joins the streamed chunks. For a buffered streaming call it
// equals Content.
func (r *Response) StreamContent() string {
	var s string
	for _, c := range r.chunks {
		s += c
	}
	return s
}
