package ai

import (
	"errors"
	"testing"
)

func TestNewRequest_BothEmpty(t *testing.T) {
	_, err := NewRequest("", "")
	if !errors.Is(err, ErrEmptyRequest) {
		t.Fatalf("expected ErrEmptyRequest, got %v", err)
	}

	_, err = NewRequest("   ", "\n\t")
	if !errors.Is(err, ErrEmptyRequest) {
		t.Fatalf("expected ErrEmptyRequest for blank input, got %v", err)
	}
}

func TestNewRequest_ContextOnly(t *testing.T) {
	req, err := NewRequest("", "Once upon a time...")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.ID == "" {
		t.Error("expected a generated ID")
	}
	if req.Type != TypeTextGeneration {
		t.Errorf("expected default type text_generation, got %s", req.Type)
	}
	if req.Priority != PriorityNormal {
		t.Errorf("expected default priority normal, got %s", req.Priority)
	}
}

func TestNewRequest_Options(t *testing.T) {
	req, err := NewRequest("summarize this chapter", "",
		WithType(TypeChapterSummary),
		WithMode(ModeAutoContext),
		WithPriority(PriorityHigh),
		WithParameter("max_tokens", 500),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Type != TypeChapterSummary {
		t.Errorf("expected chapter_summary, got %s", req.Type)
	}
	if req.Mode != ModeAutoContext {
		t.Errorf("expected auto_context, got %s", req.Mode)
	}
	if req.IntParameter("max_tokens", 0) != 500 {
		t.Errorf("expected max_tokens=500, got %d", req.IntParameter("max_tokens", 0))
	}
}

func TestRequest_SetPromptBumpsUpdatedAt(t *testing.T) {
	req, _ := NewRequest("first", "")
	before := req.UpdatedAt

	if err := req.SetPrompt("second"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Prompt != "second" {
		t.Errorf("expected prompt to change, got %q", req.Prompt)
	}
	if req.UpdatedAt.Before(before) {
		t.Error("expected UpdatedAt to advance")
	}

	if err := req.SetPrompt("   "); err == nil {
		t.Error("expected error for blank prompt")
	}
}

func TestRequest_CancelIsOneWay(t *testing.T) {
	req, _ := NewRequest("write something", "")
	if req.Cancelled() {
		t.Fatal("new request should not be cancelled")
	}
	req.Cancel()
	if !req.Cancelled() {
		t.Fatal("expected cancelled after Cancel")
	}
	if req.Valid() {
		t.Error("cancelled request should not be valid")
	}
}

func TestRequest_EstimatedTokens(t *testing.T) {
	req, _ := NewRequest("abcd", "efgh")
	// "abcd efgh" is 9 chars -> 2 tokens at chars/4
	if got := req.EstimatedTokens(); got != 2 {
		t.Errorf("expected 2 estimated tokens, got %d", got)
	}
	if got := req.ContentLength(); got != 8 {
		t.Errorf("expected content length 8, got %d", got)
	}
}

func TestRequest_TypedParameters(t *testing.T) {
	req, _ := NewRequest("p", "")
	req.Parameters["temperature"] = 0.9
	req.Parameters["max_tokens"] = float64(1200) // as JSON decoding produces
	req.Parameters["model"] = "deepseek-chat"

	if got := req.FloatParameter("temperature", 0.7); got != 0.9 {
		t.Errorf("expected 0.9, got %v", got)
	}
	if got := req.IntParameter("max_tokens", 0); got != 1200 {
		t.Errorf("expected 1200, got %d", got)
	}
	if got := req.StringParameter("model", "gpt-3.5-turbo"); got != "deepseek-chat" {
		t.Errorf("expected deepseek-chat, got %s", got)
	}
	if got := req.StringParameter("provider", "openai"); got != "openai" {
		t.Errorf("expected fallback openai, got %s", got)
	}
}
