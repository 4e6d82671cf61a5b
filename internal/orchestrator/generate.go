package orchestrator

import (
	"context"
	"fmt"
	"iter"

	"github.com/inkwell-labs/muse-engine/internal/ai"
	"github.com/inkwell-labs/muse-engine/internal/cache"
)

// GenerateText is the strict buffered entry point: build a request, run it
// with retries, and return the text or the error. Library consumers that
// want errors instead of response states use this.
func (s *Service) GenerateText(ctx context.Context, prompt, contextText string, opts ...ai.RequestOption) (string, error) {
	req, err := ai.NewRequest(prompt, contextText, opts...)
	if err != nil {
		return "", err
	}

	if err := s.acquire(ctx); err != nil {
		return "", err
	}
	defer s.release()

	client, err := s.connectedClient(ctx, req)
	if err != nil {
		return "", err
	}
	if err := s.admit(ctx, req, client); err != nil {
		return "", err
	}

	if s.cache != nil {
		if entry, ok := s.cache.Get(ctx, s.cacheKey(req, client)); ok {
			if s.metrics != nil {
				s.metrics.RecordCache("hit")
			}
			return entry.Content, nil
		}
		if s.metrics != nil {
			s.metrics.RecordCache("miss")
		}
	}

	attempts := s.retryAttempts(req)

	var content string
	calls := 0
	run := func(ctx context.Context) error {
		calls++
		if calls > 1 && s.metrics != nil {
			s.metrics.RecordRetry(client.Name())
		}
		attemptCtx, cancel := context.WithTimeout(ctx, s.requestTimeout(ctx, req))
		defer cancel()

		var genErr error
		content, genErr = client.GenerateText(attemptCtx, req)
		return genErr
	}

	if s.network != nil {
		err = s.network.RetryWithBackoff(ctx, attempts, run)
	} else {
		err = run(ctx)
	}
	if err != nil {
		if s.health != nil {
			s.health.RecordFailure(client.Name())
		}
		return "", fmt.Errorf("generate text via %s: %w", client.Name(), err)
	}

	if s.health != nil {
		s.health.RecordSuccess(client.Name())
	}
	if s.cache != nil && content != "" {
		s.cache.Put(ctx, s.cacheKey(req, client), cache.Entry{
			Content:  content,
			Provider: client.Name(),
			Model:    s.modelFor(req, client),
		})
	}
	return content, nil
}

// retryAttempts derives the attempt budget for a request: the priority's
// suggested count, capped by retry_attempts when one is configured.
func (s *Service) retryAttempts(req *ai.Request) int {
	attempts := req.Priority.RetryCount()
	if s.cfg.RetryAttempts > 0 && attempts > s.cfg.RetryAttempts {
		attempts = s.cfg.RetryAttempts
	}
	if attempts < 1 {
		attempts = 1
	}
	return attempts
}

// GenerateTextStream is the strict streaming entry point. Chunks arrive via
// the returned sequence; setup and mid-stream failures surface as errors.
func (s *Service) GenerateTextStream(ctx context.Context, prompt, contextText string, opts ...ai.RequestOption) (iter.Seq2[string, error], error) {
	opts = append(opts, ai.WithStreaming())
	req, err := ai.NewRequest(prompt, contextText, opts...)
	if err != nil {
		return nil, err
	}
	return s.ProcessRequestStream(ctx, req)
}
