package orchestrator

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"

	"github.com/inkwell-labs/muse-engine/internal/ai"
	"github.com/inkwell-labs/muse-engine/internal/cache"
	"github.com/inkwell-labs/muse-engine/internal/events"
	"github.com/inkwell-labs/muse-engine/internal/provider"
)

// ProcessRequest runs a request buffered and always returns a response;
// failures, denials, and timeouts come back as response states, never as
// errors. This is the forgiving entry point an editor UI calls on every
// keystroke-level action.
func (s *Service) ProcessRequest(ctx context.Context, req *ai.Request) *ai.Response {
	if !req.Valid() {
		resp := responseFor(req)
		resp.Fail(ai.ErrEmptyRequest.Error())
		return resp
	}

	select {
	case s.sem <- struct{}{}:
		defer func() { <-s.sem }()
	case <-ctx.Done():
		resp := responseFor(req)
		resp.MarkTimeout()
		return resp
	}

	client, err := s.connectedClient(ctx, req)
	if err != nil {
		resp := responseFor(req)
		resp.Fail(err.Error())
		return resp
	}

	if err := s.admit(ctx, req, client); err != nil {
		resp := responseFor(req)
		resp.SetProviderInfo(client.Name(), s.modelFor(req, client))
		resp.Fail(err.Error())
		return resp
	}

	if resp, ok := s.cachedResponse(ctx, req, client); ok {
		return resp
	}

	reqCtx, cancel := context.WithTimeout(ctx, s.requestTimeout(ctx, req))
	defer cancel()
	untrack := s.track(req.ID, cancel)
	defer untrack()

	s.publish(events.Event{Type: events.RequestStarted, RequestID: req.ID, Provider: client.Name()})

	resp := client.Process(reqCtx, req, req.Streaming)
	s.finish(ctx, req, resp, client)
	return resp
}

// ProcessRequestStream runs a request streaming. The returned sequence
// yields content chunks; the caller assembles or forwards them. Setup
// failures are returned as errors because nothing has streamed yet.
func (s *Service) ProcessRequestStream(ctx context.Context, req *ai.Request) (iter.Seq2[string, error], error) {
	if !req.Valid() {
		return nil, ai.ErrEmptyRequest
	}

	if err := s.acquire(ctx); err != nil {
		return nil, err
	}

	client, err := s.connectedClient(ctx, req)
	if err != nil {
		s.release()
		return nil, err
	}
	if err := s.admit(ctx, req, client); err != nil {
		s.release()
		return nil, err
	}

	streamCtx, cancel := context.WithTimeout(ctx, s.streamTimeout(ctx, req, client))
	seq, err := client.GenerateTextStream(streamCtx, req)
	if err != nil {
		cancel()
		s.release()
		if s.health != nil {
			s.health.RecordFailure(client.Name())
		}
		return nil, err
	}
	untrack := s.track(req.ID, cancel)

	s.publish(events.Event{Type: events.RequestStarted, RequestID: req.ID, Provider: client.Name()})

	resp := responseFor(req)
	resp.SetProviderInfo(client.Name(), s.modelFor(req, client))
	resp.StartProcessing()

	return func(yield func(string, error) bool) {
		defer func() {
			cancel()
			untrack()
			s.release()
		}()

		for chunk, err := range seq {
			if err != nil {
				resp.Fail(err.Error())
				s.finish(ctx, req, resp, client)
				yield("", err)
				return
			}
			resp.AppendChunk(chunk)
			if s.metrics != nil {
				s.metrics.RecordStreamChunk(client.Name())
			}
			s.publish(events.Event{
				Type: events.ChunkReceived, RequestID: req.ID,
				Provider: client.Name(), Chunk: chunk,
			})
			if !yield(chunk, nil) {
				resp.Cancel()
				s.finish(ctx, req, resp, client)
				return
			}
		}
		resp.Complete(resp.Content)
		s.finish(ctx, req, resp, client)
	}, nil
}

func (s *Service) acquire(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) release() { <-s.sem }

// streamTimeout is the generation deadline for a streaming request.
func (s *Service) streamTimeout(ctx context.Context, req *ai.Request, client provider.Client) time.Duration {
	def := provider.DefaultConfig(client.Kind())
	cfg := s.providerConfig(client.Name()).WithDefaults(def)
	base := cfg.StreamTimeout
	if optimal := s.requestTimeout(ctx, req); optimal > base {
		base = optimal
	}
	return base
}

// cachedResponse serves a buffered request from cache when possible.
func (s *Service) cachedResponse(ctx context.Context, req *ai.Request, client provider.Client) (*ai.Response, bool) {
	if s.cache == nil || req.Streaming {
		return nil, false
	}

	key := s.cacheKey(req, client)
	entry, ok := s.cache.Get(ctx, key)
	if s.metrics != nil {
		if ok {
			s.metrics.RecordCache("hit")
		} else {
			s.metrics.RecordCache("miss")
		}
	}
	if !ok {
		return nil, false
	}

	resp := responseFor(req)
	resp.SetProviderInfo(entry.Provider, entry.Model)
	resp.StartProcessing()
	resp.Complete(entry.Content)
	resp.Quality.CacheHit = true
	s.logger.Debug("cache hit", "request_id", req.ID)
	return resp, true
}

func (s *Service) cacheKey(req *ai.Request, client provider.Client) cache.Key {
	def := provider.DefaultConfig(client.Kind())
	cfg := s.providerConfig(client.Name()).WithDefaults(def)
	return cache.Key{
		Prompt:      req.Prompt,
		Context:     req.Context,
		MaxTokens:   req.IntParameter("max_tokens", cfg.MaxTokens),
		Temperature: req.FloatParameter("temperature", cfg.Temperature),
		Model:       req.StringParameter("model", cfg.DefaultModel),
		Provider:    client.Name(),
	}
}

// finish settles bookkeeping for a completed response: breaker state,
// network counters, cache population, events, history, and metrics.
func (s *Service) finish(ctx context.Context, req *ai.Request, resp *ai.Response, client provider.Client) {
	switch {
	case resp.Succeeded():
		if s.health != nil {
			s.health.RecordSuccess(client.Name())
		}
		if s.network != nil {
			s.network.RecordSuccess()
		}
		if s.cache != nil && !req.Streaming && resp.Content != "" {
			s.cache.Put(ctx, s.cacheKey(req, client), cache.Entry{
				Content:  resp.Content,
				Provider: resp.Provider,
				Model:    resp.Model,
			})
		}
		s.publish(events.Event{Type: events.RequestCompleted, RequestID: req.ID, Provider: client.Name()})
	case resp.Status == ai.StatusCancelled:
		s.publish(events.Event{Type: events.RequestCancelled, RequestID: req.ID, Provider: client.Name()})
	default:
		if s.health != nil {
			s.health.RecordFailure(client.Name())
		}
		if s.network != nil {
			s.network.RecordFailure(responseError(resp))
		}
		s.publish(events.Event{
			Type: events.RequestFailed, RequestID: req.ID,
			Provider: client.Name(), Err: resp.Err,
		})
	}
	s.record(ctx, req, resp)
}

// responseFor builds a response shell for a request. A request that never
// went through NewRequest has no ID, so one is minted for it.
func responseFor(req *ai.Request) *ai.Response {
	resp, err := ai.NewResponse(req.ID)
	if err != nil {
		resp, _ = ai.NewResponse(uuid.NewString())
	}
	return resp
}

// responseError reconstructs an error value for counters from a failed
// response's state.
func responseError(resp *ai.Response) error {
	if resp.Status == ai.StatusTimeout {
		return context.DeadlineExceeded
	}
	return fmt.Errorf("%s", resp.Err)
}
