package relay

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/AryanVBW/CommonsProxy-sub000/internal/account"
	"github.com/AryanVBW/CommonsProxy-sub000/internal/clock"
	"github.com/AryanVBW/CommonsProxy-sub000/internal/config"
	apperrors "github.com/AryanVBW/CommonsProxy-sub000/internal/errors"
	"github.com/AryanVBW/CommonsProxy-sub000/internal/provider"
	"github.com/AryanVBW/CommonsProxy-sub000/internal/utils"
	"github.com/AryanVBW/CommonsProxy-sub000/pkg/types"
)

// dispatch sends one attempt through the adapter, walking its endpoint
// fallback chain. Rate limits are collected across endpoints and surfaced
// with the earliest reset so the account loop can mark the account once.
func (e *Engine) dispatch(ctx context.Context, adapter provider.Adapter, acc *account.Account, token string, req *types.AnthropicRequest, stream bool) (*attemptResult, error) {
	if acc.Provider == config.ProviderGoogle && acc.ProjectID == "" {
		project, err := e.projectFor(acc, token)
		if err != nil {
			return nil, err
		}
		acc.ProjectID = project
	}

	var rateLimitErr *apperrors.RateLimitError
	var lastErr error

	for endpoint := 0; endpoint < adapter.EndpointCount(); endpoint++ {
		resp, err := e.tryEndpoint(ctx, adapter, acc, token, req, stream, endpoint)
		if err != nil {
			var rle *apperrors.RateLimitError
			if apperrors.As(err, &rle) {
				// Keep the earliest known reset across endpoints.
				if rateLimitErr == nil || (rle.ResetMs > 0 && (rateLimitErr.ResetMs == 0 || rle.ResetMs < rateLimitErr.ResetMs)) {
					rateLimitErr = rle
				}
				continue
			}

			switch apperrors.Classify(err) {
			case apperrors.KindServerError, apperrors.KindNetworkTransient, apperrors.KindModelCapacity:
				lastErr = err
				if sleepErr := e.clk.Sleep(ctx, config.FirstRetryDelay); sleepErr != nil {
					return nil, sleepErr
				}
				continue
			default:
				// Auth and unclassified errors escape to the account loop.
				return nil, err
			}
		}

		if !stream {
			return e.readResponse(adapter, resp, req.Model)
		}
		res, err := e.readStream(ctx, adapter, acc, token, req, endpoint, resp)
		if err != nil {
			lastErr = err
			continue
		}
		return res, nil
	}

	if rateLimitErr != nil {
		return nil, rateLimitErr
	}
	return nil, lastErr
}

// tryEndpoint performs the HTTP exchange against one endpoint, retrying in
// place on capacity exhaustion with the tiered backoff. A non-2xx status is
// converted to a typed error; the caller owns classification.
func (e *Engine) tryEndpoint(ctx context.Context, adapter provider.Adapter, acc *account.Account, token string, req *types.AnthropicRequest, stream bool, endpoint int) (*http.Response, error) {
	for capacityRetry := 0; ; capacityRetry++ {
		httpReq, err := adapter.BuildRequest(ctx, req, acc, token, stream, endpoint)
		if err != nil {
			return nil, err
		}

		resp, err := e.client.Do(httpReq)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode < 400 {
			return resp, nil
		}

		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		bodyStr := string(body)

		kind := apperrors.ClassifyHTTP(resp.StatusCode, bodyStr)
		switch kind {
		case apperrors.KindRateLimit:
			return nil, &apperrors.RateLimitError{
				Model:   req.Model,
				ResetMs: adapter.ParseRateLimit(resp.Header, bodyStr),
			}
		case apperrors.KindModelCapacity:
			if capacityRetry >= config.MaxCapacityRetries {
				return nil, &apperrors.HTTPStatusError{StatusCode: resp.StatusCode, Body: bodyStr}
			}
			backoff := clock.CapacityBackoff(capacityRetry)
			utils.Warn("[Relay] Model capacity exhausted on %s, retrying in %s (attempt %d/%d)",
				adapter.Name(), utils.FormatDuration(backoff), capacityRetry+1, config.MaxCapacityRetries)
			if sleepErr := e.clk.Sleep(ctx, backoff); sleepErr != nil {
				return nil, sleepErr
			}
			continue
		default:
			return nil, &apperrors.HTTPStatusError{StatusCode: resp.StatusCode, Body: bodyStr}
		}
	}
}

// readResponse drains a non-streaming response and converts it.
func (e *Engine) readResponse(adapter provider.Adapter, resp *http.Response, model string) (*attemptResult, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	parsed, err := adapter.ParseResponse(body, model)
	if err != nil {
		return nil, err
	}
	return &attemptResult{response: parsed}, nil
}

// readStream starts the adapter's stream translator and hands back an event
// channel once the first event arrives. A stream that closes without emitting
// anything is refetched from the same endpoint with short backoffs; when the
// refetch budget runs out a fallback message is yielded instead of an error,
// because clients mid-conversation handle a text apology better than a broken
// stream.
func (e *Engine) readStream(ctx context.Context, adapter provider.Adapter, acc *account.Account, token string, req *types.AnthropicRequest, endpoint int, resp *http.Response) (*attemptResult, error) {
	for emptyRetry := 0; ; emptyRetry++ {
		events := adapter.StreamEvents(ctx, resp.Body, req.Model)

		var first types.StreamEvent
		var ok bool
		select {
		case first, ok = <-events:
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		if ok {
			return &attemptResult{events: pipeStream(ctx, first, events)}, nil
		}

		// Stream closed without content.
		if emptyRetry >= config.MaxEmptyResponseRetries {
			utils.Warn("[Relay] Empty response from %s after %d refetches, yielding fallback message",
				adapter.Name(), emptyRetry)
			return &attemptResult{events: emptyResponseFallback(ctx, req.Model)}, nil
		}

		backoff := time.Duration(500*(1<<emptyRetry)) * time.Millisecond
		utils.Warn("[Relay] Empty response from %s, refetching in %s", adapter.Name(), utils.FormatDuration(backoff))
		if sleepErr := e.clk.Sleep(ctx, backoff); sleepErr != nil {
			return nil, sleepErr
		}

		retryResp, err := e.tryEndpoint(ctx, adapter, acc, token, req, true, endpoint)
		if err != nil {
			return nil, err
		}
		resp = retryResp
	}
}

// pipeStream forwards the already-received first event plus the rest of the
// upstream channel, dropping everything on ctx cancellation.
func pipeStream(ctx context.Context, first types.StreamEvent, rest <-chan types.StreamEvent) <-chan types.StreamEvent {
	out := make(chan types.StreamEvent, 100)
	go func() {
		defer close(out)

		select {
		case out <- first:
		case <-ctx.Done():
			return
		}

		for evt := range rest {
			select {
			case out <- evt:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// emptyResponseFallback yields a complete single-message stream carrying an
// apology text block.
func emptyResponseFallback(ctx context.Context, model string) <-chan types.StreamEvent {
	out := make(chan types.StreamEvent, 10)
	go func() {
		defer close(out)
		events := []types.StreamEvent{
			{
				Type: "message_start",
				Message: &types.AnthropicResponse{
					ID:      "msg_empty_fallback",
					Type:    "message",
					Role:    "assistant",
					Content: []types.ContentBlock{},
					Model:   model,
				},
			},
			{Type: "content_block_start", Index: 0, ContentBlock: &types.ContentBlock{Type: "text", Text: ""}},
			{Type: "content_block_delta", Index: 0, Delta: &types.Delta{Type: "text_delta", Text: "[No response after retries - please try again]"}},
			{Type: "content_block_stop", Index: 0},
			{Type: "message_delta", Delta: &types.Delta{StopReason: "end_turn"}, Usage: &types.Usage{}},
			{Type: "message_stop"},
		}
		for _, evt := range events {
			select {
			case out <- evt:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
