// Package relay is the dispatch core: it picks an account, acquires its
// credential, sends the request through the matching provider adapter and
// retries across accounts on rate limits, credential failures and transient
// upstream errors.
package relay

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/AryanVBW/CommonsProxy-sub000/internal/account"
	"github.com/AryanVBW/CommonsProxy-sub000/internal/auth"
	"github.com/AryanVBW/CommonsProxy-sub000/internal/clock"
	"github.com/AryanVBW/CommonsProxy-sub000/internal/config"
	apperrors "github.com/AryanVBW/CommonsProxy-sub000/internal/errors"
	"github.com/AryanVBW/CommonsProxy-sub000/internal/provider"
	"github.com/AryanVBW/CommonsProxy-sub000/internal/utils"
	"github.com/AryanVBW/CommonsProxy-sub000/pkg/types"
)

// Engine coordinates account selection, credential acquisition and upstream
// dispatch with retry across the pool.
type Engine struct {
	pool     *account.Manager
	registry *provider.Registry
	client   *http.Client
	clk      clock.Clock
}

// New creates an engine over the given pool and adapter registry.
func New(pool *account.Manager, registry *provider.Registry) *Engine {
	return &Engine{
		pool:     pool,
		registry: registry,
		client:   &http.Client{Timeout: config.UpstreamRequestTimeout},
		clk:      clock.Real{},
	}
}

// NewWithClock creates an engine with an injected clock and HTTP client, for
// tests.
func NewWithClock(pool *account.Manager, registry *provider.Registry, client *http.Client, clk clock.Clock) *Engine {
	return &Engine{pool: pool, registry: registry, client: client, clk: clk}
}

// SendMessage dispatches a non-streaming request.
func (e *Engine) SendMessage(ctx context.Context, req *types.AnthropicRequest) (*types.AnthropicResponse, error) {
	res, err := e.send(ctx, req, false, true)
	if err != nil {
		return nil, err
	}
	return res.response, nil
}

// SendMessageStream dispatches a streaming request. The returned channel
// closes after message_stop or when ctx is cancelled.
func (e *Engine) SendMessageStream(ctx context.Context, req *types.AnthropicRequest) (<-chan types.StreamEvent, error) {
	res, err := e.send(ctx, req, true, true)
	if err != nil {
		return nil, err
	}
	return res.events, nil
}

// attemptResult carries one successful dispatch: the parsed response for
// non-streaming calls, the event channel for streaming ones.
type attemptResult struct {
	response *types.AnthropicResponse
	events   <-chan types.StreamEvent
}

// send runs the retry loop. fallbackAllowed permits one recursion onto the
// static fallback model after the pool is exhausted.
func (e *Engine) send(ctx context.Context, req *types.AnthropicRequest, stream bool, fallbackAllowed bool) (*attemptResult, error) {
	maxAttempts := config.MaxRetries
	if n := e.pool.GetAccountCount() + 1; n > maxAttempts {
		maxAttempts = n
	}

	start := e.clk.Now()
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if e.clk.Now().Sub(start) > config.MaxTotalRetryTime {
			return nil, &apperrors.MaxRetriesError{Attempts: attempt, Elapsed: e.clk.Now().Sub(start), Last: lastErr}
		}

		acc, err := e.selectAccount(ctx, req.Model, &attempt)
		if err != nil {
			return nil, err
		}
		if acc == nil {
			// Pool exhausted: one bounded fallback onto the mapped model.
			if fallbackAllowed && config.GetEnableFallback() {
				if fallbackModel := config.GetFallbackModel(req.Model); fallbackModel != "" {
					utils.Warn("[Relay] All accounts exhausted for %s, falling back to %s", req.Model, fallbackModel)
					return e.send(ctx, req.WithModel(fallbackModel), stream, false)
				}
			}
			return nil, &apperrors.NoAccountsError{}
		}

		adapter, err := e.registry.Get(acc.Provider)
		if err != nil {
			utils.Error("[Relay] Account %s has unregistered provider %q, marking invalid", acc.Email, acc.Provider)
			e.pool.MarkInvalid(acc.Email, "unknown provider "+acc.Provider)
			continue
		}

		token, err := e.pool.GetToken(acc, func() (string, error) {
			return adapter.AccessToken(ctx, acc)
		})
		if err != nil {
			lastErr = err
			if adapter.IsInvalidCredentialError(err) {
				utils.Warn("[Relay] Credentials for %s are invalid: %v", acc.Email, err)
				e.pool.MarkInvalid(acc.Email, err.Error())
				continue
			}
			if kind := apperrors.Classify(err); kind.Retryable() {
				utils.Warn("[Relay] Token fetch failed for %s (%s), trying next account", acc.Email, kind)
				if sleepErr := e.clk.Sleep(ctx, config.NetworkRetryDelay); sleepErr != nil {
					return nil, sleepErr
				}
				continue
			}
			return nil, fmt.Errorf("failed to get token for %s: %w", acc.Email, err)
		}

		res, err := e.dispatch(ctx, adapter, acc, token, req, stream)
		if err == nil {
			e.pool.NotifySuccess(acc.Email, req.Model)
			return res, nil
		}
		lastErr = err

		switch kind := apperrors.Classify(err); kind {
		case apperrors.KindRateLimit:
			resetMs := rateLimitReset(err)
			e.pool.MarkRateLimited(acc.Email, resetMs, req.Model)
			utils.Info("[Relay] Account %s rate-limited on %s, trying next", acc.Email, req.Model)
		case apperrors.KindAuthInvalid:
			utils.Warn("[Relay] Upstream rejected credentials for %s, marking invalid", acc.Email)
			e.pool.MarkInvalid(acc.Email, err.Error())
		case apperrors.KindAuthTransient:
			utils.Warn("[Relay] Auth error for %s, evicting cached token", acc.Email)
			e.pool.ClearTokenCache(acc.Email)
			e.pool.ClearProjectCache(acc.Email)
		case apperrors.KindServerError, apperrors.KindModelCapacity:
			backoff := clock.BackoffForKind(kind)
			utils.Warn("[Relay] Upstream error for %s (%s), next attempt in %s: %v",
				acc.Email, kind, utils.FormatDuration(backoff), err)
			if sleepErr := e.clk.Sleep(ctx, backoff); sleepErr != nil {
				return nil, sleepErr
			}
		case apperrors.KindNetworkTransient:
			utils.Warn("[Relay] Network error for %s, trying next account: %v", acc.Email, err)
			if sleepErr := e.clk.Sleep(ctx, config.NetworkRetryDelay); sleepErr != nil {
				return nil, sleepErr
			}
		default:
			return nil, err
		}
	}

	return nil, &apperrors.MaxRetriesError{
		Attempts: maxAttempts,
		Elapsed:  e.clk.Now().Sub(start),
		Last:     lastErr,
	}
}

// selectAccount picks the next account for the model. When the whole pool is
// rate-limited and the shortest wait is tolerable, it sleeps and retries the
// pick without consuming the attempt; a wait past the cap fails fast so the
// caller sees the reset time instead of a hung request.
func (e *Engine) selectAccount(ctx context.Context, model string, attempt *int) (*account.Account, error) {
	sel := e.pool.PickNext(model)
	if sel.Account != nil {
		return sel.Account, nil
	}

	// Selection can recommend holding position through a short limit when no
	// other account is usable.
	if sel.WaitMs > 0 {
		if err := e.waitForReset(ctx, clock.ClampWait(time.Duration(sel.WaitMs)*time.Millisecond)); err != nil {
			return nil, err
		}
		(*attempt)--
		sel = e.pool.PickNext(model)
		return sel.Account, nil
	}

	if !e.pool.IsAllRateLimited(model) {
		return nil, nil
	}

	waitMs := e.pool.GetMinWaitTimeMs(model)
	if waitMs <= 0 {
		return nil, nil
	}
	wait := clock.ClampWait(time.Duration(waitMs) * time.Millisecond)

	if wait > config.MaxWaitBeforeError {
		return nil, &apperrors.RateLimitError{
			Model:   model,
			ResetMs: e.clk.Now().Add(wait).UnixMilli(),
		}
	}

	utils.Warn("[Relay] All %d account(s) rate-limited for %s, waiting %s",
		e.pool.GetAccountCount(), model, utils.FormatDuration(wait))
	if err := e.waitForReset(ctx, wait); err != nil {
		return nil, err
	}
	e.pool.ClearExpiredLimits()

	sel = e.pool.PickNext(model)
	if sel.Account == nil {
		// The recorded resets were pessimistic; clear them once and retry.
		utils.Warn("[Relay] No account available after wait, resetting rate limits optimistically")
		e.pool.ResetAllRateLimits()
		sel = e.pool.PickNext(model)
	}
	return sel.Account, nil
}

// waitForReset sleeps for the limit plus a small buffer so the upstream clock
// skew does not produce an immediate second 429.
func (e *Engine) waitForReset(ctx context.Context, wait time.Duration) error {
	if err := e.clk.Sleep(ctx, wait); err != nil {
		return err
	}
	return e.clk.Sleep(ctx, config.PostRateLimitBuffer)
}

// rateLimitReset extracts the absolute reset from a rate limit error, 0 when
// unknown.
func rateLimitReset(err error) int64 {
	var rle *apperrors.RateLimitError
	if apperrors.As(err, &rle) {
		return rle.ResetMs
	}
	return 0
}

// projectFor resolves the cloud-code project for a Google account, caching
// through the pool and discovering on first use.
func (e *Engine) projectFor(acc *account.Account, token string) (string, error) {
	return e.pool.GetProject(acc, func() (string, error) {
		return auth.DiscoverProjectID(token)
	})
}
