// Package codex implements the ChatGPT codex backend provider. Credentials
// are OAuth refresh tokens from the codex CLI login; requests go to the
// chatgpt.com codex responses endpoint speaking the OpenAI chat dialect.
package codex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/AryanVBW/CommonsProxy-sub000/internal/account"
	"github.com/AryanVBW/CommonsProxy-sub000/internal/auth"
	"github.com/AryanVBW/CommonsProxy-sub000/internal/config"
	apperrors "github.com/AryanVBW/CommonsProxy-sub000/internal/errors"
	"github.com/AryanVBW/CommonsProxy-sub000/internal/openaichat"
	"github.com/AryanVBW/CommonsProxy-sub000/internal/provider"
	"github.com/AryanVBW/CommonsProxy-sub000/pkg/types"
)

// Adapter implements the codex provider.
type Adapter struct {
	url string
}

// New creates the codex adapter.
func New() *Adapter {
	return &Adapter{url: config.CodexBaseURL}
}

// Name implements provider.Adapter.
func (a *Adapter) Name() string { return config.ProviderCodex }

// EndpointCount implements provider.Adapter.
func (a *Adapter) EndpointCount() int { return 1 }

// AccessToken refreshes the ChatGPT access token.
func (a *Adapter) AccessToken(ctx context.Context, acc *account.Account) (string, error) {
	tokens, err := auth.RefreshCodexToken(acc.RefreshToken)
	if err != nil {
		return "", err
	}
	return tokens.AccessToken, nil
}

// Validate probes the refresh token.
func (a *Adapter) Validate(ctx context.Context, acc *account.Account) provider.ValidationResult {
	if _, err := auth.RefreshCodexToken(acc.RefreshToken); err != nil {
		return provider.ValidationResult{Valid: false, Err: err}
	}
	return provider.ValidationResult{Valid: true, Email: acc.Email}
}

// BuildRequest implements provider.Adapter.
func (a *Adapter) BuildRequest(ctx context.Context, req *types.AnthropicRequest, acc *account.Account, token string, stream bool, endpoint int) (*http.Request, error) {
	reasoning := req.Thinking.Enabled() || strings.Contains(req.Model, "codex")
	payload, err := openaichat.TranslateRequest(req, reasoning)
	if err != nil {
		return nil, err
	}
	payload.Stream = stream

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := a.url
	if acc.CustomAPIEndpoint != "" {
		url = strings.TrimSuffix(acc.CustomAPIEndpoint, "/")
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("OpenAI-Beta", "responses=experimental")
	httpReq.Header.Set("originator", "codex_cli_rs")
	httpReq.Header.Set("session_id", uuid.New().String())
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	} else {
		httpReq.Header.Set("Accept", "application/json")
	}

	return httpReq, nil
}

// ParseResponse implements provider.Adapter.
func (a *Adapter) ParseResponse(body []byte, model string) (*types.AnthropicResponse, error) {
	var resp openaichat.ChatCompletionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return openaichat.TranslateResponse(&resp, model), nil
}

// StreamEvents implements provider.Adapter.
func (a *Adapter) StreamEvents(ctx context.Context, body io.ReadCloser, model string) <-chan types.StreamEvent {
	return provider.StreamOpenAIEvents(ctx, body, model)
}

// ParseRateLimit implements provider.Adapter.
func (a *Adapter) ParseRateLimit(headers http.Header, body string) int64 {
	return provider.ParseRateLimitHeaders(headers)
}

// IsInvalidCredentialError implements provider.Adapter.
func (a *Adapter) IsInvalidCredentialError(err error) bool {
	var authErr *apperrors.AuthError
	if apperrors.As(err, &authErr) {
		return authErr.Permanent
	}
	return err != nil && apperrors.IsPermanentAuthBody(err.Error())
}
