// Package openaicompat implements the API-key providers that expose an
// OpenAI-compatible chat completions endpoint: anthropic, openai, openrouter
// and github models. One adapter type covers all four; they differ only in
// base URL and header scheme.
package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/AryanVBW/CommonsProxy-sub000/internal/account"
	"github.com/AryanVBW/CommonsProxy-sub000/internal/config"
	apperrors "github.com/AryanVBW/CommonsProxy-sub000/internal/errors"
	"github.com/AryanVBW/CommonsProxy-sub000/internal/openaichat"
	"github.com/AryanVBW/CommonsProxy-sub000/internal/provider"
	"github.com/AryanVBW/CommonsProxy-sub000/pkg/types"
)

var probeClient = &http.Client{Timeout: 30 * time.Second}

// Adapter is a generic OpenAI-compatible provider backed by an API key.
type Adapter struct {
	name    string
	baseURL string
	headers func(apiKey string) map[string]string
}

// NewAnthropic targets Anthropic's OpenAI compatibility endpoint.
func NewAnthropic() *Adapter {
	return &Adapter{
		name:    config.ProviderAnthropic,
		baseURL: config.AnthropicBaseURL,
		headers: func(apiKey string) map[string]string {
			return map[string]string{
				"x-api-key":         apiKey,
				"anthropic-version": config.AnthropicVersion,
			}
		},
	}
}

// NewOpenAI targets the OpenAI API.
func NewOpenAI() *Adapter {
	return &Adapter{
		name:    config.ProviderOpenAI,
		baseURL: config.OpenAIBaseURL,
		headers: bearerHeaders,
	}
}

// NewOpenRouter targets OpenRouter. The referer headers are how OpenRouter
// attributes traffic.
func NewOpenRouter() *Adapter {
	return &Adapter{
		name:    config.ProviderOpenRouter,
		baseURL: config.OpenRouterBaseURL,
		headers: func(apiKey string) map[string]string {
			h := bearerHeaders(apiKey)
			h["HTTP-Referer"] = "https://github.com/AryanVBW/CommonsProxy"
			h["X-Title"] = "CommonsProxy"
			return h
		},
	}
}

// NewGitHub targets GitHub Models.
func NewGitHub() *Adapter {
	return &Adapter{
		name:    config.ProviderGitHub,
		baseURL: config.GitHubModelsURL,
		headers: bearerHeaders,
	}
}

func bearerHeaders(apiKey string) map[string]string {
	return map[string]string{
		"Authorization": "Bearer " + apiKey,
	}
}

// Name implements provider.Adapter.
func (a *Adapter) Name() string { return a.name }

// EndpointCount implements provider.Adapter.
func (a *Adapter) EndpointCount() int { return 1 }

// AccessToken returns the stored API key.
func (a *Adapter) AccessToken(ctx context.Context, acc *account.Account) (string, error) {
	if acc.APIKey == "" {
		return "", &apperrors.AuthError{Permanent: true, Reason: "no API key stored for " + acc.Email}
	}
	return acc.APIKey, nil
}

// Validate probes the key with a models listing.
func (a *Adapter) Validate(ctx context.Context, acc *account.Account) provider.ValidationResult {
	req, err := http.NewRequestWithContext(ctx, "GET", a.resolveBaseURL(acc)+"/models", nil)
	if err != nil {
		return provider.ValidationResult{Valid: false, Err: err}
	}
	for k, v := range a.headers(acc.APIKey) {
		req.Header.Set(k, v)
	}

	resp, err := probeClient.Do(req)
	if err != nil {
		// Network failure says nothing about the key.
		return provider.ValidationResult{Valid: false, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		body, _ := io.ReadAll(resp.Body)
		return provider.ValidationResult{
			Valid: false,
			Err:   &apperrors.AuthError{Permanent: true, Reason: string(body)},
		}
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return provider.ValidationResult{
			Valid: false,
			Err:   &apperrors.HTTPStatusError{StatusCode: resp.StatusCode, Body: string(body)},
		}
	}

	return provider.ValidationResult{Valid: true, Email: acc.Email}
}

// BuildRequest implements provider.Adapter.
func (a *Adapter) BuildRequest(ctx context.Context, req *types.AnthropicRequest, acc *account.Account, token string, stream bool, endpoint int) (*http.Request, error) {
	payload, err := openaichat.TranslateRequest(req, req.Thinking.Enabled() && a.supportsReasoning(req.Model))
	if err != nil {
		return nil, err
	}
	payload.Stream = stream

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", a.resolveBaseURL(acc)+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	} else {
		httpReq.Header.Set("Accept", "application/json")
	}
	for k, v := range a.headers(token) {
		httpReq.Header.Set(k, v)
	}

	return httpReq, nil
}

// supportsReasoning gates the reasoning parameters to OpenAI-side models that
// accept them; other backends reject unknown fields.
func (a *Adapter) supportsReasoning(model string) bool {
	if a.name != config.ProviderOpenAI && a.name != config.ProviderGitHub {
		return false
	}
	return strings.HasPrefix(model, "gpt-5") || strings.HasPrefix(model, "o")
}

// resolveBaseURL honors a per-account endpoint override.
func (a *Adapter) resolveBaseURL(acc *account.Account) string {
	if acc != nil && acc.CustomAPIEndpoint != "" {
		return strings.TrimSuffix(acc.CustomAPIEndpoint, "/")
	}
	return a.baseURL
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
