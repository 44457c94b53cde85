package google

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
	"github.com/AryanVBW/CommonsProxy-sub000/internal/provider"
	"github.com/AryanVBW/CommonsProxy-sub000/pkg/types"
)

const (
	requestType      = "AGENT_MESSAGE"
	requestUserAgent = "commons-proxy"
)

// Adapter implements the Google cloud-code provider. Accounts hold an OAuth
// refresh token; each request targets the daily endpoint first and falls back
// to production.
type Adapter struct {
	endpoints []string
}

// New creates the google adapter.
func New() *Adapter {
	return &Adapter{endpoints: config.CloudCodeEndpointFallbacks}
}

// Name implements provider.Adapter.
func (a *Adapter) Name() string { return config.ProviderGoogle }

// EndpointCount implements provider.Adapter.
func (a *Adapter) EndpointCount() int { return len(a.endpoints) }

// cloudCodeModels is the model catalog the cloud-code API accepts, 2026-08.
var cloudCodeModels = []string{
	"claude-opus-4-5-thinking",
	"claude-sonnet-4-5",
	"claude-sonnet-4-5-thinking",
	"gemini-3-flash",
	"gemini-3-pro-high",
	"gemini-3-pro-low",
}

// Models returns the cloud-code model IDs for /v1/models.
func (a *Adapter) Models() []string { return cloudCodeModels }

// AccessToken refreshes the OAuth access token.
func (a *Adapter) AccessToken(ctx context.Context, acc *account.Account) (string, error) {
	tokens, err := auth.RefreshAccessToken(acc.RefreshToken)
	if err != nil {
		return "", err
	}
	return tokens.AccessToken, nil
}

// Validate refreshes the token and fetches the account's email.
func (a *Adapter) Validate(ctx context.Context, acc *account.Account) provider.ValidationResult {
	tokens, err := auth.RefreshAccessToken(acc.RefreshToken)
	if err != nil {
		return provider.ValidationResult{Valid: false, Err: err}
	}
	email, err := auth.GetUserEmail(tokens.AccessToken)
	if err != nil {
		// Token works; the profile fetch is best-effort.
		return provider.ValidationResult{Valid: true, Email: acc.Email, Err: err}
	}
	return provider.ValidationResult{Valid: true, Email: email}
}

// BuildRequest wraps the message request in a cloud-code envelope and targets
// the endpoint at the given fallback position.
func (a *Adapter) BuildRequest(ctx context.Context, req *types.AnthropicRequest, acc *account.Account, token string, stream bool, endpoint int) (*http.Request, error) {
	if endpoint < 0 || endpoint >= len(a.endpoints) {
		return nil, fmt.Errorf("endpoint index %d out of range", endpoint)
	}

	inner, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	project := acc.ProjectID
	if project == "" {
		project = config.DefaultProjectID
	}

	body, err := json.Marshal(envelope{
		Project:     project,
		Model:       req.Model,
		Request:     inner,
		UserAgent:   requestUserAgent,
		RequestType: requestType,
		RequestID:   uuid.New().String(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal envelope: %w", err)
	}

	base := a.endpoints[endpoint]
	if acc.CustomAPIEndpoint != "" {
		base = strings.TrimSuffix(acc.CustomAPIEndpoint, "/")
	}
	url := base + "/v1internal:generateContent"
	if stream {
		url = base + "/v1internal:streamGenerateContent?alt=sse"
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range config.GetCloudCodeHeaders() {
		httpReq.Header.Set(k, v)
	}
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	} else {
		httpReq.Header.Set("Accept", "application/json")
	}

	return httpReq, nil
}

// ParseResponse implements provider.Adapter.
func (a *Adapter) ParseResponse(body []byte, model string) (*types.AnthropicResponse, error) {
	return convertResponse(body, model)
}

// StreamEvents implements provider.Adapter.
func (a *Adapter) StreamEvents(ctx context.Context, body io.ReadCloser, model string) <-chan types.StreamEvent {
	return parseSSEStream(ctx, body, model)
}

// ParseRateLimit implements provider.Adapter.
func (a *Adapter) ParseRateLimit(headers http.Header, body string) int64 {
	return parseRateLimit(headers, body)
}

// IsInvalidCredentialError implements provider.Adapter.
func (a *Adapter) IsInvalidCredentialError(err error) bool {
	var authErr *apperrors.AuthError
	if apperrors.As(err, &authErr) {
		return authErr.Permanent
	}
	return err != nil && apperrors.IsPermanentAuthBody(err.Error())
}
