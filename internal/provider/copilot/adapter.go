package copilot

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
	"github.com/AryanVBW/CommonsProxy-sub000/internal/utils"
	"github.com/AryanVBW/CommonsProxy-sub000/pkg/types"
)

const (
	copilotVersion      = "0.26.7"
	editorPluginVersion = "copilot-chat/" + copilotVersion
	userAgent           = "GitHubCopilotChat/" + copilotVersion
	vscodeVersion       = "1.96.0"
)

// Adapter implements the Copilot provider. The account's refreshToken holds
// the long-lived GitHub OAuth token; it is exchanged for a short-lived
// Copilot session token on each AccessToken call (the pool's token cache
// keeps the exchange off the hot path).
type Adapter struct {
	baseURL string
}

// New creates the Copilot adapter.
func New() *Adapter {
	return &Adapter{baseURL: config.CopilotBaseURL}
}

// Name implements provider.Adapter.
func (a *Adapter) Name() string { return config.ProviderCopilot }

// EndpointCount implements provider.Adapter.
func (a *Adapter) EndpointCount() int { return 1 }

// Models returns the known Copilot model IDs for /v1/models.
func (a *Adapter) Models() []string { return KnownModels() }

// AccessToken exchanges the stored GitHub token for a Copilot session token.
func (a *Adapter) AccessToken(ctx context.Context, acc *account.Account) (string, error) {
	resp, err := auth.GetCopilotToken(ctx, acc.RefreshToken)
	if err != nil {
		return "", err
	}
	return resp.Token, nil
}

// Validate probes the credential with a token exchange and a profile fetch.
func (a *Adapter) Validate(ctx context.Context, acc *account.Account) provider.ValidationResult {
	if _, err := auth.GetCopilotToken(ctx, acc.RefreshToken); err != nil {
		return provider.ValidationResult{Valid: false, Err: err}
	}
	user, err := auth.GetGitHubUser(ctx, acc.RefreshToken)
	if err != nil {
		return provider.ValidationResult{Valid: false, Err: err}
	}
	email := user.Email
	if email == "" {
		email = user.Login
	}
	return provider.ValidationResult{Valid: true, Email: email}
}

// BuildRequest translates the request to OpenAI chat format and targets the
// Copilot completions endpoint with the editor headers Copilot requires.
func (a *Adapter) BuildRequest(ctx context.Context, req *types.AnthropicRequest, acc *account.Account, token string, stream bool, endpoint int) (*http.Request, error) {
	model, isThinking := NormalizeModel(req.Model)
	if !IsKnownModel(model) {
		utils.Warn("[Copilot] Unknown model %q (requested %q), sending anyway", model, req.Model)
	}

	reasoning := IsReasoningModel(model) || isThinking || req.Thinking.Enabled()
	payload, err := openaichat.TranslateRequest(req.WithModel(model), reasoning)
	if err != nil {
		return nil, err
	}
	payload.Stream = stream

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	baseURL := a.baseURL
	if acc.CustomAPIEndpoint != "" {
		baseURL = strings.TrimSuffix(acc.CustomAPIEndpoint, "/")
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	for k, v := range copilotHeaders(token, hasVisionContent(payload.Messages)) {
		httpReq.Header.Set(k, v)
	}
	httpReq.Header.Set("X-Initiator", getInitiator(payload.Messages))
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
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

// copilotHeaders returns the editor identification headers required by the
// Copilot API.
func copilotHeaders(copilotToken string, vision bool) map[string]string {
	headers := map[string]string{
		"Authorization":          "Bearer " + copilotToken,
		"Content-Type":           "application/json",
		"Accept":                 "application/json",
		"Copilot-Integration-Id": "vscode-chat",
		"Editor-Version":         "vscode/" + vscodeVersion,
		"Editor-Plugin-Version":  editorPluginVersion,
		"User-Agent":             userAgent,
		"Openai-Intent":          "conversation-edits",
		"X-Request-Id":           uuid.New().String(),
	}
	if vision {
		headers["Copilot-Vision-Request"] = "true"
	}
	return headers
}

// hasVisionContent checks the translated messages for image parts.
func hasVisionContent(messages []openaichat.Message) bool {
	for _, msg := range messages {
		parts, ok := msg.Content.([]interface{})
		if !ok {
			continue
		}
		for _, part := range parts {
			if m, ok := part.(map[string]interface{}); ok && m["type"] == "image_url" {
				return true
			}
		}
	}
	return false
}

// getInitiator reports whether this request continues an agent conversation.
func getInitiator(messages []openaichat.Message) string {
	for _, msg := range messages {
		if msg.Role == "assistant" || msg.Role == "tool" {
			return "agent"
		}
	}
	return "user"
}
