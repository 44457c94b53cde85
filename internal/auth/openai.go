package auth

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/AryanVBW/CommonsProxy-sub000/internal/config"
	apperrors "github.com/AryanVBW/CommonsProxy-sub000/internal/errors"
)

// codexClientID is the ChatGPT codex CLI OAuth client.
const codexClientID = "app_EMoamEEZ73f0CkXaXp7hrann"

// codexTokenResponse is the OpenAI token refresh result.
type codexTokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	ExpiresIn    int    `json:"expires_in"`
}

// RefreshCodexToken refreshes a ChatGPT access token for the codex backend.
// Revoked grants come back as a permanent *AuthError.
func RefreshCodexToken(refreshToken string) (*TokenResponse, error) {
	payload, err := json.Marshal(map[string]string{
		"client_id":     codexClientID,
		"grant_type":    "refresh_token",
		"refresh_token": refreshToken,
		"scope":         "openid profile email",
	})
	if err != nil {
		return nil, err
	}

	resp, err := authClient.Post(config.CodexIssuerURL+"/oauth/token", "application/json", strings.NewReader(string(payload)))
	if err != nil {
		return nil, fmt.Errorf("codex token refresh request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &apperrors.AuthError{
			Permanent: apperrors.IsPermanentAuthBody(string(body)),
			Reason:    fmt.Sprintf("codex token refresh failed: %s", string(body)),
		}
	}

	var tokens codexTokenResponse
	if err := json.Unmarshal(body, &tokens); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}

	if tokens.AccessToken == "" {
		return nil, fmt.Errorf("no access token received")
	}

	return &TokenResponse{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresIn:    tokens.ExpiresIn,
	}, nil
}
