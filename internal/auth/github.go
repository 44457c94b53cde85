package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/AryanVBW/CommonsProxy-sub000/internal/config"
	apperrors "github.com/AryanVBW/CommonsProxy-sub000/internal/errors"
)

const authHTTPTimeout = 30 * time.Second

// authClient is a shared HTTP client with timeout for auth requests.
var authClient = &http.Client{
	Timeout: authHTTPTimeout,
}

// DeviceCodeResponse is GitHub's device authorization grant.
type DeviceCodeResponse struct {
	DeviceCode      string `json:"device_code"`
	UserCode        string `json:"user_code"`
	VerificationURI string `json:"verification_uri"`
	ExpiresIn       int    `json:"expires_in"`
	Interval        int    `json:"interval"`
}

// AccessTokenResponse is GitHub's device-flow token poll result.
type AccessTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Scope       string `json:"scope"`
	Error       string `json:"error"`
}

// CopilotTokenResponse is the Copilot session token exchanged from a GitHub
// OAuth token.
type CopilotTokenResponse struct {
	Token        string `json:"token"`
	ExpiresAt    int64  `json:"expires_at"` // epoch seconds
	RefreshIn    int    `json:"refresh_in"`
	ErrorDetails string `json:"error_details,omitempty"`
}

// GitHubUser is the authenticated user's profile.
type GitHubUser struct {
	Login string `json:"login"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// GetDeviceCode initiates the GitHub device authorization flow.
func GetDeviceCode(ctx context.Context) (*DeviceCodeResponse, error) {
	data := url.Values{}
	data.Set("client_id", config.GitHubClientID)
	data.Set("scope", config.GitHubAppScopes)

	req, err := http.NewRequestWithContext(ctx, "POST", config.GitHubDeviceCodeURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := authClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to request device code: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("device code request failed: %s - %s", resp.Status, string(body))
	}

	var result DeviceCodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &result, nil
}

// PollAccessToken polls GitHub for the access token after user authorization.
// It blocks until the user completes authorization or the context is cancelled.
func PollAccessToken(ctx context.Context, deviceCode *DeviceCodeResponse) (string, error) {
	// Poll slightly slower than the GitHub-provided interval; requests that
	// arrive too quickly get rejected.
	interval := time.Duration(deviceCode.Interval+1) * time.Second
	expiry := time.Now().Add(time.Duration(deviceCode.ExpiresIn) * time.Second)

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		if time.Now().After(expiry) {
			return "", fmt.Errorf("device code expired")
		}

		token, err := tryGetAccessToken(ctx, deviceCode.DeviceCode)
		if err != nil {
			return "", err
		}
		if token != "" {
			return token, nil
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(interval):
		}
	}
}

func tryGetAccessToken(ctx context.Context, deviceCode string) (string, error) {
	data := url.Values{}
	data.Set("client_id", config.GitHubClientID)
	data.Set("device_code", deviceCode)
	data.Set("grant_type", "urn:ietf:params:oauth:grant-type:device_code")

	req, err := http.NewRequestWithContext(ctx, "POST", config.GitHubAccessTokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return "", err
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := authClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result AccessTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}

	if result.Error != "" {
		switch result.Error {
		case "authorization_pending", "slow_down":
			// User hasn't completed authorization yet; keep polling.
			return "", nil
		case "expired_token":
			return "", fmt.Errorf("device code expired")
		case "access_denied":
			return "", fmt.Errorf("user denied authorization")
		default:
			return "", fmt.Errorf("authorization error: %s", result.Error)
		}
	}

	return result.AccessToken, nil
}

// GetCopilotToken exchanges a GitHub access token for a Copilot session token.
func GetCopilotToken(ctx context.Context, githubToken string) (*CopilotTokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", config.CopilotTokenURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", fmt.Sprintf("token %s", githubToken))
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-GitHub-Api-Version", config.GitHubAPIVersion)
	req.Header.Set("User-Agent", "GitHubCopilotChat/0.26.7")

	resp, err := authClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get copilot token: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, &apperrors.AuthError{
			Permanent: apperrors.IsPermanentAuthBody(string(body)),
			Reason:    "invalid or expired GitHub token",
		}
	}

	if resp.StatusCode == http.StatusForbidden {
		return nil, &apperrors.AuthError{
			Permanent: true,
			Reason:    "GitHub Copilot access denied - ensure you have an active Copilot subscription",
		}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("copilot token request failed: %s - %s", resp.Status, string(body))
	}

	var result CopilotTokenResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if result.ErrorDetails != "" {
		return nil, fmt.Errorf("copilot token error: %s", result.ErrorDetails)
	}

	return &result, nil
}

// GetGitHubUser fetches the authenticated user's profile.
func GetGitHubUser(ctx context.Context, githubToken string) (*GitHubUser, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", config.GitHubUserURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", fmt.Sprintf("token %s", githubToken))
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-GitHub-Api-Version", config.GitHubAPIVersion)

	resp, err := authClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("user info request failed: %s - %s", resp.Status, string(body))
	}

	var user GitHubUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("failed to decode user: %w", err)
	}

	return &user, nil
}

// VerifyGitHubToken verifies a GitHub token by attempting a Copilot token
// exchange.
func VerifyGitHubToken(ctx context.Context, githubToken string) error {
	_, err := GetCopilotToken(ctx, githubToken)
	return err
}
