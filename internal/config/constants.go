// Package config contains configuration constants for the proxy.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// Provider identifiers. An account's provider field holds one of these.
const (
	ProviderGoogle     = "google"
	ProviderAnthropic  = "anthropic"
	ProviderOpenAI     = "openai"
	ProviderOpenRouter = "openrouter"
	ProviderGitHub     = "github"
	ProviderCopilot    = "copilot"
	ProviderCodex      = "codex"
)

// KnownProviders lists every provider the proxy dispatches to.
var KnownProviders = []string{
	ProviderGoogle,
	ProviderAnthropic,
	ProviderOpenAI,
	ProviderOpenRouter,
	ProviderGitHub,
	ProviderCopilot,
	ProviderCodex,
}

// IsKnownProvider reports whether name is a provider this proxy supports.
func IsKnownProvider(name string) bool {
	for _, p := range KnownProviders {
		if p == name {
			return true
		}
	}
	return false
}

// Server configuration
const (
	DefaultPort      = 8080
	RequestBodyLimit = 50 * 1024 * 1024 // 50MB
)

// Retry and timeout configuration
const (
	MaxRetries              = 5  // Max retry attempts across accounts
	MaxEmptyResponseRetries = 2  // Max refetches for empty upstream streams
	MaxCapacityRetries      = 5  // Max same-endpoint retries on capacity exhaustion
	MaxAccounts             = 10 // Maximum number of accounts allowed
	DefaultCooldownDuration = 10 * time.Second
	ExtendedCooldown        = 60 * time.Second // Applied after repeated consecutive failures
	MaxConsecutiveFailures  = 3
	MaxWaitBeforeError      = 2 * time.Minute  // Throw error if the shortest wait exceeds this
	MaxTotalRetryTime       = 10 * time.Minute // Wall-clock cap for a whole request
	TokenRefreshInterval    = 5 * time.Minute  // Access-token cache TTL
	UpstreamRequestTimeout  = 10 * time.Minute // Per-HTTP-attempt timeout
	RateLimitDedupWindow    = 2 * time.Second  // Concurrent 429s inside this window count once

	FirstRetryDelay     = 1 * time.Second
	MinBackoff          = 2 * time.Second        // Floor applied to any computed wait
	PostRateLimitBuffer = 500 * time.Millisecond // Buffer after a rate limit wait
	NetworkRetryDelay   = 1 * time.Second        // Delay between network error retries
)

// CapacityBackoffTiers is the progressive schedule for MODEL_CAPACITY_EXHAUSTED
// retries against the same endpoint.
var CapacityBackoffTiers = []time.Duration{
	5 * time.Second,
	10 * time.Second,
	20 * time.Second,
	30 * time.Second,
	60 * time.Second,
}

// Thinking model constants
const (
	MinSignatureLength = 50 // Minimum valid thinking signature length
)

// Google OAuth configuration for Cloud Code accounts.
var GoogleOAuthConfig = struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	UserInfoURL  string
	CallbackPort int
	Scopes       []string
	RedirectURI  string
}{
	ClientID:     getEnvOrDefault("GOOGLE_CLIENT_ID", "1071006060591-tmhssin2h21lcre235vtolojh4g403ep.apps.googleusercontent.com"),
	ClientSecret: getEnvOrDefault("GOOGLE_CLIENT_SECRET", "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"),
	AuthURL:      "https://accounts.google.com/o/oauth2/v2/auth",
	TokenURL:     "https://oauth2.googleapis.com/token",
	UserInfoURL:  "https://www.googleapis.com/oauth2/v1/userinfo",
	CallbackPort: 51121,
	Scopes: []string{
		"https://www.googleapis.com/auth/cloud-platform",
		"https://www.googleapis.com/auth/userinfo.email",
		"https://www.googleapis.com/auth/userinfo.profile",
	},
	RedirectURI: "http://localhost:51121/oauth-callback",
}

// Cloud Code API configuration
var (
	// CloudCodeEndpointFallbacks contains Cloud Code API endpoints in fallback order.
	CloudCodeEndpointFallbacks = []string{
		"https://daily-cloudcode-pa.googleapis.com",
		"https://cloudcode-pa.googleapis.com",
	}

	// DefaultProjectID is used if none can be discovered.
	DefaultProjectID = "rising-fact-p41fc"
)

// Provider base URLs for the OpenAI-compatible dispatch path.
const (
	AnthropicBaseURL  = "https://api.anthropic.com/v1"
	OpenAIBaseURL     = "https://api.openai.com/v1"
	OpenRouterBaseURL = "https://openrouter.ai/api/v1"
	GitHubModelsURL   = "https://models.inference.ai.azure.com"
	CopilotBaseURL    = "https://api.githubcopilot.com"
	CodexBaseURL      = "https://chatgpt.com/backend-api/codex/responses"
	CodexIssuerURL    = "https://auth.openai.com"

	AnthropicVersion = "2023-06-01"
)

// GitHub / Copilot OAuth configuration.
const (
	GitHubClientID       = "Ov23li8tweQw6odWQebz"
	GitHubDeviceCodeURL  = "https://github.com/login/device/code"
	GitHubAccessTokenURL = "https://github.com/login/oauth/access_token"
	GitHubUserURL        = "https://api.github.com/user"
	GitHubAppScopes      = "read:user"
	CopilotTokenURL      = "https://api.github.com/copilot_internal/v2/token"
	GitHubAPIVersion     = "2022-11-28"
)

// ModelFallbackMap maps primary models to fallback models tried once after all
// accounts are exhausted.
var ModelFallbackMap = map[string]string{
	"gemini-3-pro-high":          "claude-opus-4-5-thinking",
	"gemini-3-pro-low":           "claude-sonnet-4-5",
	"gemini-3-flash":             "claude-sonnet-4-5-thinking",
	"claude-opus-4-5-thinking":   "gemini-3-pro-high",
	"claude-sonnet-4-5-thinking": "gemini-3-flash",
	"claude-sonnet-4-5":          "gemini-3-flash",
}

// GetFallbackModel returns the fallback model for the given model, or empty string if none.
func GetFallbackModel(model string) string {
	return ModelFallbackMap[model]
}

// GetCloudCodeHeaders returns the required headers for Cloud Code API requests.
func GetCloudCodeHeaders() map[string]string {
	return map[string]string{
		"User-Agent":        fmt.Sprintf("cloudcode/1.11.5 %s/%s", runtime.GOOS, runtime.GOARCH),
		"X-Goog-Api-Client": "google-cloud-sdk vscode_cloudshelleditor/0.1",
		"Client-Metadata":   `{"ideType":"IDE_UNSPECIFIED","platform":"PLATFORM_UNSPECIFIED","pluginType":"GEMINI"}`,
	}
}

// Account selection strategies.
const (
	StrategySticky     = "sticky"
	StrategyRoundRobin = "round-robin"
	StrategyHybrid     = "hybrid"

	DefaultSelectionStrategy = StrategyHybrid
)

// IsValidStrategy reports whether name is a recognized selection strategy.
func IsValidStrategy(name string) bool {
	switch name {
	case StrategySticky, StrategyRoundRobin, StrategyHybrid:
		return true
	}
	return false
}

// GetAccountConfigPath returns the path to the account configuration file.
// Can be overridden with ACCOUNTS_CONFIG_PATH environment variable.
func GetAccountConfigPath() string {
	if envPath := os.Getenv("ACCOUNTS_CONFIG_PATH"); envPath != "" {
		return envPath
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config/commons-proxy/accounts.json")
}
