// Package provider defines the Adapter interface that every upstream backend
// implements, plus the registry that routes accounts to adapters.
package provider

import (
	"context"
	"io"
	"net/http"

	"github.com/AryanVBW/CommonsProxy-sub000/internal/account"
	"github.com/AryanVBW/CommonsProxy-sub000/pkg/types"
)

// ValidationResult is the outcome of probing a credential.
type ValidationResult struct {
	Valid bool
	Email string
	Err   error
}

// Adapter translates between the proxy's canonical Anthropic format and one
// upstream provider. Adapters are stateless apart from HTTP clients; all
// account state lives in the pool.
type Adapter interface {
	// Name returns the provider identifier (e.g. "google", "copilot").
	Name() string

	// Validate performs one probe call against the credential. Network
	// errors yield {Valid: false, Err: err} and must not be treated as a
	// permanently bad credential.
	Validate(ctx context.Context, acc *account.Account) ValidationResult

	// AccessToken resolves the credential to a bearer token. API-key
	// providers return the key as-is; OAuth providers refresh. Permanent
	// failures come back as *errors.AuthError with Permanent set.
	AccessToken(ctx context.Context, acc *account.Account) (string, error)

	// EndpointCount reports how many base endpoints the adapter can fall
	// back across. Most providers have exactly one.
	EndpointCount() int

	// BuildRequest produces the upstream HTTP request for the given
	// endpoint index. For google the account's ProjectID must already be
	// resolved.
	BuildRequest(ctx context.Context, req *types.AnthropicRequest, acc *account.Account, token string, stream bool, endpoint int) (*http.Request, error)

	// ParseResponse converts a successful non-streaming body to the
	// canonical response.
	ParseResponse(body []byte, model string) (*types.AnthropicResponse, error)

	// StreamEvents converts a successful streaming body to canonical
	// events. The adapter owns closing the body; the channel closes when
	// the stream ends or ctx is cancelled.
	StreamEvents(ctx context.Context, body io.ReadCloser, model string) <-chan types.StreamEvent

	// ParseRateLimit extracts the absolute reset time (epoch ms) from a
	// rate-limited response. Returns 0 when the provider gave no hint.
	ParseRateLimit(headers http.Header, body string) int64

	// IsInvalidCredentialError reports whether the error indicates a
	// permanently dead credential (re-authentication required).
	IsInvalidCredentialError(err error) bool
}
