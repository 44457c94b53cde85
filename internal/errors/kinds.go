package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// As and Is re-export the standard library matchers so callers of this
// package do not need a second errors import.
func As(err error, target any) bool { return stderrors.As(err, target) }

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// New returns an error with the given text.
func New(text string) error { return stderrors.New(text) }

// Kind classifies a failure for the retry engine. Kinds are orthogonal to the
// concrete error types below: adapters surface raw HTTP errors, the engine
// classifies them.
type Kind int

const (
	KindUnknown Kind = iota
	KindNetworkTransient
	KindServerError
	KindModelCapacity
	KindRateLimit
	KindAuthTransient
	KindAuthInvalid
	KindEmptyResponse
	KindMaxRetries
	KindNoAccounts
)

// String returns the kind name for logging.
func (k Kind) String() string {
	switch k {
	case KindNetworkTransient:
		return "NETWORK_TRANSIENT"
	case KindServerError:
		return "SERVER_ERROR"
	case KindModelCapacity:
		return "MODEL_CAPACITY_EXHAUSTED"
	case KindRateLimit:
		return "RATE_LIMIT"
	case KindAuthTransient:
		return "AUTH_TRANSIENT"
	case KindAuthInvalid:
		return "AUTH_INVALID"
	case KindEmptyResponse:
		return "EMPTY_RESPONSE"
	case KindMaxRetries:
		return "MAX_RETRIES_EXCEEDED"
	case KindNoAccounts:
		return "NO_ACCOUNTS_AVAILABLE"
	default:
		return "UNKNOWN"
	}
}

// Retryable reports whether the retry engine should attempt again after this
// kind of failure (possibly on a different account).
func (k Kind) Retryable() bool {
	switch k {
	case KindNetworkTransient, KindServerError, KindModelCapacity,
		KindRateLimit, KindAuthTransient, KindEmptyResponse:
		return true
	}
	return false
}

// RateLimitError indicates the upstream rate-limited the account.
type RateLimitError struct {
	Model   string
	ResetMs int64 // epoch millis when the limit lifts, 0 if unknown
}

func (e *RateLimitError) Error() string {
	if e.ResetMs > 0 {
		return fmt.Sprintf("rate limited on %s, resets at %s", e.modelName(), time.UnixMilli(e.ResetMs).Format(time.RFC3339))
	}
	return fmt.Sprintf("rate limited on %s", e.modelName())
}

func (e *RateLimitError) modelName() string {
	if e.Model == "" {
		return "all models"
	}
	return e.Model
}

// HTTPStatusError carries a non-2xx upstream response for classification.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	body := e.Body
	if len(body) > 500 {
		body = body[:500] + "..."
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, body)
}

// AuthError indicates credential acquisition or validation failed.
// Permanent auth errors mark the account invalid; transient ones evict the
// token cache and retry.
type AuthError struct {
	Permanent bool
	Reason    string
}

func (e *AuthError) Error() string {
	if e.Permanent {
		return fmt.Sprintf("credentials invalid: %s", e.Reason)
	}
	return fmt.Sprintf("authentication failed: %s", e.Reason)
}

// EmptyResponseError indicates the upstream stream ended without emitting any
// content token.
type EmptyResponseError struct{}

func (e *EmptyResponseError) Error() string {
	return "upstream returned an empty response"
}

// NoAccountsError indicates the pool has no usable account and no wait worth
// recommending.
type NoAccountsError struct {
	Provider string
}

func (e *NoAccountsError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("no %s accounts available", e.Provider)
	}
	return "no accounts available"
}

// MaxRetriesError indicates the attempt or wall-clock cap was hit.
type MaxRetriesError struct {
	Attempts int
	Elapsed  time.Duration
	Last     error
}

func (e *MaxRetriesError) Error() string {
	if e.Last != nil {
		return fmt.Sprintf("max retries exceeded after %d attempts (%s): %v", e.Attempts, e.Elapsed.Round(time.Second), e.Last)
	}
	return fmt.Sprintf("max retries exceeded after %d attempts (%s)", e.Attempts, e.Elapsed.Round(time.Second))
}

func (e *MaxRetriesError) Unwrap() error { return e.Last }

var (
	capacityBodyRe = regexp.MustCompile(`(?i)model\s+\S+\s+(?:is\s+)?not\s+available`)

	permanentAuthPatterns = []string{
		"invalid_grant",
		"Token has been expired or revoked",
		"Bad credentials",
		"invalid api key",
		"account deactivated",
	}
)

// IsPermanentAuthBody reports whether an auth failure body indicates revoked
// or invalid credentials rather than a transient token problem.
func IsPermanentAuthBody(body string) bool {
	lower := strings.ToLower(body)
	for _, p := range permanentAuthPatterns {
		if strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

// ClassifyHTTP maps an upstream status code and body to an error kind.
func ClassifyHTTP(status int, body string) Kind {
	switch {
	case status == http.StatusTooManyRequests:
		return KindRateLimit
	case status == http.StatusForbidden &&
		(strings.Contains(body, "quotaExceeded") || strings.Contains(body, "rateLimitExceeded")):
		return KindRateLimit
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		if IsPermanentAuthBody(body) {
			return KindAuthInvalid
		}
		return KindAuthTransient
	case strings.Contains(body, "RESOURCE_PROJECT_INVALID") || capacityBodyRe.MatchString(body):
		return KindModelCapacity
	case status >= 500:
		return KindServerError
	default:
		return KindUnknown
	}
}

// Classify maps any error to a Kind. Typed errors are matched first; anything
// else falls back to string heuristics for network failures.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var rle *RateLimitError
	if stderrors.As(err, &rle) {
		return KindRateLimit
	}
	var ae *AuthError
	if stderrors.As(err, &ae) {
		if ae.Permanent {
			return KindAuthInvalid
		}
		return KindAuthTransient
	}
	var ere *EmptyResponseError
	if stderrors.As(err, &ere) {
		return KindEmptyResponse
	}
	var nae *NoAccountsError
	if stderrors.As(err, &nae) {
		return KindNoAccounts
	}
	var mre *MaxRetriesError
	if stderrors.As(err, &mre) {
		return KindMaxRetries
	}
	var hse *HTTPStatusError
	if stderrors.As(err, &hse) {
		return ClassifyHTTP(hse.StatusCode, hse.Body)
	}

	if isNetworkErrorString(err.Error()) {
		return KindNetworkTransient
	}
	return KindUnknown
}

func isNetworkErrorString(s string) bool {
	lower := strings.ToLower(s)
	for _, pattern := range []string{
		"connection refused",
		"connection reset",
		"no such host",
		"i/o timeout",
		"timeout awaiting",
		"tls handshake",
		"unexpected eof",
		"broken pipe",
		"network is unreachable",
		"dial tcp",
	} {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}
