package errors

import (
	"fmt"
	"net/http"
	"testing"
)

func TestClassifyHTTP(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   Kind
	}{
		{
			name:   "429 is rate limit",
			status: 429,
			body:   `{"error":{"code":429}}`,
			want:   KindRateLimit,
		},
		{
			name:   "403 with quotaExceeded is rate limit",
			status: 403,
			body:   `{"error":{"errors":[{"reason":"quotaExceeded"}]}}`,
			want:   KindRateLimit,
		},
		{
			name:   "403 with rateLimitExceeded is rate limit",
			status: 403,
			body:   `{"reason":"rateLimitExceeded"}`,
			want:   KindRateLimit,
		},
		{
			name:   "401 with invalid_grant is permanent auth",
			status: 401,
			body:   `{"error":"invalid_grant","error_description":"Token has been expired or revoked."}`,
			want:   KindAuthInvalid,
		},
		{
			name:   "401 with Bad credentials is permanent auth",
			status: 401,
			body:   `{"message":"Bad credentials"}`,
			want:   KindAuthInvalid,
		},
		{
			name:   "401 with opaque body is transient auth",
			status: 401,
			body:   `{"error":"unauthorized"}`,
			want:   KindAuthTransient,
		},
		{
			name:   "403 without quota indicators is auth",
			status: 403,
			body:   `{"error":"forbidden"}`,
			want:   KindAuthTransient,
		},
		{
			name:   "RESOURCE_PROJECT_INVALID is capacity",
			status: 500,
			body:   `{"error":{"status":"RESOURCE_PROJECT_INVALID"}}`,
			want:   KindModelCapacity,
		},
		{
			name:   "model not available is capacity",
			status: 503,
			body:   `model gemini-3-pro-high is not available in your region`,
			want:   KindModelCapacity,
		},
		{
			name:   "plain 500 is server error",
			status: 500,
			body:   `internal error`,
			want:   KindServerError,
		},
		{
			name:   "503 is server error",
			status: 503,
			body:   `unavailable`,
			want:   KindServerError,
		},
		{
			name:   "400 is unknown",
			status: 400,
			body:   `bad request`,
			want:   KindUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyHTTP(tt.status, tt.body)
			if got != tt.want {
				t.Errorf("ClassifyHTTP(%d, %q) = %v, want %v", tt.status, tt.body, got, tt.want)
			}
		})
	}
}

func TestClassifyTypedErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{
			name: "rate limit error",
			err:  &RateLimitError{Model: "claude-sonnet-4-5", ResetMs: 1000},
			want: KindRateLimit,
		},
		{
			name: "wrapped rate limit error",
			err:  fmt.Errorf("request failed: %w", &RateLimitError{}),
			want: KindRateLimit,
		},
		{
			name: "permanent auth error",
			err:  &AuthError{Permanent: true, Reason: "invalid_grant"},
			want: KindAuthInvalid,
		},
		{
			name: "transient auth error",
			err:  &AuthError{Reason: "token refresh failed"},
			want: KindAuthTransient,
		},
		{
			name: "empty response",
			err:  &EmptyResponseError{},
			want: KindEmptyResponse,
		},
		{
			name: "no accounts",
			err:  &NoAccountsError{Provider: "google"},
			want: KindNoAccounts,
		},
		{
			name: "max retries",
			err:  &MaxRetriesError{Attempts: 5},
			want: KindMaxRetries,
		},
		{
			name: "http status error delegates to ClassifyHTTP",
			err:  &HTTPStatusError{StatusCode: 429, Body: "too many requests"},
			want: KindRateLimit,
		},
		{
			name: "connection refused is network transient",
			err:  New("dial tcp 127.0.0.1:443: connect: connection refused"),
			want: KindNetworkTransient,
		},
		{
			name: "dns failure is network transient",
			err:  New("lookup cloudcode-pa.googleapis.com: no such host"),
			want: KindNetworkTransient,
		},
		{
			name: "arbitrary error is unknown",
			err:  New("something odd happened"),
			want: KindUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			if got != tt.want {
				t.Errorf("Classify(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestKindRetryable(t *testing.T) {
	retryable := []Kind{KindNetworkTransient, KindServerError, KindModelCapacity, KindRateLimit, KindAuthTransient, KindEmptyResponse}
	terminal := []Kind{KindAuthInvalid, KindMaxRetries, KindNoAccounts, KindUnknown}

	for _, k := range retryable {
		if !k.Retryable() {
			t.Errorf("%v.Retryable() = false, want true", k)
		}
	}
	for _, k := range terminal {
		if k.Retryable() {
			t.Errorf("%v.Retryable() = true, want false", k)
		}
	}
}

func TestFromError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantType   ErrorType
		wantStatus int
	}{
		{
			name:       "rate limit error maps to 429",
			err:        &RateLimitError{Model: "claude-sonnet-4-5"},
			wantType:   ErrorTypeRateLimit,
			wantStatus: http.StatusTooManyRequests,
		},
		{
			name:       "permanent auth maps to 401",
			err:        &AuthError{Permanent: true, Reason: "invalid_grant"},
			wantType:   ErrorTypeAuthentication,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "no accounts maps to 503",
			err:        &NoAccountsError{},
			wantType:   ErrorTypeAPI,
			wantStatus: http.StatusServiceUnavailable,
		},
		{
			name:       "server error maps to overloaded",
			err:        &HTTPStatusError{StatusCode: 500, Body: "boom"},
			wantType:   ErrorTypeOverloaded,
			wantStatus: http.StatusServiceUnavailable,
		},
		{
			name:       "max retries maps to overloaded 503",
			err:        &MaxRetriesError{Attempts: 5},
			wantType:   ErrorTypeOverloaded,
			wantStatus: http.StatusServiceUnavailable,
		},
		{
			name:       "generic error maps to api_error 500",
			err:        New("something odd"),
			wantType:   ErrorTypeAPI,
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:       "anthropic error passes through",
			err:        InvalidRequest("missing model"),
			wantType:   ErrorTypeInvalidRequest,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ae := FromError(tt.err)
			if ae == nil {
				t.Fatal("FromError returned nil")
			}
			if ae.Detail.Type != tt.wantType {
				t.Errorf("type = %v, want %v", ae.Detail.Type, tt.wantType)
			}
			if ae.StatusCode() != tt.wantStatus {
				t.Errorf("status = %d, want %d", ae.StatusCode(), tt.wantStatus)
			}
		})
	}
}

func TestIsPermanentAuthBody(t *testing.T) {
	permanent := []string{
		`{"error":"invalid_grant"}`,
		`Token has been expired or revoked`,
		`{"message":"Bad credentials"}`,
	}
	transient := []string{
		`{"error":"unauthorized"}`,
		`token refresh temporarily unavailable`,
	}

	for _, body := range permanent {
		if !IsPermanentAuthBody(body) {
			t.Errorf("IsPermanentAuthBody(%q) = false, want true", body)
		}
	}
	for _, body := range transient {
		if IsPermanentAuthBody(body) {
			t.Errorf("IsPermanentAuthBody(%q) = true, want false", body)
		}
	}
}
