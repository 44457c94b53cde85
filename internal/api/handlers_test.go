package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/AryanVBW/CommonsProxy-sub000/internal/account"
	"github.com/AryanVBW/CommonsProxy-sub000/internal/provider"
	"github.com/AryanVBW/CommonsProxy-sub000/internal/relay"
	"github.com/AryanVBW/CommonsProxy-sub000/pkg/types"
)

// stubAdapter routes requests to a test server and parses plain Anthropic
// JSON responses.
type stubAdapter struct {
	name   string
	url    string
	models []string
}

func (a *stubAdapter) Name() string       { return a.name }
func (a *stubAdapter) EndpointCount() int { return 1 }
func (a *stubAdapter) Models() []string   { return a.models }

func (a *stubAdapter) AccessToken(ctx context.Context, acc *account.Account) (string, error) {
	return acc.APIKey, nil
}

func (a *stubAdapter) Validate(ctx context.Context, acc *account.Account) provider.ValidationResult {
	return provider.ValidationResult{Valid: true, Email: acc.Email}
}

func (a *stubAdapter) BuildRequest(ctx context.Context, req *types.AnthropicRequest, acc *account.Account, token string, stream bool, endpoint int) (*http.Request, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	return http.NewRequestWithContext(ctx, "POST", a.url, bytes.NewReader(body))
}

func (a *stubAdapter) ParseResponse(body []byte, model string) (*types.AnthropicResponse, error) {
	var resp types.AnthropicResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (a *stubAdapter) StreamEvents(ctx context.Context, body io.ReadCloser, model string) <-chan types.StreamEvent {
	ch := make(chan types.StreamEvent)
	close(ch)
	body.Close()
	return ch
}

func (a *stubAdapter) ParseRateLimit(headers http.Header, body string) int64 { return 0 }
func (a *stubAdapter) IsInvalidCredentialError(err error) bool              { return false }

func newTestServer(t *testing.T, adapters []provider.Adapter, emails ...string) *Server {
	t.Helper()
	pool := account.NewManager(filepath.Join(t.TempDir(), "accounts.json"))
	if err := pool.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	for _, email := range emails {
		if err := pool.AddAccount(account.Account{
			Email:    email,
			Provider: "openai",
			APIKey:   "sk-" + email,
		}); err != nil {
			t.Fatalf("AddAccount(%s): %v", email, err)
		}
	}
	registry := provider.NewRegistry()
	for _, a := range adapters {
		if err := registry.Register(a); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	return NewServer(relay.New(pool, registry), pool, registry)
}

func TestHandleMessages_MethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/messages", nil)
	rr := httptest.NewRecorder()
	srv.handleMessages(rr, req)

	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusMethodNotAllowed)
	}
}

func TestHandleMessages_ValidationErrors(t *testing.T) {
	srv := newTestServer(t, nil)

	tests := []struct {
		name string
		body string
	}{
		{"invalid JSON", `{not json`},
		{"missing model", `{"messages":[{"role":"user","content":"hi"}]}`},
		{"empty messages", `{"model":"gpt-5","messages":[]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(tt.body))
			rr := httptest.NewRecorder()
			srv.handleMessages(rr, req)

			if rr.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", rr.Code, http.StatusBadRequest)
			}
			var resp errorResponse
			if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
				t.Fatalf("failed to parse error body: %v", err)
			}
			if resp.Error.Type != "invalid_request_error" {
				t.Errorf("error type = %q, want %q", resp.Error.Type, "invalid_request_error")
			}
		})
	}
}

func TestHandleMessages_EndToEnd(t *testing.T) {
	t.Setenv("PROXY_API_KEY", "proxy-key")

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := types.AnthropicResponse{
			ID:         "msg_1",
			Type:       "message",
			Role:       "assistant",
			Content:    []types.ContentBlock{{Type: "text", Text: "hello"}},
			Model:      "gpt-5",
			StopReason: "end_turn",
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer upstream.Close()

	srv := newTestServer(t, []provider.Adapter{&stubAdapter{name: "openai", url: upstream.URL}}, "a@x.com")
	handler := srv.Routes()

	body := `{"model":"gpt-5","messages":[{"role":"user","content":"hi"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(body))
	req.Header.Set("x-api-key", "proxy-key")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %s)", rr.Code, http.StatusOK, rr.Body.String())
	}
	var resp types.AnthropicResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(resp.Content) != 1 || resp.Content[0].Text != "hello" {
		t.Errorf("content = %+v, want single hello text block", resp.Content)
	}
}

func TestHandleMessages_EndToEnd_Unauthorized(t *testing.T) {
	t.Setenv("PROXY_API_KEY", "proxy-key")

	srv := newTestServer(t, nil)
	handler := srv.Routes()

	req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(`{}`))
	req.Header.Set("x-api-key", "wrong")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestHandleModels_AggregatesAndDedupes(t *testing.T) {
	srv := newTestServer(t, []provider.Adapter{
		&stubAdapter{name: "openai", models: []string{"gpt-5", "gpt-4o"}},
		&stubAdapter{name: "copilot", models: []string{"gpt-5", "claude-sonnet-4.5"}},
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	rr := httptest.NewRecorder()
	srv.handleModels(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	var resp types.ModelsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}

	want := []string{"claude-sonnet-4.5", "gpt-4o", "gpt-5"}
	if len(resp.Data) != len(want) {
		t.Fatalf("got %d models, want %d", len(resp.Data), len(want))
	}
	for i, id := range want {
		if resp.Data[i].ID != id {
			t.Errorf("model[%d] = %q, want %q", i, resp.Data[i].ID, id)
		}
		if resp.Data[i].Type != "model" {
			t.Errorf("model[%d] type = %q, want %q", i, resp.Data[i].Type, "model")
		}
	}
	if resp.FirstID != "claude-sonnet-4.5" || resp.LastID != "gpt-5" {
		t.Errorf("first/last = %q/%q, want claude-sonnet-4.5/gpt-5", resp.FirstID, resp.LastID)
	}
}

func TestHandleModels_MethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/models", nil)
	rr := httptest.NewRecorder()
	srv.handleModels(rr, req)

	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusMethodNotAllowed)
	}
}

func TestHandleHealth(t *testing.T) {
	t.Run("no accounts is error", func(t *testing.T) {
		srv := newTestServer(t, nil)

		rr := httptest.NewRecorder()
		srv.handleHealth(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

		var resp healthResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if resp.Status != "error" {
			t.Errorf("status = %q, want %q", resp.Status, "error")
		}
	})

	t.Run("all accounts usable is ok", func(t *testing.T) {
		srv := newTestServer(t, nil, "a@x.com", "b@x.com")

		rr := httptest.NewRecorder()
		srv.handleHealth(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

		var resp healthResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if resp.Status != "ok" {
			t.Errorf("status = %q, want %q", resp.Status, "ok")
		}
		if len(resp.Accounts) != 2 {
			t.Errorf("got %d accounts, want 2", len(resp.Accounts))
		}
	})

	t.Run("one invalid account degrades", func(t *testing.T) {
		srv := newTestServer(t, nil, "a@x.com", "b@x.com")
		srv.pool.MarkInvalid("b@x.com", "revoked")

		rr := httptest.NewRecorder()
		srv.handleHealth(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

		var resp healthResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if resp.Status != "degraded" {
			t.Errorf("status = %q, want %q", resp.Status, "degraded")
		}
	})
}
