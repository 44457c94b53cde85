package api

import (
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/AryanVBW/CommonsProxy-sub000/internal/account"
	apperrors "github.com/AryanVBW/CommonsProxy-sub000/internal/errors"
	"github.com/AryanVBW/CommonsProxy-sub000/internal/provider"
	"github.com/AryanVBW/CommonsProxy-sub000/internal/relay"
	"github.com/AryanVBW/CommonsProxy-sub000/internal/utils"
	"github.com/AryanVBW/CommonsProxy-sub000/pkg/types"
)

// modelLister is implemented by adapters that publish a static model list for
// /v1/models.
type modelLister interface {
	Models() []string
}

// Server holds the handlers for the proxy's HTTP surface.
type Server struct {
	engine   *relay.Engine
	pool     *account.Manager
	registry *provider.Registry
}

// NewServer creates the HTTP server handlers.
func NewServer(engine *relay.Engine, pool *account.Manager, registry *provider.Registry) *Server {
	return &Server{engine: engine, pool: pool, registry: registry}
}

// Routes returns the full handler chain.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/messages", s.handleMessages)
	mux.HandleFunc("/v1/models", s.handleModels)
	mux.HandleFunc("/health", s.handleHealth)

	var handler http.Handler = mux
	handler = APIKeyAuth(handler)
	handler = BodyLimit(handler)
	handler = ConfigurableCORS(handler)
	handler = Logger(handler)
	handler = Recovery(handler)
	return handler
}

// handleMessages serves POST /v1/messages, streaming or not.
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeAnthropicError(w, apperrors.InvalidRequest("Method not allowed"), http.StatusMethodNotAllowed)
		return
	}

	var req types.AnthropicRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAnthropicError(w, apperrors.InvalidRequest("Invalid JSON body: "+err.Error()), 0)
		return
	}
	if req.Model == "" {
		writeAnthropicError(w, apperrors.InvalidRequest("model is required"), 0)
		return
	}
	if len(req.Messages) == 0 {
		writeAnthropicError(w, apperrors.InvalidRequest("messages must not be empty"), 0)
		return
	}

	if req.Stream {
		s.streamMessages(w, r, &req)
		return
	}

	resp, err := s.engine.SendMessage(r.Context(), &req)
	if err != nil {
		utils.Error("[API] Request failed: %v", err)
		writeAnthropicError(w, apperrors.FromError(err), 0)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// streamMessages relays the event channel as SSE. Dispatch happens before the
// headers go out, so pre-stream failures still produce a proper error status.
func (s *Server) streamMessages(w http.ResponseWriter, r *http.Request, req *types.AnthropicRequest) {
	events, err := s.engine.SendMessageStream(r.Context(), req)
	if err != nil {
		utils.Error("[API] Stream dispatch failed: %v", err)
		writeAnthropicError(w, apperrors.FromError(err), 0)
		return
	}

	sse, err := NewSSEWriter(w)
	if err != nil {
		writeAnthropicError(w, apperrors.APIError(err.Error()), 0)
		return
	}

	for evt := range events {
		if err := sse.WriteEvent(evt.Type, evt); err != nil {
			// Client went away; the engine's channel drains via ctx.
			utils.Debug("[API] SSE write failed: %v", err)
			return
		}
	}
}

// handleModels aggregates the static model lists of all registered providers.
func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeAnthropicError(w, apperrors.InvalidRequest("Method not allowed"), http.StatusMethodNotAllowed)
		return
	}

	seen := make(map[string]bool)
	ids := make([]string, 0)
	for _, adapter := range s.registry.All() {
		lister, ok := adapter.(modelLister)
		if !ok {
			continue
		}
		for _, id := range lister.Models() {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	sort.Strings(ids)

	models := make([]types.Model, 0, len(ids))
	for _, id := range ids {
		models = append(models, types.Model{
			ID:          id,
			DisplayName: id,
			Type:        "model",
		})
	}

	resp := types.ModelsResponse{Data: models}
	if len(models) > 0 {
		resp.FirstID = models[0].ID
		resp.LastID = models[len(models)-1].ID
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// healthResponse is the /health payload.
type healthResponse struct {
	Status    string                `json:"status"`
	Accounts  []types.AccountStatus `json:"accounts"`
	Timestamp time.Time             `json:"timestamp"`
}

// handleHealth reports per-account availability. Status degrades when any
// account is unusable and goes to "error" when none are usable.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	statuses := s.pool.GetAccountStatuses()

	usable, total := 0, len(statuses)
	for _, st := range statuses {
		if st.Status == "ok" {
			usable++
		}
	}

	overall := "ok"
	switch {
	case total == 0 || usable == 0:
		overall = "error"
	case usable < total:
		overall = "degraded"
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(healthResponse{
		Status:    overall,
		Accounts:  statuses,
		Timestamp: time.Now().UTC(),
	})
}

// writeAnthropicError writes an Anthropic-format error. statusOverride forces
// a specific status code when non-zero.
func writeAnthropicError(w http.ResponseWriter, ae *apperrors.AnthropicError, statusOverride int) {
	status := ae.StatusCode()
	if statusOverride != 0 {
		status = statusOverride
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(ae.ToJSON())
}
