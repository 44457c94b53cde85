package openaichat

import (
	"encoding/json"
	"testing"

	"github.com/AryanVBW/CommonsProxy-sub000/pkg/types"
)

func TestTranslateRequest_BasicMessage(t *testing.T) {
	req := &types.AnthropicRequest{
		Model:     "gpt-5",
		MaxTokens: 1000,
		Messages: []types.Message{
			{Role: "user", Content: json.RawMessage(`"Hello, world!"`)},
		},
	}

	payload, err := TranslateRequest(req, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if payload.Model != "gpt-5" {
		t.Errorf("expected model gpt-5, got %s", payload.Model)
	}
	if payload.MaxCompletionTokens != 1000 {
		t.Errorf("expected max_completion_tokens 1000, got %d", payload.MaxCompletionTokens)
	}
	if payload.Store {
		t.Error("store must always be false")
	}
	if len(payload.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(payload.Messages))
	}
	if payload.Messages[0].Content != "Hello, world!" {
		t.Errorf("single text block should collapse to a string, got %v", payload.Messages[0].Content)
	}
}

func TestTranslateRequest_SystemPromptConcatenated(t *testing.T) {
	req := &types.AnthropicRequest{
		Model:  "gpt-5",
		System: json.RawMessage(`[{"type":"text","text":"You are helpful."},{"type":"text","text":"Be brief."}]`),
		Messages: []types.Message{
			{Role: "user", Content: json.RawMessage(`"Hi"`)},
		},
	}

	payload, err := TranslateRequest(req, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(payload.Messages) != 2 {
		t.Fatalf("expected 2 messages (system + user), got %d", len(payload.Messages))
	}
	if payload.Messages[0].Role != "system" {
		t.Errorf("expected first message role system, got %s", payload.Messages[0].Role)
	}
	if payload.Messages[0].Content != "You are helpful.\nBe brief." {
		t.Errorf("system blocks should join with newline, got %v", payload.Messages[0].Content)
	}
}

func TestTranslateRequest_ToolResultsPrecedeUserContent(t *testing.T) {
	content := `[
		{"type":"tool_result","tool_use_id":"toolu_1","content":"42 degrees"},
		{"type":"text","text":"Thanks, and tomorrow?"}
	]`
	req := &types.AnthropicRequest{
		Model: "gpt-5",
		Messages: []types.Message{
			{Role: "user", Content: json.RawMessage(content)},
		},
	}

	payload, err := TranslateRequest(req, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(payload.Messages) != 2 {
		t.Fatalf("expected 2 messages (tool + user), got %d", len(payload.Messages))
	}
	if payload.Messages[0].Role != "tool" {
		t.Errorf("tool result should come first, got role %s", payload.Messages[0].Role)
	}
	if payload.Messages[0].ToolCallID != "toolu_1" {
		t.Errorf("expected tool_call_id toolu_1, got %s", payload.Messages[0].ToolCallID)
	}
	if payload.Messages[0].Content != "42 degrees" {
		t.Errorf("expected tool content 42 degrees, got %v", payload.Messages[0].Content)
	}
	if payload.Messages[1].Role != "user" {
		t.Errorf("remaining content should follow as user, got role %s", payload.Messages[1].Role)
	}
}

func TestTranslateRequest_AssistantToolUse(t *testing.T) {
	content := `[
		{"type":"thinking","thinking":"let me check"},
		{"type":"text","text":"Checking the weather."},
		{"type":"tool_use","id":"toolu_1","name":"get_weather","input":{"location":"Paris"}}
	]`
	req := &types.AnthropicRequest{
		Model: "gpt-5",
		Messages: []types.Message{
			{Role: "assistant", Content: json.RawMessage(content)},
		},
	}

	payload, err := TranslateRequest(req, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(payload.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(payload.Messages))
	}
	msg := payload.Messages[0]
	if msg.Content != "Checking the weather." {
		t.Errorf("thinking block should be dropped, got content %v", msg.Content)
	}
	if len(msg.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(msg.ToolCalls))
	}
	if msg.ToolCalls[0].Function.Name != "get_weather" {
		t.Errorf("expected function get_weather, got %s", msg.ToolCalls[0].Function.Name)
	}
	if msg.ToolCalls[0].Function.Arguments != `{"location":"Paris"}` {
		t.Errorf("unexpected arguments: %s", msg.ToolCalls[0].Function.Arguments)
	}
}

func TestTranslateRequest_ImageBecomesDataURL(t *testing.T) {
	content := `[
		{"type":"text","text":"What is this?"},
		{"type":"image","source":{"type":"base64","media_type":"image/png","data":"aGVsbG8="}}
	]`
	req := &types.AnthropicRequest{
		Model: "gpt-5",
		Messages: []types.Message{
			{Role: "user", Content: json.RawMessage(content)},
		},
	}

	payload, err := TranslateRequest(req, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	parts, ok := payload.Messages[0].Content.([]interface{})
	if !ok {
		t.Fatalf("mixed content should stay an array, got %T", payload.Messages[0].Content)
	}
	if len(parts) != 2 {
		t.Fatalf("expected 2 content parts, got %d", len(parts))
	}
	imgPart := parts[1].(map[string]interface{})
	imgURL := imgPart["image_url"].(map[string]interface{})
	if imgURL["url"] != "data:image/png;base64,aGVsbG8=" {
		t.Errorf("unexpected image url: %v", imgURL["url"])
	}
}

func TestTranslateRequest_ToolChoice(t *testing.T) {
	tests := []struct {
		name   string
		choice *types.ToolChoice
		want   interface{}
	}{
		{"auto", &types.ToolChoice{Type: "auto"}, "auto"},
		{"any maps to required", &types.ToolChoice{Type: "any"}, "required"},
		{"none", &types.ToolChoice{Type: "none"}, "none"},
		{"unknown falls back to auto", &types.ToolChoice{Type: "mystery"}, "auto"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &types.AnthropicRequest{
				Model:      "gpt-5",
				Messages:   []types.Message{{Role: "user", Content: json.RawMessage(`"hi"`)}},
				ToolChoice: tt.choice,
			}
			payload, err := TranslateRequest(req, false)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if payload.ToolChoice != tt.want {
				t.Errorf("tool_choice = %v, want %v", payload.ToolChoice, tt.want)
			}
		})
	}
}

func TestTranslateRequest_ToolChoiceFunction(t *testing.T) {
	req := &types.AnthropicRequest{
		Model:      "gpt-5",
		Messages:   []types.Message{{Role: "user", Content: json.RawMessage(`"hi"`)}},
		ToolChoice: &types.ToolChoice{Type: "tool", Name: "get_weather"},
	}

	payload, err := TranslateRequest(req, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fn, ok := payload.ToolChoice.(ToolChoiceFunction)
	if !ok {
		t.Fatalf("expected ToolChoiceFunction, got %T", payload.ToolChoice)
	}
	if fn.Function.Name != "get_weather" {
		t.Errorf("expected function get_weather, got %s", fn.Function.Name)
	}
}

func TestTranslateRequest_ReasoningEffort(t *testing.T) {
	tests := []struct {
		name       string
		thinking   *types.ThinkingConfig
		capable    bool
		wantEffort string
	}{
		{"not reasoning capable", &types.ThinkingConfig{Type: "enabled", BudgetTokens: 8000}, false, ""},
		{"low budget", &types.ThinkingConfig{Type: "enabled", BudgetTokens: 2000}, true, "low"},
		{"medium budget", &types.ThinkingConfig{Type: "enabled", BudgetTokens: 8000}, true, "medium"},
		{"high budget", &types.ThinkingConfig{Type: "enabled", BudgetTokens: 16000}, true, "high"},
		{"thinking suffix without config", nil, true, "medium"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &types.AnthropicRequest{
				Model:    "gpt-5",
				Messages: []types.Message{{Role: "user", Content: json.RawMessage(`"hi"`)}},
				Thinking: tt.thinking,
			}
			payload, err := TranslateRequest(req, tt.capable)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if payload.ReasoningEffort != tt.wantEffort {
				t.Errorf("reasoning_effort = %q, want %q", payload.ReasoningEffort, tt.wantEffort)
			}
			if tt.capable {
				if payload.ReasoningSummary != "auto" {
					t.Errorf("reasoning_summary = %q, want auto", payload.ReasoningSummary)
				}
				if len(payload.Include) != 1 || payload.Include[0] != "reasoning.encrypted_content" {
					t.Errorf("include = %v, want [reasoning.encrypted_content]", payload.Include)
				}
			} else if payload.Include != nil {
				t.Errorf("include should be empty when not reasoning capable, got %v", payload.Include)
			}
		})
	}
}

func TestTranslateRequest_ToolResultWithBlockArray(t *testing.T) {
	content := `[{"type":"tool_result","tool_use_id":"toolu_1","content":[{"type":"text","text":"line one"},{"type":"text","text":"line two"}]}]`
	req := &types.AnthropicRequest{
		Model: "gpt-5",
		Messages: []types.Message{
			{Role: "user", Content: json.RawMessage(content)},
		},
	}

	payload, err := TranslateRequest(req, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if payload.Messages[0].Content != "line one\nline two" {
		t.Errorf("tool result blocks should join with newline, got %v", payload.Messages[0].Content)
	}
}
