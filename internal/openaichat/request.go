package openaichat

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/AryanVBW/CommonsProxy-sub000/pkg/types"
)

// Reasoning effort thresholds, in thinking budget tokens.
const (
	lowEffortBudget  = 4000
	highEffortBudget = 16000
)

// TranslateRequest converts an Anthropic request into an OpenAI chat
// completions payload. reasoningCapable enables the reasoning parameters for
// models that support them (detected via the thinking suffix or the model's
// capability set); thinking blocks themselves never go on the wire.
func TranslateRequest(req *types.AnthropicRequest, reasoningCapable bool) (*ChatCompletionsPayload, error) {
	payload := &ChatCompletionsPayload{
		Model:               req.Model,
		MaxCompletionTokens: req.MaxTokens,
		Temperature:         req.Temperature,
		TopP:                req.TopP,
		Stream:              req.Stream,
		Stop:                req.StopSequences,
		Store:               false,
	}

	if len(req.System) > 0 {
		systemText, err := extractSystemText(req.System)
		if err != nil {
			return nil, fmt.Errorf("failed to parse system prompt: %w", err)
		}
		if systemText != "" {
			payload.Messages = append(payload.Messages, Message{
				Role:    "system",
				Content: systemText,
			})
		}
	}

	for _, msg := range req.Messages {
		openAIMsgs, err := translateMessage(msg)
		if err != nil {
			return nil, fmt.Errorf("failed to translate message: %w", err)
		}
		payload.Messages = append(payload.Messages, openAIMsgs...)
	}

	for _, tool := range req.Tools {
		payload.Tools = append(payload.Tools, Tool{
			Type: "function",
			Function: FunctionDef{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.InputSchema,
			},
		})
	}

	if req.ToolChoice != nil {
		payload.ToolChoice = translateToolChoice(req.ToolChoice)
	}

	if reasoningCapable {
		payload.ReasoningEffort = reasoningEffort(req.Thinking)
		payload.ReasoningSummary = "auto"
		payload.Include = []string{"reasoning.encrypted_content"}
	}

	return payload, nil
}

// reasoningEffort maps a thinking budget to an OpenAI effort level.
func reasoningEffort(cfg *types.ThinkingConfig) string {
	if cfg == nil || cfg.BudgetTokens == 0 {
		return "medium"
	}
	switch {
	case cfg.BudgetTokens < lowEffortBudget:
		return "low"
	case cfg.BudgetTokens >= highEffortBudget:
		return "high"
	default:
		return "medium"
	}
}

// extractSystemText joins the system prompt blocks into a single string.
func extractSystemText(system json.RawMessage) (string, error) {
	blocks, err := types.ParseSystemPrompt(system)
	if err != nil {
		return "", err
	}

	var parts []string
	for _, block := range blocks {
		if block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	return strings.Join(parts, "\n"), nil
}

// translateMessage converts an Anthropic message to OpenAI format. A user
// message carrying tool results expands into multiple messages.
func translateMessage(msg types.Message) ([]Message, error) {
	blocks, err := types.ParseMessageContent(msg.Content)
	if err != nil {
		return nil, err
	}

	switch msg.Role {
	case "user":
		return translateUserMessage(blocks)
	case "assistant":
		return translateAssistantMessage(blocks)
	default:
		return nil, fmt.Errorf("unknown role: %s", msg.Role)
	}
}

// translateUserMessage converts a user message to OpenAI format. Each
// tool_result block becomes its own role=tool message, emitted before the
// remaining user content.
func translateUserMessage(blocks []types.ContentBlock) ([]Message, error) {
	var messages []Message
	var contentParts []interface{}

	for _, block := range blocks {
		switch block.Type {
		case "text":
			contentParts = append(contentParts, map[string]interface{}{
				"type": "text",
				"text": block.Text,
			})
		case "image":
			if block.Source != nil {
				if imgPart := translateImage(block.Source); imgPart != nil {
					contentParts = append(contentParts, imgPart)
				}
			}
		case "tool_result":
			messages = append(messages, Message{
				Role:       "tool",
				Content:    extractToolResultContent(block),
				ToolCallID: block.ToolUseID,
			})
		}
	}

	if len(contentParts) > 0 {
		var content interface{}
		if len(contentParts) == 1 {
			// Single text block collapses to a plain string.
			if textPart, ok := contentParts[0].(map[string]interface{}); ok && textPart["type"] == "text" {
				content = textPart["text"]
			} else {
				content = contentParts
			}
		} else {
			content = contentParts
		}
		messages = append(messages, Message{
			Role:    "user",
			Content: content,
		})
	}

	return messages, nil
}

// translateAssistantMessage converts an assistant message to OpenAI format.
// Thinking blocks stay off the wire; their effect travels via the reasoning
// parameters instead.
func translateAssistantMessage(blocks []types.ContentBlock) ([]Message, error) {
	msg := Message{
		Role: "assistant",
	}

	var textParts []string
	var toolCalls []ToolCall

	for _, block := range blocks {
		switch block.Type {
		case "text":
			textParts = append(textParts, block.Text)
		case "thinking":
			// Dropped.
		case "tool_use":
			inputJSON, err := json.Marshal(block.Input)
			if err != nil {
				inputJSON = []byte("{}")
			}
			toolCalls = append(toolCalls, ToolCall{
				ID:   block.ID,
				Type: "function",
				Function: FunctionCall{
					Name:      block.Name,
					Arguments: string(inputJSON),
				},
			})
		}
	}

	if len(textParts) > 0 {
		msg.Content = strings.Join(textParts, "")
	}
	if len(toolCalls) > 0 {
		msg.ToolCalls = toolCalls
	}

	return []Message{msg}, nil
}

// translateImage converts an Anthropic image source to an OpenAI image part.
func translateImage(source *types.ImageSource) map[string]interface{} {
	if source == nil {
		return nil
	}

	var url string
	switch source.Type {
	case "base64":
		url = fmt.Sprintf("data:%s;base64,%s", source.MediaType, source.Data)
	case "url":
		url = source.URL
	default:
		return nil
	}

	return map[string]interface{}{
		"type": "image_url",
		"image_url": map[string]interface{}{
			"url": url,
		},
	}
}

// extractToolResultContent extracts a text representation of a tool result.
func extractToolResultContent(block types.ContentBlock) string {
	if len(block.Content) == 0 {
		return ""
	}

	var str string
	if err := json.Unmarshal(block.Content, &str); err == nil {
		return str
	}

	var contentBlocks []types.ContentBlock
	if err := json.Unmarshal(block.Content, &contentBlocks); err == nil {
		var parts []string
		for _, cb := range contentBlocks {
			if cb.Type == "text" {
				parts = append(parts, cb.Text)
			}
		}
		return strings.Join(parts, "\n")
	}

	// Fallback: raw JSON.
	return string(block.Content)
}

// translateToolChoice converts Anthropic tool_choice to OpenAI format.
func translateToolChoice(tc *types.ToolChoice) interface{} {
	if tc == nil {
		return nil
	}

	switch tc.Type {
	case "auto":
		return "auto"
	case "none":
		return "none"
	case "any":
		return "required"
	case "tool":
		return ToolChoiceFunction{
			Type: "function",
			Function: ToolChoiceFunctionID{
				Name: tc.Name,
			},
		}
	default:
		return "auto"
	}
}
