package openaichat

import (
	"encoding/json"

	"github.com/AryanVBW/CommonsProxy-sub000/pkg/types"
)

// TranslateResponse converts an OpenAI response to Anthropic format.
func TranslateResponse(resp *ChatCompletionResponse, model string) *types.AnthropicResponse {
	id := resp.ID
	if id == "" {
		id = GenerateMessageID()
	}

	if len(resp.Choices) == 0 {
		return &types.AnthropicResponse{
			ID:      id,
			Type:    "message",
			Role:    "assistant",
			Content: []types.ContentBlock{{Type: "text", Text: ""}},
			Model:   model,
			Usage:   translateUsage(resp.Usage),
		}
	}

	choice := resp.Choices[0]
	content := translateResponseContent(choice.Message)
	if len(content) == 0 {
		content = []types.ContentBlock{{Type: "text", Text: ""}}
	}

	return &types.AnthropicResponse{
		ID:         id,
		Type:       "message",
		Role:       "assistant",
		Content:    content,
		Model:      model,
		StopReason: translateStopReason(choice.FinishReason),
		Usage:      translateUsage(resp.Usage),
	}
}

// translateResponseContent converts an OpenAI message to Anthropic content
// blocks: thinking first, then text, then tool calls.
func translateResponseContent(msg Message) []types.ContentBlock {
	var blocks []types.ContentBlock

	if msg.ReasoningContent != "" {
		blocks = append(blocks, types.ContentBlock{
			Type:     "thinking",
			Thinking: msg.ReasoningContent,
		})
	}

	if content, ok := msg.Content.(string); ok && content != "" {
		blocks = append(blocks, types.ContentBlock{
			Type: "text",
			Text: content,
		})
	}

	for _, tc := range msg.ToolCalls {
		blocks = append(blocks, types.ContentBlock{
			Type:  "tool_use",
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: parseToolArguments(tc.Function.Arguments),
		})
	}

	return blocks
}

// parseToolArguments decodes a tool call's argument string. Malformed JSON is
// preserved under a _raw key rather than dropped.
func parseToolArguments(arguments string) map[string]interface{} {
	if arguments == "" {
		return map[string]interface{}{}
	}
	var input map[string]interface{}
	if err := json.Unmarshal([]byte(arguments), &input); err != nil || input == nil {
		return map[string]interface{}{"_raw": arguments}
	}
	return input
}

// translateUsage maps OpenAI token counts to Anthropic usage. Cached prompt
// tokens are reported separately and subtracted from input_tokens.
func translateUsage(usage *Usage) types.Usage {
	if usage == nil {
		return types.Usage{}
	}
	out := types.Usage{
		InputTokens:  usage.PromptTokens,
		OutputTokens: usage.CompletionTokens,
	}
	if usage.PromptTokensDetails != nil {
		out.CacheReadInputTokens = usage.PromptTokensDetails.CachedTokens
		out.InputTokens -= out.CacheReadInputTokens
	}
	return out
}

// translateStopReason converts an OpenAI finish_reason to an Anthropic
// stop_reason.
func translateStopReason(reason string) string {
	switch reason {
	case "stop":
		return "end_turn"
	case "length":
		return "max_tokens"
	case "tool_calls":
		return "tool_use"
	case "content_filter":
		return "end_turn"
	default:
		return "end_turn"
	}
}
