package google

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/AryanVBW/CommonsProxy-sub000/internal/config"
	"github.com/AryanVBW/CommonsProxy-sub000/pkg/types"
)

// generateMessageID creates an Anthropic-style message ID.
func generateMessageID() string {
	return "msg_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:24]
}

// generateToolID creates a tool_use ID for function calls that arrive without
// one.
func generateToolID() string {
	return "toolu_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:24]
}

// convertResponse converts a cloud-code response to the canonical format.
func convertResponse(body []byte, model string) (*types.AnthropicResponse, error) {
	var resp generateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode cloud-code response: %w", err)
	}
	return buildAnthropicResponse(resp.inner(), model), nil
}

// buildAnthropicResponse maps candidates/parts to content blocks.
func buildAnthropicResponse(resp *generateResponse, model string) *types.AnthropicResponse {
	content := make([]types.ContentBlock, 0)
	hasToolCalls := false
	finishReason := ""

	if len(resp.Candidates) > 0 {
		cand := resp.Candidates[0]
		finishReason = cand.FinishReason

		for _, p := range cand.Content.Parts {
			block, isTool, ok := convertPart(p)
			if !ok {
				continue
			}
			content = append(content, block)
			if isTool {
				hasToolCalls = true
			}
		}
	}

	if len(content) == 0 {
		content = []types.ContentBlock{{Type: "text", Text: ""}}
	}

	promptTokens, outputTokens, cachedTokens := 0, 0, 0
	if resp.UsageMetadata != nil {
		promptTokens = resp.UsageMetadata.PromptTokenCount
		outputTokens = resp.UsageMetadata.CandidatesTokenCount
		cachedTokens = resp.UsageMetadata.CachedContentTokenCount
	}

	return &types.AnthropicResponse{
		ID:         generateMessageID(),
		Type:       "message",
		Role:       "assistant",
		Content:    content,
		Model:      model,
		StopReason: mapFinishReason(finishReason, hasToolCalls),
		Usage: types.Usage{
			InputTokens:          promptTokens - cachedTokens,
			OutputTokens:         outputTokens,
			CacheReadInputTokens: cachedTokens,
		},
	}
}

// convertPart converts one response part. Returns ok=false for parts that
// carry nothing (empty text).
func convertPart(p part) (block types.ContentBlock, isTool bool, ok bool) {
	if p.FunctionCall != nil {
		toolID := p.FunctionCall.ID
		if toolID == "" {
			toolID = generateToolID()
		}
		args := p.FunctionCall.Args
		if args == nil {
			args = make(map[string]interface{})
		}
		return types.ContentBlock{
			Type:  "tool_use",
			ID:    toolID,
			Name:  p.FunctionCall.Name,
			Input: args,
		}, true, true
	}

	if p.Text == nil {
		return types.ContentBlock{}, false, false
	}

	if p.Thought {
		block := types.ContentBlock{
			Type:     "thinking",
			Thinking: *p.Text,
		}
		// Short signatures are placeholders the API rejects on replay.
		if len(p.ThoughtSignature) >= config.MinSignatureLength {
			block.Signature = p.ThoughtSignature
		}
		return block, false, true
	}

	if *p.Text == "" {
		return types.ContentBlock{}, false, false
	}
	return types.ContentBlock{Type: "text", Text: *p.Text}, false, true
}

// mapFinishReason maps the cloud-code finish reason. MAX_TOKENS wins over
// everything; STOP must not overwrite a tool call.
func mapFinishReason(finishReason string, hasToolCalls bool) string {
	switch finishReason {
	case "MAX_TOKENS":
		return "max_tokens"
	case "TOOL_USE":
		return "tool_use"
	default:
		if hasToolCalls {
			return "tool_use"
		}
		return "end_turn"
	}
}
