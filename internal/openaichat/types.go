// Package openaichat translates between the Anthropic Messages format and the
// OpenAI chat completions format. Every provider except google speaks some
// dialect of OpenAI chat, so this package is shared by the anthropic, openai,
// openrouter, github, copilot and codex adapters.
package openaichat

import (
	"strings"

	"github.com/google/uuid"
)

// ChatCompletionsPayload is an OpenAI-compatible chat completions request.
type ChatCompletionsPayload struct {
	Model               string      `json:"model"`
	Messages            []Message   `json:"messages"`
	MaxCompletionTokens int         `json:"max_completion_tokens,omitempty"`
	Temperature         *float64    `json:"temperature,omitempty"`
	TopP                *float64    `json:"top_p,omitempty"`
	Stream              bool        `json:"stream,omitempty"`
	Stop                []string    `json:"stop,omitempty"`
	Tools               []Tool      `json:"tools,omitempty"`
	ToolChoice          interface{} `json:"tool_choice,omitempty"` // "auto", "none", "required", or ToolChoiceFunction
	Store               bool        `json:"store"`
	ReasoningEffort     string      `json:"reasoning_effort,omitempty"` // "low", "medium", "high"
	ReasoningSummary    string      `json:"reasoning_summary,omitempty"`
	Include             []string    `json:"include,omitempty"`
}

// Message is a chat message in OpenAI format.
type Message struct {
	Role             string      `json:"role"` // "system", "user", "assistant", "tool"
	Content          interface{} `json:"content,omitempty"`
	Name             string      `json:"name,omitempty"`
	ToolCalls        []ToolCall  `json:"tool_calls,omitempty"`
	ToolCallID       string      `json:"tool_call_id,omitempty"`
	ReasoningContent string      `json:"reasoning_content,omitempty"`
}

// Tool is a function tool definition.
type Tool struct {
	Type     string      `json:"type"` // "function"
	Function FunctionDef `json:"function"`
}

// FunctionDef defines a function's signature.
type FunctionDef struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

// ToolCall is a tool invocation by the assistant.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"` // "function"
	Function FunctionCall `json:"function"`
}

// FunctionCall carries the function name and JSON-encoded arguments.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolChoiceFunction forces a specific function to be called.
type ToolChoiceFunction struct {
	Type     string               `json:"type"` // "function"
	Function ToolChoiceFunctionID `json:"function"`
}

// ToolChoiceFunctionID identifies a function by name.
type ToolChoiceFunctionID struct {
	Name string `json:"name"`
}

// ChatCompletionResponse is a non-streaming completion response.
type ChatCompletionResponse struct {
	ID                string   `json:"id"`
	Object            string   `json:"object"` // "chat.completion"
	Created           int64    `json:"created"`
	Model             string   `json:"model"`
	Choices           []Choice `json:"choices"`
	Usage             *Usage   `json:"usage,omitempty"`
	SystemFingerprint string   `json:"system_fingerprint,omitempty"`
}

// Choice is a completion choice.
type Choice struct {
	Index        int         `json:"index"`
	Message      Message     `json:"message"`
	FinishReason string      `json:"finish_reason"` // "stop", "length", "tool_calls", "content_filter"
	Logprobs     interface{} `json:"logprobs"`
}

// Usage carries token counts.
type Usage struct {
	PromptTokens        int                  `json:"prompt_tokens"`
	CompletionTokens    int                  `json:"completion_tokens"`
	TotalTokens         int                  `json:"total_tokens"`
	PromptTokensDetails *PromptTokensDetails `json:"prompt_tokens_details,omitempty"`
}

// PromptTokensDetails breaks out cached prompt tokens.
type PromptTokensDetails struct {
	CachedTokens int `json:"cached_tokens,omitempty"`
}

// ChatCompletionChunk is a streaming response chunk.
type ChatCompletionChunk struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"` // "chat.completion.chunk"
	Created int64          `json:"created"`
	Model   string         `json:"model"`
	Choices []StreamChoice `json:"choices"`
	Usage   *Usage         `json:"usage,omitempty"`
}

// StreamChoice is a streaming choice.
type StreamChoice struct {
	Index        int     `json:"index"`
	Delta        Delta   `json:"delta"`
	FinishReason *string `json:"finish_reason"`
}

// Delta is incremental content in a streaming chunk.
type Delta struct {
	Role             string          `json:"role,omitempty"`
	Content          string          `json:"content,omitempty"`
	ReasoningContent string          `json:"reasoning_content,omitempty"`
	ToolCalls        []ToolCallDelta `json:"tool_calls,omitempty"`
}

// ToolCallDelta is incremental tool call data.
type ToolCallDelta struct {
	Index    int                `json:"index"`
	ID       string             `json:"id,omitempty"`
	Type     string             `json:"type,omitempty"` // "function"
	Function *FunctionCallDelta `json:"function,omitempty"`
}

// FunctionCallDelta is incremental function call data.
type FunctionCallDelta struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// GenerateMessageID generates a unique Anthropic-style message ID.
func GenerateMessageID() string {
	return "msg_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:24]
}
