package openaichat

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/AryanVBW/CommonsProxy-sub000/pkg/types"
)

// StreamTranslator converts an OpenAI chat completion chunk stream into the
// Anthropic event sequence. It tracks at most one thinking block, at most one
// text block, and any number of tool_use blocks keyed by the upstream tool
// call index. Tool blocks stay open until the finish reason arrives; every
// content_block_start gets exactly one content_block_stop before
// message_stop.
type StreamTranslator struct {
	model     string
	messageID string

	messageStartSent bool
	finished         bool
	nextIndex        int

	thinkingIndex   int
	thinkingStarted bool
	thinkingOpen    bool

	textIndex   int
	textStarted bool
	textOpen    bool

	tools     map[int]*toolCallState // upstream tool index -> state
	toolOrder []int

	usage *Usage // last usage seen, reported on message_delta
}

type toolCallState struct {
	ID         string
	Name       string
	BlockIndex int
}

// NewStreamTranslator creates a translator for a single streamed message.
func NewStreamTranslator(model string) *StreamTranslator {
	return &StreamTranslator{
		model:     model,
		messageID: GenerateMessageID(),
		tools:     make(map[int]*toolCallState),
	}
}

// Translate converts one upstream chunk into zero or more Anthropic events.
func (st *StreamTranslator) Translate(chunk *ChatCompletionChunk) []types.StreamEvent {
	if st.finished {
		return nil
	}

	if chunk.Usage != nil {
		st.usage = chunk.Usage
	}

	// Usage-only chunks have an empty choices array; they update the cached
	// usage for the eventual message_delta and emit nothing.
	if len(chunk.Choices) == 0 {
		return nil
	}

	var events []types.StreamEvent

	if !st.messageStartSent {
		events = append(events, st.messageStartEvent())
		st.messageStartSent = true
	}

	choice := chunk.Choices[0]
	delta := choice.Delta

	if delta.ReasoningContent != "" {
		events = append(events, st.handleThinkingDelta(delta.ReasoningContent)...)
	}

	if delta.Content != "" {
		events = append(events, st.handleTextDelta(delta.Content)...)
	}

	for _, toolCall := range delta.ToolCalls {
		events = append(events, st.handleToolCall(toolCall)...)
	}

	if choice.FinishReason != nil && *choice.FinishReason != "" {
		events = append(events, st.close(translateStopReason(*choice.FinishReason))...)
	}

	return events
}

// Finish flushes the close sequence when the upstream stream ended without a
// finish_reason. Returns nil if the message already closed or never started.
func (st *StreamTranslator) Finish() []types.StreamEvent {
	if st.finished || !st.messageStartSent {
		return nil
	}
	return st.close("end_turn")
}

// Started reports whether any content block was opened. The retry engine uses
// this to detect empty responses.
func (st *StreamTranslator) Started() bool {
	return st.nextIndex > 0
}

func (st *StreamTranslator) messageStartEvent() types.StreamEvent {
	usage := types.Usage{}
	if st.usage != nil {
		usage = translateUsage(st.usage)
		usage.OutputTokens = 0
	}
	return types.StreamEvent{
		Type: "message_start",
		Message: &types.AnthropicResponse{
			ID:      st.messageID,
			Type:    "message",
			Role:    "assistant",
			Content: []types.ContentBlock{},
			Model:   st.model,
			Usage:   usage,
		},
	}
}

func (st *StreamTranslator) handleThinkingDelta(thinking string) []types.StreamEvent {
	var events []types.StreamEvent

	if !st.thinkingStarted {
		st.thinkingIndex = st.nextIndex
		st.nextIndex++
		st.thinkingStarted = true
		st.thinkingOpen = true
		events = append(events, types.StreamEvent{
			Type:  "content_block_start",
			Index: st.thinkingIndex,
			ContentBlock: &types.ContentBlock{
				Type:     "thinking",
				Thinking: "",
			},
		})
	}

	events = append(events, types.StreamEvent{
		Type:  "content_block_delta",
		Index: st.thinkingIndex,
		Delta: &types.Delta{
			Type:     "thinking_delta",
			Thinking: thinking,
		},
	})

	return events
}

func (st *StreamTranslator) handleTextDelta(content string) []types.StreamEvent {
	var events []types.StreamEvent

	if st.thinkingOpen && !st.textStarted {
		events = append(events, types.StreamEvent{
			Type:  "content_block_stop",
			Index: st.thinkingIndex,
		})
		st.thinkingOpen = false
	}

	if !st.textStarted {
		st.textIndex = st.nextIndex
		st.nextIndex++
		st.textStarted = true
		st.textOpen = true
		events = append(events, types.StreamEvent{
			Type:  "content_block_start",
			Index: st.textIndex,
			ContentBlock: &types.ContentBlock{
				Type: "text",
				Text: "",
			},
		})
	}

	events = append(events, types.StreamEvent{
		Type:  "content_block_delta",
		Index: st.textIndex,
		Delta: &types.Delta{
			Type: "text_delta",
			Text: content,
		},
	})

	return events
}

func (st *StreamTranslator) handleToolCall(toolCall ToolCallDelta) []types.StreamEvent {
	var events []types.StreamEvent

	// Tool output ends any open prose block.
	if st.thinkingOpen {
		events = append(events, types.StreamEvent{
			Type:  "content_block_stop",
			Index: st.thinkingIndex,
		})
		st.thinkingOpen = false
	}
	if st.textOpen {
		events = append(events, types.StreamEvent{
			Type:  "content_block_stop",
			Index: st.textIndex,
		})
		st.textOpen = false
	}

	state, known := st.tools[toolCall.Index]
	if !known {
		id := toolCall.ID
		if id == "" {
			id = fmt.Sprintf("toolu_%d_%d", time.Now().UnixMilli(), toolCall.Index)
		}
		name := ""
		if toolCall.Function != nil {
			name = toolCall.Function.Name
		}
		state = &toolCallState{
			ID:         id,
			Name:       name,
			BlockIndex: st.nextIndex,
		}
		st.nextIndex++
		st.tools[toolCall.Index] = state
		st.toolOrder = append(st.toolOrder, toolCall.Index)

		events = append(events, types.StreamEvent{
			Type:  "content_block_start",
			Index: state.BlockIndex,
			ContentBlock: &types.ContentBlock{
				Type:  "tool_use",
				ID:    state.ID,
				Name:  state.Name,
				Input: map[string]interface{}{},
			},
		})
	}

	if toolCall.Function != nil && toolCall.Function.Arguments != "" {
		events = append(events, types.StreamEvent{
			Type:  "content_block_delta",
			Index: state.BlockIndex,
			Delta: &types.Delta{
				Type:        "input_json_delta",
				PartialJSON: toolCall.Function.Arguments,
			},
		})
	}

	return events
}

// close emits the closing sequence: stop every open block in order, then
// message_delta with the mapped stop reason and usage, then message_stop.
func (st *StreamTranslator) close(stopReason string) []types.StreamEvent {
	var events []types.StreamEvent

	if st.thinkingOpen {
		events = append(events, types.StreamEvent{
			Type:  "content_block_stop",
			Index: st.thinkingIndex,
		})
		st.thinkingOpen = false
	}
	if st.textOpen {
		events = append(events, types.StreamEvent{
			Type:  "content_block_stop",
			Index: st.textIndex,
		})
		st.textOpen = false
	}
	for _, idx := range st.toolOrder {
		events = append(events, types.StreamEvent{
			Type:  "content_block_stop",
			Index: st.tools[idx].BlockIndex,
		})
	}

	// A stream that finished without producing any block still gets a
	// well-formed (empty) text block.
	if st.nextIndex == 0 {
		events = append(events,
			types.StreamEvent{
				Type:  "content_block_start",
				Index: 0,
				ContentBlock: &types.ContentBlock{
					Type: "text",
					Text: "",
				},
			},
			types.StreamEvent{
				Type:  "content_block_stop",
				Index: 0,
			},
		)
		st.nextIndex = 1
	}

	var usage *types.Usage
	if st.usage != nil {
		u := translateUsage(st.usage)
		usage = &u
	}

	events = append(events,
		types.StreamEvent{
			Type: "message_delta",
			Delta: &types.Delta{
				StopReason: stopReason,
			},
			Usage: usage,
		},
		types.StreamEvent{
			Type: "message_stop",
		},
	)
	st.finished = true

	return events
}

// ParseSSEStream reads an OpenAI SSE stream and converts it to Anthropic
// events. The goroutine stops when the reader is drained, [DONE] arrives, or
// the context is cancelled.
func ParseSSEStream(ctx context.Context, reader io.Reader, model string) <-chan types.StreamEvent {
	events := make(chan types.StreamEvent, 100)

	go func() {
		defer close(events)

		state := NewStreamTranslator(model)
		scanner := bufio.NewScanner(reader)
		scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)

		for scanner.Scan() {
			select {
			case <-ctx.Done():
				return
			default:
			}

			line := scanner.Text()
			if line == "" || strings.HasPrefix(line, ":") {
				continue
			}
			if !strings.HasPrefix(line, "data: ") {
				continue
			}

			data := strings.TrimPrefix(line, "data: ")
			if data == "[DONE]" {
				break
			}

			var chunk ChatCompletionChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				continue
			}

			for _, event := range state.Translate(&chunk) {
				select {
				case events <- event:
				case <-ctx.Done():
					return
				}
			}
		}

		for _, event := range state.Finish() {
			select {
			case events <- event:
			case <-ctx.Done():
				return
			}
		}
	}()

	return events
}
