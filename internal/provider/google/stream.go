package google

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/AryanVBW/CommonsProxy-sub000/internal/config"
	"github.com/AryanVBW/CommonsProxy-sub000/pkg/types"
)

// streamTranslator converts cloud-code SSE chunks to canonical stream events.
// Block layout follows the upstream part stream: contiguous thought parts form
// one thinking block, contiguous text parts one text block, each functionCall
// its own tool_use block. A thinking block's signature is flushed as a
// signature_delta just before the block closes.
type streamTranslator struct {
	model     string
	messageID string

	started          bool
	blockIndex       int
	currentBlockType string // "", "thinking", "text", "tool_use"
	pendingSignature string
	stopReason       string

	inputTokens     int
	outputTokens    int
	cacheReadTokens int
}

func newStreamTranslator(model string) *streamTranslator {
	return &streamTranslator{
		model:      model,
		messageID:  generateMessageID(),
		stopReason: "end_turn",
	}
}

// translate processes one decoded chunk and returns the events it produces.
func (t *streamTranslator) translate(chunk *generateResponse) []types.StreamEvent {
	resp := chunk.inner()

	if resp.UsageMetadata != nil {
		if resp.UsageMetadata.PromptTokenCount != 0 {
			t.inputTokens = resp.UsageMetadata.PromptTokenCount
		}
		if resp.UsageMetadata.CandidatesTokenCount != 0 {
			t.outputTokens = resp.UsageMetadata.CandidatesTokenCount
		}
		if resp.UsageMetadata.CachedContentTokenCount != 0 {
			t.cacheReadTokens = resp.UsageMetadata.CachedContentTokenCount
		}
	}

	if len(resp.Candidates) == 0 {
		return nil
	}
	cand := resp.Candidates[0]

	var events []types.StreamEvent

	if !t.started && len(cand.Content.Parts) > 0 {
		t.started = true
		events = append(events, t.messageStartEvent())
	}

	for _, p := range cand.Content.Parts {
		events = append(events, t.translatePart(p)...)
	}

	// MAX_TOKENS always wins; STOP must not overwrite tool_use.
	switch cand.FinishReason {
	case "MAX_TOKENS":
		t.stopReason = "max_tokens"
	case "STOP":
		if t.stopReason != "tool_use" {
			t.stopReason = "end_turn"
		}
	}

	return events
}

// finish closes any open block and emits the closing events. Returns nil when
// no content ever arrived, which the relay treats as an empty response.
func (t *streamTranslator) finish() []types.StreamEvent {
	if !t.started {
		return nil
	}

	var events []types.StreamEvent
	if t.currentBlockType != "" {
		events = append(events, t.closeBlockEvents()...)
	}

	events = append(events, types.StreamEvent{
		Type: "message_delta",
		Delta: &types.Delta{
			StopReason: t.stopReason,
		},
		Usage: &types.Usage{
			OutputTokens:         t.outputTokens,
			CacheReadInputTokens: t.cacheReadTokens,
		},
	})
	events = append(events, types.StreamEvent{Type: "message_stop"})
	return events
}

func (t *streamTranslator) translatePart(p part) []types.StreamEvent {
	if p.FunctionCall != nil {
		return t.translateFunctionCall(p)
	}
	if p.Text == nil {
		return nil
	}
	if p.Thought {
		return t.translateThought(p)
	}
	return t.translateText(*p.Text)
}

func (t *streamTranslator) translateThought(p part) []types.StreamEvent {
	var events []types.StreamEvent

	if t.currentBlockType != "thinking" {
		events = append(events, t.closeBlockEvents()...)
		t.currentBlockType = "thinking"
		t.pendingSignature = ""
		events = append(events, types.StreamEvent{
			Type:         "content_block_start",
			Index:        t.blockIndex,
			ContentBlock: &types.ContentBlock{Type: "thinking", Thinking: ""},
		})
	}

	if len(p.ThoughtSignature) >= config.MinSignatureLength {
		t.pendingSignature = p.ThoughtSignature
	}

	events = append(events, types.StreamEvent{
		Type:  "content_block_delta",
		Index: t.blockIndex,
		Delta: &types.Delta{Type: "thinking_delta", Thinking: *p.Text},
	})
	return events
}

func (t *streamTranslator) translateText(text string) []types.StreamEvent {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var events []types.StreamEvent
	if t.currentBlockType != "text" {
		events = append(events, t.closeBlockEvents()...)
		t.currentBlockType = "text"
		events = append(events, types.StreamEvent{
			Type:         "content_block_start",
			Index:        t.blockIndex,
			ContentBlock: &types.ContentBlock{Type: "text", Text: ""},
		})
	}

	events = append(events, types.StreamEvent{
		Type:  "content_block_delta",
		Index: t.blockIndex,
		Delta: &types.Delta{Type: "text_delta", Text: text},
	})
	return events
}

func (t *streamTranslator) translateFunctionCall(p part) []types.StreamEvent {
	events := t.closeBlockEvents()
	t.currentBlockType = "tool_use"
	t.stopReason = "tool_use"

	fc := p.FunctionCall
	toolID := fc.ID
	if toolID == "" {
		toolID = generateToolID()
	}

	argsJSON := "{}"
	if fc.Args != nil {
		if b, err := json.Marshal(fc.Args); err == nil {
			argsJSON = string(b)
		}
	}

	events = append(events, types.StreamEvent{
		Type:  "content_block_start",
		Index: t.blockIndex,
		ContentBlock: &types.ContentBlock{
			Type:  "tool_use",
			ID:    toolID,
			Name:  fc.Name,
			Input: map[string]interface{}{},
		},
	})
	events = append(events, types.StreamEvent{
		Type:  "content_block_delta",
		Index: t.blockIndex,
		Delta: &types.Delta{Type: "input_json_delta", PartialJSON: argsJSON},
	})
	return events
}

// closeBlockEvents ends the current block, flushing a thinking signature
// first. The next block gets a fresh index.
func (t *streamTranslator) closeBlockEvents() []types.StreamEvent {
	if t.currentBlockType == "" {
		return nil
	}

	var events []types.StreamEvent
	if t.currentBlockType == "thinking" && t.pendingSignature != "" {
		events = append(events, types.StreamEvent{
			Type:  "content_block_delta",
			Index: t.blockIndex,
			Delta: &types.Delta{Type: "signature_delta", Signature: t.pendingSignature},
		})
		t.pendingSignature = ""
	}

	events = append(events, types.StreamEvent{
		Type:  "content_block_stop",
		Index: t.blockIndex,
	})
	t.blockIndex++
	t.currentBlockType = ""
	return events
}

func (t *streamTranslator) messageStartEvent() types.StreamEvent {
	return types.StreamEvent{
		Type: "message_start",
		Message: &types.AnthropicResponse{
			ID:      t.messageID,
			Type:    "message",
			Role:    "assistant",
			Content: []types.ContentBlock{},
			Model:   t.model,
			Usage: types.Usage{
				InputTokens:          t.inputTokens - t.cacheReadTokens,
				CacheReadInputTokens: t.cacheReadTokens,
			},
		},
	}
}

// parseSSEStream reads a cloud-code SSE body and emits canonical stream
// events. The channel closes at EOF; a stream that never carried content
// parts closes without emitting anything.
func parseSSEStream(ctx context.Context, body io.ReadCloser, model string) <-chan types.StreamEvent {
	events := make(chan types.StreamEvent, 100)

	go func() {
		defer close(events)
		defer body.Close()

		translator := newStreamTranslator(model)

		scanner := bufio.NewScanner(body)
		// Large buffer for big model outputs.
		buf := make([]byte, 64*1024)
		scanner.Buffer(buf, 10*1024*1024)

		send := func(evts []types.StreamEvent) bool {
			for _, evt := range evts {
				select {
				case events <- evt:
				case <-ctx.Done():
					return false
				}
			}
			return true
		}

		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			jsonText := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if jsonText == "" {
				continue
			}

			var chunk generateResponse
			if err := json.Unmarshal([]byte(jsonText), &chunk); err != nil {
				continue
			}

			if !send(translator.translate(&chunk)) {
				return
			}
		}

		send(translator.finish())
	}()

	return events
}
