package google

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/AryanVBW/CommonsProxy-sub000/pkg/types"
)

func textChunk(text string) *generateResponse {
	return &generateResponse{
		Candidates: []candidate{{
			Content: candidateContent{Parts: []part{{Text: &text}}},
		}},
	}
}

func finishChunk(reason string) *generateResponse {
	return &generateResponse{
		Candidates: []candidate{{FinishReason: reason}},
	}
}

func eventTypes(events []types.StreamEvent) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}

func collectTypes(t *streamTranslator, chunks ...*generateResponse) []types.StreamEvent {
	var events []types.StreamEvent
	for _, c := range chunks {
		events = append(events, t.translate(c)...)
	}
	events = append(events, t.finish()...)
	return events
}

func TestStreamTranslator_TextOnly(t *testing.T) {
	tr := newStreamTranslator("gemini-3-flash")
	events := collectTypes(tr, textChunk("Hello"), textChunk(" world"), finishChunk("STOP"))

	want := []string{
		"message_start",
		"content_block_start",
		"content_block_delta",
		"content_block_delta",
		"content_block_stop",
		"message_delta",
		"message_stop",
	}
	got := eventTypes(events)
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d = %q, want %q (%v)", i, got[i], want[i], got)
		}
	}

	start := events[0]
	if start.Message == nil || start.Message.Model != "gemini-3-flash" {
		t.Errorf("message_start = %+v", start.Message)
	}
	delta := events[len(events)-2]
	if delta.Delta == nil || delta.Delta.StopReason != "end_turn" {
		t.Errorf("message_delta stop_reason = %+v", delta.Delta)
	}
}

func TestStreamTranslator_ThinkingSignatureFlushedBeforeStop(t *testing.T) {
	sig := strings.Repeat("x", 60)
	thought := "pondering"
	chunk := &generateResponse{
		Candidates: []candidate{{
			Content: candidateContent{Parts: []part{
				{Text: &thought, Thought: true, ThoughtSignature: sig},
			}},
		}},
	}

	tr := newStreamTranslator("m")
	events := collectTypes(tr, chunk, textChunk("answer"), finishChunk("STOP"))

	// The signature_delta must land on the thinking block (index 0) right
	// before its content_block_stop.
	var sigIdx, thinkStopIdx = -1, -1
	for i, e := range events {
		if e.Type == "content_block_delta" && e.Delta != nil && e.Delta.Type == "signature_delta" {
			sigIdx = i
			if e.Index != 0 {
				t.Errorf("signature_delta index = %d, want 0", e.Index)
			}
			if e.Delta.Signature != sig {
				t.Errorf("signature = %q", e.Delta.Signature)
			}
		}
		if e.Type == "content_block_stop" && e.Index == 0 && thinkStopIdx == -1 {
			thinkStopIdx = i
		}
	}
	if sigIdx == -1 {
		t.Fatalf("no signature_delta in %v", eventTypes(events))
	}
	if thinkStopIdx != sigIdx+1 {
		t.Errorf("signature_delta at %d, thinking stop at %d; want adjacent", sigIdx, thinkStopIdx)
	}

	// The text block follows on index 1.
	foundText := false
	for _, e := range events {
		if e.Type == "content_block_start" && e.Index == 1 {
			foundText = true
			if e.ContentBlock.Type != "text" {
				t.Errorf("block 1 type = %q", e.ContentBlock.Type)
			}
		}
	}
	if !foundText {
		t.Error("no text block started at index 1")
	}
}

func TestStreamTranslator_ShortSignatureNotFlushed(t *testing.T) {
	thought := "hm"
	chunk := &generateResponse{
		Candidates: []candidate{{
			Content: candidateContent{Parts: []part{
				{Text: &thought, Thought: true, ThoughtSignature: "short"},
			}},
		}},
	}

	tr := newStreamTranslator("m")
	events := collectTypes(tr, chunk, finishChunk("STOP"))
	for _, e := range events {
		if e.Delta != nil && e.Delta.Type == "signature_delta" {
			t.Fatalf("unexpected signature_delta for placeholder signature")
		}
	}
}

func TestStreamTranslator_FunctionCall(t *testing.T) {
	chunk := &generateResponse{
		Candidates: []candidate{{
			Content: candidateContent{Parts: []part{
				{FunctionCall: &functionCall{ID: "call_1", Name: "lookup", Args: map[string]interface{}{"q": "go"}}},
			}},
			FinishReason: "STOP",
		}},
	}

	tr := newStreamTranslator("m")
	events := collectTypes(tr, textChunk("checking"), chunk)

	var toolStart, toolDelta *types.StreamEvent
	for i := range events {
		e := &events[i]
		if e.Type == "content_block_start" && e.ContentBlock != nil && e.ContentBlock.Type == "tool_use" {
			toolStart = e
		}
		if e.Type == "content_block_delta" && e.Delta != nil && e.Delta.Type == "input_json_delta" {
			toolDelta = e
		}
	}
	if toolStart == nil || toolDelta == nil {
		t.Fatalf("missing tool events in %v", eventTypes(events))
	}
	if toolStart.Index != 1 {
		t.Errorf("tool block index = %d, want 1 (after the text block)", toolStart.Index)
	}
	if toolStart.ContentBlock.ID != "call_1" || toolStart.ContentBlock.Name != "lookup" {
		t.Errorf("tool block = %+v", toolStart.ContentBlock)
	}
	if toolDelta.Delta.PartialJSON != `{"q":"go"}` {
		t.Errorf("partial_json = %q", toolDelta.Delta.PartialJSON)
	}

	// STOP must not overwrite tool_use.
	last := events[len(events)-2]
	if last.Delta == nil || last.Delta.StopReason != "tool_use" {
		t.Errorf("stop_reason = %+v, want tool_use", last.Delta)
	}
}

func TestStreamTranslator_SynthesizesToolID(t *testing.T) {
	chunk := &generateResponse{
		Candidates: []candidate{{
			Content: candidateContent{Parts: []part{
				{FunctionCall: &functionCall{Name: "f"}},
			}},
		}},
	}

	tr := newStreamTranslator("m")
	events := collectTypes(tr, chunk, finishChunk("STOP"))
	for _, e := range events {
		if e.Type == "content_block_start" && e.ContentBlock.Type == "tool_use" {
			if !strings.HasPrefix(e.ContentBlock.ID, "toolu_") {
				t.Errorf("ID = %q, want generated toolu_ prefix", e.ContentBlock.ID)
			}
			return
		}
	}
	t.Fatal("no tool_use block")
}

func TestStreamTranslator_EmptyStreamEmitsNothing(t *testing.T) {
	tr := newStreamTranslator("m")
	events := collectTypes(tr, finishChunk("STOP"))
	if len(events) != 0 {
		t.Fatalf("got %v, want no events for a contentless stream", eventTypes(events))
	}
}

func TestStreamTranslator_UsageOnMessageDelta(t *testing.T) {
	usageChunk := &generateResponse{
		UsageMetadata: &usageMetadata{PromptTokenCount: 50, CandidatesTokenCount: 10, CachedContentTokenCount: 20},
	}

	tr := newStreamTranslator("m")
	events := collectTypes(tr, usageChunk, textChunk("hi"), finishChunk("STOP"))

	start := events[0]
	if start.Type != "message_start" {
		t.Fatalf("first event = %q", start.Type)
	}
	if start.Message.Usage.InputTokens != 30 || start.Message.Usage.CacheReadInputTokens != 20 {
		t.Errorf("message_start usage = %+v", start.Message.Usage)
	}

	delta := events[len(events)-2]
	if delta.Usage == nil || delta.Usage.OutputTokens != 10 || delta.Usage.CacheReadInputTokens != 20 {
		t.Errorf("message_delta usage = %+v", delta.Usage)
	}
}

func TestParseSSEStream(t *testing.T) {
	stream := strings.Join([]string{
		`data: {"response": {"candidates": [{"content": {"parts": [{"text": "Hel"}]}}]}}`,
		``,
		`data: {"response": {"candidates": [{"content": {"parts": [{"text": "lo"}]}, "finishReason": "STOP"}], "usageMetadata": {"promptTokenCount": 5, "candidatesTokenCount": 2}}}`,
		``,
	}, "\n")

	ch := parseSSEStream(context.Background(), io.NopCloser(strings.NewReader(stream)), "gemini-3-flash")

	var events []types.StreamEvent
	for e := range ch {
		events = append(events, e)
	}

	var text strings.Builder
	for _, e := range events {
		if e.Type == "content_block_delta" && e.Delta != nil && e.Delta.Type == "text_delta" {
			text.WriteString(e.Delta.Text)
		}
	}
	if text.String() != "Hello" {
		t.Errorf("reassembled text = %q", text.String())
	}
	if events[len(events)-1].Type != "message_stop" {
		t.Errorf("last event = %q", events[len(events)-1].Type)
	}
}

func TestParseSSEStream_NoContent(t *testing.T) {
	stream := "data: {\"response\": {\"usageMetadata\": {\"promptTokenCount\": 5}}}\n\n"
	ch := parseSSEStream(context.Background(), io.NopCloser(strings.NewReader(stream)), "m")

	count := 0
	for range ch {
		count++
	}
	if count != 0 {
		t.Fatalf("got %d events, want 0 for an empty stream", count)
	}
}

func TestParseSSEStream_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stream := "data: {\"candidates\": [{\"content\": {\"parts\": [{\"text\": \"x\"}]}}]}\n"
	ch := parseSSEStream(ctx, io.NopCloser(strings.NewReader(stream)), "m")

	// Channel must close even though nothing drains it.
	for range ch {
	}
}
