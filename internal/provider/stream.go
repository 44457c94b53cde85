package provider

import (
	"context"
	"io"

	"github.com/AryanVBW/CommonsProxy-sub000/internal/openaichat"
	"github.com/AryanVBW/CommonsProxy-sub000/pkg/types"
)

// StreamOpenAIEvents adapts an OpenAI SSE body into canonical events and
// closes the body when the stream ends or the context is cancelled. Shared by
// every adapter that speaks OpenAI chat.
func StreamOpenAIEvents(ctx context.Context, body io.ReadCloser, model string) <-chan types.StreamEvent {
	out := make(chan types.StreamEvent, 100)

	go func() {
		defer close(out)
		defer body.Close()

		for event := range openaichat.ParseSSEStream(ctx, body, model) {
			select {
			case out <- event:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}
