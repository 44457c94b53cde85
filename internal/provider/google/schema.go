// Package google implements the Google cloud-code provider. Requests carry
// the Anthropic-shaped message list verbatim inside a cloud-code envelope;
// responses come back in the Generative AI candidates/parts shape and are
// converted to canonical blocks.
package google

import "encoding/json"

// envelope is the cloud-code request wrapper.
type envelope struct {
	Project     string          `json:"project"`
	Model       string          `json:"model"`
	Request     json.RawMessage `json:"request"`
	UserAgent   string          `json:"userAgent"`
	RequestType string          `json:"requestType"`
	RequestID   string          `json:"requestId"`
}

// generateResponse is a cloud-code response or SSE chunk. Streaming chunks
// arrive wrapped in a "response" envelope.
type generateResponse struct {
	Response      *generateResponse `json:"response,omitempty"`
	Candidates    []candidate       `json:"candidates,omitempty"`
	UsageMetadata *usageMetadata    `json:"usageMetadata,omitempty"`
}

// inner unwraps the SSE envelope when present.
func (r *generateResponse) inner() *generateResponse {
	if r.Response != nil {
		return r.Response
	}
	return r
}

type candidate struct {
	Content      candidateContent `json:"content"`
	FinishReason string           `json:"finishReason,omitempty"`
}

type candidateContent struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts,omitempty"`
}

// part is a union: thought text, plain text, or a function call.
type part struct {
	Text             *string       `json:"text,omitempty"`
	Thought          bool          `json:"thought,omitempty"`
	ThoughtSignature string        `json:"thoughtSignature,omitempty"`
	FunctionCall     *functionCall `json:"functionCall,omitempty"`
}

type functionCall struct {
	ID   string                 `json:"id,omitempty"`
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args,omitempty"`
}

type usageMetadata struct {
	PromptTokenCount        int `json:"promptTokenCount,omitempty"`
	CandidatesTokenCount    int `json:"candidatesTokenCount,omitempty"`
	CachedContentTokenCount int `json:"cachedContentTokenCount,omitempty"`
	TotalTokenCount         int `json:"totalTokenCount,omitempty"`
}
