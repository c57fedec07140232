// Package llm defines the single request/response shape every backend
// speaks (spec.md §6): a one-shot call, not a streaming-chunk client,
// per the resolved Open Question in DESIGN.md.
package llm

import "context"

type Message struct {
	Role string
	Text string
}

type Request struct {
	Model     string
	System    string
	Messages  []Message
	MaxTokens int
	// Temperature is left at the backend's default (0) unless set.
	Temperature float64
}

type Response struct {
	Text string
}

// Client is the shape every LLM backend must satisfy. pkg/gateway/live/session
// depends only on this interface, never on a concrete backend, so either the generic HTTP client or the Gemini client can be
// wired in behind it.
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}
