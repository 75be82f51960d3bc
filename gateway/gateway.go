// Package gateway defines the generation boundary: the engine hands a
// prompt plus assembled memory context to a Generator and gets the
// assistant's reply back.
package gateway

import "context"

// Request carries everything a generator needs for one turn.
type Request struct {
	// SystemPrompt sets the assistant's role and ground rules.
	SystemPrompt string

	// MemoryContext is the rendered retrieval context. Empty when
	// nothing relevant was found.
	MemoryContext string

	// UserMessage is the user's message for this turn.
	UserMessage string
}

// System composes the full system prompt: the base prompt with the
// memory context appended when present.
func (r *Request) System() string {
	if r.MemoryContext == "" {
		return r.SystemPrompt
	}
	return r.SystemPrompt + "\n\n" + r.MemoryContext
}

// Reply is a generator's answer for one turn.
type Reply struct {
	// Text is the assistant's reply.
	Text string

	// Model names the model that produced the reply.
	Model string
}

// Generator produces a reply from a request.
//
// Implementations: MockGenerator (tests), AnthropicGateway,
// OpenAIGateway (production).
type Generator interface {
	Generate(ctx context.Context, req *Request) (*Reply, error)
}
