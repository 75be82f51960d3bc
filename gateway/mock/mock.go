// Package mock provides a scripted gateway.Generator for tests and
// examples.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/blockvoltcr7/mem0-ai-api/gateway"
)

// MockGenerator replays scripted replies and records every request it
// sees. Safe for concurrent use.
type MockGenerator struct {
	// Replies are returned in order; when exhausted (or empty) the
	// generator falls back to a canned acknowledgement.
	Replies []string

	// Err, when set, fails every Generate call.
	Err error

	// EchoContext appends the request's memory context to the reply,
	// so recall tests can assert on what the generator was shown.
	EchoContext bool

	mu       sync.Mutex
	requests []gateway.Request
	next     int
}

// New creates a mock generator with the given scripted replies.
func New(replies ...string) *MockGenerator {
	return &MockGenerator{Replies: replies}
}

// Generate returns the next scripted reply.
func (g *MockGenerator) Generate(ctx context.Context, req *gateway.Request) (*gateway.Reply, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.requests = append(g.requests, *req)

	if g.Err != nil {
		return nil, g.Err
	}

	text := "Understood."
	if g.next < len(g.Replies) {
		text = g.Replies[g.next]
		g.next++
	}
	if g.EchoContext && req.MemoryContext != "" {
		text = fmt.Sprintf("%s\n[context]\n%s", text, req.MemoryContext)
	}

	return &gateway.Reply{Text: text, Model: "mock"}, nil
}

// Requests returns a copy of every request seen so far.
func (g *MockGenerator) Requests() []gateway.Request {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]gateway.Request, len(g.requests))
	copy(out, g.requests)
	return out
}

// LastRequest returns the most recent request, or nil when none.
func (g *MockGenerator) LastRequest() *gateway.Request {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.requests) == 0 {
		return nil
	}
	req := g.requests[len(g.requests)-1]
	return &req
}
