package llm

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

const MockClientName = "mock"

// MockClient is a Client for testing.
type MockClient struct {
	// Configurable behavior
	ShouldFail bool
	FailAfter  int // Fail after N requests (0 = never)
	Response   string
	// Responses, when set, is consumed one entry per call before
	// falling back to Response.
	Responses []string

	// State
	requestCount atomic.Int64
	mu           sync.Mutex
	requests     []*Request
}

// NewMockClient creates a mock with a canned response.
func NewMockClient(response string) *MockClient {
	return &MockClient{Response: response}
}

// Name returns the client identifier.
func (c *MockClient) Name() string {
	return MockClientName
}

// Chat returns the next canned response.
func (c *MockClient) Chat(ctx context.Context, req *Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	n := c.requestCount.Add(1)
	if c.ShouldFail {
		return nil, errors.New("mock client failure")
	}
	if c.FailAfter > 0 && n > int64(c.FailAfter) {
		return nil, errors.New("mock client failure after limit")
	}

	c.mu.Lock()
	c.requests = append(c.requests, req)
	content := c.Response
	if idx := int(n) - 1; idx < len(c.Responses) {
		content = c.Responses[idx]
	}
	c.mu.Unlock()

	return &Result{
		Content:          content,
		PromptTokens:     len(splitWords(joinContents(req.Messages))),
		CompletionTokens: len(splitWords(content)),
	}, nil
}

// RequestCount returns how many calls were made.
func (c *MockClient) RequestCount() int {
	return int(c.requestCount.Load())
}

// Requests returns a copy of the captured requests.
func (c *MockClient) Requests() []*Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Request, len(c.requests))
	copy(out, c.requests)
	return out
}

func joinContents(msgs []Message) string {
	var s string
	for _, m := range msgs {
		s += m.Content + " "
	}
	return s
}
