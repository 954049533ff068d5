package llm

import (
	"context"
	"strings"
	"sync"
)

// MockClient is a test double for Client. It records every request and
// replays a configured sequence of responses.
type MockClient struct {
	mu sync.Mutex

	// Calls holds every request received, in order.
	Calls []CompletionRequest

	responses    []string
	next         int
	err          error
	completeFunc func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// NewMockClient creates a mock that always returns the given content.
func NewMockClient(content string) *MockClient {
	return &MockClient{responses: []string{content}}
}

// WithResponses sets a response sequence. The mock cycles back to the
// first response after the last one.
func (m *MockClient) WithResponses(contents ...string) *MockClient {
	m.responses = contents
	m.next = 0
	return m
}

// WithError makes every call fail with err.
func (m *MockClient) WithError(err error) *MockClient {
	m.err = err
	return m
}

// WithCompleteFunc overrides the response logic entirely.
func (m *MockClient) WithCompleteFunc(fn func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)) *MockClient {
	m.completeFunc = fn
	return m
}

// Complete implements Client.
func (m *MockClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, req)

	if m.err != nil {
		return nil, m.err
	}
	if m.completeFunc != nil {
		return m.completeFunc(ctx, req)
	}

	content := ""
	if len(m.responses) > 0 {
		content = m.responses[m.next%len(m.responses)]
		m.next++
	}

	in := 0
	for _, msg := range req.Messages {
		in += approxTokens(msg.Content)
	}
	in += approxTokens(req.SystemPrompt)
	out := approxTokens(content)

	return &CompletionResponse{
		Content:      content,
		FinishReason: "stop",
		Model:        "mock",
		Usage: TokenUsage{
			InputTokens:  in,
			OutputTokens: out,
			TotalTokens:  in + out,
		},
	}, nil
}

// CallCount returns the number of calls received.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// LastCall returns the most recent request, or nil if none were made.
func (m *MockClient) LastCall() *CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Calls) == 0 {
		return nil
	}
	req := m.Calls[len(m.Calls)-1]
	return &req
}

// Reset clears recorded calls and rewinds the response sequence.
func (m *MockClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
	m.next = 0
}

// approxTokens is a rough token estimate so usage figures are nonzero.
func approxTokens(s string) int {
	n := len(strings.Fields(s))
	if n == 0 && s != "" {
		n = 1
	}
	return n + 1
}

var _ Client = (*MockClient)(nil)
