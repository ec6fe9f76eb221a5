package llm

import (
	"context"
	"sync"
)

// MockClient implements Client for testing.
type MockClient struct {
	// Injectable behavior
	CompleteFunc func(ctx context.Context, system, prompt string, maxTokens int) (string, error)

	mu    sync.Mutex
	calls []CompleteCall
}

// CompleteCall records the arguments of a Complete invocation.
type CompleteCall struct {
	System    string
	Prompt    string
	MaxTokens int
}

// NewMockClient creates a mock client returning a fixed summary.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// Complete calls the injected CompleteFunc or returns a default response.
func (m *MockClient) Complete(ctx context.Context, system, prompt string, maxTokens int) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, CompleteCall{System: system, Prompt: prompt, MaxTokens: maxTokens})
	m.mu.Unlock()

	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, system, prompt, maxTokens)
	}
	return "mock summary", nil
}

// Calls returns a copy of the recorded invocations.
func (m *MockClient) Calls() []CompleteCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]CompleteCall(nil), m.calls...)
}

// CallCount returns the number of Complete invocations.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
