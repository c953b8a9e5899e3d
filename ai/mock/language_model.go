package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/poiesic/newsdesk/ai"
)

// MockLanguageModel is a test double for ai.LanguageModel.
// It allows custom behavior injection via function fields.
// It is safe for concurrent use.
type MockLanguageModel struct {
	// GenerateFunc is called by Generate if set.
	// If nil, echoes the first line of the prompt.
	GenerateFunc func(ctx context.Context, req ai.GenerateRequest) (*ai.Generation, error)

	mu       sync.Mutex
	requests []ai.GenerateRequest
}

// NewMockLanguageModel creates a mock language model with default echo behavior.
func NewMockLanguageModel() *MockLanguageModel {
	return &MockLanguageModel{}
}

// Generate records the request and answers it.
func (m *MockLanguageModel) Generate(ctx context.Context, req ai.GenerateRequest) (*ai.Generation, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, req)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	line, _, _ := strings.Cut(req.Prompt, "\n")
	return &ai.Generation{
		Content:    "mock: " + line,
		TokensUsed: len(strings.Fields(req.Prompt)),
	}, nil
}

// CallCount returns the number of Generate calls.
func (m *MockLanguageModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Requests returns every request received, in call order.
func (m *MockLanguageModel) Requests() []ai.GenerateRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ai.GenerateRequest(nil), m.requests...)
}

// Reset clears recorded requests and injected behavior.
func (m *MockLanguageModel) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
	m.GenerateFunc = nil
}
