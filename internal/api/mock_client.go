package api

import (
	"context"
	"sync"

	apperrors "github.com/diogo/geminichat/internal/errors"
	"github.com/diogo/geminichat/internal/models"
)

// MockCall records one Send invocation
type MockCall struct {
	History   []models.Turn
	Message   string
	MaxTokens int
}

// MockClient is a scripted ChatClient for tests
type MockClient struct {
	mu sync.Mutex

	// Mock return values. Responses are consumed in order; when exhausted
	// Response is returned.
	Response  string
	Responses []string
	Err       error
	Model     string

	// Gate, when set, blocks Send until a value is received or ctx ends.
	Gate chan struct{}

	// Call recorders
	Calls []MockCall
}

// Ensure MockClient implements ChatClient
var _ ChatClient = (*MockClient)(nil)

func (m *MockClient) Send(ctx context.Context, history []models.Turn, message string, maxTokens int) (string, error) {
	m.mu.Lock()
	hist := make([]models.Turn, len(history))
	copy(hist, history)
	m.Calls = append(m.Calls, MockCall{History: hist, Message: message, MaxTokens: maxTokens})
	gate := m.Gate
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", apperrors.NewTransportError(0, false, ctx.Err())
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return "", m.Err
	}
	if len(m.Responses) > 0 {
		resp := m.Responses[0]
		m.Responses = m.Responses[1:]
		return resp, nil
	}
	return m.Response, nil
}

func (m *MockClient) ModelName() string {
	if m.Model == "" {
		return models.DefaultModel.Name
	}
	return m.Model
}

// CallCount returns how many times Send was called
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// LastCall returns the most recent Send invocation
func (m *MockClient) LastCall() (MockCall, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Calls) == 0 {
		return MockCall{}, false
	}
	return m.Calls[len(m.Calls)-1], true
}
