package llm

import (
	"context"
)

// MockClient is a hand-written test double for ChatClient and
// ToolCallingClient. Responses are popped in FIFO order.
type MockClient struct {
	Responses     []string
	ToolResponses []*ToolResponse
	Errors        []error
	Calls         []string // prompts seen, in order
	Model         string
}

// GetModel returns the configured mock model name.
func (m *MockClient) GetModel() string {
	if m.Model == "" {
		return "mock-model"
	}
	return m.Model
}

func (m *MockClient) nextError() error {
	if len(m.Errors) == 0 {
		return nil
	}
	err := m.Errors[0]
	m.Errors = m.Errors[1:]
	return err
}

// GenerateResponse pops the next canned response or error.
func (m *MockClient) GenerateResponse(ctx context.Context, prompt string, systemMessage string, temperature float64) (string, error) {
	m.Calls = append(m.Calls, prompt)
	if err := m.nextError(); err != nil {
		return "", err
	}
	if len(m.Responses) == 0 {
		return "", NewError(ErrorTypeUnknown, "mock exhausted", false, nil)
	}
	resp := m.Responses[0]
	m.Responses = m.Responses[1:]
	return resp, nil
}

// GenerateWithTools pops the next canned tool response or error.
func (m *MockClient) GenerateWithTools(ctx context.Context, messages []Message, tools []ToolDefinition, temperature float64) (*ToolResponse, error) {
	if len(messages) > 0 {
		m.Calls = append(m.Calls, messages[len(messages)-1].Content)
	}
	if err := m.nextError(); err != nil {
		return nil, err
	}
	if len(m.ToolResponses) == 0 {
		return nil, NewError(ErrorTypeUnknown, "mock exhausted", false, nil)
	}
	resp := m.ToolResponses[0]
	m.ToolResponses = m.ToolResponses[1:]
	return resp, nil
}

var (
	_ ChatClient        = (*MockClient)(nil)
	_ ToolCallingClient = (*MockClient)(nil)
)
