package llm

import "context"

// MockClient is a test double for the LLM Client interface.
// Script responses are consumed in order; when the script is exhausted the
// fixed Response (and Err) are returned for every further call.
type MockClient struct {
	Response *Response
	Script   []*Response
	Err      error
	Calls    []string // records prompts sent
}

// Complete records the call and returns the next scripted response.
func (m *MockClient) Complete(ctx context.Context, prompt string) (*Response, error) {
	m.Calls = append(m.Calls, prompt)
	if len(m.Script) > 0 {
		next := m.Script[0]
		m.Script = m.Script[1:]
		return next, nil
	}
	return m.Response, m.Err
}
