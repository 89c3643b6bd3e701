package brain_test

import (
	"context"

	"basegraph.app/pagebot/common/llm"
	"basegraph.app/pagebot/internal/brain"
)

type mockLLM struct {
	answers  []brain.ReplyOutput
	errs     []error
	requests []llm.Request
}

func (m *mockLLM) Chat(_ context.Context, req llm.Request, result any) (*llm.Response, error) {
	i := len(m.requests)
	m.requests = append(m.requests, req)
	if i < len(m.errs) && m.errs[i] != nil {
		return nil, m.errs[i]
	}
	if i < len(m.answers) {
		*(result.(*brain.ReplyOutput)) = m.answers[i]
	}
	return &llm.Response{}, nil
}

func (m *mockLLM) Model() string {
	return "mock"
}
