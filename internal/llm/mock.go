package llm

import (
	"context"
	"sync/atomic"
)

// MockGenerator is a scripted Generator for tests. Respond, when set, maps
// a prompt to a reply; otherwise Reply is returned verbatim.
type MockGenerator struct {
	Reply   string
	Respond func(prompt string) string
	Err     error
	calls   int64
}

// Generate returns the scripted reply and counts the call.
func (m *MockGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	atomic.AddInt64(&m.calls, 1)
	if m.Err != nil {
		return "", m.Err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if m.Respond != nil {
		return m.Respond(prompt), nil
	}
	return m.Reply, nil
}

// Calls returns how many times Generate was invoked.
func (m *MockGenerator) Calls() int {
	return int(atomic.LoadInt64(&m.calls))
}
