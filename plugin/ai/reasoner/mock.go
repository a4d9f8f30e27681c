package reasoner

import (
	"context"
	"sync"
)

// MockReasoner is a scriptable Reasoner for testing.
// Roles without a handler are served by RuleReasoner.
type MockReasoner struct {
	mu       sync.Mutex
	handlers map[Role]Func
	failures map[Role]error
	calls    map[Role]int
}

// NewMockReasoner creates a MockReasoner backed by the rule reasoner.
func NewMockReasoner() *MockReasoner {
	return &MockReasoner{
		handlers: make(map[Role]Func),
		failures: make(map[Role]error),
		calls:    make(map[Role]int),
	}
}

// On installs a handler for role.
func (m *MockReasoner) On(role Role, fn Func) *MockReasoner {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[role] = fn
	return m
}

// Fail makes every call for role return err.
func (m *MockReasoner) Fail(role Role, err error) *MockReasoner {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[role] = err
	return m
}

// Calls returns how often role was invoked.
func (m *MockReasoner) Calls(role Role) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[role]
}

func (m *MockReasoner) Reason(ctx context.Context, req *Request) (*Result, error) {
	m.mu.Lock()
	m.calls[req.Role]++
	fn, err := m.handlers[req.Role], m.failures[req.Role]
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if fn != nil {
		return fn(ctx, req)
	}
	return RuleReasoner{}.Reason(ctx, req)
}
