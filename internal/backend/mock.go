package backend

import "context"

// MockInvoker is a test double for Invoker.
type MockInvoker struct {
	BackendName string
	InvokeFunc  func(ctx context.Context, req Request) (<-chan Event, error)
}

func (m *MockInvoker) Name() string {
	if m.BackendName != "" {
		return m.BackendName
	}
	return "mock"
}

func (m *MockInvoker) Invoke(ctx context.Context, req Request) (<-chan Event, error) {
	if m.InvokeFunc != nil {
		return m.InvokeFunc(ctx, req)
	}
	ch := make(chan Event, 2)
	ch <- Event{Type: EventFragment, Text: "mock response"}
	ch <- Event{Type: EventDone, Result: &Result{Handle: "mock-session", Success: true}}
	close(ch)
	return ch, nil
}

// Script builds a MockInvoker that replays the given events for every
// invocation.
func Script(events ...Event) *MockInvoker {
	return &MockInvoker{
		InvokeFunc: func(ctx context.Context, req Request) (<-chan Event, error) {
			ch := make(chan Event, len(events))
			for _, ev := range events {
				ch <- ev
			}
			close(ch)
			return ch, nil
		},
	}
}
