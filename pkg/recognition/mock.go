package recognition

import (
	"context"
	"sync"
	"time"
)

// Mock implements Recognizer for testing.
type Mock struct {
	// RecognizeFunc is called when Recognize is invoked.
	RecognizeFunc func(ctx context.Context, req Request) ([]Fragment, error)

	// CloseFunc is called when Close is invoked.
	CloseFunc func() error

	mu    sync.Mutex
	calls []MockCall
}

// MockCall records a Recognize invocation.
type MockCall struct {
	Request Request
	Time    time.Time
}

// NewMock returns a mock that always recognizes frags.
func NewMock(frags ...Fragment) *Mock {
	return &Mock{
		RecognizeFunc: func(ctx context.Context, req Request) ([]Fragment, error) {
			out := make([]Fragment, len(frags))
			copy(out, frags)
			return out, nil
		},
	}
}

// Recognize calls RecognizeFunc and records the call.
func (m *Mock) Recognize(ctx context.Context, req Request) ([]Fragment, error) {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Request: req, Time: time.Now()})
	fn := m.RecognizeFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	return nil, WrapError("mock", ErrUnavailable)
}

// Close calls CloseFunc.
func (m *Mock) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// SetFunc replaces RecognizeFunc while calls may be in flight.
func (m *Mock) SetFunc(fn func(ctx context.Context, req Request) ([]Fragment, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RecognizeFunc = fn
}

// Calls returns all recorded calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of Recognize calls.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
