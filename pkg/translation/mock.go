package translation

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Mock implements Translator for testing. Texts found in Dictionary
// (lowercase keys) are translated; anything else comes back unchanged.
type Mock struct {
	Dictionary map[string]string

	// TranslateFunc, when set, replaces the dictionary lookup.
	TranslateFunc func(ctx context.Context, text, source, target string) (string, error)

	// Delay is waited before answering, honoring ctx.
	Delay time.Duration

	// Gate, when set, blocks every call until it is closed.
	Gate chan struct{}

	calls atomic.Int64
	mu    sync.Mutex
	texts []string
}

// NewMock returns a mock with the given dictionary.
func NewMock(dict map[string]string) *Mock {
	return &Mock{Dictionary: dict}
}

// Translate implements Translator.
func (m *Mock) Translate(ctx context.Context, text, source, target string) (string, error) {
	m.calls.Add(1)
	m.mu.Lock()
	m.texts = append(m.texts, text)
	m.mu.Unlock()

	if m.Gate != nil {
		select {
		case <-m.Gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	if m.TranslateFunc != nil {
		return m.TranslateFunc(ctx, text, source, target)
	}
	if out, ok := m.Dictionary[strings.ToLower(strings.TrimSpace(text))]; ok {
		return out, nil
	}
	return text, nil
}

// CallCount returns the number of Translate calls.
func (m *Mock) CallCount() int {
	return int(m.calls.Load())
}

// Texts returns the texts passed to Translate in order.
func (m *Mock) Texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.texts))
	copy(out, m.texts)
	return out
}
