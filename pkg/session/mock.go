package session

import (
	"sort"
	"sync"
	"time"
)

// MockCapture implements Capture for testing.
type MockCapture struct {
	// RunFunc is called when Run is invoked.
	RunFunc func() error

	// PauseFunc is called when Pause is invoked.
	PauseFunc func() error

	mu    sync.Mutex
	calls []string
}

// Run calls RunFunc and records the call.
func (m *MockCapture) Run() error {
	m.record("Run")
	if m.RunFunc != nil {
		return m.RunFunc()
	}
	return nil
}

// Pause calls PauseFunc and records the call.
func (m *MockCapture) Pause() error {
	m.record("Pause")
	if m.PauseFunc != nil {
		return m.PauseFunc()
	}
	return nil
}

func (m *MockCapture) record(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, method)
}

// Calls returns the recorded method names in order.
func (m *MockCapture) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many times method was called.
func (m *MockCapture) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c == method {
			n++
		}
	}
	return n
}

// ManualScheduler is a Scheduler driven by Advance. Callbacks run on the
// goroutine calling Advance.
type ManualScheduler struct {
	now    time.Duration
	seq    int
	timers []*manualTimer
}

type manualTimer struct {
	at      time.Duration
	seq     int
	f       func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// AfterFunc implements Scheduler.
func (s *ManualScheduler) AfterFunc(d time.Duration, f func()) Stopper {
	s.seq++
	t := &manualTimer{at: s.now + d, seq: s.seq, f: f}
	s.timers = append(s.timers, t)
	return t
}

// Advance moves time forward by d, firing due timers in order. Timers
// scheduled by callbacks fire too if they fall due within d.
func (s *ManualScheduler) Advance(d time.Duration) {
	end := s.now + d
	for {
		t := s.nextDue(end)
		if t == nil {
			break
		}
		s.now = t.at
		t.fired = true
		t.f()
	}
	s.now = end
}

func (s *ManualScheduler) nextDue(end time.Duration) *manualTimer {
	var pending []*manualTimer
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			pending = append(pending, t)
		}
	}
	s.timers = pending
	if len(pending) == 0 {
		return nil
	}
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].at != pending[j].at {
			return pending[i].at < pending[j].at
		}
		return pending[i].seq < pending[j].seq
	})
	if pending[0].at > end {
		return nil
	}
	return pending[0]
}

// Pending returns the number of timers that have neither fired nor been
// stopped.
func (s *ManualScheduler) Pending() int {
	n := 0
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}
