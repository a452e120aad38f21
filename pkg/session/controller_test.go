package session

import (
	"errors"
	"testing"
	"time"

	"github.com/teslashibe/go-arlens/internal/log"
)

type fixture struct {
	c       *Controller
	capture *MockCapture
	sched   *ManualScheduler
	changes [][2]State
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{capture: &MockCapture{}, sched: &ManualScheduler{}}
	c, err := New(DefaultConfig(), f.capture, f.sched, log.Discard())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.OnStateChange(func(old, new State) {
		f.changes = append(f.changes, [2]State{old, new})
	})
	f.c = c
	return f
}

var normal = Tracking{State: TrackingNormal}

// activate drives the fixture from NotStarted to Active via stable tracking.
func (f *fixture) activate(t *testing.T) {
	t.Helper()
	f.c.Resume()
	f.sched.Advance(200 * time.Millisecond)
	for i := 0; i < 5; i++ {
		f.c.OnTracking(normal)
	}
	if f.c.State() != Active {
		t.Fatalf("setup: state = %v, want active", f.c.State())
	}
}

func TestController_ResumeFromNotStarted(t *testing.T) {
	f := newFixture(t)

	f.c.Resume()
	if f.c.State() != Loading {
		t.Fatalf("state = %v, want loading", f.c.State())
	}
	if f.c.FramesAllowed() {
		t.Error("frames should not be allowed while loading")
	}
	if got := f.capture.CallCount("Run"); got != 0 {
		t.Errorf("Run called %d times before settle delay", got)
	}

	f.sched.Advance(199 * time.Millisecond)
	if got := f.capture.CallCount("Run"); got != 0 {
		t.Errorf("Run called %d times before settle delay", got)
	}
	f.sched.Advance(time.Millisecond)
	if got := f.capture.CallCount("Run"); got != 1 {
		t.Fatalf("Run called %d times after settle delay, want 1", got)
	}

	for i := 0; i < 4; i++ {
		f.c.OnTracking(normal)
	}
	if f.c.State() != Loading {
		t.Errorf("state = %v after 4 stable signals, want loading", f.c.State())
	}
	f.c.OnTracking(normal)
	if f.c.State() != Active {
		t.Errorf("state = %v after 5 stable signals, want active", f.c.State())
	}
	if !f.c.FramesAllowed() {
		t.Error("frames should be allowed when active")
	}

	calls := f.capture.Calls()
	if len(calls) != 2 || calls[0] != "Pause" || calls[1] != "Run" {
		t.Errorf("capture calls = %v, want [Pause Run]", calls)
	}
}

func TestController_ResumeIsIdempotent(t *testing.T) {
	f := newFixture(t)

	f.c.Resume()
	f.c.Resume()
	f.sched.Advance(time.Second)
	f.c.Resume()

	if got := f.capture.CallCount("Run"); got != 1 {
		t.Errorf("Run called %d times, want 1", got)
	}
	if got := f.capture.CallCount("Pause"); got != 1 {
		t.Errorf("Pause called %d times, want 1", got)
	}
}

func TestController_ResumeWhileActive(t *testing.T) {
	f := newFixture(t)
	f.activate(t)
	before := len(f.capture.Calls())

	f.c.Resume()
	if f.c.State() != Active {
		t.Errorf("state = %v, want active", f.c.State())
	}
	if len(f.capture.Calls()) != before {
		t.Errorf("Resume while active touched capture: %v", f.capture.Calls())
	}
}

func TestController_PauseIsIdempotent(t *testing.T) {
	f := newFixture(t)

	f.c.Pause()
	if f.c.State() != NotStarted {
		t.Errorf("pause before start: state = %v, want not_started", f.c.State())
	}

	f.activate(t)
	f.c.Pause()
	f.c.Pause()

	if f.c.State() != Paused {
		t.Errorf("state = %v, want paused", f.c.State())
	}
	// One Pause from resume, one from the first explicit pause.
	if got := f.capture.CallCount("Pause"); got != 2 {
		t.Errorf("Pause called %d times, want 2", got)
	}
}

func TestController_PauseResumeCycle(t *testing.T) {
	f := newFixture(t)
	f.activate(t)

	f.c.Pause()
	f.c.Resume()
	if f.c.State() != Loading {
		t.Fatalf("state = %v, want loading", f.c.State())
	}
	f.sched.Advance(200 * time.Millisecond)
	for i := 0; i < 5; i++ {
		f.c.OnTracking(normal)
	}
	if f.c.State() != Active {
		t.Errorf("state = %v, want active", f.c.State())
	}
	if got := f.capture.CallCount("Run"); got != 2 {
		t.Errorf("Run called %d times, want 2", got)
	}
}

func TestController_LoadingTimeout(t *testing.T) {
	f := newFixture(t)
	f.c.Resume()
	f.sched.Advance(200 * time.Millisecond)

	f.c.OnTracking(Tracking{State: TrackingLimited, Reason: ReasonInitializing})
	f.sched.Advance(2999 * time.Millisecond)
	if f.c.State() != Loading {
		t.Fatalf("state = %v before timeout, want loading", f.c.State())
	}

	f.sched.Advance(time.Millisecond)
	if f.c.State() != Active {
		t.Errorf("state = %v after timeout, want active", f.c.State())
	}
}

func TestController_UnstableTrackingResetsCount(t *testing.T) {
	f := newFixture(t)
	f.c.Resume()
	f.sched.Advance(200 * time.Millisecond)

	seq := []TrackingState{
		TrackingNormal, TrackingNormal, TrackingNormal, TrackingNormal,
		TrackingLimited,
		TrackingNormal, TrackingNormal, TrackingNormal, TrackingNormal,
	}
	for _, s := range seq {
		f.c.OnTracking(Tracking{State: s})
	}
	if f.c.State() != Loading {
		t.Fatalf("state = %v, want loading after interrupted streak", f.c.State())
	}
	if got := f.c.Status().StableFrames; got != 4 {
		t.Errorf("StableFrames = %d, want 4", got)
	}

	f.c.OnTracking(normal)
	if f.c.State() != Active {
		t.Errorf("state = %v, want active", f.c.State())
	}
}

func TestController_TrackingBeforeRunIgnored(t *testing.T) {
	f := newFixture(t)
	f.c.Resume()

	for i := 0; i < 10; i++ {
		f.c.OnTracking(normal)
	}
	if f.c.State() != Loading {
		t.Errorf("state = %v, want loading until capture runs", f.c.State())
	}
}

func TestController_PauseDuringSettleCancelsRun(t *testing.T) {
	f := newFixture(t)
	f.c.Resume()
	f.c.Pause()

	f.sched.Advance(5 * time.Second)
	if f.c.State() != Paused {
		t.Errorf("state = %v, want paused", f.c.State())
	}
	if got := f.capture.CallCount("Run"); got != 0 {
		t.Errorf("Run called %d times after pause during settle", got)
	}
	if f.sched.Pending() != 0 {
		t.Errorf("%d timers still pending", f.sched.Pending())
	}
}

func TestController_PauseDuringLoadingIgnoresTimeout(t *testing.T) {
	f := newFixture(t)
	f.c.Resume()
	f.sched.Advance(200 * time.Millisecond)
	f.c.Pause()

	f.sched.Advance(5 * time.Second)
	if f.c.State() != Paused {
		t.Errorf("state = %v, want paused", f.c.State())
	}
}

func TestController_RunErrorKeepsLastGoodState(t *testing.T) {
	f := newFixture(t)
	f.capture.RunFunc = func() error { return errors.New("camera busy") }

	f.c.Resume()
	f.sched.Advance(200 * time.Millisecond)

	if f.c.State() != NotStarted {
		t.Errorf("state = %v, want not_started", f.c.State())
	}

	f.capture.RunFunc = nil
	f.c.Resume()
	f.sched.Advance(200 * time.Millisecond)
	if f.c.State() != Loading {
		t.Errorf("retry: state = %v, want loading", f.c.State())
	}
}

func TestController_PauseErrorStaysActive(t *testing.T) {
	f := newFixture(t)
	f.activate(t)

	f.capture.PauseFunc = func() error { return errors.New("busy") }
	f.c.Pause()

	if f.c.State() != Active {
		t.Errorf("state = %v, want active", f.c.State())
	}
}

func TestController_StateChanges(t *testing.T) {
	f := newFixture(t)
	f.activate(t)
	f.c.Pause()

	want := [][2]State{
		{NotStarted, Loading},
		{Loading, Active},
		{Active, Paused},
	}
	if len(f.changes) != len(want) {
		t.Fatalf("changes = %v, want %v", f.changes, want)
	}
	for i := range want {
		if f.changes[i] != want[i] {
			t.Errorf("change %d = %v, want %v", i, f.changes[i], want[i])
		}
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"default", DefaultConfig(), false},
		{"zero settle", Config{StableFramesRequired: 1, LoadingTimeout: time.Second}, false},
		{"negative settle", Config{SettleDelay: -1, StableFramesRequired: 5, LoadingTimeout: time.Second}, true},
		{"no stable frames", Config{SettleDelay: 0, LoadingTimeout: time.Second}, true},
		{"no timeout", Config{SettleDelay: 0, StableFramesRequired: 5}, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestNew_RequiresDependencies(t *testing.T) {
	if _, err := New(DefaultConfig(), nil, &ManualScheduler{}, nil); err == nil {
		t.Error("expected error for nil capture")
	}
	if _, err := New(DefaultConfig(), &MockCapture{}, nil, nil); err == nil {
		t.Error("expected error for nil scheduler")
	}
}
