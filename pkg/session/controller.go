// Package session drives the capture session lifecycle:
//
//	NotStarted -> Loading -> Active <-> Paused
//
// Resume pauses the underlying capture, waits a settle delay and runs it
// again. Loading ends when tracking has been normal for a number of
// consecutive signals or when the loading timeout expires.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/teslashibe/go-arlens/internal/log"
)

// Capture is the underlying camera capture and tracking capability.
type Capture interface {
	Run() error
	Pause() error
}

// Stopper cancels a pending timer.
type Stopper interface {
	Stop() bool
}

// Scheduler runs f after d. Implementations used in production must run f
// on the goroutine that owns the Controller.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Stopper
}

// Config holds lifecycle timing.
type Config struct {
	SettleDelay          time.Duration `yaml:"settle_delay"`           // Between pause and run on resume
	StableFramesRequired int           `yaml:"stable_frames_required"` // Consecutive normal tracking signals to end loading
	LoadingTimeout       time.Duration `yaml:"loading_timeout"`        // Loading ends after this even without stable tracking
}

// DefaultConfig returns the standard lifecycle timing.
func DefaultConfig() Config {
	return Config{
		SettleDelay:          200 * time.Millisecond,
		StableFramesRequired: 5,
		LoadingTimeout:       3 * time.Second,
	}
}

// Validate reports out-of-range values.
func (c Config) Validate() error {
	var errs []error
	if c.SettleDelay < 0 || c.SettleDelay > 5*time.Second {
		errs = append(errs, fmt.Errorf("session.settle_delay %v is out of range [0, 5s]", c.SettleDelay))
	}
	if c.StableFramesRequired < 1 {
		errs = append(errs, fmt.Errorf("session.stable_frames_required must be at least 1, got %d", c.StableFramesRequired))
	}
	if c.LoadingTimeout <= 0 {
		errs = append(errs, fmt.Errorf("session.loading_timeout must be positive, got %v", c.LoadingTimeout))
	}
	return errors.Join(errs...)
}

// Status is a point-in-time view of the controller.
type Status struct {
	State        State    `json:"state"`
	StableFrames int      `json:"stable_frames"`
	Tracking     Tracking `json:"tracking"`
}

// Controller is the session state machine. It is not safe for concurrent
// use: all calls, including scheduler callbacks, must come from one
// goroutine.
type Controller struct {
	cfg     Config
	capture Capture
	sched   Scheduler
	log     *slog.Logger

	state    State
	gen      uint64 // Bumped on every transition that invalidates timers
	running  bool   // Capture.Run succeeded for the current loading phase
	stable   int
	tracking Tracking

	settle  Stopper
	timeout Stopper

	onChange func(old, new State)
}

// New creates a controller in NotStarted.
func New(cfg Config, capture Capture, sched Scheduler, logger *slog.Logger) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if capture == nil {
		return nil, errors.New("session: nil capture")
	}
	if sched == nil {
		return nil, errors.New("session: nil scheduler")
	}
	return &Controller{
		cfg:     cfg,
		capture: capture,
		sched:   sched,
		log:     log.Or(logger, "session"),
	}, nil
}

// OnStateChange registers a callback invoked after every transition.
func (c *Controller) OnStateChange(fn func(old, new State)) {
	c.onChange = fn
}

// State returns the current state.
func (c *Controller) State() State {
	return c.state
}

// FramesAllowed reports whether frames should be sampled.
func (c *Controller) FramesAllowed() bool {
	return c.state == Active
}

// Status returns the current state with tracking details.
func (c *Controller) Status() Status {
	return Status{State: c.state, StableFrames: c.stable, Tracking: c.tracking}
}

// Resume starts or restarts the capture. It is a no-op while Loading or
// Active.
func (c *Controller) Resume() {
	if c.state == Loading || c.state == Active {
		return
	}

	prev := c.state
	c.invalidate()
	gen := c.gen

	if err := c.capture.Pause(); err != nil {
		c.log.Warn("capture pause before run failed", "error", err)
	}

	c.stable = 0
	c.setState(Loading)
	c.settle = c.sched.AfterFunc(c.cfg.SettleDelay, func() { c.settled(gen, prev) })
}

func (c *Controller) settled(gen uint64, prev State) {
	if gen != c.gen || c.state != Loading {
		return
	}

	if err := c.capture.Run(); err != nil {
		c.log.Error("capture run failed", "error", err)
		c.invalidate()
		c.setState(prev)
		return
	}

	c.running = true
	c.timeout = c.sched.AfterFunc(c.cfg.LoadingTimeout, func() { c.loadingExpired(gen) })
}

func (c *Controller) loadingExpired(gen uint64) {
	if gen != c.gen || c.state != Loading {
		return
	}
	c.log.Info("tracking did not stabilize, activating anyway",
		"stable_frames", c.stable,
		"tracking", c.tracking.State.String(),
		"reason", string(c.tracking.Reason))
	c.invalidate()
	c.setState(Active)
}

// OnTracking feeds a tracking signal. While loading, enough consecutive
// normal signals after the capture started end the loading phase.
func (c *Controller) OnTracking(t Tracking) {
	c.tracking = t
	if c.state != Loading || !c.running {
		return
	}

	if !t.IsNormal() {
		c.stable = 0
		return
	}

	c.stable++
	if c.stable >= c.cfg.StableFramesRequired {
		c.invalidate()
		c.setState(Active)
	}
}

// Pause stops the capture. It is a no-op while Paused or NotStarted. If the
// capture refuses to pause, the controller stays in its current state.
func (c *Controller) Pause() {
	if c.state == Paused || c.state == NotStarted {
		return
	}

	// Before the settle delay elapses the capture is already paused.
	if c.state == Active || c.running {
		if err := c.capture.Pause(); err != nil {
			c.log.Error("capture pause failed", "error", err, "state", c.state.String())
			return
		}
	}

	c.invalidate()
	c.setState(Paused)
}

// invalidate cancels pending timers and makes any that already fired stale.
func (c *Controller) invalidate() {
	c.gen++
	c.running = false
	if c.settle != nil {
		c.settle.Stop()
		c.settle = nil
	}
	if c.timeout != nil {
		c.timeout.Stop()
		c.timeout = nil
	}
}

func (c *Controller) setState(s State) {
	old := c.state
	if old == s {
		return
	}
	c.state = s
	c.log.Debug("session state changed", "from", old.String(), "to", s.String())
	if c.onChange != nil {
		c.onChange(old, s)
	}
}

// TimeScheduler schedules with time.AfterFunc. Callbacks run on timer
// goroutines, so it only suits controllers guarded by the caller.
type TimeScheduler struct{}

// AfterFunc implements Scheduler.
func (TimeScheduler) AfterFunc(d time.Duration, f func()) Stopper {
	return time.AfterFunc(d, f)
}
