// Package sampler throttles camera frames down to the recognition cadence.
//
// Frames are never queued: a frame that arrives while a recognition is in
// flight, or sooner than the configured interval after the last dispatched
// frame, is dropped. A recognition that never completes is force-cleared
// after a safety window so the pipeline cannot starve.
package sampler

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-arlens/internal/log"
)

// Config holds sampling parameters.
type Config struct {
	Interval     time.Duration `yaml:"interval"`      // Minimum spacing between dispatched frames
	StuckTimeout time.Duration `yaml:"stuck_timeout"` // Force-clear an in-flight request after this long
}

// DefaultConfig samples at 5 Hz with a 1 second stuck window.
func DefaultConfig() Config {
	return Config{
		Interval:     200 * time.Millisecond,
		StuckTimeout: time.Second,
	}
}

// Validate reports out-of-range values.
func (c Config) Validate() error {
	var errs []error
	if c.Interval < 50*time.Millisecond || c.Interval > 5*time.Second {
		errs = append(errs, fmt.Errorf("sampler.interval %v is out of range [50ms, 5s]", c.Interval))
	}
	if c.StuckTimeout <= 0 {
		errs = append(errs, fmt.Errorf("sampler.stuck_timeout must be positive, got %v", c.StuckTimeout))
	}
	return errors.Join(errs...)
}

// Ticket identifies one dispatched recognition.
type Ticket uint64

// Stats counts sampling decisions.
type Stats struct {
	Accepted        uint64 `json:"accepted"`
	DroppedBusy     uint64 `json:"dropped_busy"`
	DroppedInterval uint64 `json:"dropped_interval"`
	StuckRecoveries uint64 `json:"stuck_recoveries"`
	InFlight        bool   `json:"in_flight"`
}

// Sampler decides which frames are dispatched for recognition. It is safe
// for concurrent use: the frame callback calls TryAcquire while the
// recognition worker calls Complete.
type Sampler struct {
	cfg Config
	log *slog.Logger

	mu           sync.Mutex
	inFlight     Ticket // zero when idle
	inFlightAt   time.Time
	lastDispatch time.Time
	next         Ticket

	// busy mirrors inFlight != 0 for lock-free reads.
	busy atomic.Bool

	accepted        atomic.Uint64
	droppedBusy     atomic.Uint64
	droppedInterval atomic.Uint64
	stuck           atomic.Uint64

	// OnStuck is called (outside the lock) when an in-flight request is
	// force-cleared.
	OnStuck func(age time.Duration)
}

// New creates a sampler.
func New(cfg Config, logger *slog.Logger) (*Sampler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Sampler{cfg: cfg, log: log.Or(logger, "sampler")}, nil
}

// Decision is the outcome of offering a frame to the sampler.
type Decision int

const (
	Accepted Decision = iota
	DroppedBusy
	DroppedInterval
)

func (d Decision) String() string {
	switch d {
	case Accepted:
		return "accepted"
	case DroppedBusy:
		return "busy"
	default:
		return "interval"
	}
}

// TryAcquire decides whether the frame captured at ts should be recognized.
// On success the returned ticket marks the request in flight; pass it to
// Complete once the recognizer returns.
func (s *Sampler) TryAcquire(ts time.Time) (Ticket, bool) {
	t, d := s.Decide(ts)
	return t, d == Accepted
}

// Decide is TryAcquire reporting why a frame was dropped.
func (s *Sampler) Decide(ts time.Time) (Ticket, Decision) {
	var stuckAge time.Duration

	s.mu.Lock()
	if s.inFlight != 0 {
		age := ts.Sub(s.inFlightAt)
		if age < s.cfg.StuckTimeout {
			s.mu.Unlock()
			s.droppedBusy.Add(1)
			return 0, DroppedBusy
		}
		// The recognizer never called back. Re-open the pipeline.
		stuckAge = age
		s.inFlight = 0
		s.busy.Store(false)
	}

	if !s.lastDispatch.IsZero() && ts.Sub(s.lastDispatch) < s.cfg.Interval {
		s.mu.Unlock()
		s.droppedInterval.Add(1)
		s.reportStuck(stuckAge)
		return 0, DroppedInterval
	}

	s.next++
	t := s.next
	s.inFlight = t
	s.inFlightAt = ts
	s.lastDispatch = ts
	s.busy.Store(true)
	s.mu.Unlock()

	s.accepted.Add(1)
	s.reportStuck(stuckAge)
	return t, Accepted
}

func (s *Sampler) reportStuck(age time.Duration) {
	if age == 0 {
		return
	}
	s.stuck.Add(1)
	s.log.Warn("recognition stuck in flight, force-clearing", "age", age)
	if s.OnStuck != nil {
		s.OnStuck(age)
	}
}

// Complete clears the in-flight flag if t is still the current request.
// Completions for requests that were already force-cleared are ignored.
func (s *Sampler) Complete(t Ticket) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t == 0 || s.inFlight != t {
		return false
	}
	s.inFlight = 0
	s.busy.Store(false)
	return true
}

// InFlight reports whether a recognition is currently outstanding.
func (s *Sampler) InFlight() bool {
	return s.busy.Load()
}

// Reset forgets the last dispatch time and any outstanding request.
func (s *Sampler) Reset() {
	s.mu.Lock()
	s.inFlight = 0
	s.inFlightAt = time.Time{}
	s.lastDispatch = time.Time{}
	s.busy.Store(false)
	s.mu.Unlock()
}

// Stats returns a snapshot of the counters.
func (s *Sampler) Stats() Stats {
	return Stats{
		Accepted:        s.accepted.Load(),
		DroppedBusy:     s.droppedBusy.Load(),
		DroppedInterval: s.droppedInterval.Load(),
		StuckRecoveries: s.stuck.Load(),
		InFlight:        s.busy.Load(),
	}
}

// Config returns the sampler's configuration.
func (s *Sampler) Config() Config {
	return s.cfg
}
