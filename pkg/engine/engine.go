// Package engine wires the sampler, mapper, overlay store and session
// controller into the live translation pipeline.
//
// A single goroutine started by [Engine.Run] owns the overlay store and the
// session controller. Every entry point posts a message to it, so the
// entry points may be called from any goroutine. Recognition and
// translation run on worker goroutines and post their results back.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-arlens/internal/log"
	"github.com/teslashibe/go-arlens/pkg/geometry"
	"github.com/teslashibe/go-arlens/pkg/observe"
	"github.com/teslashibe/go-arlens/pkg/overlay"
	"github.com/teslashibe/go-arlens/pkg/recognition"
	"github.com/teslashibe/go-arlens/pkg/sampler"
	"github.com/teslashibe/go-arlens/pkg/session"
	"github.com/teslashibe/go-arlens/pkg/translation"
)

// translationRetryDelay spaces out retries of a failed translation.
const translationRetryDelay = 2 * time.Second

// Frame is one camera frame offered by the capture.
type Frame struct {
	Data       []byte
	Format     recognition.Format
	Width      int
	Height     int
	ID         uint64
	CapturedAt time.Time
}

// Deps are the engine's collaborators.
type Deps struct {
	Recognizer recognition.Recognizer // Required
	Translator translation.Translator // Required unless Cache is set
	Cache      *translation.Cache     // Optional; built around Translator when nil
	Capture    session.Capture        // Required

	// Scheduler drives session timers. Callbacks are always delivered on
	// the engine goroutine. Defaults to session.TimeScheduler.
	Scheduler session.Scheduler

	Clock   func() time.Time // Defaults to time.Now
	Logger  *slog.Logger
	Metrics *observe.Metrics // Defaults to no-op instruments
}

// Engine is the translation overlay pipeline.
type Engine struct {
	cfg     Config
	log     *slog.Logger
	metrics *observe.Metrics
	now     func() time.Time

	recognizer recognition.Recognizer
	cache      *translation.Cache
	sampler    *sampler.Sampler
	mapper     geometry.Mapper

	// Owned by the Run goroutine.
	store      *overlay.Store
	session    *session.Controller
	pending    map[string]bool      // Keys with a translation in flight
	retryAfter map[string]time.Time // Keys whose translation recently failed
	seq        uint64

	inbox   chan func()
	ctx     context.Context
	cancel  context.CancelFunc
	started atomic.Bool

	workersMu sync.RWMutex
	closed    bool
	workers   sync.WaitGroup

	// Readable from any goroutine.
	framesAllowed atomic.Bool
	epoch         atomic.Uint64 // Bumped when in-flight results must be discarded
	display       atomic.Pointer[Display]
	roi           atomic.Pointer[geometry.Rect]
	snapshot      atomic.Pointer[Snapshot]
	sessionStatus atomic.Pointer[session.Status]

	subsMu  sync.Mutex
	subs    map[uint64]func(Snapshot)
	nextSub uint64
}

// New creates an engine. Nothing runs until Run is called.
func New(cfg Config, deps Deps) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Recognizer == nil {
		return nil, ErrNoRecognizer
	}
	if deps.Translator == nil && deps.Cache == nil {
		return nil, ErrNoTranslator
	}
	if deps.Capture == nil {
		return nil, ErrNoCapture
	}

	logger := log.Or(deps.Logger, "engine")
	sub := func(name string) *slog.Logger {
		if deps.Logger == nil {
			return nil
		}
		return deps.Logger.With("component", name)
	}

	e := &Engine{
		cfg:        cfg,
		log:        logger,
		metrics:    observe.Or(deps.Metrics),
		now:        deps.Clock,
		recognizer: deps.Recognizer,
		cache:      deps.Cache,
		pending:    make(map[string]bool),
		retryAfter: make(map[string]time.Time),
		inbox:      make(chan func(), cfg.InboxSize),
		subs:       make(map[uint64]func(Snapshot)),
	}
	if e.now == nil {
		e.now = time.Now
	}
	e.ctx, e.cancel = context.WithCancel(context.Background())

	var err error
	if e.cache == nil {
		if e.cache, err = translation.NewCache(deps.Translator, cfg.Cache); err != nil {
			return nil, err
		}
	}
	if e.sampler, err = sampler.New(cfg.Sampler, sub("sampler")); err != nil {
		return nil, err
	}
	e.sampler.OnStuck = func(time.Duration) {
		e.metrics.StuckRecoveries.Add(e.ctx, 1)
	}
	if e.mapper, err = geometry.NewMapper(cfg.Mapper); err != nil {
		return nil, err
	}
	if e.store, err = overlay.NewStore(cfg.Overlay); err != nil {
		return nil, err
	}

	sched := deps.Scheduler
	if sched == nil {
		sched = session.TimeScheduler{}
	}
	if e.session, err = session.New(cfg.Session, deps.Capture, actorScheduler{e: e, next: sched}, sub("session")); err != nil {
		return nil, err
	}
	e.session.OnStateChange(e.stateChanged)

	d := cfg.Display
	e.display.Store(&d)
	e.syncSession()
	e.snapshot.Store(&Snapshot{Session: session.NotStarted, Display: d, Overlays: []overlay.Overlay{}})

	return e, nil
}

// actorScheduler delivers session timer callbacks on the engine goroutine.
type actorScheduler struct {
	e    *Engine
	next session.Scheduler
}

func (s actorScheduler) AfterFunc(d time.Duration, f func()) session.Stopper {
	return s.next.AfterFunc(d, func() { s.e.post(f) })
}

// Run processes messages until ctx is cancelled, then tears the session
// down and waits for in-flight workers. It may be called once.
func (e *Engine) Run(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	stop := context.AfterFunc(ctx, e.cancel)
	defer stop()

	var sweep <-chan time.Time
	if e.cfg.Overlay.Staleness == overlay.LiveTracking {
		ticker := time.NewTicker(e.cfg.Overlay.SweepInterval)
		defer ticker.Stop()
		sweep = ticker.C
	}

	e.log.Info("engine started",
		"staleness", e.cfg.Overlay.Staleness,
		"sample_interval", e.cfg.Sampler.Interval,
		"max_overlays", e.cfg.Overlay.MaxOverlays,
		"source", e.cfg.SourceLanguage,
		"target", e.cfg.TargetLanguage)

	for {
		select {
		case <-e.ctx.Done():
			e.shutdown()
			return nil

		case f := <-e.inbox:
			f()

		case <-sweep:
			e.sweep()
		}
	}
}

func (e *Engine) shutdown() {
	e.teardown()

	e.workersMu.Lock()
	e.closed = true
	e.workersMu.Unlock()
	e.workers.Wait()

	e.log.Info("engine stopped")
}

// post queues f for the engine goroutine. It reports false once the engine
// has stopped.
func (e *Engine) post(f func()) bool {
	select {
	case e.inbox <- f:
		return true
	case <-e.ctx.Done():
		return false
	}
}

// spawn runs f on a tracked worker goroutine unless the engine has stopped.
func (e *Engine) spawn(f func()) bool {
	e.workersMu.RLock()
	defer e.workersMu.RUnlock()
	if e.closed || e.ctx.Err() != nil {
		return false
	}
	e.workers.Add(1)
	go func() {
		defer e.workers.Done()
		f()
	}()
	return true
}

// Sync waits until every message posted before it has been processed.
func (e *Engine) Sync(ctx context.Context) error {
	done := make(chan struct{})
	if !e.post(func() { close(done) }) {
		return ErrStopped
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.ctx.Done():
		return ErrStopped
	}
}

// --- Frames ---

// OnFrame offers a camera frame. It is called on the capture's delivery
// goroutine and never blocks on recognition.
func (e *Engine) OnFrame(f Frame) {
	ctx := e.ctx
	e.metrics.FramesReceived.Add(ctx, 1)

	if !e.framesAllowed.Load() {
		e.metrics.RecordFrameDropped(ctx, "session")
		return
	}
	if len(f.Data) == 0 {
		e.metrics.RecordFrameDropped(ctx, "empty")
		return
	}

	ticket, decision := e.sampler.Decide(e.now())
	if decision != sampler.Accepted {
		e.metrics.RecordFrameDropped(ctx, decision.String())
		return
	}

	// Epoch before display: a display change stores the display first.
	epoch := e.epoch.Load()
	display := *e.display.Load()
	var roi *geometry.Rect
	if r := e.roi.Load(); r != nil {
		c := *r
		roi = &c
	}

	if !e.spawn(func() { e.recognize(ticket, f, display, roi, epoch) }) {
		e.sampler.Complete(ticket)
		return
	}
	e.metrics.FramesSampled.Add(ctx, 1)
}

func (e *Engine) recognize(ticket sampler.Ticket, f Frame, d Display, roi *geometry.Rect, epoch uint64) {
	ctx, cancel := context.WithTimeout(e.ctx, e.cfg.RecognitionTimeout)
	defer cancel()

	start := time.Now()
	frags, err := e.recognizer.Recognize(ctx, recognition.Request{
		Frame:       f.Data,
		Format:      f.Format,
		Width:       f.Width,
		Height:      f.Height,
		Orientation: d.Orientation,
		ROI:         roi,
		FrameID:     f.ID,
		CapturedAt:  f.CapturedAt,
	})
	e.metrics.RecordRecognition(e.ctx, time.Since(start), err)
	e.sampler.Complete(ticket)

	if err != nil {
		if e.ctx.Err() != nil {
			return
		}
		e.log.Warn("recognition failed", "frame", f.ID, "error", err, "duration", time.Since(start))
		return
	}

	frags = recognition.Filter(frags, e.cfg.Filter)
	if len(frags) == 0 {
		return
	}
	e.post(func() { e.applyRecognition(frags, d, epoch) })
}

// applyRecognition maps, translates and upserts one frame's fragments.
func (e *Engine) applyRecognition(frags []recognition.Fragment, d Display, epoch uint64) {
	if epoch != e.epoch.Load() || !e.session.FramesAllowed() {
		e.log.Debug("discarding recognition results", "fragments", len(frags))
		return
	}

	now := e.now()
	changed := false
	for _, frag := range frags {
		p := e.mapper.Map(frag.Box, d.Orientation, d.Viewport)
		if p.Adjusted {
			e.log.Debug("fragment box clamped", "text", frag.Text, "box", frag.Box)
		}

		translated, ok := e.cache.Lookup(frag.Text, e.cfg.SourceLanguage, e.cfg.TargetLanguage)
		if !ok {
			translated = strings.TrimSpace(frag.Text)
			e.requestTranslation(frag.Text)
		}

		res, err := e.store.Upsert(overlay.Update{
			Text:           frag.Text,
			TranslatedText: translated,
			Pending:        !ok,
			Confidence:     frag.Confidence,
			Position:       p.Position,
			Size:           p.Size,
			Box:            frag.Box,
			Now:            now,
		})
		if err != nil {
			e.metrics.OverlaysRejected.Add(e.ctx, 1)
			e.log.Debug("overlay rejected", "text", frag.Text, "error", err)
			continue
		}

		if res.Action == overlay.ActionCreated {
			e.metrics.OverlaysCreated.Add(e.ctx, 1)
		} else {
			e.metrics.RecordOverlayMatched(e.ctx, res.Action.String())
		}
		e.metrics.RecordOverlaysRemoved(e.ctx, "evicted", len(res.Evicted))
		changed = true
	}

	if changed {
		e.publish()
	}
}

// requestTranslation starts a provider translation for text unless one is
// already running or recently failed. The result fills pending overlays.
func (e *Engine) requestTranslation(text string) {
	key := overlay.NormalizeKey(text)
	if e.pending[key] {
		return
	}
	if t, ok := e.retryAfter[key]; ok {
		if e.now().Before(t) {
			return
		}
		delete(e.retryAfter, key)
	}
	e.pending[key] = true

	src, tgt := e.cfg.SourceLanguage, e.cfg.TargetLanguage
	started := e.spawn(func() {
		ctx, cancel := context.WithTimeout(e.ctx, e.cfg.TranslationTimeout)
		defer cancel()

		start := time.Now()
		translated, err := e.cache.Translate(ctx, text, src, tgt)
		e.metrics.RecordTranslation(e.ctx, time.Since(start), err)

		e.post(func() { e.applyTranslation(key, translated, err) })
	})
	if !started {
		delete(e.pending, key)
	}
}

func (e *Engine) applyTranslation(key, translated string, err error) {
	delete(e.pending, key)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			e.log.Warn("translation failed", "text", key, "error", err)
		}
		e.retryAfter[key] = e.now().Add(translationRetryDelay)
		return
	}
	if n := e.store.ApplyTranslation(key, translated); n > 0 {
		e.publish()
	}
}

func (e *Engine) sweep() {
	removed := e.store.Sweep(e.now())
	if len(removed) == 0 {
		return
	}
	e.metrics.RecordOverlaysRemoved(e.ctx, "stale", len(removed))
	e.log.Debug("stale overlays removed", "count", len(removed))
	e.publish()
}

// --- Session ---

// OnTracking feeds a tracking-state signal from the capture.
func (e *Engine) OnTracking(t session.Tracking) {
	e.post(func() {
		e.session.OnTracking(t)
		e.syncSession()
	})
}

// Resume starts or restarts the capture session.
func (e *Engine) Resume() {
	e.post(func() {
		e.session.Resume()
		e.syncSession()
	})
}

// Pause stops frame delivery. Overlays are kept.
func (e *Engine) Pause() {
	e.post(func() {
		e.session.Pause()
		e.syncSession()
	})
}

// Clear removes every overlay.
func (e *Engine) Clear() {
	e.post(func() { e.clearOverlays("cleared") })
}

// Teardown pauses the session and removes every overlay, as when the AR
// view is closed.
func (e *Engine) Teardown() {
	e.post(e.teardown)
}

func (e *Engine) teardown() {
	e.session.Pause()
	e.syncSession()
	e.sampler.Reset()
	e.clearOverlays("teardown")
}

func (e *Engine) clearOverlays(reason string) {
	e.epoch.Add(1)
	n := e.store.Clear()
	e.metrics.RecordOverlaysRemoved(e.ctx, reason, n)
	if n > 0 {
		e.log.Debug("overlays cleared", "count", n, "reason", reason)
	}
	e.publish()
}

func (e *Engine) stateChanged(old, s session.State) {
	e.framesAllowed.Store(s == session.Active)
	if old == session.Active {
		e.epoch.Add(1)
	}
	e.metrics.RecordSessionTransition(e.ctx, old.String(), s.String())
	if s == session.Active {
		e.sampler.Reset()
	}
	e.log.Info("session", "from", old.String(), "to", s.String())
	e.syncSession()
	e.publish()
}

func (e *Engine) syncSession() {
	st := e.session.Status()
	e.sessionStatus.Store(&st)
}

// --- Display ---

// SetOrientation changes the device orientation. Overlays are placed again
// for the new orientation.
func (e *Engine) SetOrientation(o geometry.Orientation) error {
	d := *e.display.Load()
	d.Orientation = o
	return e.SetDisplay(d)
}

// SetViewport changes the render surface size. Overlays are placed again
// for the new size.
func (e *Engine) SetViewport(vp geometry.Viewport) error {
	d := *e.display.Load()
	d.Viewport = vp
	return e.SetDisplay(d)
}

// SetDisplay changes orientation and viewport together.
func (e *Engine) SetDisplay(d Display) error {
	if err := d.Validate(); err != nil {
		return err
	}
	old := e.display.Swap(&d)
	if old != nil && *old == d {
		return nil
	}
	e.epoch.Add(1)
	e.log.Info("display changed", "orientation", d.Orientation.String(), "width", d.Viewport.Width, "height", d.Viewport.Height)
	e.post(func() { e.remapOverlays(d) })
	return nil
}

// remapOverlays moves every overlay to where its box lands on d. Results
// recognized under the previous display were discarded by the epoch bump.
func (e *Engine) remapOverlays(d Display) {
	if cur := *e.display.Load(); cur != d {
		return // A later change is queued behind this one.
	}
	n := e.store.Remap(func(box geometry.Rect) geometry.Placement {
		return e.mapper.Map(box, d.Orientation, d.Viewport)
	})
	if n > 0 {
		e.log.Debug("overlays remapped", "count", n)
	}
	e.publish()
}

// SetROI restricts recognition to a normalized region. Nil restores the
// full frame.
func (e *Engine) SetROI(roi *geometry.Rect) error {
	if roi == nil {
		e.roi.Store(nil)
		return nil
	}
	r := roi.Clamped()
	if r.Width <= 0 || r.Height <= 0 {
		return ErrInvalidROI
	}
	e.roi.Store(&r)
	return nil
}

// ROI returns the current region of interest, or nil for the full frame.
func (e *Engine) ROI() *geometry.Rect {
	r := e.roi.Load()
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// Display returns the current display.
func (e *Engine) Display() Display {
	return *e.display.Load()
}

// --- Output ---

func (e *Engine) publish() {
	e.seq++
	snap := &Snapshot{
		Seq:      e.seq,
		Overlays: e.store.Snapshot(),
		Session:  e.session.State(),
		Display:  *e.display.Load(),
		At:       e.now(),
	}
	e.snapshot.Store(snap)
	e.metrics.ActiveOverlays.Record(e.ctx, int64(len(snap.Overlays)))

	e.subsMu.Lock()
	subs := make([]func(Snapshot), 0, len(e.subs))
	for _, fn := range e.subs {
		subs = append(subs, fn)
	}
	e.subsMu.Unlock()

	for _, fn := range subs {
		fn(*snap)
	}
}

// Snapshot returns the most recently published overlay set.
func (e *Engine) Snapshot() Snapshot {
	return *e.snapshot.Load()
}

// Subscribe registers fn to receive every published snapshot. fn runs on
// the engine goroutine and must not block. The returned function
// unsubscribes.
func (e *Engine) Subscribe(fn func(Snapshot)) (cancel func()) {
	e.subsMu.Lock()
	defer e.subsMu.Unlock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = fn
	return func() {
		e.subsMu.Lock()
		defer e.subsMu.Unlock()
		delete(e.subs, id)
	}
}

// Status reports the pipeline state.
func (e *Engine) Status() Status {
	s := Status{
		Sampler:        e.sampler.Stats(),
		Overlays:       len(e.snapshot.Load().Overlays),
		Staleness:      e.cfg.Overlay.Staleness,
		Display:        *e.display.Load(),
		ROI:            e.ROI(),
		Cache:          e.cache.Stats(),
		SourceLanguage: e.cfg.SourceLanguage,
		TargetLanguage: e.cfg.TargetLanguage,
	}
	if st := e.sessionStatus.Load(); st != nil {
		s.Session = *st
	}
	return s
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}
