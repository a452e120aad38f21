package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-arlens/internal/log"
	"github.com/teslashibe/go-arlens/pkg/geometry"
	"github.com/teslashibe/go-arlens/pkg/overlay"
	"github.com/teslashibe/go-arlens/pkg/recognition"
	"github.com/teslashibe/go-arlens/pkg/session"
	"github.com/teslashibe/go-arlens/pkg/translation"
)

// fakeClock is a settable clock shared by the engine and the test.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var (
	boxMenu   = geometry.Rect{X: 0.1, Y: 0.8, Width: 0.3, Height: 0.05}
	boxPrecio = geometry.Rect{X: 0.5, Y: 0.2, Width: 0.3, Height: 0.05}
)

type harness struct {
	engine     *Engine
	clock      *fakeClock
	recognizer *recognition.Mock
	translator *translation.Mock
	capture    *session.MockCapture
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.SourceLanguage = "es"
	cfg.Session.SettleDelay = 0
	cfg.Session.LoadingTimeout = 20 * time.Millisecond
	return cfg
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		clock:      newFakeClock(),
		recognizer: recognition.NewMock(),
		translator: translation.NewMock(map[string]string{
			"menu":   "Menu",
			"precio": "Price",
		}),
		capture: &session.MockCapture{},
	}

	e, err := New(cfg, Deps{
		Recognizer: h.recognizer,
		Translator: h.translator,
		Capture:    h.capture,
		Clock:      h.clock.Now,
		Logger:     log.Discard(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.engine = e

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = e.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func (h *harness) activate(t *testing.T) {
	t.Helper()
	h.engine.Resume()
	waitFor(t, "active session", func() bool {
		return h.engine.Status().Session.State == session.Active
	})
}

func (h *harness) sync(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := h.engine.Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}
}

// frame advances the clock past the sample interval and offers a frame.
func (h *harness) frame(id uint64) {
	h.clock.Advance(250 * time.Millisecond)
	h.engine.OnFrame(Frame{Data: []byte{0xff, 0xd8}, Format: recognition.FormatJPEG, Width: 1080, Height: 1920, ID: id})
}

func (h *harness) recognizes(frags ...recognition.Fragment) {
	h.recognizer.SetFunc(func(ctx context.Context, req recognition.Request) ([]recognition.Fragment, error) {
		return frags, nil
	})
}

func (h *harness) waitSettled(t *testing.T) {
	t.Helper()
	waitFor(t, "recognition to complete", func() bool {
		return !h.engine.Status().Sampler.InFlight
	})
	h.sync(t)
}

func byKey(snap Snapshot) map[string]overlay.Overlay {
	out := make(map[string]overlay.Overlay, len(snap.Overlays))
	for _, o := range snap.Overlays {
		out[o.Key] = o
	}
	return out
}

func allTranslated(snap Snapshot, n int) bool {
	if len(snap.Overlays) != n {
		return false
	}
	for _, o := range snap.Overlays {
		if o.Pending {
			return false
		}
	}
	return true
}

func TestEngine_EndToEnd(t *testing.T) {
	h := newHarness(t, testConfig())
	h.activate(t)

	h.recognizes(
		recognition.Fragment{Text: "MENU", Confidence: 0.9, Box: boxMenu},
		recognition.Fragment{Text: "PRECIO", Confidence: 0.8, Box: boxPrecio},
	)
	h.frame(1)
	waitFor(t, "two translated overlays", func() bool {
		return allTranslated(h.engine.Snapshot(), 2)
	})

	first := byKey(h.engine.Snapshot())["menu"]

	// The same sign a couple of pixels to the right.
	moved := boxMenu
	moved.X += 0.005
	h.recognizes(
		recognition.Fragment{Text: "Menu", Confidence: 0.9, Box: moved},
		recognition.Fragment{Text: "PRECIO", Confidence: 0.8, Box: boxPrecio},
	)
	h.frame(2)
	h.waitSettled(t)

	snap := h.engine.Snapshot()
	if len(snap.Overlays) != 2 {
		t.Fatalf("overlays = %d, want 2", len(snap.Overlays))
	}
	got := byKey(snap)
	if got["menu"].TranslatedText != "Menu" || got["precio"].TranslatedText != "Price" {
		t.Errorf("translations = %q, %q", got["menu"].TranslatedText, got["precio"].TranslatedText)
	}
	if got["menu"].ID != first.ID {
		t.Error("moved text created a new overlay")
	}
	if !got["menu"].LastSeen.After(first.LastSeen) {
		t.Error("LastSeen was not refreshed")
	}
	if h.translator.CallCount() != 2 {
		t.Errorf("translator calls = %d, want 2", h.translator.CallCount())
	}
	if snap.Session != session.Active {
		t.Errorf("snapshot session = %v, want active", snap.Session)
	}
}

func TestEngine_OverlaysAreMappedToScreen(t *testing.T) {
	h := newHarness(t, testConfig())
	h.activate(t)

	h.recognizes(recognition.Fragment{Text: "MENU", Confidence: 0.9, Box: boxMenu})
	h.frame(1)
	waitFor(t, "overlay", func() bool { return len(h.engine.Snapshot().Overlays) == 1 })

	mapper, _ := geometry.NewMapper(testConfig().Mapper)
	d := testConfig().Display
	want := mapper.Map(boxMenu, d.Orientation, d.Viewport)

	o := h.engine.Snapshot().Overlays[0]
	if o.ScreenPosition != want.Position {
		t.Errorf("position = %+v, want %+v", o.ScreenPosition, want.Position)
	}
	if o.OriginalSize != want.Size {
		t.Errorf("size = %+v, want %+v", o.OriginalSize, want.Size)
	}
}

func TestEngine_DropsFramesUntilActive(t *testing.T) {
	h := newHarness(t, testConfig())
	h.recognizes(recognition.Fragment{Text: "MENU", Confidence: 0.9, Box: boxMenu})

	h.frame(1)
	h.frame(2)
	h.sync(t)

	if n := h.recognizer.CallCount(); n != 0 {
		t.Errorf("recognizer calls = %d, want 0 before the session is active", n)
	}
	if st := h.engine.Status(); st.Sampler.Accepted != 0 {
		t.Errorf("accepted = %d, want 0", st.Sampler.Accepted)
	}
}

func TestEngine_SamplerBusy(t *testing.T) {
	h := newHarness(t, testConfig())
	h.activate(t)

	release := make(chan struct{})
	h.recognizer.SetFunc(func(ctx context.Context, req recognition.Request) ([]recognition.Fragment, error) {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return nil, nil
	})

	h.frame(1)
	waitFor(t, "in-flight recognition", func() bool { return h.recognizer.CallCount() == 1 })
	h.frame(2)
	h.frame(3)
	close(release)
	h.waitSettled(t)

	h.frame(4)
	h.waitSettled(t)

	// Same clock reading as the last dispatch.
	h.engine.OnFrame(Frame{Data: []byte{1}, Width: 10, Height: 10, ID: 5})
	h.sync(t)

	st := h.engine.Status().Sampler
	if st.Accepted != 2 || st.DroppedBusy != 2 || st.DroppedInterval != 1 {
		t.Errorf("stats = %+v, want 2 accepted, 2 busy, 1 interval", st)
	}
	if n := h.recognizer.CallCount(); n != 2 {
		t.Errorf("recognizer calls = %d, want 2", n)
	}
}

func TestEngine_PauseDiscardsInFlightResults(t *testing.T) {
	h := newHarness(t, testConfig())
	h.activate(t)

	release := make(chan struct{})
	h.recognizer.SetFunc(func(ctx context.Context, req recognition.Request) ([]recognition.Fragment, error) {
		<-release
		return []recognition.Fragment{{Text: "MENU", Confidence: 0.9, Box: boxMenu}}, nil
	})

	h.frame(1)
	waitFor(t, "in-flight recognition", func() bool { return h.recognizer.CallCount() == 1 })
	h.engine.Pause()
	h.sync(t)
	close(release)
	h.waitSettled(t)

	if n := len(h.engine.Snapshot().Overlays); n != 0 {
		t.Errorf("overlays = %d, want results discarded after pause", n)
	}
	if st := h.engine.Status().Session.State; st != session.Paused {
		t.Errorf("state = %v, want paused", st)
	}

	h.frame(2)
	h.sync(t)
	if n := h.recognizer.CallCount(); n != 1 {
		t.Errorf("recognizer calls = %d, want no dispatch while paused", n)
	}
}

func TestEngine_ResumeIsIdempotent(t *testing.T) {
	h := newHarness(t, testConfig())
	h.activate(t)

	h.engine.Resume()
	h.engine.Resume()
	h.sync(t)

	if n := h.capture.CallCount("Run"); n != 1 {
		t.Errorf("Run calls = %d, want 1", n)
	}
}

func TestEngine_TrackingEndsLoading(t *testing.T) {
	cfg := testConfig()
	cfg.Session.LoadingTimeout = time.Minute
	cfg.Session.StableFramesRequired = 3
	h := newHarness(t, cfg)

	h.engine.Resume()
	waitFor(t, "capture run", func() bool { return h.capture.CallCount("Run") == 1 })
	h.sync(t)

	for i := 0; i < 3; i++ {
		h.engine.OnTracking(session.Tracking{State: session.TrackingNormal})
	}
	h.sync(t)

	if st := h.engine.Status().Session; st.State != session.Active {
		t.Errorf("state = %v after stable tracking, want active", st.State)
	}
}

func TestEngine_DisplayChangeRemapsOverlays(t *testing.T) {
	pinboard := PinboardConfig()
	pinboard.SourceLanguage = "es"
	pinboard.Session = testConfig().Session

	tests := []struct {
		name string
		cfg  Config
	}{
		{"live", testConfig()},
		{"pinboard", pinboard},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.cfg)
			h.activate(t)

			h.recognizes(
				recognition.Fragment{Text: "MENU", Confidence: 0.9, Box: boxMenu},
				recognition.Fragment{Text: "PRECIO", Confidence: 0.9, Box: boxPrecio},
			)
			h.frame(1)
			waitFor(t, "overlays", func() bool { return len(h.engine.Snapshot().Overlays) == 2 })

			if err := h.engine.SetOrientation(geometry.LandscapeLeft); err != nil {
				t.Fatalf("SetOrientation: %v", err)
			}
			h.sync(t)

			snap := h.engine.Snapshot()
			if snap.Display.Orientation != geometry.LandscapeLeft {
				t.Errorf("snapshot orientation = %v", snap.Display.Orientation)
			}
			if len(snap.Overlays) != 2 {
				t.Fatalf("overlays = %d after rotation, want 2", len(snap.Overlays))
			}

			mapper, _ := geometry.NewMapper(tt.cfg.Mapper)
			vp := snap.Display.Viewport
			for key, box := range map[string]geometry.Rect{"menu": boxMenu, "precio": boxPrecio} {
				o, ok := byKey(snap)[key]
				if !ok {
					t.Fatalf("overlay %q missing", key)
				}
				want := mapper.Map(box, geometry.LandscapeLeft, vp)
				if o.ScreenPosition != want.Position {
					t.Errorf("%s position = %+v, want %+v", key, o.ScreenPosition, want.Position)
				}
				if o.OriginalSize != want.Size {
					t.Errorf("%s size = %+v, want %+v", key, o.OriginalSize, want.Size)
				}
			}

			seq := snap.Seq
			if err := h.engine.SetOrientation(geometry.LandscapeLeft); err != nil {
				t.Fatalf("SetOrientation: %v", err)
			}
			h.sync(t)
			if h.engine.Snapshot().Seq != seq {
				t.Error("unchanged orientation republished")
			}
		})
	}
}

func TestEngine_SetDisplayValidation(t *testing.T) {
	h := newHarness(t, testConfig())

	tests := []struct {
		name    string
		display Display
		wantErr error
	}{
		{"valid", Display{Orientation: geometry.Portrait, Viewport: geometry.Viewport{Width: 400, Height: 800}}, nil},
		{"zero width", Display{Orientation: geometry.Portrait, Viewport: geometry.Viewport{Width: 0, Height: 800}}, ErrInvalidViewport},
		{"bad orientation", Display{Orientation: geometry.Orientation(42), Viewport: geometry.Viewport{Width: 400, Height: 800}}, ErrInvalidOrientation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.engine.SetDisplay(tt.display)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("SetDisplay() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if got := h.engine.Display().Viewport.Width; got != 400 {
		t.Errorf("viewport width = %v, want the last valid display", got)
	}
}

func TestEngine_ClearAndTeardown(t *testing.T) {
	h := newHarness(t, testConfig())
	h.activate(t)

	h.recognizes(recognition.Fragment{Text: "MENU", Confidence: 0.9, Box: boxMenu})
	h.frame(1)
	waitFor(t, "overlay", func() bool { return len(h.engine.Snapshot().Overlays) == 1 })

	h.engine.Clear()
	h.sync(t)
	if n := len(h.engine.Snapshot().Overlays); n != 0 {
		t.Fatalf("overlays = %d after Clear, want 0", n)
	}
	if st := h.engine.Status().Session.State; st != session.Active {
		t.Errorf("Clear changed session state to %v", st)
	}

	h.frame(2)
	waitFor(t, "overlay after clear", func() bool { return len(h.engine.Snapshot().Overlays) == 1 })

	h.engine.Teardown()
	h.sync(t)
	if n := len(h.engine.Snapshot().Overlays); n != 0 {
		t.Errorf("overlays = %d after Teardown, want 0", n)
	}
	if st := h.engine.Status().Session.State; st != session.Paused {
		t.Errorf("state = %v after Teardown, want paused", st)
	}
	if n := h.capture.CallCount("Pause"); n < 2 {
		t.Errorf("Pause calls = %d, want the capture paused on teardown", n)
	}
}

func TestEngine_CachedTranslationIsImmediate(t *testing.T) {
	cfg := testConfig()
	tr := translation.NewMock(map[string]string{"salida": "Exit"})
	cache, err := translation.NewCache(tr, cfg.Cache)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	if _, err := cache.Translate(context.Background(), "salida", "es", "en"); err != nil {
		t.Fatalf("warm cache: %v", err)
	}

	rec := recognition.NewMock(recognition.Fragment{Text: "SALIDA", Confidence: 0.9, Box: boxMenu})
	e, err := New(cfg, Deps{Recognizer: rec, Cache: cache, Capture: &session.MockCapture{}, Logger: log.Discard()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var mu sync.Mutex
	var first *Snapshot
	e.Subscribe(func(s Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		if first == nil && len(s.Overlays) > 0 {
			first = &s
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = e.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	e.Resume()
	waitFor(t, "active session", func() bool { return e.Status().Session.State == session.Active })
	e.OnFrame(Frame{Data: []byte{1}, Width: 10, Height: 10})
	waitFor(t, "overlay", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return first != nil
	})

	mu.Lock()
	o := first.Overlays[0]
	mu.Unlock()
	if o.Pending || o.TranslatedText != "Exit" {
		t.Errorf("first published overlay = %q pending=%v, want Exit", o.TranslatedText, o.Pending)
	}
	if tr.CallCount() != 1 {
		t.Errorf("translator calls = %d, want only the warm-up", tr.CallCount())
	}
}

func TestEngine_TranslationFailureKeepsPlaceholder(t *testing.T) {
	h := newHarness(t, testConfig())
	h.translator.TranslateFunc = func(ctx context.Context, text, source, target string) (string, error) {
		return "", translation.ErrProviderUnavailable
	}
	h.activate(t)

	h.recognizes(recognition.Fragment{Text: "MENU", Confidence: 0.9, Box: boxMenu})
	h.frame(1)
	waitFor(t, "translation attempt", func() bool { return h.translator.CallCount() == 1 })
	h.waitSettled(t)

	// A second sighting inside the retry delay does not hit the provider.
	h.frame(2)
	h.waitSettled(t)
	h.sync(t)

	snap := h.engine.Snapshot()
	if len(snap.Overlays) != 1 {
		t.Fatalf("overlays = %d, want 1", len(snap.Overlays))
	}
	o := snap.Overlays[0]
	if !o.Pending || o.TranslatedText != "MENU" {
		t.Errorf("overlay = %q pending=%v, want the original text pending", o.TranslatedText, o.Pending)
	}
	if n := h.translator.CallCount(); n != 1 {
		t.Errorf("translator calls = %d, want 1 inside the retry delay", n)
	}
}

func TestEngine_Sweep(t *testing.T) {
	tests := []struct {
		name      string
		staleness overlay.StalenessMode
		want      int
	}{
		{"live tracking removes stale", overlay.LiveTracking, 0},
		{"pinboard keeps", overlay.Pinboard, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.Overlay.Staleness = tt.staleness
			h := newHarness(t, cfg)
			h.activate(t)

			h.recognizes(recognition.Fragment{Text: "MENU", Confidence: 0.9, Box: boxMenu})
			h.frame(1)
			waitFor(t, "overlay", func() bool { return len(h.engine.Snapshot().Overlays) == 1 })

			h.clock.Advance(cfg.Overlay.StaleThreshold + time.Second)
			h.engine.post(h.engine.sweep)
			h.sync(t)

			if n := len(h.engine.Snapshot().Overlays); n != tt.want {
				t.Errorf("overlays = %d, want %d", n, tt.want)
			}
		})
	}
}

func TestEngine_ROIForwardedToRecognizer(t *testing.T) {
	h := newHarness(t, testConfig())
	h.activate(t)

	roi := geometry.Rect{X: 0.2, Y: 0.3, Width: 0.5, Height: 0.4}
	if err := h.engine.SetROI(&roi); err != nil {
		t.Fatalf("SetROI: %v", err)
	}
	if err := h.engine.SetROI(&geometry.Rect{X: 0.5, Y: 0.5}); !errors.Is(err, ErrInvalidROI) {
		t.Errorf("SetROI(empty) error = %v, want ErrInvalidROI", err)
	}

	h.frame(1)
	h.waitSettled(t)

	calls := h.recognizer.Calls()
	if len(calls) != 1 {
		t.Fatalf("recognizer calls = %d, want 1", len(calls))
	}
	if got := calls[0].Request.ROI; got == nil || *got != roi {
		t.Errorf("request ROI = %v, want %+v", got, roi)
	}
	if h.engine.Status().ROI == nil {
		t.Error("Status ROI missing")
	}

	if err := h.engine.SetROI(nil); err != nil {
		t.Fatalf("SetROI(nil): %v", err)
	}
	if h.engine.ROI() != nil {
		t.Error("ROI not cleared")
	}
}

func TestEngine_Subscribe(t *testing.T) {
	h := newHarness(t, testConfig())

	var mu sync.Mutex
	var seqs []uint64
	unsubscribe := h.engine.Subscribe(func(s Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		seqs = append(seqs, s.Seq)
	})

	h.activate(t)
	h.sync(t)
	unsubscribe()

	mu.Lock()
	n := len(seqs)
	mu.Unlock()
	if n == 0 {
		t.Fatal("no snapshots delivered")
	}

	h.engine.Clear()
	h.sync(t)

	mu.Lock()
	defer mu.Unlock()
	if len(seqs) != n {
		t.Errorf("snapshots after unsubscribe = %d, want %d", len(seqs), n)
	}
	for i := 1; i < len(seqs); i++ {
		if seqs[i] <= seqs[i-1] {
			t.Errorf("seq not increasing: %v", seqs)
		}
	}
}

func TestEngine_RunTwice(t *testing.T) {
	h := newHarness(t, testConfig())
	waitFor(t, "engine started", func() bool { return h.engine.started.Load() })
	if err := h.engine.Run(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Run error = %v, want ErrAlreadyRunning", err)
	}
}

func TestEngine_SyncAfterStop(t *testing.T) {
	e, err := New(testConfig(), Deps{
		Recognizer: recognition.NewMock(),
		Translator: translation.NewMock(nil),
		Capture:    &session.MockCapture{},
		Logger:     log.Discard(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := e.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := e.Sync(context.Background()); !errors.Is(err, ErrStopped) {
		t.Errorf("Sync after stop = %v, want ErrStopped", err)
	}
}

func TestNew_Validation(t *testing.T) {
	rec := recognition.NewMock()
	tr := translation.NewMock(nil)
	capture := &session.MockCapture{}

	tests := []struct {
		name    string
		cfg     Config
		deps    Deps
		wantErr error
	}{
		{"no recognizer", testConfig(), Deps{Translator: tr, Capture: capture}, ErrNoRecognizer},
		{"no translator", testConfig(), Deps{Recognizer: rec, Capture: capture}, ErrNoTranslator},
		{"no capture", testConfig(), Deps{Recognizer: rec, Translator: tr}, ErrNoCapture},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg, tt.deps)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("New() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"default", func(c *Config) {}, false},
		{"pinboard", func(c *Config) { *c = PinboardConfig() }, false},
		{"no target language", func(c *Config) { c.TargetLanguage = "" }, true},
		{"zero recognition timeout", func(c *Config) { c.RecognitionTimeout = 0 }, true},
		{"zero translation timeout", func(c *Config) { c.TranslationTimeout = 0 }, true},
		{"bad viewport", func(c *Config) { c.Display.Viewport.Height = 0 }, true},
		{"empty inbox", func(c *Config) { c.InboxSize = 0 }, true},
		{"bad sampler", func(c *Config) { c.Sampler.Interval = time.Millisecond }, true},
		{"bad overlay", func(c *Config) { c.Overlay.MaxOverlays = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
