// arlens-replay: plays a directory of JPEG frames into a running arlens
// server as if it were a device, and prints the overlays that come back.
//
// An optional JSON-lines script injects tracking and lifecycle events at
// given frame indexes:
//
//	{"frame": 0, "tracking": "limited", "reason": "initializing"}
//	{"frame": 10, "tracking": "normal"}
//	{"frame": 40, "lifecycle": "pause"}
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"image"
	_ "image/jpeg"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/teslashibe/go-arlens/internal/log"
	"github.com/teslashibe/go-arlens/pkg/device"
	"github.com/teslashibe/go-arlens/pkg/engine"
	"github.com/teslashibe/go-arlens/pkg/geometry"
	"github.com/teslashibe/go-arlens/pkg/protocol"
	"github.com/teslashibe/go-arlens/pkg/recognition"
	"github.com/teslashibe/go-arlens/pkg/session"
)

var (
	server      = flag.String("server", "ws://localhost:8080", "arlens server base URL")
	id          = flag.String("id", "replay", "Device ID")
	dir         = flag.String("frames", "", "Directory of .jpg frames (required)")
	script      = flag.String("script", "", "JSON-lines event script")
	fps         = flag.Float64("fps", 10, "Frames per second")
	loop        = flag.Bool("loop", false, "Loop the frames until interrupted")
	orientation = flag.String("orientation", "portrait", "Device orientation")
	width       = flag.Float64("width", 390, "Viewport width")
	height      = flag.Float64("height", 844, "Viewport height")
	logLevel    = flag.String("log-level", "info", "Log level")
)

// event is one line of the script.
type event struct {
	Frame     int    `json:"frame"`
	Tracking  string `json:"tracking,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Lifecycle string `json:"lifecycle,omitempty"`
	Clear     bool   `json:"clear,omitempty"`
}

func main() {
	flag.Parse()
	log.Init(*logLevel)
	logger := log.L()

	if *dir == "" || *fps <= 0 {
		flag.Usage()
		os.Exit(2)
	}

	frames, err := listFrames(*dir)
	if err != nil {
		logger.Error("list frames", "error", err)
		os.Exit(1)
	}
	events, err := loadScript(*script)
	if err != nil {
		logger.Error("load script", "error", err)
		os.Exit(1)
	}
	o, err := geometry.ParseOrientation(*orientation)
	if err != nil {
		logger.Error("bad orientation", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := device.NewClient(*server, *id, logger)
	var capturing atomic.Bool
	client.OnCapture = func(action string) {
		capturing.Store(action == protocol.CaptureRun)
		logger.Info("capture", "action", action)
	}
	client.OnOverlays = func(d protocol.OverlaysData) {
		for _, ov := range d.Overlays {
			state := ""
			if ov.Pending {
				state = " (pending)"
			}
			fmt.Printf("#%d %-8s %q -> %q at (%.0f, %.0f)%s\n", d.Seq, d.Session, ov.Original, ov.Translated, ov.X, ov.Y, state)
		}
	}

	if err := client.Connect(ctx); err != nil {
		logger.Error("connect", "error", err)
		os.Exit(1)
	}
	defer client.Close()
	go func() {
		if err := client.Listen(ctx); err != nil && ctx.Err() == nil {
			logger.Error("connection lost", "error", err)
			stop()
		}
	}()

	display := engine.Display{Orientation: o, Viewport: geometry.Viewport{Width: *width, Height: *height}}
	if err := client.SendDisplay(display); err != nil {
		logger.Error("send display", "error", err)
		os.Exit(1)
	}
	if err := client.SendLifecycle(protocol.ActionResume); err != nil {
		logger.Error("send lifecycle", "error", err)
		os.Exit(1)
	}
	if len(events) == 0 {
		client.SendTracking(session.Tracking{State: session.TrackingNormal})
	}

	ticker := time.NewTicker(time.Duration(float64(time.Second) / *fps))
	defer ticker.Stop()

	var sent, skipped uint64
	for i := 0; ; i++ {
		if i == len(frames) {
			if !*loop {
				break
			}
			i = 0
		}
		select {
		case <-ctx.Done():
			logger.Info("replay interrupted", "sent", sent, "skipped", skipped)
			return
		case <-ticker.C:
		}

		for _, ev := range events[i] {
			if err := apply(client, ev); err != nil {
				logger.Warn("script event failed", "frame", i, "error", err)
			}
		}
		if !capturing.Load() {
			skipped++
			continue
		}

		f := frames[i]
		data, err := os.ReadFile(f.path)
		if err != nil {
			logger.Warn("read frame", "path", f.path, "error", err)
			continue
		}
		if err := client.SendFrame(f.width, f.height, recognition.FormatJPEG, data, uint64(i)); err != nil {
			logger.Error("send frame", "error", err)
			os.Exit(1)
		}
		sent++
	}

	// Give in-flight results a moment to come back.
	time.Sleep(2 * time.Second)
	logger.Info("replay finished", "sent", sent, "skipped", skipped)
}

type frame struct {
	path          string
	width, height int
}

func listFrames(dir string) ([]frame, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.jpg"))
	if err != nil {
		return nil, err
	}
	more, _ := filepath.Glob(filepath.Join(dir, "*.jpeg"))
	paths = append(paths, more...)
	if len(paths) == 0 {
		return nil, fmt.Errorf("no .jpg frames in %s", dir)
	}
	sort.Strings(paths)

	frames := make([]frame, 0, len(paths))
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return nil, err
		}
		cfg, _, err := image.DecodeConfig(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		frames = append(frames, frame{path: p, width: cfg.Width, height: cfg.Height})
	}
	return frames, nil
}

// loadScript groups script events by frame index.
func loadScript(path string) (map[int][]event, error) {
	events := make(map[int][]event)
	if path == "" {
		return events, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for n := 1; scanner.Scan(); n++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		var ev event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, n, err)
		}
		events[ev.Frame] = append(events[ev.Frame], ev)
	}
	return events, scanner.Err()
}

func apply(c *device.Client, ev event) error {
	if ev.Tracking != "" {
		t := session.Tracking{
			State:  session.ParseTrackingState(ev.Tracking),
			Reason: session.TrackingReason(ev.Reason),
		}
		if err := c.SendTracking(t); err != nil {
			return err
		}
	}
	if ev.Lifecycle != "" {
		if err := c.SendLifecycle(ev.Lifecycle); err != nil {
			return err
		}
	}
	if ev.Clear {
		msg, err := protocol.NewClearMessage()
		if err != nil {
			return err
		}
		return c.Send(msg)
	}
	return nil
}
