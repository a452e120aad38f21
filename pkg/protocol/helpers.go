package protocol

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/teslashibe/go-arlens/pkg/engine"
	"github.com/teslashibe/go-arlens/pkg/geometry"
	"github.com/teslashibe/go-arlens/pkg/recognition"
	"github.com/teslashibe/go-arlens/pkg/session"
)

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// NewFrameMessage creates a frame message from encoded image data
func NewFrameMessage(width, height int, format recognition.Format, image []byte, frameID uint64, capturedAt time.Time) (*Message, error) {
	fd := FrameData{
		Width:   width,
		Height:  height,
		Format:  string(format),
		Data:    base64.StdEncoding.EncodeToString(image),
		FrameID: frameID,
	}
	if !capturedAt.IsZero() {
		fd.CapturedAt = capturedAt.UnixMilli()
	}
	return NewMessage(TypeFrame, fd)
}

// NewTrackingMessage creates a tracking state message
func NewTrackingMessage(t session.Tracking) (*Message, error) {
	return NewMessage(TypeTracking, TrackingData{
		State:  t.State.String(),
		Reason: string(t.Reason),
	})
}

// NewDisplayMessage creates a display message
func NewDisplayMessage(d engine.Display) (*Message, error) {
	return NewMessage(TypeDisplay, DisplayData{
		Orientation: d.Orientation.String(),
		Width:       d.Viewport.Width,
		Height:      d.Viewport.Height,
	})
}

// NewROIMessage creates a region of interest message. A nil roi resets to
// the whole frame.
func NewROIMessage(roi *geometry.Rect) (*Message, error) {
	if roi == nil {
		return NewMessage(TypeROI, ROIData{Full: true})
	}
	return NewMessage(TypeROI, ROIData{X: roi.X, Y: roi.Y, Width: roi.Width, Height: roi.Height})
}

// NewLifecycleMessage creates a lifecycle message
func NewLifecycleMessage(action string) (*Message, error) {
	return NewMessage(TypeLifecycle, LifecycleData{Action: action})
}

// NewClearMessage creates a clear message
func NewClearMessage() (*Message, error) {
	return NewMessage(TypeClear, nil)
}

// NewCaptureMessage creates a capture command message
func NewCaptureMessage(action string) (*Message, error) {
	return NewMessage(TypeCapture, CaptureCommand{Action: action})
}

// NewOverlaysMessage creates an overlay snapshot message
func NewOverlaysMessage(snap engine.Snapshot) (*Message, error) {
	return NewMessage(TypeOverlays, OverlaysFromSnapshot(snap))
}

// NewErrorMessage reports a rejected message
func NewErrorMessage(rejected MessageType, err error) (*Message, error) {
	return NewMessage(TypeError, ErrorData{Type: rejected, Message: err.Error()})
}

// NewPingMessage creates a ping message
func NewPingMessage(id string) (*Message, error) {
	return NewMessage(TypePing, PingData{
		ID:        id,
		Timestamp: time.Now().UnixMilli(),
	})
}

// NewPongMessage creates a pong response message
func NewPongMessage(id string, pingTS, pongTS int64) (*Message, error) {
	return NewMessage(TypePong, PongData{
		ID:        id,
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: pongTS - pingTS,
	})
}

// OverlaysFromSnapshot flattens an engine snapshot for the wire.
func OverlaysFromSnapshot(snap engine.Snapshot) OverlaysData {
	out := OverlaysData{
		Seq:      snap.Seq,
		Session:  snap.Session.String(),
		Overlays: make([]OverlayData, 0, len(snap.Overlays)),
	}
	for _, o := range snap.Overlays {
		out.Overlays = append(out.Overlays, OverlayData{
			ID:         o.ID.String(),
			Original:   o.OriginalText,
			Translated: o.TranslatedText,
			Pending:    o.Pending,
			X:          o.ScreenPosition.X,
			Y:          o.ScreenPosition.Y,
			Width:      o.OriginalSize.Width,
			Height:     o.OriginalSize.Height,
			FontSize:   o.FontSize,
		})
	}
	return out
}

// =============================================================================
// Helper functions for parsing messages
// =============================================================================

// GetFrameData extracts frame data from a message
func (m *Message) GetFrameData() (*FrameData, error) {
	var data FrameData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// DecodeFrameData decodes the base64 image data
func (f *FrameData) DecodeFrameData() ([]byte, error) {
	return base64.StdEncoding.DecodeString(f.Data)
}

// Frame converts the message into an engine frame.
func (f *FrameData) Frame() (engine.Frame, error) {
	if f.Width <= 0 || f.Height <= 0 {
		return engine.Frame{}, fmt.Errorf("frame %d: invalid size %dx%d", f.FrameID, f.Width, f.Height)
	}
	format := recognition.Format(f.Format)
	switch format {
	case recognition.FormatJPEG, recognition.FormatPNG:
	case "":
		format = recognition.FormatJPEG
	default:
		return engine.Frame{}, fmt.Errorf("frame %d: unsupported format %q", f.FrameID, f.Format)
	}
	data, err := f.DecodeFrameData()
	if err != nil {
		return engine.Frame{}, fmt.Errorf("frame %d: %w", f.FrameID, err)
	}

	frame := engine.Frame{
		Data:   data,
		Format: format,
		Width:  f.Width,
		Height: f.Height,
		ID:     f.FrameID,
	}
	if f.CapturedAt > 0 {
		frame.CapturedAt = time.UnixMilli(f.CapturedAt)
	}
	return frame, nil
}

// GetTrackingData extracts tracking data from a message
func (m *Message) GetTrackingData() (*TrackingData, error) {
	var data TrackingData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// Tracking converts the message into a session tracking signal.
func (t *TrackingData) Tracking() session.Tracking {
	return session.Tracking{
		State:  session.ParseTrackingState(t.State),
		Reason: session.TrackingReason(t.Reason),
	}
}

// GetDisplayData extracts display data from a message
func (m *Message) GetDisplayData() (*DisplayData, error) {
	var data DisplayData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// Display converts the message into an engine display.
func (d *DisplayData) Display() (engine.Display, error) {
	o, err := geometry.ParseOrientation(d.Orientation)
	if err != nil {
		return engine.Display{}, err
	}
	out := engine.Display{
		Orientation: o,
		Viewport:    geometry.Viewport{Width: d.Width, Height: d.Height},
	}
	return out, out.Validate()
}

// GetROIData extracts region of interest data from a message
func (m *Message) GetROIData() (*ROIData, error) {
	var data ROIData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// Rect returns the region, or nil for the whole frame.
func (r *ROIData) Rect() *geometry.Rect {
	if r.Full {
		return nil
	}
	return &geometry.Rect{X: r.X, Y: r.Y, Width: r.Width, Height: r.Height}
}

// GetLifecycleData extracts lifecycle data from a message
func (m *Message) GetLifecycleData() (*LifecycleData, error) {
	var data LifecycleData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetCaptureCommand extracts a capture command from a message
func (m *Message) GetCaptureCommand() (*CaptureCommand, error) {
	var data CaptureCommand
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetOverlaysData extracts an overlay snapshot from a message
func (m *Message) GetOverlaysData() (*OverlaysData, error) {
	var data OverlaysData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetErrorData extracts error details from a message
func (m *Message) GetErrorData() (*ErrorData, error) {
	var data ErrorData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPingData extracts ping data from a message
func (m *Message) GetPingData() (*PingData, error) {
	var data PingData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPongData extracts pong data from a message
func (m *Message) GetPongData() (*PongData, error) {
	var data PongData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}
