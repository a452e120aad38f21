package protocol

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/teslashibe/go-arlens/pkg/engine"
	"github.com/teslashibe/go-arlens/pkg/geometry"
	"github.com/teslashibe/go-arlens/pkg/overlay"
	"github.com/teslashibe/go-arlens/pkg/recognition"
	"github.com/teslashibe/go-arlens/pkg/session"
)

func TestNewMessage(t *testing.T) {
	tests := []struct {
		name    string
		msgType MessageType
		data    any
		wantErr bool
	}{
		{
			name:    "frame message",
			msgType: TypeFrame,
			data:    FrameData{Width: 640, Height: 480, Format: "jpeg"},
		},
		{
			name:    "tracking message",
			msgType: TypeTracking,
			data:    TrackingData{State: "limited", Reason: "initializing"},
		},
		{
			name:    "nil data",
			msgType: TypeClear,
			data:    nil,
		},
		{
			name:    "unmarshalable data",
			msgType: TypeFrame,
			data:    make(chan int),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := NewMessage(tt.msgType, tt.data)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewMessage() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				return
			}
			if msg.Type != tt.msgType {
				t.Errorf("NewMessage() type = %v, want %v", msg.Type, tt.msgType)
			}
			if msg.Timestamp == 0 {
				t.Error("NewMessage() timestamp should be set")
			}
		})
	}
}

func TestParseMessage(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    MessageType
		wantErr bool
	}{
		{"clear", `{"type":"clear","ts":1}`, TypeClear, false},
		{"with data", `{"type":"roi","data":{"x":0.1,"y":0.2,"w":0.3,"h":0.4}}`, TypeROI, false},
		{"missing type", `{"ts":1}`, "", true},
		{"not json", `frame`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := ParseMessage([]byte(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseMessage() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && msg.Type != tt.want {
				t.Errorf("Type = %v, want %v", msg.Type, tt.want)
			}
		})
	}
}

func TestFrameMessage(t *testing.T) {
	jpegData := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10} // Fake JPEG header
	captured := time.UnixMilli(1_700_000_000_123)

	msg, err := NewFrameMessage(640, 480, recognition.FormatJPEG, jpegData, 7, captured)
	if err != nil {
		t.Fatalf("NewFrameMessage() error = %v", err)
	}
	raw, err := msg.Bytes()
	if err != nil {
		t.Fatalf("Bytes() error = %v", err)
	}
	parsed, err := ParseMessage(raw)
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}

	frameData, err := parsed.GetFrameData()
	if err != nil {
		t.Fatalf("GetFrameData() error = %v", err)
	}
	frame, err := frameData.Frame()
	if err != nil {
		t.Fatalf("Frame() error = %v", err)
	}

	if frame.Width != 640 || frame.Height != 480 {
		t.Errorf("size = %dx%d, want 640x480", frame.Width, frame.Height)
	}
	if frame.Format != recognition.FormatJPEG {
		t.Errorf("Format = %v, want jpeg", frame.Format)
	}
	if frame.ID != 7 {
		t.Errorf("ID = %v, want 7", frame.ID)
	}
	if !frame.CapturedAt.Equal(captured) {
		t.Errorf("CapturedAt = %v, want %v", frame.CapturedAt, captured)
	}
	if string(frame.Data) != string(jpegData) {
		t.Errorf("Data = %x, want %x", frame.Data, jpegData)
	}
}

func TestFrameData_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data FrameData
	}{
		{"zero size", FrameData{Width: 0, Height: 480, Data: "AA=="}},
		{"bad format", FrameData{Width: 640, Height: 480, Format: "h264", Data: "AA=="}},
		{"bad base64", FrameData{Width: 640, Height: 480, Format: "jpeg", Data: "%%%"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.data.Frame(); err == nil {
				t.Error("Frame() should fail")
			}
		})
	}

	// Format defaults to JPEG.
	fd := FrameData{Width: 2, Height: 2, Data: base64.StdEncoding.EncodeToString([]byte{1})}
	frame, err := fd.Frame()
	if err != nil {
		t.Fatalf("Frame() error = %v", err)
	}
	if frame.Format != recognition.FormatJPEG {
		t.Errorf("Format = %v, want jpeg", frame.Format)
	}
}

func TestTrackingMessage(t *testing.T) {
	in := session.Tracking{State: session.TrackingLimited, Reason: session.ReasonExcessiveMotion}
	msg, err := NewTrackingMessage(in)
	if err != nil {
		t.Fatalf("NewTrackingMessage() error = %v", err)
	}
	data, err := msg.GetTrackingData()
	if err != nil {
		t.Fatalf("GetTrackingData() error = %v", err)
	}
	if data.State != "limited" {
		t.Errorf("State = %q, want limited", data.State)
	}
	if got := data.Tracking(); got != in {
		t.Errorf("Tracking() = %+v, want %+v", got, in)
	}
}

func TestDisplayMessage(t *testing.T) {
	in := engine.Display{
		Orientation: geometry.LandscapeRight,
		Viewport:    geometry.Viewport{Width: 844, Height: 390},
	}
	msg, err := NewDisplayMessage(in)
	if err != nil {
		t.Fatalf("NewDisplayMessage() error = %v", err)
	}
	data, err := msg.GetDisplayData()
	if err != nil {
		t.Fatalf("GetDisplayData() error = %v", err)
	}
	if data.Orientation != "landscapeRight" {
		t.Errorf("Orientation = %q, want landscapeRight", data.Orientation)
	}
	got, err := data.Display()
	if err != nil {
		t.Fatalf("Display() error = %v", err)
	}
	if got != in {
		t.Errorf("Display() = %+v, want %+v", got, in)
	}

	bad := DisplayData{Orientation: "sideways", Width: 100, Height: 100}
	if _, err := bad.Display(); err == nil {
		t.Error("unknown orientation should fail")
	}
	empty := DisplayData{Orientation: "portrait", Width: 0, Height: 100}
	if _, err := empty.Display(); err == nil {
		t.Error("zero width should fail")
	}
}

func TestROIMessage(t *testing.T) {
	roi := geometry.Rect{X: 0.1, Y: 0.2, Width: 0.5, Height: 0.3}
	msg, err := NewROIMessage(&roi)
	if err != nil {
		t.Fatalf("NewROIMessage() error = %v", err)
	}
	data, err := msg.GetROIData()
	if err != nil {
		t.Fatalf("GetROIData() error = %v", err)
	}
	if got := data.Rect(); got == nil || *got != roi {
		t.Errorf("Rect() = %v, want %+v", got, roi)
	}

	msg, _ = NewROIMessage(nil)
	data, _ = msg.GetROIData()
	if data.Rect() != nil {
		t.Error("full-frame ROI should convert to nil")
	}
}

func TestOverlaysMessage(t *testing.T) {
	id := uuid.New()
	snap := engine.Snapshot{
		Seq:     12,
		Session: session.Active,
		Overlays: []overlay.Overlay{{
			ID:             id,
			OriginalText:   "SALIDA",
			TranslatedText: "Exit",
			ScreenPosition: geometry.Point{X: 100, Y: 200},
			OriginalSize:   geometry.Size{Width: 80, Height: 30},
			FontSize:       19.5,
		}},
	}

	msg, err := NewOverlaysMessage(snap)
	if err != nil {
		t.Fatalf("NewOverlaysMessage() error = %v", err)
	}
	data, err := msg.GetOverlaysData()
	if err != nil {
		t.Fatalf("GetOverlaysData() error = %v", err)
	}

	if data.Seq != 12 || data.Session != "active" {
		t.Errorf("header = %d/%s, want 12/active", data.Seq, data.Session)
	}
	if len(data.Overlays) != 1 {
		t.Fatalf("overlays = %d, want 1", len(data.Overlays))
	}
	o := data.Overlays[0]
	if o.ID != id.String() || o.Translated != "Exit" || o.X != 100 || o.Height != 30 || o.FontSize != 19.5 {
		t.Errorf("overlay = %+v", o)
	}
}

func TestEmptySnapshotEncodesEmptyList(t *testing.T) {
	data := OverlaysFromSnapshot(engine.Snapshot{})
	if data.Overlays == nil {
		t.Error("Overlays should be an empty list, not null")
	}
}

func TestCaptureAndLifecycleMessages(t *testing.T) {
	msg, err := NewCaptureMessage(CaptureRun)
	if err != nil {
		t.Fatalf("NewCaptureMessage() error = %v", err)
	}
	cmd, err := msg.GetCaptureCommand()
	if err != nil || cmd.Action != CaptureRun {
		t.Errorf("capture = %+v, %v", cmd, err)
	}

	msg, err = NewLifecycleMessage(ActionTeardown)
	if err != nil {
		t.Fatalf("NewLifecycleMessage() error = %v", err)
	}
	lc, err := msg.GetLifecycleData()
	if err != nil || lc.Action != ActionTeardown {
		t.Errorf("lifecycle = %+v, %v", lc, err)
	}
}

func TestPingPongMessage(t *testing.T) {
	pingMsg, err := NewPingMessage("test-123")
	if err != nil {
		t.Fatalf("NewPingMessage() error = %v", err)
	}

	if pingMsg.Type != TypePing {
		t.Errorf("Type = %v, want %v", pingMsg.Type, TypePing)
	}

	pingData, err := pingMsg.GetPingData()
	if err != nil {
		t.Fatalf("GetPingData() error = %v", err)
	}

	if pingData.ID != "test-123" {
		t.Errorf("ID = %v, want test-123", pingData.ID)
	}
	if pingData.Timestamp == 0 {
		t.Error("ping timestamp should be set")
	}

	now := time.Now().UnixMilli()
	pongMsg, err := NewPongMessage("test-123", pingData.Timestamp, now)
	if err != nil {
		t.Fatalf("NewPongMessage() error = %v", err)
	}

	pongData, err := pongMsg.GetPongData()
	if err != nil {
		t.Fatalf("GetPongData() error = %v", err)
	}

	if pongData.ID != "test-123" {
		t.Errorf("ID = %v, want test-123", pongData.ID)
	}
	if pongData.LatencyMs < 0 {
		t.Errorf("LatencyMs = %v, should be >= 0", pongData.LatencyMs)
	}
}

func TestErrorMessage(t *testing.T) {
	msg, err := NewErrorMessage(TypeDisplay, engine.ErrInvalidViewport)
	if err != nil {
		t.Fatalf("NewErrorMessage() error = %v", err)
	}
	data, err := msg.GetErrorData()
	if err != nil {
		t.Fatalf("GetErrorData() error = %v", err)
	}
	if data.Type != TypeDisplay || data.Message != engine.ErrInvalidViewport.Error() {
		t.Errorf("error data = %+v", data)
	}
}
