// Package protocol defines the JSON messages exchanged between AR capture
// devices and the overlay server. The same envelope is used over WebSocket
// and over WebRTC data channels.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the type of a message
type MessageType string

const (
	// Device → Server messages
	TypeFrame     MessageType = "frame"     // Camera frame
	TypeTracking  MessageType = "tracking"  // Tracking state change
	TypeDisplay   MessageType = "display"   // Orientation and viewport
	TypeROI       MessageType = "roi"       // Region of interest
	TypeLifecycle MessageType = "lifecycle" // View visibility (pause, resume, teardown)
	TypeClear     MessageType = "clear"     // User cleared the overlays

	// Server → Device messages
	TypeCapture  MessageType = "capture"  // Run or pause the capture session
	TypeOverlays MessageType = "overlays" // Overlay snapshot
	TypeError    MessageType = "error"    // Rejected message

	// Bidirectional
	TypePing MessageType = "ping" // Health check
	TypePong MessageType = "pong" // Health check response
)

// Message is the base wrapper for all messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data any) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v any) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("failed to parse message: missing type")
	}
	return &msg, nil
}

// =============================================================================
// Device → Server Message Types
// =============================================================================

// FrameData contains a camera frame
type FrameData struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Format      string `json:"format"` // "jpeg", "png"
	Data        string `json:"data"`   // base64 encoded
	FrameID     uint64 `json:"frame_id,omitempty"`
	CapturedAt  int64  `json:"captured_at,omitempty"` // Unix milliseconds
	Orientation string `json:"orientation,omitempty"` // Set when the device rotated with this frame
}

// TrackingData reports the AR tracking state
type TrackingData struct {
	State  string `json:"state"`            // "normal", "limited", "not_available"
	Reason string `json:"reason,omitempty"` // "initializing", "relocalizing", ...
}

// DisplayData describes the render surface
type DisplayData struct {
	Orientation string  `json:"orientation"` // "portrait", "portraitUpsideDown", "landscapeLeft", "landscapeRight"
	Width       float64 `json:"width"`       // Pixels
	Height      float64 `json:"height"`
}

// ROIData is a normalized region of interest, bottom-left origin
type ROIData struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"w"`
	Height float64 `json:"h"`
	Full   bool    `json:"full,omitempty"` // Reset to the whole frame
}

// Lifecycle actions
const (
	ActionPause    = "pause"
	ActionResume   = "resume"
	ActionTeardown = "teardown"
)

// LifecycleData reports a view visibility transition
type LifecycleData struct {
	Action string `json:"action"`
}

// =============================================================================
// Server → Device Message Types
// =============================================================================

// Capture commands
const (
	CaptureRun   = "run"
	CapturePause = "pause"
)

// CaptureCommand asks the device to run or pause its capture session
type CaptureCommand struct {
	Action string `json:"action"`
}

// OverlaysData is a render-ready overlay snapshot
type OverlaysData struct {
	Seq      uint64        `json:"seq"`
	Session  string        `json:"session"`
	Overlays []OverlayData `json:"overlays"`
}

// OverlayData is one label to draw, in screen pixels
type OverlayData struct {
	ID         string  `json:"id"`
	Original   string  `json:"original"`
	Translated string  `json:"translated"`
	Pending    bool    `json:"pending,omitempty"`
	X          float64 `json:"x"` // Center
	Y          float64 `json:"y"`
	Width      float64 `json:"w"`
	Height     float64 `json:"h"`
	FontSize   float64 `json:"font_size"`
}

// ErrorData explains a rejected message
type ErrorData struct {
	Type    MessageType `json:"type,omitempty"` // Type of the rejected message
	Message string      `json:"message"`
}

// =============================================================================
// Bidirectional Message Types
// =============================================================================

// PingData contains ping information
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData contains pong response
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}
