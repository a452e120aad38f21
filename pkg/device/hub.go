// Package device connects AR capture devices to the engine. Devices stream
// frames and tracking signals in and receive capture commands and overlay
// snapshots back, over a websocket or WebRTC data channels.
package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/teslashibe/go-arlens/internal/log"
	"github.com/teslashibe/go-arlens/pkg/engine"
	"github.com/teslashibe/go-arlens/pkg/geometry"
	"github.com/teslashibe/go-arlens/pkg/observe"
	"github.com/teslashibe/go-arlens/pkg/protocol"
	"github.com/teslashibe/go-arlens/pkg/session"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ErrNotConnected is returned when sending to an unknown device.
var ErrNotConnected = errors.New("device: not connected")

// Sink receives decoded device input. *engine.Engine implements it.
type Sink interface {
	OnFrame(engine.Frame)
	OnTracking(session.Tracking)
	SetDisplay(engine.Display) error
	SetOrientation(geometry.Orientation) error
	SetROI(*geometry.Rect) error
	Pause()
	Resume()
	Teardown()
	Clear()
}

// sender writes encoded messages to one device transport.
type sender interface {
	Send(data []byte) error
	Close() error
}

// Transport names
const (
	TransportWebSocket = "websocket"
	TransportWebRTC    = "webrtc"
)

// Device is a connected capture device
type Device struct {
	ID        string
	Transport string
	Connected time.Time

	lastSeen  atomic.Int64 // Unix nanoseconds
	conn      sender
	out       chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newDevice(id, transport string, conn sender) *Device {
	d := &Device{
		ID:        id,
		Transport: transport,
		Connected: time.Now(),
		conn:      conn,
		out:       make(chan []byte, 64),
		done:      make(chan struct{}),
	}
	d.touch()
	return d
}

func (d *Device) touch() {
	d.lastSeen.Store(time.Now().UnixNano())
}

// LastSeen returns when the device last sent a message.
func (d *Device) LastSeen() time.Time {
	return time.Unix(0, d.lastSeen.Load())
}

// enqueue queues data for the writer without blocking. It reports false
// when the device is slow or gone.
func (d *Device) enqueue(data []byte) bool {
	select {
	case <-d.done:
		return false
	default:
	}
	select {
	case d.out <- data:
		return true
	default:
		return false
	}
}

// writeLoop is the only goroutine writing to the transport.
func (d *Device) writeLoop(logger *slog.Logger) {
	for {
		select {
		case <-d.done:
			return
		case data := <-d.out:
			if err := d.conn.Send(data); err != nil {
				logger.Debug("device write failed", "device", d.ID, "error", err)
			}
		}
	}
}

func (d *Device) close() {
	d.closeOnce.Do(func() {
		close(d.done)
		d.conn.Close()
	})
}

// Hub manages connections from capture devices
type Hub struct {
	log     *slog.Logger
	metrics *observe.Metrics

	mu      sync.RWMutex
	devices map[string]*Device
	sink    Sink

	// Last capture command, replayed to devices as they connect.
	capture atomic.Value // string

	// Stats
	messagesReceived atomic.Uint64
	messagesSent     atomic.Uint64
	framesReceived   atomic.Uint64
	dropped          atomic.Uint64
	rejected         atomic.Uint64
}

// NewHub creates a new device hub
func NewHub(logger *slog.Logger, metrics *observe.Metrics) *Hub {
	h := &Hub{
		log:     log.Or(logger, "device"),
		metrics: observe.Or(metrics),
		devices: make(map[string]*Device),
	}
	h.capture.Store(protocol.CapturePause)
	return h
}

// SetSink routes device input to s.
func (h *Hub) SetSink(s Sink) {
	h.mu.Lock()
	h.sink = s
	h.mu.Unlock()
}

// --- session.Capture ---

// Run asks every device to start capturing. Devices that connect later
// receive the command on connect.
func (h *Hub) Run() error {
	return h.command(protocol.CaptureRun)
}

// Pause asks every device to stop capturing.
func (h *Hub) Pause() error {
	return h.command(protocol.CapturePause)
}

func (h *Hub) command(action string) error {
	h.capture.Store(action)
	msg, err := protocol.NewCaptureMessage(action)
	if err != nil {
		return err
	}
	sent, total := h.broadcast(msg)
	if total > 0 && sent == 0 {
		return fmt.Errorf("device: capture %s reached none of %d devices", action, total)
	}
	return nil
}

// PushSnapshot sends an overlay snapshot to every device. It never blocks.
func (h *Hub) PushSnapshot(snap engine.Snapshot) {
	msg, err := protocol.NewOverlaysMessage(snap)
	if err != nil {
		h.log.Error("encode overlays", "error", err)
		return
	}
	h.broadcast(msg)
}

// --- Connections ---

// register adds a device, replacing any previous connection with the same ID.
func (h *Hub) register(d *Device) {
	h.mu.Lock()
	old := h.devices[d.ID]
	h.devices[d.ID] = d
	count := len(h.devices)
	h.mu.Unlock()

	if old != nil {
		old.close()
		h.log.Warn("device reconnected, closing previous connection", "device", d.ID)
	} else {
		h.metrics.DeviceConnections.Add(context.Background(), 1, metric.WithAttributes(attribute.String("transport", d.Transport)))
	}

	go d.writeLoop(h.log)
	h.log.Info("device connected", "device", d.ID, "transport", d.Transport, "devices", count)

	if msg, err := protocol.NewCaptureMessage(h.capture.Load().(string)); err == nil {
		h.sendTo(d, msg)
	}
}

// unregister removes d unless it was already replaced.
func (h *Hub) unregister(d *Device) {
	h.mu.Lock()
	current, ok := h.devices[d.ID]
	if ok && current == d {
		delete(h.devices, d.ID)
	}
	count := len(h.devices)
	h.mu.Unlock()

	d.close()
	if ok && current == d {
		h.metrics.DeviceConnections.Add(context.Background(), -1, metric.WithAttributes(attribute.String("transport", d.Transport)))
		h.log.Info("device disconnected", "device", d.ID, "devices", count)
	}
}

// RegisterRoutes registers the device websocket endpoint on a Fiber app
func (h *Hub) RegisterRoutes(app *fiber.App) {
	app.Use("/ws/device", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/device", websocket.New(h.handleWS))
	app.Get("/ws/device/:id", websocket.New(h.handleWS))
}

// wsConn adapts a websocket connection to sender.
type wsConn struct {
	conn *websocket.Conn
}

func (w wsConn) Send(data []byte) error {
	w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

func (w wsConn) Close() error {
	return w.conn.Close()
}

const (
	writeWait      = 5 * time.Second
	readWait       = 60 * time.Second
	maxMessageSize = 8 << 20 // Full-resolution JPEG frames, base64 encoded
)

// handleWS handles a device websocket connection
func (h *Hub) handleWS(c *websocket.Conn) {
	id := c.Params("id")
	if id == "" {
		id = uuid.NewString()
	}

	d := newDevice(id, TransportWebSocket, wsConn{conn: c})
	h.register(d)
	defer h.unregister(d)

	c.SetReadLimit(maxMessageSize)
	for {
		c.SetReadDeadline(time.Now().Add(readWait))
		_, data, err := c.ReadMessage()
		if err != nil {
			h.log.Debug("device read ended", "device", id, "error", err)
			return
		}
		d.touch()
		h.handleMessage(d, data)
	}
}

// handleMessage decodes one inbound message and forwards it to the sink
func (h *Hub) handleMessage(d *Device, data []byte) {
	h.messagesReceived.Add(1)

	msg, err := protocol.ParseMessage(data)
	if err != nil {
		h.reject(d, "", err)
		return
	}

	h.mu.RLock()
	sink := h.sink
	h.mu.RUnlock()

	if msg.Type == protocol.TypePing {
		ping, err := msg.GetPingData()
		if err != nil {
			h.reject(d, msg.Type, err)
			return
		}
		if ping.Timestamp == 0 {
			ping.Timestamp = msg.Timestamp
		}
		if pong, err := protocol.NewPongMessage(ping.ID, ping.Timestamp, time.Now().UnixMilli()); err == nil {
			h.sendTo(d, pong)
		}
		return
	}
	if sink == nil {
		h.log.Debug("no sink, dropping device message", "type", msg.Type)
		return
	}

	if err := dispatch(sink, msg); err != nil {
		h.reject(d, msg.Type, err)
		return
	}
	if msg.Type == protocol.TypeFrame {
		h.framesReceived.Add(1)
	}
}

func dispatch(sink Sink, msg *protocol.Message) error {
	switch msg.Type {
	case protocol.TypeFrame:
		fd, err := msg.GetFrameData()
		if err != nil {
			return err
		}
		frame, err := fd.Frame()
		if err != nil {
			return err
		}
		if fd.Orientation != "" {
			o, err := geometry.ParseOrientation(fd.Orientation)
			if err != nil {
				return err
			}
			if err := sink.SetOrientation(o); err != nil {
				return err
			}
		}
		sink.OnFrame(frame)

	case protocol.TypeTracking:
		td, err := msg.GetTrackingData()
		if err != nil {
			return err
		}
		sink.OnTracking(td.Tracking())

	case protocol.TypeDisplay:
		dd, err := msg.GetDisplayData()
		if err != nil {
			return err
		}
		display, err := dd.Display()
		if err != nil {
			return err
		}
		return sink.SetDisplay(display)

	case protocol.TypeROI:
		rd, err := msg.GetROIData()
		if err != nil {
			return err
		}
		return sink.SetROI(rd.Rect())

	case protocol.TypeLifecycle:
		ld, err := msg.GetLifecycleData()
		if err != nil {
			return err
		}
		switch ld.Action {
		case protocol.ActionPause:
			sink.Pause()
		case protocol.ActionResume:
			sink.Resume()
		case protocol.ActionTeardown:
			sink.Teardown()
		default:
			return fmt.Errorf("unknown lifecycle action %q", ld.Action)
		}

	case protocol.TypeClear:
		sink.Clear()

	default:
		return fmt.Errorf("unexpected message type %q", msg.Type)
	}
	return nil
}

func (h *Hub) reject(d *Device, t protocol.MessageType, err error) {
	h.rejected.Add(1)
	h.log.Warn("rejected device message", "device", d.ID, "type", t, "error", err)
	if msg, merr := protocol.NewErrorMessage(t, err); merr == nil {
		h.sendTo(d, msg)
	}
}

// Send sends a message to one device
func (h *Hub) Send(deviceID string, msg *protocol.Message) error {
	h.mu.RLock()
	d, ok := h.devices[deviceID]
	h.mu.RUnlock()
	if !ok {
		return ErrNotConnected
	}
	if !h.sendTo(d, msg) {
		return fmt.Errorf("device %s: send queue full", deviceID)
	}
	return nil
}

func (h *Hub) sendTo(d *Device, msg *protocol.Message) bool {
	data, err := msg.Bytes()
	if err != nil {
		return false
	}
	if !d.enqueue(data) {
		h.dropped.Add(1)
		return false
	}
	h.messagesSent.Add(1)
	return true
}

// broadcast queues msg for every device and reports how many accepted it.
func (h *Hub) broadcast(msg *protocol.Message) (sent, total int) {
	h.mu.RLock()
	devices := make([]*Device, 0, len(h.devices))
	for _, d := range h.devices {
		devices = append(devices, d)
	}
	h.mu.RUnlock()

	for _, d := range devices {
		if h.sendTo(d, msg) {
			sent++
		}
	}
	return sent, len(devices)
}

// Close disconnects every device.
func (h *Hub) Close() {
	h.mu.Lock()
	devices := h.devices
	h.devices = make(map[string]*Device)
	h.mu.Unlock()
	for _, d := range devices {
		d.close()
		h.metrics.DeviceConnections.Add(context.Background(), -1, metric.WithAttributes(attribute.String("transport", d.Transport)))
	}
}

// DeviceCount returns the number of connected devices
func (h *Hub) DeviceCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.devices)
}

// Stats contains hub statistics
type Stats struct {
	DeviceCount      int    `json:"device_count"`
	Capture          string `json:"capture"`
	MessagesReceived uint64 `json:"messages_received"`
	MessagesSent     uint64 `json:"messages_sent"`
	FramesReceived   uint64 `json:"frames_received"`
	Dropped          uint64 `json:"dropped"`
	Rejected         uint64 `json:"rejected"`
}

// GetStats returns hub statistics
func (h *Hub) GetStats() Stats {
	return Stats{
		DeviceCount:      h.DeviceCount(),
		Capture:          h.capture.Load().(string),
		MessagesReceived: h.messagesReceived.Load(),
		MessagesSent:     h.messagesSent.Load(),
		FramesReceived:   h.framesReceived.Load(),
		Dropped:          h.dropped.Load(),
		Rejected:         h.rejected.Load(),
	}
}

// Info describes a connected device
type Info struct {
	ID        string    `json:"id"`
	Transport string    `json:"transport"`
	Connected time.Time `json:"connected"`
	LastSeen  time.Time `json:"last_seen"`
}

// GetDeviceInfos returns info about all connected devices
func (h *Hub) GetDeviceInfos() []Info {
	h.mu.RLock()
	defer h.mu.RUnlock()

	infos := make([]Info, 0, len(h.devices))
	for _, d := range h.devices {
		infos = append(infos, Info{
			ID:        d.ID,
			Transport: d.Transport,
			Connected: d.Connected,
			LastSeen:  d.LastSeen(),
		})
	}
	return infos
}

// RegisterAPIRoutes registers API routes for device management
func (h *Hub) RegisterAPIRoutes(api fiber.Router) {
	devices := api.Group("/devices")

	devices.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"devices": h.GetDeviceInfos(),
			"count":   h.DeviceCount(),
		})
	})

	devices.Get("/stats", func(c *fiber.Ctx) error {
		return c.JSON(h.GetStats())
	})
}
