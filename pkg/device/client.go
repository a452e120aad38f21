package device

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/teslashibe/go-arlens/internal/log"
	"github.com/teslashibe/go-arlens/pkg/engine"
	"github.com/teslashibe/go-arlens/pkg/geometry"
	"github.com/teslashibe/go-arlens/pkg/protocol"
	"github.com/teslashibe/go-arlens/pkg/recognition"
	"github.com/teslashibe/go-arlens/pkg/session"
)

// Client acts as a capture device against a running server.
type Client struct {
	url string
	log *slog.Logger

	conn    *websocket.Conn
	writeMu sync.Mutex

	// OnCapture is called when the server asks to run or pause capture.
	OnCapture func(action string)
	// OnOverlays is called for every overlay snapshot.
	OnOverlays func(protocol.OverlaysData)
	// OnError is called when the server rejects a message.
	OnError func(protocol.ErrorData)
}

// NewClient creates a device client for a server base URL such as
// ws://localhost:8080. id names the device; empty lets the server pick.
func NewClient(baseURL, id string, logger *slog.Logger) *Client {
	url := baseURL + "/ws/device"
	if id != "" {
		url += "/" + id
	}
	return &Client{url: url, log: log.Or(logger, "device-client")}
}

// Connect dials the server
func (c *Client) Connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("device: dial %s: %w", c.url, err)
	}
	c.conn = conn
	return nil
}

// Listen reads server messages until the connection closes or ctx is done.
func (c *Client) Listen(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { c.conn.Close() })
	defer stop()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		msg, err := protocol.ParseMessage(data)
		if err != nil {
			c.log.Warn("bad server message", "error", err)
			continue
		}
		c.handle(msg)
	}
}

func (c *Client) handle(msg *protocol.Message) {
	switch msg.Type {
	case protocol.TypeCapture:
		cmd, err := msg.GetCaptureCommand()
		if err == nil && c.OnCapture != nil {
			c.OnCapture(cmd.Action)
		}
	case protocol.TypeOverlays:
		data, err := msg.GetOverlaysData()
		if err == nil && c.OnOverlays != nil {
			c.OnOverlays(*data)
		}
	case protocol.TypeError:
		data, err := msg.GetErrorData()
		if err == nil {
			c.log.Warn("server rejected message", "type", data.Type, "error", data.Message)
			if c.OnError != nil {
				c.OnError(*data)
			}
		}
	case protocol.TypePong:
	default:
		c.log.Debug("ignoring server message", "type", msg.Type)
	}
}

// Send writes a message to the server
func (c *Client) Send(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// SendFrame sends an encoded camera frame
func (c *Client) SendFrame(width, height int, format recognition.Format, image []byte, frameID uint64) error {
	msg, err := protocol.NewFrameMessage(width, height, format, image, frameID, time.Now())
	if err != nil {
		return err
	}
	return c.Send(msg)
}

// SendTracking reports the tracking state
func (c *Client) SendTracking(t session.Tracking) error {
	msg, err := protocol.NewTrackingMessage(t)
	if err != nil {
		return err
	}
	return c.Send(msg)
}

// SendDisplay reports orientation and viewport
func (c *Client) SendDisplay(d engine.Display) error {
	msg, err := protocol.NewDisplayMessage(d)
	if err != nil {
		return err
	}
	return c.Send(msg)
}

// SendROI sets the region of interest; nil means the whole frame.
func (c *Client) SendROI(roi *geometry.Rect) error {
	msg, err := protocol.NewROIMessage(roi)
	if err != nil {
		return err
	}
	return c.Send(msg)
}

// SendLifecycle reports a view lifecycle change
func (c *Client) SendLifecycle(action string) error {
	msg, err := protocol.NewLifecycleMessage(action)
	if err != nil {
		return err
	}
	return c.Send(msg)
}

// Close closes the connection
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	c.writeMu.Lock()
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	return c.conn.Close()
}
