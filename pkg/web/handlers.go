package web

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/teslashibe/go-arlens/pkg/engine"
	"github.com/teslashibe/go-arlens/pkg/hub"
	"github.com/teslashibe/go-arlens/pkg/protocol"
)

// errorHandler renders every error as {"error": "..."}.
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

// badRequest maps engine validation errors to 400.
func badRequest(err error) error {
	switch {
	case errors.Is(err, engine.ErrInvalidOrientation),
		errors.Is(err, engine.ErrInvalidViewport),
		errors.Is(err, engine.ErrInvalidROI):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return err
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"session": s.engine.Snapshot().Session,
		"clients": s.overlays.ClientCount(),
	})
}

// handleOverlays returns the latest overlay snapshot
func (s *Server) handleOverlays(c *fiber.Ctx) error {
	return c.JSON(protocol.OverlaysFromSnapshot(s.engine.Snapshot()))
}

// handleStatus returns the engine status
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.engine.Status())
}

func (s *Server) handlePause(c *fiber.Ctx) error {
	s.engine.Pause()
	return c.SendStatus(fiber.StatusAccepted)
}

func (s *Server) handleResume(c *fiber.Ctx) error {
	s.engine.Resume()
	return c.SendStatus(fiber.StatusAccepted)
}

func (s *Server) handleClear(c *fiber.Ctx) error {
	s.engine.Clear()
	return c.SendStatus(fiber.StatusAccepted)
}

// handleDisplay sets orientation and viewport
func (s *Server) handleDisplay(c *fiber.Ctx) error {
	var req protocol.DisplayData
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	display, err := req.Display()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := s.engine.SetDisplay(display); err != nil {
		return badRequest(err)
	}
	return c.JSON(display)
}

// handleROI sets the region of interest. {"full": true} resets it.
func (s *Server) handleROI(c *fiber.Ctx) error {
	var req protocol.ROIData
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := s.engine.SetROI(req.Rect()); err != nil {
		return badRequest(err)
	}
	return c.JSON(fiber.Map{"roi": s.engine.ROI()})
}

// handleRenderMessage answers control messages from render clients: ping
// and clear. Anything else is rejected.
func (s *Server) handleRenderMessage(data []byte) []byte {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		return encode(protocol.NewErrorMessage("", err))
	}
	switch msg.Type {
	case protocol.TypePing:
		ping, err := msg.GetPingData()
		if err != nil {
			return encode(protocol.NewErrorMessage(msg.Type, err))
		}
		return encode(protocol.NewPongMessage(ping.ID, ping.Timestamp, time.Now().UnixMilli()))
	case protocol.TypeClear:
		s.engine.Clear()
		return nil
	}
	return encode(protocol.NewErrorMessage(msg.Type, fmt.Errorf("unsupported message type %q", msg.Type)))
}

func encode(msg *protocol.Message, err error) []byte {
	if err != nil {
		return nil
	}
	data, err := msg.Bytes()
	if err != nil {
		return nil
	}
	return data
}

// handleOverlaysWS streams overlay snapshots to a render client
func (s *Server) handleOverlaysWS(c *websocket.Conn) {
	hub.NewClient(s.overlays, c).Run()
}
