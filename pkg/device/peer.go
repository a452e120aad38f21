package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
)

// Data channel labels opened by the device.
const (
	ChannelFrames  = "frames"  // Unordered, no retransmits
	ChannelControl = "control" // Reliable, ordered
)

// PeerConfig configures WebRTC ingest.
type PeerConfig struct {
	// ICEServers are STUN/TURN URLs offered to the peer connection.
	ICEServers []string `yaml:"ice_servers"`
}

// Peer accepts WebRTC connections from devices. Frames arrive on a lossy
// data channel so a late frame is dropped instead of delaying newer ones.
type Peer struct {
	hub *Hub
	cfg PeerConfig
	log *slog.Logger

	mu    sync.Mutex
	conns map[string]*webrtc.PeerConnection
}

// NewPeer creates a WebRTC ingest that feeds hub.
func NewPeer(hub *Hub, cfg PeerConfig) *Peer {
	return &Peer{
		hub:   hub,
		cfg:   cfg,
		log:   hub.log.With("transport", TransportWebRTC),
		conns: make(map[string]*webrtc.PeerConnection),
	}
}

// dataChannel adapts a control data channel to sender.
type dataChannel struct {
	dc *webrtc.DataChannel
	pc *webrtc.PeerConnection
}

func (d dataChannel) Send(data []byte) error {
	return d.dc.SendText(string(data))
}

func (d dataChannel) Close() error {
	return d.pc.Close()
}

// HandleOffer answers an SDP offer from device id. The answer is returned
// once ICE gathering completes, so no trickle signalling is needed.
func (p *Peer) HandleOffer(ctx context.Context, id string, offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	if offer.Type != webrtc.SDPTypeOffer {
		return nil, fmt.Errorf("device: expected offer, got %s", offer.Type)
	}

	config := webrtc.Configuration{}
	if len(p.cfg.ICEServers) > 0 {
		config.ICEServers = []webrtc.ICEServer{{URLs: p.cfg.ICEServers}}
	}
	pc, err := webrtc.NewPeerConnection(config)
	if err != nil {
		return nil, fmt.Errorf("device: peer connection: %w", err)
	}

	var (
		devMu sync.Mutex
		dev   *Device
	)
	current := func() *Device {
		devMu.Lock()
		defer devMu.Unlock()
		return dev
	}

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		switch dc.Label() {
		case ChannelControl:
			dc.OnOpen(func() {
				d := newDevice(id, TransportWebRTC, dataChannel{dc: dc, pc: pc})
				devMu.Lock()
				dev = d
				devMu.Unlock()
				p.hub.register(d)
			})
		case ChannelFrames:
		default:
			p.log.Warn("unexpected data channel", "device", id, "label", dc.Label())
			return
		}
		dc.OnMessage(func(msg webrtc.DataChannelMessage) {
			d := current()
			if d == nil {
				return
			}
			d.touch()
			p.hub.handleMessage(d, msg.Data)
		})
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		p.log.Debug("peer connection state", "device", id, "state", state.String())
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed, webrtc.PeerConnectionStateDisconnected:
			if d := current(); d != nil {
				p.hub.unregister(d)
			}
			p.forget(id, pc)
		}
	})

	if err := pc.SetRemoteDescription(offer); err != nil {
		pc.Close()
		return nil, fmt.Errorf("device: set remote description: %w", err)
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("device: create answer: %w", err)
	}

	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		pc.Close()
		return nil, fmt.Errorf("device: set local description: %w", err)
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		pc.Close()
		return nil, ctx.Err()
	}

	p.mu.Lock()
	old := p.conns[id]
	p.conns[id] = pc
	p.mu.Unlock()
	if old != nil {
		old.Close()
	}

	p.log.Info("answered device offer", "device", id)
	return pc.LocalDescription(), nil
}

func (p *Peer) forget(id string, pc *webrtc.PeerConnection) {
	p.mu.Lock()
	if p.conns[id] == pc {
		delete(p.conns, id)
	}
	p.mu.Unlock()
}

// Close tears down every peer connection.
func (p *Peer) Close() error {
	p.mu.Lock()
	conns := p.conns
	p.conns = make(map[string]*webrtc.PeerConnection)
	p.mu.Unlock()

	var errs []error
	for _, pc := range conns {
		if err := pc.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// offerRequest is the body of POST /devices/offer.
type offerRequest struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// RegisterAPIRoutes registers the signalling endpoint
func (p *Peer) RegisterAPIRoutes(api fiber.Router) {
	api.Post("/devices/offer", func(c *fiber.Ctx) error {
		var req offerRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if req.SDP == "" {
			return fiber.NewError(fiber.StatusBadRequest, "missing sdp")
		}
		if req.Type != "" && req.Type != "offer" {
			return fiber.NewError(fiber.StatusBadRequest, "expected an offer")
		}
		if req.ID == "" {
			req.ID = uuid.NewString()
		}

		answer, err := p.HandleOffer(c.UserContext(), req.ID, webrtc.SessionDescription{
			Type: webrtc.SDPTypeOffer,
			SDP:  req.SDP,
		})
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		return c.JSON(fiber.Map{
			"id":   req.ID,
			"type": answer.Type.String(),
			"sdp":  answer.SDP,
		})
	})
}
