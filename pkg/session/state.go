package session

import "fmt"

// State is the lifecycle state of the AR capture session.
type State int

const (
	NotStarted State = iota
	Loading
	Active
	Paused
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Loading:
		return "loading"
	case Active:
		return "active"
	case Paused:
		return "paused"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(b []byte) error {
	for _, v := range []State{NotStarted, Loading, Active, Paused} {
		if v.String() == string(b) {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("session: unknown state %q", b)
}

// TrackingState is the camera tracking quality reported by the capture.
type TrackingState int

const (
	TrackingNotAvailable TrackingState = iota
	TrackingLimited
	TrackingNormal
)

func (t TrackingState) String() string {
	switch t {
	case TrackingLimited:
		return "limited"
	case TrackingNormal:
		return "normal"
	default:
		return "not_available"
	}
}

// MarshalText encodes the tracking state by name.
func (t TrackingState) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText decodes a tracking state name.
func (t *TrackingState) UnmarshalText(b []byte) error {
	*t = ParseTrackingState(string(b))
	return nil
}

// ParseTrackingState decodes a wire name. Unknown names map to
// TrackingNotAvailable.
func ParseTrackingState(s string) TrackingState {
	switch s {
	case "normal":
		return TrackingNormal
	case "limited":
		return TrackingLimited
	default:
		return TrackingNotAvailable
	}
}

// TrackingReason explains limited tracking.
type TrackingReason string

const (
	ReasonNone                 TrackingReason = ""
	ReasonInitializing         TrackingReason = "initializing"
	ReasonRelocalizing         TrackingReason = "relocalizing"
	ReasonExcessiveMotion      TrackingReason = "excessive_motion"
	ReasonInsufficientFeatures TrackingReason = "insufficient_features"
)

// Tracking is one tracking-state signal.
type Tracking struct {
	State  TrackingState  `json:"state"`
	Reason TrackingReason `json:"reason,omitempty"`
}

// IsNormal reports whether tracking is fully available.
func (t Tracking) IsNormal() bool {
	return t.State == TrackingNormal
}
