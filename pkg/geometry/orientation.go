package geometry

import "fmt"

// Orientation is the physical device orientation used to interpret
// recognizer coordinates.
type Orientation int

const (
	Portrait Orientation = iota
	PortraitUpsideDown
	LandscapeLeft
	LandscapeRight
)

var orientationNames = map[Orientation]string{
	Portrait:           "portrait",
	PortraitUpsideDown: "portraitUpsideDown",
	LandscapeLeft:      "landscapeLeft",
	LandscapeRight:     "landscapeRight",
}

// Orientations lists every supported orientation.
var Orientations = []Orientation{Portrait, PortraitUpsideDown, LandscapeLeft, LandscapeRight}

// String returns the wire name of the orientation.
func (o Orientation) String() string {
	if name, ok := orientationNames[o]; ok {
		return name
	}
	return fmt.Sprintf("orientation(%d)", int(o))
}

// IsLandscape reports whether the image axes are swapped on screen.
func (o Orientation) IsLandscape() bool {
	return o == LandscapeLeft || o == LandscapeRight
}

// IsValid reports whether o is one of the four known orientations.
func (o Orientation) IsValid() bool {
	_, ok := orientationNames[o]
	return ok
}

// ParseOrientation accepts the wire names returned by String.
func ParseOrientation(s string) (Orientation, error) {
	for o, name := range orientationNames {
		if name == s {
			return o, nil
		}
	}
	return Portrait, fmt.Errorf("geometry: unknown orientation %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (o Orientation) MarshalText() ([]byte, error) {
	if !o.IsValid() {
		return nil, fmt.Errorf("geometry: invalid orientation %d", int(o))
	}
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *Orientation) UnmarshalText(b []byte) error {
	v, err := ParseOrientation(string(b))
	if err != nil {
		return err
	}
	*o = v
	return nil
}
