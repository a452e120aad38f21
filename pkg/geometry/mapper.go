package geometry

import (
	"errors"
	"fmt"
	"math"
)

// MapperConfig controls how projected boxes are padded and bounded.
type MapperConfig struct {
	PaddingWidth      float64 `yaml:"padding_width"`       // Extra width as a fraction (0.10 = +10%)
	PaddingHeight     float64 `yaml:"padding_height"`      // Extra height as a fraction
	MinWidth          float64 `yaml:"min_width"`           // Pixels
	MinHeight         float64 `yaml:"min_height"`          // Pixels
	MaxWidthFraction  float64 `yaml:"max_width_fraction"`  // Of viewport width
	MaxHeightFraction float64 `yaml:"max_height_fraction"` // Of viewport height
}

// DefaultMapperConfig returns the recommended sizing bounds.
func DefaultMapperConfig() MapperConfig {
	return MapperConfig{
		PaddingWidth:      0.10,
		PaddingHeight:     0.15,
		MinWidth:          40,
		MinHeight:         20,
		MaxWidthFraction:  0.80,
		MaxHeightFraction: 0.15,
	}
}

// Validate reports every out-of-range field.
func (c MapperConfig) Validate() error {
	var errs []error
	if c.PaddingWidth < 0 || c.PaddingWidth > 1 {
		errs = append(errs, fmt.Errorf("mapper.padding_width %.2f is out of range [0, 1]", c.PaddingWidth))
	}
	if c.PaddingHeight < 0 || c.PaddingHeight > 1 {
		errs = append(errs, fmt.Errorf("mapper.padding_height %.2f is out of range [0, 1]", c.PaddingHeight))
	}
	if c.MinWidth <= 0 {
		errs = append(errs, fmt.Errorf("mapper.min_width must be positive, got %.1f", c.MinWidth))
	}
	if c.MinHeight <= 0 {
		errs = append(errs, fmt.Errorf("mapper.min_height must be positive, got %.1f", c.MinHeight))
	}
	if c.MaxWidthFraction <= 0 || c.MaxWidthFraction > 1 {
		errs = append(errs, fmt.Errorf("mapper.max_width_fraction %.2f is out of range (0, 1]", c.MaxWidthFraction))
	}
	if c.MaxHeightFraction <= 0 || c.MaxHeightFraction > 1 {
		errs = append(errs, fmt.Errorf("mapper.max_height_fraction %.2f is out of range (0, 1]", c.MaxHeightFraction))
	}
	return errors.Join(errs...)
}

// Placement is where and how large an overlay should be drawn.
type Placement struct {
	Position Point `json:"position"`
	Size     Size  `json:"size"`

	// Adjusted is set when the input box or viewport had to be clamped.
	Adjusted bool `json:"adjusted,omitempty"`
}

// Mapper converts normalized boxes to screen placements. It holds no state
// besides its configuration, so identical inputs always give identical output.
type Mapper struct {
	cfg MapperConfig
}

// NewMapper creates a mapper after validating cfg.
func NewMapper(cfg MapperConfig) (Mapper, error) {
	if err := cfg.Validate(); err != nil {
		return Mapper{}, err
	}
	return Mapper{cfg: cfg}, nil
}

// Config returns the mapper's configuration.
func (m Mapper) Config() MapperConfig {
	return m.cfg
}

// Project converts a normalized box to a raw screen rect (no padding, no
// clamping). Landscape orientations swap the image axes.
func (m Mapper) Project(box Rect, o Orientation, vp Viewport) Rect {
	w, h := vp.Width, vp.Height
	switch o {
	case PortraitUpsideDown:
		return Rect{
			X:      (1 - (box.X + box.Width)) * w,
			Y:      box.Y * h,
			Width:  box.Width * w,
			Height: box.Height * h,
		}
	case LandscapeLeft:
		return Rect{
			X:      box.Y * w,
			Y:      box.X * h,
			Width:  box.Height * w,
			Height: box.Width * h,
		}
	case LandscapeRight:
		return Rect{
			X:      (1 - (box.Y + box.Height)) * w,
			Y:      (1 - (box.X + box.Width)) * h,
			Width:  box.Height * w,
			Height: box.Width * h,
		}
	default:
		return Rect{
			X:      box.X * w,
			Y:      (1 - (box.Y + box.Height)) * h,
			Width:  box.Width * w,
			Height: box.Height * h,
		}
	}
}

// Unproject is the inverse of Project.
func (m Mapper) Unproject(r Rect, o Orientation, vp Viewport) Rect {
	w, h := vp.Width, vp.Height
	switch o {
	case PortraitUpsideDown:
		bw := r.Width / w
		return Rect{
			X:      1 - r.X/w - bw,
			Y:      r.Y / h,
			Width:  bw,
			Height: r.Height / h,
		}
	case LandscapeLeft:
		return Rect{
			X:      r.Y / h,
			Y:      r.X / w,
			Width:  r.Height / h,
			Height: r.Width / w,
		}
	case LandscapeRight:
		bw := r.Height / h
		bh := r.Width / w
		return Rect{
			X:      1 - r.Y/h - bw,
			Y:      1 - r.X/w - bh,
			Width:  bw,
			Height: bh,
		}
	default:
		bh := r.Height / h
		return Rect{
			X:      r.X / w,
			Y:      1 - r.Y/h - bh,
			Width:  r.Width / w,
			Height: bh,
		}
	}
}

// Map returns the screen center and the padded, bounded size for box.
// Out-of-range box components and non-positive viewport dimensions are
// clamped and reported through Placement.Adjusted.
func (m Mapper) Map(box Rect, o Orientation, vp Viewport) Placement {
	adjusted := false

	if !box.IsNormalized() {
		box = box.Clamped()
		adjusted = true
	}
	if !(vp.Width > 0) || math.IsInf(vp.Width, 0) {
		vp.Width = 1
		adjusted = true
	}
	if !(vp.Height > 0) || math.IsInf(vp.Height, 0) {
		vp.Height = 1
		adjusted = true
	}
	if !o.IsValid() {
		o = Portrait
		adjusted = true
	}

	raw := m.Project(box, o, vp)

	maxW := math.Max(m.cfg.MaxWidthFraction*vp.Width, m.cfg.MinWidth)
	maxH := math.Max(m.cfg.MaxHeightFraction*vp.Height, m.cfg.MinHeight)

	size := Size{
		Width:  Clamp(raw.Width*(1+m.cfg.PaddingWidth), m.cfg.MinWidth, maxW),
		Height: Clamp(raw.Height*(1+m.cfg.PaddingHeight), m.cfg.MinHeight, maxH),
	}

	return Placement{
		Position: raw.Center(),
		Size:     size,
		Adjusted: adjusted,
	}
}

// ScreenToNormalized maps a screen point back into the recognizer frame.
// Useful for turning a tap or a drawn ROI into recognizer coordinates.
func (m Mapper) ScreenToNormalized(p Point, o Orientation, vp Viewport) Point {
	r := m.Unproject(Rect{X: p.X, Y: p.Y}, o, vp)
	return Point{X: r.X, Y: r.Y}
}
