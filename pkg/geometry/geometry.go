// Package geometry maps recognizer bounding boxes into screen space.
//
// Normalized boxes use the recognizer's native image frame: components in
// [0,1], origin at the BOTTOM-LEFT corner, y growing upward, portrait-relative.
// Screen space uses pixels with the origin at the top-left corner and y
// growing downward.
package geometry

import "math"

// Point is a 2D position.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Distance returns the Euclidean distance between p and q.
func (p Point) Distance(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Add returns p + q.
func (p Point) Add(q Point) Point {
	return Point{X: p.X + q.X, Y: p.Y + q.Y}
}

// Sub returns p - q.
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// Scale returns p * k.
func (p Point) Scale(k float64) Point {
	return Point{X: p.X * k, Y: p.Y * k}
}

// Size is a width/height pair.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// IsPositive reports whether both dimensions are strictly positive.
func (s Size) IsPositive() bool {
	return s.Width > 0 && s.Height > 0
}

// Rect is an axis-aligned rectangle given by its origin corner and size.
// For normalized boxes the origin is the bottom-left corner; for screen
// rects it is the top-left corner.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"w"`
	Height float64 `json:"h"`
}

// Center returns the center point of the rect.
func (r Rect) Center() Point {
	return Point{X: r.X + r.Width/2, Y: r.Y + r.Height/2}
}

// Size returns the rect's dimensions.
func (r Rect) Size() Size {
	return Size{Width: r.Width, Height: r.Height}
}

// Area returns width * height.
func (r Rect) Area() float64 {
	return r.Width * r.Height
}

// IsNormalized reports whether every component lies in [0,1] and the rect
// does not extend past the unit square.
func (r Rect) IsNormalized() bool {
	for _, v := range []float64{r.X, r.Y, r.Width, r.Height} {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return false
		}
	}
	return r.X+r.Width <= 1+1e-9 && r.Y+r.Height <= 1+1e-9
}

// Clamped forces r into the unit square. NaN components become 0.
func (r Rect) Clamped() Rect {
	c := Rect{
		X:      clamp01(r.X),
		Y:      clamp01(r.Y),
		Width:  clamp01(r.Width),
		Height: clamp01(r.Height),
	}
	if c.X+c.Width > 1 {
		c.Width = 1 - c.X
	}
	if c.Y+c.Height > 1 {
		c.Height = 1 - c.Y
	}
	return c
}

// FromROI converts r, expressed relative to the region of interest roi,
// into a box relative to the full image. Both are normalized.
func (r Rect) FromROI(roi Rect) Rect {
	return Rect{
		X:      roi.X + r.X*roi.Width,
		Y:      roi.Y + r.Y*roi.Height,
		Width:  r.Width * roi.Width,
		Height: r.Height * roi.Height,
	}
}

// FullFrame is the normalized rect covering the whole image.
var FullFrame = Rect{X: 0, Y: 0, Width: 1, Height: 1}

// Viewport is the size of the render surface in pixels.
type Viewport struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// IsValid reports whether both dimensions are strictly positive.
func (v Viewport) IsValid() bool {
	return v.Width > 0 && v.Height > 0
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Clamp limits v to [lo, hi]. If hi < lo, lo wins.
func Clamp(v, lo, hi float64) float64 {
	if v > hi {
		v = hi
	}
	if v < lo {
		v = lo
	}
	return v
}
