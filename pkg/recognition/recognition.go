// Package recognition defines the text recognizer capability and the
// filtering applied to its output before fragments reach the overlay store.
//
// Fragment boxes are normalized to the full image with the origin at the
// bottom-left corner, in the portrait-relative frame the camera delivers.
// Recognizers that work on a region of interest convert their boxes back
// to the full image before returning.
package recognition

import (
	"context"
	"image"
	"math"
	"time"

	"github.com/teslashibe/go-arlens/pkg/geometry"
)

// Fragment is one piece of recognized text.
type Fragment struct {
	Text       string        `json:"text"`
	Confidence float64       `json:"confidence"` // 0-1
	Box        geometry.Rect `json:"box"`
}

// Format is the encoding of a frame.
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
)

// Request is one frame submitted for recognition.
type Request struct {
	Frame       []byte
	Format      Format
	Width       int // Pixels, as captured
	Height      int
	Orientation geometry.Orientation
	ROI         *geometry.Rect // Normalized; nil means the whole frame
	FrameID     uint64
	CapturedAt  time.Time
}

// Region returns the effective region of interest.
func (r Request) Region() geometry.Rect {
	if r.ROI == nil {
		return geometry.FullFrame
	}
	return r.ROI.Clamped()
}

// Recognizer finds text in camera frames.
type Recognizer interface {
	// Recognize returns the text fragments found in the frame. It must
	// honor ctx cancellation.
	Recognize(ctx context.Context, req Request) ([]Fragment, error)

	// Close releases resources.
	Close() error
}

// CropRect converts a normalized bottom-left ROI into the pixel rectangle
// (top-left origin) of a w x h image.
func CropRect(roi geometry.Rect, w, h int) image.Rectangle {
	roi = roi.Clamped()
	x0 := int(math.Round(roi.X * float64(w)))
	x1 := int(math.Round((roi.X + roi.Width) * float64(w)))
	y0 := int(math.Round((1 - roi.Y - roi.Height) * float64(h)))
	y1 := int(math.Round((1 - roi.Y) * float64(h)))
	return image.Rect(x0, y0, x1, y1).Intersect(image.Rect(0, 0, w, h))
}

// FromPixels converts a pixel box (top-left origin) found inside crop, an
// area of a w x h image, into a normalized bottom-left box relative to the
// full image.
func FromPixels(box image.Rectangle, crop image.Rectangle, w, h int) geometry.Rect {
	if w <= 0 || h <= 0 {
		return geometry.Rect{}
	}
	box = box.Add(crop.Min)
	fw, fh := float64(w), float64(h)
	return geometry.Rect{
		X:      float64(box.Min.X) / fw,
		Y:      1 - float64(box.Max.Y)/fh,
		Width:  float64(box.Dx()) / fw,
		Height: float64(box.Dy()) / fh,
	}.Clamped()
}
