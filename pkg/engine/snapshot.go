package engine

import (
	"time"

	"github.com/teslashibe/go-arlens/pkg/geometry"
	"github.com/teslashibe/go-arlens/pkg/overlay"
	"github.com/teslashibe/go-arlens/pkg/sampler"
	"github.com/teslashibe/go-arlens/pkg/session"
	"github.com/teslashibe/go-arlens/pkg/translation"
)

// Display is the render surface the overlays are mapped onto.
type Display struct {
	Orientation geometry.Orientation `json:"orientation" yaml:"orientation"`
	Viewport    geometry.Viewport    `json:"viewport" yaml:"viewport"`
}

// Validate reports whether d can be mapped onto.
func (d Display) Validate() error {
	if !d.Orientation.IsValid() {
		return ErrInvalidOrientation
	}
	if !d.Viewport.IsValid() {
		return ErrInvalidViewport
	}
	return nil
}

// Snapshot is an immutable copy of the overlay set as published to the
// rendering layer. Seq increases with every publication.
type Snapshot struct {
	Seq      uint64            `json:"seq"`
	Overlays []overlay.Overlay `json:"overlays"`
	Session  session.State     `json:"session"`
	Display  Display           `json:"display"`
	At       time.Time         `json:"at"`
}

// Status is a point-in-time view of the whole pipeline.
type Status struct {
	Session   session.Status         `json:"session"`
	Sampler   sampler.Stats          `json:"sampler"`
	Overlays  int                    `json:"overlays"`
	Staleness overlay.StalenessMode  `json:"staleness"`
	Display   Display                `json:"display"`
	ROI       *geometry.Rect         `json:"roi,omitempty"`
	Cache     translation.CacheStats `json:"cache"`

	SourceLanguage string `json:"source_language,omitempty"`
	TargetLanguage string `json:"target_language"`
}
