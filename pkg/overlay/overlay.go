// Package overlay keeps the set of translated text labels drawn over the
// camera feed: matching new recognitions to existing labels, smoothing
// their positions, sizing their text and evicting old ones.
package overlay

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/teslashibe/go-arlens/pkg/geometry"
)

// Overlay is one translated label anchored to a recognized text occurrence.
type Overlay struct {
	ID  uuid.UUID `json:"id"`
	Key string    `json:"key"` // NormalizeKey(OriginalText)

	OriginalText   string  `json:"original_text"`
	TranslatedText string  `json:"translated_text"`
	Pending        bool    `json:"pending"` // TranslatedText is a placeholder until translation arrives
	Confidence     float64 `json:"confidence"`

	ScreenPosition geometry.Point `json:"screen_position"` // Smoothed center
	TargetPosition geometry.Point `json:"target_position"` // Latest raw mapped center
	OriginalSize   geometry.Size  `json:"original_size"`
	FontSize       float64        `json:"font_size"`

	// Box is the latest normalized recognition box, kept so the overlay
	// can be placed again when the display changes.
	Box geometry.Rect `json:"box"`

	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
	UpdateCount int       `json:"update_count"`

	order uint64
}

// Age returns how long ago the overlay was last confirmed.
func (o *Overlay) Age(now time.Time) time.Duration {
	return now.Sub(o.LastSeen)
}

// IsStale reports whether the overlay would be removed by a sweep at now.
// Overlays are never stale in Pinboard mode.
func (o *Overlay) IsStale(now time.Time, cfg Config) bool {
	if cfg.Staleness != LiveTracking {
		return false
	}
	return o.Age(now) > cfg.StaleThreshold
}

// NormalizeKey is the identity key used to match recognitions: lowercase,
// surrounding whitespace removed.
func NormalizeKey(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// FontSize derives a label font size from the box height, clamped to the
// configured range and reduced for long translations.
func FontSize(cfg Config, height float64, translated string) float64 {
	size := geometry.Clamp(height*cfg.FontHeightRatio, cfg.MinFontSize, cfg.MaxFontSize)

	n := utf8.RuneCountInString(translated)
	switch {
	case n > cfg.VeryLongTextRunes:
		size *= cfg.VeryLongTextScale
	case n > cfg.LongTextRunes:
		size *= cfg.LongTextScale
	}

	if size < cfg.MinFontSize {
		size = cfg.MinFontSize
	}
	return size
}
