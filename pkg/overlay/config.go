package overlay

import (
	"errors"
	"fmt"
	"time"
)

// StalenessMode selects how overlays leave the store when their text is
// no longer recognized. It is fixed for the lifetime of a Store.
type StalenessMode string

const (
	// LiveTracking removes overlays that have not been re-confirmed for
	// longer than StaleThreshold. A periodic sweep does the removal.
	LiveTracking StalenessMode = "live"

	// Pinboard keeps overlays until an explicit clear, view teardown or
	// max-count eviction.
	Pinboard StalenessMode = "pinboard"
)

// IsValid reports whether m is a known mode.
func (m StalenessMode) IsValid() bool {
	return m == LiveTracking || m == Pinboard
}

// DeviceClass groups hardware by how many overlays it can render smoothly
// and how large text can be.
type DeviceClass string

const (
	Standard DeviceClass = "standard"
	LowEnd   DeviceClass = "low_end"
	Tablet   DeviceClass = "tablet"
)

// Config holds every tunable of the overlay store.
type Config struct {
	// Capacity
	MaxOverlays int `yaml:"max_overlays"`

	// Staleness
	Staleness      StalenessMode `yaml:"staleness"`
	StaleThreshold time.Duration `yaml:"stale_threshold"` // LiveTracking only
	SweepInterval  time.Duration `yaml:"sweep_interval"`  // LiveTracking only

	// Matching and smoothing (screen pixels)
	MatchRadius     float64 `yaml:"match_radius"`     // Same text within this distance is the same overlay
	NoiseThreshold  float64 `yaml:"noise_threshold"`  // Moves smaller than this are ignored
	SnapDistance    float64 `yaml:"snap_distance"`    // Moves larger than this snap instantly
	SmoothingFactor float64 `yaml:"smoothing_factor"` // Exponential smoothing weight of the new reading

	// Typography
	FontHeightRatio   float64 `yaml:"font_height_ratio"` // Font size per pixel of box height
	MinFontSize       float64 `yaml:"min_font_size"`
	MaxFontSize       float64 `yaml:"max_font_size"`
	LongTextRunes     int     `yaml:"long_text_runes"`      // Translations longer than this shrink
	LongTextScale     float64 `yaml:"long_text_scale"`      // Applied past LongTextRunes
	VeryLongTextRunes int     `yaml:"very_long_text_runes"` // Translations longer than this shrink more
	VeryLongTextScale float64 `yaml:"very_long_text_scale"` // Applied past VeryLongTextRunes
}

// DefaultConfig returns the configuration for a standard phone in live
// tracking mode.
func DefaultConfig() Config {
	return Config{
		MaxOverlays: 15,

		Staleness:      LiveTracking,
		StaleThreshold: 5 * time.Second,
		SweepInterval:  time.Second,

		MatchRadius:     80,
		NoiseThreshold:  3,
		SnapDistance:    50,
		SmoothingFactor: 0.3,

		FontHeightRatio:   0.65,
		MinFontSize:       12,
		MaxFontSize:       28,
		LongTextRunes:     15,
		LongTextScale:     0.9,
		VeryLongTextRunes: 25,
		VeryLongTextScale: 0.8,
	}
}

// LowEndConfig renders fewer overlays for older hardware.
func LowEndConfig() Config {
	cfg := DefaultConfig()
	cfg.MaxOverlays = 8
	cfg.MaxFontSize = 24
	return cfg
}

// TabletConfig allows more and larger overlays on big screens.
func TabletConfig() Config {
	cfg := DefaultConfig()
	cfg.MaxOverlays = 25
	cfg.MinFontSize = 14
	cfg.MaxFontSize = 36
	return cfg
}

// ConfigFor returns the preset for a device class. Unknown classes get the
// standard preset.
func ConfigFor(class DeviceClass) Config {
	switch class {
	case LowEnd:
		return LowEndConfig()
	case Tablet:
		return TabletConfig()
	default:
		return DefaultConfig()
	}
}

// Validate reports every out-of-range field.
func (c Config) Validate() error {
	var errs []error

	if c.MaxOverlays < 1 || c.MaxOverlays > 200 {
		errs = append(errs, fmt.Errorf("overlay.max_overlays %d is out of range [1, 200]", c.MaxOverlays))
	}

	if !c.Staleness.IsValid() {
		errs = append(errs, fmt.Errorf("overlay.staleness %q is invalid; valid values: live, pinboard", c.Staleness))
	}
	if c.Staleness == LiveTracking {
		if c.StaleThreshold < 500*time.Millisecond || c.StaleThreshold > time.Minute {
			errs = append(errs, fmt.Errorf("overlay.stale_threshold %v is out of range [500ms, 1m]", c.StaleThreshold))
		}
		if c.SweepInterval <= 0 || c.SweepInterval > c.StaleThreshold {
			errs = append(errs, fmt.Errorf("overlay.sweep_interval %v must be positive and no longer than stale_threshold", c.SweepInterval))
		}
	}

	if c.MatchRadius <= 0 {
		errs = append(errs, fmt.Errorf("overlay.match_radius must be positive, got %.1f", c.MatchRadius))
	}
	if c.NoiseThreshold < 0 {
		errs = append(errs, fmt.Errorf("overlay.noise_threshold must not be negative, got %.1f", c.NoiseThreshold))
	}
	if c.SnapDistance <= c.NoiseThreshold {
		errs = append(errs, fmt.Errorf("overlay.snap_distance %.1f must exceed noise_threshold %.1f", c.SnapDistance, c.NoiseThreshold))
	}
	if c.SmoothingFactor <= 0 || c.SmoothingFactor > 1 {
		errs = append(errs, fmt.Errorf("overlay.smoothing_factor %.2f is out of range (0, 1]", c.SmoothingFactor))
	}

	if c.FontHeightRatio <= 0 || c.FontHeightRatio > 2 {
		errs = append(errs, fmt.Errorf("overlay.font_height_ratio %.2f is out of range (0, 2]", c.FontHeightRatio))
	}
	if c.MinFontSize <= 0 {
		errs = append(errs, fmt.Errorf("overlay.min_font_size must be positive, got %.1f", c.MinFontSize))
	}
	if c.MaxFontSize < c.MinFontSize {
		errs = append(errs, fmt.Errorf("overlay.max_font_size %.1f is below min_font_size %.1f", c.MaxFontSize, c.MinFontSize))
	}
	if c.LongTextRunes <= 0 || c.VeryLongTextRunes <= c.LongTextRunes {
		errs = append(errs, fmt.Errorf("overlay.long_text_runes (%d) must be positive and below very_long_text_runes (%d)", c.LongTextRunes, c.VeryLongTextRunes))
	}
	if c.LongTextScale <= 0 || c.LongTextScale > 1 {
		errs = append(errs, fmt.Errorf("overlay.long_text_scale %.2f is out of range (0, 1]", c.LongTextScale))
	}
	if c.VeryLongTextScale <= 0 || c.VeryLongTextScale > 1 {
		errs = append(errs, fmt.Errorf("overlay.very_long_text_scale %.2f is out of range (0, 1]", c.VeryLongTextScale))
	}

	return errors.Join(errs...)
}
