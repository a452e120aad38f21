package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/teslashibe/go-arlens/pkg/geometry"
	"github.com/teslashibe/go-arlens/pkg/overlay"
	"github.com/teslashibe/go-arlens/pkg/recognition"
	"github.com/teslashibe/go-arlens/pkg/sampler"
	"github.com/teslashibe/go-arlens/pkg/session"
	"github.com/teslashibe/go-arlens/pkg/translation"
)

// Config holds every engine parameter. Sub-configs are validated by their
// own packages.
type Config struct {
	Sampler sampler.Config           `yaml:"sampler"`
	Mapper  geometry.MapperConfig    `yaml:"mapper"`
	Overlay overlay.Config           `yaml:"overlay"`
	Session session.Config           `yaml:"session"`
	Filter  recognition.FilterConfig `yaml:"filter"`
	Cache   translation.CacheConfig  `yaml:"cache"`

	// Languages
	SourceLanguage string `yaml:"source_language"` // Empty lets the translator detect
	TargetLanguage string `yaml:"target_language"`

	// Timeouts
	RecognitionTimeout time.Duration `yaml:"recognition_timeout"`
	TranslationTimeout time.Duration `yaml:"translation_timeout"`

	// Display used until the device reports one
	Display Display `yaml:"display"`

	// InboxSize bounds queued actor messages.
	InboxSize int `yaml:"inbox_size"`
}

// DefaultConfig returns production defaults: 5 Hz sampling, live tracking
// staleness, Spanish auto-detected into English.
func DefaultConfig() Config {
	return Config{
		Sampler: sampler.DefaultConfig(),
		Mapper:  geometry.DefaultMapperConfig(),
		Overlay: overlay.DefaultConfig(),
		Session: session.DefaultConfig(),
		Filter:  recognition.DefaultFilterConfig(),
		Cache:   translation.DefaultCacheConfig(),

		TargetLanguage: "en",

		RecognitionTimeout: 2 * time.Second,
		TranslationTimeout: 3 * time.Second,

		Display: Display{
			Orientation: geometry.Portrait,
			Viewport:    geometry.Viewport{Width: 390, Height: 844},
		},

		InboxSize: 256,
	}
}

// PinboardConfig keeps overlays until cleared.
func PinboardConfig() Config {
	cfg := DefaultConfig()
	cfg.Overlay.Staleness = overlay.Pinboard
	return cfg
}

// Validate joins the validation errors of every section.
func (c Config) Validate() error {
	errs := []error{
		c.Sampler.Validate(),
		c.Mapper.Validate(),
		c.Overlay.Validate(),
		c.Session.Validate(),
		c.Filter.Validate(),
		c.Cache.Validate(),
	}

	if c.TargetLanguage == "" {
		errs = append(errs, errors.New("engine.target_language is required"))
	}
	if c.RecognitionTimeout <= 0 {
		errs = append(errs, fmt.Errorf("engine.recognition_timeout must be positive, got %v", c.RecognitionTimeout))
	}
	if c.RecognitionTimeout > c.Sampler.StuckTimeout*10 {
		errs = append(errs, fmt.Errorf("engine.recognition_timeout %v is far beyond sampler.stuck_timeout %v", c.RecognitionTimeout, c.Sampler.StuckTimeout))
	}
	if c.TranslationTimeout <= 0 {
		errs = append(errs, fmt.Errorf("engine.translation_timeout must be positive, got %v", c.TranslationTimeout))
	}
	if !c.Display.Orientation.IsValid() {
		errs = append(errs, fmt.Errorf("engine.display.orientation %d is invalid", c.Display.Orientation))
	}
	if !c.Display.Viewport.IsValid() {
		errs = append(errs, fmt.Errorf("engine.display.viewport %vx%v must be positive", c.Display.Viewport.Width, c.Display.Viewport.Height))
	}
	if c.InboxSize < 1 {
		errs = append(errs, fmt.Errorf("engine.inbox_size must be at least 1, got %d", c.InboxSize))
	}
	return errors.Join(errs...)
}
