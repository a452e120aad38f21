package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/teslashibe/go-arlens/pkg/device"
	"github.com/teslashibe/go-arlens/pkg/engine"
	"github.com/teslashibe/go-arlens/pkg/recognition/cloudvision"
	"github.com/teslashibe/go-arlens/pkg/recognition/tesseract"
	"github.com/teslashibe/go-arlens/pkg/translation/google"
	"gopkg.in/yaml.v3"
)

// Provider names.
const (
	RecognizerTesseract   = "tesseract"
	RecognizerCloudVision = "cloudvision"

	TranslatorGoogle     = "google"
	TranslatorDictionary = "dictionary"

	DeviceWebSocket = "websocket"
	DeviceWebRTC    = "webrtc"
	DeviceAll       = "all"
)

var (
	validRecognizers = []string{RecognizerTesseract, RecognizerCloudVision}
	validTranslators = []string{TranslatorGoogle, TranslatorDictionary}
	validDevices     = []string{DeviceWebSocket, DeviceWebRTC, DeviceAll}
	validLogLevels   = []string{"debug", "info", "warn", "error"}
)

// Config is the full go-arlens configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Engine     engine.Config    `yaml:"engine"`
	Recognizer RecognizerConfig `yaml:"recognizer"`
	Translator TranslatorConfig `yaml:"translator"`
	Device     DeviceConfig     `yaml:"device"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port       string `yaml:"port"`
	LogLevel   string `yaml:"log_level"`
	StaticDir  string `yaml:"static_dir"`
	RequestLog bool   `yaml:"request_log"`
}

// RecognizerConfig selects and configures the text recognizer.
type RecognizerConfig struct {
	Provider    string             `yaml:"provider"`
	Tesseract   tesseract.Config   `yaml:"tesseract"`
	CloudVision cloudvision.Config `yaml:"cloudvision"`
}

// TranslatorConfig selects and configures the translator.
type TranslatorConfig struct {
	Provider string        `yaml:"provider"`
	Google   google.Config `yaml:"google"`

	// Dictionary backs the offline "dictionary" provider. Keys are lowercase.
	Dictionary map[string]string `yaml:"dictionary"`
}

// DeviceConfig selects the device transports.
type DeviceConfig struct {
	Transport string            `yaml:"transport"` // websocket, webrtc or all
	WebRTC    device.PeerConfig `yaml:"webrtc"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:     DefaultPort,
			LogLevel: DefaultLogLevel,
		},
		Engine: engine.DefaultConfig(),
		Recognizer: RecognizerConfig{
			Provider:    RecognizerTesseract,
			Tesseract:   tesseract.DefaultConfig(),
			CloudVision: cloudvision.DefaultConfig(),
		},
		Translator: TranslatorConfig{
			Provider: TranslatorGoogle,
		},
		Device: DeviceConfig{
			Transport: DeviceAll,
			WebRTC: device.PeerConfig{
				ICEServers: []string{"stun:stun.l.google.com:19302"},
			},
		},
	}
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. An empty path returns the defaults with the environment applied.
func Load(path string) (*Config, error) {
	if path == "" {
		cfg := Default()
		cfg.ApplyEnv()
		return cfg, Validate(cfg)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r over the defaults, applies the
// environment and validates the result. Unknown keys are errors.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.ApplyEnv()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides file values with environment variables.
func (c *Config) ApplyEnv() {
	c.Server.Port = Port(c.Server.Port)
	c.Server.LogLevel = LogLevel(c.Server.LogLevel)
	if key := GoogleAPIKey(); key != "" {
		if c.Recognizer.CloudVision.APIKey == "" {
			c.Recognizer.CloudVision.APIKey = key
		}
		if c.Translator.Google.APIKey == "" {
			c.Translator.Google.APIKey = key
		}
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.Port == "" {
		errs = append(errs, errors.New("server.port is required"))
	}
	if !slices.Contains(validLogLevels, cfg.Server.LogLevel) {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if err := cfg.Engine.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("engine: %w", err))
	}

	switch cfg.Recognizer.Provider {
	case RecognizerTesseract:
		if err := cfg.Recognizer.Tesseract.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("recognizer.tesseract: %w", err))
		}
	case RecognizerCloudVision:
		if err := cfg.Recognizer.CloudVision.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("recognizer.cloudvision: %w", err))
		}
	default:
		errs = append(errs, fmt.Errorf("recognizer.provider %q is invalid; valid values: %v", cfg.Recognizer.Provider, validRecognizers))
	}

	switch cfg.Translator.Provider {
	case TranslatorGoogle:
	case TranslatorDictionary:
		if len(cfg.Translator.Dictionary) == 0 {
			errs = append(errs, errors.New("translator.dictionary must not be empty for the dictionary provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("translator.provider %q is invalid; valid values: %v", cfg.Translator.Provider, validTranslators))
	}

	if !slices.Contains(validDevices, cfg.Device.Transport) {
		errs = append(errs, fmt.Errorf("device.transport %q is invalid; valid values: %v", cfg.Device.Transport, validDevices))
	}

	return errors.Join(errs...)
}

// WebSocket reports whether the websocket device endpoint is enabled.
func (d DeviceConfig) WebSocket() bool {
	return d.Transport == DeviceWebSocket || d.Transport == DeviceAll
}

// WebRTCEnabled reports whether WebRTC ingest is enabled.
func (d DeviceConfig) WebRTCEnabled() bool {
	return d.Transport == DeviceWebRTC || d.Transport == DeviceAll
}
