// arlens: AR translation overlay server.
// Devices stream camera frames and tracking state in; render clients
// receive positioned, translated overlays back.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-arlens/internal/config"
	"github.com/teslashibe/go-arlens/internal/log"
	"github.com/teslashibe/go-arlens/pkg/device"
	"github.com/teslashibe/go-arlens/pkg/engine"
	"github.com/teslashibe/go-arlens/pkg/observe"
	"github.com/teslashibe/go-arlens/pkg/recognition"
	"github.com/teslashibe/go-arlens/pkg/recognition/cloudvision"
	"github.com/teslashibe/go-arlens/pkg/recognition/tesseract"
	"github.com/teslashibe/go-arlens/pkg/translation"
	"github.com/teslashibe/go-arlens/pkg/translation/google"
	"github.com/teslashibe/go-arlens/pkg/web"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"
)

var version = "0.1.0"

var (
	configPath = flag.String("config", "", "Path to YAML config (default $ARLENS_CONFIG)")
	port       = flag.String("port", "", "HTTP server port (overrides config)")
	logLevel   = flag.String("log-level", "", "Log level: debug, info, warn, error")
	recognizer = flag.String("recognizer", "", "Text recognizer: tesseract, cloudvision")
	translator = flag.String("translator", "", "Translator: google, dictionary")
	transport  = flag.String("device", "", "Device transport: websocket, webrtc, all")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(config.Path(*configPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "arlens: %v\n", err)
		os.Exit(1)
	}
	applyFlags(cfg)
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "arlens: %v\n", err)
		os.Exit(1)
	}

	log.Init(cfg.Server.LogLevel)
	logger := log.L()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("arlens stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("goodbye")
}

// applyFlags lets command line flags override the loaded config.
func applyFlags(cfg *config.Config) {
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *logLevel != "" {
		cfg.Server.LogLevel = *logLevel
	}
	if *recognizer != "" {
		cfg.Recognizer.Provider = *recognizer
	}
	if *translator != "" {
		cfg.Translator.Provider = *translator
	}
	if *transport != "" {
		cfg.Device.Transport = *transport
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	defer shutdownMetrics(context.Background())

	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	rec, err := newRecognizer(ctx, cfg.Recognizer, logger)
	if err != nil {
		return err
	}
	defer rec.Close()

	tr, err := newTranslator(ctx, cfg.Translator, logger)
	if err != nil {
		return err
	}

	devices := device.NewHub(logger.With("component", "device"), metrics)
	defer devices.Close()

	eng, err := engine.New(cfg.Engine, engine.Deps{
		Recognizer: rec,
		Translator: tr,
		Capture:    devices,
		Logger:     logger,
		Metrics:    metrics,
	})
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	devices.SetSink(eng)
	cancelPush := eng.Subscribe(devices.PushSnapshot)
	defer cancelPush()

	registrars := []web.RouteRegistrar{devices}
	var peer *device.Peer
	if cfg.Device.WebRTCEnabled() {
		peer = device.NewPeer(devices, cfg.Device.WebRTC)
		defer peer.Close()
		registrars = append(registrars, peer)
	}

	srv := web.NewServer(eng, web.Config{
		Port:       cfg.Server.Port,
		StaticDir:  cfg.Server.StaticDir,
		RequestLog: cfg.Server.LogLevel == "debug",
		Logger:     logger.With("component", "web"),
		Metrics:    metrics,
	}, registrars...)
	if cfg.Device.WebSocket() {
		devices.RegisterRoutes(srv.App())
	}

	logger.Info("arlens starting",
		"version", version,
		"port", cfg.Server.Port,
		"recognizer", cfg.Recognizer.Provider,
		"translator", cfg.Translator.Provider,
		"device", cfg.Device.Transport,
		"staleness", cfg.Engine.Overlay.Staleness,
		"target", cfg.Engine.TargetLanguage)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return eng.Run(ctx)
	})
	g.Go(func() error {
		return srv.Start(ctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newRecognizer(ctx context.Context, cfg config.RecognizerConfig, logger *slog.Logger) (recognition.Recognizer, error) {
	switch cfg.Provider {
	case config.RecognizerCloudVision:
		return cloudvision.New(ctx, cfg.CloudVision, logger.With("component", "cloudvision"))
	case config.RecognizerTesseract:
		return tesseract.New(cfg.Tesseract, logger.With("component", "tesseract"))
	}
	return nil, fmt.Errorf("unknown recognizer %q", cfg.Provider)
}

func newTranslator(ctx context.Context, cfg config.TranslatorConfig, logger *slog.Logger) (translation.Translator, error) {
	switch cfg.Provider {
	case config.TranslatorGoogle:
		return google.New(ctx, cfg.Google, logger.With("component", "translate"))
	case config.TranslatorDictionary:
		return translation.NewMock(cfg.Dictionary), nil
	}
	return nil, fmt.Errorf("unknown translator %q", cfg.Provider)
}
