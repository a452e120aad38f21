// Package google translates text with Google Cloud Translation (v2).
package google

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"github.com/teslashibe/go-arlens/internal/httpc"
	"github.com/teslashibe/go-arlens/internal/log"
	"github.com/teslashibe/go-arlens/pkg/translation"
	"google.golang.org/api/googleapi"
	translate "google.golang.org/api/translate/v2"
)

const provider = "google"

// Config holds Cloud Translation settings.
type Config struct {
	APIKey   string `yaml:"api_key"`  // Empty uses Application Default Credentials
	Endpoint string `yaml:"endpoint"` // Empty uses the public endpoint
	Model    string `yaml:"model"`    // "nmt" or "base"; empty lets the service choose
}

// Translator calls the Cloud Translation v2 API.
type Translator struct {
	cfg Config
	svc *translate.Service
	log *slog.Logger
}

// New creates a Cloud Translation client.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Translator, error) {
	opts, err := httpc.GoogleOptions(ctx, httpc.GoogleAuth{APIKey: cfg.APIKey, Endpoint: cfg.Endpoint}, translate.CloudTranslationScope)
	if err != nil {
		return nil, translation.WrapError(provider, err)
	}
	svc, err := translate.NewService(ctx, opts...)
	if err != nil {
		return nil, translation.WrapError(provider, fmt.Errorf("create service: %w", err))
	}
	return &Translator{cfg: cfg, svc: svc, log: log.Or(logger, "translate")}, nil
}

// Translate implements translation.Translator.
func (t *Translator) Translate(ctx context.Context, text, source, target string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", translation.ErrEmptyText
	}

	call := t.svc.Translations.List([]string{text}, target).Format("text")
	if source != "" {
		call = call.Source(source)
	}
	if t.cfg.Model != "" {
		call = call.Model(t.cfg.Model)
	}

	resp, err := call.Context(ctx).Do()
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", translation.WrapError(provider, classify(err))
	}
	if len(resp.Translations) == 0 {
		return "", translation.WrapError(provider, errors.New("empty response"))
	}

	tr := resp.Translations[0]
	t.log.Debug("translated",
		"chars", len(text),
		"detected", tr.DetectedSourceLanguage,
		"target", target)
	return html.UnescapeString(tr.TranslatedText), nil
}

// classify maps googleapi errors onto translation errors.
func classify(err error) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return fmt.Errorf("%w: %v", translation.ErrProviderUnavailable, err)
	}

	apiErr := &translation.APIError{StatusCode: gerr.Code, Message: gerr.Message, Provider: provider}
	if gerr.Code == 400 && strings.Contains(strings.ToLower(gerr.Message), "language") {
		return errors.Join(translation.ErrUnsupportedLanguage, apiErr)
	}
	if apiErr.IsRetryable() {
		return errors.Join(translation.ErrProviderUnavailable, apiErr)
	}
	return apiErr
}
