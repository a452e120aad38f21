// Package cloudvision recognizes text with Google Cloud Vision.
package cloudvision

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"
	"strings"

	"github.com/teslashibe/go-arlens/internal/httpc"
	"github.com/teslashibe/go-arlens/internal/log"
	"github.com/teslashibe/go-arlens/pkg/recognition"
	"gocv.io/x/gocv"
	"google.golang.org/api/vision/v1"
)

const backend = "cloudvision"

// Level selects the granularity of returned fragments.
type Level string

const (
	LevelWord      Level = "word"
	LevelParagraph Level = "paragraph"
)

// Config holds Cloud Vision settings.
type Config struct {
	APIKey        string   `yaml:"api_key"`  // Empty uses Application Default Credentials
	Endpoint      string   `yaml:"endpoint"` // Empty uses the public endpoint
	Level         Level    `yaml:"level"`
	LanguageHints []string `yaml:"language_hints"`
	Document      bool     `yaml:"document"` // DOCUMENT_TEXT_DETECTION instead of TEXT_DETECTION
	JPEGQuality   int      `yaml:"jpeg_quality"`
}

// DefaultConfig returns paragraph-level document detection, which reports
// per-word and per-paragraph confidence.
func DefaultConfig() Config {
	return Config{
		Level:       LevelParagraph,
		Document:    true,
		JPEGQuality: 85,
	}
}

// Validate reports invalid settings.
func (c Config) Validate() error {
	var errs []error
	if c.Level != LevelWord && c.Level != LevelParagraph {
		errs = append(errs, fmt.Errorf("cloudvision.level %q is invalid; valid values: word, paragraph", c.Level))
	}
	if c.JPEGQuality < 10 || c.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("cloudvision.jpeg_quality %d is out of range [10, 100]", c.JPEGQuality))
	}
	return errors.Join(errs...)
}

func (c Config) featureType() string {
	if c.Document {
		return "DOCUMENT_TEXT_DETECTION"
	}
	return "TEXT_DETECTION"
}

// Recognizer calls the Cloud Vision images:annotate endpoint.
type Recognizer struct {
	cfg Config
	svc *vision.Service
	log *slog.Logger
}

// New creates a Cloud Vision recognizer.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Recognizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts, err := httpc.GoogleOptions(ctx, httpc.GoogleAuth{APIKey: cfg.APIKey, Endpoint: cfg.Endpoint}, vision.CloudVisionScope)
	if err != nil {
		return nil, recognition.WrapError(backend, err)
	}
	svc, err := vision.NewService(ctx, opts...)
	if err != nil {
		return nil, recognition.WrapError(backend, fmt.Errorf("create service: %w", err))
	}

	return &Recognizer{cfg: cfg, svc: svc, log: log.Or(logger, "cloudvision")}, nil
}

// Recognize implements recognition.Recognizer.
func (r *Recognizer) Recognize(ctx context.Context, req recognition.Request) ([]recognition.Fragment, error) {
	if len(req.Frame) == 0 {
		return nil, recognition.ErrEmptyFrame
	}

	payload, crop, w, h, err := r.prepare(req)
	if err != nil {
		return nil, err
	}
	if crop.Empty() {
		return nil, nil
	}

	call := r.svc.Images.Annotate(&vision.BatchAnnotateImagesRequest{
		Requests: []*vision.AnnotateImageRequest{{
			Image:    &vision.Image{Content: base64.StdEncoding.EncodeToString(payload)},
			Features: []*vision.Feature{{Type: r.cfg.featureType()}},
			ImageContext: &vision.ImageContext{
				LanguageHints: r.cfg.LanguageHints,
			},
		}},
	})

	resp, err := call.Context(ctx).Do()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, recognition.WrapError(backend, fmt.Errorf("%w: %v", recognition.ErrUnavailable, err))
	}
	if len(resp.Responses) == 0 {
		return nil, nil
	}

	res := resp.Responses[0]
	if res.Error != nil && res.Error.Code != 0 {
		return nil, recognition.WrapError(backend, fmt.Errorf("annotate: code %d: %s", res.Error.Code, res.Error.Message))
	}

	frags := fragments(res.FullTextAnnotation, r.cfg.Level, crop, w, h)
	r.log.Debug("cloud vision recognized",
		"frame_id", req.FrameID,
		"fragments", len(frags),
		"bytes", len(payload))
	return frags, nil
}

// prepare decodes the frame, crops it to the ROI and re-encodes the crop.
// Without a ROI the original bytes are sent as they are.
func (r *Recognizer) prepare(req recognition.Request) ([]byte, image.Rectangle, int, int, error) {
	img, err := gocv.IMDecode(req.Frame, gocv.IMReadColor)
	if err != nil {
		return nil, image.Rectangle{}, 0, 0, fmt.Errorf("%w: %v", recognition.ErrDecode, err)
	}
	defer img.Close()
	if img.Empty() {
		return nil, image.Rectangle{}, 0, 0, recognition.ErrDecode
	}

	w, h := img.Cols(), img.Rows()
	crop := recognition.CropRect(req.Region(), w, h)
	if req.ROI == nil || crop.Empty() || crop == image.Rect(0, 0, w, h) {
		return req.Frame, crop, w, h, nil
	}

	region := img.Region(crop)
	defer region.Close()

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, region, []int{gocv.IMWriteJpegQuality, r.cfg.JPEGQuality})
	if err != nil {
		return nil, image.Rectangle{}, 0, 0, recognition.WrapError(backend, fmt.Errorf("encode crop: %w", err))
	}
	defer buf.Close()

	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, crop, w, h, nil
}

// fragments flattens a text annotation into fragments at the requested
// level. Boxes are converted from crop pixels to the full frame.
func fragments(ann *vision.TextAnnotation, level Level, crop image.Rectangle, w, h int) []recognition.Fragment {
	if ann == nil {
		return nil
	}

	var out []recognition.Fragment
	for _, page := range ann.Pages {
		for _, block := range page.Blocks {
			for _, para := range block.Paragraphs {
				if level == LevelWord {
					for _, word := range para.Words {
						text := wordText(word)
						if text == "" {
							continue
						}
						out = append(out, recognition.Fragment{
							Text:       text,
							Confidence: confidence(word.Confidence),
							Box:        recognition.FromPixels(polyRect(word.BoundingBox), crop, w, h),
						})
					}
					continue
				}

				words := make([]string, 0, len(para.Words))
				for _, word := range para.Words {
					if t := wordText(word); t != "" {
						words = append(words, t)
					}
				}
				if len(words) == 0 {
					continue
				}
				out = append(out, recognition.Fragment{
					Text:       strings.Join(words, " "),
					Confidence: confidence(para.Confidence),
					Box:        recognition.FromPixels(polyRect(para.BoundingBox), crop, w, h),
				})
			}
		}
	}
	return out
}

// confidence maps an unreported score to 1. TEXT_DETECTION leaves
// confidence at zero, which a confidence floor would otherwise reject.
func confidence(c float64) float64 {
	if c <= 0 {
		return 1
	}
	return c
}

func wordText(w *vision.Word) string {
	var b strings.Builder
	for _, s := range w.Symbols {
		b.WriteString(s.Text)
	}
	return strings.TrimSpace(b.String())
}

// polyRect returns the axis-aligned bounds of a polygon. Rotated text gets
// its enclosing box.
func polyRect(p *vision.BoundingPoly) image.Rectangle {
	if p == nil || len(p.Vertices) == 0 {
		return image.Rectangle{}
	}
	minX, minY := int64(math.MaxInt32), int64(math.MaxInt32)
	maxX, maxY := int64(math.MinInt32), int64(math.MinInt32)
	for _, v := range p.Vertices {
		minX = min(minX, v.X)
		minY = min(minY, v.Y)
		maxX = max(maxX, v.X)
		maxY = max(maxY, v.Y)
	}
	return image.Rect(int(minX), int(minY), int(maxX), int(maxY))
}

// Close implements recognition.Recognizer.
func (r *Recognizer) Close() error {
	return nil
}
