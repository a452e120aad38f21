// Package tesseract recognizes text locally with Tesseract OCR.
package tesseract

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"
	"github.com/teslashibe/go-arlens/internal/log"
	"github.com/teslashibe/go-arlens/pkg/recognition"
	"gocv.io/x/gocv"
)

const backend = "tesseract"

// Level selects the granularity of returned fragments.
type Level string

const (
	LevelWord Level = "word"
	LevelLine Level = "line"
)

// Config holds Tesseract settings.
type Config struct {
	Languages    []string `yaml:"languages"`     // Tesseract language codes, e.g. "spa"
	Level        Level    `yaml:"level"`         // word or line
	Scale        float64  `yaml:"scale"`         // Upscale factor before OCR
	MaxDimension int      `yaml:"max_dimension"` // Upscaled image never exceeds this
	Threshold    bool     `yaml:"threshold"`     // Apply adaptive thresholding
}

// DefaultConfig returns settings tuned for signs and menus.
func DefaultConfig() Config {
	return Config{
		Languages:    []string{"eng"},
		Level:        LevelLine,
		Scale:        1.5,
		MaxDimension: 2048,
		Threshold:    true,
	}
}

// Validate reports invalid settings.
func (c Config) Validate() error {
	var errs []error
	if len(c.Languages) == 0 {
		errs = append(errs, errors.New("tesseract.languages must not be empty"))
	}
	if c.Level != LevelWord && c.Level != LevelLine {
		errs = append(errs, fmt.Errorf("tesseract.level %q is invalid; valid values: word, line", c.Level))
	}
	if c.Scale < 1 || c.Scale > 4 {
		errs = append(errs, fmt.Errorf("tesseract.scale %.2f is out of range [1, 4]", c.Scale))
	}
	if c.MaxDimension < 256 {
		errs = append(errs, fmt.Errorf("tesseract.max_dimension must be at least 256, got %d", c.MaxDimension))
	}
	return errors.Join(errs...)
}

func (c Config) iteratorLevel() gosseract.PageIteratorLevel {
	if c.Level == LevelWord {
		return gosseract.RIL_WORD
	}
	return gosseract.RIL_TEXTLINE
}

// Recognizer runs Tesseract on decoded frames. A single Tesseract client
// is shared, so calls are serialized.
type Recognizer struct {
	cfg    Config
	log    *slog.Logger
	mu     sync.Mutex
	client *gosseract.Client
}

// New creates a Tesseract recognizer.
func New(cfg Config, logger *slog.Logger) (*Recognizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := gosseract.NewClient()
	if err := client.SetLanguage(cfg.Languages...); err != nil {
		client.Close()
		return nil, recognition.WrapError(backend, fmt.Errorf("set language: %w", err))
	}
	if err := client.SetPageSegMode(gosseract.PSM_SPARSE_TEXT); err != nil {
		client.Close()
		return nil, recognition.WrapError(backend, fmt.Errorf("set page segmentation: %w", err))
	}

	return &Recognizer{
		cfg:    cfg,
		log:    log.Or(logger, "tesseract"),
		client: client,
	}, nil
}

// Recognize implements recognition.Recognizer.
func (r *Recognizer) Recognize(ctx context.Context, req recognition.Request) ([]recognition.Fragment, error) {
	if len(req.Frame) == 0 {
		return nil, recognition.ErrEmptyFrame
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, err := gocv.IMDecode(req.Frame, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", recognition.ErrDecode, err)
	}
	defer img.Close()
	if img.Empty() {
		return nil, recognition.ErrDecode
	}

	w, h := img.Cols(), img.Rows()
	crop := recognition.CropRect(req.Region(), w, h)
	if crop.Empty() {
		return nil, nil
	}

	region := img.Region(crop)
	defer region.Close()

	processed, scale := r.preprocess(region)
	defer processed.Close()

	buf, err := gocv.IMEncode(gocv.PNGFileExt, processed)
	if err != nil {
		return nil, recognition.WrapError(backend, fmt.Errorf("encode: %w", err))
	}
	defer buf.Close()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.client.SetImageFromBytes(buf.GetBytes()); err != nil {
		return nil, recognition.WrapError(backend, fmt.Errorf("set image: %w", err))
	}
	boxes, err := r.client.GetBoundingBoxes(r.cfg.iteratorLevel())
	if err != nil {
		return nil, recognition.WrapError(backend, fmt.Errorf("bounding boxes: %w", err))
	}

	frags := make([]recognition.Fragment, 0, len(boxes))
	for _, b := range boxes {
		text := strings.TrimSpace(b.Word)
		if text == "" {
			continue
		}
		frags = append(frags, recognition.Fragment{
			Text:       text,
			Confidence: b.Confidence / 100,
			Box:        recognition.FromPixels(unscale(b.Box, scale), crop, w, h),
		})
	}

	r.log.Debug("tesseract recognized",
		"frame_id", req.FrameID,
		"fragments", len(frags),
		"crop", crop.String())
	return frags, nil
}

// preprocess converts to grayscale, upscales and optionally thresholds.
// The returned Mat must be closed by the caller.
func (r *Recognizer) preprocess(src gocv.Mat) (gocv.Mat, float64) {
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(src, &gray, gocv.ColorBGRToGray)

	scale := fitScale(gray.Cols(), gray.Rows(), r.cfg.Scale, r.cfg.MaxDimension)
	size := image.Pt(int(float64(gray.Cols())*scale), int(float64(gray.Rows())*scale))

	resized := gocv.NewMat()
	gocv.Resize(gray, &resized, size, 0, 0, gocv.InterpolationLinear)
	if !r.cfg.Threshold {
		return resized, scale
	}
	defer resized.Close()

	thresholded := gocv.NewMat()
	gocv.AdaptiveThreshold(resized, &thresholded, 255, gocv.AdaptiveThresholdMean, gocv.ThresholdBinary, 11, 2)
	return thresholded, scale
}

// fitScale returns scale reduced so neither side exceeds maxDim.
func fitScale(w, h int, scale float64, maxDim int) float64 {
	if w <= 0 || h <= 0 {
		return 1
	}
	limit := math.Min(float64(maxDim)/float64(w), float64(maxDim)/float64(h))
	return math.Min(scale, limit)
}

// unscale maps a box found in the upscaled image back to crop pixels.
func unscale(b image.Rectangle, scale float64) image.Rectangle {
	if scale <= 0 {
		return b
	}
	return image.Rect(
		int(math.Round(float64(b.Min.X)/scale)),
		int(math.Round(float64(b.Min.Y)/scale)),
		int(math.Round(float64(b.Max.X)/scale)),
		int(math.Round(float64(b.Max.Y)/scale)),
	)
}

// Close releases the Tesseract client.
func (r *Recognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.client.Close()
}
