// Package observe provides the OpenTelemetry metrics for the overlay
// pipeline and the HTTP layer.
//
// Metrics are recorded through the OpenTelemetry Metrics API and scraped
// through the Prometheus exporter bridge set up by [InitProvider]. Tests
// should build their own [Metrics] with [NewMetrics] and a ManualReader.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/teslashibe/go-arlens"

// Metrics holds every instrument. All fields are safe for concurrent use.
type Metrics struct {
	// --- Frames ---

	// FramesReceived counts frames offered by the capture.
	FramesReceived metric.Int64Counter

	// FramesSampled counts frames dispatched for recognition.
	FramesSampled metric.Int64Counter

	// FramesDropped counts dropped frames. Attribute: reason (session, busy, interval).
	FramesDropped metric.Int64Counter

	// StuckRecoveries counts force-cleared in-flight recognitions.
	StuckRecoveries metric.Int64Counter

	// --- Latency ---

	// RecognitionDuration tracks recognizer latency. Attribute: status.
	RecognitionDuration metric.Float64Histogram

	// TranslationDuration tracks translation latency on cache misses. Attribute: status.
	TranslationDuration metric.Float64Histogram

	// --- Overlays ---

	// OverlaysCreated counts new overlays.
	OverlaysCreated metric.Int64Counter

	// OverlaysUpdated counts matched overlays. Attribute: action (updated, ignored).
	OverlaysUpdated metric.Int64Counter

	// OverlaysRemoved counts removed overlays. Attribute: reason (evicted, stale, cleared, teardown).
	OverlaysRemoved metric.Int64Counter

	// OverlaysRejected counts updates refused by the store.
	OverlaysRejected metric.Int64Counter

	// ActiveOverlays is the current overlay count.
	ActiveOverlays metric.Int64Gauge

	// --- Session and devices ---

	// SessionTransitions counts lifecycle transitions. Attributes: from, to.
	SessionTransitions metric.Int64Counter

	// DeviceConnections tracks connected capture devices. Attribute: transport.
	DeviceConnections metric.Int64UpDownCounter

	// RenderClients tracks connected render clients.
	RenderClients metric.Int64UpDownCounter

	// --- HTTP ---

	// HTTPRequestDuration tracks request latency. Attributes: method, route, status.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets in seconds, spanning local OCR to slow cloud round trips.
var latencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5,
}

// NewMetrics creates all instruments from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.FramesReceived, err = m.Int64Counter("arlens.frames.received",
		metric.WithDescription("Frames offered by the capture."),
	); err != nil {
		return nil, err
	}
	if met.FramesSampled, err = m.Int64Counter("arlens.frames.sampled",
		metric.WithDescription("Frames dispatched for recognition."),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("arlens.frames.dropped",
		metric.WithDescription("Frames dropped by reason."),
	); err != nil {
		return nil, err
	}
	if met.StuckRecoveries, err = m.Int64Counter("arlens.sampler.stuck_recoveries",
		metric.WithDescription("In-flight recognitions force-cleared after the stuck timeout."),
	); err != nil {
		return nil, err
	}

	if met.RecognitionDuration, err = m.Float64Histogram("arlens.recognition.duration",
		metric.WithDescription("Latency of text recognition."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TranslationDuration, err = m.Float64Histogram("arlens.translation.duration",
		metric.WithDescription("Latency of translation cache misses."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.OverlaysCreated, err = m.Int64Counter("arlens.overlays.created",
		metric.WithDescription("Overlays created."),
	); err != nil {
		return nil, err
	}
	if met.OverlaysUpdated, err = m.Int64Counter("arlens.overlays.updated",
		metric.WithDescription("Recognitions matched to an existing overlay."),
	); err != nil {
		return nil, err
	}
	if met.OverlaysRemoved, err = m.Int64Counter("arlens.overlays.removed",
		metric.WithDescription("Overlays removed by reason."),
	); err != nil {
		return nil, err
	}
	if met.OverlaysRejected, err = m.Int64Counter("arlens.overlays.rejected",
		metric.WithDescription("Overlay updates rejected as invalid."),
	); err != nil {
		return nil, err
	}
	if met.ActiveOverlays, err = m.Int64Gauge("arlens.overlays.active",
		metric.WithDescription("Overlays currently displayed."),
	); err != nil {
		return nil, err
	}

	if met.SessionTransitions, err = m.Int64Counter("arlens.session.transitions",
		metric.WithDescription("Session lifecycle transitions."),
	); err != nil {
		return nil, err
	}
	if met.DeviceConnections, err = m.Int64UpDownCounter("arlens.devices.connected",
		metric.WithDescription("Connected capture devices."),
	); err != nil {
		return nil, err
	}
	if met.RenderClients, err = m.Int64UpDownCounter("arlens.render.clients",
		metric.WithDescription("Connected overlay render clients."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("arlens.http.request.duration",
		metric.WithDescription("HTTP request latency by method, route and status."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// Noop returns metrics that record nothing.
func Noop() *Metrics {
	m, _ := NewMetrics(noop.NewMeterProvider())
	return m
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level instance built from the global
// meter provider on first use.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Or returns m, or a no-op instance when m is nil.
func Or(m *Metrics) *Metrics {
	if m == nil {
		return Noop()
	}
	return m
}

// RecordFrameDropped increments the dropped-frame counter for reason.
func (m *Metrics) RecordFrameDropped(ctx context.Context, reason string) {
	m.FramesDropped.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordRecognition records a recognizer call.
func (m *Metrics) RecordRecognition(ctx context.Context, d time.Duration, err error) {
	m.RecognitionDuration.Record(ctx, d.Seconds(), metric.WithAttributes(status(err)))
}

// RecordTranslation records a translation cache miss.
func (m *Metrics) RecordTranslation(ctx context.Context, d time.Duration, err error) {
	m.TranslationDuration.Record(ctx, d.Seconds(), metric.WithAttributes(status(err)))
}

// RecordOverlayMatched counts a recognition matched to an existing overlay.
func (m *Metrics) RecordOverlayMatched(ctx context.Context, action string) {
	m.OverlaysUpdated.Add(ctx, 1, metric.WithAttributes(attribute.String("action", action)))
}

// RecordOverlaysRemoved adds n removals for reason.
func (m *Metrics) RecordOverlaysRemoved(ctx context.Context, reason string, n int) {
	if n <= 0 {
		return
	}
	m.OverlaysRemoved.Add(ctx, int64(n), metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordSessionTransition counts a lifecycle transition.
func (m *Metrics) RecordSessionTransition(ctx context.Context, from, to string) {
	m.SessionTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

func status(err error) attribute.KeyValue {
	if err != nil {
		return attribute.String("status", "error")
	}
	return attribute.String("status", "ok")
}
