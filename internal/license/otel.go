package license

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"licensekit/internal/events"
)

const (
	TracerName = "licensekit-reader"
	MeterName  = "licensekit-reader"
)

// ReaderMetrics holds the OpenTelemetry instruments of the reader and the
// acquirer.
type ReaderMetrics struct {
	Reads        metric.Int64Counter
	FatalReads   metric.Int64Counter
	Events       metric.Int64Counter
	RecordsFound metric.Int64Counter
	ReadDuration metric.Float64Histogram

	Acquisitions   metric.Int64Counter
	SignatureFails metric.Int64Counter
}

// InitializeReaderMetrics creates all reader instruments on meter.
func InitializeReaderMetrics(meter metric.Meter) (*ReaderMetrics, error) {
	metrics := &ReaderMetrics{}

	var err error

	metrics.Reads, err = meter.Int64Counter(
		"license_reads_total",
		metric.WithDescription("Total number of license read attempts"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create reads counter: %w", err)
	}

	metrics.FatalReads, err = meter.Int64Counter(
		"license_reads_fatal_total",
		metric.WithDescription("License reads that found no usable record"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create fatal reads counter: %w", err)
	}

	metrics.Events, err = meter.Int64Counter(
		"license_events_total",
		metric.WithDescription("Diagnostic events recorded while reading licenses, by kind"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create events counter: %w", err)
	}

	metrics.RecordsFound, err = meter.Int64Counter(
		"license_records_found_total",
		metric.WithDescription("Structurally valid license records found"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create records counter: %w", err)
	}

	metrics.ReadDuration, err = meter.Float64Histogram(
		"license_read_duration_seconds",
		metric.WithDescription("License read duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create read duration histogram: %w", err)
	}

	metrics.Acquisitions, err = meter.Int64Counter(
		"license_acquisitions_total",
		metric.WithDescription("License acquisitions by result"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create acquisitions counter: %w", err)
	}

	metrics.SignatureFails, err = meter.Int64Counter(
		"license_signature_failures_total",
		metric.WithDescription("Records rejected by signature verification"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create signature failures counter: %w", err)
	}

	return metrics, nil
}

// NewReaderMetrics creates the instruments on the global meter provider.
func NewReaderMetrics() (*ReaderMetrics, error) {
	return InitializeReaderMetrics(otel.Meter(MeterName))
}

// traceRead wraps one reader call with a span and records its metrics.
func (r *Reader) traceRead(ctx context.Context, product string, fn func(ctx context.Context) ([]FullLicenseInfo, events.Registry)) ([]FullLicenseInfo, events.Registry) {
	tracer := otel.Tracer(TracerName)

	ctx, span := tracer.Start(ctx, "license.read",
		trace.WithAttributes(
			attribute.String("license.product", product),
			attribute.String("component", "license_reader"),
		),
	)
	defer span.End()

	start := time.Now()
	records, reg := fn(ctx)
	duration := time.Since(start)

	if r.metrics != nil {
		r.recordReadMetrics(ctx, product, duration, records, reg)
	}

	span.SetAttributes(
		attribute.Float64("license.duration_ms", float64(duration.Milliseconds())),
		attribute.Int("license.records", len(records)),
		attribute.Int("license.events", reg.Len()),
		attribute.Bool("license.fatal", reg.IsFatal()),
	)

	if reg.IsFatal() {
		span.SetStatus(codes.Error, "no usable license found")
	} else {
		span.SetStatus(codes.Ok, "license found")
	}
	if span.IsRecording() {
		for _, e := range reg.Events() {
			span.AddEvent(e.Kind.String(), trace.WithAttributes(
				attribute.String("license.source", e.Source),
				attribute.String("license.severity", reg.SeverityOf(e).String()),
			))
		}
	}

	return records, reg
}

func (r *Reader) recordReadMetrics(ctx context.Context, product string, duration time.Duration, records []FullLicenseInfo, reg events.Registry) {
	labels := metric.WithAttributes(attribute.String("product", product))

	r.metrics.Reads.Add(ctx, 1, labels)
	r.metrics.ReadDuration.Record(ctx, duration.Seconds(), labels)
	r.metrics.RecordsFound.Add(ctx, int64(len(records)), labels)
	if reg.IsFatal() {
		r.metrics.FatalReads.Add(ctx, 1, labels)
	}

	for _, e := range reg.Events() {
		r.metrics.Events.Add(ctx, 1, metric.WithAttributes(
			attribute.String("product", product),
			attribute.String("kind", e.Kind.String()),
		))
	}
}

func (m *ReaderMetrics) recordAcquisition(ctx context.Context, product, result string, signatureFailures int) {
	if m == nil {
		return
	}
	m.Acquisitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("product", product),
		attribute.String("result", result),
	))
	if signatureFailures > 0 {
		m.SignatureFails.Add(ctx, int64(signatureFailures), metric.WithAttributes(
			attribute.String("product", product),
		))
	}
}
