package license

import (
	"context"
	"log/slog"
	"strings"

	"licensekit/internal/events"
	"licensekit/internal/infrastructure"
	"licensekit/internal/licfile"
	"licensekit/internal/locate"
)

// LocatorFunc resolves the active locator strategies for a product.
type LocatorFunc func(product string) ([]locate.Locator, error)

// StrategiesFrom returns a LocatorFunc building strategies from base with the
// product filled in.
func StrategiesFrom(base locate.Options) LocatorFunc {
	return func(product string) ([]locate.Locator, error) {
		opts := base
		opts.Product = product
		return locate.ActiveStrategies(opts)
	}
}

// Reader finds the license records of a product across every active
// locator strategy. It holds no per-call state and is safe for concurrent
// use.
type Reader struct {
	locators LocatorFunc
	logger   *slog.Logger
	metrics  *ReaderMetrics
}

// NewReader creates a reader. A nil logger uses slog.Default; metrics are
// optional.
func NewReader(locators LocatorFunc, logger *slog.Logger, metrics *ReaderMetrics) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{
		locators: locators,
		logger:   logger.With(slog.String("component", "license_reader")),
		metrics:  metrics,
	}
}

// ReadLicenses walks every candidate location of every active strategy and
// returns the structurally valid records for product, together with the
// diagnostic registry. The registry is fatal when no complete record was
// found. Records are returned regardless of the verdict; signatures are not
// verified here.
func (r *Reader) ReadLicenses(ctx context.Context, product string) ([]FullLicenseInfo, events.Registry) {
	return r.traceRead(ctx, product, func(ctx context.Context) ([]FullLicenseInfo, events.Registry) {
		return r.readLicenses(ctx, product)
	})
}

// Candidates lists the license files the active strategies check for
// product, whether or not they exist.
func (r *Reader) Candidates(product string) ([]string, error) {
	locs, err := r.locators(product)
	if err != nil {
		return nil, err
	}
	return locate.CandidatePaths(locs), nil
}

func (r *Reader) readLicenses(ctx context.Context, product string) ([]FullLicenseInfo, events.Registry) {
	logger := r.logger.With(slog.String("product", product))
	if traceID := infrastructure.GetTraceID(ctx); traceID != "" {
		logger = logger.With(slog.String("trace_id", traceID))
	}

	var trail events.Trail

	active, err := r.locators(product)
	if err != nil {
		logger.Warn("no license locator available", slog.String("error", err.Error()))
		trail.Add(events.LicenseFileNotFound, "")
		return nil, trail.Registry(true)
	}

	var records []FullLicenseInfo
	foundAnyComplete := false

	for _, loc := range active {
		strategy := locate.Describe(loc)
		for _, location := range loc.Locations(&trail) {
			info, ok := r.readLocation(logger.With(slog.String("strategy", strategy)), &trail, loc, location, product)
			if ok {
				records = append(records, info)
				foundAnyComplete = true
			}
		}
	}

	reg := trail.Registry(!foundAnyComplete)
	if reg.IsFatal() {
		logger.Warn("no usable license found", slog.String("events", reg.String()))
	} else {
		logger.Info("license records found",
			slog.Int("records", len(records)),
			slog.Int("events", reg.Len()),
		)
	}
	return records, reg
}

func (r *Reader) readLocation(logger *slog.Logger, trail *events.Trail, loc locate.Locator, location, product string) (FullLicenseInfo, bool) {
	logger = logger.With(slog.String("location", location))

	content, err := loc.RetrieveContent(location)
	if err != nil {
		logger.Debug("license content unreadable", slog.String("error", err.Error()))
		trail.Add(events.FileFormatNotRecognized, location)
		return FullLicenseInfo{}, false
	}

	doc, err := licfile.Load(content)
	if err != nil {
		logger.Debug("license content not recognized", slog.String("error", err.Error()))
		trail.Add(events.FileFormatNotRecognized, location)
		return FullLicenseInfo{}, false
	}

	if doc.SectionSize(product) <= 0 {
		logger.Debug("product not licensed at location")
		trail.Add(events.ProductNotLicensed, location)
		return FullLicenseInfo{}, false
	}
	trail.Add(events.ProductFound, location)

	sig, hasSig := doc.Value(product, SignatureKey)
	version := doc.LongValue(product, LicenseVersionKey, -1)
	if !hasSig || strings.TrimSpace(sig) == "" || version != SupportedVersion {
		logger.Debug("license malformed",
			slog.Bool("has_signature", hasSig && strings.TrimSpace(sig) != ""),
			slog.Int64("lic_ver", version),
		)
		trail.Add(events.LicenseMalformed, location)
		return FullLicenseInfo{}, false
	}

	info := FullLicenseInfo{
		Source:    location,
		Project:   product,
		Signature: sig,
	}
	for _, key := range doc.Keys(product) {
		value, _ := doc.Value(product, key)
		info.Limits.Set(key, value)
	}
	logger.Debug("license record accepted", slog.Int("limits", info.Limits.Len()))
	return info, true
}
