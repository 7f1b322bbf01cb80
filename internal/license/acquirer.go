package license

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"licensekit/internal/events"
	"licensekit/internal/signature"
)

var (
	// ErrNotLicensed means no structurally valid record exists for the product.
	ErrNotLicensed = errors.New("product not licensed")
	// ErrNoValidLicense means records exist but none passed verification.
	ErrNoValidLicense = errors.New("no valid license")
)

// Rejection explains why a structurally valid record was not accepted.
type Rejection struct {
	Source string `json:"source"`
	Reason string `json:"reason"`
	err    error
}

func (r Rejection) Unwrap() error { return r.err }

func (r Rejection) Error() string { return r.Source + ": " + r.Reason }

// Acquisition is the outcome of acquiring one product's license.
type Acquisition struct {
	Product    string            `json:"product"`
	Registry   events.Registry   `json:"registry"`
	Records    []FullLicenseInfo `json:"records"`
	Rejections []Rejection       `json:"rejections,omitempty"`
	Accepted   *FullLicenseInfo  `json:"accepted,omitempty"`
	// Verified is false when no verifier was configured.
	Verified bool `json:"verified"`
}

// Licensed reports whether a record was accepted.
func (a *Acquisition) Licensed() bool {
	return a != nil && a.Accepted != nil
}

// Acquirer runs the reader and then checks every returned record's signature
// and limits, accepting the first record that passes both.
type Acquirer struct {
	reader    *Reader
	verifier  signature.Verifier
	swVersion int
	now       func() time.Time
	logger    *slog.Logger
	metrics   *ReaderMetrics
}

// AcquirerOption configures an Acquirer.
type AcquirerOption func(*Acquirer)

// WithVerifier sets the signature verifier. Without one, records are accepted
// on structure and limits alone.
func WithVerifier(v signature.Verifier) AcquirerOption {
	return func(a *Acquirer) { a.verifier = v }
}

// WithSoftwareVersion enables the sw_version_from/sw_version_to window.
func WithSoftwareVersion(v int) AcquirerOption {
	return func(a *Acquirer) { a.swVersion = v }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) AcquirerOption {
	return func(a *Acquirer) { a.now = now }
}

func NewAcquirer(reader *Reader, opts ...AcquirerOption) *Acquirer {
	a := &Acquirer{
		reader:  reader,
		now:     time.Now,
		logger:  reader.logger.With(slog.String("component", "license_acquirer")),
		metrics: reader.metrics,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.verifier == nil {
		a.logger.Warn("no signature verifier configured, licenses are checked structurally only")
	}
	return a
}

// Reader returns the underlying reader.
func (a *Acquirer) Reader() *Reader { return a.reader }

// Acquire reads the product's licenses and selects the accepted one. The
// returned acquisition is never nil, also when an error is returned.
func (a *Acquirer) Acquire(ctx context.Context, product string) (*Acquisition, error) {
	records, reg := a.reader.ReadLicenses(ctx, product)
	acq := &Acquisition{
		Product:  product,
		Registry: reg,
		Records:  records,
		Verified: a.verifier != nil,
	}

	if reg.IsFatal() {
		a.metrics.recordAcquisition(ctx, product, "not_licensed", 0)
		return acq, fmt.Errorf("%w: %s", ErrNotLicensed, product)
	}

	now := a.now()
	signatureFailures := 0
	for i := range records {
		rec := records[i]
		if err := a.check(rec, now); err != nil {
			if errors.Is(err, signature.ErrInvalidSignature) || errors.Is(err, signature.ErrSignatureEncoding) {
				signatureFailures++
			}
			a.logger.Info("license record rejected",
				slog.String("product", product),
				slog.String("source", rec.Source),
				slog.String("reason", err.Error()),
			)
			acq.Rejections = append(acq.Rejections, Rejection{Source: rec.Source, Reason: err.Error(), err: err})
			continue
		}
		acq.Accepted = &rec
		break
	}

	if acq.Accepted == nil {
		a.metrics.recordAcquisition(ctx, product, "rejected", signatureFailures)
		return acq, fmt.Errorf("%w for %s: %d record(s) rejected", ErrNoValidLicense, product, len(acq.Rejections))
	}

	a.metrics.recordAcquisition(ctx, product, "licensed", signatureFailures)
	a.logger.Info("license accepted",
		slog.String("product", product),
		slog.String("source", acq.Accepted.Source),
		slog.Bool("verified", acq.Verified),
	)
	return acq, nil
}

func (a *Acquirer) check(rec FullLicenseInfo, now time.Time) error {
	if a.verifier != nil {
		if err := a.verifier.Verify(rec.PrintForSign(), rec.Signature); err != nil {
			return err
		}
	}
	return rec.CheckLimits(now, a.swVersion)
}
