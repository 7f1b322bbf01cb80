package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	apperrors "licensekit/internal/errors"
	"licensekit/internal/events"
	"licensekit/internal/infrastructure"
	"licensekit/internal/license"
)

// Verdicts reported for a product.
const (
	VerdictLicensed       = "licensed"
	VerdictNotLicensed    = "not_licensed"
	VerdictNoValidLicense = "no_valid_license"
)

// Acquirer selects the accepted license of a product.
type Acquirer interface {
	Acquire(ctx context.Context, product string) (*license.Acquisition, error)
}

// LicenseReader reads the structurally valid records of a product.
type LicenseReader interface {
	ReadLicenses(ctx context.Context, product string) ([]license.FullLicenseInfo, events.Registry)
}

// LicenseService provides license checks for configured products
type LicenseService interface {
	Check(ctx context.Context, product string) (*CheckResult, error)
	Payloads(ctx context.Context, product string) (*PayloadResult, error)
	Products() []string
}

// RecordView is a license record as reported to clients. The signature is
// never included, neither on its own nor among the limits.
type RecordView struct {
	Source          string         `json:"source"`
	Project         string         `json:"project"`
	Limits          license.Limits `json:"limits"`
	ClientSignature string         `json:"client_signature,omitempty"`
	ApplicationData string         `json:"application_data,omitempty"`
	Payload         string         `json:"payload"`
}

// RejectionView explains why a structurally valid record was not accepted.
type RejectionView struct {
	Source string `json:"source"`
	Reason string `json:"reason"`
}

// CheckResult is the outcome of one license check.
type CheckResult struct {
	Product    string                 `json:"product"`
	Verdict    string                 `json:"verdict"`
	Licensed   bool                   `json:"licensed"`
	Verified   bool                   `json:"verified"`
	Fatal      bool                   `json:"fatal"`
	Severity   events.Severity        `json:"severity"`
	Events     []events.ReportedEvent `json:"events"`
	Records    []RecordView           `json:"records"`
	Rejections []RejectionView        `json:"rejections,omitempty"`
	Accepted   *RecordView            `json:"accepted,omitempty"`
	TraceID    string                 `json:"trace_id,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

// PayloadResult lists the canonical payloads of a product's records.
type PayloadResult struct {
	Product  string                 `json:"product"`
	Fatal    bool                   `json:"fatal"`
	Events   []events.ReportedEvent `json:"events"`
	Payloads []RecordView           `json:"payloads"`
}

type licenseService struct {
	acquirer Acquirer
	reader   LicenseReader
	products []string
	logger   *slog.Logger
}

// NewLicenseService creates a license service. An empty products list
// accepts any product name.
func NewLicenseService(acquirer Acquirer, reader LicenseReader, products []string, logger *slog.Logger) LicenseService {
	if logger == nil {
		logger = slog.Default()
	}
	return &licenseService{
		acquirer: acquirer,
		reader:   reader,
		products: append([]string(nil), products...),
		logger:   logger.With(slog.String("service", "license")),
	}
}

func (s *licenseService) Products() []string {
	return append([]string(nil), s.products...)
}

func (s *licenseService) resolve(product string) (string, error) {
	product = strings.TrimSpace(product)
	if product == "" {
		return "", fmt.Errorf("%w: empty name", apperrors.ErrUnknownProduct)
	}
	if len(s.products) == 0 {
		return product, nil
	}
	for _, p := range s.products {
		if strings.EqualFold(p, product) {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %s", apperrors.ErrUnknownProduct, product)
}

// Check acquires the product's license. The result is nil only for unknown
// products; otherwise it is returned along with the acquisition error.
func (s *licenseService) Check(ctx context.Context, product string) (*CheckResult, error) {
	name, err := s.resolve(product)
	if err != nil {
		return nil, err
	}

	acq, err := s.acquirer.Acquire(ctx, name)
	result := NewCheckResult(acq, err)
	result.TraceID = infrastructure.GetTraceID(ctx)

	s.logger.DebugContext(ctx, "license checked",
		slog.String("product", name),
		slog.String("verdict", result.Verdict),
		slog.Int("events", len(result.Events)),
	)
	return result, err
}

// Payloads reads the product's records and returns their canonical
// payloads. A fatal read is not an error.
func (s *licenseService) Payloads(ctx context.Context, product string) (*PayloadResult, error) {
	name, err := s.resolve(product)
	if err != nil {
		return nil, err
	}

	records, reg := s.reader.ReadLicenses(ctx, name)
	result := &PayloadResult{
		Product:  name,
		Fatal:    reg.IsFatal(),
		Events:   reg.Report(),
		Payloads: make([]RecordView, 0, len(records)),
	}
	for _, rec := range records {
		result.Payloads = append(result.Payloads, newRecordView(rec))
	}
	return result, nil
}

// NewCheckResult converts an acquisition and its error into a report.
func NewCheckResult(acq *license.Acquisition, err error) *CheckResult {
	result := &CheckResult{
		Verdict:   Verdict(err),
		Records:   []RecordView{},
		Events:    []events.ReportedEvent{},
		Timestamp: time.Now().UTC(),
	}
	if acq == nil {
		return result
	}

	result.Product = acq.Product
	result.Licensed = acq.Licensed()
	result.Verified = acq.Verified
	result.Fatal = acq.Registry.IsFatal()
	result.Severity = acq.Registry.Worst()
	result.Events = acq.Registry.Report()
	for _, rec := range acq.Records {
		result.Records = append(result.Records, newRecordView(rec))
	}
	for _, rej := range acq.Rejections {
		result.Rejections = append(result.Rejections, RejectionView{Source: rej.Source, Reason: rej.Reason})
	}
	if acq.Accepted != nil {
		view := newRecordView(*acq.Accepted)
		result.Accepted = &view
	}
	return result
}

// Verdict names the outcome of an acquisition error.
func Verdict(err error) string {
	switch {
	case err == nil:
		return VerdictLicensed
	case errors.Is(err, license.ErrNoValidLicense):
		return VerdictNoValidLicense
	default:
		return VerdictNotLicensed
	}
}

func newRecordView(rec license.FullLicenseInfo) RecordView {
	var limits license.Limits
	rec.Limits.Range(func(k, v string) bool {
		if k != license.SignatureKey {
			limits.Set(k, v)
		}
		return true
	})
	return RecordView{
		Source:          rec.Source,
		Project:         rec.Project,
		Limits:          limits,
		ClientSignature: rec.ClientSignature(),
		ApplicationData: rec.ApplicationData(),
		Payload:         rec.PrintForSign(),
	}
}
