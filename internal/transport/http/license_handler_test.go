package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "licensekit/internal/errors"
	"licensekit/internal/events"
	"licensekit/internal/license"
	"licensekit/internal/services"
)

// fakeLicenseService answers from fixed results keyed by product.
type fakeLicenseService struct {
	checks   map[string]*services.CheckResult
	errs     map[string]error
	payloads map[string]*services.PayloadResult
}

func (f *fakeLicenseService) Check(_ context.Context, product string) (*services.CheckResult, error) {
	if res, ok := f.checks[product]; ok {
		return res, f.errs[product]
	}
	return nil, fmt.Errorf("%w: %s", apperrors.ErrUnknownProduct, product)
}

func (f *fakeLicenseService) Payloads(_ context.Context, product string) (*services.PayloadResult, error) {
	if res, ok := f.payloads[product]; ok {
		return res, nil
	}
	return nil, fmt.Errorf("%w: %s", apperrors.ErrUnknownProduct, product)
}

func (f *fakeLicenseService) Products() []string { return nil }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newLicenseRouter(svc services.LicenseService) http.Handler {
	logger := quietLogger()
	r := chi.NewRouter()
	r.Mount("/api/license", NewLicenseHandler(svc, apperrors.NewErrorHandler(logger, false), logger).Routes())
	return r
}

func get(t *testing.T, h http.Handler, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return rec, body
}

func TestLicenseHandlerCheck(t *testing.T) {
	accepted := services.RecordView{Source: "/a.lic", Project: "Acme", Limits: license.NewLimits("max_users", "10"), Payload: "ACMEmax_users10"}
	svc := &fakeLicenseService{
		checks: map[string]*services.CheckResult{
			"Acme": {
				Product:  "Acme",
				Verdict:  services.VerdictLicensed,
				Licensed: true,
				Events:   []events.ReportedEvent{{Kind: events.ProductFound, Source: "/a.lic", Severity: events.SeverityInfo}},
				Records:  []services.RecordView{accepted},
				Accepted: &accepted,
			},
			"Beta": {
				Product: "Beta",
				Verdict: services.VerdictNotLicensed,
				Fatal:   true,
				Events:  []events.ReportedEvent{{Kind: events.ProductNotLicensed, Source: "/a.lic", Severity: events.SeverityError}},
				Records: []services.RecordView{},
			},
			"Gamma": {
				Product: "Gamma",
				Verdict: services.VerdictNoValidLicense,
				Records: []services.RecordView{},
			},
		},
		errs: map[string]error{
			"Beta":  fmt.Errorf("%w: Beta", license.ErrNotLicensed),
			"Gamma": fmt.Errorf("%w for Gamma", license.ErrNoValidLicense),
		},
	}
	router := newLicenseRouter(svc)

	tests := []struct {
		name        string
		path        string
		wantStatus  int
		wantVerdict string
	}{
		{"licensed", "/api/license/Acme", http.StatusOK, services.VerdictLicensed},
		{"not licensed", "/api/license/Beta", http.StatusForbidden, services.VerdictNotLicensed},
		{"no valid license", "/api/license/Gamma", http.StatusForbidden, services.VerdictNoValidLicense},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := get(t, router, tt.path)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantVerdict, body["verdict"])
			assert.Contains(t, body, "events")
			assert.Contains(t, body, "records")
		})
	}

	_, body := get(t, router, "/api/license/Acme")
	acc, ok := body["accepted"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "ACMEmax_users10", acc["payload"])
	assert.Equal(t, map[string]interface{}{"max_users": "10"}, acc["limits"])

	evs := body["events"].([]interface{})
	require.Len(t, evs, 1)
	assert.Equal(t, "PRODUCT_FOUND", evs[0].(map[string]interface{})["kind"])
}

func TestLicenseHandlerUnknownProduct(t *testing.T) {
	router := newLicenseRouter(&fakeLicenseService{})

	rec, body := get(t, router, "/api/license/Nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, apperrors.TypeUnknownProduct, body["type"])

	rec, body = get(t, router, "/api/license/Nope/payload")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, apperrors.TypeUnknownProduct, body["type"])
}

func TestLicenseHandlerPayload(t *testing.T) {
	svc := &fakeLicenseService{payloads: map[string]*services.PayloadResult{
		"Acme": {
			Product:  "Acme",
			Payloads: []services.RecordView{{Source: "/a.lic", Project: "Acme", Payload: "ACMEmax_users10"}},
		},
	}}

	rec, body := get(t, newLicenseRouter(svc), "/api/license/Acme/payload")
	assert.Equal(t, http.StatusOK, rec.Code)
	payloads := body["payloads"].([]interface{})
	require.Len(t, payloads, 1)
	assert.Equal(t, "ACMEmax_users10", payloads[0].(map[string]interface{})["payload"])
}
