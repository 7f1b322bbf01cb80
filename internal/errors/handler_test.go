package errors

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"licensekit/internal/infrastructure"
	"licensekit/internal/license"
)

func newHandler(includeStack bool) *ErrorHandler {
	return NewErrorHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), includeStack)
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestErrorHandler_HandleError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
	}{
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout, TypeTimeout},
		{"canceled", fmt.Errorf("read: %w", context.Canceled), http.StatusGatewayTimeout, TypeTimeout},
		{"unknown product", fmt.Errorf("%w: Foo", ErrUnknownProduct), http.StatusNotFound, TypeUnknownProduct},
		{"not licensed", fmt.Errorf("%w: Acme", license.ErrNotLicensed), http.StatusForbidden, TypeNotLicensed},
		{"no valid license", fmt.Errorf("%w for Acme", license.ErrNoValidLicense), http.StatusForbidden, TypeNoValidLicense},
		{"anything else", io.ErrUnexpectedEOF, http.StatusInternalServerError, TypeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/license/Acme", nil)
			rec := httptest.NewRecorder()

			newHandler(false).HandleError(rec, req, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			body := decode(t, rec)
			assert.Equal(t, tt.wantType, body["type"])
			assert.Equal(t, float64(tt.wantStatus), body["status"])
			assert.Equal(t, "/api/license/Acme", body["instance"])
			assert.NotContains(t, body, "stack")
		})
	}
}

func TestErrorHandler_NilErrorWritesNothing(t *testing.T) {
	rec := httptest.NewRecorder()
	newHandler(false).HandleError(rec, httptest.NewRequest(http.MethodGet, "/", nil), nil)
	assert.Zero(t, rec.Body.Len())
}

func TestErrorHandler_TraceID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req = req.WithContext(infrastructure.WithTraceID(req.Context(), "trace-123"))
	rec := httptest.NewRecorder()

	newHandler(true).HandleError(rec, req, io.ErrUnexpectedEOF)

	body := decode(t, rec)
	assert.Equal(t, "trace-123", body["trace_id"])
	assert.Contains(t, body, "stack")
}

func TestErrorHandler_HandlePanic(t *testing.T) {
	rec := httptest.NewRecorder()
	newHandler(true).HandlePanic(rec, httptest.NewRequest(http.MethodGet, "/boom", nil), "boom")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, TypeInternal, body["type"])
	assert.Equal(t, "boom", body["panic"])
}

func TestErrorHandler_RouterFallbacks(t *testing.T) {
	h := newHandler(false)

	rec := httptest.NewRecorder()
	h.NotFound(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h.MethodNotAllowed(rec, httptest.NewRequest(http.MethodDelete, "/healthz", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Contains(t, decode(t, rec)["detail"], "DELETE")
}

func TestProblemDetailsExtensionsDoNotOverrideMembers(t *testing.T) {
	pd := NewProblemDetails(http.StatusForbidden, TypeNotLicensed, "Not Licensed", "", "").
		WithExtension("status", 200).
		WithExtension("product", "Acme")

	data, err := json.Marshal(pd)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"/errors/license/not-licensed","title":"Not Licensed","status":403,"product":"Acme"}`, string(data))
}
