package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apperrors "licensekit/internal/errors"
	"licensekit/internal/services"
)

// LicenseHandler handles license-related HTTP requests
type LicenseHandler struct {
	service services.LicenseService
	errors  *apperrors.ErrorHandler
	logger  *slog.Logger
}

// NewLicenseHandler creates a new license handler
func NewLicenseHandler(service services.LicenseService, errorHandler *apperrors.ErrorHandler, logger *slog.Logger) *LicenseHandler {
	return &LicenseHandler{
		service: service,
		errors:  errorHandler,
		logger:  logger.With(slog.String("handler", "license")),
	}
}

// Routes sets up the license routes
func (h *LicenseHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{product}", h.Check)
	r.Get("/{product}/payload", h.Payload)
	return r
}

// Check handles GET /api/license/{product}
func (h *LicenseHandler) Check(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Check(r.Context(), chi.URLParam(r, "product"))
	if result == nil {
		h.errors.HandleError(w, r, err)
		return
	}

	status := http.StatusOK
	if err != nil {
		status = h.errors.ErrorToProblem(err, r).Status
		h.logger.InfoContext(r.Context(), "license check failed",
			slog.String("product", result.Product),
			slog.String("verdict", result.Verdict),
		)
	}

	render.Status(r, status)
	render.JSON(w, r, result)
}

// Payload handles GET /api/license/{product}/payload
func (h *LicenseHandler) Payload(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Payloads(r.Context(), chi.URLParam(r, "product"))
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, result)
}
