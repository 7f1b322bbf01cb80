package services

import (
	"context"
	"runtime"
	"time"
)

// HealthService reports liveness and license readiness
type HealthService struct {
	version   string
	licenses  LicenseService
	startTime time.Time
}

// HealthStatus represents the health status response
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	Uptime    string            `json:"uptime"`
	GoVersion string            `json:"go_version,omitempty"`
	Products  map[string]string `json:"products,omitempty"`
}

// NewHealthService creates a new health service
func NewHealthService(version string, licenses LicenseService) *HealthService {
	return &HealthService{
		version:   version,
		licenses:  licenses,
		startTime: time.Now(),
	}
}

// Liveness reports that the process serves requests.
func (s *HealthService) Liveness() HealthStatus {
	return HealthStatus{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Version:   s.version,
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		GoVersion: runtime.Version(),
	}
}

// Readiness checks every configured product. The status is "ready" when
// all of them are licensed and "degraded" otherwise.
func (s *HealthService) Readiness(ctx context.Context) HealthStatus {
	status := s.Liveness()
	status.Status = "ready"

	products := s.licenses.Products()
	if len(products) == 0 {
		return status
	}

	status.Products = make(map[string]string, len(products))
	for _, p := range products {
		result, err := s.licenses.Check(ctx, p)
		verdict := Verdict(err)
		if result != nil {
			verdict = result.Verdict
		}
		status.Products[p] = verdict
		if verdict != VerdictLicensed {
			status.Status = "degraded"
		}
	}
	return status
}
