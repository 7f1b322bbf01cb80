package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"licensekit/internal/config"
	"licensekit/internal/license"
	"licensekit/internal/locate"
	"licensekit/internal/shared/testutil"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testConfig points the external strategy at the given files only.
func testConfig(paths ...string) *config.Config {
	cfg := config.Default()
	cfg.Locator.Strategies = []string{locate.StrategyExternal}
	cfg.Locator.Paths = paths
	cfg.Server.Address = "127.0.0.1:0"
	cfg.Server.RateLimit.Enabled = false
	return cfg
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// signedLicense returns a signed section for product and the PEM public key.
func signedLicense(t *testing.T, product string, pairs ...string) (string, []byte) {
	t.Helper()
	s := testutil.NewSigner(t)
	info := license.FullLicenseInfo{Project: product, Limits: license.NewLimits(pairs...)}
	return s.Section(product, info.PrintForSign(), pairs...), s.PublicKeyPEM(t)
}

func TestApplicationRoutes(t *testing.T) {
	dir := t.TempDir()
	content, key := signedLicense(t, "Acme", "max_users", "10")
	lic := writeFile(t, dir, "acme.lic", content)

	cfg := testConfig(lic)
	cfg.Product.Names = []string{"Acme"}
	cfg.Verify.PublicKeyFile = writeFile(t, dir, "key.pem", string(key))

	application, err := NewApplication(cfg, quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = application.Telemetry.Shutdown(context.Background()) })

	srv := httptest.NewServer(application.Router)
	defer srv.Close()

	tests := []struct {
		name       string
		path       string
		wantStatus int
	}{
		{"liveness", "/healthz", http.StatusOK},
		{"readiness", "/api/health", http.StatusOK},
		{"version", "/api/version", http.StatusOK},
		{"licensed", "/api/license/Acme", http.StatusOK},
		{"payload", "/api/license/Acme/payload", http.StatusOK},
		{"unknown product", "/api/license/Other", http.StatusNotFound},
		{"unknown route", "/nope", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(srv.URL + tt.path)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
		})
	}

	resp, err := http.Get(srv.URL + "/api/license/Acme")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Verdict  string `json:"verdict"`
		Verified bool   `json:"verified"`
		Accepted struct {
			Payload string `json:"payload"`
		} `json:"accepted"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "licensed", body.Verdict)
	assert.True(t, body.Verified)
	assert.Equal(t, "ACMEmax_users10", body.Accepted.Payload)

	metrics, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer metrics.Body.Close()
	raw, err := io.ReadAll(metrics.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "license_reads_total")
	assert.Contains(t, string(raw), "http_requests_total")
}

func TestApplicationForgedLicenseIsForbidden(t *testing.T) {
	dir := t.TempDir()
	content, _ := signedLicense(t, "Acme")
	_, otherKey := signedLicense(t, "Acme")

	cfg := testConfig(writeFile(t, dir, "acme.lic", content))
	cfg.Verify.PublicKeyFile = writeFile(t, dir, "key.pem", string(otherKey))

	application, err := NewApplication(cfg, quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = application.Telemetry.Shutdown(context.Background()) })

	rec := httptest.NewRecorder()
	application.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/license/Acme", nil))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), `"verdict":"no_valid_license"`)
	assert.Contains(t, rec.Body.String(), `"rejections"`)
}

func TestBuildAcquirer(t *testing.T) {
	dir := t.TempDir()

	t.Run("structural without key", func(t *testing.T) {
		acq, err := BuildAcquirer(testConfig(), quietLogger())
		require.NoError(t, err)
		assert.NotNil(t, acq.Reader())
	})

	t.Run("required key missing", func(t *testing.T) {
		cfg := testConfig()
		cfg.Verify.Required = true
		_, err := BuildAcquirer(cfg, quietLogger())
		assert.Error(t, err)
	})

	t.Run("unreadable key", func(t *testing.T) {
		cfg := testConfig()
		cfg.Verify.PublicKeyFile = writeFile(t, dir, "bad.pem", "not a key")
		_, err := BuildAcquirer(cfg, quietLogger())
		assert.Error(t, err)
	})
}

func TestApplicationServeStopsOnCancel(t *testing.T) {
	cfg := testConfig()
	cfg.Telemetry.Metrics = false
	cfg.Server.ShutdownTimeout = 2 * time.Second

	application, err := NewApplication(cfg, quietLogger())
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- application.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
