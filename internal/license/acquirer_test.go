package license

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"licensekit/internal/locate"
	"licensekit/internal/shared/testutil"
	"licensekit/internal/signature"
)

type signer struct {
	*testutil.Signer
	ver *signature.Ed25519Verifier
}

func newSigner(t *testing.T) signer {
	t.Helper()
	s := testutil.NewSigner(t)
	v, err := signature.NewEd25519Verifier(s.Public)
	require.NoError(t, err)
	return signer{Signer: s, ver: v}
}

// license renders a section whose signature covers its canonical payload.
func (s signer) license(product string, pairs ...string) string {
	info := FullLicenseInfo{Project: product, Limits: NewLimits(pairs...)}
	return s.Section(product, info.PrintForSign(), pairs...)
}

func clock(s string) func() time.Time {
	return func() time.Time {
		t, _ := time.Parse(DateLayout, s)
		return t
	}
}

func TestAcquireVerifiedLicense(t *testing.T) {
	s := newSigner(t)
	content := s.license("Acme", "max_users", "10", "to_date", "2030-01-01")

	reader := NewReader(fixed(newMem("user", "/u.lic", content)), quietLogger(), nil)
	acq, err := NewAcquirer(reader, WithVerifier(s.ver), WithClock(clock("2025-01-01"))).Acquire(context.Background(), "Acme")
	require.NoError(t, err)

	assert.True(t, acq.Licensed())
	assert.True(t, acq.Verified)
	assert.Equal(t, "/u.lic", acq.Accepted.Source)
	assert.Empty(t, acq.Rejections)
	assert.False(t, acq.Registry.IsFatal())
}

func TestAcquireFallsBackToNextRecord(t *testing.T) {
	s := newSigner(t)
	other := newSigner(t)

	loc := newMem("external",
		"/forged.lic", other.license("Acme", "max_users", "1000"),
		"/expired.lic", s.license("Acme", "to_date", "2020-01-01"),
		"/good.lic", s.license("Acme", "max_users", "10"),
	)
	reader := NewReader(fixed(loc), quietLogger(), nil)

	acq, err := NewAcquirer(reader, WithVerifier(s.ver), WithClock(clock("2025-01-01"))).Acquire(context.Background(), "Acme")
	require.NoError(t, err)

	require.Len(t, acq.Records, 3)
	require.Len(t, acq.Rejections, 2)
	assert.True(t, errors.Is(acq.Rejections[0], signature.ErrInvalidSignature))
	assert.True(t, errors.Is(acq.Rejections[1], ErrExpired))
	assert.Equal(t, "/good.lic", acq.Accepted.Source)
}

func TestAcquireNotLicensed(t *testing.T) {
	reader := NewReader(fixed(newMem("user", "/u.lic", "[Other]\nk = v\n")), quietLogger(), nil)

	acq, err := NewAcquirer(reader).Acquire(context.Background(), "Acme")
	assert.True(t, errors.Is(err, ErrNotLicensed))
	require.NotNil(t, acq)
	assert.False(t, acq.Licensed())
	assert.True(t, acq.Registry.IsFatal())
}

func TestAcquireNoValidLicense(t *testing.T) {
	s := newSigner(t)
	reader := NewReader(fixed(newMem("user", "/u.lic", acme)), quietLogger(), nil)

	acq, err := NewAcquirer(reader, WithVerifier(s.ver)).Acquire(context.Background(), "Acme")
	assert.True(t, errors.Is(err, ErrNoValidLicense))
	assert.False(t, acq.Licensed())
	assert.False(t, acq.Registry.IsFatal(), "the reader verdict is structural only")
	require.Len(t, acq.Rejections, 1)
}

func TestAcquireStructuralMode(t *testing.T) {
	reader := NewReader(fixed(newMem("user", "/u.lic", acme)), quietLogger(), nil)

	acq, err := NewAcquirer(reader).Acquire(context.Background(), "Acme")
	require.NoError(t, err)
	assert.True(t, acq.Licensed())
	assert.False(t, acq.Verified)
}

func TestAcquireSoftwareVersion(t *testing.T) {
	s := newSigner(t)
	content := s.license("Acme", "sw_version_from", "2", "sw_version_to", "3")
	reader := NewReader(fixed(newMem("user", "/u.lic", content)), quietLogger(), nil)

	_, err := NewAcquirer(reader, WithVerifier(s.ver), WithSoftwareVersion(4)).Acquire(context.Background(), "Acme")
	assert.True(t, errors.Is(err, ErrNoValidLicense))

	acq, err := NewAcquirer(reader, WithVerifier(s.ver), WithSoftwareVersion(3)).Acquire(context.Background(), "Acme")
	require.NoError(t, err)
	assert.True(t, acq.Licensed())
}

func TestAcquireStrategyFailure(t *testing.T) {
	reader := NewReader(func(string) ([]locate.Locator, error) { return nil, locate.ErrNoStrategy }, quietLogger(), nil)

	acq, err := NewAcquirer(reader).Acquire(context.Background(), "Acme")
	assert.True(t, errors.Is(err, ErrNotLicensed))
	assert.Equal(t, 1, acq.Registry.Len())
}

func TestAcquireLogsDecisions(t *testing.T) {
	s := newSigner(t)
	other := newSigner(t)
	logger, logs := testutil.NewTestLogger(t)

	loc := newMem("external",
		"/forged.lic", other.license("Acme"),
		"/good.lic", s.license("Acme"),
	)
	reader := NewReader(fixed(loc), logger, nil)
	_, err := NewAcquirer(reader, WithVerifier(s.ver)).Acquire(context.Background(), "Acme")
	require.NoError(t, err)

	testutil.AssertLogContains(t, logs, slog.LevelInfo, "license record rejected")
	testutil.AssertLogAttr(t, logs, "license accepted", "component", "license_acquirer")
	testutil.AssertNoErrors(t, logs)

	logs.Reset()
	_, err = NewAcquirer(reader).Acquire(context.Background(), "Acme")
	require.NoError(t, err)
	testutil.AssertLogContains(t, logs, slog.LevelWarn, "no signature verifier configured")
}
