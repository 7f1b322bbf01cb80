package license

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"licensekit/internal/events"
	"licensekit/internal/locate"
)

// memLocator serves fixed content from memory.
type memLocator struct {
	name     string
	order    []string
	contents map[string]string
	missing  []string
}

func (m *memLocator) String() string { return m.name }

func (m *memLocator) Locations(trail *events.Trail) []string {
	for _, p := range m.missing {
		trail.Add(events.LicenseFileNotFound, p)
	}
	return m.order
}

func (m *memLocator) RetrieveContent(location string) (string, error) {
	c, ok := m.contents[location]
	if !ok {
		return "", errors.New("unreadable")
	}
	return c, nil
}

func newMem(name string, pairs ...string) *memLocator {
	m := &memLocator{name: name, contents: map[string]string{}}
	for i := 0; i+1 < len(pairs); i += 2 {
		m.order = append(m.order, pairs[i])
		m.contents[pairs[i]] = pairs[i+1]
	}
	return m
}

func fixed(locs ...locate.Locator) LocatorFunc {
	return func(string) ([]locate.Locator, error) { return locs, nil }
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func read(t *testing.T, locators LocatorFunc, product string) ([]FullLicenseInfo, events.Registry) {
	t.Helper()
	return NewReader(locators, quietLogger(), nil).ReadLicenses(context.Background(), product)
}

const acme = "[Acme]\nlic_ver = 200\nsig = XYZ\nmax_users = 10\n"

func TestReadLicensesSingleValidRecord(t *testing.T) {
	records, reg := read(t, fixed(newMem("user", "/u/acme.lic", acme)), "Acme")

	assert.False(t, reg.IsFatal())
	assert.Equal(t, []events.Event{{Kind: events.ProductFound, Source: "/u/acme.lic"}}, reg.Events())

	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, "/u/acme.lic", rec.Source)
	assert.Equal(t, "Acme", rec.Project)
	assert.Equal(t, "XYZ", rec.Signature)
	assert.Equal(t, []string{"lic_ver", "sig", "max_users"}, rec.Limits.Keys())
	v, _ := rec.Limits.Get("max_users")
	assert.Equal(t, "10", v)
	assert.Equal(t, "ACMEmax_users10", rec.PrintForSign())
}

func TestReadLicensesMalformedThenValid(t *testing.T) {
	loc := newMem("external",
		"/a.lic", "[Acme]\nlic_ver = 1\nsig = XYZ\n",
		"/b.lic", acme,
	)
	records, reg := read(t, fixed(loc), "Acme")

	assert.False(t, reg.IsFatal())
	assert.Equal(t, []events.Kind{
		events.ProductFound,
		events.LicenseMalformed,
		events.ProductFound,
	}, reg.Kinds())
	assert.Equal(t, 1, reg.Count(events.LicenseMalformed))
	ev := reg.Events()
	assert.Equal(t, "/a.lic", ev[1].Source)

	require.Len(t, records, 1)
	assert.Equal(t, "/b.lic", records[0].Source)
}

func TestReadLicensesNoSectionIsFatal(t *testing.T) {
	loc := newMem("external",
		"/a.lic", "[Other]\nlic_ver = 200\nsig = XYZ\n",
		"/b.lic", "",
	)
	records, reg := read(t, fixed(loc, newMem("user")), "Acme")

	assert.True(t, reg.IsFatal())
	assert.Empty(t, records)
	assert.Equal(t, []events.Kind{events.ProductNotLicensed, events.ProductNotLicensed}, reg.Kinds())
	for _, r := range reg.Report() {
		assert.Equal(t, events.SeverityError, r.Severity)
	}
}

func TestReadLicensesVersionAndSignatureRules(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []events.Kind
		fatal   bool
	}{
		{"old version", "[Acme]\nlic_ver = 199\nsig = XYZ\n", []events.Kind{events.ProductFound, events.LicenseMalformed}, true},
		{"missing version", "[Acme]\nsig = XYZ\n", []events.Kind{events.ProductFound, events.LicenseMalformed}, true},
		{"non numeric version", "[Acme]\nlic_ver = two hundred\nsig = XYZ\n", []events.Kind{events.ProductFound, events.LicenseMalformed}, true},
		{"missing signature", "[Acme]\nlic_ver = 200\n", []events.Kind{events.ProductFound, events.LicenseMalformed}, true},
		{"empty signature", "[Acme]\nlic_ver = 200\nsig =\n", []events.Kind{events.ProductFound, events.LicenseMalformed}, true},
		{"empty section", "[Acme]\n[Other]\nk = v\n", []events.Kind{events.ProductNotLicensed}, true},
		{"unparseable", "[Acme\nlic_ver = 200\n", []events.Kind{events.FileFormatNotRecognized}, true},
		{"valid", acme, []events.Kind{events.ProductFound}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, reg := read(t, fixed(newMem("external", "/x.lic", tt.content)), "Acme")
			assert.Equal(t, tt.want, reg.Kinds())
			assert.Equal(t, tt.fatal, reg.IsFatal())
			assert.Equal(t, !tt.fatal, len(records) == 1)
		})
	}
}

func TestReadLicensesUnreadableLocation(t *testing.T) {
	loc := newMem("external", "/b.lic", acme)
	loc.order = append([]string{"/gone.lic"}, loc.order...)

	records, reg := read(t, fixed(loc), "Acme")
	assert.False(t, reg.IsFatal())
	assert.Equal(t, []events.Event{
		{Kind: events.FileFormatNotRecognized, Source: "/gone.lic"},
		{Kind: events.ProductFound, Source: "/b.lic"},
	}, reg.Events())
	assert.Len(t, records, 1)
}

func TestReadLicensesStrategyResolutionFailure(t *testing.T) {
	failing := func(string) ([]locate.Locator, error) { return nil, locate.ErrNoStrategy }

	records, reg := read(t, failing, "Acme")
	assert.True(t, reg.IsFatal())
	assert.Empty(t, records)
	assert.Equal(t, []events.Kind{events.LicenseFileNotFound}, reg.Kinds())
}

func TestReadLicensesKeepsStrategyOrder(t *testing.T) {
	first := newMem("external", "/first.lic", acme)
	first.missing = []string{"/configured-but-missing.lic"}
	second := newMem("system", "/second.lic", "[Acme]\nlic_ver = 200\nsig = ABC\nmax_users = 5\n")

	records, reg := read(t, fixed(first, newMem("user"), second), "Acme")

	assert.False(t, reg.IsFatal())
	assert.Equal(t, []events.Event{
		{Kind: events.LicenseFileNotFound, Source: "/configured-but-missing.lic"},
		{Kind: events.ProductFound, Source: "/first.lic"},
		{Kind: events.ProductFound, Source: "/second.lic"},
	}, reg.Events())

	require.Len(t, records, 2)
	assert.Equal(t, "/first.lic", records[0].Source)
	assert.Equal(t, "/second.lic", records[1].Source)
}

func TestReadLicensesFreshStatePerCall(t *testing.T) {
	reader := NewReader(fixed(newMem("external", "/x.lic", "[Other]\nk = v\n")), quietLogger(), nil)

	_, first := reader.ReadLicenses(context.Background(), "Acme")
	_, second := reader.ReadLicenses(context.Background(), "Acme")
	assert.Equal(t, 1, first.Len())
	assert.Equal(t, 1, second.Len())
}

func TestReadLicensesFromFilesystem(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/acme-corp/Acme.lic", []byte(acme), 0o644))

	opts := locate.Options{
		Strategies: []string{locate.StrategyEnvLocation, locate.StrategyUser, locate.StrategySystem},
		Vendor:     "acme-corp",
		Fs:         fs,
		Getenv: func(name string) string {
			if name == locate.DefaultLocationEnvVar {
				return "/nowhere.lic"
			}
			return ""
		},
		UserConfigDir: func() (string, error) { return "/home/u/.config", nil },
		SystemDir:     "/etc",
		Logger:        quietLogger(),
	}

	records, reg := read(t, StrategiesFrom(opts), "Acme")
	assert.False(t, reg.IsFatal())
	assert.Equal(t, []events.Kind{events.LicenseFileNotFound, events.ProductFound}, reg.Kinds())
	require.Len(t, records, 1)
	assert.Equal(t, "ACMEmax_users10", records[0].PrintForSign())
}

func TestReaderMetrics(t *testing.T) {
	rdr := metric.NewManualReader()
	provider := metric.NewMeterProvider(metric.WithReader(rdr))

	m, err := InitializeReaderMetrics(provider.Meter("test"))
	require.NoError(t, err)

	reader := NewReader(fixed(newMem("external", "/x.lic", acme)), quietLogger(), m)
	reader.ReadLicenses(context.Background(), "Acme")

	var rm metricdata.ResourceMetrics
	require.NoError(t, rdr.Collect(context.Background(), &rm))

	names := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			names[md.Name] = true
		}
	}
	assert.True(t, names["license_reads_total"])
	assert.True(t, names["license_events_total"])
	assert.True(t, names["license_records_found_total"])
	assert.True(t, names["license_read_duration_seconds"])
}

func TestReaderCandidates(t *testing.T) {
	opts := locate.Options{
		Strategies:    []string{locate.StrategyExternal, locate.StrategyUser},
		ExplicitPaths: []string{"/lic/a.lic"},
		Fs:            afero.NewMemMapFs(),
		UserConfigDir: func() (string, error) { return "/home/u/.config", nil },
		Logger:        quietLogger(),
	}
	reader := NewReader(StrategiesFrom(opts), quietLogger(), nil)

	paths, err := reader.Candidates("Acme")
	require.NoError(t, err)
	assert.Equal(t, []string{"/lic/a.lic", filepath.Join("/home/u/.config", "Acme", "Acme.lic")}, paths)

	_, err = NewReader(func(string) ([]locate.Locator, error) { return nil, locate.ErrNoStrategy }, nil, nil).Candidates("Acme")
	assert.True(t, errors.Is(err, locate.ErrNoStrategy))
}

func TestReaderSpanEvents(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	loc := newMem("external",
		"/a.lic", "[Acme]\nlic_ver = 1\nsig = XYZ\n",
		"/b.lic", acme,
	)
	read(t, fixed(loc), "Acme")

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "license.read", spans[0].Name())

	var names []string
	for _, e := range spans[0].Events() {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{
		events.ProductFound.String(),
		events.LicenseMalformed.String(),
		events.ProductFound.String(),
	}, names)
}

func TestReadLicensesKeepsRawValues(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		keys    []string
		payload string
	}{
		{
			name:    "double quoted",
			body:    "application_data = \"hello world\"\n",
			keys:    []string{"lic_ver", "sig", "application_data"},
			payload: `ACMEapplication_data"hello world"`,
		},
		{
			name:    "backquoted",
			body:    "application_data = `tier=gold`\n",
			keys:    []string{"lic_ver", "sig", "application_data"},
			payload: "ACMEapplication_data`tier=gold`",
		},
		{
			name:    "trailing backslash",
			body:    "application_data = abc\\\nmax_users = 10\n",
			keys:    []string{"lic_ver", "sig", "application_data", "max_users"},
			payload: `ACMEapplication_dataabc\max_users10`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content := "[Acme]\nlic_ver = 200\nsig = XYZ\n" + tt.body
			records, reg := read(t, fixed(newMem("external", "/x.lic", content)), "Acme")
			require.False(t, reg.IsFatal())
			require.Len(t, records, 1)
			assert.Equal(t, tt.keys, records[0].Limits.Keys())
			assert.Equal(t, tt.payload, records[0].PrintForSign())
		})
	}
}

func TestReadLicensesVersionMustBeDecimalOrHex(t *testing.T) {
	tests := []struct {
		version string
		valid   bool
	}{
		{"200", true},
		{"0xC8", true},
		{"2_00", false},
		{"0o310", false},
		{"0b11001000", false},
	}

	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			content := "[Acme]\nlic_ver = " + tt.version + "\nsig = XYZ\n"
			records, reg := read(t, fixed(newMem("external", "/x.lic", content)), "Acme")
			assert.Equal(t, !tt.valid, reg.IsFatal())
			assert.Equal(t, tt.valid, len(records) == 1)
		})
	}
}
