// Package locate discovers candidate license sources.
//
// Each strategy knows one kind of place a license may live (an explicitly
// configured path, an environment variable, the application folder, the
// user or system configuration directory). The reader walks the active
// strategies in priority order and asks each for its candidate locations.
package locate

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/afero"

	"licensekit/internal/events"
)

// Strategy names accepted by Options.Strategies.
const (
	StrategyExternal          = "external"
	StrategyEnvLocation       = "env-location"
	StrategyEnvData           = "env-data"
	StrategyApplicationFolder = "application-folder"
	StrategyUser              = "user"
	StrategySystem            = "system"
)

// DefaultStrategies is the priority order used when none is configured.
var DefaultStrategies = []string{
	StrategyExternal,
	StrategyEnvLocation,
	StrategyEnvData,
	StrategyApplicationFolder,
	StrategyUser,
	StrategySystem,
}

// Default environment variable names.
const (
	DefaultLocationEnvVar = "LICENSE_LOCATION"
	DefaultDataEnvVar     = "LICENSE_DATA"
)

// License files larger than this are not read.
const maxLicenseSize = 1 << 20

var (
	// ErrNoStrategy means no locator strategy could be initialized.
	ErrNoStrategy = errors.New("no license locator strategy available")
	// ErrNotConfigured is returned by constructors whose inputs are empty.
	ErrNotConfigured = errors.New("locator not configured")
	// ErrUnknownStrategy is returned for names outside the known set.
	ErrUnknownStrategy = errors.New("unknown locator strategy")
	// ErrUnknownLocation is returned when content is requested for a
	// location the strategy never produced.
	ErrUnknownLocation = errors.New("unknown license location")
	// ErrTooLarge is returned for oversized license files.
	ErrTooLarge = errors.New("license content too large")
)

// Locator is a source of candidate license locations.
type Locator interface {
	// Locations enumerates candidates in priority order. It returns an empty
	// slice when nothing is found and may record warnings on the trail.
	Locations(trail *events.Trail) []string
	// RetrieveContent returns the license text stored at a location.
	RetrieveContent(location string) (string, error)
}

// Options configures the strategy set.
type Options struct {
	// Strategies lists enabled strategies in priority order. Empty means
	// DefaultStrategies.
	Strategies []string

	Product string
	Vendor  string

	// ExplicitPaths and InlineData feed the external strategy.
	ExplicitPaths []string
	InlineData    string

	LocationEnvVar string
	DataEnvVar     string

	// SystemDir overrides the system-wide configuration root.
	SystemDir string

	Fs            afero.Fs
	Getenv        func(string) string
	Executable    func() (string, error)
	UserConfigDir func() (string, error)
	Logger        *slog.Logger
}

func (o Options) withDefaults() Options {
	if len(o.Strategies) == 0 {
		o.Strategies = DefaultStrategies
	}
	if o.LocationEnvVar == "" {
		o.LocationEnvVar = DefaultLocationEnvVar
	}
	if o.DataEnvVar == "" {
		o.DataEnvVar = DefaultDataEnvVar
	}
	if o.Fs == nil {
		o.Fs = afero.NewOsFs()
	}
	if o.Getenv == nil {
		o.Getenv = os.Getenv
	}
	if o.Executable == nil {
		o.Executable = os.Executable
	}
	if o.UserConfigDir == nil {
		o.UserConfigDir = os.UserConfigDir
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// ActiveStrategies builds the enabled strategies in order. Strategies that
// cannot initialize are skipped; ErrNoStrategy is returned when none is left.
func ActiveStrategies(opts Options) ([]Locator, error) {
	opts = opts.withDefaults()
	logger := opts.Logger.With(slog.String("component", "license_locator"))

	var active []Locator
	for _, name := range opts.Strategies {
		loc, err := newStrategy(name, opts)
		if err != nil {
			logger.Debug("locator strategy skipped",
				slog.String("strategy", name),
				slog.String("reason", err.Error()),
			)
			continue
		}
		active = append(active, loc)
	}

	if len(active) == 0 {
		return nil, fmt.Errorf("%w (tried %s)", ErrNoStrategy, strings.Join(opts.Strategies, ", "))
	}
	return active, nil
}

func newStrategy(name string, opts Options) (Locator, error) {
	switch name {
	case StrategyExternal:
		return NewExternalDefinition(opts.Fs, opts.ExplicitPaths, opts.InlineData)
	case StrategyEnvLocation:
		return NewEnvironmentVarLocation(opts.Fs, opts.LocationEnvVar, opts.Getenv)
	case StrategyEnvData:
		return NewEnvironmentVarData(opts.DataEnvVar, opts.Getenv)
	case StrategyApplicationFolder:
		return NewApplicationFolder(opts.Fs, opts.Executable)
	case StrategyUser:
		return NewUserScope(opts.Fs, opts.Vendor, opts.Product, opts.UserConfigDir)
	case StrategySystem:
		return NewSystemScope(opts.Fs, opts.Vendor, opts.Product, opts.SystemDir)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
}

// IsKnownStrategy reports whether name is one of the strategy constants.
func IsKnownStrategy(name string) bool {
	for _, s := range DefaultStrategies {
		if s == name {
			return true
		}
	}
	return false
}

// CandidatePaths lists the files the file-backed locators check, present
// or not, without duplicates. Locators without files contribute nothing.
func CandidatePaths(locs []Locator) []string {
	type candidater interface{ Candidates() []string }

	seen := make(map[string]bool)
	var paths []string
	for _, l := range locs {
		c, ok := l.(candidater)
		if !ok {
			continue
		}
		for _, p := range c.Candidates() {
			if !seen[p] {
				seen[p] = true
				paths = append(paths, p)
			}
		}
	}
	return paths
}

// Describe returns a printable name for a locator.
func Describe(l Locator) string {
	if s, ok := l.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T", l)
}
