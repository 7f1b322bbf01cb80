package locate

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/afero"

	"licensekit/internal/events"
)

// InlineConfigLocation is the logical location of inline configured data.
const InlineConfigLocation = "inline:config"

// fileStore reads license files through an afero filesystem.
type fileStore struct {
	fs afero.Fs
}

func (s fileStore) isFile(path string) bool {
	info, err := s.fs.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}

func (s fileStore) read(path string) (string, error) {
	f, err := s.fs.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open license file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxLicenseSize+1))
	if err != nil {
		return "", fmt.Errorf("failed to read license file: %w", err)
	}
	if len(data) > maxLicenseSize {
		return "", fmt.Errorf("%w: %s", ErrTooLarge, path)
	}
	return string(data), nil
}

// existing filters paths down to regular files, reporting every missing one.
func (s fileStore) existing(paths []string, trail *events.Trail) []string {
	var found []string
	for _, p := range paths {
		if s.isFile(p) {
			found = append(found, p)
			continue
		}
		if trail != nil {
			trail.Add(events.LicenseFileNotFound, p)
		}
	}
	return found
}

// SplitPathList splits a ';'-separated list, dropping blank entries.
func SplitPathList(list string) []string {
	var out []string
	for _, p := range strings.Split(list, ";") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ExternalDefinition serves licenses handed over explicitly by the
// application: a list of file paths and/or the license text itself.
type ExternalDefinition struct {
	store  fileStore
	paths  []string
	inline string
}

// NewExternalDefinition returns ErrNotConfigured when both inputs are empty.
func NewExternalDefinition(fs afero.Fs, paths []string, inlineData string) (*ExternalDefinition, error) {
	var cleaned []string
	for _, p := range paths {
		if p = strings.TrimSpace(p); p != "" {
			cleaned = append(cleaned, p)
		}
	}
	if len(cleaned) == 0 && strings.TrimSpace(inlineData) == "" {
		return nil, fmt.Errorf("%w: no explicit paths or inline data", ErrNotConfigured)
	}
	return &ExternalDefinition{
		store:  fileStore{fs: fs},
		paths:  cleaned,
		inline: inlineData,
	}, nil
}

func (e *ExternalDefinition) String() string { return StrategyExternal }

// Candidates returns the configured paths.
func (e *ExternalDefinition) Candidates() []string {
	return append([]string(nil), e.paths...)
}

// Locations returns the configured paths that exist, then the inline data.
func (e *ExternalDefinition) Locations(trail *events.Trail) []string {
	locs := e.store.existing(e.paths, trail)
	if strings.TrimSpace(e.inline) != "" {
		locs = append(locs, InlineConfigLocation)
	}
	return locs
}

// RetrieveContent reads one of the configured locations.
func (e *ExternalDefinition) RetrieveContent(location string) (string, error) {
	if location == InlineConfigLocation && strings.TrimSpace(e.inline) != "" {
		return decodeLicenseData(e.inline), nil
	}
	for _, p := range e.paths {
		if p == location {
			return e.store.read(location)
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownLocation, location)
}

// EnvironmentVarLocation reads a ';'-separated list of license file paths
// from an environment variable.
type EnvironmentVarLocation struct {
	store  fileStore
	name   string
	getenv func(string) string
}

// NewEnvironmentVarLocation never fails for an unset variable; the variable
// is consulted on every call to Locations.
func NewEnvironmentVarLocation(fs afero.Fs, name string, getenv func(string) string) (*EnvironmentVarLocation, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty environment variable name", ErrNotConfigured)
	}
	return &EnvironmentVarLocation{store: fileStore{fs: fs}, name: name, getenv: getenv}, nil
}

func (e *EnvironmentVarLocation) String() string { return StrategyEnvLocation }

// Candidates returns the paths currently listed by the variable.
func (e *EnvironmentVarLocation) Candidates() []string {
	return SplitPathList(e.getenv(e.name))
}

// Locations returns the listed paths that exist.
func (e *EnvironmentVarLocation) Locations(trail *events.Trail) []string {
	return e.store.existing(SplitPathList(e.getenv(e.name)), trail)
}

// RetrieveContent reads a file named by the variable.
func (e *EnvironmentVarLocation) RetrieveContent(location string) (string, error) {
	for _, p := range SplitPathList(e.getenv(e.name)) {
		if p == location {
			return e.store.read(location)
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownLocation, location)
}
