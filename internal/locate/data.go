package locate

import (
	"encoding/base64"
	"fmt"
	"strings"
	"unicode/utf8"

	"licensekit/internal/events"
)

// EnvironmentVarData reads the license text itself from an environment
// variable. The text may be base64 encoded.
type EnvironmentVarData struct {
	name   string
	getenv func(string) string
}

// NewEnvironmentVarData returns a strategy bound to the variable name.
func NewEnvironmentVarData(name string, getenv func(string) string) (*EnvironmentVarData, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty environment variable name", ErrNotConfigured)
	}
	return &EnvironmentVarData{name: name, getenv: getenv}, nil
}

func (e *EnvironmentVarData) String() string { return StrategyEnvData }

func (e *EnvironmentVarData) location() string {
	return "env:" + e.name
}

// Locations yields a single logical location when the variable is set.
func (e *EnvironmentVarData) Locations(_ *events.Trail) []string {
	if strings.TrimSpace(e.getenv(e.name)) == "" {
		return nil
	}
	return []string{e.location()}
}

// RetrieveContent returns the decoded variable value.
func (e *EnvironmentVarData) RetrieveContent(location string) (string, error) {
	if location != e.location() {
		return "", fmt.Errorf("%w: %s", ErrUnknownLocation, location)
	}
	data := e.getenv(e.name)
	if strings.TrimSpace(data) == "" {
		return "", fmt.Errorf("environment variable %s is empty", e.name)
	}
	return decodeLicenseData(data), nil
}

// decodeLicenseData returns the base64-decoded text when data is valid
// base64 of a section-bearing document, and data unchanged otherwise.
func decodeLicenseData(data string) string {
	trimmed := strings.Join(strings.Fields(data), "")
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.URLEncoding, base64.RawStdEncoding} {
		decoded, err := enc.DecodeString(trimmed)
		if err != nil {
			continue
		}
		if utf8.Valid(decoded) && strings.Contains(string(decoded), "[") {
			return string(decoded)
		}
	}
	return data
}
