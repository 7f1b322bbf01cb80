package license

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Reserved and recognized record keys.
const (
	LicenseVersionKey  = "lic_ver"
	SignatureKey       = "sig"
	VersionFromKey     = "sw_version_from"
	VersionToKey       = "sw_version_to"
	FromDateKey        = "from_date"
	ToDateKey          = "to_date"
	ClientSignatureKey = "client_signature"
	ApplicationDataKey = "application_data"
)

// SupportedVersion is the only accepted lic_ver value.
const SupportedVersion = 200

// DateLayout is the layout of from_date and to_date.
const DateLayout = "2006-01-02"

var (
	ErrNotYetValid       = errors.New("license not yet valid")
	ErrExpired           = errors.New("license expired")
	ErrVersionOutOfRange = errors.New("software version not covered by license")
	ErrLimitFormat       = errors.New("malformed license limit")
)

// FullLicenseInfo is one structurally valid license record.
type FullLicenseInfo struct {
	Source    string `json:"source"`
	Project   string `json:"project"`
	Signature string `json:"-"` // also kept in Limits, serialized there
	Limits    Limits `json:"limits"`
}

// Clone returns a copy that shares no state with f.
func (f FullLicenseInfo) Clone() FullLicenseInfo {
	f.Limits = f.Limits.Clone()
	return f
}

// PrintForSign returns the canonical payload the license signature covers:
// the trimmed upper-cased project name followed by every limit except lic_ver
// and sig, each as trimmed key immediately followed by trimmed value.
func (f FullLicenseInfo) PrintForSign() string {
	var b strings.Builder
	b.WriteString(strings.ToUpper(strings.TrimSpace(f.Project)))
	f.Limits.Range(func(k, v string) bool {
		if k == LicenseVersionKey || k == SignatureKey {
			return true
		}
		b.WriteString(strings.TrimSpace(k))
		b.WriteString(strings.TrimSpace(v))
		return true
	})
	return b.String()
}

func (f FullLicenseInfo) intLimit(key string) (int, bool, error) {
	v, ok := f.Limits.Get(key)
	if !ok || strings.TrimSpace(v) == "" {
		return 0, false, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, false, fmt.Errorf("%w: %s=%q", ErrLimitFormat, key, v)
	}
	return n, true, nil
}

func (f FullLicenseInfo) dateLimit(key string) (time.Time, bool, error) {
	v, ok := f.Limits.Get(key)
	if !ok || strings.TrimSpace(v) == "" {
		return time.Time{}, false, nil
	}
	t, err := time.Parse(DateLayout, strings.TrimSpace(v))
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%w: %s=%q", ErrLimitFormat, key, v)
	}
	return t, true, nil
}

// VersionFrom returns sw_version_from when present.
func (f FullLicenseInfo) VersionFrom() (int, bool, error) { return f.intLimit(VersionFromKey) }

// VersionTo returns sw_version_to when present.
func (f FullLicenseInfo) VersionTo() (int, bool, error) { return f.intLimit(VersionToKey) }

// ValidFrom returns from_date when present.
func (f FullLicenseInfo) ValidFrom() (time.Time, bool, error) { return f.dateLimit(FromDateKey) }

// ValidTo returns to_date when present. The license is valid through the
// whole of that day.
func (f FullLicenseInfo) ValidTo() (time.Time, bool, error) { return f.dateLimit(ToDateKey) }

func (f FullLicenseInfo) ClientSignature() string {
	v, _ := f.Limits.Get(ClientSignatureKey)
	return strings.TrimSpace(v)
}

func (f FullLicenseInfo) ApplicationData() string {
	v, _ := f.Limits.Get(ApplicationDataKey)
	return strings.TrimSpace(v)
}

// CheckLimits evaluates the date window against now and, when swVersion is
// positive, the software version window.
func (f FullLicenseInfo) CheckLimits(now time.Time, swVersion int) error {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	from, ok, err := f.ValidFrom()
	if err != nil {
		return err
	}
	if ok && day.Before(from) {
		return fmt.Errorf("%w: valid from %s", ErrNotYetValid, from.Format(DateLayout))
	}

	to, ok, err := f.ValidTo()
	if err != nil {
		return err
	}
	if ok && day.After(to) {
		return fmt.Errorf("%w: valid to %s", ErrExpired, to.Format(DateLayout))
	}

	vFrom, hasFrom, err := f.VersionFrom()
	if err != nil {
		return err
	}
	vTo, hasTo, err := f.VersionTo()
	if err != nil {
		return err
	}
	if swVersion <= 0 {
		return nil
	}
	if hasFrom && swVersion < vFrom {
		return fmt.Errorf("%w: %d < %d", ErrVersionOutOfRange, swVersion, vFrom)
	}
	if hasTo && swVersion > vTo {
		return fmt.Errorf("%w: %d > %d", ErrVersionOutOfRange, swVersion, vTo)
	}
	return nil
}
