package locate

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/afero"

	"licensekit/internal/events"
)

// LicenseFileExt is the extension of well-known license files.
const LicenseFileExt = ".lic"

// wellKnownFile serves a single fixed path that is reported only when it
// exists. Absence is not diagnostic.
type wellKnownFile struct {
	store fileStore
	name  string
	path  string
}

func (w *wellKnownFile) String() string { return w.name }

// Path returns the candidate path checked by the strategy.
func (w *wellKnownFile) Path() string { return w.path }

// Candidates returns the checked path whether or not it exists.
func (w *wellKnownFile) Candidates() []string { return []string{w.path} }

func (w *wellKnownFile) Locations(_ *events.Trail) []string {
	if !w.store.isFile(w.path) {
		return nil
	}
	return []string{w.path}
}

func (w *wellKnownFile) RetrieveContent(location string) (string, error) {
	if location != w.path {
		return "", fmt.Errorf("%w: %s", ErrUnknownLocation, location)
	}
	return w.store.read(location)
}

// ApplicationFolder looks for <executable name>.lic next to the executable.
type ApplicationFolder struct {
	wellKnownFile
}

// maxLinkHops bounds symlink chains followed for the executable path.
const maxLinkHops = 40

// NewApplicationFolder resolves the executable location once. A symlinked
// executable is followed through fs when fs can read links; otherwise the
// path is used as given.
func NewApplicationFolder(fs afero.Fs, executable func() (string, error)) (*ApplicationFolder, error) {
	exe, err := executable()
	if err != nil {
		return nil, fmt.Errorf("failed to get executable path: %w", err)
	}
	exe = resolveLinks(fs, exe)

	base := filepath.Base(exe)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	path := filepath.Join(filepath.Dir(exe), name+LicenseFileExt)

	return &ApplicationFolder{wellKnownFile{
		store: fileStore{fs: fs},
		name:  StrategyApplicationFolder,
		path:  path,
	}}, nil
}

// UserScope looks for <user config dir>/<vendor>/<product>.lic.
type UserScope struct {
	wellKnownFile
}

// NewUserScope fails when the product name is unusable or the platform has
// no user configuration directory.
func NewUserScope(fs afero.Fs, vendor, product string, userConfigDir func() (string, error)) (*UserScope, error) {
	if err := checkProductName(product); err != nil {
		return nil, err
	}
	root, err := userConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user config dir: %w", err)
	}
	return &UserScope{wellKnownFile{
		store: fileStore{fs: fs},
		name:  StrategyUser,
		path:  scopedPath(root, vendor, product),
	}}, nil
}

// SystemScope looks for <system config dir>/<vendor>/<product>.lic.
type SystemScope struct {
	wellKnownFile
}

// NewSystemScope uses root when set, otherwise the platform default.
func NewSystemScope(fs afero.Fs, vendor, product, root string) (*SystemScope, error) {
	if err := checkProductName(product); err != nil {
		return nil, err
	}
	if root == "" {
		root = defaultSystemDir()
	}
	return &SystemScope{wellKnownFile{
		store: fileStore{fs: fs},
		name:  StrategySystem,
		path:  scopedPath(root, vendor, product),
	}}, nil
}

func defaultSystemDir() string {
	if runtime.GOOS == "windows" {
		if pd := os.Getenv("ProgramData"); pd != "" {
			return pd
		}
		return `C:\ProgramData`
	}
	return "/etc"
}

func scopedPath(root, vendor, product string) string {
	dir := vendor
	if dir == "" {
		dir = product
	}
	return filepath.Join(root, dir, product+LicenseFileExt)
}

func checkProductName(product string) error {
	switch {
	case strings.TrimSpace(product) == "":
		return fmt.Errorf("%w: empty product name", ErrNotConfigured)
	case strings.ContainsAny(product, `/\`) || product == "." || product == "..":
		return fmt.Errorf("product name %q cannot be used as a file name", product)
	}
	return nil
}

// resolveLinks follows symlinks on the final path element through fs. Any
// failure leaves the last resolved path in place.
func resolveLinks(fs afero.Fs, path string) string {
	lstater, ok := fs.(afero.Lstater)
	if !ok {
		return path
	}
	reader, ok := fs.(afero.LinkReader)
	if !ok {
		return path
	}

	for i := 0; i < maxLinkHops; i++ {
		info, lstatCalled, err := lstater.LstatIfPossible(path)
		if err != nil || !lstatCalled || info.Mode()&os.ModeSymlink == 0 {
			return path
		}
		target, err := reader.ReadlinkIfPossible(path)
		if err != nil {
			return path
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(filepath.Dir(path), target)
		}
		path = filepath.Clean(target)
	}
	return path
}
