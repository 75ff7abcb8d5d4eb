// Package tools locates and fetches the external binaries a bundle depends
// on. Vendored copies inside the project tree always win over binaries found
// through the system search path.
package tools

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// DefaultTools lists the binaries every bundle needs: the media transcoder
// and its probe companion.
var DefaultTools = []string{"ffmpeg", "ffprobe"}

// ErrMissingTools marks resolution failures so the CLI can map them to a
// distinct exit status.
var ErrMissingTools = eris.New("missing required external tools")

const probeTimeout = 5 * time.Second

// Resolver looks up required external binaries.
type Resolver struct {
	Tools      []string
	VendorDirs []string
}

// NewResolver returns a Resolver for the default tool set that prefers the
// given vendored directories.
func NewResolver(vendorDirs ...string) *Resolver {
	return &Resolver{
		Tools:      DefaultTools,
		VendorDirs: vendorDirs,
	}
}

// Resolve returns the path for every required tool that could be found. If
// any tool remains unresolved, the returned error wraps ErrMissingTools and
// names each missing tool.
func (r *Resolver) Resolve() (map[string]string, error) {
	found := make(map[string]string, len(r.Tools))
	missing := make([]string, 0)

	for _, name := range r.Tools {
		path := r.lookup(name)
		if path == "" {
			missing = append(missing, name)
			continue
		}

		found[name] = path
	}

	if len(missing) > 0 {
		return found, eris.Wrapf(ErrMissingTools, "could not find %s in the vendored directories (%s) or on PATH",
			strings.Join(missing, ", "), strings.Join(r.VendorDirs, ", "))
	}

	return found, nil
}

func (r *Resolver) lookup(name string) string {
	for _, dir := range r.VendorDirs {
		for _, candidate := range []string{
			filepath.Join(dir, name),
			filepath.Join(dir, "bin", name),
		} {
			if runtime.GOOS == "windows" {
				candidate += ".exe"
			}

			info, err := os.Stat(candidate)
			if err == nil && info.Mode().IsRegular() {
				return candidate
			}
		}
	}

	path, err := exec.LookPath(name)
	if err != nil {
		return ""
	}

	return path
}

// Vendored reports whether the given resolved path points into one of the
// resolver's vendored directories.
func (r *Resolver) Vendored(path string) bool {
	for _, dir := range r.VendorDirs {
		absDir, err := filepath.Abs(dir)
		if err != nil {
			continue
		}

		absPath, err := filepath.Abs(path)
		if err != nil {
			continue
		}

		if strings.HasPrefix(absPath, absDir+string(filepath.Separator)) {
			return true
		}
	}

	return false
}

// ProbeVersion runs the tool with -version and returns the first output
// line. The probe is capped at five seconds since a broken binary might
// block forever.
func ProbeVersion(ctx context.Context, path string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, path, "-version").CombinedOutput()
	if err != nil {
		return "", eris.Wrapf(err, "Failed to run %s -version", path)
	}

	return firstLine(string(out)), nil
}

func firstLine(out string) string {
	out = strings.TrimSpace(out)
	if pos := strings.IndexByte(out, '\n'); pos > -1 {
		out = out[:pos]
	}

	return strings.TrimSpace(out)
}
