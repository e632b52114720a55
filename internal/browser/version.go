package browser

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"time"
)

// Version is a parsed browser or driver version. Known is false when the
// vendor output could not be parsed; an unknown version never matches and
// never panics downstream.
type Version struct {
	Major, Minor, Build, Patch int
	Raw                        string
	Known                      bool
}

func (v Version) String() string {
	if !v.Known {
		return "unknown"
	}
	return fmt.Sprintf("%d.%d.%d.%d", v.Major, v.Minor, v.Build, v.Patch)
}

// SameMajor reports whether both versions are known and share a major component.
func (v Version) SameMajor(other Version) bool {
	return v.Known && other.Known && v.Major == other.Major
}

var versionPattern = regexp.MustCompile(`(\d+)\.(\d+)\.(\d+)\.(\d+)`)

// ParseVersion extracts a dotted version from free-form vendor output such as
// "Chromium 120.0.6099.18 snap" or "Google Chrome for Testing 121.0.6167.85".
// Garbled or empty input yields an unknown version, not an error.
func ParseVersion(output string) Version {
	m := versionPattern.FindStringSubmatch(output)
	if m == nil {
		return Version{Raw: output}
	}
	major, _ := strconv.Atoi(m[1])
	minor, _ := strconv.Atoi(m[2])
	build, _ := strconv.Atoi(m[3])
	patch, _ := strconv.Atoi(m[4])
	return Version{
		Major: major,
		Minor: minor,
		Build: build,
		Patch: patch,
		Raw:   output,
		Known: true,
	}
}

const versionProbeTimeout = 10 * time.Second

// versionQueryFunc invokes a binary with its version flag and returns the raw
// output. Swappable in tests.
type versionQueryFunc func(ctx context.Context, path string) (string, error)

func execVersionQuery(ctx context.Context, path string) (string, error) {
	probeCtx, cancel := context.WithTimeout(ctx, versionProbeTimeout)
	defer cancel()
	out, err := exec.CommandContext(probeCtx, path, "--version").CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("run %s --version: %w", path, err)
	}
	return string(out), nil
}
