package browser

import (
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"browsermcp/internal/logging"
)

// Well-known install locations, checked after any explicit override and
// before PATH lookups. The Render path mirrors where the deploy hook used to
// stage Chrome.
var defaultInstallPaths = []string{
	"/opt/render/project/src/.local/chrome/chrome-linux/chrome",
	"/usr/bin/google-chrome",
	"/usr/bin/google-chrome-stable",
	"/usr/bin/chromium",
	"/usr/bin/chromium-browser",
	"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
	"/Applications/Chromium.app/Contents/MacOS/Chromium",
}

var defaultPathNames = []string{
	"google-chrome",
	"google-chrome-stable",
	"chromium",
	"chromium-browser",
	"headless_shell",
	"headless-shell",
	"chrome",
}

// Locator finds a browser binary among an ordered list of candidates:
// explicit override, well-known install paths, PATH names, then the staging
// directory left by a previous fetch. It only checks existence; version
// verification belongs to the Reconciler.
type Locator struct {
	fileCandidates []BinaryCandidate // override + well-known paths, in order
	pathNames      []string
	stagedDir      string // walked last; archives nest the executable
	logger         *logging.Logger

	// injected for tests
	stat     func(string) (fs.FileInfo, error)
	chmod    func(string, fs.FileMode) error
	lookPath func(string) (string, error)
}

// NewLocator builds a locator for the provisioner config.
func NewLocator(cfg Config, logger *logging.Logger) *Locator {
	var files []BinaryCandidate
	if p := strings.TrimSpace(cfg.BinaryPath); p != "" {
		files = append(files, BinaryCandidate{Path: p, Provenance: ProvenanceSystem})
	}
	for _, p := range defaultInstallPaths {
		files = append(files, BinaryCandidate{Path: p, Provenance: ProvenanceSystem})
	}
	var stagedDir string
	if cfg.StagingDir != "" {
		stagedDir = filepath.Join(cfg.StagingDir, string(TargetBrowser))
	}
	return &Locator{
		fileCandidates: files,
		pathNames:      defaultPathNames,
		stagedDir:      stagedDir,
		logger:         logging.OrNop(logger),
		stat:           os.Stat,
		chmod:          os.Chmod,
		lookPath:       exec.LookPath,
	}
}

// Locate returns the first usable candidate. A path that exists but is not
// executable is repaired with chmod; only absent paths are skipped. When
// nothing matches, the caller is expected to fall back to the fetcher.
func (l *Locator) Locate() (BinaryCandidate, error) {
	for _, cand := range l.fileCandidates {
		if l.usable(cand) {
			return cand, nil
		}
	}
	for _, name := range l.pathNames {
		resolved, err := l.lookPath(name)
		if err != nil {
			continue
		}
		l.logger.Debug("browser binary located via PATH", "name", name, "path", resolved)
		return BinaryCandidate{Path: resolved, Provenance: ProvenanceSystem}, nil
	}
	if l.stagedDir != "" {
		if path, ok := findExecutable(l.stagedDir, exeName(TargetBrowser)); ok {
			cand := BinaryCandidate{Path: path, Provenance: ProvenanceStaged}
			if l.usable(cand) {
				return cand, nil
			}
		}
	}
	return BinaryCandidate{}, classify(ErrBinaryNotFound, "no candidate path exists", nil)
}

func (l *Locator) usable(cand BinaryCandidate) bool {
	info, err := l.stat(cand.Path)
	if err != nil || info.IsDir() {
		return false
	}
	if info.Mode()&0o111 == 0 {
		if err := l.chmod(cand.Path, info.Mode()|0o755); err != nil {
			l.logger.Warn("candidate not executable and chmod failed",
				"path", cand.Path, "error", err)
			return false
		}
		l.logger.Info("repaired executable bit on candidate", "path", cand.Path)
	}
	l.logger.Debug("browser binary located",
		"path", cand.Path, "provenance", cand.Provenance)
	return true
}
