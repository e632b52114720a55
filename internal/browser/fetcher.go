package browser

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	xerrors "browsermcp/internal/errors"
	"browsermcp/internal/httpclient"
	"browsermcp/internal/logging"
)

// Chrome for Testing publishes matched browser/driver builds per version.
// Entries carry a {version} placeholder expanded at fetch time; deployments
// on other platforms override these via configuration.
var defaultBrowserMirrors = []string{
	"https://storage.googleapis.com/chrome-for-testing-public/{version}/linux64/chrome-linux64.zip",
	"https://edgedl.me.gvt1.com/edgedl/chrome/chrome-for-testing/{version}/linux64/chrome-linux64.zip",
}

var defaultDriverMirrors = []string{
	"https://storage.googleapis.com/chrome-for-testing-public/{version}/linux64/chromedriver-linux64.zip",
	"https://edgedl.me.gvt1.com/edgedl/chrome/chrome-for-testing/{version}/linux64/chromedriver-linux64.zip",
}

// Last known-good patch build per major, used when the exact requested patch
// is not published. Extend as new majors ship.
var knownGoodBuilds = map[int]string{
	118: "118.0.5993.70",
	119: "119.0.6045.105",
	120: "120.0.6099.109",
	121: "121.0.6167.184",
	122: "122.0.6261.128",
	123: "123.0.6312.122",
	124: "124.0.6367.207",
}

// fallbackVersion anchors fetches that arrive with no usable version hint.
const fallbackVersion = "120.0.6099.109"

// maxArchiveBytes bounds a single artifact download.
const maxArchiveBytes = 512 << 20

// Fetcher downloads browser or driver archives into the staging directory.
// Fetch is idempotent: a staged executable short-circuits the network.
type Fetcher struct {
	cfg    Config
	client *http.Client
	logger *logging.Logger
}

// NewFetcher builds a fetcher with a bounded-timeout HTTP client.
func NewFetcher(cfg Config, logger *logging.Logger) *Fetcher {
	logger = logging.OrNop(logger)
	return &Fetcher{
		cfg:    cfg,
		client: httpclient.New(cfg.fetchTimeoutOrDefault(), logger),
		logger: logger,
	}
}

// Fetch obtains the target executable, downloading and extracting an archive
// when the staging directory does not already hold one. It returns the path
// to the staged executable.
func (f *Fetcher) Fetch(ctx context.Context, target Target, versionHint string) (string, error) {
	destDir := filepath.Join(f.cfg.StagingDir, string(target))

	if staged, ok := findExecutable(destDir, exeName(target)); ok {
		f.logger.Debug("staged artifact already present, skipping download",
			"target", target, "path", staged)
		return staged, nil
	}

	urls := expandMirrors(f.mirrorsFor(target), versionHint)
	if len(urls) == 0 {
		return "", fetchFailed(fmt.Sprintf("no artifact mirrors configured for %s", target), nil, nil)
	}

	var attempted []string
	var lastErr error
	for _, url := range urls {
		attempted = append(attempted, url)
		if err := f.downloadAndExtract(ctx, url, destDir); err != nil {
			f.logger.Warn("artifact download failed, trying next source",
				"target", target, "url", url, "error", err)
			lastErr = err
			continue
		}
		exe, ok := findExecutable(destDir, exeName(target))
		if !ok {
			lastErr = fmt.Errorf("archive from %s contained no %s executable", url, exeName(target))
			continue
		}
		if err := os.Chmod(exe, 0o755); err != nil {
			return "", fetchFailed("marking staged executable runnable", attempted, err)
		}
		f.logger.Info("artifact staged", "target", target, "url", url, "path", exe)
		return exe, nil
	}
	return "", fetchFailed(fmt.Sprintf("all sources failed for %s", target), attempted, lastErr)
}

func (f *Fetcher) mirrorsFor(target Target) []string {
	switch target {
	case TargetDriver:
		if len(f.cfg.DriverMirrors) > 0 {
			return f.cfg.DriverMirrors
		}
		return defaultDriverMirrors
	default:
		if len(f.cfg.BrowserMirrors) > 0 {
			return f.cfg.BrowserMirrors
		}
		return defaultBrowserMirrors
	}
}

// downloadAndExtract fetches one archive URL into destDir. Transient network
// and 5xx failures get a single bounded retry; everything else fails fast so
// the caller can move to the next source.
func (f *Fetcher) downloadAndExtract(ctx context.Context, url, destDir string) error {
	retryCfg := xerrors.RetryConfig{MaxAttempts: 1, BaseDelay: f.cfg.fetchTimeoutOrDefault() / 10}
	return xerrors.RetryWithLog(ctx, retryCfg, func(ctx context.Context) error {
		return f.downloadOnce(ctx, url, destDir)
	}, f.logger)
}

func (f *Fetcher) downloadOnce(ctx context.Context, url, destDir string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return xerrors.Permanent(fmt.Errorf("build request for %s: %w", url, err))
	}
	resp, err := f.client.Do(req)
	if err != nil {
		// Client errors here are network-level; let the retry layer classify.
		return fmt.Errorf("download %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		statusErr := fmt.Errorf("download %s: unexpected status %d", url, resp.StatusCode)
		if xerrors.IsTransientHTTPStatus(resp.StatusCode) {
			return xerrors.Transient(statusErr)
		}
		return xerrors.Permanent(statusErr)
	}

	if err := os.MkdirAll(f.cfg.StagingDir, 0o755); err != nil {
		return xerrors.Permanent(fmt.Errorf("create staging dir: %w", err))
	}
	tmp, err := os.CreateTemp(f.cfg.StagingDir, "artifact-*.zip")
	if err != nil {
		return xerrors.Permanent(fmt.Errorf("create temp archive: %w", err))
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	if _, err := httpclient.CopyWithLimit(tmp, resp.Body, maxArchiveBytes); err != nil {
		if httpclient.IsResponseTooLarge(err) {
			return xerrors.Permanent(fmt.Errorf("archive from %s: %w", url, err))
		}
		return fmt.Errorf("stream archive from %s: %w", url, err)
	}

	// Extract into a scratch directory and rename into place only on
	// success, so a mid-entry failure never leaves a partial tree where the
	// staged-artifact check would accept it.
	extractDir, err := os.MkdirTemp(f.cfg.StagingDir, "extract-*")
	if err != nil {
		return xerrors.Permanent(fmt.Errorf("create extraction dir: %w", err))
	}
	defer func() { _ = os.RemoveAll(extractDir) }()
	if err := extractZip(tmp.Name(), extractDir); err != nil {
		return xerrors.Permanent(fmt.Errorf("extract archive from %s: %w", url, err))
	}
	if err := os.RemoveAll(destDir); err != nil {
		return xerrors.Permanent(fmt.Errorf("clear staging dir: %w", err))
	}
	if err := os.Rename(extractDir, destDir); err != nil {
		return xerrors.Permanent(fmt.Errorf("stage extracted artifact: %w", err))
	}
	return nil
}

// expandMirrors builds the ordered URL list: the exact hinted version across
// every mirror first, then the known-good patch build for that major.
func expandMirrors(mirrors []string, versionHint string) []string {
	var urls []string
	for _, version := range candidateVersions(versionHint) {
		for _, mirror := range mirrors {
			if strings.Contains(mirror, "{version}") {
				urls = append(urls, strings.ReplaceAll(mirror, "{version}", version))
			} else if !contains(urls, mirror) {
				urls = append(urls, mirror)
			}
		}
	}
	return urls
}

func candidateVersions(hint string) []string {
	hint = strings.TrimSpace(hint)
	if major, err := strconv.Atoi(hint); err == nil {
		// Major-only hint: jump straight to the known-good build.
		if good, ok := knownGoodBuilds[major]; ok {
			return []string{good}
		}
		return []string{fallbackVersion}
	}
	v := ParseVersion(hint)
	if !v.Known {
		return []string{fallbackVersion}
	}
	versions := []string{v.String()}
	if good, ok := knownGoodBuilds[v.Major]; ok && good != v.String() {
		versions = append(versions, good)
	}
	return versions
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func exeName(target Target) string {
	if target == TargetDriver {
		return "chromedriver"
	}
	return "chrome"
}

// findExecutable walks dir for a regular file with the given name.
func findExecutable(dir, name string) (string, bool) {
	var found string
	_ = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || found != "" {
			return filepath.SkipAll
		}
		if !d.IsDir() && d.Name() == name {
			found = path
			return filepath.SkipAll
		}
		return nil
	})
	return found, found != ""
}

// extractZip unpacks src into dest, refusing entries that escape dest.
func extractZip(src, dest string) error {
	reader, err := zip.OpenReader(src)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer func() { _ = reader.Close() }()

	for _, file := range reader.File {
		path := filepath.Join(dest, file.Name)
		if !strings.HasPrefix(path, filepath.Clean(dest)+string(os.PathSeparator)) {
			return fmt.Errorf("archive entry escapes destination: %s", file.Name)
		}
		if file.FileInfo().IsDir() {
			if err := os.MkdirAll(path, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := writeZipEntry(file, path); err != nil {
			return err
		}
	}
	return nil
}

func writeZipEntry(file *zip.File, path string) error {
	in, err := file.Open()
	if err != nil {
		return fmt.Errorf("open archive entry %s: %w", file.Name, err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, file.Mode())
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	_, err = io.Copy(out, in)
	return err
}
