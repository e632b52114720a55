package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"browsermcp/internal/logging"
)

// Reconciler matches a driver build to the resolved browser. A driver whose
// major version differs from the browser's is rejected outright; the loose
// "accept whatever resolves" fallback some deployments relied on is treated
// as a bug here.
type Reconciler struct {
	cfg     Config
	fetcher *Fetcher
	logger  *logging.Logger
	query   versionQueryFunc

	// resolved caches browser-version -> driver artifact so repeated
	// bootstraps skip the --version round-trips.
	resolved *lru.Cache[string, DriverArtifact]
}

// NewReconciler builds a reconciler backed by the given fetcher.
func NewReconciler(cfg Config, fetcher *Fetcher, logger *logging.Logger) *Reconciler {
	cache, _ := lru.New[string, DriverArtifact](16)
	return &Reconciler{
		cfg:      cfg,
		fetcher:  fetcher,
		logger:   logging.OrNop(logger),
		query:    execVersionQuery,
		resolved: cache,
	}
}

// ResolveBrowser probes the candidate's version. Garbled or missing output
// degrades to an unknown version rather than failing the bootstrap.
func (r *Reconciler) ResolveBrowser(ctx context.Context, cand BinaryCandidate) ResolvedBrowser {
	out, err := r.query(ctx, cand.Path)
	if err != nil {
		r.logger.Warn("browser version probe failed", "path", cand.Path, "error", err)
		return ResolvedBrowser{Path: cand.Path, Version: Version{Raw: ""}}
	}
	version := ParseVersion(out)
	if !version.Known {
		r.logger.Warn("could not parse browser version output",
			"path", cand.Path, "output", strings.TrimSpace(out))
	}
	return ResolvedBrowser{Path: cand.Path, Version: version}
}

// Reconcile returns a driver artifact whose major version matches the
// browser's. Resolution order: explicit override, previously staged driver,
// fetch by version hint.
func (r *Reconciler) Reconcile(ctx context.Context, browser ResolvedBrowser) (DriverArtifact, error) {
	cacheKey := browser.Path + "|" + browser.Version.String()
	if art, ok := r.resolved.Get(cacheKey); ok {
		if _, err := os.Stat(art.Path); err == nil {
			return art, nil
		}
		r.resolved.Remove(cacheKey)
	}

	// An explicit override is authoritative: a mismatch there is a
	// configuration error, never silently replaced.
	if override := strings.TrimSpace(r.cfg.DriverPath); override != "" {
		art, err := r.verify(ctx, override, browser.Version)
		if err != nil {
			return DriverArtifact{}, err
		}
		r.resolved.Add(cacheKey, art)
		return art, nil
	}

	driverDir := filepath.Join(r.cfg.StagingDir, string(TargetDriver))
	if staged, ok := findExecutable(driverDir, exeName(TargetDriver)); ok {
		art, err := r.verify(ctx, staged, browser.Version)
		if err == nil {
			r.resolved.Add(cacheKey, art)
			return art, nil
		}
		// Stale driver from a previous browser install: discard and refetch.
		r.logger.Warn("staged driver rejected, refetching",
			"path", staged, "error", err)
		if err := os.RemoveAll(driverDir); err != nil {
			return DriverArtifact{}, fmt.Errorf("remove stale driver: %w", err)
		}
	}

	hint := r.versionHint(browser.Version)
	fetched, err := r.fetcher.Fetch(ctx, TargetDriver, hint)
	if err != nil {
		return DriverArtifact{}, err
	}
	art, err := r.verify(ctx, fetched, browser.Version)
	if err != nil {
		return DriverArtifact{}, err
	}
	r.resolved.Add(cacheKey, art)
	return art, nil
}

func (r *Reconciler) versionHint(browserVersion Version) string {
	if browserVersion.Known {
		return browserVersion.String()
	}
	return r.cfg.VersionHint
}

// verify probes the driver's version and enforces the major-version match.
// When either side is unknown the match cannot be checked; the driver is
// accepted with a warning so a vendor string change degrades instead of
// bricking the bootstrap path.
func (r *Reconciler) verify(ctx context.Context, path string, want Version) (DriverArtifact, error) {
	out, err := r.query(ctx, path)
	if err != nil {
		// The binary would not execute at all; that is a launch problem,
		// not a version disagreement.
		return DriverArtifact{}, classify(ErrLaunchFailed,
			fmt.Sprintf("driver at %s failed to execute its version probe", path), err)
	}
	got := ParseVersion(out)
	if want.Known && got.Known && got.Major != want.Major {
		return DriverArtifact{}, classify(ErrVersionMismatch,
			fmt.Sprintf("driver %s does not match browser %s", got, want), nil)
	}
	if !want.Known || !got.Known {
		r.logger.Warn("version match unverifiable, accepting driver",
			"driver", got.String(), "browser", want.String(), "path", path)
	}
	return DriverArtifact{Path: path, Version: got}, nil
}
