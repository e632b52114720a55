package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"

	"browsermcp/internal/logging"
)

const launchTimeout = 30 * time.Second

// Bootstrapper turns an environment with unknown, possibly absent binaries
// into a working session: locate, fetch on miss, reconcile the driver, then
// launch Chrome with the fixed sandbox-restricted flag set.
type Bootstrapper struct {
	cfg        Config
	locator    *Locator
	fetcher    *Fetcher
	reconciler *Reconciler
	logger     *logging.Logger
	metrics    *Metrics
}

// NewBootstrapper wires the provisioning chain for the given config.
func NewBootstrapper(cfg Config, logger *logging.Logger, metrics *Metrics) *Bootstrapper {
	logger = logging.OrNop(logger)
	fetcher := NewFetcher(cfg, logger)
	return &Bootstrapper{
		cfg:        cfg,
		locator:    NewLocator(cfg, logger),
		fetcher:    fetcher,
		reconciler: NewReconciler(cfg, fetcher, logger),
		logger:     logger,
		metrics:    metrics,
	}
}

// Bootstrap produces a live session or a classified error. Any process
// spawned along a failing path is terminated before the error propagates.
func (b *Bootstrapper) Bootstrap(ctx context.Context) (Session, error) {
	session, err := b.bootstrap(ctx)
	b.metrics.RecordBootstrap(err)
	return session, err
}

func (b *Bootstrapper) bootstrap(ctx context.Context) (Session, error) {
	if b.cfg.DryRun {
		id := uuid.NewString()
		b.logger.Info("dry run enabled, returning synthetic session", "session_id", id)
		return newDryRunSession(id), nil
	}

	resolved, _, err := b.resolve(ctx)
	if err != nil {
		return nil, err
	}
	return b.launch(resolved)
}

// resolve runs the pre-launch chain: locate the browser, fetch it when
// absent, then reconcile a matching driver.
func (b *Bootstrapper) resolve(ctx context.Context) (ResolvedBrowser, DriverArtifact, error) {
	cand, err := b.locator.Locate()
	if errors.Is(err, ErrBinaryNotFound) {
		b.logger.Info("no local browser binary, fetching",
			"version_hint", b.cfg.VersionHint)
		path, ferr := b.fetcher.Fetch(ctx, TargetBrowser, b.cfg.VersionHint)
		b.metrics.RecordDownload(TargetBrowser, ferr)
		if ferr != nil {
			return ResolvedBrowser{}, DriverArtifact{},
				classify(ErrBinaryNotFound, "browser neither installed nor fetchable", ferr)
		}
		cand = BinaryCandidate{Path: path, Provenance: ProvenanceDownloaded}
	} else if err != nil {
		return ResolvedBrowser{}, DriverArtifact{}, err
	}

	resolved := b.reconciler.ResolveBrowser(ctx, cand)
	b.logger.Info("browser resolved",
		"path", resolved.Path,
		"version", resolved.Version.String(),
		"provenance", cand.Provenance)

	driver, err := b.reconciler.Reconcile(ctx, resolved)
	if err != nil {
		return ResolvedBrowser{}, DriverArtifact{}, err
	}
	b.logger.Info("driver reconciled",
		"path", driver.Path, "version", driver.Version.String())

	return resolved, driver, nil
}

// launch starts the browser process with an isolated user data directory and
// verifies it answers over CDP before handing the session out.
func (b *Bootstrapper) launch(resolved ResolvedBrowser) (Session, error) {
	profileRoot := filepath.Join(b.cfg.StagingDir, "profiles")
	if err := os.MkdirAll(profileRoot, 0o755); err != nil {
		return nil, classify(ErrLaunchFailed, "create profile root", err)
	}
	userDataDir, err := os.MkdirTemp(profileRoot, "profile-*")
	if err != nil {
		return nil, classify(ErrLaunchFailed, "create user data dir", err)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(resolved.Path),
		chromedp.Flag("headless", b.cfg.Headless),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.UserDataDir(userDataDir),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	teardown := func() {
		tabCancel()
		allocCancel()
		_ = os.RemoveAll(userDataDir)
	}

	// The initial navigation doubles as the launch check: it fails fast on
	// bad flags, port conflicts, or a binary that cannot start headless.
	launchCtx, cancel := context.WithTimeout(tabCtx, launchTimeout)
	defer cancel()
	if err := chromedp.Run(launchCtx, chromedp.Navigate("about:blank")); err != nil {
		teardown()
		return nil, classify(ErrLaunchFailed,
			fmt.Sprintf("browser at %s did not come up", resolved.Path), err)
	}

	session := &cdpSession{
		id:          uuid.NewString(),
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
		allocCancel: allocCancel,
		userDataDir: userDataDir,
		timeout:     b.cfg.actionTimeoutOrDefault(),
		logger:      b.logger,
		metrics:     b.metrics,
	}
	b.logger.Info("browser session launched",
		"session_id", session.id, "user_data_dir", userDataDir)
	return session, nil
}
