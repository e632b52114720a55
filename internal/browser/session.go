package browser

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"browsermcp/internal/logging"
)

// Session is one live browser process plus the handle used to drive it.
// Actions against a session are strictly serialized; each one runs under its
// own bounded timeout.
type Session interface {
	ID() string
	Open(ctx context.Context, url string) (title string, err error)
	Click(ctx context.Context, selector string) error
	Text(ctx context.Context, selector string) (string, error)
	Screenshot(ctx context.Context) ([]byte, error)
	Probe(ctx context.Context) error
	ActionCount() int64
	Close() error
}

const probeTimeout = 5 * time.Second

type cdpSession struct {
	id          string
	tabCtx      context.Context
	tabCancel   context.CancelFunc
	allocCancel context.CancelFunc
	userDataDir string
	timeout     time.Duration
	logger      *logging.Logger
	metrics     *Metrics

	mu      sync.Mutex
	actions atomic.Int64
}

func (s *cdpSession) ID() string { return s.id }

func (s *cdpSession) ActionCount() int64 { return s.actions.Load() }

// withRunContext serializes actions on the session and runs fn under a
// bounded timeout derived from the tab context, so a hung page load fails
// the action rather than the process.
func (s *cdpSession) withRunContext(callCtx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tabCtx.Err() != nil {
		return classify(ErrSessionDead, "browser process is gone", s.tabCtx.Err())
	}
	if timeout <= 0 {
		timeout = s.timeout
	}
	runCtx, cancel := context.WithTimeout(s.tabCtx, timeout)
	defer cancel()
	if callCtx != nil {
		stop := context.AfterFunc(callCtx, cancel)
		defer stop()
	}

	err := fn(runCtx)
	if err == nil {
		return nil
	}
	switch {
	case callCtx != nil && callCtx.Err() != nil:
		// Caller abandoned the action; the result is discarded and the
		// session gets health-checked before reuse.
		return fmt.Errorf("action abandoned: %w", callCtx.Err())
	case errors.Is(err, context.DeadlineExceeded):
		return classify(ErrActionTimeout, fmt.Sprintf("exceeded %s", timeout), err)
	case s.tabCtx.Err() != nil:
		return classify(ErrSessionDead, "browser process died mid-action", err)
	default:
		return err
	}
}

func (s *cdpSession) run(ctx context.Context, action string, tasks ...chromedp.Action) error {
	start := time.Now()
	s.actions.Add(1)
	err := s.withRunContext(ctx, s.timeout, func(runCtx context.Context) error {
		return chromedp.Run(runCtx, tasks...)
	})
	s.metrics.RecordAction(action, time.Since(start), err)
	return err
}

func (s *cdpSession) Open(ctx context.Context, url string) (string, error) {
	var title string
	err := s.run(ctx, "open_page",
		chromedp.Navigate(url),
		chromedp.Title(&title),
	)
	return title, err
}

func (s *cdpSession) Click(ctx context.Context, selector string) error {
	return s.run(ctx, "click",
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	)
}

func (s *cdpSession) Text(ctx context.Context, selector string) (string, error) {
	if selector == "" {
		selector = "body"
	}
	var out string
	err := s.run(ctx, "get_text",
		chromedp.Text(selector, &out, chromedp.ByQuery),
	)
	return out, err
}

func (s *cdpSession) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := s.run(ctx, "screenshot",
		chromedp.ActionFunc(func(runCtx context.Context) error {
			var err error
			buf, err = page.CaptureScreenshot().
				WithFormat(page.CaptureScreenshotFormatPng).
				Do(runCtx)
			return err
		}),
	)
	return buf, err
}

// Probe is the cheap liveness check: querying the current page title forces a
// CDP round-trip without mutating page state.
func (s *cdpSession) Probe(ctx context.Context) error {
	var title string
	err := s.withRunContext(ctx, probeTimeout, func(runCtx context.Context) error {
		return chromedp.Run(runCtx, chromedp.Title(&title))
	})
	if err != nil {
		return classify(ErrSessionDead, "liveness probe failed", err)
	}
	return nil
}

// Close terminates the browser process and removes the per-session user data
// directory.
func (s *cdpSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tabCancel != nil {
		s.tabCancel()
		s.tabCancel = nil
	}
	if s.allocCancel != nil {
		s.allocCancel()
		s.allocCancel = nil
	}
	if s.userDataDir != "" {
		if err := os.RemoveAll(s.userDataDir); err != nil {
			s.logger.Warn("failed to remove user data dir",
				"dir", s.userDataDir, "error", err)
		}
		s.userDataDir = ""
	}
	return nil
}

// synthetic PNG returned by dry-run screenshots: a 1x1 transparent pixel.
var dryRunPNG, _ = base64.StdEncoding.DecodeString(
	"iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mP8z8BQDwAEhQGAhKmMIQAAAABJRU5ErkJggg==")

// dryRunSession satisfies Session without spawning any subprocess. The
// façade uses it for connectivity tests against deployments that cannot run
// Chrome.
type dryRunSession struct {
	id      string
	actions atomic.Int64
}

func newDryRunSession(id string) Session {
	return &dryRunSession{id: id}
}

func (s *dryRunSession) ID() string { return s.id }

func (s *dryRunSession) ActionCount() int64 { return s.actions.Load() }

func (s *dryRunSession) Open(_ context.Context, url string) (string, error) {
	s.actions.Add(1)
	return fmt.Sprintf("dry-run: %s", url), nil
}

func (s *dryRunSession) Click(context.Context, string) error {
	s.actions.Add(1)
	return nil
}

func (s *dryRunSession) Text(context.Context, string) (string, error) {
	s.actions.Add(1)
	return "dry-run: no page content", nil
}

func (s *dryRunSession) Screenshot(context.Context) ([]byte, error) {
	s.actions.Add(1)
	return dryRunPNG, nil
}

func (s *dryRunSession) Probe(context.Context) error { return nil }

func (s *dryRunSession) Close() error { return nil }
