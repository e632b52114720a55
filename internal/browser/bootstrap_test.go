package browser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"browsermcp/internal/logging"
)

func TestBootstrapDryRunSpawnsNothing(t *testing.T) {
	b := NewBootstrapper(Config{DryRun: true, StagingDir: t.TempDir()}, logging.Nop(), testMetrics())
	// Any subprocess attempt in dry-run mode is a bug.
	b.reconciler.query = func(context.Context, string) (string, error) {
		t.Fatal("dry run must not invoke binaries")
		return "", nil
	}

	session, err := b.Bootstrap(t.Context())
	require.NoError(t, err)

	title, err := session.Open(t.Context(), "https://example.com")
	require.NoError(t, err)
	assert.Contains(t, title, "https://example.com")
	assert.EqualValues(t, 1, session.ActionCount())
	require.NoError(t, session.Close())
}

func TestResolveFallsBackToFetchedBinary(t *testing.T) {
	staging := t.TempDir()

	browserZip := zipArchive(t, map[string]string{"chrome-linux64/chrome": "chrome bits"})
	driverZip := zipArchive(t, map[string]string{"chromedriver-linux64/chromedriver": "driver bits"})

	var primaryHits atomic.Int64
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		primaryHits.Add(1)
		http.NotFound(w, r)
	}))
	t.Cleanup(primary.Close)
	fallback := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/chrome.zip" {
			_, _ = w.Write(browserZip)
			return
		}
		_, _ = w.Write(driverZip)
	}))
	t.Cleanup(fallback.Close)

	cfg := Config{
		StagingDir:     staging,
		BrowserMirrors: []string{primary.URL + "/chrome.zip", fallback.URL + "/chrome.zip"},
		DriverMirrors:  []string{fallback.URL + "/chromedriver.zip"},
	}
	b := NewBootstrapper(cfg, logging.Nop(), testMetrics())
	// Hide the host system so the locator genuinely misses.
	b.locator.fileCandidates = nil
	b.locator.pathNames = nil
	b.reconciler.query = func(_ context.Context, path string) (string, error) {
		if filepath.Base(path) == "chromedriver" {
			return "ChromeDriver 120.0.6099.109", nil
		}
		return "Google Chrome for Testing 120.0.6099.109", nil
	}

	resolved, driver, err := b.resolve(t.Context())
	require.NoError(t, err)
	assert.Positive(t, primaryHits.Load(), "primary source must be tried first")
	assert.Equal(t, filepath.Join(staging, "browser", "chrome-linux64", "chrome"), resolved.Path)
	assert.Equal(t, filepath.Join(staging, "driver", "chromedriver-linux64", "chromedriver"), driver.Path)
	assert.True(t, resolved.Version.SameMajor(driver.Version))
}

func TestResolveFailsWhenNothingFetchable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	t.Cleanup(server.Close)

	cfg := Config{
		StagingDir:     t.TempDir(),
		BrowserMirrors: []string{server.URL + "/chrome.zip"},
	}
	b := NewBootstrapper(cfg, logging.Nop(), testMetrics())
	b.locator.fileCandidates = nil
	b.locator.pathNames = nil

	_, _, err := b.resolve(t.Context())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBinaryNotFound)
	assert.ErrorIs(t, err, ErrFetchFailed, "the fetch failure stays visible as the cause")
}

// Guard against LookPath-resolved relative names: the locator must hand the
// bootstrapper something execable.
func TestDefaultLocatorResolvesThroughLookPath(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("no sh on PATH")
	}
	l := NewLocator(Config{}, logging.Nop())
	l.fileCandidates = nil
	l.pathNames = []string{"sh"}

	got, err := l.Locate()
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(got.Path), "LookPath result must be absolute")
}
