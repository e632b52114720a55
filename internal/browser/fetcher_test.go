package browser

import (
	"archive/zip"
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"browsermcp/internal/logging"
)

func zipArchive(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range entries {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestFetchIsIdempotent(t *testing.T) {
	staging := t.TempDir()
	staged := writeFile(t, filepath.Join(staging, "browser", "chrome-linux64", "chrome"), 0o755)

	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	f := NewFetcher(Config{
		StagingDir:     staging,
		BrowserMirrors: []string{server.URL + "/chrome.zip"},
	}, logging.Nop())

	got, err := f.Fetch(t.Context(), TargetBrowser, "")
	require.NoError(t, err)
	assert.Equal(t, staged, got)
	assert.Zero(t, hits.Load(), "populated staging path must skip the network entirely")
}

func TestFetchFallsBackToSecondMirror(t *testing.T) {
	staging := t.TempDir()
	archive := zipArchive(t, map[string]string{
		"chrome-linux64/chrome":      "binary",
		"chrome-linux64/LICENSE.txt": "license",
	})

	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	t.Cleanup(primary.Close)
	fallback := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(archive)
	}))
	t.Cleanup(fallback.Close)

	f := NewFetcher(Config{
		StagingDir: staging,
		BrowserMirrors: []string{
			primary.URL + "/chrome.zip",
			fallback.URL + "/chrome.zip",
		},
	}, logging.Nop())

	got, err := f.Fetch(t.Context(), TargetBrowser, "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(staging, "browser", "chrome-linux64", "chrome"), got)

	info, err := os.Stat(got)
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&0o111, "staged executable must be runnable")
}

func TestFetchReportsAllAttemptedURLs(t *testing.T) {
	staging := t.TempDir()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	t.Cleanup(server.Close)

	f := NewFetcher(Config{
		StagingDir: staging,
		DriverMirrors: []string{
			server.URL + "/a/driver.zip",
			server.URL + "/b/driver.zip",
		},
	}, logging.Nop())

	_, err := f.Fetch(t.Context(), TargetDriver, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFetchFailed)
	assert.Contains(t, err.Error(), "/a/driver.zip")
	assert.Contains(t, err.Error(), "/b/driver.zip")
}

func TestFetchRejectsCorruptArchive(t *testing.T) {
	staging := t.TempDir()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("this is not a zip"))
	}))
	t.Cleanup(server.Close)

	f := NewFetcher(Config{
		StagingDir:     staging,
		BrowserMirrors: []string{server.URL + "/chrome.zip"},
	}, logging.Nop())

	_, err := f.Fetch(t.Context(), TargetBrowser, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFetchFailed)
}

func TestFetchRejectsArchiveWithoutExecutable(t *testing.T) {
	staging := t.TempDir()
	archive := zipArchive(t, map[string]string{"README.md": "no binary here"})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(archive)
	}))
	t.Cleanup(server.Close)

	f := NewFetcher(Config{
		StagingDir:     staging,
		BrowserMirrors: []string{server.URL + "/chrome.zip"},
	}, logging.Nop())

	_, err := f.Fetch(t.Context(), TargetBrowser, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFetchFailed)
	assert.Contains(t, err.Error(), "no chrome executable")
}

// badCRCArchive builds a zip whose entry fails its checksum mid-read, the way
// a connection dropped during transfer surfaces at extraction time.
func badCRCArchive(t *testing.T, name string, content []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	fw, err := w.CreateRaw(&zip.FileHeader{
		Name:               name,
		Method:             zip.Store,
		CRC32:              0xdeadbeef,
		CompressedSize64:   uint64(len(content)),
		UncompressedSize64: uint64(len(content)),
	})
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestFetchNeverStagesPartialExtraction(t *testing.T) {
	staging := t.TempDir()
	bad := badCRCArchive(t, "chrome-linux64/chrome", []byte("truncated bits"))
	good := zipArchive(t, map[string]string{"chrome-linux64/chrome": "chrome bits"})

	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			_, _ = w.Write(bad)
			return
		}
		_, _ = w.Write(good)
	}))
	t.Cleanup(server.Close)

	f := NewFetcher(Config{
		StagingDir:     staging,
		BrowserMirrors: []string{server.URL + "/chrome.zip"},
	}, logging.Nop())

	_, err := f.Fetch(t.Context(), TargetBrowser, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFetchFailed)
	assert.NoFileExists(t, filepath.Join(staging, "browser", "chrome-linux64", "chrome"),
		"a failed extraction must not leave a file the staged check would accept")

	// The retry must reach the network again instead of trusting a remnant.
	got, err := f.Fetch(t.Context(), TargetBrowser, "")
	require.NoError(t, err)
	data, err := os.ReadFile(got)
	require.NoError(t, err)
	assert.Equal(t, "chrome bits", string(data))
}

func TestCandidateVersions(t *testing.T) {
	t.Run("exact then known good for major", func(t *testing.T) {
		got := candidateVersions("120.0.6099.18")
		assert.Equal(t, []string{"120.0.6099.18", "120.0.6099.109"}, got)
	})
	t.Run("exact equal to known good not duplicated", func(t *testing.T) {
		got := candidateVersions("120.0.6099.109")
		assert.Equal(t, []string{"120.0.6099.109"}, got)
	})
	t.Run("major only hint", func(t *testing.T) {
		got := candidateVersions("121")
		assert.Equal(t, []string{"121.0.6167.184"}, got)
	})
	t.Run("no hint anchors to fallback", func(t *testing.T) {
		got := candidateVersions("")
		assert.Equal(t, []string{fallbackVersion}, got)
	})
}

func TestExpandMirrors(t *testing.T) {
	mirrors := []string{
		"https://a.example/{version}/chrome.zip",
		"https://b.example/static/chrome.zip",
	}
	got := expandMirrors(mirrors, "120.0.6099.18")
	assert.Equal(t, []string{
		"https://a.example/120.0.6099.18/chrome.zip",
		"https://b.example/static/chrome.zip",
		"https://a.example/120.0.6099.109/chrome.zip",
	}, got, "templated mirrors expand per version; static mirrors appear once")
}

func TestExtractZipRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	archive := zipArchive(t, map[string]string{"../escape": "nope"})
	src := filepath.Join(dir, "bad.zip")
	require.NoError(t, os.WriteFile(src, archive, 0o644))

	// Rejected either by zip.OpenReader's insecure-path check or by our own
	// destination guard, depending on GODEBUG.
	err := extractZip(src, filepath.Join(dir, "out"))
	require.Error(t, err)
	assert.NoFileExists(t, filepath.Join(dir, "escape"))
}
