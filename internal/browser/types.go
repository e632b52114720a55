package browser

import "time"

// Provenance records where a binary candidate came from.
type Provenance string

const (
	ProvenanceSystem     Provenance = "system"     // preinstalled or PATH-registered
	ProvenanceStaged     Provenance = "staged"     // left by a previous download
	ProvenanceDownloaded Provenance = "downloaded" // fetched during this bootstrap
)

// BinaryCandidate is a filesystem path that may hold a usable browser binary.
type BinaryCandidate struct {
	Path       string
	Provenance Provenance
}

// ResolvedBrowser is the browser executable chosen for a bootstrap attempt,
// together with its reported version. Immutable once created.
type ResolvedBrowser struct {
	Path    string
	Version Version
}

// DriverArtifact is a driver executable matched against a browser version.
type DriverArtifact struct {
	Path    string
	Version Version
}

// Target selects which artifact the fetcher obtains.
type Target string

const (
	TargetBrowser Target = "browser"
	TargetDriver  Target = "driver"
)

// Config configures the session provisioner. The façade builds it from the
// environment and passes it in; the provisioner never reads env vars itself.
type Config struct {
	BinaryPath  string // explicit browser binary override
	DriverPath  string // explicit driver binary override
	Headless    bool
	DryRun      bool
	StagingDir  string
	VersionHint string

	// Ordered artifact mirrors; entries may contain a {version} placeholder.
	BrowserMirrors []string
	DriverMirrors  []string

	ActionTimeout time.Duration
	FetchTimeout  time.Duration
}

func (c Config) actionTimeoutOrDefault() time.Duration {
	if c.ActionTimeout > 0 {
		return c.ActionTimeout
	}
	return 60 * time.Second
}

func (c Config) fetchTimeoutOrDefault() time.Duration {
	if c.FetchTimeout > 0 {
		return c.FetchTimeout
	}
	return 20 * time.Second
}
