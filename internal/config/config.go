package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full environment-driven service configuration.
type Config struct {
	Host string
	Port string

	// Browser provisioning
	ChromeBinary string // explicit browser binary override
	DriverBinary string // explicit driver binary override
	Headless     bool
	DryRun       bool
	StagingDir   string // writable directory for downloaded binaries
	VersionHint  string // requested browser/driver version, optional

	// Ordered artifact mirrors. Entries may contain a {version} placeholder.
	BrowserMirrors []string
	DriverMirrors  []string

	ActionTimeout time.Duration
	FetchTimeout  time.Duration

	LogLevel  string
	LogFormat string
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("HOST", "0.0.0.0")
	v.SetDefault("PORT", "10000")
	v.SetDefault("HEADLESS", true)
	v.SetDefault("DRY_RUN", false)
	v.SetDefault("STAGING_DIR", defaultStagingDir())
	v.SetDefault("ACTION_TIMEOUT", "60s")
	v.SetDefault("FETCH_TIMEOUT", "20s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")

	cfg := &Config{
		Host:           v.GetString("HOST"),
		Port:           v.GetString("PORT"),
		ChromeBinary:   v.GetString("CHROME_BINARY"),
		DriverBinary:   v.GetString("DRIVER_BINARY"),
		Headless:       v.GetBool("HEADLESS"),
		DryRun:         v.GetBool("DRY_RUN"),
		StagingDir:     v.GetString("STAGING_DIR"),
		VersionHint:    v.GetString("VERSION_HINT"),
		BrowserMirrors: splitMirrors(v.GetString("BROWSER_MIRRORS")),
		DriverMirrors:  splitMirrors(v.GetString("DRIVER_MIRRORS")),
		ActionTimeout:  v.GetDuration("ACTION_TIMEOUT"),
		FetchTimeout:   v.GetDuration("FETCH_TIMEOUT"),
		LogLevel:       v.GetString("LOG_LEVEL"),
		LogFormat:      v.GetString("LOG_FORMAT"),
	}

	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = 60 * time.Second
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 20 * time.Second
	}
	return cfg, nil
}

// splitMirrors parses a comma-separated mirror list, dropping empty entries.
func splitMirrors(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	mirrors := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			mirrors = append(mirrors, p)
		}
	}
	return mirrors
}

func defaultStagingDir() string {
	// Render mounts the repo read-only; .local under the project root is writable.
	if root := os.Getenv("RENDER_PROJECT_ROOT"); root != "" {
		return filepath.Join(root, ".local", "browsermcp")
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return filepath.Join(home, ".browsermcp")
	}
	return filepath.Join(os.TempDir(), "browsermcp")
}
