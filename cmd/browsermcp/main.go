package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"browsermcp/internal/browser"
	"browsermcp/internal/config"
	"browsermcp/internal/logging"
	"browsermcp/internal/server"
)

const shutdownTimeout = 10 * time.Second

var version = "1.0.0"

func main() {
	root := &cobra.Command{
		Use:          "browsermcp",
		Short:        "MCP server exposing headless browser automation over HTTP",
		Version:      version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	}
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.New(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})
	logger.Info("starting browsermcp",
		"version", version,
		"addr", cfg.Host+":"+cfg.Port,
		"headless", cfg.Headless,
		"dry_run", cfg.DryRun,
		"staging_dir", cfg.StagingDir)

	browserCfg := browser.Config{
		BinaryPath:     cfg.ChromeBinary,
		DriverPath:     cfg.DriverBinary,
		Headless:       cfg.Headless,
		DryRun:         cfg.DryRun,
		StagingDir:     cfg.StagingDir,
		VersionHint:    cfg.VersionHint,
		BrowserMirrors: cfg.BrowserMirrors,
		DriverMirrors:  cfg.DriverMirrors,
		ActionTimeout:  cfg.ActionTimeout,
		FetchTimeout:   cfg.FetchTimeout,
	}

	metrics := browser.NewMetrics(prometheus.DefaultRegisterer)
	bootstrapper := browser.NewBootstrapper(browserCfg, logger.WithComponent("browser"), metrics)
	cache := browser.NewCache(bootstrapper, logger.WithComponent("cache"), metrics)
	defer cache.Close()

	locator := browser.NewLocator(browserCfg, logger.WithComponent("locator"))
	srv := server.New(server.Options{
		Host:          cfg.Host,
		Port:          cfg.Port,
		DryRun:        cfg.DryRun,
		ActionTimeout: cfg.ActionTimeout,
		LocateBrowser: func() (string, error) {
			cand, err := locator.Locate()
			if err != nil {
				return "", err
			}
			return cand.Path, nil
		},
	}, cache, logger.WithComponent("http"))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
