package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	sdnotify "github.com/coreos/go-systemd/v22/daemon"

	"github.com/lodestar-sh/lodestar/internal/buildinfo"
	"github.com/lodestar-sh/lodestar/pkg/collect"
	"github.com/lodestar-sh/lodestar/pkg/config"
	"github.com/lodestar-sh/lodestar/pkg/daemon"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "version" {
		fmt.Printf("lodestard %s (%s) built %s\n", buildinfo.Version, buildinfo.Commit, buildinfo.Date)
		return
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down")
		sdnotify.SdNotify(false, sdnotify.SdNotifyStopping)
		cancel()
	}()

	configPath := "lodestar.yaml"
	if len(os.Args) > 2 && os.Args[1] == "--config" {
		configPath = os.Args[2]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Error("config load failed", "path", configPath, "err", err)
			os.Exit(1)
		}
		logger.Info("no config file, using defaults", "path", configPath)
		cfg = config.Default()
	}
	if errs := config.Validate(cfg); len(errs) > 0 {
		for _, e := range errs {
			logger.Error("config validation", "err", e)
		}
		os.Exit(1)
	}

	d := daemon.New(cfg, logger)
	defer d.Shutdown()

	if cfg.Host.Enabled {
		collector := collect.NewHost(cfg.Host.Interval.Std(), d.Ingest, logger)
		go collector.Run(ctx)
	}

	// Tell systemd we are up once the socket is about to serve.
	go func() {
		if ok, err := sdnotify.SdNotify(false, sdnotify.SdNotifyReady); err != nil {
			logger.Warn("sd_notify failed", "err", err)
		} else if ok {
			logger.Debug("sd_notify ready sent")
		}
	}()

	logger.Info("starting lodestard", "version", buildinfo.Version, "sources", len(cfg.Sources))
	if err := d.Run(ctx); err != nil {
		logger.Error("daemon error", "err", err)
		os.Exit(1)
	}
}
