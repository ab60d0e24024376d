// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Command playerd runs the pipeline controller and DRM session coordinator
// over the loopback graph backend, with the admin HTTP surface in front.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ManuGH/gstplayer/internal/config"
	xglog "github.com/ManuGH/gstplayer/internal/log"
)

var (
	version   = "v0.1.0"
	commit    = "none"
	buildDate = "unknown"
)

const shutdownTimeout = 10 * time.Second

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	streams := flag.String("streams", "", "tracks to configure at startup, e.g. video:h264,audio:aac")
	contentURI := flag.String("content", "", "content URI passed with license requests")
	subtitleSocket := flag.String("subtitle-socket", "", "unix socket of the subtitle renderer")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	xglog.Configure(xglog.Config{Level: "info", Service: "gstplayer", Version: version})
	logger := xglog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loader := config.NewLoader(strings.TrimSpace(*configPath), version)
	cfg, err := loader.Load()
	if err != nil {
		logger.Fatal().Err(err).Str(xglog.FieldEvent, "config.load_failed").Str("config_path", *configPath).Msg("failed to load configuration")
	}
	xglog.Reconfigure(xglog.Config{Level: cfg.LogLevel, Service: cfg.LogService, Version: cfg.Version})

	tracks, err := parseStreams(*streams)
	if err != nil {
		logger.Fatal().Err(err).Str(xglog.FieldEvent, "flags.invalid").Msg("invalid -streams")
	}

	d, err := newDaemon(ctx, cfg, options{
		tracks:         tracks,
		contentURI:     *contentURI,
		subtitleSocket: *subtitleSocket,
	})
	if err != nil {
		logger.Fatal().Err(err).Str(xglog.FieldEvent, "startup.failed").Msg("daemon startup failed")
	}

	holder := config.NewConfigHolder(cfg, loader)
	reloads := make(chan config.AppConfig, 1)
	holder.RegisterListener(reloads)
	if err := holder.StartWatcher(ctx); err != nil {
		logger.Warn().Err(err).Str(xglog.FieldEvent, "config.watcher_failed").Msg("config hot reload disabled")
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case next := <-reloads:
				d.applyConfig(next)
			}
		}
	}()

	errCh := make(chan error, 1)
	if d.server != nil {
		go func() {
			logger.Info().Str(xglog.FieldEvent, "admin.listen").Str("addr", cfg.Admin.Listen).Msg("admin server listening")
			if err := d.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info().Str(xglog.FieldEvent, "daemon.signal").Msg("shutdown requested")
	case err := <-errCh:
		logger.Error().Err(err).Str(xglog.FieldEvent, "admin.failed").Msg("admin server failed")
	}

	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	holder.Wait()
	if err := d.shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Str(xglog.FieldEvent, "daemon.shutdown_failed").Msg("shutdown incomplete")
		os.Exit(1)
	}
	logger.Info().Str(xglog.FieldEvent, "daemon.stopped").Msg("daemon stopped")
}
