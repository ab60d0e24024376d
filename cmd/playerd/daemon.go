// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/ManuGH/gstplayer/internal/admin"
	"github.com/ManuGH/gstplayer/internal/config"
	"github.com/ManuGH/gstplayer/internal/drm/cdm"
	loopcdm "github.com/ManuGH/gstplayer/internal/drm/cdm/loopback"
	"github.com/ManuGH/gstplayer/internal/drm/license"
	"github.com/ManuGH/gstplayer/internal/drm/model"
	"github.com/ManuGH/gstplayer/internal/drm/session"
	"github.com/ManuGH/gstplayer/internal/health"
	xglog "github.com/ManuGH/gstplayer/internal/log"
	"github.com/ManuGH/gstplayer/internal/pipeline"
	"github.com/ManuGH/gstplayer/internal/pipeline/graph/loopback"
	"github.com/ManuGH/gstplayer/internal/ratelimit"
	"github.com/ManuGH/gstplayer/internal/resilience"
	"github.com/ManuGH/gstplayer/internal/soc"
	"github.com/ManuGH/gstplayer/internal/subtitle"
	"github.com/ManuGH/gstplayer/internal/telemetry"
)

type options struct {
	tracks         []pipeline.StreamFormat
	contentURI     string
	subtitleSocket string
	// cdms overrides the loopback CDM set.
	cdms cdm.Provider
}

type daemon struct {
	logger    zerolog.Logger
	telemetry *telemetry.Provider
	breaker   *resilience.CircuitBreaker
	drm       *session.Manager
	control   *pipeline.Control
	subConn   io.Closer
	handler   http.Handler
	server    *http.Server
}

func newDaemon(ctx context.Context, cfg config.AppConfig, opts options) (d *daemon, err error) {
	d = &daemon{logger: xglog.WithComponent("daemon")}
	defer func() {
		if err != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = d.shutdown(shutdownCtx)
		}
	}()

	cdms := opts.cdms
	if cdms == nil {
		cdms = loopcdm.NewProvider()
	}
	if err := health.PerformStartupChecks(ctx, cfg, cdms); err != nil {
		return d, err
	}

	if d.telemetry, err = telemetry.NewProvider(ctx, cfg.Telemetry.Provider(version)); err != nil {
		return d, fmt.Errorf("telemetry: %w", err)
	}

	limits := ratelimit.DefaultConfig()
	if cfg.DRM.LicenseRateLimit > 0 {
		limits.GlobalRate = rate.Limit(cfg.DRM.LicenseRateLimit)
	}
	if cfg.DRM.LicenseBurst > 0 {
		limits.GlobalBurst = cfg.DRM.LicenseBurst
	}
	d.breaker = resilience.NewCircuitBreaker("license", cfg.DRM.BreakerThreshold, cfg.DRM.BreakerReset)
	client := license.NewClient(cfg.DRM.LicenseTimeout,
		license.WithLimiter(ratelimit.New(limits)),
		license.WithBreaker(d.breaker),
	)

	platform := soc.NewStatic(cfg.SoC)
	d.drm, err = session.New(cfg.DRM.MaxSessions, cdms,
		session.WithFetcher(client),
		session.WithRetryWindow(cfg.DRM.FailedKeyRetryWindow),
		session.WithLicenseServerURL(cfg.DRM.LicenseServerURL),
		session.WithLicenseTimeout(cfg.DRM.LicenseTimeout),
		session.WithDRMConfig(cfg.DRM.Flags()),
		session.WithOutputProtection(platform),
	)
	if err != nil {
		return d, fmt.Errorf("drm session manager: %w", err)
	}

	popts := []pipeline.Option{
		pipeline.WithBackend(loopback.New()),
		pipeline.WithDRM(d.drm),
		pipeline.WithSoC(platform),
		pipeline.WithEvents(logEvents{logger: xglog.WithComponent("player")}),
	}
	if opts.subtitleSocket != "" {
		conn, err := net.Dial("unix", opts.subtitleSocket)
		if err != nil {
			return d, fmt.Errorf("subtitle socket: %w", err)
		}
		d.subConn = conn
		popts = append(popts, pipeline.WithSubtitles(subtitle.NewChannel(conn)))
	}
	if d.control, err = pipeline.New(pipeline.ConfigFrom(cfg), popts...); err != nil {
		return d, fmt.Errorf("pipeline: %w", err)
	}
	d.control.SetContentURI(opts.contentURI)
	if err := d.control.CreatePipeline(ctx); err != nil {
		return d, fmt.Errorf("create pipeline: %w", err)
	}
	if len(opts.tracks) > 0 {
		if err := d.control.ConfigurePipeline(ctx, opts.tracks, false); err != nil {
			return d, fmt.Errorf("configure pipeline: %w", err)
		}
	}

	hm := health.NewManager(version)
	hm.RegisterChecker(health.NewDrmChecker(d.drm))
	hm.RegisterChecker(health.NewBreakerChecker("license_breaker", d.breaker))
	hm.RegisterChecker(health.NewPipelineChecker(d.control))

	acfg := admin.Config{RateLimit: cfg.Admin.RateLimit}
	if cfg.Telemetry.Enabled {
		acfg.ServiceName = cfg.Telemetry.ServiceName
	}
	d.handler = admin.NewRouter(acfg, admin.Deps{
		Health:   hm,
		Metrics:  promhttp.Handler(),
		Drm:      d.drm,
		Pipeline: d.control,
	})
	if cfg.Admin.Listen != "" {
		d.server = &http.Server{
			Addr:              cfg.Admin.Listen,
			Handler:           d.handler,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	d.logger.Info().
		Str(xglog.FieldEvent, "daemon.ready").
		Str(xglog.FieldPipelineID, d.control.ID().String()).
		Int("max_sessions", cfg.DRM.MaxSessions).
		Int("tracks", len(opts.tracks)).
		Msg("daemon ready")
	return d, nil
}

// applyConfig pushes reloadable settings into running components.
func (d *daemon) applyConfig(cfg config.AppConfig) {
	xglog.Reconfigure(xglog.Config{Level: cfg.LogLevel, Service: cfg.LogService, Version: cfg.Version})
	f := cfg.DRM.Flags()
	d.drm.UpdateDRMConfig(f.UseSecManager, f.EnablePROutputProtection, f.PropagateURIParam, f.IsFakeTune, f.WideVineKIDWorkaround)
	d.drm.SetSessionLicenseURL(cfg.DRM.LicenseServerURL)
	if err := d.drm.UpdateMaxDRMSessions(cfg.DRM.MaxSessions); err != nil {
		d.logger.Warn().Err(err).Str(xglog.FieldEvent, "config.apply_failed").Msg("max sessions not changed")
	}
	d.logger.Info().Str(xglog.FieldEvent, "config.applied").Msg("reloaded configuration applied")
}

// shutdown stops every component that was started, in reverse order.
func (d *daemon) shutdown(ctx context.Context) error {
	var errs []error
	if d.server != nil {
		if err := d.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("admin server: %w", err))
		}
	}
	if d.control != nil {
		if err := d.control.DestroyPipeline(ctx); err != nil {
			errs = append(errs, fmt.Errorf("pipeline: %w", err))
		}
	}
	if d.drm != nil {
		if err := d.drm.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("drm: %w", err))
		}
	}
	if d.subConn != nil {
		_ = d.subConn.Close()
	}
	if d.telemetry != nil {
		if err := d.telemetry.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("telemetry: %w", err))
		}
	}
	return errors.Join(errs...)
}

// parseStreams reads "media:codec[:protected]" entries separated by commas.
func parseStreams(s string) ([]pipeline.StreamFormat, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var out []pipeline.StreamFormat
	for _, entry := range strings.Split(s, ",") {
		parts := strings.Split(strings.TrimSpace(entry), ":")
		if len(parts) < 2 || len(parts) > 3 {
			return nil, fmt.Errorf("stream %q: want media:codec[:protected]", entry)
		}
		media, ok := mediaByName[strings.ToLower(parts[0])]
		if !ok {
			return nil, fmt.Errorf("stream %q: unknown media %q", entry, parts[0])
		}
		f := pipeline.StreamFormat{Media: media, Codec: parts[1]}
		if len(parts) == 3 {
			if parts[2] != "protected" {
				return nil, fmt.Errorf("stream %q: unknown flag %q", entry, parts[2])
			}
			f.Protected = true
		}
		out = append(out, f)
	}
	return out, nil
}

var mediaByName = func() map[string]model.StreamType {
	m := make(map[string]model.StreamType, len(model.AllStreamTypes))
	for _, t := range model.AllStreamTypes {
		m[t.String()] = t
	}
	return m
}()
