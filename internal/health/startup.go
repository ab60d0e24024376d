// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package health

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/ManuGH/gstplayer/internal/config"
	"github.com/ManuGH/gstplayer/internal/drm/cdm"
	"github.com/ManuGH/gstplayer/internal/drm/model"
	"github.com/ManuGH/gstplayer/internal/log"
	"github.com/rs/zerolog"
)

// PerformStartupChecks validates configuration and CDM availability before
// the daemon starts accepting pipelines. provider may be nil when no CDM is
// linked in; DRM checks are then skipped with a warning.
func PerformStartupChecks(ctx context.Context, cfg config.AppConfig, provider cdm.Provider) error {
	logger := log.WithComponent("startup-check")
	logger.Info().Msg("running pre-flight startup checks")

	if err := checkAdminListen(logger, cfg.Admin.Listen); err != nil {
		return fmt.Errorf("admin listen check failed: %w", err)
	}
	if err := checkLicenseServer(logger, cfg.DRM.LicenseServerURL); err != nil {
		return fmt.Errorf("license server check failed: %w", err)
	}
	if err := checkKeySystems(ctx, logger, cfg.DRM, provider); err != nil {
		return fmt.Errorf("key system check failed: %w", err)
	}

	if cfg.DRM.IsFakeTune {
		logger.Warn().Msg("fake tune enabled; license acquisition is skipped")
	}
	if cfg.DRM.MaxSessions == 0 {
		logger.Warn().Msg("drm.maxSessions is 0; protected content will not play")
	}

	logger.Info().Msg("all startup checks passed")
	return nil
}

func checkAdminListen(logger zerolog.Logger, addr string) error {
	if addr == "" {
		logger.Info().Msg("admin listener disabled")
		return nil
	}
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid admin listen address %q: %w", addr, err)
	}
	portNum, err := strconv.Atoi(port)
	if err != nil || portNum < 0 || portNum > 65535 {
		return fmt.Errorf("invalid admin listen port %q in %q", port, addr)
	}
	logger.Info().Str("addr", addr).Msg("admin listen address is valid")
	return nil
}

func checkLicenseServer(logger zerolog.Logger, raw string) error {
	if raw == "" {
		logger.Warn().Msg("no default license server URL; relying on CDM or callback supplied URLs")
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid license server URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("license server scheme must be http or https, got: %s", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("license server URL has no host")
	}
	logger.Info().Str("host", u.Host).Msg("license server URL is valid")
	return nil
}

func checkKeySystems(_ context.Context, logger zerolog.Logger, cfg config.DRMConfig, provider cdm.Provider) error {
	if provider == nil {
		logger.Warn().Msg("no CDM provider linked; protected content will fail")
		return nil
	}
	for _, name := range cfg.PreferredSystems {
		sys, ok := model.ParseDrmSystem(name)
		if !ok {
			return fmt.Errorf("unknown DRM system %q", name)
		}
		if _, err := provider.System(sys.KeySystem()); err != nil {
			return fmt.Errorf("preferred DRM system %s unavailable: %w", sys, err)
		}
		logger.Info().Str(log.FieldDrmSystem, string(sys)).Msg("CDM available")
	}
	return nil
}
