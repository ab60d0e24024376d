// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"fmt"

	"github.com/ManuGH/gstplayer/internal/drm/model"
	"github.com/ManuGH/gstplayer/internal/validate"
)

// Validate reports every invalid field of cfg in a single error.
func Validate(cfg AppConfig) error {
	v := validate.New()

	v.LogLevel("logLevel", cfg.LogLevel)

	d := cfg.DRM
	validate.Range(v, "drm.maxSessions", d.MaxSessions, 0, model.MaxSessionsLimit)
	if d.LicenseServerURL != "" {
		v.URL("drm.licenseServerURL", d.LicenseServerURL, []string{"http", "https"})
	}
	validate.Positive(v, "drm.licenseTimeout", d.LicenseTimeout)
	validate.Min(v, "drm.licenseRateLimit", d.LicenseRateLimit, 0)
	validate.Min(v, "drm.licenseBurst", d.LicenseBurst, 0)
	validate.Min(v, "drm.failedKeyRetryWindow", d.FailedKeyRetryWindow, 0)
	validate.Positive(v, "drm.breakerThreshold", d.BreakerThreshold)
	validate.Positive(v, "drm.breakerReset", d.BreakerReset)
	for _, s := range d.PreferredSystems {
		if _, ok := model.ParseDrmSystem(s); !ok {
			v.AddError("drm.preferredSystems", fmt.Sprintf("unknown drm system %q", s), s)
		}
	}

	p := cfg.Pipeline
	validate.Positive(v, "pipeline.gateDrainTimeout", p.GateDrainTimeout)
	validate.Range(v, "pipeline.taskWorkers", p.TaskWorkers, 1, 64)
	validate.Positive(v, "pipeline.busBuffer", p.BusBuffer)
	validate.Positive(v, "pipeline.positionInterval", p.PositionInterval)

	validate.Min(v, "soc.requiredQueuedFrames", cfg.SoC.RequiredQueuedFrames, 0)

	if cfg.Telemetry.Enabled {
		v.OneOf("telemetry.exporterType", cfg.Telemetry.ExporterType, []string{"grpc", "http"})
		v.NotEmpty("telemetry.endpoint", cfg.Telemetry.Endpoint)
		validate.Range(v, "telemetry.samplingRate", cfg.Telemetry.SamplingRate, 0, 1)
	}

	if cfg.Admin.Listen != "" {
		v.HostPort("admin.listen", cfg.Admin.Listen)
	}
	validate.Min(v, "admin.rateLimit", cfg.Admin.RateLimit, 0)

	return v.Err()
}
