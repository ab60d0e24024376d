// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"time"

	"github.com/ManuGH/gstplayer/internal/drm/model"
	"github.com/ManuGH/gstplayer/internal/telemetry"
)

// AppConfig is the fully resolved daemon configuration.
type AppConfig struct {
	Version    string          `yaml:"-"`
	LogLevel   string          `yaml:"logLevel"`
	LogService string          `yaml:"logService"`
	DRM        DRMConfig       `yaml:"drm"`
	Pipeline   PipelineConfig  `yaml:"pipeline"`
	SoC        SoCConfig       `yaml:"soc"`
	Telemetry  TelemetryConfig `yaml:"telemetry"`
	Admin      AdminConfig     `yaml:"admin"`
}

// DRMConfig configures the session coordinator and its license transport.
type DRMConfig struct {
	MaxSessions              int           `yaml:"maxSessions"`
	UseSecManager            bool          `yaml:"useSecManager"`
	EnablePROutputProtection bool          `yaml:"enablePROutputProtection"`
	PropagateURIParam        bool          `yaml:"propagateURIParam"`
	IsFakeTune               bool          `yaml:"isFakeTune"`
	WideVineKIDWorkaround    bool          `yaml:"wideVineKIDWorkaround"`
	LicenseServerURL         string        `yaml:"licenseServerURL"`
	LicenseTimeout           time.Duration `yaml:"licenseTimeout"`
	LicenseRateLimit         float64       `yaml:"licenseRateLimit"`
	LicenseBurst             int           `yaml:"licenseBurst"`
	FailedKeyRetryWindow     time.Duration `yaml:"failedKeyRetryWindow"`
	BreakerThreshold         int           `yaml:"breakerThreshold"`
	BreakerReset             time.Duration `yaml:"breakerReset"`
	// PreferredSystems orders DRM systems when init data carries several.
	PreferredSystems []string `yaml:"preferredSystems,omitempty"`
}

// Flags returns the coordinator flag set.
func (c DRMConfig) Flags() model.DRMConfig {
	return model.DRMConfig{
		UseSecManager:            c.UseSecManager,
		EnablePROutputProtection: c.EnablePROutputProtection,
		PropagateURIParam:        c.PropagateURIParam,
		IsFakeTune:               c.IsFakeTune,
		WideVineKIDWorkaround:    c.WideVineKIDWorkaround,
	}
}

// PipelineConfig configures pipeline control.
type PipelineConfig struct {
	GateDrainTimeout time.Duration `yaml:"gateDrainTimeout"`
	TaskWorkers      int           `yaml:"taskWorkers"`
	BusBuffer        int           `yaml:"busBuffer"`
	PositionInterval time.Duration `yaml:"positionInterval"`
}

// SoCConfig overrides platform capability answers.
type SoCConfig struct {
	Platform                string `yaml:"platform"`
	UseAppSrcForProgressive bool   `yaml:"useAppSrcForProgressive"`
	SupportsAC4             bool   `yaml:"supportsAC4"`
	RequiredQueuedFrames    int    `yaml:"requiredQueuedFrames"`
	HasSecureVideoPath      bool   `yaml:"hasSecureVideoPath"`
	SupportsHDCP22          bool   `yaml:"supportsHDCP22"`
	AudioSinkName           string `yaml:"audioSinkName"`
}

// TelemetryConfig configures OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	ServiceName  string  `yaml:"serviceName"`
	ExporterType string  `yaml:"exporterType"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"samplingRate"`
}

// Provider returns the telemetry package configuration.
func (c TelemetryConfig) Provider(version string) telemetry.Config {
	return telemetry.Config{
		Enabled:        c.Enabled,
		ServiceName:    c.ServiceName,
		ServiceVersion: version,
		ExporterType:   c.ExporterType,
		Endpoint:       c.Endpoint,
		SamplingRate:   c.SamplingRate,
	}
}

// AdminConfig configures the admin HTTP surface.
type AdminConfig struct {
	Listen string `yaml:"listen"`
	// RateLimit is requests per minute per client IP; 0 disables limiting.
	RateLimit int `yaml:"rateLimit"`
}
