// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/gstplayer/internal/log"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "GSTPLAYER_"

// ParseString reads a string from environment variable or returns default value.
// It logs the source (environment or default) for observability.
func ParseString(key, defaultValue string) string {
	return parseStringWithLogger(log.WithComponent("config"), key, defaultValue)
}

func parseStringWithLogger(logger zerolog.Logger, key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		lowerKey := strings.ToLower(key)
		switch {
		case strings.Contains(lowerKey, "token") || strings.Contains(lowerKey, "password"):
			logger.Debug().
				Str("key", key).
				Str("source", "environment").
				Bool("sensitive", true).
				Msg("using environment variable")
		case value == "":
			logger.Debug().
				Str("key", key).
				Str("default", defaultValue).
				Str("source", "default").
				Msg("using default value (environment variable is empty)")
			return defaultValue
		default:
			logger.Debug().
				Str("key", key).
				Str("value", value).
				Str("source", "environment").
				Msg("using environment variable")
		}
		return value
	}
	return defaultValue
}

// ParseInt reads an integer from environment variable or returns default value.
// It falls back to default on parse errors.
func ParseInt(key string, defaultValue int) int {
	logger := log.WithComponent("config")
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		logger.Warn().
			Str("key", key).
			Str("value", v).
			Int("default", defaultValue).
			Msg("invalid integer in environment variable, using default")
		return defaultValue
	}
	logger.Debug().
		Str("key", key).
		Int("value", i).
		Str("source", "environment").
		Msg("using environment variable")
	return i
}

// ParseDuration reads a duration in Go duration format (e.g. "5s").
// It falls back to default on parse errors or empty variables.
func ParseDuration(key string, defaultValue time.Duration) time.Duration {
	logger := log.WithComponent("config")
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		logger.Warn().
			Str("key", key).
			Str("value", v).
			Dur("default", defaultValue).
			Msg("invalid duration in environment variable, using default")
		return defaultValue
	}
	logger.Debug().
		Str("key", key).
		Dur("value", d).
		Str("source", "environment").
		Msg("using environment variable")
	return d
}

// ParseBool reads a boolean from environment variable or returns default value.
// It accepts "true", "false", "1", "0", "yes", "no" (case-insensitive).
func ParseBool(key string, defaultValue bool) bool {
	logger := log.WithComponent("config")
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return defaultValue
	}
	switch strings.ToLower(v) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		logger.Warn().
			Str("key", key).
			Str("value", v).
			Bool("default", defaultValue).
			Msg("invalid boolean in environment variable, using default")
		return defaultValue
	}
}

// ParseFloat reads a float64 from environment variable or returns default value.
func ParseFloat(key string, defaultValue float64) float64 {
	logger := log.WithComponent("config")
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		logger.Warn().
			Str("key", key).
			Str("value", v).
			Float64("default", defaultValue).
			Msg("invalid float in environment variable, using default")
		return defaultValue
	}
	return f
}

// mergeEnvConfig applies GSTPLAYER_* overrides on top of cfg.
func (l *Loader) mergeEnvConfig(cfg *AppConfig) {
	cfg.LogLevel = l.envString("LOG_LEVEL", cfg.LogLevel)
	cfg.LogService = l.envString("LOG_SERVICE", cfg.LogService)

	d := &cfg.DRM
	d.MaxSessions = l.envInt("DRM_MAX_SESSIONS", d.MaxSessions)
	d.UseSecManager = l.envBool("DRM_USE_SEC_MANAGER", d.UseSecManager)
	d.EnablePROutputProtection = l.envBool("DRM_PR_OUTPUT_PROTECTION", d.EnablePROutputProtection)
	d.PropagateURIParam = l.envBool("DRM_PROPAGATE_URI_PARAM", d.PropagateURIParam)
	d.IsFakeTune = l.envBool("DRM_FAKE_TUNE", d.IsFakeTune)
	d.WideVineKIDWorkaround = l.envBool("DRM_WIDEVINE_KID_WORKAROUND", d.WideVineKIDWorkaround)
	d.LicenseServerURL = l.envString("DRM_LICENSE_SERVER_URL", d.LicenseServerURL)
	d.LicenseTimeout = l.envDuration("DRM_LICENSE_TIMEOUT", d.LicenseTimeout)
	d.LicenseRateLimit = l.envFloat("DRM_LICENSE_RATE_LIMIT", d.LicenseRateLimit)
	d.LicenseBurst = l.envInt("DRM_LICENSE_BURST", d.LicenseBurst)
	d.FailedKeyRetryWindow = l.envDuration("DRM_FAILED_KEY_RETRY_WINDOW", d.FailedKeyRetryWindow)
	d.BreakerThreshold = l.envInt("DRM_BREAKER_THRESHOLD", d.BreakerThreshold)
	d.BreakerReset = l.envDuration("DRM_BREAKER_RESET", d.BreakerReset)
	if v, ok := l.envLookup("DRM_PREFERRED_SYSTEMS"); ok && v != "" {
		d.PreferredSystems = splitCSV(v)
	}

	p := &cfg.Pipeline
	p.GateDrainTimeout = l.envDuration("PIPELINE_GATE_DRAIN_TIMEOUT", p.GateDrainTimeout)
	p.TaskWorkers = l.envInt("PIPELINE_TASK_WORKERS", p.TaskWorkers)
	p.BusBuffer = l.envInt("PIPELINE_BUS_BUFFER", p.BusBuffer)
	p.PositionInterval = l.envDuration("PIPELINE_POSITION_INTERVAL", p.PositionInterval)

	s := &cfg.SoC
	s.Platform = l.envString("SOC_PLATFORM", s.Platform)
	s.UseAppSrcForProgressive = l.envBool("SOC_APPSRC_PROGRESSIVE", s.UseAppSrcForProgressive)
	s.SupportsAC4 = l.envBool("SOC_AC4", s.SupportsAC4)
	s.RequiredQueuedFrames = l.envInt("SOC_QUEUED_FRAMES", s.RequiredQueuedFrames)
	s.HasSecureVideoPath = l.envBool("SOC_SECURE_VIDEO_PATH", s.HasSecureVideoPath)
	s.SupportsHDCP22 = l.envBool("SOC_HDCP22", s.SupportsHDCP22)
	s.AudioSinkName = l.envString("SOC_AUDIO_SINK", s.AudioSinkName)

	t := &cfg.Telemetry
	t.Enabled = l.envBool("TELEMETRY_ENABLED", t.Enabled)
	t.ServiceName = l.envString("TELEMETRY_SERVICE_NAME", t.ServiceName)
	t.ExporterType = l.envString("TELEMETRY_EXPORTER", t.ExporterType)
	t.Endpoint = l.envString("TELEMETRY_ENDPOINT", t.Endpoint)
	t.SamplingRate = l.envFloat("TELEMETRY_SAMPLING_RATE", t.SamplingRate)

	cfg.Admin.Listen = l.envString("ADMIN_LISTEN", cfg.Admin.Listen)
	cfg.Admin.RateLimit = l.envInt("ADMIN_RATE_LIMIT", cfg.Admin.RateLimit)
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
