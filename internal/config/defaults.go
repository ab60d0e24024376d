// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import "time"

// Defaults returns the configuration used when neither file nor ENV set a key.
func Defaults() AppConfig {
	return AppConfig{
		LogLevel:   "info",
		LogService: "gstplayer",
		DRM: DRMConfig{
			MaxSessions:          5,
			LicenseTimeout:       10 * time.Second,
			LicenseRateLimit:     10,
			LicenseBurst:         20,
			FailedKeyRetryWindow: 0,
			BreakerThreshold:     5,
			BreakerReset:         30 * time.Second,
		},
		Pipeline: PipelineConfig{
			GateDrainTimeout: time.Second,
			TaskWorkers:      4,
			BusBuffer:        64,
			PositionInterval: 250 * time.Millisecond,
		},
		SoC: SoCConfig{
			Platform:             "generic",
			RequiredQueuedFrames: 3,
			AudioSinkName:        "autoaudiosink",
		},
		Telemetry: TelemetryConfig{
			ServiceName:  "gstplayer",
			ExporterType: "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
		},
		Admin: AdminConfig{
			Listen:    "127.0.0.1:9464",
			RateLimit: 120,
		},
	}
}
