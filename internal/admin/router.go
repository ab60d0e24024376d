// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package admin serves the daemon's operator surface: metrics, liveness and
// readiness, plus read-only views of the DRM coordinator and the pipeline.
package admin

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/ManuGH/gstplayer/internal/drm/session"
	"github.com/ManuGH/gstplayer/internal/health"
	xglog "github.com/ManuGH/gstplayer/internal/log"
	"github.com/ManuGH/gstplayer/internal/pipeline"
	"github.com/ManuGH/gstplayer/internal/pipeline/fsm"
)

// DrmSource exposes the coordinator snapshot.
type DrmSource interface {
	Snapshot() session.Snapshot
}

// PipelineSource is the read side of a pipeline controller.
type PipelineSource interface {
	ID() uuid.UUID
	State() fsm.State
	Position() time.Duration
	Streams() []pipeline.StreamStatus
}

// Config configures the router.
type Config struct {
	// RateLimit is requests per minute per client IP; 0 disables limiting.
	RateLimit int
	// ServiceName names server spans; empty disables tracing.
	ServiceName string
}

// Deps are the handlers' collaborators. Nil sources leave their routes unmounted.
type Deps struct {
	Health   *health.Manager
	Metrics  http.Handler
	Drm      DrmSource
	Pipeline PipelineSource
}

// PipelineView is the JSON body of GET /debug/pipeline.
type PipelineView struct {
	ID       string                  `json:"id"`
	State    string                  `json:"state"`
	Position string                  `json:"position"`
	Streams  []pipeline.StreamStatus `json:"streams"`
}

// NewRouter builds the admin handler.
func NewRouter(cfg Config, deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(accessLog)
	if cfg.RateLimit > 0 {
		r.Use(rateLimit(cfg.RateLimit, time.Minute))
	}

	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}
	if deps.Health != nil {
		r.Get("/healthz", deps.Health.ServeHealth)
		r.Get("/readyz", deps.Health.ServeReady)
	}
	r.Route("/debug", func(r chi.Router) {
		if deps.Drm != nil {
			r.Get("/drm", func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, deps.Drm.Snapshot())
			})
		}
		if deps.Pipeline != nil {
			r.Get("/pipeline", func(w http.ResponseWriter, _ *http.Request) {
				p := deps.Pipeline
				writeJSON(w, PipelineView{
					ID:       p.ID().String(),
					State:    string(p.State()),
					Position: p.Position().String(),
					Streams:  p.Streams(),
				})
			})
		}
	})

	var h http.Handler = r
	if cfg.ServiceName != "" {
		h = tracing(cfg.ServiceName)(h)
	}
	return h
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger := xglog.WithComponent("admin")
		logger.Warn().Err(err).Str(xglog.FieldEvent, "admin.encode_failed").Msg("response encode failed")
	}
}

var _ PipelineSource = (*pipeline.Control)(nil)
