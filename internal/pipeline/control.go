// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package pipeline owns one playback pipeline: its element graph, per-track
// stream state, bus handlers, deferred tasks and timers. Every asynchronous
// entry point runs inside a gate scope so DestroyPipeline can stop admitting
// callbacks and wait for in-flight ones before the graph is released.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ManuGH/gstplayer/internal/config"
	"github.com/ManuGH/gstplayer/internal/drm/helper"
	"github.com/ManuGH/gstplayer/internal/drm/model"
	"github.com/ManuGH/gstplayer/internal/drm/session"
	"github.com/ManuGH/gstplayer/internal/gate"
	xglog "github.com/ManuGH/gstplayer/internal/log"
	"github.com/ManuGH/gstplayer/internal/pipeline/bus"
	"github.com/ManuGH/gstplayer/internal/pipeline/decoder"
	"github.com/ManuGH/gstplayer/internal/pipeline/fsm"
	"github.com/ManuGH/gstplayer/internal/pipeline/graph"
	"github.com/ManuGH/gstplayer/internal/pipeline/taskpool"
	"github.com/ManuGH/gstplayer/internal/soc"
	"github.com/ManuGH/gstplayer/internal/subtitle"
)

// Config tunes one Control.
type Config struct {
	GateDrainTimeout time.Duration
	TaskWorkers      int
	BusBuffer        int
	PositionInterval time.Duration
	PreferredSystems []model.DrmSystem
}

// ConfigFrom extracts the pipeline settings from the application config.
// Unknown DRM system names are skipped; validation rejects them earlier.
func ConfigFrom(cfg config.AppConfig) Config {
	out := Config{
		GateDrainTimeout: cfg.Pipeline.GateDrainTimeout,
		TaskWorkers:      cfg.Pipeline.TaskWorkers,
		BusBuffer:        cfg.Pipeline.BusBuffer,
		PositionInterval: cfg.Pipeline.PositionInterval,
	}
	for _, name := range cfg.DRM.PreferredSystems {
		if sys, ok := model.ParseDrmSystem(name); ok {
			out.PreferredSystems = append(out.PreferredSystems, sys)
		}
	}
	return out
}

func (c *Config) applyDefaults() {
	if c.GateDrainTimeout <= 0 {
		c.GateDrainTimeout = time.Second
	}
	if c.TaskWorkers <= 0 {
		c.TaskWorkers = 4
	}
	if c.BusBuffer <= 0 {
		c.BusBuffer = bus.DefaultBuffer
	}
	if c.PositionInterval <= 0 {
		c.PositionInterval = 250 * time.Millisecond
	}
}

// DrmCoordinator is the slice of the session manager the pipeline drives.
type DrmCoordinator interface {
	NewHelper(initData []byte, preference ...model.DrmSystem) (helper.Helper, error)
	CreateDrmSession(ctx context.Context, h helper.Helper, cb helper.Callbacks, stream model.StreamType, md *session.MetaDataEvent, opts ...session.CreateOption) (*session.Handle, error)
	ProcessProtectionUpdate(ctx context.Context, stream model.StreamType, initData []byte) (model.KeyState, error)
}

var _ DrmCoordinator = (*session.Manager)(nil)

// Option configures a Control.
type Option func(*Control)

func WithBackend(b graph.Backend) Option   { return func(c *Control) { c.backend = b } }
func WithDRM(d DrmCoordinator) Option      { return func(c *Control) { c.drm = d } }
func WithSoC(s soc.Capabilities) Option    { return func(c *Control) { c.soc = s } }
func WithSubtitles(s subtitle.Sink) Option { return func(c *Control) { c.subs = s } }
func WithEvents(e Events) Option           { return func(c *Control) { c.events = e } }
func WithDecoders(t *decoder.Table) Option { return func(c *Control) { c.decoders = t } }
func WithID(id uuid.UUID) Option           { return func(c *Control) { c.id = id } }

type gates struct {
	appsrc   *gate.Gate
	busSync  *gate.Gate
	busWatch *gate.Gate
	idle     *gate.Gate
	probe    *gate.Gate
	timer    *gate.Gate
}

func (g gates) all() []*gate.Gate {
	return []*gate.Gate{g.appsrc, g.busSync, g.busWatch, g.idle, g.probe, g.timer}
}

// Control is the pipeline controller. Create, Configure, Play, Pause, Flush
// and Destroy are serialized; buffer injection may run concurrently with them.
type Control struct {
	id       uuid.UUID
	cfg      Config
	backend  graph.Backend
	drm      DrmCoordinator
	soc      soc.Capabilities
	subs     subtitle.Sink
	events   Events
	decoders *decoder.Table
	logger   zerolog.Logger
	gates    gates

	opMu sync.Mutex

	mu         sync.Mutex
	created    bool
	bus        *bus.Pipeline
	pool       *taskpool.Pool
	graph      graph.Graph
	machine    *fsm.Machine[fsm.State, fsm.Event]
	streams    map[model.StreamType]*stream
	rate       float64
	busState   fsm.State
	lastErr    error
	contentURI string
	videoMuted bool
	timerStop  chan struct{}
	timerDone  chan struct{}
}

// New returns a controller. A graph backend is required; SoC answers default
// to a generic platform and decoders to the stock table with the platform's
// overrides.
func New(cfg Config, opts ...Option) (*Control, error) {
	cfg.applyDefaults()
	c := &Control{cfg: cfg, events: NopEvents{}, rate: 1, busState: fsm.StateNull}
	for _, opt := range opts {
		opt(c)
	}
	if c.backend == nil {
		return nil, ErrNoBackend
	}
	if c.id == uuid.Nil {
		c.id = uuid.New()
	}
	if c.soc == nil {
		c.soc = soc.NewStatic(config.SoCConfig{})
	}
	if c.decoders == nil {
		t, err := decoder.Default(c.soc.DecoderOverrides())
		if err != nil {
			return nil, fmt.Errorf("decoder table: %w", err)
		}
		c.decoders = t
	}
	c.logger = xglog.WithComponent("pipeline").With().Str(xglog.FieldPipelineID, c.id.String()).Logger()
	c.gates = gates{
		appsrc:   gate.New("appsrc"),
		busSync:  gate.New("bus_sync"),
		busWatch: gate.New("bus_watch"),
		idle:     gate.New("idle"),
		probe:    gate.New("pad_probe"),
		timer:    gate.New("position_timer"),
	}
	return c, nil
}

func (c *Control) ID() uuid.UUID { return c.id }

// SetContentURI sets the URI passed to license requests for this pipeline's sessions.
func (c *Control) SetContentURI(uri string) {
	c.mu.Lock()
	c.contentURI = uri
	c.mu.Unlock()
}

// CreatePipeline allocates the bus, task pool and timers and opens every gate.
func (c *Control) CreatePipeline(_ context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if c.created {
		c.mu.Unlock()
		return ErrAlreadyCreated
	}
	c.mu.Unlock()

	machine, err := fsm.NewElement(c.applyState)
	if err != nil {
		return err
	}
	for _, g := range c.gates.all() {
		g.Enable()
	}
	b := bus.NewPipeline(c.id.String(), c.cfg.BusBuffer)
	b.SetSyncHandler(c.onBusSync)
	if err := b.AddWatch(c.onBusWatch); err != nil {
		b.Close()
		return err
	}

	stop, done := make(chan struct{}), make(chan struct{})
	c.mu.Lock()
	c.created = true
	c.bus = b
	c.pool = taskpool.New("pipeline-"+c.id.String(), c.cfg.TaskWorkers)
	c.machine = machine
	c.busState = fsm.StateNull
	c.lastErr = nil
	c.rate = 1
	c.timerStop, c.timerDone = stop, done
	c.mu.Unlock()

	go c.runPositionTimer(stop, done, c.cfg.PositionInterval)

	c.logger.Info().
		Str(xglog.FieldEvent, "pipeline.created").
		Str("platform", c.soc.Platform()).
		Msg("pipeline created")
	return nil
}

// ConfigurePipeline builds the element graph for streams and prerolls it to
// PAUSED. progressive selects a progressive source element unless the
// platform forces appsrc.
func (c *Control) ConfigurePipeline(ctx context.Context, streams []StreamFormat, progressive bool) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	created, configured, b := c.created, c.graph != nil, c.bus
	c.mu.Unlock()
	switch {
	case !created:
		return ErrNotCreated
	case configured:
		return ErrAlreadyConfigured
	}

	spec, state, err := c.buildSpec(streams, progressive)
	if err != nil {
		return err
	}
	g, err := c.backend.Build(ctx, spec, b)
	if err != nil {
		return fmt.Errorf("build graph: %w", err)
	}
	g.SetProbe(c.onPadProbe)

	c.mu.Lock()
	c.graph = g
	c.streams = state
	c.machine.Reset(fsm.StateNull)
	c.mu.Unlock()

	c.logger.Info().
		Str(xglog.FieldEvent, "pipeline.configured").
		Strs("elements", g.Elements()).
		Bool("appsrc", spec.UseAppSrc).
		Msg("element graph built")

	return c.setState(ctx, fsm.StatePaused)
}

func (c *Control) buildSpec(streams []StreamFormat, progressive bool) (graph.Spec, map[model.StreamType]*stream, error) {
	if len(streams) == 0 {
		return graph.Spec{}, nil, fmt.Errorf("no streams: %w: %w", ErrInvalidStream, model.ErrInvalidArgument)
	}
	spec := graph.Spec{
		ID:          c.id,
		AudioSink:   c.soc.AudioSinkName(),
		UseAppSrc:   !progressive || c.soc.UseAppSrcForProgressive(),
		SecureVideo: c.soc.HasSecureVideoPath(),
	}
	state := make(map[model.StreamType]*stream, len(streams))
	for _, f := range streams {
		if !f.Media.Valid() {
			return graph.Spec{}, nil, fmt.Errorf("stream type %d: %w: %w", int(f.Media), ErrInvalidStream, model.ErrInvalidArgument)
		}
		if _, dup := state[f.Media]; dup {
			return graph.Spec{}, nil, fmt.Errorf("duplicate %s stream: %w: %w", f.Media, ErrInvalidStream, model.ErrInvalidArgument)
		}
		f.Codec = strings.ToLower(strings.TrimSpace(f.Codec))
		ss := graph.StreamSpec{Media: f.Media, Codec: f.Codec, Protected: f.Protected}
		if f.Media != model.StreamSubtitle {
			if f.Codec == decoder.CodecAC4 && !c.soc.SupportsAC4() {
				return graph.Spec{}, nil, fmt.Errorf("%s on %s: %w", f.Codec, c.soc.Platform(), ErrUnsupportedCodec)
			}
			dec, err := c.decoders.Decoder(f.Codec)
			if err != nil {
				return graph.Spec{}, nil, fmt.Errorf("%s stream: %w", f.Media, err)
			}
			ss.Decoder = dec
		}
		if f.Protected && f.Media == model.StreamVideo && !spec.SecureVideo {
			c.logger.Warn().
				Str(xglog.FieldEvent, "pipeline.no_secure_path").
				Str(xglog.FieldMediaType, f.Media.String()).
				Msg("protected video without a secure video path")
		}
		spec.Streams = append(spec.Streams, ss)
		state[f.Media] = newStream(f)
	}
	return spec, state, nil
}

// DestroyPipeline disables and drains every gate, then tears the graph down
// to NULL and releases it. If any gate fails to drain within the configured
// deadline nothing is released and ErrTeardownUnsafe is returned. Destroying
// a pipeline that was never created is a no-op.
func (c *Control) DestroyPipeline(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if !c.created {
		c.mu.Unlock()
		return nil
	}
	stop, done := c.timerStop, c.timerDone
	c.timerStop, c.timerDone = nil, nil
	c.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}

	label := "destroy pipeline " + c.id.String()
	var stuck []string
	for _, g := range c.gates.all() {
		if !g.WaitForDone(c.cfg.GateDrainTimeout, label) {
			stuck = append(stuck, g.Name())
		}
	}
	if len(stuck) > 0 {
		c.logger.Error().
			Str(xglog.FieldEvent, "pipeline.teardown_unsafe").
			Strs("gates", stuck).
			Msg("handlers still running, pipeline not released")
		return fmt.Errorf("gates %s: %w", strings.Join(stuck, ","), ErrTeardownUnsafe)
	}

	c.mu.Lock()
	b, pool, g := c.bus, c.pool, c.graph
	c.mu.Unlock()

	b.RemoveWatch()
	if g != nil {
		if err := c.setState(ctx, fsm.StateNull); err != nil {
			c.logger.Warn().Err(err).Str(xglog.FieldEvent, "pipeline.teardown_state").Msg("graph did not reach NULL")
		}
		_ = g.Close()
	}
	if err := pool.Close(ctx); err != nil {
		c.logger.Warn().Err(err).Str(xglog.FieldEvent, "pipeline.taskpool_close").Msg("deferred tasks cancelled")
	}
	b.Close()

	c.mu.Lock()
	c.created = false
	c.bus, c.pool, c.graph, c.machine, c.streams = nil, nil, nil, nil, nil
	c.busState = fsm.StateNull
	c.mu.Unlock()

	c.logger.Info().Str(xglog.FieldEvent, "pipeline.destroyed").Msg("pipeline destroyed")
	return nil
}

// HealthState reports the element state and the last fatal bus error.
func (c *Control) HealthState() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.machine == nil {
		return string(fsm.StateNull), nil
	}
	return string(c.machine.State()), c.lastErr
}

// State returns the controller's element state.
func (c *Control) State() fsm.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.machine == nil {
		return fsm.StateNull
	}
	return c.machine.State()
}

// Position is the current playback position, or zero without a graph.
func (c *Control) Position() time.Duration {
	c.mu.Lock()
	g := c.graph
	c.mu.Unlock()
	if g == nil {
		return 0
	}
	return g.Position()
}

// Streams returns per-track bookkeeping in stream type order.
func (c *Control) Streams() []StreamStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []StreamStatus
	for _, media := range model.AllStreamTypes {
		if st, ok := c.streams[media]; ok {
			out = append(out, st.status())
		}
	}
	return out
}
