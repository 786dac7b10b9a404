// Package server wires the simulation, the renderer stream, the operational HTTP
// surface and the gRPC health service into one daemon.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"portalsim/engine/internal/auth"
	"portalsim/engine/internal/config"
	"portalsim/engine/internal/grpc"
	httpapi "portalsim/engine/internal/http"
	"portalsim/engine/internal/input"
	"portalsim/engine/internal/level"
	"portalsim/engine/internal/logging"
	"portalsim/engine/internal/simulation"
	"portalsim/engine/internal/stream"
)

const (
	shutdownTimeout = 5 * time.Second
	tokenLeeway     = 2 * time.Second
)

// Server owns every long-running component of the daemon.
type Server struct {
	cfg     *config.Config
	logger  *logging.Logger
	started time.Time

	runner   *simulation.Runner
	hub      *stream.Hub
	plain    *stream.Encoder
	health   *grpc.HealthServer
	controls *stream.ClientLimiter
	http     *http.Server

	mu        sync.Mutex
	levelPath string
	runErr    error

	ready      chan struct{}
	httpAddr   net.Addr
	healthAddr net.Addr
}

// New loads the configured level and assembles the components without starting them.
func New(cfg *config.Config, logger *logging.Logger) (*Server, error) {
	if logger == nil {
		logger = logging.L()
	}
	s := &Server{cfg: cfg, logger: logger, levelPath: cfg.LevelPath, ready: make(chan struct{})}

	//1.- World and fixed-step runner.
	world, err := BuildWorld(cfg, cfg.LevelPath)
	if err != nil {
		return nil, err
	}

	//2.- Stream encoders, input admission and the hub.
	encoder, err := stream.NewEncoder(cfg.Stream.Codec)
	if err != nil {
		return nil, fmt.Errorf("stream encoder: %w", err)
	}
	if s.plain, err = stream.NewEncoder(grpc.CodecNone); err != nil {
		return nil, err
	}
	s.controls = stream.NewClientLimiter(cfg.Stream.ControlRate, cfg.Stream.ControlBurst, nil)
	pipeline := &input.Pipeline{
		Gate:      input.NewGate(input.GateConfig{MaxAge: cfg.Input.MaxAge, MinInterval: cfg.Input.MinInterval}, logger),
		Validator: input.NewValidator(input.DefaultControlConstraints, logger),
	}
	hubOpts := stream.Options{
		Logger:          logger.With(logging.String("component", "stream")),
		Encoder:         encoder,
		Pipeline:        pipeline,
		Limiter:         s.controls,
		MaxClients:      cfg.Stream.MaxClients,
		PingInterval:    cfg.Stream.PingInterval,
		MaxPayloadBytes: cfg.Stream.MaxPayloadBytes,
	}
	if cfg.Stream.AuthSecret != "" {
		verifier, err := auth.NewTokenVerifier(cfg.Stream.AuthSecret, tokenLeeway)
		if err != nil {
			return nil, err
		}
		hubOpts.Authenticator = verifier
	}
	hub, err := stream.NewHub(hubOpts)
	if err != nil {
		return nil, err
	}
	s.hub = hub
	s.runner = simulation.NewRunner(world, cfg.TickRateHz,
		simulation.WithPublisher(hub),
		simulation.WithRunnerLogger(logger.With(logging.String("component", "simulation"))),
	)
	hub.SetSubmitter(s.runner)

	//3.- Health and HTTP surfaces.
	s.health = grpc.NewHealthServer(logger.With(logging.String("component", "health")))
	s.http = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	return s, nil
}

// BuildWorld loads the level at path, or the built-in level when path is empty, and
// applies the configured tuning.
func BuildWorld(cfg *config.Config, path string, opts ...simulation.WorldOption) (*simulation.World, error) {
	def := level.Default()
	if path != "" {
		var err error
		if def, err = level.Load(path); err != nil {
			return nil, err
		}
	}
	opts = append([]simulation.WorldOption{simulation.WithTuning(TuningFromConfig(cfg.Tuning))}, opts...)
	return simulation.NewWorld(def, opts...), nil
}

// TuningFromConfig converts configured rates into simulation tuning.
func TuningFromConfig(t config.TuningConfig) simulation.Tuning {
	return simulation.Tuning{
		MoveSpeed:            float32(t.MoveSpeed),
		SprintMultiplier:     float32(t.SprintMultiplier),
		RollSpeedDeg:         float32(t.RollSpeedDeg),
		PortalRotateSpeedDeg: float32(t.PortalRotateSpeedDeg),
		PortalResizeSpeed:    float32(t.PortalResizeSpeed),
		TextureRadiusRatio:   float32(t.TextureRadiusRatio),
	}
}

// Handler routes /ws to the stream hub and everything else to the operational
// handlers.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/ws", s.hub)
	handlers := httpapi.NewHandlerSet(httpapi.Options{
		Logger:      s.logger.With(logging.String("component", "http")),
		Readiness:   s,
		Stats:       s.hub.Stats,
		Stream:      s.hub.Metrics(),
		Controls:    s.controls,
		Ticks:       func() simulation.TickMetricsSnapshot { return s.runner.Monitor().Snapshot() },
		Snapshot:    s.snapshotJSON,
		Reloader:    s,
		AdminToken:  s.cfg.AdminToken,
		RateLimiter: httpapi.NewWindowLimiter(s.cfg.Reload.Window, s.cfg.Reload.Burst, nil),
	})
	handlers.Register(mux)
	return logging.HTTPTraceMiddleware(s.logger)(mux)
}

func (s *Server) snapshotJSON() ([]byte, error) {
	encoded, err := s.plain.Encode(s.runner.Latest())
	if err != nil {
		return nil, err
	}
	return encoded.Payload, nil
}

// ReloadLevel swaps the running world for a freshly loaded one. An empty path reloads
// the current level.
func (s *Server) ReloadLevel(_ context.Context, path string) (string, error) {
	s.mu.Lock()
	if path == "" {
		path = s.levelPath
	}
	s.mu.Unlock()

	world, err := BuildWorld(s.cfg, path)
	if err != nil {
		return "", err
	}
	s.runner.ReplaceWorld(world)

	s.mu.Lock()
	s.levelPath = path
	s.mu.Unlock()
	if path == "" {
		path = "default"
	}
	s.logger.Info("level loaded", logging.String("level", path), logging.Int("walls", world.Room().WallCount()))
	return path, nil
}

// Running reports whether the simulation loop is ticking.
func (s *Server) Running() bool { return s.runner.Running() }

// StartupError reports why Run failed to bring the daemon up, if it did.
func (s *Server) StartupError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runErr
}

// Uptime is the time since Run started.
func (s *Server) Uptime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started.IsZero() {
		return 0
	}
	return time.Since(s.started)
}

// Ready is closed once every listener is bound.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Addrs returns the bound HTTP and health addresses after Ready.
func (s *Server) Addrs() (httpAddr, healthAddr net.Addr) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.httpAddr, s.healthAddr
}

// Run binds the listeners, starts the loop and blocks until ctx is cancelled or a
// component fails. Shutdown drains every component before Run returns.
func (s *Server) Run(ctx context.Context) error {
	//1.- Bind listeners first so address errors surface immediately.
	httpLis, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		s.fail(err)
		return fmt.Errorf("listen %s: %w", s.cfg.Address, err)
	}
	var healthLis net.Listener
	if s.cfg.HealthAddr != "" {
		if healthLis, err = net.Listen("tcp", s.cfg.HealthAddr); err != nil {
			httpLis.Close()
			s.fail(err)
			return fmt.Errorf("listen %s: %w", s.cfg.HealthAddr, err)
		}
	}
	s.mu.Lock()
	s.started = time.Now()
	s.httpAddr = httpLis.Addr()
	if healthLis != nil {
		s.healthAddr = healthLis.Addr()
	}
	s.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)

	//2.- Simulation and health.
	s.runner.Start(gctx)
	s.health.SetServing(true)
	close(s.ready)

	g.Go(func() error {
		s.logger.Info("http listening", logging.String("address", httpLis.Addr().String()))
		if err := s.http.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http serve: %w", err)
		}
		return nil
	})
	if healthLis != nil {
		g.Go(func() error { return s.health.Serve(healthLis) })
	}

	//3.- Ordered shutdown once anything stops.
	g.Go(func() error {
		<-gctx.Done()
		s.health.SetServing(false)
		s.runner.Stop()
		s.hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := s.http.Shutdown(shutdownCtx)
		s.health.Stop()
		return err
	})

	err = g.Wait()
	if err != nil {
		s.fail(err)
	}
	s.logger.Info("server stopped")
	return err
}

func (s *Server) fail(err error) {
	s.mu.Lock()
	s.runErr = err
	s.mu.Unlock()
}
