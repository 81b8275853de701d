package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	_ "net/http/pprof" // For pprof server
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	plog "github.com/phuslu/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"vawter.tech/stopper"

	"gameboost/internal/api"
	"gameboost/internal/config"
	"gameboost/internal/detector"
	"gameboost/internal/logger"
	"gameboost/internal/maps"
	"gameboost/internal/primitive"
	"gameboost/internal/session"
	"gameboost/internal/windowsapi"
)

// Host is the set of machine primitives the service runs against.
type Host interface {
	primitive.Adapter
	primitive.SnapshotProvider
}

// GameBoost encapsulates the core components of the application.
type GameBoost struct {
	config     atomic.Pointer[config.AppConfig]
	configPath string

	registry   *prometheus.Registry
	manager    *session.Manager
	detector   *detector.Detector
	httpServer *http.Server
	log        *plog.Logger
}

// NewGameBoost wires the session manager, detector and HTTP server for host.
func NewGameBoost(cfg *config.AppConfig, configPath string, host Host) (*GameBoost, error) {
	g := &GameBoost{
		configPath: configPath,
		registry:   prometheus.NewRegistry(),
		log:        &plog.DefaultLogger, // main app uses default logger
	}
	g.config.Store(cfg)

	g.log.Info().
		Str("version", version).
		Str("listen_address", cfg.Server.ListenAddress).
		Str("metrics_path", cfg.Server.MetricsPath).
		Bool("detector_enabled", cfg.Detector.Enabled).
		Msg("Starting GameBoost")

	g.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if err := g.setupSession(host); err != nil {
		return nil, err
	}
	g.setupHTTPServer()
	return g, nil
}

// setupSession creates the session manager and, if enabled, the detector.
func (g *GameBoost) setupSession(host Host) error {
	cfg := g.config.Load()
	backend, _ := maps.ParseBackend(cfg.Session.RegistryMap) // checked by Validate
	g.manager = session.New(host, host,
		session.WithMetrics(session.NewMetrics(g.registry)),
		session.WithConcurrency(cfg.Session.Concurrency),
		session.WithRegistryMap(backend),
	)
	g.log.Debug().Int("concurrency", cfg.Session.Concurrency).Str("registry_map", string(backend)).
		Msg("- Session manager created")

	if !cfg.Detector.Enabled {
		return nil
	}
	var catalog *detector.Catalog
	if cfg.Detector.Catalog != "" {
		var err error
		if catalog, err = detector.LoadCatalog(cfg.Detector.Catalog); err != nil {
			return fmt.Errorf("failed to load detector catalog: %w", err)
		}
		g.log.Info().Str("path", cfg.Detector.Catalog).Int("games", len(catalog.Games())).
			Msg("Loaded game catalog")
	}
	g.detector = detector.New(host, g.manager, g.sessionConfig, detector.Options{
		Interval:       cfg.Detector.Interval,
		AutoDeactivate: cfg.Detector.AutoDeactivate,
		Catalog:        catalog,
		Metrics:        detector.NewMetrics(g.registry),
	})
	g.log.Debug().Msg("- Game detector created")
	return nil
}

// sessionConfig returns the settings for the next activation.
func (g *GameBoost) sessionConfig() session.Config {
	return sessionConfig(&g.config.Load().Session)
}

func sessionConfig(c *config.SessionConfig) session.Config {
	out := session.Config{
		Groups: make([]session.ProcessGroupRule, 0, len(c.Groups)),
		Tweaks: session.TweakSet{
			MemoryTrim:  c.Tweaks.MemoryTrim,
			PowerPlan:   c.Tweaks.PowerPlan,
			Network:     c.Tweaks.Network,
			GPUPriority: c.Tweaks.GPUPriority,
		},
		PowerPlans:  append([]string(nil), c.PowerPlans...),
		TrimExclude: append([]string(nil), c.TrimExclude...),
	}
	for _, grp := range c.Groups {
		out.Groups = append(out.Groups, session.ProcessGroupRule{
			Name:     grp.Name,
			Patterns: append([]string(nil), grp.Patterns...),
			Enabled:  grp.Enabled,
			Priority: grp.Priority,
		})
	}
	return out
}

// setupHTTPServer configures the HTTP server for metrics and the control API.
func (g *GameBoost) setupHTTPServer() {
	cfg := g.config.Load()
	g.log.Debug().Str("metrics_path", cfg.Server.MetricsPath).Msg("Setting up HTTP handlers")

	var games func() []string
	if g.detector != nil {
		games = g.detector.Games
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.Server.MetricsPath, promhttp.HandlerFor(g.registry, promhttp.HandlerOpts{}))
	api.NewHandler(g.manager, g.sessionConfig, games).Register(mux)
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>
            <head><title>GameBoost</title></head>
            <body>
            <h1>GameBoost v` + version + ` </h1>
            <p><a href="/session">Session</a></p>
            <p><a href="` + cfg.Server.MetricsPath + `">Metrics</a></p>
            </body>
            </html>`))
	})

	g.httpServer = &http.Server{
		Addr:              cfg.Server.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// reloadConfig is the config watcher callback. Log levels apply at once.
// Server and detector settings and log outputs need a restart; everything
// else applies to the next activation.
func (g *GameBoost) reloadConfig(cfg *config.AppConfig, err error) {
	if err != nil {
		g.log.Error().Err(err).Str("path", g.configPath).Msg("Config reload failed, keeping previous configuration")
		return
	}
	old := g.config.Swap(cfg)
	logger.Reconfigure(cfg.Logging)
	if old.Server != cfg.Server || old.Detector != cfg.Detector {
		g.log.Warn().Msg("Server and detector changes take effect after a restart")
	}
	g.log.Info().Str("path", g.configPath).Int("groups", len(cfg.Session.Groups)).Msg("Configuration reloaded")
}

// Run starts all services and waits for a shutdown signal.
func (g *GameBoost) Run() error {
	// Create a context that we can stop to trigger a graceful shutdown.
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Listen for OS signals in a separate goroutine.
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		g.log.Info().Msg("! Received OS shutdown signal, shutting down gracefully...")
		stop()
	}()

	if g.config.Load().Server.PprofEnabled {
		go func() {
			// Recover from panics in this goroutine to trigger a graceful shutdown.
			defer func() {
				if r := recover(); r != nil {
					g.log.Error().Interface("panic", r).Msg("Panic recovered in pprof server, initiating shutdown")
					stop()
				}
			}()
			g.log.Info().Msg("Starting pprof HTTP server on localhost:6060")
			// pprof registers its handlers on http.DefaultServeMux
			if err := http.ListenAndServe("localhost:6060", nil); err != nil {
				g.log.Error().Err(err).Msg("pprof server failed")
			}
		}()
	}

	workers := stopper.WithContext(ctx)
	if g.detector != nil {
		workers.Go(g.detector.Run)
	}
	if g.configPath != "" {
		workers.Go(func(sctx *stopper.Context) error {
			wctx, cancel := context.WithCancel(sctx)
			defer cancel()
			go func() {
				<-sctx.Stopping()
				cancel()
			}()
			g.log.Info().Str("path", g.configPath).Msg("Watching configuration file")
			return config.Watch(wctx, g.configPath, g.reloadConfig)
		})
	}

	go func() {
		// Recover from panics in this goroutine to trigger a graceful shutdown.
		defer func() {
			if r := recover(); r != nil {
				g.log.Error().Interface("panic", r).Msg("Panic recovered in HTTP server, initiating shutdown")
				stop()
			}
		}()
		g.log.Info().Str("address", g.httpServer.Addr).Msg("Starting HTTP server")
		if err := g.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.log.Error().Err(err).Msg("Failed to start HTTP server")
			stop() // Trigger shutdown on server error
		}
	}()

	g.log.Info().Msg("GameBoost is ready")

	// Block until a shutdown is triggered (from OS signal, panic, or other error).
	<-ctx.Done()
	g.log.Info().Msg("! Shutdown initiated...")

	// --- Graceful shutdown sequence ---

	httpCtx, cancelhttp := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelhttp()

	if err := g.httpServer.Shutdown(httpCtx); err != nil {
		g.log.Error().Err(err).Msg("Error shutting down HTTP server")
	} else {
		g.log.Debug().Msg("HTTP server shut down cleanly")
	}

	workers.Stop(5 * time.Second)
	if err := workers.Wait(); err != nil {
		g.log.Error().Err(err).Msg("Background worker failed")
	}

	// Leave the machine as we found it.
	if err := g.shutdownSession(); err != nil {
		return err
	}

	g.log.Info().Msg("GameBoost stopped gracefully")
	return nil
}

// shutdownSession ends an active session. Having none is not an error.
func (g *GameBoost) shutdownSession() error {
	res, err := g.manager.Deactivate()
	switch {
	case errors.Is(err, session.ErrNotActive):
		return nil
	case err != nil:
		return fmt.Errorf("failed to end session: %w", err)
	}
	g.log.Info().
		Str("session_id", res.SessionID).
		Int("resumed", res.ResumedCount).
		Int("failed_reverts", len(res.FailedReverts)).
		Msg("Session ended on shutdown")
	return nil
}

func newHost() Host { return windowsapi.NewAdapter() }
