package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"camerabridge/internal/adapter"
	"camerabridge/internal/bridge"
	"camerabridge/internal/config"
	"camerabridge/internal/discovery"
	"camerabridge/internal/engine/go2rtc"
	"camerabridge/internal/handler"
	"camerabridge/internal/hub"
	"camerabridge/internal/logging"
	"camerabridge/internal/registry"
	"camerabridge/internal/service"
	"camerabridge/internal/watcher"
)

var (
	serveAddr        string
	teardownOnDetach bool
	inventoryPath    string
	inventoryFmt     string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server and periodic discovery",
	Long: `Start the admin API, the directive endpoint, WebSocket signaling and the
SSE event stream. When discovery.auto is enabled a discovery run starts
immediately and repeats every discovery.interval.`,
	Example: `  # Run with defaults and environment overrides
  camerabridge serve

  # Custom listen address and debug logging
  camerabridge serve --addr :8080 --log-level debug`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "HTTP listen address (overrides server.addr)")
	serveCmd.Flags().BoolVar(&teardownOnDetach, "teardown-on-disconnect", false, "Remove the engine stream when a session disconnects")
	serveCmd.Flags().StringVar(&inventoryPath, "inventory", "", "Inventory file imported at startup and whenever it changes")
	serveCmd.Flags().StringVar(&inventoryFmt, "inventory-format", "yaml", "Format of --inventory")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, path, err := loadConfig()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := initLogging(cfg); err != nil {
		return err
	}
	defer logging.Sync()

	log := logging.GetLogger()
	if path != "" {
		log.Info("configuration loaded", zap.String("path", path))
	} else {
		log.Info("no config file found, using defaults and environment")
	}
	if cfg.UsesDefaultSecret() {
		log.Warn("using the default token secret; set JWT_SECRET or auth.secret")
	}

	ctx := cmd.Context()

	bus := service.NewEventBus()

	reg, store, err := openRegistry(ctx, cfg,
		registry.WithLogger(logging.Named("registry")),
		registry.WithListener(bus.RegistryListener()),
	)
	if err != nil {
		return err
	}
	defer store.Close()
	log.Info("registry loaded",
		zap.Int("cameras", reg.Len()),
		zap.String("driver", cfg.Storage.Driver),
		zap.String("path", cfg.Storage.Path))

	engine := go2rtc.NewClient(cfg.Engine.URL,
		go2rtc.WithTimeout(cfg.Engine.Timeout.Duration()),
		go2rtc.WithLogger(logging.Named("engine")),
	)
	if engine.Healthy(ctx) {
		log.Info("media engine reachable", zap.String("url", cfg.Engine.URL))
	} else {
		log.Warn("media engine not reachable, sessions will fail until it is", zap.String("url", cfg.Engine.URL))
	}

	tokens, err := bridge.NewTokenIssuer(cfg.Auth.Secret, cfg.Auth.TokenTTL.Duration(), reg)
	if err != nil {
		return err
	}

	br := bridge.New(reg, engine,
		bridge.WithEngineTimeout(cfg.Engine.Timeout.Duration()),
		bridge.WithTeardownOnDisconnect(teardownOnDetach),
		bridge.WithLogger(logging.Named("bridge")),
	)
	defer br.Close()

	preflight(ctx, cfg)
	orch := discovery.FromConfig(cfg, reg, log, bus)

	sseHub := hub.New(hub.WithLogger(logging.Named("hub")))
	go sseHub.Run(ctx)
	sseHub.Attach(ctx, bus)

	svc := service.NewCameraService(reg, orch, tokens, engine, logging.Named("service"))
	httpLog := logging.Named("http")
	router := handler.NewRouter(handler.Routes{
		Cameras:     handler.NewCameraHandler(svc, httpLog),
		Alexa:       handler.NewAlexaHandler(br, httpLog),
		Signaling:   handler.NewSignalingHandler(tokens, reg, engine, cfg.Server.CORSOrigins, logging.Named("signaling")),
		Events:      sseHub,
		CORSOrigins: cfg.Server.CORSOrigins,
		Logger:      httpLog,
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout.Duration(),
		WriteTimeout: cfg.Server.WriteTimeout.Duration(),
		IdleTimeout:  60 * time.Second,
	}

	if inventoryPath != "" {
		invLog := logging.Named("inventory")
		reimport := func() {
			res, err := importInventory(ctx, svc, inventoryPath, inventoryFmt)
			if err != nil {
				invLog.Error("inventory import failed", zap.String("path", inventoryPath), zap.Error(err))
				return
			}
			invLog.Info("inventory imported",
				zap.String("path", inventoryPath),
				zap.Int("added", len(res.Added)),
				zap.Int("skipped", len(res.Skipped)))
		}
		reimport()
		w := watcher.New(inventoryPath, reimport, watcher.WithLogger(invLog))
		go func() {
			if err := w.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
				invLog.Warn("inventory watch stopped", zap.Error(err))
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", cfg.Server.Addr))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	if cfg.Discovery.Auto {
		if err := orch.StartPeriodic(ctx, cfg.Discovery.Interval.Duration()); err != nil {
			log.Warn("failed to start periodic discovery", zap.Error(err))
		}
	} else {
		log.Info("auto-discovery disabled")
	}

	var health *discovery.HealthMonitor
	if cfg.Health.Enabled {
		health = newHealthMonitor(cfg, reg, bus)
		if err := health.Start(ctx, cfg.Health.Interval.Duration()); err != nil {
			log.Warn("failed to start health checks", zap.Error(err))
		}
	}

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	orch.StopPeriodic()
	if health != nil {
		health.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("server shutdown error", zap.Error(err))
	}

	if err := reg.Flush(shutdownCtx); err != nil {
		log.Error("final registry flush failed", zap.Error(err))
	}
	log.Info("server stopped")
	return nil
}

func newHealthMonitor(cfg *config.Config, reg *registry.Registry, pub adapter.EventPublisher) *discovery.HealthMonitor {
	verifier := adapter.NewVerifier(adapter.VerifierConfig{
		DialTimeout:   cfg.Health.Timeout.Duration(),
		MaxConcurrent: cfg.Health.Concurrency,
		RTSPOptions:   true,
	}, logging.Named("verifier"), pub)
	return discovery.NewHealthMonitor(reg, verifier, logging.Named("health"))
}
