package main

import (
	"context"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"

	"peerlens/internal/core/services"
	httphandlers "peerlens/internal/handlers/http"
	"peerlens/internal/infrastructure/monitoring"
	"peerlens/internal/infrastructure/repositories"
	"peerlens/internal/infrastructure/signal"
	"peerlens/pkg/config"
	"peerlens/pkg/logger"
	"peerlens/pkg/tracing"

	"github.com/gin-gonic/gin"
)

func main() {
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"/etc/peerlens/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error
	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}
	if err != nil {
		cfg = config.DefaultConfig()
	}

	zapLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		JaegerURL:   cfg.Tracing.JaegerURL,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Warnw("tracing init failed, continuing without tracing", "error", err)
	} else {
		defer tp.Shutdown(context.Background())
		if cfg.Tracing.Enabled {
			log.Infow("tracing enabled", "jaeger_url", cfg.Tracing.JaegerURL)
		}
	}

	repoFactory, err := repositories.NewRepositoryFactory(cfg, log)
	if err != nil {
		log.Fatalw("failed to create repository factory", "error", err)
	}
	defer repoFactory.Close()
	presenceRepo := repoFactory.CreatePresenceRepository()

	var collector *monitoring.RelayCollector
	if cfg.Monitoring.PrometheusEnabled {
		collector = monitoring.NewRelayCollector()
	}

	registry := services.NewRegistryService(zapLogger)
	var relay *services.RelayService
	if collector != nil {
		relay = services.NewRelayService(registry, presenceRepo, collector, cfg.Relay.SettleWindow, zapLogger)
	} else {
		relay = services.NewRelayService(registry, presenceRepo, nil, cfg.Relay.SettleWindow, zapLogger)
	}

	wsServer := signal.NewWebSocketServer(relay, zapLogger)
	wsServer.SetPingInterval(cfg.Relay.PingInterval)
	wsServer.SetPongTimeout(cfg.Relay.PongTimeout)

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	handler := httphandlers.NewRelayHandler(relay, wsServer, repoFactory, cfg, zapLogger)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:         cfg.Relay.Address,
		Handler:      router,
		ReadTimeout:  cfg.Relay.ReadTimeout,
		WriteTimeout: cfg.Relay.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infof("starting peerlens relay on %s", cfg.Relay.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	ossignal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatalw("relay server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("received shutdown signal", "signal", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Relay.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error during server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("error force closing server", "error", closeErr)
		}
	}

	log.Info("relay stopped")
}
