package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/dfeldman/webInk/internal/config"
	"github.com/dfeldman/webInk/internal/httpapi"
	"github.com/dfeldman/webInk/internal/ratelimit"
	"github.com/dfeldman/webInk/internal/registry"
	"github.com/dfeldman/webInk/internal/render"
	"github.com/dfeldman/webInk/internal/snapshot"
	"github.com/dfeldman/webInk/internal/socketapi"
	"github.com/dfeldman/webInk/internal/telemetry"
)

func main() {
	cfg := config.Load()

	zapCfg := zap.NewProductionConfig()
	if level, err := zap.ParseAtomicLevel(cfg.LogLevel); err == nil {
		zapCfg.Level = level
	}
	logger, err := zapCfg.Build()
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Initialization order: Registry -> Render Engine -> Snapshot Cache
	// -> front-ends. Teardown below reverses this.
	reg, err := registry.Load(cfg.DevicesPath)
	if err != nil {
		logger.Fatal("failed to load device registry", zap.Error(err))
	}

	engine := render.NewEngine(cfg.RenderWorkers, logger,
		render.WithQuietWindow(cfg.RenderQuietWindow),
		render.WithHardCeiling(cfg.RenderHardCeiling),
		render.WithSubmitTimeout(cfg.RenderPoolWait),
	)

	cache := snapshot.NewCache(engine)

	store, err := telemetry.Open(cfg.TelemetryDBPath)
	if err != nil {
		logger.Fatal("failed to open telemetry store", zap.Error(err))
	}

	limiter := ratelimit.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.AuthFailWindow, cfg.AuthFailMax)

	httpServer := httpapi.New(httpapi.Deps{
		Registry:  reg,
		Cache:     cache,
		Telemetry: store,
		Limiter:   limiter,
		Logger:    logger,
	})

	socketServer := socketapi.New(socketapi.Deps{
		Registry: reg,
		Cache:    cache,
		Limiter:  limiter,
		Logger:   logger,
		MaxConns: cfg.SocketConnCap,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		logger.Info("starting HTTP server", zap.Int("port", cfg.HTTPPort))
		if err := httpServer.Start(fmt.Sprintf(":%d", cfg.HTTPPort)); err != nil {
			logger.Error("HTTP server failed", zap.Error(err))
			cancel()
		}
	}()

	if err := socketServer.Listen(fmt.Sprintf(":%d", cfg.SocketPort)); err != nil {
		logger.Fatal("failed to bind socket server", zap.Error(err))
	}
	go func() {
		logger.Info("starting socket server", zap.Int("port", cfg.SocketPort))
		if err := socketServer.Serve(ctx); err != nil {
			logger.Error("socket server failed", zap.Error(err))
			cancel()
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("received shutdown signal")
	case <-ctx.Done():
		logger.Warn("shutting down after a front-end failure")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", zap.Error(err))
	}
	if err := socketServer.Close(); err != nil {
		logger.Error("socket server shutdown failed", zap.Error(err))
	}

	cancel()
	engine.Stop()

	if err := store.Close(); err != nil {
		logger.Error("telemetry store close failed", zap.Error(err))
	}

	logger.Info("shutdown complete")
}
