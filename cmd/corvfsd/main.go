package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/corvfs/corvfs/internal/logger"
	"github.com/corvfs/corvfs/pkg/config"
	"github.com/corvfs/corvfs/pkg/metrics"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (default: "+config.GetDefaultConfigPath()+")")
	logLevel := flag.String("log-level", "", "Override log level (DEBUG, INFO, WARN, ERROR)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Configure logger from config, CLI override wins.
	if err := logger.SetOutput(cfg.Logging.Output); err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}
	logger.SetFormat(cfg.Logging.Format)
	logger.SetLevel(cfg.Logging.Level)
	if *logLevel != "" {
		logger.SetLevel(*logLevel)
	}

	fmt.Println("corvfs - node graph daemon")
	logger.Info("loaded configuration (%d drivers, %d mounts)", len(cfg.Drivers), len(cfg.Mounts))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	v, mounts, err := config.BuildVFS(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to build VFS: %v", err)
	}

	// Expose /metrics when enabled.
	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
		metricsServer = &http.Server{Addr: cfg.Metrics.Listen, Handler: mux}

		go func() {
			logger.Info("metrics listening on %s", cfg.Metrics.Listen)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server failed: %v", err)
			}
		}()
	}

	// Wait for shutdown signal.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received %s, shutting down", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown failed: %v", err)
		}
	}

	// Unmount in reverse mount order so nested mounts unwind cleanly.
	for i := len(mounts) - 1; i >= 0; i-- {
		if err := v.Unmount(shutdownCtx, mounts[i]); err != nil {
			logger.Warn("unmount failed: %v", err)
		}
	}

	logger.Info("shutdown complete")
}
