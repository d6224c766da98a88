package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/docker/go-units"

	"github.com/sitegate/gatekeeper/internal/app"
	"github.com/sitegate/gatekeeper/internal/config"
	"github.com/sitegate/gatekeeper/internal/logger"
	"github.com/sitegate/gatekeeper/internal/version"
)

func main() {
	startTime := time.Now()
	vlog := log.New(log.Writer(), "", 0)
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.PrintVersionInfo(true, vlog)
		os.Exit(0)
	}
	version.PrintVersionInfo(false, vlog)

	cfg, err := config.Load(nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logInstance, styledLogger, cleanup, err := logger.NewWithTheme(buildLoggerConfig(cfg))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	slog.SetDefault(logInstance)

	styledLogger.Info("Initialising", "version", version.Version, "pid", os.Getpid(), "environment", cfg.Environment)
	if cfg.Filename != "" {
		styledLogger.Info("Loaded configuration", "file", cfg.Filename)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		styledLogger.Info("Shutdown signal received", "signal", sig.String())
		cancel()
	}()

	application, err := app.New(startTime, cfg, styledLogger)
	if err != nil {
		logger.FatalWithLogger(logInstance, "Failed to create application", err, cleanup)
	}
	application.WatchFiles()

	if err := application.Run(ctx); err != nil {
		styledLogger.Error("Server stopped with error", "error", err)
	}

	reportProcessStats(styledLogger, startTime)
	styledLogger.Info("Gatekeeper has shutdown")
}

func reportProcessStats(log *logger.StyledLogger, startTime time.Time) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	log.Info("Process Memory Stats",
		"heap_alloc", units.HumanSize(float64(m.HeapAlloc)),
		"heap_sys", units.HumanSize(float64(m.HeapSys)),
		"total_alloc", units.HumanSize(float64(m.TotalAlloc)),
		"num_gc_cycles", m.NumGC,
		"num_goroutines", runtime.NumGoroutine(),
		"uptime", time.Since(startTime).Round(time.Second).String(),
	)
}

func buildLoggerConfig(cfg *config.Config) *logger.Config {
	return &logger.Config{
		Level:      cfg.Logging.Level,
		Theme:      cfg.Logging.Theme,
		LogDir:     cfg.Logging.Dir,
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAge,
		FileOutput: cfg.Logging.FileOutput,
	}
}
