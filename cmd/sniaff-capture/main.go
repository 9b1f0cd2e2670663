package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sniaff-suite/sniaff-mitmdump-mcp/internal/adapters/encoders/har"
	"github.com/sniaff-suite/sniaff-mitmdump-mcp/internal/adapters/storage/jsonl"
	cfgpkg "github.com/sniaff-suite/sniaff-mitmdump-mcp/internal/infrastructure/config"
	httpapi "github.com/sniaff-suite/sniaff-mitmdump-mcp/internal/infrastructure/httpapi"
	obs "github.com/sniaff-suite/sniaff-mitmdump-mcp/internal/infrastructure/observability"
	"github.com/sniaff-suite/sniaff-mitmdump-mcp/internal/usecase"
)

func main() {
	cfgPath := os.Getenv("SNIAFF_CONFIG")
	cfg, err := cfgpkg.Load(cfgPath)
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger := obs.NewLogger(cfg.LogLevel)
	logger.Info().Str("addr", cfg.Addr).Str("version", obs.Version).Msg("starting sniaff-capture")

	metrics := obs.NewMetrics()
	monitor := httpapi.NewMonitorHub()

	openWriter := func(path string) (usecase.RecordWriter, error) {
		return jsonl.Open(path, jsonl.Options{
			Mode:          jsonl.SyncMode(cfg.Capture.Fsync),
			FlushInterval: time.Duration(cfg.Capture.FlushIntervalMs) * time.Millisecond,
		})
	}
	enc := har.Encoder{RedactHeaders: cfg.Capture.RedactHeaders}
	capture := usecase.NewCapture(openWriter, enc, logger, metrics, usecase.CaptureOptions{
		QueueSize: cfg.Capture.QueueSize,
		Policy:    usecase.QueuePolicy(cfg.Capture.QueuePolicy),
	})
	capture.SetRecordListener(func(id string) {
		monitor.Broadcast(httpapi.RecordEvent{Type: "record_captured", ID: id})
	})

	if cfg.Capture.File != "" {
		if err := capture.Configure(cfg.Capture.File); err != nil {
			logger.Error().Err(err).Msg("initial capture configuration failed")
			os.Exit(1)
		}
	} else {
		logger.Warn().Msg("no capture file configured, flows will not be recorded until /api/capture is set")
	}

	deps := &httpapi.Deps{Cfg: cfg, Logger: logger, Metrics: metrics, Capture: capture, Monitor: monitor}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.NewRouterWithDeps(deps),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server error")
			os.Exit(1)
		}
	}()

	// Re-point the output file when the config file changes on disk.
	watchCtx, stopWatch := context.WithCancel(context.Background())
	defer stopWatch()
	if cfgPath != "" {
		watcher := cfgpkg.NewWatcher(cfgPath, logger)
		go func() {
			_ = watcher.Watch(watchCtx, func(next cfgpkg.Config) {
				if next.Capture.File != "" && next.Capture.File != capture.Path() {
					if err := capture.Configure(next.Capture.File); err != nil {
						logger.Error().Err(err).Msg("reconfigure from config file failed")
					}
				}
			})
		}()
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("server shutdown error")
	}
	if err := capture.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("capture shutdown error")
	}
	logger.Info().Msg("sniaff-capture stopped")
}
