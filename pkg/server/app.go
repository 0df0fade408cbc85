package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"BookPulse/internal/usecase"
	pkgch "BookPulse/pkg/clickhouse"
	"BookPulse/pkg/config"
	xhttp "BookPulse/pkg/http"
	pkgkafka "BookPulse/pkg/kafka"
	applogger "BookPulse/pkg/logger"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	collector  *usecase.SnapshotCollector
	handler    xhttp.Handler
	chClient   *pkgch.Client
	producer   *pkgkafka.Producer
	logger     *applogger.Logger
	httpServer *xhttp.Server
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	collector *usecase.SnapshotCollector,
	handler xhttp.Handler,
	chClient *pkgch.Client,
	producer *pkgkafka.Producer,
	logger *applogger.Logger,
) *App {
	return &App{
		cfg:       cfg,
		collector: collector,
		handler:   handler,
		chClient:  chClient,
		producer:  producer,
		logger:    logger,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.httpServer = xhttp.NewServer(a.handler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithMetrics(a.cfg.Metrics.Enabled, a.cfg.Metrics.Path),
	)

	// Start capture: depth stream -> pipeline -> batching processor
	go func() {
		if err := a.collector.Start(ctx); err != nil {
			a.logger.Error("collector error", applogger.Error(err))
		}
	}()
	a.logger.Info("capture started", applogger.Strings("symbols", a.cfg.Binance.Symbols))

	if err := a.httpServer.Start(); err != nil {
		a.logger.Error("http server start error", applogger.Error(err))
		return err
	}

	// Wait for interrupt
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.logger.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// shutdown gracefully stops all services.
func (a *App) shutdown(ctx context.Context) error {
	// Stop capture first so the final batch flushes before the store closes
	if err := a.collector.Shutdown(ctx); err != nil {
		a.logger.Warn("collector stop error", applogger.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.logger.Error("http shutdown error", applogger.Error(err))
	}

	// Final log-collector flush goes out before the producer closes
	a.logger.RemoveCollector()

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Warn("kafka producer close error", applogger.Error(err))
		}
	}

	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.logger.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	a.logger.Info("shutdown complete")
	return nil
}
