package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"StockVote/internal/usecase"
	"StockVote/pkg/config"
	xhttp "StockVote/pkg/http"
	pkgkafka "StockVote/pkg/kafka"
	applogger "StockVote/pkg/logger"
	"StockVote/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	logger     *applogger.Logger
	handler    xhttp.Handler
	batches    *usecase.BatchEngine
	retention  *usecase.RetentionJob
	consumer   *pkgkafka.Consumer
	recorder   *metrics.Recorder
	health     []xhttp.HealthCheck
	httpServer *xhttp.Server
}

type Option func(*App)

func WithMetrics(rec *metrics.Recorder) Option {
	return func(a *App) { a.recorder = rec }
}

// WithRetention runs the job on the retention interval when retention is enabled.
func WithRetention(j *usecase.RetentionJob) Option {
	return func(a *App) { a.retention = j }
}

// WithConsumer starts c alongside the HTTP server. A nil consumer is ignored.
func WithConsumer(c *pkgkafka.Consumer) Option {
	return func(a *App) { a.consumer = c }
}

// WithHealthChecks reports the given dependencies on /healthz.
func WithHealthChecks(checks ...xhttp.HealthCheck) Option {
	return func(a *App) { a.health = append(a.health, checks...) }
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, l *applogger.Logger, h xhttp.Handler, batches *usecase.BatchEngine, opts ...Option) *App {
	a := &App{cfg: cfg, logger: l, handler: h, batches: batches}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Run starts every component and blocks until SIGINT/SIGTERM or ctx ends.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []xhttp.ServerOption{
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithLogger(a.logger),
		xhttp.WithCORS(a.cfg.Server.CORS, a.cfg.Server.CORSOrigins...),
		xhttp.WithHealthChecks(a.health...),
	}
	if a.cfg.Metrics.Enabled && a.recorder != nil {
		opts = append(opts, xhttp.WithMetrics(a.cfg.Metrics.Path, prometheus.DefaultGatherer, a.recorder))
	}
	a.httpServer = xhttp.NewServer(a.handler, opts...)
	if err := a.httpServer.Start(); err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	a.logger.Info("http server started", applogger.Int("port", a.cfg.Server.Port))

	if a.consumer != nil {
		if err := a.consumer.Start(); err != nil {
			a.shutdown()
			return fmt.Errorf("kafka consumer: %w", err)
		}
		a.logger.Info("kafka consumer started", applogger.String("topic", a.cfg.Kafka.Topics.Requests))
	}

	if a.retention != nil && a.cfg.Retention.Enabled {
		a.retention.Start(ctx, a.cfg.Retention.Interval)
		a.logger.Info("retention scheduled",
			applogger.Duration("horizon", a.cfg.Retention.Horizon),
			applogger.Duration("interval", a.cfg.Retention.Interval))
	}

	<-ctx.Done()
	a.logger.Info("shutdown signal received")
	a.shutdown()
	return nil
}

// shutdown stops intake first, then lets running batches finalize.
func (a *App) shutdown() {
	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			a.logger.Error("http shutdown error", applogger.Error(err))
		}
	}
	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.logger.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}
	if err := a.batches.Shutdown(ctx); err != nil {
		a.logger.Warn("batches did not finish before shutdown timeout", applogger.Error(err))
	}
	a.logger.Info("shutdown complete")
}
