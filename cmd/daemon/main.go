package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/genricoloni/ledmatrix/internal/animate"
	"github.com/genricoloni/ledmatrix/internal/catalog"
	"github.com/genricoloni/ledmatrix/internal/codec"
	"github.com/genricoloni/ledmatrix/internal/config"
	"github.com/genricoloni/ledmatrix/internal/domain"
	"github.com/genricoloni/ledmatrix/internal/metrics"
	"github.com/genricoloni/ledmatrix/internal/scheduler"
	"github.com/genricoloni/ledmatrix/internal/status"
	"github.com/genricoloni/ledmatrix/internal/transport"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// AppOptions is the dependency graph shared by main and the tests
var AppOptions = fx.Options(
	fx.Provide(
		newLogger,
		config.NewAppConfig,
		domain.NewSystemClock,
		catalog.NewCatalog,
		codec.NewOptions,
		fx.Annotate(codec.NewAuto, fx.As(new(codec.Codec))),
		animate.NewExpander,
		fx.Annotate(transport.NewMQTTTransport, fx.As(new(domain.Transport))),
		metrics.NewRegistry,
		newMetrics,
		scheduler.New,
		status.NewServer,
	),

	// Lifecycle hooks
	fx.Invoke(registerHooks),
)

func main() {
	app := fx.New(
		// Logger configuration
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
		AppOptions,
	)

	// Handle graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Start the application
	if err := app.Start(ctx); err != nil {
		panic(err)
	}

	// Wait for interrupt signal
	<-ctx.Done()

	// Stop the application gracefully
	if err := app.Stop(context.Background()); err != nil {
		panic(err)
	}
}

// newLogger creates a new zap logger instance
func newLogger() (*zap.Logger, error) {
	logger, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return logger, nil
}

// newMetrics registers the scheduler collectors on the application registry
func newMetrics(reg *prometheus.Registry) *metrics.Metrics {
	return metrics.New(reg)
}

// registerHooks sets up application lifecycle hooks
func registerHooks(lc fx.Lifecycle, logger *zap.Logger, sched *scheduler.Scheduler, srv *status.Server) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("LED matrix scheduler daemon started")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Shutting down")
			return nil
		},
	})
	lc.Append(fx.Hook{
		OnStart: srv.Start,
		OnStop:  srv.Stop,
	})
	lc.Append(fx.Hook{
		OnStart: sched.Start,
		OnStop:  sched.Stop,
	})
}
