// Command ledprinter prints every message on the display bus.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/genricoloni/ledmatrix/internal/config"
	"github.com/genricoloni/ledmatrix/internal/domain"
	"github.com/genricoloni/ledmatrix/internal/inspect"
	"github.com/genricoloni/ledmatrix/internal/notify"
	"github.com/genricoloni/ledmatrix/internal/transport"
	"go.uber.org/zap"
)

func main() {
	topic := flag.String("topic", "ledslie/#", "topic filter to subscribe to")
	dumpDir := flag.String("dump", "", "directory to write display frames to as PNG")
	scale := flag.Int("scale", 4, "upscale factor for dumped frames")
	desktop := flag.Bool("notify", false, "raise desktop notifications for alert programs")
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(logger, *topic, *dumpDir, *scale, *desktop); err != nil {
		logger.Fatal("ledprinter failed", zap.Error(err))
	}
}

func run(logger *zap.Logger, topic, dumpDir string, scale int, desktop bool) error {
	cfg, err := config.NewAppConfig(logger)
	if err != nil {
		return err
	}

	var opts []inspect.Option
	if dumpDir != "" {
		opts = append(opts, inspect.WithDumpDir(dumpDir, scale))
	}
	if desktop {
		client, err := notify.NewStdNotificationClient()
		if err != nil {
			return fmt.Errorf("session bus connection failed: %w", err)
		}
		notifier := notify.NewDesktopNotifier(logger, client)
		defer notifier.Close()
		opts = append(opts, inspect.WithAlerter(notifier))
	}
	inspector := inspect.New(cfg, logger, opts...)

	tr := transport.NewMQTTTransport(cfg, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := tr.Start(ctx); err != nil {
		return err
	}
	defer tr.Stop(context.Background())

	return consume(ctx, logger, tr, topic, inspector)
}

// consume subscribes on every (re)connect and inspects messages until ctx ends
func consume(ctx context.Context, logger *zap.Logger, tr domain.Transport, topic string, inspector *inspect.Inspector) error {
	events := tr.Events()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			switch ev.Kind {
			case domain.EventConnected:
				// Subscribing here renews the subscription after a reconnect
				if err := tr.Subscribe(topic, 0); err != nil {
					logger.Error("Failed to subscribe", zap.String("topic", topic), zap.Error(err))
				}
			case domain.EventDisconnected:
				logger.Warn("Disconnected", zap.Error(ev.Err))
			case domain.EventMessage:
				inspector.Inspect(ev.Message)
			}
		}
	}
}
