// sctrace loads a session config, wires its channels to the probe hub
// and records admitted syscall events until interrupted.
//
// The hub is fed by a built-in replay source: real tracepoint plumbing
// lives outside this engine, so the binary doubles as an end-to-end
// smoke test of the filtering path.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/sctrace/sctrace/config"
	"github.com/sctrace/sctrace/filter"
	"github.com/sctrace/sctrace/probes"
	"github.com/sctrace/sctrace/recorder"
	"github.com/sctrace/sctrace/syscalls"
)

func main() {
	l, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to get zap production logger: %v", err)
	}

	logger := l.Sugar()
	defer l.Sync()

	if len(os.Args) < 2 {
		fmt.Println("usage: sctrace /path/to/session.toml")
		os.Exit(1)
	}

	cfg, err := config.Load(os.Args[1])
	if err != nil {
		logger.Fatalw("failed to load session config", "path", os.Args[1], "err", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, unix.SIGTERM)
	defer cancel()

	if err := run(ctx, logger, cfg); err != nil {
		logger.Fatalw("session failed", "err", err)
	}
}

func run(ctx context.Context, logger *zap.SugaredLogger, cfg *config.Config) error {
	catalog := syscalls.Load()
	hub := probes.NewHub()
	rec := recorder.New(logger, catalog)

	channels := make([]*filter.Channel, 0, len(cfg.Channels))

	for _, cc := range cfg.Channels {
		ch := filter.NewChannel(logger.With("channel", cc.Name), catalog, hub, rec)

		if err := ch.Register(); err != nil {
			return fmt.Errorf("failed to register channel %q: %w", cc.Name, err)
		}

		enablers, err := cc.Enablers()
		if err != nil {
			return fmt.Errorf("failed to build enablers for %q: %w", cc.Name, err)
		}

		if err := ch.Reconcile(enablers); err != nil {
			return fmt.Errorf("failed to reconcile channel %q: %w", cc.Name, err)
		}

		channels = append(channels, ch)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return replay(ctx, hub, catalog)
	})

	logger.Infow("session running", "channels", len(channels))

	if err := g.Wait(); err != nil {
		return fmt.Errorf("replay source failed: %w", err)
	}

	for _, ch := range channels {
		ch.Unregister()

		if err := ch.Destroy(); err != nil {
			return fmt.Errorf("failed to destroy channel: %w", err)
		}
	}

	rec.LogStats()

	if cfg.Output != "" {
		if err := dumpCSV(rec, cfg.Output); err != nil {
			return err
		}

		logger.Infow("wrote recorder stats", "path", cfg.Output)
	}

	return nil
}

// replay walks the native syscall table firing entry/exit pairs at the
// hub until the context is cancelled.
func replay(ctx context.Context, hub *probes.Hub, catalog *syscalls.Catalog) error {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()

	nr := 0
	n := catalog.Len(syscalls.NativeEntry)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		hub.Enter(false, nr)
		hub.Exit(false, nr)

		nr = (nr + 1) % n
	}
}

func dumpCSV(rec *recorder.Recorder, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create stats file: %w", err)
	}
	defer f.Close()

	if err := rec.WriteCSV(f); err != nil {
		return fmt.Errorf("failed to write stats: %w", err)
	}

	return nil
}
