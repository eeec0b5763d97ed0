package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/udisondev/gradestats/internal/config"
	"github.com/udisondev/gradestats/internal/data"
	"github.com/udisondev/gradestats/internal/host"
	"github.com/udisondev/gradestats/internal/progression"
	"github.com/udisondev/gradestats/internal/stat"
)

const ConfigPath = "config/statsim.yaml"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfgPath := ConfigPath
	if p := os.Getenv("STATSIM_CONFIG_PATH"); p != "" {
		cfgPath = p
	}
	cfg, err := config.LoadStatSim(cfgPath)
	if err != nil {
		return fmt.Errorf("loading statsim config: %w", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	})))

	registry, err := data.LoadDir(ctx, cfg.DataDir)
	if err != nil {
		return fmt.Errorf("loading stats definitions: %w", err)
	}
	statsCfg, err := registry.Get(cfg.Config)
	if err != nil {
		return err
	}

	var opts []host.Option
	var w *wallet
	if cfg.Budget > 0 {
		w = &wallet{balance: cfg.Budget}
		opts = append(opts, host.WithPayer(w))
	}

	h, err := host.New(statsCfg, opts...)
	if err != nil {
		return fmt.Errorf("creating host: %w", err)
	}
	defer h.Close()

	observe(h)

	for _, b := range cfg.Buffs {
		m := stat.Add(b.Value).WithSource(b.Source)
		if err := h.AttachModifier(b.Stat, m); err != nil {
			return fmt.Errorf("attaching buff %q: %w", b.Source, err)
		}
	}

	if err := simulate(ctx, h, cfg.Upgrades); err != nil {
		return err
	}
	report(h, w)

	if !cfg.Watch {
		return nil
	}
	return watch(ctx, registry, cfg.DataDir, h, w)
}

// observe logs every stat change and grade advance of h.
func observe(h *host.Host) {
	for _, name := range h.Names() {
		s, _ := h.Stat(name)
		s.Changed().Subscribe(func(c stat.Change) {
			slog.Debug("stat changed",
				"stat", c.Stat,
				"before", c.Before,
				"after", c.After,
				"delta", c.Delta)
		})
	}
	h.GradeChanged().Subscribe(func(c stat.GradeChange) {
		slog.Info("grade advanced", "from", c.Before, "to", c.After, "free", c.Free)
	})
	h.ConfigChanged().Subscribe(func(c *progression.Config) {
		slog.Info("config changed", "config", c.Name(), "max_grade", c.MaxGrade())
	})
}

// simulate upgrades h n times, or to max grade when n is 0. It stops early
// when the payer runs out.
func simulate(ctx context.Context, h *host.Host, n int) error {
	for i := 0; n == 0 || i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if h.Grade() >= h.MaxGrade() {
			break
		}
		if !h.CanUpgrade() {
			slog.Info("upgrade not affordable", "grade", h.Grade())
			break
		}
		if err := h.UpgradeGrade(); err != nil {
			slog.Warn("upgrade failed", "grade", h.Grade(), "err", err)
		}
	}
	return nil
}

func report(h *host.Host, w *wallet) {
	attrs := []any{"config", h.Config().Name(), "grade", h.Grade(), "max_grade", h.MaxGrade()}
	for _, name := range h.Names() {
		v, _ := h.Value(name)
		attrs = append(attrs, name, v)
	}
	if w != nil {
		attrs = append(attrs, "balance", w.balance)
	}
	slog.Info("final stats", attrs...)
}

// watch reloads definitions on SIGHUP until ctx is done. Reloads run on this
// goroutine, the only one touching h.
func watch(ctx context.Context, registry *data.Registry, dir string, h *host.Host, w *wallet) error {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	slog.Info("watching definitions, send SIGHUP to reload", "dir", dir)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-hup:
			if err := registry.Reload(ctx, dir); err != nil {
				slog.Error("reload failed", "err", err)
				continue
			}
			report(h, w)
		}
	}
}

// parseLogLevel converts string log level to slog.Level.
// Defaults to Info if invalid or empty.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
