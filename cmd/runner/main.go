// Command runner is the process entrypoint: it loads the JSON
// configuration, builds the runtime root, starts every configured
// exchange adapter, and blocks until SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/coreboth/marketrunner/internal/config"
	"github.com/coreboth/marketrunner/internal/runtime"
)

func main() {
	cfgPath := "configs/config.json"
	if p := os.Getenv("CCB_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		slog.Error("failed to initialize logger", "error", err)
		os.Exit(1)
	}

	rt, err := runtime.New(cfg, logger)
	if err != nil {
		logger.Error("failed to build runtime", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := rt.Start(ctx, nil); err != nil {
		logger.Error("failed to start runtime", "error", err)
		os.Exit(1)
	}

	logger.Info("runner started", "server_id", cfg.ServerID)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	rt.Stop()
}

// newLogger builds the root logger per the LOG config section: console
// mode streams text-formatted records to stdout; file mode writes JSON
// records to path/name, optionally clearing prior history first.
func newLogger(cfg config.LogConfig) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}

	if cfg.Console || cfg.Path == "" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts)), nil
	}

	if cfg.Clear {
		if err := os.RemoveAll(cfg.Path); err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
		return nil, err
	}

	name := cfg.Name
	if name == "" {
		name = "runner.log"
	}
	f, err := os.OpenFile(filepath.Join(cfg.Path, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return slog.New(slog.NewJSONHandler(f, opts)), nil
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
