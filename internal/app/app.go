// Package app provides the top-level application lifecycle for perpbot. It
// wires together the stores, caches, venue client, engine, governor and
// cycle runner and dispatches to the requested command.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/perpbot/internal/config"
)

// Commands accepted by Run.
const (
	CommandCycle  = "cycle"
	CommandStatus = "status"
)

// RunOptions selects the command and its streams.
type RunOptions struct {
	Command string
	Input   io.Reader // intents for the cycle command
	Output  io.Writer // report or status JSON
	Cycle   CycleOptions
	Limit   int // rows listed by the status command
}

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires all dependencies and executes one command. Resources are
// released by Close.
func (a *App) Run(ctx context.Context, opts RunOptions) error {
	a.logger.InfoContext(ctx, "app: starting",
		slog.String("command", opts.Command),
		slog.String("execution_mode", a.cfg.Execution.Mode),
		slog.String("store", a.cfg.Store.Backend),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	switch strings.ToLower(opts.Command) {
	case CommandCycle:
		return a.CycleMode(ctx, deps, opts.Input, opts.Output, opts.Cycle)
	case CommandStatus:
		limit := opts.Limit
		if limit <= 0 {
			limit = 10
		}
		return a.StatusMode(ctx, deps, opts.Output, limit)
	default:
		return fmt.Errorf("app: unsupported command %q", opts.Command)
	}
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
