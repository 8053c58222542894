// Command perpbot runs one trading cycle or prints the account status. It
// loads configuration, validates it, wires dependencies, sets up signal
// handling, and dispatches to the requested command.
//
// Usage:
//
//	perpbot [flags] cycle    read intents, enforce risk, execute, print the report
//	perpbot [flags] status   print exposure, ledger and recent cycles
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/alanyoungcy/perpbot/internal/app"
	"github.com/alanyoungcy/perpbot/internal/config"
)

// Exit codes.
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
	exitAborted = 3 // the cycle report was written but the cycle stopped early
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to configuration file (defaults only when empty)")
	intentsPath := flag.String("intents", "-", "intents JSON file, - for stdin")
	reportPath := flag.String("report", "-", "report output file, - for stdout")
	regime := flag.String("regime", "", "override the market regime: bull, bear or neutral")
	volatility := flag.String("volatility", "", "override the volatility state: normal or extreme")
	fear := flag.String("fear", "", "fear & greed reading used to derive volatility")
	limit := flag.Int("limit", 10, "rows listed by status")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: perpbot [flags] cycle|status\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		return exitUsage
	}
	command := flag.Arg(0)

	// The report goes to stdout, so logs go to stderr whenever stdout
	// carries JSON output.
	var logOut io.Writer = os.Stdout
	if *reportPath == "-" || command == app.CommandStatus {
		logOut = os.Stderr
	}

	// Setup structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		return exitFailure
	}

	// Set log level from config.
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger = slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	// Validate configuration.
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		return exitFailure
	}
	logger.Debug("configuration loaded", slog.Any("config", config.RedactedConfig(cfg)))

	opts := app.RunOptions{
		Command: command,
		Cycle:   app.CycleOptions{Regime: *regime, Volatility: *volatility},
		Limit:   *limit,
	}
	if *fear != "" {
		f, err := strconv.ParseFloat(*fear, 64)
		if err != nil {
			logger.Error("invalid -fear", slog.String("value", *fear))
			return exitUsage
		}
		opts.Cycle.FearIndex = &f
	}

	in, closeIn, err := openInput(*intentsPath)
	if err != nil {
		logger.Error("failed to open intents", slog.String("error", err.Error()))
		return exitFailure
	}
	defer closeIn()
	opts.Input = in

	out, closeOut, err := openOutput(*reportPath)
	if err != nil {
		logger.Error("failed to open report", slog.String("error", err.Error()))
		return exitFailure
	}
	defer closeOut()
	opts.Output = out

	// Create the application.
	application := app.New(cfg, logger)
	defer application.Close()

	// Setup signal handling for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx, opts); err != nil {
		logger.Error("perpbot exited with error", slog.String("error", err.Error()))
		if errors.Is(err, app.ErrCycleAborted) {
			return exitAborted
		}
		return exitFailure
	}
	return exitOK
}

func openInput(path string) (io.Reader, func(), error) {
	if path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}

func openOutput(path string) (io.Writer, func(), error) {
	if path == "-" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}
