package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/ledlink/internal/app"
	"github.com/dokzlo13/ledlink/internal/config"
	"github.com/dokzlo13/ledlink/internal/notify"
	"github.com/dokzlo13/ledlink/internal/tui"
)

const defaultConfigPath = "config.yaml"

func main() {
	// Support both -c and --config for config path
	var configPath string
	flag.StringVar(&configPath, "config", defaultConfigPath, "Path to configuration file")
	flag.StringVar(&configPath, "c", defaultConfigPath, "Path to configuration file (shorthand)")
	address := flag.String("address", "", "Device address, overrides the saved one")
	logFile := flag.String("log-file", "", "Write logs to this file (tui logs are discarded otherwise)")
	historyLimit := flag.Int("n", 20, "Number of ledger entries printed by the history command")
	flag.Usage = usage
	flag.Parse()

	command := "run"
	if flag.NArg() > 0 {
		command = flag.Arg(0)
	}

	// Load configuration
	cfg, err := loadConfig(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *address != "" {
		cfg.Device.Address = *address
	}

	// Setup logging
	out, closeLog := logOutput(command, *logFile)
	defer closeLog()
	setupLogging(out, cfg.Log.Level, cfg.Log.JSON, cfg.Log.Colors)

	switch command {
	case "run":
		err = run(cfg, configPath)
	case "tui":
		err = runTUI(cfg)
	case "discover":
		err = discover(cfg)
	case "history":
		err = history(cfg, *historyLimit)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatal().Err(err).Str("command", command).Msg("Command failed")
	}
}

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] [run|tui|discover|history]\n\n", os.Args[0])
	flag.PrintDefaults()
}

// loadConfig reads the configuration file. A missing default file yields the defaults.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, fs.ErrNotExist) && path == defaultConfigPath {
		return config.Parse(nil)
	}
	return cfg, err
}

func run(cfg *config.Config, configPath string) error {
	log.Info().Str("config", configPath).Msg("Starting ledlink")

	application, err := app.New(cfg)
	if err != nil {
		return err
	}

	// Create context that cancels on shutdown signal
	ctx := app.SignalContext()

	if err := application.Start(ctx); err != nil {
		return err
	}

	// Wait for shutdown
	waitErr := application.Wait()
	return errors.Join(waitErr, application.Stop())
}

func runTUI(cfg *config.Config) error {
	application, err := app.New(cfg)
	if err != nil {
		return err
	}

	events := make(chan notify.Event, 64)
	application.Bus().SubscribeAll(func(e notify.Event) {
		select {
		case events <- e:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := application.Start(ctx); err != nil {
		return err
	}

	program := tea.NewProgram(tui.NewModel(application.Session(), events), tea.WithAltScreen(), tea.WithContext(ctx))
	_, runErr := program.Run()
	if errors.Is(runErr, tea.ErrProgramKilled) {
		runErr = nil
	}

	if err := application.Stop(); err != nil {
		log.Error().Err(err).Msg("Error during shutdown")
	}
	return runErr
}

func discover(cfg *config.Config) error {
	cfg.Device.AutoConnect = false
	cfg.API.Enabled = false

	application, err := app.New(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(app.SignalContext())
	defer cancel()
	if err := application.Start(ctx); err != nil {
		return err
	}
	defer application.Stop()

	address, err := application.Session().Discover(ctx)
	if err != nil {
		return err
	}
	fmt.Println(address)
	return nil
}

func history(cfg *config.Config, limit int) error {
	cfg.Device.AutoConnect = false
	cfg.API.Enabled = false

	application, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer application.Stop()

	entries, err := application.Ledger().Recent(limit)
	if err != nil {
		return err
	}
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		fmt.Printf("%s  %-8s %-10s %s\n", e.Timestamp.Format(time.RFC3339), e.Level, e.EventType, e.Message)
	}
	return nil
}

// logOutput picks the log destination. The terminal UI owns stderr, so its
// logs go to the log file or nowhere.
func logOutput(command, path string) (io.Writer, func()) {
	if path == "" {
		if command == "tui" {
			return io.Discard, func() {}
		}
		return os.Stderr, func() {}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("Failed to open log file")
	}
	return f, func() { f.Close() }
}

func setupLogging(out io.Writer, level string, useJSON bool, colors bool) {
	// ISO 8601 format with timezone
	zerolog.TimeFieldFormat = time.RFC3339

	if useJSON {
		// JSON output for production
		log.Logger = zerolog.New(out).With().Timestamp().Logger()
	} else {
		// Text output (with optional colors)
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: "2006-01-02T15:04:05.000Z07:00",
			NoColor:    !colors,
		})
	}

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
