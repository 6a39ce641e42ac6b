package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pinglog/pinglog/analyzer/internal/config"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// defaultConfigPath is read when present; --config makes the file mandatory.
const defaultConfigPath = "pinglog.yaml"

// errAlertsFired is returned with --fail-on-alert when at least one rule fired.
var errAlertsFired = errors.New("alerts fired")

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	err := newRootCmd(os.Stderr).ExecuteContext(ctx)
	switch {
	case err == nil:
	case errors.Is(err, errAlertsFired):
		os.Exit(2)
	default:
		fmt.Fprintln(os.Stderr, "pinglog:", err)
		os.Exit(1)
	}
}

// app carries state shared by the subcommands.
type app struct {
	configPath string
	logLevel   string
	logFormat  string

	logOut io.Writer
	level  slog.LevelVar
	cfg    *config.Config
}

func newRootCmd(logOut io.Writer) *cobra.Command {
	a := &app{logOut: logOut}

	root := &cobra.Command{
		Use:   "pinglog",
		Short: "Classify ping logs and report link latency and availability",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.Version = fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	root.SetVersionTemplate("{{.Version}}\n")

	root.PersistentFlags().StringVar(&a.configPath, "config", defaultConfigPath, "path to config file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
	root.PersistentFlags().StringVar(&a.logFormat, "log-format", "", "log format: json or text (overrides config)")

	root.AddCommand(newAnalyzeCmd(a), newTagCmd(a), newRunCmd(a))
	return root
}

// setup loads the config and installs the process logger.
func (a *app) setup(cmd *cobra.Command) error {
	explicit := cmd.Flags().Changed("config")
	cfg, err := config.Load(a.configPath)
	loaded := err == nil
	switch {
	case loaded:
	case !explicit && errors.Is(err, os.ErrNotExist):
		cfg = config.Default()
	default:
		return err
	}

	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Log.Format = a.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	a.level.Set(cfg.Log.SlogLevel())
	opts := &slog.HandlerOptions{Level: &a.level}
	var h slog.Handler = slog.NewJSONHandler(a.logOut, opts)
	if cfg.Log.Format == "text" {
		h = slog.NewTextHandler(a.logOut, opts)
	}
	slog.SetDefault(slog.New(h))

	if loaded {
		slog.Debug("config loaded", "path", a.configPath)
	}
	return nil
}

// watchConfig follows log level changes in the config file until ctx ends.
// The --log-level flag pins the level and disables following.
func (a *app) watchConfig(ctx context.Context) {
	if a.logLevel != "" {
		return
	}
	if _, err := os.Stat(a.configPath); err != nil {
		return
	}
	go func() {
		if err := config.Watch(ctx, a.configPath, func(updated *config.Config) {
			a.level.Set(updated.Log.SlogLevel())
		}); err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()
}
