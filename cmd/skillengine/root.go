package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Feaskye/SkyeAI-sub001/internal/config"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

type rootOptions struct {
	configFile string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "skillengine",
		Short:         "Skill registry and execution engine",
		Long:          "skillengine registers versioned skills and tools and executes them with bounded concurrency, timeouts and cancellation.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "YAML config file (SKILLS_ environment variables override it)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides log.level)")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newToolsCmd())
	return cmd
}

// load reads the configuration and applies flag overrides.
func (o *rootOptions) load() (*config.Config, error) {
	cfg, err := config.Load(o.configFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	return cfg, nil
}

// newLogger builds the process logger writing to the configured destination,
// or to fallback when no log file is set.
func newLogger(cfg *config.Config, fallback io.Writer) (*slog.Logger, func() error) {
	w, closeFn := cfg.Log.Writer(fallback)
	return config.NewLogger(w, config.ParseLogLevel(cfg.Log.Level), cfg.Log.Format), closeFn
}
