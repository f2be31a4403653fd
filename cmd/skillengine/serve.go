package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/Feaskye/SkyeAI-sub001/internal/api"
	"github.com/Feaskye/SkyeAI-sub001/internal/config"
	"github.com/Feaskye/SkyeAI-sub001/internal/engine"
	"github.com/Feaskye/SkyeAI-sub001/internal/service"
	"github.com/Feaskye/SkyeAI-sub001/internal/store"
	"github.com/Feaskye/SkyeAI-sub001/internal/telemetry"
	"github.com/Feaskye/SkyeAI-sub001/internal/tool"
)

const telemetryShutdownTimeout = 5 * time.Second

func newServeCmd(root *rootOptions) *cobra.Command {
	var listenAddr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			if listenAddr != "" {
				cfg.ListenAddr = listenAddr
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&listenAddr, "listen", "", "listen address (overrides listen_addr)")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger, closeLog := newLogger(cfg, os.Stderr)
	defer closeLog()

	logger.Info("skillengine: starting",
		"version", version,
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"max_concurrent", cfg.Execution.MaxConcurrent,
	)

	tp, shutdownTracing, err := telemetry.Init(ctx, telemetry.Config{
		Exporter:       cfg.Telemetry.Traces,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure:   cfg.Telemetry.OTLPInsecure,
		ServiceName:    "skillengine",
		ServiceVersion: version,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Error("telemetry shutdown", "error", err)
		}
	}()

	db, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	svc := service.New(service.Options{
		Executor: engine.Config{
			CoreWorkers:        cfg.Execution.CoreWorkers,
			MaxConcurrent:      cfg.Execution.MaxConcurrent,
			QueueSize:          cfg.Execution.QueueSize,
			Timeout:            cfg.Execution.Timeout(),
			RetainedExecutions: cfg.Execution.RetainedExecutions,
			Retention:          cfg.Execution.Retention(),
		},
		Logger:         logger,
		Registerer:     reg,
		TracerProvider: tp,
		History:        db,
	})
	defer svc.Shutdown(cfg.Execution.ShutdownGrace())

	router := tool.NewRouter(tool.NewHTTPInvoker(cfg.Tools.Timeout()))
	router.Register(tool.TypeEcho, tool.EchoInvoker)
	tools := tool.NewAdapter(svc, router, tool.Config{
		RatePerMinute: cfg.Tools.RatePerMinute,
		CacheTTL:      cfg.Tools.CacheTTL(),
	}, logger)
	if err := loadTools(tools, cfg.Tools, logger); err != nil {
		return err
	}

	srv := api.NewServer(cfg.ListenAddr, svc, tools, logger, reg)
	if err := srv.Run(); err != nil {
		return err
	}
	logger.Info("draining executions", "in_flight", svc.Executor().InFlight(), "grace", cfg.Execution.ShutdownGrace())
	return nil
}

// loadTools registers the configured catalogue: the tools file when set,
// else the built-in defaults when enabled.
func loadTools(a *tool.Adapter, cfg config.ToolsConfig, logger *slog.Logger) error {
	var (
		n   int
		err error
	)
	switch {
	case cfg.File != "":
		n, err = a.LoadToolsFromYAML(cfg.File)
	case cfg.LoadDefaults:
		n, err = a.LoadDefaultTools()
	default:
		return nil
	}
	if err != nil {
		return fmt.Errorf("load tools: %w", err)
	}
	logger.Info("tools loaded", "count", n)
	return nil
}
