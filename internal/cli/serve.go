package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/c0deZ3R0/go-merkle-sync/logging"
	"github.com/c0deZ3R0/go-merkle-sync/metrics"
	"github.com/c0deZ3R0/go-merkle-sync/synckit"
	"github.com/c0deZ3R0/go-merkle-sync/transport/httptransport"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr    string
	Metrics bool
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the sync server",
		Long: `Run the aggregating sync server over HTTP.

Every group is merged and persisted in the configured storage. Clients
POST to /sync; /healthz answers liveness probes and, with --metrics,
/metrics exposes Prometheus metrics.

Example:
  merklesync serve --addr :8006
  MERKLESYNC_STORAGE_DRIVER=sqlite MERKLESYNC_STORAGE_DSN=./server.db merklesync serve --metrics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (overrides server.addr)")
	cmd.Flags().BoolVar(&opts.Metrics, "metrics", false, "expose /metrics (overrides server.metrics)")

	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	cfg, err := opts.config()
	if err != nil {
		return err
	}
	if opts.Addr != "" {
		cfg.Server.Addr = opts.Addr
	}
	if opts.Metrics {
		cfg.Server.Metrics = true
	}

	logger, level := newLogger(cfg)
	store, err := openStore(cfg, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open storage", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			logger.Error("error closing store", slog.String("error", closeErr.Error()))
		}
	}()

	aggOpts := []synckit.AggregatorOption{synckit.WithAggregatorLogger(logger)}
	serverOpts := []httptransport.ServerOption{
		httptransport.WithServerLogger(logger),
		httptransport.WithMaxRequestSize(cfg.Server.MaxRequestBytes),
		httptransport.WithCompression(cfg.Server.CompressionEnabled()),
		httptransport.WithRequestTimeout(cfg.Server.ReadTimeout),
		httptransport.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
	}
	if cfg.Server.Metrics {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		aggOpts = append(aggOpts, synckit.WithAggregatorMetrics(metrics.NewCollector(reg)))
		serverOpts = append(serverOpts, httptransport.WithMetricsGatherer(reg))
	}

	server, err := httptransport.NewServer(synckit.NewAggregator(store, aggOpts...), serverOpts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create server", err)
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	go watchLogLevel(ctx, opts.RootOptions, level, logger)

	logger.Info("starting sync server",
		slog.String("addr", cfg.Server.Addr),
		slog.String("storage", cfg.Storage.Driver),
		slog.Bool("metrics", cfg.Server.Metrics))

	if err := server.ListenAndServe(ctx, cfg.Server.Addr); err != nil {
		return WrapExitError(ExitCommandError, "server failed", err)
	}
	logger.Info("sync server stopped")
	return nil
}

// watchLogLevel re-reads the config on SIGHUP and applies its log level.
func watchLogLevel(ctx context.Context, opts *RootOptions, level *logging.DynamicLevelVar, logger *logging.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := reloadLogLevel(opts, level); err != nil {
				logger.LogError(ctx, err, "log level reload failed")
				continue
			}
			logger.InfoContext(ctx, "log level reloaded", slog.String("level", level.Level().String()))
		}
	}
}

func reloadLogLevel(opts *RootOptions, level *logging.DynamicLevelVar) error {
	cfg, err := opts.config()
	if err != nil {
		return err
	}
	if !level.SetFromString(cfg.Logging.Level) {
		return fmt.Errorf("unknown log level %q", cfg.Logging.Level)
	}
	return nil
}
