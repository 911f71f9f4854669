package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/c0deZ3R0/go-merkle-sync/synckit"
)

// SyncOptions holds flags for the sync command.
type SyncOptions struct {
	*RootOptions
	Watch    bool
	Interval time.Duration
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile the local replica with the server",
		Long: `Reconcile the local replica with the server once, or with --watch keep
syncing on an interval until interrupted. Retryable failures are retried
with exponential backoff while watching.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.Watch, "watch", "w", false, "keep syncing until interrupted")
	cmd.Flags().DurationVar(&opts.Interval, "interval", 30*time.Second, "interval between syncs with --watch")
	return cmd
}

func runSync(cmd *cobra.Command, opts *SyncOptions) error {
	ctx := commandContext(cmd)
	env, err := opts.openReplica(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	if !env.hasServer {
		return WrapExitError(ExitCommandError, "cannot sync", errNoServer)
	}
	// an explicit sync runs even when the config marks the replica offline
	env.coordinator.SetOnline(true)

	p := opts.printer(cmd.OutOrStdout())
	if opts.Watch {
		return watch(cmd, opts, env, p)
	}

	result, err := env.coordinator.Sync(ctx)
	if err != nil {
		return syncExitError(err)
	}
	return printResult(p, result)
}

func watch(cmd *cobra.Command, opts *SyncOptions, env *replicaEnv, p printer) error {
	env.coordinator.Subscribe(func(result *synckit.SyncResult) {
		_ = printResult(p, result)
	})

	auto, err := synckit.NewAutoSync(env.coordinator, opts.Interval, nil)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid watch settings", err)
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := auto.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return auto.Stop()
}

func printResult(p printer, result *synckit.SyncResult) error {
	if p.json() {
		return p.emit(map[string]any{
			"rounds":      result.Rounds,
			"sent":        result.Sent,
			"received":    result.Received,
			"applied":     result.Applied,
			"skipped":     result.Skipped,
			"duration_ms": result.Duration.Milliseconds(),
		})
	}
	_, err := fmt.Fprintf(p.w, "synced in %d rounds: sent %d, received %d (%d applied, %d skipped) in %s\n",
		result.Rounds, result.Sent, result.Received, result.Applied, result.Skipped, result.Duration)
	return err
}
