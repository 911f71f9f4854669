package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	syncErrors "github.com/c0deZ3R0/go-merkle-sync/errors"
)

// NewPutCommand creates the put command.
func NewPutCommand(rootOpts *RootOptions) *cobra.Command {
	var row string

	cmd := &cobra.Command{
		Use:   "put <table> <column=value>...",
		Short: "Record a row locally and sync it",
		Long: `Record one mutation per column=value pair and sync when online.

Values are parsed as JSON when possible (numbers, booleans, null, quoted
strings) and kept as plain strings otherwise.

Example:
  merklesync put todos title=milk done=false
  merklesync put todos --row 7f3c... done=true`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fields, err := parseFields(args[1:])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid fields", err)
			}
			return runPut(cmd, rootOpts, args[0], row, fields)
		},
	}

	cmd.Flags().StringVar(&row, "row", "", "row id (generated when empty)")
	return cmd
}

// parseFields turns column=value arguments into a field map.
func parseFields(args []string) (map[string]any, error) {
	fields := make(map[string]any, len(args))
	for _, arg := range args {
		column, raw, ok := strings.Cut(arg, "=")
		if !ok || column == "" {
			return nil, fmt.Errorf("expected column=value, got %q", arg)
		}
		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			value = raw
		}
		fields[column] = value
	}
	return fields, nil
}

func runPut(cmd *cobra.Command, rootOpts *RootOptions, table, row string, fields map[string]any) error {
	ctx := commandContext(cmd)
	env, err := rootOpts.openReplica(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	id, err := env.coordinator.Record(ctx, table, row, fields)
	if id == "" && err != nil {
		return WrapExitError(ExitCommandError, "failed to record row", err)
	}

	p := rootOpts.printer(cmd.OutOrStdout())
	result := map[string]any{"table": table, "row": id, "synced": err == nil && env.coordinator.Online()}
	if err != nil {
		result["sync_error"] = err.Error()
	}
	if p.json() {
		if perr := p.emit(result); perr != nil {
			return perr
		}
	} else {
		fmt.Fprintf(p.w, "recorded %s/%s\n", table, id)
	}
	if err != nil {
		return syncExitError(err)
	}
	return nil
}

// syncExitError reports a failed sync after a successful local write.
func syncExitError(err error) error {
	if syncErrors.IsSyncStalled(err) {
		return WrapExitError(ExitFailure, "sync stalled", err)
	}
	return WrapExitError(ExitFailure, "sync failed", err)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
