package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/c0deZ3R0/go-merkle-sync/replica"
)

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <table> <row>",
		Short: "Tombstone a row and sync it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			env, err := rootOpts.openReplica(ctx)
			if err != nil {
				return err
			}
			defer env.Close()

			table, row := args[0], args[1]
			if _, ok := env.coordinator.State().Row(table, row); !ok {
				return WrapExitError(ExitCommandError, fmt.Sprintf("row %s/%s not found", table, row), nil)
			}

			id, err := env.coordinator.Record(ctx, table, row, map[string]any{replica.TombstoneColumn: true})
			if id == "" && err != nil {
				return WrapExitError(ExitCommandError, "failed to delete row", err)
			}

			p := rootOpts.printer(cmd.OutOrStdout())
			if p.json() {
				result := map[string]any{"table": table, "row": row, "deleted": true}
				if err != nil {
					result["sync_error"] = err.Error()
				}
				if perr := p.emit(result); perr != nil {
					return perr
				}
			} else {
				fmt.Fprintf(p.w, "deleted %s/%s\n", table, row)
			}
			if err != nil {
				return syncExitError(err)
			}
			return nil
		},
	}
}
