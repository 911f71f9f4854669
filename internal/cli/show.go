package cli

import (
	"github.com/spf13/cobra"
)

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	var withDeleted bool

	cmd := &cobra.Command{
		Use:   "show [table]...",
		Short: "Print the rows of the local replica",
		Long: `Print the materialized rows of the local replica.

Without arguments every table is printed. Tombstoned rows are hidden
unless --deleted is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			env, err := rootOpts.openReplica(ctx)
			if err != nil {
				return err
			}
			defer env.Close()

			state := env.coordinator.State()
			tables := args
			if len(tables) == 0 {
				tables = state.Tables()
			}

			p := rootOpts.printer(cmd.OutOrStdout())
			for _, table := range tables {
				rows := state.Rows(table)
				if withDeleted {
					rows = allRows(state.RowIDs(table), func(id string) (map[string]any, bool) { return state.Row(table, id) })
				}
				if err := p.table(table, rows); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&withDeleted, "deleted", false, "include tombstoned rows")
	return cmd
}

func allRows(ids []string, get func(string) (map[string]any, bool)) map[string]map[string]any {
	rows := make(map[string]map[string]any, len(ids))
	for _, id := range ids {
		if row, ok := get(id); ok {
			rows[id] = row
		}
	}
	return rows
}
