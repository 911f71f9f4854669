package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/c0deZ3R0/go-merkle-sync/hlc"
)

// NewClockCommand creates the clock command.
func NewClockCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clock",
		Short: "Print the replica's hybrid logical clock",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			env, err := rootOpts.openReplica(ctx)
			if err != nil {
				return err
			}
			defer env.Close()

			c := env.coordinator.Clock()
			state := env.coordinator.State()
			p := rootOpts.printer(cmd.OutOrStdout())
			if p.json() {
				return p.emit(map[string]any{
					"node_id":   c.NodeID,
					"group_id":  env.coordinator.GroupID(),
					"timestamp": hlc.Pack(c),
					"logical":   c.Logical,
					"counter":   c.Counter,
					"messages":  state.Len(),
					"merkle":    state.Trie().Hash(),
					"online":    env.coordinator.Online(),
				})
			}
			fmt.Fprintf(p.w, "node      %s\n", c.NodeID)
			fmt.Fprintf(p.w, "group     %s\n", env.coordinator.GroupID())
			fmt.Fprintf(p.w, "timestamp %s\n", hlc.Pack(c))
			fmt.Fprintf(p.w, "messages  %d\n", state.Len())
			fmt.Fprintf(p.w, "merkle    %d\n", state.Trie().Hash())
			return nil
		},
	}
}
