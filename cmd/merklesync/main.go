// Command merklesync runs a sync server or operates a local replica.
package main

import (
	"fmt"
	"os"

	"github.com/c0deZ3R0/go-merkle-sync/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
