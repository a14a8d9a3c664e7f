// Command rdsync runs and inspects reactive entity synchronization.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/rdsync/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
