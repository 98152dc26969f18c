// Command eventual2pc runs and drives a bank coordinated by an eventually
// consistent two-phase commit.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/eventual2pc/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
