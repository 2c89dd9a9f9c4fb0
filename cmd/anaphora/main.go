// Command anaphora runs suites of nested test blocks and inspects the
// recorded results.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/anaphora/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "anaphora:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
