// Squidlet executable entry point. All behavior lives in internal/cli;
// main only maps errors to process exit codes.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/thesquid/thesquid/internal/cli"
)

func main() {
	if err := cli.BuildSquidletCLI().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "squidlet: %v\n", err)
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}
