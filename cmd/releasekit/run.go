package main

import (
	"context"
	"fmt"
	"os"

	"github.com/ankittk/releasekit/internal/cli"
)

// Run executes the CLI and returns the process exit code.
func Run(ctx context.Context, args []string) int {
	root := cli.NewRootCmd(Version)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		// Runners surface stderr in the step log; keep this to the error itself.
		fmt.Fprintln(os.Stderr, err.Error())
		return 1
	}
	return 0
}
