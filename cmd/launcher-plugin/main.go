// Command launcher-plugin is a job launcher plugin that talks to the launcher
// over stdin/stdout and runs processes through the sandbox helper.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/mattjoyce/launcher-plugin/internal/process"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	// Must run before anything else: a re-executed child stops here.
	process.RunChildInitIfRequested()

	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(args []string) int {
	cmd := newRootCmd()
	cmd.SetArgs(args)

	if err := cmd.Execute(); err != nil {
		var exitErr *exitCodeError
		if errors.As(err, &exitErr) {
			return exitErr.code
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// exitCodeError makes the CLI exit with a specific status without printing.
type exitCodeError struct {
	code int
}

func (e *exitCodeError) Error() string { return fmt.Sprintf("exit status %d", e.code) }
