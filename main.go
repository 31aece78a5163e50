// Package main is the entry point for the jcsh shell.
package main

import (
	"errors"
	"fmt"
	"os"

	"jcsh/cmd"
)

// Build information injected via ldflags at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	versionString := fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)
	cmd.SetVersion(versionString)
	if err := cmd.Execute(); err != nil {
		var exitErr *cmd.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code & 0xff)
		}
		fmt.Fprintf(os.Stderr, "jcsh: %v\n", err)
		os.Exit(1)
	}
}
