// Package main is the entry point for the postraft-facade binary
package main

import (
	"os"

	"postraft-facade/cmd"
)

// version is set at build time via ldflags
var version = "dev"

func main() {
	cmd.SetVersion(version)
	if err := cmd.Execute(); err != nil {
		os.Exit(cmd.ReportError(err))
	}
}
