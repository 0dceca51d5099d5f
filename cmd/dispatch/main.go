package main

import (
	"os"

	"github.com/cschleiden/go-dispatch/cmd/dispatch/cmd"
)

// Set at build time
var (
	version = "dev"
	commit  = "none"
)

func main() {
	cmd.SetVersion(version, commit)

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
