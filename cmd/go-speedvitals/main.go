// Package main provides the entry point for the SpeedVitals CLI
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/mrz1836/go-speedvitals/cmd/go-speedvitals/cmd"
)

func main() {
	os.Exit(run(nil))
}

// run executes the main application logic and returns the exit code.
// args overrides os.Args when not nil.
func run(args []string) int {
	buildInfo := NewBuildInfo()

	// Get version and add modified suffix if there are uncommitted changes
	version := buildInfo.Version()
	if buildInfo.IsModified() && !strings.HasSuffix(version, "-dirty") {
		version += "-dirty"
	}

	// Create CLI application with dependency injection
	app := cmd.NewCLIApp(version, buildInfo.Commit(), buildInfo.BuildDate())
	builder := cmd.NewCommandBuilder(app)

	var err error
	if args == nil {
		err = builder.Execute()
	} else {
		err = builder.ExecuteContext(context.Background(), args)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
