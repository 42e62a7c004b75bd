package main

import (
	"fmt"
	"os"

	"github.com/tphakala/transcriptor-go/cmd"
	"github.com/tphakala/transcriptor-go/internal/conf"
	"github.com/tphakala/transcriptor-go/internal/logging"
)

// version and buildDate are set by the build process
var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	logging.Init()

	settings, err := conf.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}
	settings.Version = version
	settings.BuildDate = buildDate

	rootCmd := cmd.RootCommand(settings)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
