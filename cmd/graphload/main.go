package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Build-time variables set via ldflags.
var (
	version = "0.1.0"
	commit  = ""
)

var flagConfig string

func versionString() string {
	if commit != "" {
		return fmt.Sprintf("graphload version %s (commit: %s)", version, commit)
	}
	return fmt.Sprintf("graphload version %s-dev", version)
}

func main() {
	rootCmd := &cobra.Command{
		Use:          "graphload",
		Short:        "Load relational rows into a Neo4j graph from a declarative model",
		Version:      versionString(),
		SilenceUsage: true,
	}
	rootCmd.SetVersionTemplate("{{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "YAML config file (env overrides apply on top)")

	rootCmd.AddCommand(newLoadCmd())
	rootCmd.AddCommand(newValidateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
