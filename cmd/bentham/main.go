package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "bentham",
	Short: "Bentham - AI surface visibility measurement",
	Long: `Bentham executes declarative prompt studies across AI surfaces:
submit a manifest of queries, surfaces, and locations, and the service
runs every cell of the matrix with retries, failover, and circuit
breaking, then serves per-cell results and cost accounting over a
tenant-scoped API.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Bentham version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))
}
