package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "mvccstore",
	Short: "An MVCC transaction engine over a partitioned in-memory record store",
	Long: `An in-memory, partitioned record store with a multi-version
concurrency control transaction engine, exercised through a TPC-C-style
benchmark harness.`,
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("couldn't execute app,", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(benchCmd)
	rootCmd.AddCommand(serveCmd)
}
