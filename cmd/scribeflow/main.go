// Command scribeflow runs the dictation scheduling daemon and talks to a
// running daemon over its HTTP API.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "scribeflow",
	Short:         "Priority-aware dispatch for clinician dictation jobs",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	rootCmd.AddCommand(serveCmd, submitCmd, statusCmd, inputCmd, cancelCmd, watchCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "scribeflow:", err)
		os.Exit(1)
	}
}
