package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the calmux application
var rootCmd = &cobra.Command{
	Use:   "calmux",
	Short: "Calendar multiplexer for chat scheduling assistants",
	Long: `calmux aggregates the Google calendars of several accounts behind one
interface. It lists and searches events across accounts, detects duplicates
before creating events, edits recurring series by scope and commits proposed
schedules.

It can run as:
  - An MCP (Model Context Protocol) server for AI assistants (serve)
  - A command-line tool for one-off operations (calendars, commit)`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "calmux version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newCalendarsCmd())
	rootCmd.AddCommand(newCommitCmd())
	rootCmd.AddCommand(newVersionCmd())
}
