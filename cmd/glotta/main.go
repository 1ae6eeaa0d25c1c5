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
	Use:   "glotta",
	Short: "Glotta - distributed image translation service",
	Long: `Glotta translates text inside images (manga pages, scanned
documents, screenshots) using the Gemini vision API.

A single binary runs both sides: "glotta serve" starts an instance of
the service with its HTTP API and elastic worker pool, and the client
commands (submit, result, stats, health, languages) talk to a running
server.

Instances coordinate through Redis, so adding capacity is starting
another "glotta serve" pointed at the same store.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Glotta version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(resultCmd)
	rootCmd.AddCommand(languagesCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(credentialsCmd)
}
