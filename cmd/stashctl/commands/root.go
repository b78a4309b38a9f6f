// Package commands implements the CLI commands for the stashctl client.
package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/marmos91/stashd/pkg/client"
	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global connection flags.
	flagHost    string
	flagPort    int
	flagTimeout time.Duration
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "stashctl",
	Short: "Stashctl - Stash protocol client",
	Long: `stashctl is the command-line client for stashd servers.

It uploads, downloads and removes files over the stash protocol, and can
stop a remote server that allows it. Each command is a single exchange on
a fresh connection.

Use "stashctl [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	// Global persistent flags
	rootCmd.PersistentFlags().StringVar(&flagHost, "host", "127.0.0.1", "Server hostname or IP")
	rootCmd.PersistentFlags().IntVar(&flagPort, "port", 2000, "Server port")
	rootCmd.PersistentFlags().DurationVar(&flagTimeout, "timeout", 5*time.Minute, "I/O timeout for a stalled exchange")

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(writeCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(completionCmd)

	// Hide the default completion command (we provide our own)
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// newClient builds a stash client from the global connection flags.
func newClient() *client.Client {
	return client.New(client.Config{
		Host:      flagHost,
		Port:      flagPort,
		IOTimeout: flagTimeout,
	})
}

// commandContext returns a context cancelled by SIGINT or SIGTERM, so an
// in-flight transfer aborts cleanly on Ctrl+C.
func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
