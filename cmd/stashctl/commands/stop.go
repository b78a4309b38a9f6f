package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the remote server",
	Long: `Ask the server to shut down gracefully.

The server acknowledges, stops accepting new connections, and drains
in-flight transfers before exiting. Servers started with
allow_remote_stop disabled refuse the command.`,
	Args: cobra.NoArgs,
	RunE: runStop,
}

func runStop(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	msg, err := newClient().Stop(ctx)
	if err != nil {
		return err
	}

	fmt.Println(msg)
	return nil
}
