package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rmCmd = &cobra.Command{
	Use:   "rm REMOTE_PATH",
	Short: "Remove a file or empty directory on the server",
	Long: `Remove a file or an empty directory on the server.

Non-empty directories are refused; remove their contents first.

Examples:
  stashctl rm folder/test.txt
  stashctl rm folder`,
	Args: cobra.ExactArgs(1),
	RunE: runRm,
}

func runRm(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	msg, err := newClient().Remove(ctx, args[0])
	if err != nil {
		return err
	}

	fmt.Println(msg)
	return nil
}
