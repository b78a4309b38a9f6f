package commands

import (
	"fmt"
	"path"
	"time"

	"github.com/marmos91/stashd/pkg/client"
	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get REMOTE_PATH [LOCAL_FILE]",
	Short: "Download a file from the server",
	Long: `Download a file from the server.

When LOCAL_FILE is omitted, the file is saved in the current directory
under its remote base name. Parent directories of LOCAL_FILE are created
when missing.

Examples:
  # Download into the current directory as test.txt
  stashctl get folder/test.txt

  # Download to an explicit local path
  stashctl get folder/test.txt downloads/copy.txt`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runGet,
}

func runGet(cmd *cobra.Command, args []string) error {
	remotePath := args[0]
	localPath := path.Base(remotePath)
	if len(args) == 2 {
		localPath = args[1]
	}

	ctx, cancel := commandContext()
	defer cancel()

	fmt.Printf("Fetching %s to %s\n", remotePath, localPath)

	progress := newProgressPrinter()
	stats, err := newClient().Get(ctx, remotePath, localPath, client.TransferOptions{
		Progress: progress.callback(),
	})
	progress.finish()
	if err != nil {
		return err
	}

	fmt.Printf("Saved %s (%d bytes in %s)\n",
		localPath, stats.Bytes, stats.Duration.Round(time.Millisecond))
	return nil
}
