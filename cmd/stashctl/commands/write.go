package commands

import (
	"fmt"
	"time"

	"github.com/marmos91/stashd/pkg/client"
	"github.com/spf13/cobra"
)

var writeCmd = &cobra.Command{
	Use:   "write LOCAL_FILE [REMOTE_PATH]",
	Short: "Upload a file to the server",
	Long: `Upload a local file to the server.

When REMOTE_PATH is omitted, the file is stored under the same path it has
locally. Parent directories are created on the server as needed, and an
existing remote file is preserved as a numbered version before being
overwritten.

Examples:
  # Upload under the same path
  stashctl write notes.txt

  # Upload to an explicit remote path
  stashctl write data/local.txt folder/remote.txt`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runWrite,
}

func runWrite(cmd *cobra.Command, args []string) error {
	localPath := args[0]
	remotePath := localPath
	if len(args) == 2 {
		remotePath = args[1]
	}

	ctx, cancel := commandContext()
	defer cancel()

	fmt.Printf("Uploading %s to %s\n", localPath, remotePath)

	progress := newProgressPrinter()
	stats, err := newClient().Write(ctx, localPath, remotePath, client.TransferOptions{
		Progress: progress.callback(),
	})
	progress.finish()
	if err != nil {
		return err
	}

	fmt.Printf("%s (%d bytes in %s)\n",
		stats.Message, stats.Bytes, stats.Duration.Round(time.Millisecond))
	return nil
}
