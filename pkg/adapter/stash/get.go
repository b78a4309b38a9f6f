package stash

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/marmos91/stashd/internal/logger"
	stash "github.com/marmos91/stashd/internal/protocol/stash"
	"github.com/marmos91/stashd/pkg/store"
)

// handleGet runs the download exchange.
//
// Wire sequence (client side on the left):
//
//	GET <path>   ->
//	             <-  SIZE <n>         (or ERROR, abort)
//	READY        ->
//	             <-  <n raw bytes>
//
// There is no terminal status line after the data: the exchange ends when
// the declared byte count has been streamed. If the file shrinks between
// the stat and the read, the stream simply ends early and the client sees
// the missing bytes as a closed connection.
func (c *StashConnection) handleGet(ctx context.Context, st *store.Store, remotePath, absPath string) error {
	src, size, err := st.Open(ctx, absPath)
	if err != nil {
		var serr *store.StoreError
		if errors.As(err, &serr) {
			switch serr.Code {
			case store.ErrNotFound:
				_ = c.writeLine(stash.ErrorFileNotFound(remotePath))
			case store.ErrIsDirectory:
				_ = c.writeLine(stash.ErrorIsDirectory(remotePath))
			default:
				_ = c.writeLine(stash.ErrorCannotOpen(remotePath))
			}
		} else {
			_ = c.writeLine(stash.ErrorCannotOpen(remotePath))
		}
		return err
	}
	defer src.Close()

	if err := c.writeLine(stash.FormatSizeHeader(size)); err != nil {
		return err
	}

	ready, err := c.readLine()
	if err != nil {
		return fmt.Errorf("read client acknowledgment: %w", err)
	}
	if ready != stash.MsgReady {
		return fmt.Errorf("unexpected acknowledgment %q, want %q", ready, stash.MsgReady)
	}

	c.server.registry.RecordTransfer(c.connID, c.conn.RemoteAddr().String(),
		stash.VerbGet, remotePath, time.Now().Unix())
	defer c.server.registry.RemoveTransfer(c.connID)

	sent, copyErr := stash.CopyExactly(c.payloadWriter(), src, size,
		c.server.config.ChunkSize, nil)

	c.server.metrics.RecordBytesTransferred("download", sent)

	if copyErr != nil {
		return fmt.Errorf("stream download: %w", copyErr)
	}

	logger.Debug("Download complete",
		logger.KeyConnID, c.connID,
		logger.KeyPath, remotePath,
		logger.KeyBytesWritten, sent)

	return nil
}
