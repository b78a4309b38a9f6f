package stash

import (
	"context"
	"fmt"
	"time"

	"github.com/marmos91/stashd/internal/logger"
	stash "github.com/marmos91/stashd/internal/protocol/stash"
	"github.com/marmos91/stashd/pkg/store"
)

// handleWrite runs the upload exchange.
//
// Wire sequence (client side on the left):
//
//	WRITE <path>      ->
//	                  <-  READY            (or ERROR, abort)
//	<size>            ->
//	                  <-  SIZE_OK          (or ERROR: Invalid file size)
//	<size raw bytes>  ->
//	                  <-  SUCCESS / ERROR
//
// Parent directories are created before READY, so the client never streams
// bytes toward a destination that cannot exist. Versioning the previous
// content and truncating the destination happen only after the size is
// agreed; a failed version rename aborts before anything is destroyed.
//
// A short upload (client gone mid-stream) is a fatal abort: the partial
// file stays on disk, no terminal line is sent, the connection just closes.
func (c *StashConnection) handleWrite(ctx context.Context, st *store.Store, remotePath, absPath string) error {
	if err := st.EnsureParents(ctx, absPath); err != nil {
		_ = c.writeLine(stash.ErrorCreateDirectory())
		return err
	}

	if err := c.writeLine(stash.MsgReady); err != nil {
		return err
	}

	sizeLine, err := c.readLine()
	if err != nil {
		return fmt.Errorf("read size declaration: %w", err)
	}
	size, err := stash.ParseSize(sizeLine)
	if err != nil {
		_ = c.writeLine(stash.ErrorInvalidSize())
		return err
	}

	if err := c.writeLine(stash.MsgSizeOK); err != nil {
		return err
	}

	c.server.registry.RecordTransfer(c.connID, c.conn.RemoteAddr().String(),
		stash.VerbWrite, remotePath, time.Now().Unix())
	defer c.server.registry.RemoveTransfer(c.connID)

	backup, err := st.VersionExisting(ctx, absPath)
	if err != nil {
		_ = c.writeLine(stash.ErrorCannotCreate(remotePath))
		return err
	}
	if backup != "" {
		c.server.metrics.RecordVersionCreated()
		logger.Debug("Versioned existing file",
			logger.KeyConnID, c.connID,
			logger.KeyPath, remotePath,
			logger.KeyVersion, backup)
	}

	dst, err := st.Create(ctx, absPath)
	if err != nil {
		_ = c.writeLine(stash.ErrorCannotCreate(remotePath))
		return err
	}

	received, copyErr := stash.CopyExactly(dst, c.payloadReader(), size,
		c.server.config.ChunkSize, nil)
	closeErr := dst.Close()

	c.server.metrics.RecordBytesTransferred("upload", received)

	if copyErr != nil {
		return fmt.Errorf("receive upload: %w", copyErr)
	}
	if closeErr != nil {
		_ = c.writeLine(stash.ErrorCannotCreate(remotePath))
		return fmt.Errorf("close destination: %w", closeErr)
	}

	logger.Debug("Upload complete",
		logger.KeyConnID, c.connID,
		logger.KeyPath, remotePath,
		logger.KeyBytesRead, received)

	return c.writeLine(stash.SuccessWritten())
}
