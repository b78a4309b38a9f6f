package client

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	stash "github.com/marmos91/stashd/internal/protocol/stash"
)

// Get downloads remotePath from the server into localPath, creating parent
// directories of localPath as needed. An existing local file is truncated.
//
// Wire sequence:
//
//	-> GET <remotePath>
//	<- SIZE <n>            (or an ERROR line)
//	-> READY
//	<- n raw bytes
//
// There is no trailing status line: the byte count is the contract. If the
// connection drops before the declared size arrives, the partial local file
// is kept and the error wraps ErrShortTransfer.
func (c *Client) Get(ctx context.Context, remotePath, localPath string, opts TransferOptions) (*TransferStats, error) {
	cn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer cn.close()
	stop := cn.watchContext(ctx)
	defer stop()

	start := time.Now()

	if err := cn.writeLine(fmt.Sprintf("%s %s", stash.VerbGet, remotePath)); err != nil {
		return nil, fmt.Errorf("send command: %w", err)
	}

	reply, err := cn.readLine()
	if err != nil {
		return nil, fmt.Errorf("read size header: %w", err)
	}
	if stash.IsError(reply) {
		return nil, serverError(reply)
	}

	size, err := stash.ParseSizeHeader(reply)
	if err != nil {
		return nil, err
	}

	// Touch the local filesystem only after the server agreed to send.
	if dir := filepath.Dir(localPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create local directory: %w", err)
		}
	}

	dst, err := os.Create(localPath)
	if err != nil {
		return nil, fmt.Errorf("create local file: %w", err)
	}

	if err := cn.writeLine(stash.MsgReady); err != nil {
		_ = dst.Close()
		return nil, fmt.Errorf("send acknowledgment: %w", err)
	}

	received, copyErr := stash.CopyExactly(dst, cn.payloadReader(), size, c.config.ChunkSize,
		progressAdapter(opts, size))

	closeErr := dst.Close()

	if copyErr != nil {
		return nil, fmt.Errorf("receive download: %w", copyErr)
	}
	if closeErr != nil {
		return nil, fmt.Errorf("close local file: %w", closeErr)
	}

	return &TransferStats{
		Bytes:    received,
		Duration: time.Since(start),
	}, nil
}
