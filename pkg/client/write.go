package client

import (
	"context"
	"fmt"
	"os"
	"time"

	stash "github.com/marmos91/stashd/internal/protocol/stash"
)

// Write uploads the file at localPath to remotePath on the server.
//
// Wire sequence:
//
//	-> WRITE <remotePath>
//	<- READY
//	-> <size>
//	<- SIZE_OK
//	-> size raw bytes
//	<- SUCCESS: File written successfully
//
// If the remote file already exists the server versions it before
// overwriting, so a completed Write never destroys the previous content.
//
// Returns the transfer stats on success. Server refusals (invalid path,
// busy, unwritable target) come back as *ServerError; a reply outside the
// protocol comes back wrapping ErrUnexpectedResponse.
func (c *Client) Write(ctx context.Context, localPath, remotePath string, opts TransferOptions) (*TransferStats, error) {
	src, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("open local file: %w", err)
	}
	defer func() { _ = src.Close() }()

	info, err := src.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat local file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("local path %q is a directory", localPath)
	}
	size := info.Size()

	cn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer cn.close()
	stop := cn.watchContext(ctx)
	defer stop()

	start := time.Now()

	if err := cn.writeLine(fmt.Sprintf("%s %s", stash.VerbWrite, remotePath)); err != nil {
		return nil, fmt.Errorf("send command: %w", err)
	}

	reply, err := cn.readLine()
	if err != nil {
		return nil, fmt.Errorf("read acknowledgment: %w", err)
	}
	if stash.IsError(reply) {
		return nil, serverError(reply)
	}
	if reply != stash.MsgReady {
		return nil, fmt.Errorf("%w: %q, want %q", stash.ErrUnexpectedResponse, reply, stash.MsgReady)
	}

	if err := cn.writeLine(stash.FormatSize(size)); err != nil {
		return nil, fmt.Errorf("send size declaration: %w", err)
	}

	reply, err = cn.readLine()
	if err != nil {
		return nil, fmt.Errorf("read size acknowledgment: %w", err)
	}
	if stash.IsError(reply) {
		return nil, serverError(reply)
	}
	if reply != stash.MsgSizeOK {
		return nil, fmt.Errorf("%w: %q, want %q", stash.ErrUnexpectedResponse, reply, stash.MsgSizeOK)
	}

	sent, err := stash.CopyExactly(cn.payloadWriter(), src, size, c.config.ChunkSize,
		progressAdapter(opts, size))
	if err != nil {
		return nil, fmt.Errorf("send upload: %w", err)
	}

	// The server replies only after it received and closed the full upload.
	reply, err = cn.readLine()
	if err != nil {
		return nil, fmt.Errorf("read final status: %w", err)
	}
	if stash.IsError(reply) {
		return nil, serverError(reply)
	}
	if !stash.IsSuccess(reply) {
		return nil, fmt.Errorf("%w: %q", stash.ErrUnexpectedResponse, reply)
	}

	return &TransferStats{
		Bytes:    sent,
		Duration: time.Since(start),
		Message:  reply,
	}, nil
}
