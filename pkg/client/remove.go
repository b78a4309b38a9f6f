package client

import (
	"context"
	"fmt"

	stash "github.com/marmos91/stashd/internal/protocol/stash"
)

// Remove deletes remotePath on the server. Files are deleted outright;
// directories only when empty.
//
// Returns the server's status line on success. Refusals (missing path,
// non-empty directory, busy) come back as *ServerError.
func (c *Client) Remove(ctx context.Context, remotePath string) (string, error) {
	cn, err := c.dial(ctx)
	if err != nil {
		return "", err
	}
	defer cn.close()
	stop := cn.watchContext(ctx)
	defer stop()

	if err := cn.writeLine(fmt.Sprintf("%s %s", stash.VerbRm, remotePath)); err != nil {
		return "", fmt.Errorf("send command: %w", err)
	}

	reply, err := cn.readLine()
	if err != nil {
		return "", fmt.Errorf("read status: %w", err)
	}
	if stash.IsError(reply) {
		return "", serverError(reply)
	}
	if !stash.IsSuccess(reply) {
		return "", fmt.Errorf("%w: %q", stash.ErrUnexpectedResponse, reply)
	}

	return reply, nil
}
