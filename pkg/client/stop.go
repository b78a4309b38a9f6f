package client

import (
	"context"
	"fmt"

	stash "github.com/marmos91/stashd/internal/protocol/stash"
)

// Stop asks the server to shut down. The server acknowledges first, then
// stops accepting connections and drains running transfers.
//
// A server configured to ignore remote stops answers with an unknown
// command error, which surfaces as *ServerError.
func (c *Client) Stop(ctx context.Context) (string, error) {
	cn, err := c.dial(ctx)
	if err != nil {
		return "", err
	}
	defer cn.close()
	stop := cn.watchContext(ctx)
	defer stop()

	if err := cn.writeLine(stash.VerbStop); err != nil {
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
