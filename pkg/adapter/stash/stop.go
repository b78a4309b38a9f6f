package stash

import (
	"context"
	"errors"

	"github.com/marmos91/stashd/internal/logger"
	stash "github.com/marmos91/stashd/internal/protocol/stash"
)

// handleStop acknowledges a remote shutdown request and triggers a graceful
// stop of the whole server. The acknowledgment is written first so the
// client gets its answer before listeners start closing; this connection
// then drains like any other during shutdown.
//
// When remote stop is disabled in the configuration the verb is reported
// as unknown, indistinguishable from a server built without it.
func (c *StashConnection) handleStop(ctx context.Context) error {
	if !c.server.config.AllowRemoteStop {
		logger.Warn("Remote stop requested but disabled",
			logger.KeyConnID, c.connID,
			logger.KeyClientIP, c.conn.RemoteAddr().String())
		_ = c.writeLine(stash.ErrorUnknownCommand(stash.VerbStop))
		return errors.New("remote stop disabled")
	}

	if err := c.writeLine(stash.SuccessStopping()); err != nil {
		return err
	}

	logger.Info("Remote stop accepted",
		logger.KeyConnID, c.connID,
		logger.KeyClientIP, c.conn.RemoteAddr().String())

	c.server.requestRemoteStop()
	return nil
}
