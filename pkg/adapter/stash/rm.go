package stash

import (
	"context"
	"errors"

	stash "github.com/marmos91/stashd/internal/protocol/stash"
	"github.com/marmos91/stashd/pkg/store"
)

// handleRm removes a file or an empty directory and reports the outcome on
// a single status line. Non-empty directories are left intact.
func (c *StashConnection) handleRm(ctx context.Context, st *store.Store, remotePath, absPath string) error {
	if err := st.Remove(ctx, absPath); err != nil {
		var serr *store.StoreError
		if errors.As(err, &serr) {
			switch serr.Code {
			case store.ErrNotFound:
				_ = c.writeLine(stash.ErrorFileNotFound(remotePath))
			case store.ErrNotEmpty:
				_ = c.writeLine(stash.ErrorDirNotEmpty(remotePath))
			default:
				_ = c.writeLine(stash.ErrorCannotRemove(remotePath))
			}
		} else {
			_ = c.writeLine(stash.ErrorCannotRemove(remotePath))
		}
		return err
	}

	return c.writeLine(stash.SuccessRemoved(remotePath))
}
