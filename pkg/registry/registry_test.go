package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/stashd/pkg/locks"
	"github.com/marmos91/stashd/pkg/store"
)

func newTestFileStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(context.Background(), t.TempDir())
	require.NoError(t, err)
	return s
}

func TestResourceRegistration(t *testing.T) {
	t.Run("RegisterAndLookup", func(t *testing.T) {
		reg := NewRegistry()
		fs := newTestFileStore(t)
		tbl := locks.NewTable(10)

		require.NoError(t, reg.RegisterFileStore(fs))
		require.NoError(t, reg.RegisterLockTable(tbl))

		gotStore, err := reg.FileStore()
		require.NoError(t, err)
		assert.Same(t, fs, gotStore)

		gotLocks, err := reg.LockTable()
		require.NoError(t, err)
		assert.Same(t, tbl, gotLocks)
	})

	t.Run("LookupBeforeRegistrationFails", func(t *testing.T) {
		reg := NewRegistry()

		_, err := reg.FileStore()
		assert.Error(t, err)

		_, err = reg.LockTable()
		assert.Error(t, err)
	})

	t.Run("NilRegistrationRejected", func(t *testing.T) {
		reg := NewRegistry()
		assert.Error(t, reg.RegisterFileStore(nil))
		assert.Error(t, reg.RegisterLockTable(nil))
	})

	t.Run("DoubleRegistrationRejected", func(t *testing.T) {
		reg := NewRegistry()
		require.NoError(t, reg.RegisterFileStore(newTestFileStore(t)))
		assert.Error(t, reg.RegisterFileStore(newTestFileStore(t)))
	})

	t.Run("Validate", func(t *testing.T) {
		reg := NewRegistry()
		assert.Error(t, reg.Validate())

		require.NoError(t, reg.RegisterFileStore(newTestFileStore(t)))
		assert.Error(t, reg.Validate())

		require.NoError(t, reg.RegisterLockTable(locks.NewTable(10)))
		assert.NoError(t, reg.Validate())
	})
}

func TestTransferTracking(t *testing.T) {
	reg := NewRegistry()
	now := time.Now().Unix()

	reg.RecordTransfer("conn-1", "10.0.0.5:41234", "WRITE", "docs/a.txt", now)
	reg.RecordTransfer("conn-2", "10.0.0.6:41235", "GET", "docs/b.txt", now)

	assert.Equal(t, 2, reg.CountTransfers())

	transfers := reg.ListTransfers()
	assert.Len(t, transfers, 2)

	// Mutating the returned slice must not leak into the registry.
	transfers[0].Path = "mutated"
	for _, tr := range reg.ListTransfers() {
		assert.NotEqual(t, "mutated", tr.Path)
	}

	assert.True(t, reg.RemoveTransfer("conn-1"))
	assert.False(t, reg.RemoveTransfer("conn-1"))
	assert.Equal(t, 1, reg.CountTransfers())
}
