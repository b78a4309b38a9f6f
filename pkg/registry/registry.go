// Package registry wires the server's named resources together: the file
// store the protocol operates on, the lock table serializing access to it,
// and the set of transfers currently in flight.
package registry

import (
	"fmt"
	"sync"

	"github.com/marmos91/stashd/pkg/locks"
	"github.com/marmos91/stashd/pkg/store"
)

// Registry manages the server's shared resources: the file store and the
// path-lock table. It provides thread-safe registration and lookup so
// adapters can be constructed independently of resource setup order.
//
// The Registry also tracks in-flight transfers (uploads and downloads
// currently streaming). Transfer information is ephemeral and kept
// in-memory only.
//
// Example usage:
//
//	reg := registry.NewRegistry()
//	reg.RegisterFileStore(fileStore)
//	reg.RegisterLockTable(locks.NewTable(100))
//
//	st, _ := reg.FileStore()
//	tbl, _ := reg.LockTable()
type Registry struct {
	mu        sync.RWMutex
	store     *store.Store
	locks     *locks.Table
	transfers map[string]*TransferInfo // key: connID, value: transfer info
}

// TransferInfo represents one in-flight upload or download.
type TransferInfo struct {
	ConnID     string // Connection identifier
	ClientAddr string // Client IP address or IP:port
	Verb       string // Protocol verb driving the transfer
	Path       string // Client-visible path being transferred
	StartedAt  int64  // Unix timestamp when the transfer began
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		transfers: make(map[string]*TransferInfo),
	}
}

// RegisterFileStore sets the file store the protocol operates on.
// Returns an error if a store is already registered.
func (r *Registry) RegisterFileStore(s *store.Store) error {
	if s == nil {
		return fmt.Errorf("cannot register nil file store")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.store != nil {
		return fmt.Errorf("file store already registered")
	}

	r.store = s
	return nil
}

// FileStore returns the registered file store.
// Returns an error if no store has been registered yet.
func (r *Registry) FileStore() (*store.Store, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.store == nil {
		return nil, fmt.Errorf("no file store registered")
	}
	return r.store, nil
}

// RegisterLockTable sets the path-lock table requests serialize on.
// Returns an error if a table is already registered.
func (r *Registry) RegisterLockTable(t *locks.Table) error {
	if t == nil {
		return fmt.Errorf("cannot register nil lock table")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.locks != nil {
		return fmt.Errorf("lock table already registered")
	}

	r.locks = t
	return nil
}

// LockTable returns the registered path-lock table.
// Returns an error if no table has been registered yet.
func (r *Registry) LockTable() (*locks.Table, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.locks == nil {
		return nil, fmt.Errorf("no lock table registered")
	}
	return r.locks, nil
}

// Validate checks that every resource an adapter needs is registered.
// Called by the server before accepting connections.
func (r *Registry) Validate() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.store == nil {
		return fmt.Errorf("no file store registered")
	}
	if r.locks == nil {
		return fmt.Errorf("no lock table registered")
	}
	return nil
}

// ============================================================================
// Transfer Tracking
// ============================================================================

// RecordTransfer registers an in-flight transfer for the given connection.
func (r *Registry) RecordTransfer(connID, clientAddr, verb, path string, startedAt int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.transfers[connID] = &TransferInfo{
		ConnID:     connID,
		ClientAddr: clientAddr,
		Verb:       verb,
		Path:       path,
		StartedAt:  startedAt,
	}
}

// RemoveTransfer removes the transfer record for the given connection.
// Returns true if a record was removed, false if none existed.
func (r *Registry) RemoveTransfer(connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.transfers[connID]; exists {
		delete(r.transfers, connID)
		return true
	}
	return false
}

// ListTransfers returns all in-flight transfer records.
// The returned slice is a copy and safe to modify.
func (r *Registry) ListTransfers() []*TransferInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	transfers := make([]*TransferInfo, 0, len(r.transfers))
	for _, t := range r.transfers {
		transfers = append(transfers, &TransferInfo{
			ConnID:     t.ConnID,
			ClientAddr: t.ClientAddr,
			Verb:       t.Verb,
			Path:       t.Path,
			StartedAt:  t.StartedAt,
		})
	}
	return transfers
}

// CountTransfers returns the number of in-flight transfers.
func (r *Registry) CountTransfers() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.transfers)
}
