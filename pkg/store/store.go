// Package store implements the root-jailed file store behind the protocol
// handlers: canonical path resolution, parent directory creation, overwrite
// versioning, and the open/create/remove primitives the wire operations
// translate into.
package store

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Store provides file access confined to a single root directory.
//
// All client-visible paths resolve to canonical locations under the root;
// a path that would escape it is rejected before any I/O happens. Path
// resolution is purely lexical: symlinks inside the tree are neither
// followed nor rejected, and the canonical path is what the lock table
// keys on.
//
// Thread Safety:
// The store itself holds no mutable state. Callers serialize operations on
// the same path through the lock table; operations on distinct paths are
// safe to run concurrently.
type Store struct {
	root string
}

// New creates a file store rooted at the given directory.
//
// The root is resolved to an absolute path and created (with permissions
// 0755) if it doesn't exist.
//
// Context Cancellation:
// This operation checks the context before creating the directory.
//
// Parameters:
//   - ctx: Context for cancellation and timeouts
//   - rootDir: Directory all client paths resolve under
//
// Returns:
//   - *Store: Initialized store
//   - error: Returns error if directory creation fails or context is cancelled
func New(ctx context.Context, rootDir string) (*Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	root, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root directory: %w", err)
	}

	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create root directory: %w", err)
	}

	return &Store{root: root}, nil
}

// Root returns the absolute root directory of the store.
func (s *Store) Root() string {
	return s.root
}

// Resolve maps a client-supplied path to its canonical location under the
// root. The canonical path doubles as the lock-table key, so two spellings
// of the same location ("a//b", "./a/b", "/a/b") always collapse to one
// entry.
//
// Leading slashes are stripped rather than rejected: clients naturally
// write absolute-looking remote paths. A path whose ".." segments would
// climb out of the root fails with ErrInvalidPath.
func (s *Store) Resolve(remotePath string) (string, error) {
	trimmed := strings.TrimLeft(remotePath, "/")
	abs := filepath.Clean(filepath.Join(s.root, trimmed))

	if abs != s.root && !strings.HasPrefix(abs, s.root+string(filepath.Separator)) {
		return "", &StoreError{
			Code:    ErrInvalidPath,
			Message: "path escapes the store root",
			Path:    remotePath,
		}
	}
	return abs, nil
}

// EnsureParents creates every missing ancestor directory of the given
// canonical path, with permissions 0755.
//
// The operation is idempotent: concurrent calls for paths sharing ancestors
// are safe because os.MkdirAll tolerates directories that already exist, so
// no cross-path serialization is needed.
//
// Context Cancellation:
// This operation checks the context before touching the filesystem.
func (s *Store) EnsureParents(ctx context.Context, absPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
		return &StoreError{
			Code:    ErrIOError,
			Message: "failed to create parent directories",
			Path:    absPath,
		}
	}
	return nil
}

// Open opens a canonical path for reading and reports its size.
//
// The caller is responsible for closing the returned ReadCloser when done.
// The size is captured at open time; a concurrent truncation afterwards
// shows up as a short read, not as an error from Open.
//
// Context Cancellation:
// This operation checks the context before statting the file.
//
// Parameters:
//   - ctx: Context for cancellation and timeouts
//   - absPath: Canonical path from Resolve
//
// Returns:
//   - io.ReadCloser: Reader for the file content (must be closed by caller)
//   - int64: File size in bytes at open time
//   - error: StoreError with ErrNotFound, ErrIsDirectory or ErrIOError
func (s *Store) Open(ctx context.Context, absPath string) (io.ReadCloser, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	// ========================================================================
	// Step 1: Stat first so missing files and directories get distinct errors
	// ========================================================================

	info, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, &StoreError{
				Code:    ErrNotFound,
				Message: "file not found",
				Path:    absPath,
			}
		}
		return nil, 0, &StoreError{
			Code:    ErrIOError,
			Message: "failed to stat file",
			Path:    absPath,
		}
	}
	if info.IsDir() {
		return nil, 0, &StoreError{
			Code:    ErrIsDirectory,
			Message: "path is a directory",
			Path:    absPath,
		}
	}

	// ========================================================================
	// Step 2: Open for streaming
	// ========================================================================

	file, err := os.Open(absPath)
	if err != nil {
		return nil, 0, &StoreError{
			Code:    ErrIOError,
			Message: "failed to open file",
			Path:    absPath,
		}
	}

	return file, info.Size(), nil
}

// VersionExisting moves an existing regular file at absPath out of the way
// before an overwrite, renaming it to "<absPath>.v<N>" with the smallest N
// (starting at 1) not already taken. Earlier backups are never touched, so
// repeated overwrites accumulate an ordered chain: .v1 is the oldest
// content, .v2 the next, and the live file the newest.
//
// Returns the backup path, or "" when nothing needed versioning (the target
// is absent, or is a directory and will fail at create time instead).
//
// The rename happens strictly before the destination is truncated; if it
// fails, the original file is still intact and the caller must abort the
// overwrite.
//
// Context Cancellation:
// This operation checks the context before touching the filesystem.
func (s *Store) VersionExisting(ctx context.Context, absPath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	// ========================================================================
	// Step 1: Only existing regular files get a backup
	// ========================================================================

	info, err := os.Lstat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", &StoreError{
			Code:    ErrIOError,
			Message: "failed to stat file",
			Path:    absPath,
		}
	}
	if info.IsDir() {
		return "", nil
	}

	// ========================================================================
	// Step 2: Find the smallest free version number
	// ========================================================================

	var backup string
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s.v%d", absPath, n)
		if _, err := os.Lstat(candidate); err != nil {
			if !os.IsNotExist(err) {
				return "", &StoreError{
					Code:    ErrIOError,
					Message: "failed to stat version backup",
					Path:    candidate,
				}
			}
			backup = candidate
			break
		}
	}

	// ========================================================================
	// Step 3: Rename the live file into the backup slot
	// ========================================================================

	if err := os.Rename(absPath, backup); err != nil {
		return "", &StoreError{
			Code:    ErrIOError,
			Message: "failed to rename to version backup",
			Path:    absPath,
		}
	}

	return backup, nil
}

// Create opens a canonical path for writing, creating it if missing and
// truncating it if present, with permissions 0644.
//
// Callers version the previous content with VersionExisting first; Create
// itself is destructive.
//
// Context Cancellation:
// This operation checks the context before opening the file.
func (s *Store) Create(ctx context.Context, absPath string) (io.WriteCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(absPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, &StoreError{
			Code:    ErrIOError,
			Message: "failed to create file",
			Path:    absPath,
		}
	}
	return file, nil
}

// Remove deletes the file or empty directory at a canonical path.
//
// A non-empty directory is left intact and fails with ErrNotEmpty; a
// missing path fails with ErrNotFound.
//
// Context Cancellation:
// This operation checks the context before removing.
func (s *Store) Remove(ctx context.Context, absPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.Remove(absPath); err != nil {
		if os.IsNotExist(err) {
			return &StoreError{
				Code:    ErrNotFound,
				Message: "file not found",
				Path:    absPath,
			}
		}

		// os.Remove reports ENOTEMPTY through a platform-dependent error;
		// checking the directory contents directly is portable.
		if entries, readErr := os.ReadDir(absPath); readErr == nil && len(entries) > 0 {
			return &StoreError{
				Code:    ErrNotEmpty,
				Message: "directory not empty",
				Path:    absPath,
			}
		}

		return &StoreError{
			Code:    ErrIOError,
			Message: "failed to remove",
			Path:    absPath,
		}
	}
	return nil
}
