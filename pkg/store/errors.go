package store

// StoreError represents a domain error from file store operations.
//
// These are business logic errors (file not found, directory not empty,
// etc.) as opposed to infrastructure errors (network failure, parse error).
//
// Protocol handlers translate StoreError codes to wire-level status lines;
// the codes themselves stay protocol-agnostic.
type StoreError struct {
	// Code is the error category
	Code ErrorCode

	// Message is a human-readable error description
	Message string

	// Path is the filesystem path related to the error (if applicable)
	// This helps with debugging and error reporting
	Path string
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e.Path != "" {
		return e.Message + ": " + e.Path
	}
	return e.Message
}

// ErrorCode represents the category of a store error.
type ErrorCode int

const (
	// ErrInvalidPath indicates the path escapes the store root or cannot
	// be resolved to a canonical location
	ErrInvalidPath ErrorCode = iota

	// ErrNotFound indicates the requested file or directory doesn't exist
	ErrNotFound

	// ErrIsDirectory indicates the operation expected a file but got a
	// directory
	ErrIsDirectory

	// ErrNotEmpty indicates a directory is not empty (cannot be removed)
	ErrNotEmpty

	// ErrIOError indicates an I/O failure
	// Used for errors creating directories, opening, renaming or removing
	// files
	ErrIOError
)
