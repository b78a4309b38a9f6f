package client

import (
	stash "github.com/marmos91/stashd/internal/protocol/stash"
)

// ServerError is an ERROR reply from the server, preserved verbatim.
//
// Use errors.As to distinguish a server-side refusal (invalid path, missing
// file, busy) from transport and protocol failures, which surface as other
// error types.
type ServerError struct {
	// Reply is the full reply line, e.g. "ERROR: File not found 'x'".
	Reply string
}

// Error returns the reply without its ERROR prefix.
func (e *ServerError) Error() string {
	return stash.Detail(e.Reply)
}

// serverError wraps an ERROR reply line. The caller must have checked
// stash.IsError first.
func serverError(reply string) *ServerError {
	return &ServerError{Reply: reply}
}
