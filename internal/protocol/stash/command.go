package stash

import (
	"fmt"
	"strings"
)

// Command is one parsed client request.
//
// The protocol allows exactly one command per connection; the verb decides
// which exchange follows the command line.
type Command struct {
	// Verb is the operation to perform: WRITE, GET, RM or STOP.
	Verb string

	// Path is the remote path the operation targets, relative to the
	// server's root directory. Empty for STOP.
	Path string
}

// ParseCommand parses a command line into a Command.
//
// The line is tokenized on whitespace: the first token is the verb, the
// second (when present) the path. Tokens beyond the second are ignored,
// matching the original parse behavior. The trailing newline must already
// have been stripped by the line reader.
//
// Validation rules:
//   - an empty or whitespace-only line fails with ErrInvalidFormat
//   - a verb longer than MaxVerbLen or a path longer than MaxPathLen
//     fails with ErrInvalidFormat
//   - a verb that is not WRITE, GET, RM or STOP fails with ErrUnknownVerb
//   - WRITE, GET and RM without a path fail with ErrMissingPath
//
// On an ErrUnknownVerb failure the returned Command still carries the
// offending verb so the caller can echo it in the error response.
func ParseCommand(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, ErrInvalidFormat
	}

	verb := fields[0]
	if len(verb) > MaxVerbLen {
		return Command{}, fmt.Errorf("verb exceeds %d bytes: %w", MaxVerbLen, ErrInvalidFormat)
	}

	var path string
	if len(fields) > 1 {
		path = fields[1]
	}
	if len(path) > MaxPathLen {
		return Command{Verb: verb}, fmt.Errorf("path exceeds %d bytes: %w", MaxPathLen, ErrInvalidFormat)
	}

	switch verb {
	case VerbWrite, VerbGet, VerbRm:
		if path == "" {
			return Command{Verb: verb}, ErrMissingPath
		}
		return Command{Verb: verb, Path: path}, nil

	case VerbStop:
		// STOP takes no argument; anything after the verb is ignored.
		return Command{Verb: VerbStop}, nil

	default:
		return Command{Verb: verb}, fmt.Errorf("%w %q", ErrUnknownVerb, verb)
	}
}
