package stash

import "errors"

// Protocol parsing and framing errors.
//
// These sentinels classify violations of the wire contract. Callers wrap
// them with context via fmt.Errorf("...: %w", err) and classify with
// errors.Is.
var (
	// ErrInvalidFormat indicates an empty or unparseable command line.
	ErrInvalidFormat = errors.New("invalid command format")

	// ErrUnknownVerb indicates a syntactically valid command line whose
	// verb is not one of WRITE, GET, RM, STOP.
	ErrUnknownVerb = errors.New("unknown command")

	// ErrMissingPath indicates a verb that requires a path was sent
	// without one.
	ErrMissingPath = errors.New("missing remote path")

	// ErrLineTooLong indicates a control line exceeded MaxControlLine
	// before a delimiter arrived.
	ErrLineTooLong = errors.New("control line too long")

	// ErrInvalidSize indicates a size declaration that is not a
	// non-negative decimal integer.
	ErrInvalidSize = errors.New("invalid file size")

	// ErrShortTransfer indicates a data phase ended before the declared
	// byte count was reached.
	ErrShortTransfer = errors.New("transfer ended before declared size")

	// ErrUnexpectedResponse indicates a control line that does not match
	// what the protocol state machine expects at this point.
	ErrUnexpectedResponse = errors.New("unexpected response")
)
