// Package stash implements the wire protocol spoken between the stash
// server and its clients: a line-framed control channel carrying one
// command per connection, plus raw byte streams for file data.
//
// The protocol has two framing disciplines that must never be conflated:
//
//   - Control messages (command line, READY, SIZE_OK, size declarations,
//     SUCCESS/ERROR terminal lines) are ASCII lines terminated by '\n',
//     read with an accumulate-until-delimiter loop bounded by
//     MaxControlLine.
//   - Data phases are raw byte streams counted against a declared size,
//     transferred in bounded chunks with no delimiter at all.
//
// A control-line reader hands off at the byte following the delimiter, so
// the data phase that follows starts exactly where the control channel
// stopped.
package stash

// Command verbs.
//
// Verbs are case-sensitive and matched exactly. Anything else is rejected
// with an unknown-command error.
const (
	// VerbWrite uploads a file to the server, versioning any existing
	// content at the destination path before overwriting it.
	VerbWrite = "WRITE"

	// VerbGet downloads a file from the server.
	VerbGet = "GET"

	// VerbRm removes a file or empty directory from the server.
	VerbRm = "RM"

	// VerbStop asks the server to shut down gracefully. It is the only
	// verb that takes no path argument.
	VerbStop = "STOP"
)

// Wire size limits.
//
// A command line is "<VERB> <path>\n". The verb and path bounds match the
// fixed parse buffers of the protocol's first implementation; MaxControlLine
// bounds every control message and protects the line reader against
// unframed garbage.
const (
	// MaxVerbLen is the maximum length of a command verb in bytes.
	MaxVerbLen = 31

	// MaxPathLen is the maximum length of a remote path in bytes.
	MaxPathLen = 511

	// MaxControlLine is the maximum length of any control line in bytes,
	// including the trailing newline.
	MaxControlLine = 1024

	// DefaultChunkSize is the chunk size used for data-phase streaming
	// when the caller does not configure one.
	DefaultChunkSize = 8 * 1024
)

// Fixed control messages.
const (
	// MsgReady signals readiness for the next phase. The server sends it
	// to accept a WRITE; the client sends it to start a GET data phase.
	MsgReady = "READY"

	// MsgSizeOK acknowledges a WRITE size declaration.
	MsgSizeOK = "SIZE_OK"
)

// Response tokens. The first token of a terminal line is machine-readable;
// everything after it is human-readable detail.
const (
	// TokenSuccess starts every successful terminal response.
	TokenSuccess = "SUCCESS"

	// TokenError starts every failure response.
	TokenError = "ERROR"
)

// sizeHeaderPrefix starts the GET size announcement: "SIZE <n>".
const sizeHeaderPrefix = "SIZE "
