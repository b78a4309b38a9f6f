package stash

import (
	"fmt"
	"strings"
)

// Terminal response constructors.
//
// Every terminal line starts with a machine-readable token (SUCCESS or
// ERROR) followed by human-readable detail. The exact texts below are part
// of the wire contract; clients display them verbatim.

// SuccessWritten is the terminal response for a completed WRITE.
func SuccessWritten() string {
	return "SUCCESS: File written successfully"
}

// SuccessRemoved is the terminal response for a completed RM.
func SuccessRemoved(path string) string {
	return fmt.Sprintf("SUCCESS: Removed '%s'", path)
}

// SuccessStopping acknowledges a STOP before the server begins draining.
func SuccessStopping() string {
	return "SUCCESS: Server stopping"
}

// ErrorInvalidFormat rejects an empty or unparseable command line.
func ErrorInvalidFormat() string {
	return "ERROR: Invalid command format"
}

// ErrorMissingPath rejects a WRITE, GET or RM without a path argument.
func ErrorMissingPath() string {
	return "ERROR: Missing remote path"
}

// ErrorUnknownCommand rejects a verb outside the protocol.
func ErrorUnknownCommand(verb string) string {
	return fmt.Sprintf("ERROR: Unknown command '%s'", verb)
}

// ErrorInvalidPath rejects a path that escapes the server root.
func ErrorInvalidPath(path string) string {
	return fmt.Sprintf("ERROR: Invalid path '%s'", path)
}

// ErrorFileNotFound reports a GET or RM against a missing path.
func ErrorFileNotFound(path string) string {
	return fmt.Sprintf("ERROR: File not found '%s'", path)
}

// ErrorIsDirectory reports a GET against a directory.
func ErrorIsDirectory(path string) string {
	return fmt.Sprintf("ERROR: Path is a directory '%s'", path)
}

// ErrorDirNotEmpty reports an RM against a non-empty directory.
func ErrorDirNotEmpty(path string) string {
	return fmt.Sprintf("ERROR: Directory not empty '%s'", path)
}

// ErrorCreateDirectory reports a failure to create missing parent
// directories during a WRITE.
func ErrorCreateDirectory() string {
	return "ERROR: Failed to create directory"
}

// ErrorCannotCreate reports a failure to version or create the WRITE
// destination.
func ErrorCannotCreate(path string) string {
	return fmt.Sprintf("ERROR: Cannot create file '%s'", path)
}

// ErrorCannotOpen reports a failure to open the GET source.
func ErrorCannotOpen(path string) string {
	return fmt.Sprintf("ERROR: Cannot open file '%s'", path)
}

// ErrorCannotRemove reports a failure to unlink the RM target.
func ErrorCannotRemove(path string) string {
	return fmt.Sprintf("ERROR: Cannot remove '%s'", path)
}

// ErrorInvalidSize rejects a malformed or negative size declaration.
func ErrorInvalidSize() string {
	return "ERROR: Invalid file size"
}

// ErrorServerBusy reports lock-table exhaustion. The request may be
// retried by the client once load subsides; the server never queues it.
func ErrorServerBusy() string {
	return "ERROR: Server busy, try again later"
}

// IsSuccess reports whether a terminal line carries the SUCCESS token.
func IsSuccess(line string) bool {
	return firstToken(line) == TokenSuccess
}

// IsError reports whether a terminal line carries the ERROR token.
func IsError(line string) bool {
	return firstToken(line) == TokenError
}

// Detail strips the leading token and separator from a terminal line,
// returning the human-readable remainder. Lines without a recognized
// token come back unchanged.
func Detail(line string) string {
	line = strings.TrimSpace(line)
	token := firstToken(line)
	if token != TokenSuccess && token != TokenError {
		return line
	}
	rest := line[len(token):]
	rest = strings.TrimPrefix(rest, ":")
	return strings.TrimSpace(rest)
}

// firstToken returns the leading token of a terminal line, tolerating
// both "TOKEN:" and bare "TOKEN" forms.
func firstToken(line string) string {
	line = strings.TrimSpace(line)
	end := len(line)
	for i, r := range line {
		if r == ':' || r == ' ' {
			end = i
			break
		}
	}
	return line[:end]
}
