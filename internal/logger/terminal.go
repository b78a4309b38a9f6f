package logger

import "golang.org/x/term"

// isTerminal reports whether fd is attached to a terminal. Colored output
// is only enabled when it is.
func isTerminal(fd uintptr) bool {
	return term.IsTerminal(int(fd))
}
