package commands

import (
	"fmt"
	"os"

	"github.com/marmos91/stashd/pkg/client"
	"golang.org/x/term"
)

// progressPrinter renders in-place transfer progress on stderr when it is a
// terminal, and stays quiet otherwise (piped output, CI logs).
type progressPrinter struct {
	enabled bool
	wrote   bool
}

func newProgressPrinter() *progressPrinter {
	return &progressPrinter{enabled: term.IsTerminal(int(os.Stderr.Fd()))}
}

// callback returns the progress function to hand to the client, or nil when
// progress rendering is disabled.
func (p *progressPrinter) callback() client.ProgressFunc {
	if !p.enabled {
		return nil
	}
	return func(done, total int64) {
		percent := int64(100)
		if total > 0 {
			percent = done * 100 / total
		}
		fmt.Fprintf(os.Stderr, "\rProgress: %d/%d bytes (%d%%)", done, total, percent)
		p.wrote = true
	}
}

// finish terminates the in-place progress line, if any was drawn.
func (p *progressPrinter) finish() {
	if p.wrote {
		fmt.Fprintln(os.Stderr)
		p.wrote = false
	}
}
