package stash

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ReadLine reads one control line from r.
//
// Bytes are accumulated until the '\n' delimiter arrives, so a control
// message fragmented across several TCP segments is reassembled correctly.
// The returned line has the delimiter stripped (a preceding '\r' is also
// dropped, which keeps manual telnet sessions usable).
//
// Returns:
//   - ErrLineTooLong if MaxControlLine bytes arrive without a delimiter
//   - io.EOF if the stream ends cleanly before any byte of a line
//   - io.ErrUnexpectedEOF if the stream ends mid-line
//
// The reader is positioned exactly one byte past the delimiter, so a data
// phase can continue on the same bufio.Reader without losing bytes.
func ReadLine(r *bufio.Reader) (string, error) {
	var sb strings.Builder
	for {
		b, err := r.ReadByte()
		if err != nil {
			if err == io.EOF && sb.Len() > 0 {
				return "", io.ErrUnexpectedEOF
			}
			return "", err
		}
		if b == '\n' {
			return strings.TrimSuffix(sb.String(), "\r"), nil
		}
		sb.WriteByte(b)
		if sb.Len() >= MaxControlLine {
			return "", ErrLineTooLong
		}
	}
}

// WriteLine writes one control line to w, appending the delimiter.
//
// The line and its delimiter go out in a single Write call, one control
// message per transmission.
func WriteLine(w io.Writer, line string) error {
	buf := make([]byte, 0, len(line)+1)
	buf = append(buf, line...)
	buf = append(buf, '\n')
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write control line: %w", err)
	}
	return nil
}

// FormatSize renders a WRITE size declaration: the bare decimal byte count.
func FormatSize(n int64) string {
	return strconv.FormatInt(n, 10)
}

// ParseSize parses a WRITE size declaration.
//
// The declaration must be a non-negative decimal integer; anything else
// fails with ErrInvalidSize. A garbled size line never parses as zero.
func ParseSize(line string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(line), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, line)
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidSize, n)
	}
	return n, nil
}

// FormatSizeHeader renders a GET size announcement: "SIZE <n>".
func FormatSizeHeader(n int64) string {
	return sizeHeaderPrefix + strconv.FormatInt(n, 10)
}

// ParseSizeHeader parses a GET size announcement.
//
// Returns ErrUnexpectedResponse if the line is not a SIZE header at all
// (the caller should check for an ERROR line first), or ErrInvalidSize if
// the count is malformed or negative.
func ParseSizeHeader(line string) (int64, error) {
	rest, ok := strings.CutPrefix(line, sizeHeaderPrefix)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnexpectedResponse, line)
	}
	return ParseSize(rest)
}
