package stash

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/marmos91/stashd/internal/logger"
	stash "github.com/marmos91/stashd/internal/protocol/stash"
	"github.com/marmos91/stashd/pkg/locks"
)

// StashConnection handles exactly one protocol exchange on an accepted TCP
// connection: it reads the command line, runs the matching operation, and
// closes. Clients open a fresh connection per operation.
type StashConnection struct {
	server *StashAdapter
	conn   net.Conn
	connID string
	reader *bufio.Reader
}

// NewStashConnection wraps an accepted TCP connection.
//
// The connection gets a unique ID used as the transfer-registry key and in
// every log line it produces.
func NewStashConnection(server *StashAdapter, conn net.Conn) *StashConnection {
	return &StashConnection{
		server: server,
		conn:   conn,
		connID: uuid.New().String(),
		reader: bufio.NewReader(conn),
	}
}

// ID returns the unique identifier assigned to this connection.
func (c *StashConnection) ID() string {
	return c.connID
}

// Serve runs the single request/response exchange for this connection.
// It implements panic recovery to prevent a single misbehaving connection
// from crashing the entire server.
//
// The connection is closed when:
//   - The exchange completes (success or error terminal line)
//   - The context is cancelled (server shutdown)
//   - An idle, read, or write timeout occurs
//   - The client closes the connection
func (c *StashConnection) Serve(ctx context.Context) {
	defer func() {
		// Panic recovery - prevents a single connection from crashing the server
		if r := recover(); r != nil {
			logger.Error("Panic in connection handler",
				logger.KeyConnID, c.connID,
				logger.KeyClientIP, c.conn.RemoteAddr().String(),
				"panic", r)
		}
		_ = c.conn.Close()
	}()

	clientAddr := c.conn.RemoteAddr().String()

	// Check for cancellation before reading anything: a connection accepted
	// just as shutdown starts is turned away immediately.
	select {
	case <-ctx.Done():
		logger.Debug("Connection closed before exchange: shutdown in progress",
			logger.KeyConnID, c.connID)
		return
	default:
	}

	// The client gets IdleTimeout to say what it wants
	if c.server.config.IdleTimeout > 0 {
		if err := c.conn.SetDeadline(time.Now().Add(c.server.config.IdleTimeout)); err != nil {
			logger.Warn("Failed to set deadline",
				logger.KeyConnID, c.connID, logger.KeyError, err)
		}
	}

	line, err := stash.ReadLine(c.reader)
	if err != nil {
		if err == io.EOF {
			logger.Debug("Connection closed by client before command",
				logger.KeyConnID, c.connID)
		} else if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			logger.Debug("Connection timed out waiting for command",
				logger.KeyConnID, c.connID)
		} else if errors.Is(err, stash.ErrLineTooLong) {
			_ = c.writeLine(stash.ErrorInvalidFormat())
		} else {
			logger.Debug("Error reading command",
				logger.KeyConnID, c.connID, logger.KeyError, err)
		}
		return
	}

	cmd, err := stash.ParseCommand(line)
	if err != nil {
		logger.Debug("Rejected command line",
			logger.KeyConnID, c.connID, "line", line, logger.KeyError, err)
		_ = c.writeLine(parseErrorReply(cmd, err))
		return
	}

	logger.Debug("Command received",
		logger.KeyConnID, c.connID,
		logger.KeyClientIP, clientAddr,
		logger.KeyVerb, cmd.Verb,
		logger.KeyPath, cmd.Path)

	// Record request metrics around the whole exchange
	c.server.metrics.RecordRequestStart(cmd.Verb)
	defer c.server.metrics.RecordRequestEnd(cmd.Verb)

	startTime := time.Now()
	err = c.dispatch(ctx, cmd)
	duration := time.Since(startTime)

	c.server.metrics.RecordRequest(cmd.Verb, duration, err)

	if err != nil {
		logger.Debug("Exchange finished with error",
			logger.KeyConnID, c.connID,
			logger.KeyVerb, cmd.Verb,
			logger.KeyPath, cmd.Path,
			logger.KeyDurationMS, duration.Milliseconds(),
			logger.KeyError, err)
	} else {
		logger.Debug("Exchange finished",
			logger.KeyConnID, c.connID,
			logger.KeyVerb, cmd.Verb,
			logger.KeyPath, cmd.Path,
			logger.KeyDurationMS, duration.Milliseconds())
	}
}

// dispatch routes a parsed command to its operation.
//
// For the file operations it resolves the canonical path and takes the path
// lock, holding it for the rest of the exchange so concurrent requests on
// the same path serialize in their entirety. STOP takes no path and no
// lock.
func (c *StashConnection) dispatch(ctx context.Context, cmd stash.Command) error {
	if cmd.Verb == stash.VerbStop {
		return c.handleStop(ctx)
	}

	st, err := c.server.registry.FileStore()
	if err != nil {
		_ = c.writeLine(stash.ErrorInvalidPath(cmd.Path))
		return err
	}
	tbl, err := c.server.registry.LockTable()
	if err != nil {
		_ = c.writeLine(stash.ErrorServerBusy())
		return err
	}

	absPath, err := st.Resolve(cmd.Path)
	if err != nil {
		_ = c.writeLine(stash.ErrorInvalidPath(cmd.Path))
		return err
	}

	// The canonical path is the lock key: every alias of the same location
	// contends on one entry.
	if err := tbl.Acquire(absPath); err != nil {
		if errors.Is(err, locks.ErrTableFull) {
			logger.Warn("Lock table full, rejecting request",
				logger.KeyConnID, c.connID,
				logger.KeyVerb, cmd.Verb,
				logger.KeyPath, cmd.Path)
		}
		_ = c.writeLine(stash.ErrorServerBusy())
		return err
	}
	held, _ := tbl.Stats()
	c.server.metrics.SetLockedPaths(held)

	defer func() {
		tbl.Release(absPath)
		remaining, _ := tbl.Stats()
		c.server.metrics.SetLockedPaths(remaining)
	}()

	switch cmd.Verb {
	case stash.VerbWrite:
		return c.handleWrite(ctx, st, cmd.Path, absPath)
	case stash.VerbGet:
		return c.handleGet(ctx, st, cmd.Path, absPath)
	case stash.VerbRm:
		return c.handleRm(ctx, st, cmd.Path, absPath)
	default:
		// ParseCommand only admits known verbs; this is unreachable.
		_ = c.writeLine(stash.ErrorUnknownCommand(cmd.Verb))
		return stash.ErrUnknownVerb
	}
}

// parseErrorReply maps a command parse failure to its wire status line.
func parseErrorReply(cmd stash.Command, err error) string {
	switch {
	case errors.Is(err, stash.ErrUnknownVerb):
		return stash.ErrorUnknownCommand(cmd.Verb)
	case errors.Is(err, stash.ErrMissingPath):
		return stash.ErrorMissingPath()
	default:
		return stash.ErrorInvalidFormat()
	}
}

// readLine reads one control line, refreshing the read deadline first.
func (c *StashConnection) readLine() (string, error) {
	if t := c.server.config.ReadTimeout; t > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(t)); err != nil {
			return "", err
		}
	}
	return stash.ReadLine(c.reader)
}

// writeLine writes one control line, refreshing the write deadline first.
func (c *StashConnection) writeLine(line string) error {
	if t := c.server.config.WriteTimeout; t > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(t)); err != nil {
			return err
		}
	}
	return stash.WriteLine(c.conn, line)
}

// payloadReader returns the source for an upload data phase.
//
// Bytes must come through the connection's bufio.Reader: the client may
// have sent payload bytes in the same segment as the size line, and those
// sit in the buffer. The read deadline is refreshed before each chunk so a
// moving transfer never times out while a stalled one does.
func (c *StashConnection) payloadReader() io.Reader {
	return &deadlineReader{
		conn:    c.conn,
		r:       c.reader,
		timeout: c.server.config.ReadTimeout,
	}
}

// payloadWriter returns the sink for a download data phase, refreshing the
// write deadline before each chunk.
func (c *StashConnection) payloadWriter() io.Writer {
	return &deadlineWriter{
		conn:    c.conn,
		timeout: c.server.config.WriteTimeout,
	}
}

// deadlineReader refreshes the connection read deadline before each read.
type deadlineReader struct {
	conn    net.Conn
	r       io.Reader
	timeout time.Duration
}

func (d *deadlineReader) Read(p []byte) (int, error) {
	if d.timeout > 0 {
		if err := d.conn.SetReadDeadline(time.Now().Add(d.timeout)); err != nil {
			return 0, err
		}
	}
	return d.r.Read(p)
}

// deadlineWriter refreshes the connection write deadline before each write.
type deadlineWriter struct {
	conn    net.Conn
	timeout time.Duration
}

func (d *deadlineWriter) Write(p []byte) (int, error) {
	if d.timeout > 0 {
		if err := d.conn.SetWriteDeadline(time.Now().Add(d.timeout)); err != nil {
			return 0, err
		}
	}
	return d.conn.Write(p)
}
