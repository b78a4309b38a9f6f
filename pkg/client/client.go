// Package client implements the client side of the stash transfer protocol.
//
// Each operation dials its own connection, runs exactly one command
// exchange, and closes the connection, mirroring the server's
// one-command-per-connection model. The zero Config is usable and targets
// 127.0.0.1:2000.
package client

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	stash "github.com/marmos91/stashd/internal/protocol/stash"
)

// Config controls how the client reaches the server and paces transfers.
type Config struct {
	// Host is the server hostname or IP address.
	// Defaults to 127.0.0.1.
	Host string

	// Port is the server TCP port.
	// Defaults to 2000.
	Port int

	// DialTimeout bounds connection establishment.
	// Defaults to 10 seconds.
	DialTimeout time.Duration

	// IOTimeout is the per-read and per-write deadline during an exchange.
	// The deadline is refreshed for every control line and data chunk, so
	// it bounds stalls rather than whole transfers.
	// Defaults to 5 minutes.
	IOTimeout time.Duration

	// ChunkSize is the buffer size for data-phase streaming, in bytes.
	// Defaults to 8192.
	ChunkSize int
}

// applyDefaults fills zero fields with the standard values.
func (c *Config) applyDefaults() {
	if c.Host == "" {
		c.Host = "127.0.0.1"
	}
	if c.Port == 0 {
		c.Port = 2000
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.IOTimeout == 0 {
		c.IOTimeout = 5 * time.Minute
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = stash.DefaultChunkSize
	}
}

// ProgressFunc observes a running transfer. It is invoked after each chunk
// with the bytes moved so far and the total expected. It must not block.
type ProgressFunc func(done, total int64)

// TransferOptions tunes a single Write or Get call.
// The zero value disables progress reporting.
type TransferOptions struct {
	// Progress, when non-nil, observes the data phase.
	Progress ProgressFunc
}

// TransferStats describes a completed transfer.
type TransferStats struct {
	// Bytes is the number of payload bytes moved.
	Bytes int64

	// Duration covers the data phase and the surrounding control exchange.
	Duration time.Duration

	// Message is the server's final status line, when the exchange has one
	// (WRITE does, GET does not).
	Message string
}

// Client speaks the stash protocol to one server.
//
// A Client is stateless between operations and safe for concurrent use;
// every call opens its own connection.
type Client struct {
	config Config
}

// New creates a Client. Zero fields in config are filled with defaults.
func New(config Config) *Client {
	config.applyDefaults()
	return &Client{config: config}
}

// Addr returns the host:port the client targets.
func (c *Client) Addr() string {
	return net.JoinHostPort(c.config.Host, strconv.Itoa(c.config.Port))
}

// conn is one dialed exchange. The bufio.Reader must be used for all reads
// on the connection: the server may flush a control line and payload bytes
// together, and a raw read past the reader would lose buffered data.
type conn struct {
	netConn net.Conn
	reader  *bufio.Reader
	timeout time.Duration
}

// dial opens the connection for a single exchange.
func (c *Client) dial(ctx context.Context) (*conn, error) {
	d := net.Dialer{Timeout: c.config.DialTimeout}

	netConn, err := d.DialContext(ctx, "tcp", c.Addr())
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", c.Addr(), err)
	}

	return &conn{
		netConn: netConn,
		reader:  bufio.NewReader(netConn),
		timeout: c.config.IOTimeout,
	}, nil
}

func (cn *conn) close() {
	_ = cn.netConn.Close()
}

// watchContext aborts the exchange when ctx is cancelled by expiring the
// connection deadline, which fails the blocked read or write. The returned
// stop function releases the watcher and must be called before close.
func (cn *conn) watchContext(ctx context.Context) (stop func()) {
	done := make(chan struct{})

	go func() {
		select {
		case <-ctx.Done():
			_ = cn.netConn.SetDeadline(time.Now())
		case <-done:
		}
	}()

	return func() { close(done) }
}

// readLine reads one control line, refreshing the read deadline first.
func (cn *conn) readLine() (string, error) {
	if cn.timeout > 0 {
		if err := cn.netConn.SetReadDeadline(time.Now().Add(cn.timeout)); err != nil {
			return "", err
		}
	}
	return stash.ReadLine(cn.reader)
}

// writeLine writes one control line, refreshing the write deadline first.
func (cn *conn) writeLine(line string) error {
	if cn.timeout > 0 {
		if err := cn.netConn.SetWriteDeadline(time.Now().Add(cn.timeout)); err != nil {
			return err
		}
	}
	return stash.WriteLine(cn.netConn, line)
}

// payloadReader returns the reader for a raw data phase.
func (cn *conn) payloadReader() io.Reader {
	return &deadlineReader{conn: cn.netConn, r: cn.reader, timeout: cn.timeout}
}

// payloadWriter returns the writer for a raw data phase.
func (cn *conn) payloadWriter() io.Writer {
	return &deadlineWriter{conn: cn.netConn, timeout: cn.timeout}
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

// progressAdapter bridges TransferOptions.Progress onto the cumulative
// callback the transfer engine emits.
func progressAdapter(opts TransferOptions, total int64) func(done int64) {
	if opts.Progress == nil {
		return nil
	}
	return func(done int64) {
		opts.Progress(done, total)
	}
}
