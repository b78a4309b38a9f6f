package stash

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	stash "github.com/marmos91/stashd/internal/protocol/stash"
	"github.com/marmos91/stashd/pkg/locks"
	"github.com/marmos91/stashd/pkg/registry"
	"github.com/marmos91/stashd/pkg/store"
)

// testServer bundles a running adapter with everything a test needs to
// talk to it over a real TCP connection.
type testServer struct {
	adapter *StashAdapter
	rootDir string
	addr    string
	cancel  context.CancelFunc

	done     chan error
	waitOnce sync.Once
	serveErr error
}

// startTestServer boots an adapter on an ephemeral port backed by a fresh
// store root. Shutdown and cleanup are registered with t.Cleanup.
func startTestServer(t *testing.T, config StashConfig) *testServer {
	t.Helper()

	rootDir := t.TempDir()

	st, err := store.New(context.Background(), rootDir)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}

	reg := registry.NewRegistry()
	if err := reg.RegisterFileStore(st); err != nil {
		t.Fatalf("register file store: %v", err)
	}
	if err := reg.RegisterLockTable(locks.NewTable(0)); err != nil {
		t.Fatalf("register lock table: %v", err)
	}

	config.Port = 0 // OS assigns an ephemeral port
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = 2 * time.Second
	}

	adapter := New(config, nil)
	adapter.SetRegistry(reg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- adapter.Serve(ctx)
	}()

	// Wait for the listener to bind
	deadline := time.Now().Add(2 * time.Second)
	for adapter.Port() == 0 {
		if time.Now().After(deadline) {
			cancel()
			t.Fatal("listener did not start within 2s")
		}
		time.Sleep(10 * time.Millisecond)
	}

	ts := &testServer{
		adapter: adapter,
		rootDir: rootDir,
		addr:    fmt.Sprintf("localhost:%d", adapter.Port()),
		cancel:  cancel,
		done:    done,
	}
	t.Cleanup(func() {
		cancel()
		ts.wait(t)
	})
	return ts
}

// wait blocks until Serve returns and reports its error. Safe to call
// multiple times; later calls return the recorded result.
func (ts *testServer) wait(t *testing.T) error {
	t.Helper()
	ts.waitOnce.Do(func() {
		select {
		case ts.serveErr = <-ts.done:
		case <-time.After(5 * time.Second):
			t.Fatal("server did not stop within 5s")
		}
	})
	return ts.serveErr
}

// dial opens a client connection with a generous overall deadline so a
// broken exchange fails the test instead of hanging it.
func (ts *testServer) dial(t *testing.T) (net.Conn, *bufio.Reader) {
	t.Helper()
	conn, err := net.Dial("tcp", ts.addr)
	if err != nil {
		t.Fatalf("dial %s: %v", ts.addr, err)
	}
	if err := conn.SetDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatalf("set deadline: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn, bufio.NewReader(conn)
}

func sendLine(t *testing.T, conn net.Conn, line string) {
	t.Helper()
	if err := stash.WriteLine(conn, line); err != nil {
		t.Fatalf("send %q: %v", line, err)
	}
}

func recvLine(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	line, err := stash.ReadLine(r)
	if err != nil {
		t.Fatalf("read reply: %v", err)
	}
	return line
}

// uploadFile runs a complete WRITE exchange and returns the terminal line.
func uploadFile(t *testing.T, ts *testServer, remotePath string, payload []byte) string {
	t.Helper()
	conn, r := ts.dial(t)

	sendLine(t, conn, stash.VerbWrite+" "+remotePath)
	if got := recvLine(t, r); got != stash.MsgReady {
		t.Fatalf("expected %q, got %q", stash.MsgReady, got)
	}
	sendLine(t, conn, stash.FormatSize(int64(len(payload))))
	if got := recvLine(t, r); got != stash.MsgSizeOK {
		t.Fatalf("expected %q, got %q", stash.MsgSizeOK, got)
	}
	if len(payload) > 0 {
		if _, err := conn.Write(payload); err != nil {
			t.Fatalf("send payload: %v", err)
		}
	}
	return recvLine(t, r)
}

func TestWriteExchange(t *testing.T) {
	ts := startTestServer(t, StashConfig{})

	payload := []byte("hello stash\n")
	terminal := uploadFile(t, ts, "docs/notes.txt", payload)
	if terminal != stash.SuccessWritten() {
		t.Fatalf("terminal line = %q, want %q", terminal, stash.SuccessWritten())
	}

	got, err := os.ReadFile(filepath.Join(ts.rootDir, "docs", "notes.txt"))
	if err != nil {
		t.Fatalf("read uploaded file: %v", err)
	}
	if string(got) != string(payload) {
		t.Errorf("uploaded content = %q, want %q", got, payload)
	}
}

func TestWriteEmptyFile(t *testing.T) {
	ts := startTestServer(t, StashConfig{})

	terminal := uploadFile(t, ts, "empty.dat", nil)
	if terminal != stash.SuccessWritten() {
		t.Fatalf("terminal line = %q, want %q", terminal, stash.SuccessWritten())
	}

	info, err := os.Stat(filepath.Join(ts.rootDir, "empty.dat"))
	if err != nil {
		t.Fatalf("stat uploaded file: %v", err)
	}
	if info.Size() != 0 {
		t.Errorf("uploaded size = %d, want 0", info.Size())
	}
}

func TestWriteVersionsExistingFile(t *testing.T) {
	ts := startTestServer(t, StashConfig{})

	for _, content := range []string{"first", "second", "third"} {
		if got := uploadFile(t, ts, "report.txt", []byte(content)); got != stash.SuccessWritten() {
			t.Fatalf("upload %q: terminal line = %q", content, got)
		}
	}

	checks := map[string]string{
		"report.txt":    "third",
		"report.txt.v1": "first",
		"report.txt.v2": "second",
	}
	for name, want := range checks {
		got, err := os.ReadFile(filepath.Join(ts.rootDir, name))
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if string(got) != want {
			t.Errorf("%s = %q, want %q", name, got, want)
		}
	}
}

func TestWriteAcceptsPipelinedPayload(t *testing.T) {
	ts := startTestServer(t, StashConfig{})
	conn, r := ts.dial(t)

	sendLine(t, conn, "WRITE pipelined.bin")
	if got := recvLine(t, r); got != stash.MsgReady {
		t.Fatalf("expected READY, got %q", got)
	}

	// Size line and payload in a single segment: the server must pick the
	// payload bytes out of its buffered reader, not the raw socket.
	payload := []byte("0123456789")
	combined := append([]byte(stash.FormatSize(int64(len(payload)))+"\n"), payload...)
	if _, err := conn.Write(combined); err != nil {
		t.Fatalf("send size+payload: %v", err)
	}

	if got := recvLine(t, r); got != stash.MsgSizeOK {
		t.Fatalf("expected SIZE_OK, got %q", got)
	}
	if got := recvLine(t, r); got != stash.SuccessWritten() {
		t.Fatalf("terminal line = %q, want %q", got, stash.SuccessWritten())
	}

	got, err := os.ReadFile(filepath.Join(ts.rootDir, "pipelined.bin"))
	if err != nil {
		t.Fatalf("read uploaded file: %v", err)
	}
	if string(got) != string(payload) {
		t.Errorf("uploaded content = %q, want %q", got, payload)
	}
}

func TestWriteRejectsBadSizeDeclarations(t *testing.T) {
	ts := startTestServer(t, StashConfig{})

	for _, bad := range []string{"not-a-number", "-5", "12 trailing", ""} {
		t.Run(fmt.Sprintf("size=%q", bad), func(t *testing.T) {
			conn, r := ts.dial(t)

			sendLine(t, conn, "WRITE f.txt")
			if got := recvLine(t, r); got != stash.MsgReady {
				t.Fatalf("expected READY, got %q", got)
			}
			sendLine(t, conn, bad)
			if got := recvLine(t, r); got != stash.ErrorInvalidSize() {
				t.Fatalf("reply = %q, want %q", got, stash.ErrorInvalidSize())
			}
		})
	}
}

func TestWriteShortUploadLeavesPartialFile(t *testing.T) {
	ts := startTestServer(t, StashConfig{})
	conn, r := ts.dial(t)

	sendLine(t, conn, "WRITE partial.bin")
	if got := recvLine(t, r); got != stash.MsgReady {
		t.Fatalf("expected READY, got %q", got)
	}
	sendLine(t, conn, "100")
	if got := recvLine(t, r); got != stash.MsgSizeOK {
		t.Fatalf("expected SIZE_OK, got %q", got)
	}

	// Send only 10 of the declared 100 bytes, then hang up.
	if _, err := conn.Write([]byte("0123456789")); err != nil {
		t.Fatalf("send partial payload: %v", err)
	}
	conn.Close()

	// The server aborts without a terminal line and keeps the partial file.
	path := filepath.Join(ts.rootDir, "partial.bin")
	deadline := time.Now().Add(2 * time.Second)
	for {
		if info, err := os.Stat(path); err == nil && info.Size() == 10 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("partial file did not appear with 10 bytes within 2s")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestGetExchange(t *testing.T) {
	ts := startTestServer(t, StashConfig{})

	content := []byte("binary\x00payload with\nnewlines")
	if err := os.MkdirAll(filepath.Join(ts.rootDir, "pkg"), 0755); err != nil {
		t.Fatalf("seed dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(ts.rootDir, "pkg", "data.bin"), content, 0644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	conn, r := ts.dial(t)
	sendLine(t, conn, "GET pkg/data.bin")

	header := recvLine(t, r)
	size, err := stash.ParseSizeHeader(header)
	if err != nil {
		t.Fatalf("parse size header %q: %v", header, err)
	}
	if size != int64(len(content)) {
		t.Fatalf("announced size = %d, want %d", size, len(content))
	}

	sendLine(t, conn, stash.MsgReady)

	got := make([]byte, size)
	if _, err := io.ReadFull(r, got); err != nil {
		t.Fatalf("read payload: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("payload = %q, want %q", got, content)
	}

	// No trailer follows the payload: the server closes the connection.
	if _, err := r.ReadByte(); err != io.EOF {
		t.Errorf("expected EOF after payload, got %v", err)
	}
}

func TestGetErrors(t *testing.T) {
	ts := startTestServer(t, StashConfig{})
	if err := os.MkdirAll(filepath.Join(ts.rootDir, "subdir"), 0755); err != nil {
		t.Fatalf("seed dir: %v", err)
	}

	cases := []struct {
		name    string
		command string
		want    string
	}{
		{"MissingFile", "GET nope.txt", stash.ErrorFileNotFound("nope.txt")},
		{"Directory", "GET subdir", stash.ErrorIsDirectory("subdir")},
		{"EscapingPath", "GET ../../etc/passwd", stash.ErrorInvalidPath("../../etc/passwd")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			conn, r := ts.dial(t)
			sendLine(t, conn, tc.command)
			if got := recvLine(t, r); got != tc.want {
				t.Errorf("reply = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestRmExchange(t *testing.T) {
	ts := startTestServer(t, StashConfig{})

	seedFile := func(rel string) {
		t.Helper()
		path := filepath.Join(ts.rootDir, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("seed dir: %v", err)
		}
		if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
			t.Fatalf("seed file: %v", err)
		}
	}

	t.Run("RemovesFile", func(t *testing.T) {
		seedFile("victim.txt")
		conn, r := ts.dial(t)
		sendLine(t, conn, "RM victim.txt")
		if got := recvLine(t, r); got != stash.SuccessRemoved("victim.txt") {
			t.Fatalf("reply = %q, want %q", got, stash.SuccessRemoved("victim.txt"))
		}
		if _, err := os.Stat(filepath.Join(ts.rootDir, "victim.txt")); !os.IsNotExist(err) {
			t.Errorf("file still present after RM: %v", err)
		}
	})

	t.Run("RemovesEmptyDirectory", func(t *testing.T) {
		if err := os.MkdirAll(filepath.Join(ts.rootDir, "hollow"), 0755); err != nil {
			t.Fatalf("seed dir: %v", err)
		}
		conn, r := ts.dial(t)
		sendLine(t, conn, "RM hollow")
		if got := recvLine(t, r); got != stash.SuccessRemoved("hollow") {
			t.Fatalf("reply = %q, want %q", got, stash.SuccessRemoved("hollow"))
		}
	})

	t.Run("RefusesNonEmptyDirectory", func(t *testing.T) {
		seedFile("full/inner.txt")
		conn, r := ts.dial(t)
		sendLine(t, conn, "RM full")
		if got := recvLine(t, r); got != stash.ErrorDirNotEmpty("full") {
			t.Fatalf("reply = %q, want %q", got, stash.ErrorDirNotEmpty("full"))
		}
		if _, err := os.Stat(filepath.Join(ts.rootDir, "full", "inner.txt")); err != nil {
			t.Errorf("directory content lost: %v", err)
		}
	})

	t.Run("MissingPath", func(t *testing.T) {
		conn, r := ts.dial(t)
		sendLine(t, conn, "RM ghost")
		if got := recvLine(t, r); got != stash.ErrorFileNotFound("ghost") {
			t.Fatalf("reply = %q, want %q", got, stash.ErrorFileNotFound("ghost"))
		}
	})
}

func TestCommandValidation(t *testing.T) {
	ts := startTestServer(t, StashConfig{})

	cases := []struct {
		name string
		line string
		want string
	}{
		{"UnknownVerb", "FLY me/to/the/moon", stash.ErrorUnknownCommand("FLY")},
		{"MissingPath", "GET", stash.ErrorMissingPath()},
		{"EmptyLine", "", stash.ErrorInvalidFormat()},
		{"LowercaseVerb", "get some/file", stash.ErrorUnknownCommand("get")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			conn, r := ts.dial(t)
			sendLine(t, conn, tc.line)
			if got := recvLine(t, r); got != tc.want {
				t.Errorf("reply = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestStopShutsServerDown(t *testing.T) {
	ts := startTestServer(t, StashConfig{AllowRemoteStop: true})

	conn, r := ts.dial(t)
	sendLine(t, conn, "STOP")
	if got := recvLine(t, r); got != stash.SuccessStopping() {
		t.Fatalf("reply = %q, want %q", got, stash.SuccessStopping())
	}

	if err := ts.wait(t); err != nil {
		t.Errorf("expected graceful shutdown after STOP, got %v", err)
	}
}

func TestStopDisabledAnswersUnknownCommand(t *testing.T) {
	// AllowRemoteStop defaults to false at the adapter level; the standard
	// default of true is applied by pkg/config.
	ts := startTestServer(t, StashConfig{})

	conn, r := ts.dial(t)
	sendLine(t, conn, "STOP")
	if got := recvLine(t, r); got != stash.ErrorUnknownCommand("STOP") {
		t.Fatalf("reply = %q, want %q", got, stash.ErrorUnknownCommand("STOP"))
	}

	// The server must still be serving.
	conn2, r2 := ts.dial(t)
	sendLine(t, conn2, "RM ghost")
	if got := recvLine(t, r2); got != stash.ErrorFileNotFound("ghost") {
		t.Fatalf("follow-up reply = %q, want %q", got, stash.ErrorFileNotFound("ghost"))
	}
}

// TestGracefulShutdownForceClosesIdleConnections verifies that an idle
// connection is force-closed once the shutdown timeout expires.
func TestGracefulShutdownForceClosesIdleConnections(t *testing.T) {
	ts := startTestServer(t, StashConfig{ShutdownTimeout: 500 * time.Millisecond})

	conn, _ := ts.dial(t)

	// Wait for the connection to be tracked
	deadline := time.Now().Add(2 * time.Second)
	for ts.adapter.GetActiveConnections() != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("connection not tracked, active = %d", ts.adapter.GetActiveConnections())
		}
		time.Sleep(10 * time.Millisecond)
	}

	connClosed := make(chan struct{})
	go func() {
		buf := make([]byte, 1)
		if _, err := conn.Read(buf); err != nil {
			close(connClosed)
		}
	}()

	shutdownStart := time.Now()
	ts.cancel()

	select {
	case <-connClosed:
		// Force-close reached the client
	case <-time.After(3 * time.Second):
		t.Error("idle connection was not force-closed within 3s")
	}

	if err := ts.wait(t); err == nil {
		t.Error("expected a shutdown error after force-close, got nil")
	}
	if elapsed := time.Since(shutdownStart); elapsed > 3*time.Second {
		t.Errorf("shutdown took %v, expected < 3s", elapsed)
	}
}

// TestConnectionLimitQueuesExcess verifies that a connection beyond
// MaxConnections is not served until a slot frees up. The TCP handshake
// still completes (kernel backlog), so the observable effect is a delayed
// reply, not a failed dial.
func TestConnectionLimitQueuesExcess(t *testing.T) {
	ts := startTestServer(t, StashConfig{MaxConnections: 2})

	conn1, _ := ts.dial(t)
	ts.dial(t) // second idle connection holds the other slot

	deadline := time.Now().Add(2 * time.Second)
	for ts.adapter.GetActiveConnections() != 2 {
		if time.Now().After(deadline) {
			t.Fatalf("expected 2 tracked connections, got %d", ts.adapter.GetActiveConnections())
		}
		time.Sleep(10 * time.Millisecond)
	}

	// The third connection's command sits in the socket until a slot frees.
	conn3, r3 := ts.dial(t)
	sendLine(t, conn3, "RM ghost")

	if err := conn3.SetReadDeadline(time.Now().Add(300 * time.Millisecond)); err != nil {
		t.Fatalf("set read deadline: %v", err)
	}
	if _, err := r3.ReadByte(); err == nil {
		t.Fatal("third connection was served while both slots were taken")
	} else if netErr, ok := err.(net.Error); !ok || !netErr.Timeout() {
		t.Fatalf("expected read timeout on queued connection, got %v", err)
	}

	// Free a slot; the queued connection must now be served.
	conn1.Close()

	if err := conn3.SetReadDeadline(time.Now().Add(3 * time.Second)); err != nil {
		t.Fatalf("reset read deadline: %v", err)
	}
	if got := recvLine(t, r3); got != stash.ErrorFileNotFound("ghost") {
		t.Fatalf("queued reply = %q, want %q", got, stash.ErrorFileNotFound("ghost"))
	}
}

// TestConcurrentStopCallsAreSafe verifies that Stop can race with itself
// and with context cancellation.
func TestConcurrentStopCallsAreSafe(t *testing.T) {
	ts := startTestServer(t, StashConfig{})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer stopCancel()
			_ = ts.adapter.Stop(stopCtx)
		}()
	}
	ts.cancel()
	wg.Wait()

	if err := ts.wait(t); err != nil {
		t.Errorf("expected clean shutdown with no active connections, got %v", err)
	}
}

func TestServeWithoutRegistry(t *testing.T) {
	adapter := New(StashConfig{}, nil)
	if err := adapter.Serve(context.Background()); err == nil {
		t.Fatal("expected an error from Serve without a registry")
	}
}
