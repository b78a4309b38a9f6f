// Package e2e runs full-stack tests: a real server (store, lock table,
// registry, stash adapter) on an ephemeral port, driven through pkg/client.
package e2e

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/marmos91/stashd/internal/logger"
	"github.com/marmos91/stashd/pkg/adapter/stash"
	"github.com/marmos91/stashd/pkg/client"
	"github.com/marmos91/stashd/pkg/locks"
	"github.com/marmos91/stashd/pkg/registry"
	"github.com/marmos91/stashd/pkg/server"
	"github.com/marmos91/stashd/pkg/store"
)

// TestConfig holds the tunables a test can vary.
type TestConfig struct {
	AllowRemoteStop bool
	MaxLockedPaths  int
	ChunkSize       int
}

// DefaultConfig returns the configuration most tests run with.
func DefaultConfig() *TestConfig {
	return &TestConfig{
		AllowRemoteStop: true,
		MaxLockedPaths:  0, // table default
		ChunkSize:       0, // adapter default
	}
}

// TestContext provides a complete testing environment:
// a running stashd server, its root directory, and a connected client.
// Works for tests and benchmarks alike.
type TestContext struct {
	T        testing.TB
	Server   *server.StashServer
	Registry *registry.Registry
	Adapter  *stash.StashAdapter
	Client   *client.Client
	RootDir  string
	Port     int

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	serveErr error
}

// NewTestContext starts a server stack for the given configuration and
// registers cleanup with t.
func NewTestContext(t testing.TB, config *TestConfig) *TestContext {
	t.Helper()

	if config == nil {
		config = DefaultConfig()
	}

	// Always run at ERROR level to keep test output clean
	logger.SetLevel("ERROR")

	ctx, cancel := context.WithCancel(context.Background())

	tc := &TestContext{
		T:       t,
		RootDir: t.TempDir(),
		ctx:     ctx,
		cancel:  cancel,
	}
	t.Cleanup(tc.Cleanup)

	st, err := store.New(ctx, tc.RootDir)
	if err != nil {
		t.Fatalf("Failed to create file store: %v", err)
	}

	tc.Registry = registry.NewRegistry()
	if err := tc.Registry.RegisterFileStore(st); err != nil {
		t.Fatalf("Failed to register file store: %v", err)
	}
	if err := tc.Registry.RegisterLockTable(locks.NewTable(config.MaxLockedPaths)); err != nil {
		t.Fatalf("Failed to register lock table: %v", err)
	}

	tc.Adapter = stash.New(stash.StashConfig{
		Enabled:         true,
		Port:            0,
		AllowRemoteStop: config.AllowRemoteStop,
		ChunkSize:       config.ChunkSize,
		ShutdownTimeout: 5 * time.Second,
	}, nil)

	tc.Server = server.New(tc.Registry)
	if err := tc.Server.AddAdapter(tc.Adapter); err != nil {
		t.Fatalf("Failed to add stash adapter: %v", err)
	}

	tc.wg.Add(1)
	go func() {
		defer tc.wg.Done()
		tc.serveErr = tc.Server.Serve(tc.ctx)
	}()

	tc.waitForServer()
	tc.Port = tc.Adapter.Port()
	tc.Client = client.New(client.Config{Port: tc.Port})

	return tc
}

// waitForServer blocks until the adapter is accepting connections.
func (tc *TestContext) waitForServer() {
	tc.T.Helper()

	timeout := time.After(10 * time.Second)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-timeout:
			tc.T.Fatal("Timeout waiting for server to start")
		case <-ticker.C:
			port := tc.Adapter.Port()
			if port == 0 {
				continue
			}
			conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), time.Second)
			if err == nil {
				_ = conn.Close()
				return
			}
		}
	}
}

// Cleanup stops the server and waits for it to exit. Safe to call twice
// (tests that stop the server themselves leave nothing to do).
func (tc *TestContext) Cleanup() {
	tc.cancel()
	tc.wg.Wait()
	if tc.serveErr != nil && tc.serveErr != context.Canceled {
		tc.T.Errorf("Server exited with error: %v", tc.serveErr)
	}
}

// Wait blocks until the server goroutine has returned and reports its error.
func (tc *TestContext) Wait() error {
	tc.wg.Wait()
	return tc.serveErr
}

// ServerPath returns the absolute path of a stored file inside the root dir.
func (tc *TestContext) ServerPath(relativePath string) string {
	return filepath.Join(tc.RootDir, filepath.FromSlash(relativePath))
}

// ReadServerFile reads a stored file directly from the root dir.
func (tc *TestContext) ReadServerFile(relativePath string) []byte {
	tc.T.Helper()

	content, err := os.ReadFile(tc.ServerPath(relativePath))
	if err != nil {
		tc.T.Fatalf("Failed to read server file %s: %v", relativePath, err)
	}
	return content
}

// CreateLocalFile drops content into a fresh local file and returns its path.
func (tc *TestContext) CreateLocalFile(name string, content []byte) string {
	tc.T.Helper()

	path := filepath.Join(tc.T.TempDir(), name)
	if err := os.WriteFile(path, content, 0644); err != nil {
		tc.T.Fatalf("Failed to create local file: %v", err)
	}
	return path
}

// Upload writes content to the server at remotePath, failing the test on error.
func (tc *TestContext) Upload(remotePath string, content []byte) {
	tc.T.Helper()

	local := tc.CreateLocalFile("upload.bin", content)
	if _, err := tc.Client.Write(context.Background(), local, remotePath, client.TransferOptions{}); err != nil {
		tc.T.Fatalf("Failed to upload %s: %v", remotePath, err)
	}
}

// Download fetches remotePath from the server and returns its content,
// failing the test on error.
func (tc *TestContext) Download(remotePath string) []byte {
	tc.T.Helper()

	local := filepath.Join(tc.T.TempDir(), "download.bin")
	if _, err := tc.Client.Get(context.Background(), remotePath, local, client.TransferOptions{}); err != nil {
		tc.T.Fatalf("Failed to download %s: %v", remotePath, err)
	}

	content, err := os.ReadFile(local)
	if err != nil {
		tc.T.Fatalf("Failed to read downloaded file: %v", err)
	}
	return content
}

// patternedContent generates deterministic, position-dependent bytes so a
// truncated or shuffled transfer never passes the content check.
func patternedContent(size int) []byte {
	content := make([]byte, size)
	for i := range content {
		content[i] = byte(i*31 + i/251)
	}
	return content
}
