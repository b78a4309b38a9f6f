package e2e

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	stashproto "github.com/marmos91/stashd/internal/protocol/stash"
	"github.com/marmos91/stashd/pkg/client"
)

// TestWriteGetRoundTrip uploads a file and downloads it back.
func TestWriteGetRoundTrip(t *testing.T) {
	tc := NewTestContext(t, nil)

	content := []byte("hello stash\n")
	tc.Upload("greeting.txt", content)

	if got := tc.Download("greeting.txt"); !bytes.Equal(got, content) {
		t.Errorf("Downloaded content differs: got %q, want %q", got, content)
	}
}

// TestTransferSizes round-trips payloads around the chunk boundary.
func TestTransferSizes(t *testing.T) {
	tc := NewTestContext(t, nil)

	sizes := []int{0, 1, 8191, 8192, 8193, 1 << 20}

	for _, size := range sizes {
		t.Run(fmt.Sprintf("%dBytes", size), func(t *testing.T) {
			remote := fmt.Sprintf("sizes/file_%d.bin", size)
			content := patternedContent(size)

			tc.Upload(remote, content)

			got := tc.Download(remote)
			if len(got) != size {
				t.Fatalf("Downloaded %d bytes, want %d", len(got), size)
			}
			if !bytes.Equal(got, content) {
				t.Error("Downloaded content differs from uploaded content")
			}
		})
	}
}

// TestWriteCreatesParentDirectories stores a file under a path that does not
// exist yet on the server.
func TestWriteCreatesParentDirectories(t *testing.T) {
	tc := NewTestContext(t, nil)

	tc.Upload("a/b/c/deep.txt", []byte("deep"))

	info, err := os.Stat(tc.ServerPath("a/b/c"))
	if err != nil {
		t.Fatalf("Parent directory missing: %v", err)
	}
	if !info.IsDir() {
		t.Error("Expected a directory at a/b/c")
	}

	if got := tc.ReadServerFile("a/b/c/deep.txt"); string(got) != "deep" {
		t.Errorf("Stored content = %q, want %q", got, "deep")
	}
}

// TestOverwriteKeepsVersionChain overwrites the same path repeatedly and
// checks the numbered backups.
func TestOverwriteKeepsVersionChain(t *testing.T) {
	tc := NewTestContext(t, nil)

	tc.Upload("doc.txt", []byte("first"))
	tc.Upload("doc.txt", []byte("second"))
	tc.Upload("doc.txt", []byte("third"))

	if got := tc.ReadServerFile("doc.txt"); string(got) != "third" {
		t.Errorf("Live file = %q, want %q", got, "third")
	}
	if got := tc.ReadServerFile("doc.txt.v1"); string(got) != "first" {
		t.Errorf("Version 1 = %q, want %q", got, "first")
	}
	if got := tc.ReadServerFile("doc.txt.v2"); string(got) != "second" {
		t.Errorf("Version 2 = %q, want %q", got, "second")
	}

	// Versions are ordinary files: fetchable and removable over the protocol.
	if got := tc.Download("doc.txt.v1"); string(got) != "first" {
		t.Errorf("Downloaded version 1 = %q, want %q", got, "first")
	}
}

// TestEmptyFileLifecycle runs a zero-byte file through its whole life:
// stored, fetched, removed, gone.
func TestEmptyFileLifecycle(t *testing.T) {
	tc := NewTestContext(t, nil)

	tc.Upload("empty.txt", nil)

	if got := tc.Download("empty.txt"); len(got) != 0 {
		t.Errorf("Expected empty download, got %d bytes", len(got))
	}

	if _, err := tc.Client.Remove(context.Background(), "empty.txt"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	local := filepath.Join(t.TempDir(), "out.bin")
	_, err := tc.Client.Get(context.Background(), "empty.txt", local, client.TransferOptions{})

	var serr *client.ServerError
	if !errors.As(err, &serr) {
		t.Fatalf("Expected ServerError after removal, got %v", err)
	}
	if serr.Reply != stashproto.ErrorFileNotFound("empty.txt") {
		t.Errorf("Reply = %q, want %q", serr.Reply, stashproto.ErrorFileNotFound("empty.txt"))
	}
}

// TestGetMissingFile asks for a path that does not exist.
func TestGetMissingFile(t *testing.T) {
	tc := NewTestContext(t, nil)

	local := filepath.Join(t.TempDir(), "out.bin")
	_, err := tc.Client.Get(context.Background(), "nope.txt", local, client.TransferOptions{})

	var serr *client.ServerError
	if !errors.As(err, &serr) {
		t.Fatalf("Expected ServerError, got %v", err)
	}
	if serr.Reply != stashproto.ErrorFileNotFound("nope.txt") {
		t.Errorf("Reply = %q, want %q", serr.Reply, stashproto.ErrorFileNotFound("nope.txt"))
	}
	if _, statErr := os.Stat(local); !os.IsNotExist(statErr) {
		t.Error("Local file must not be created for a refused download")
	}
}

// TestGetDirectory asks for a directory instead of a file.
func TestGetDirectory(t *testing.T) {
	tc := NewTestContext(t, nil)

	tc.Upload("docs/readme.txt", []byte("x"))

	local := filepath.Join(t.TempDir(), "out.bin")
	_, err := tc.Client.Get(context.Background(), "docs", local, client.TransferOptions{})

	var serr *client.ServerError
	if !errors.As(err, &serr) {
		t.Fatalf("Expected ServerError, got %v", err)
	}
	if serr.Reply != stashproto.ErrorIsDirectory("docs") {
		t.Errorf("Reply = %q, want %q", serr.Reply, stashproto.ErrorIsDirectory("docs"))
	}
}

// TestWriteEscapingPathRefused sends a path that climbs out of the root.
func TestWriteEscapingPathRefused(t *testing.T) {
	tc := NewTestContext(t, nil)

	local := tc.CreateLocalFile("x.bin", []byte("x"))
	_, err := tc.Client.Write(context.Background(), local, "../outside.txt", client.TransferOptions{})

	var serr *client.ServerError
	if !errors.As(err, &serr) {
		t.Fatalf("Expected ServerError, got %v", err)
	}

	// Nothing may appear next to the root directory.
	outside := filepath.Join(filepath.Dir(tc.RootDir), "outside.txt")
	if _, statErr := os.Stat(outside); !os.IsNotExist(statErr) {
		t.Error("File escaped the server root")
	}
}

// TestProgressCallbacks checks done/total pairs on both directions.
func TestProgressCallbacks(t *testing.T) {
	tc := NewTestContext(t, nil)

	content := patternedContent(3 * 8192)
	local := tc.CreateLocalFile("progress.bin", content)

	var writeDone []int64
	_, err := tc.Client.Write(context.Background(), local, "progress.bin", client.TransferOptions{
		Progress: func(done, total int64) {
			if total != int64(len(content)) {
				t.Errorf("Write progress total = %d, want %d", total, len(content))
			}
			writeDone = append(writeDone, done)
		},
	})
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if len(writeDone) == 0 || writeDone[len(writeDone)-1] != int64(len(content)) {
		t.Errorf("Write progress never reached total: %v", writeDone)
	}

	var getDone []int64
	target := filepath.Join(t.TempDir(), "progress-copy.bin")
	_, err = tc.Client.Get(context.Background(), "progress.bin", target, client.TransferOptions{
		Progress: func(done, total int64) {
			getDone = append(getDone, done)
		},
	})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(getDone) == 0 || getDone[len(getDone)-1] != int64(len(content)) {
		t.Errorf("Get progress never reached total: %v", getDone)
	}
	for i := 1; i < len(getDone); i++ {
		if getDone[i] < getDone[i-1] {
			t.Errorf("Get progress went backwards at %d: %v", i, getDone)
		}
	}
}
