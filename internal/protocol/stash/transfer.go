package stash

import (
	"fmt"
	"io"
)

// CopyExactly streams exactly n bytes from src to dst in bounded chunks.
//
// This is the data-phase engine for both directions: the server uses it to
// drain a WRITE upload into a file and to push a GET download onto the
// socket; the client uses the mirror image. Each chunk is written to dst as
// it arrives, so a transfer never buffers more than one chunk in memory.
//
// Parameters:
//   - dst: destination for the streamed bytes
//   - src: source of the streamed bytes
//   - n: exact byte count declared for this transfer
//   - chunkSize: chunk buffer size; zero or less selects DefaultChunkSize
//   - progress: optional callback invoked after each chunk with the
//     cumulative byte count; pass nil when no observer is interested
//
// Returns the number of bytes actually moved and an error when that count
// falls short of n:
//   - ErrShortTransfer (wrapped) if src ends before n bytes arrived
//   - the underlying read or write error for I/O failures
//
// A declared size of zero completes immediately without touching either
// stream. Progress reporting is observational only; errors from it are not
// possible and it must not block.
func CopyExactly(dst io.Writer, src io.Reader, n int64, chunkSize int, progress func(done int64)) (int64, error) {
	if n == 0 {
		return 0, nil
	}

	buf := GetChunk(chunkSize)
	defer PutChunk(buf)

	var done int64
	for done < n {
		want := int64(len(buf))
		if remaining := n - done; remaining < want {
			want = remaining
		}

		read, readErr := src.Read(buf[:want])
		if read > 0 {
			written, writeErr := dst.Write(buf[:read])
			done += int64(written)
			if writeErr != nil {
				return done, fmt.Errorf("write chunk: %w", writeErr)
			}
			if written < read {
				return done, fmt.Errorf("write chunk: %w", io.ErrShortWrite)
			}
			if progress != nil {
				progress(done)
			}
		}
		if readErr != nil {
			// A Read may deliver the final bytes and its error together.
			if done >= n {
				break
			}
			if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
				return done, fmt.Errorf("%w: got %d of %d bytes", ErrShortTransfer, done, n)
			}
			return done, fmt.Errorf("read chunk: %w", readErr)
		}
	}

	return done, nil
}
