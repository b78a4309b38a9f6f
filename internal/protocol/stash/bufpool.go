package stash

import (
	"sync"
)

// Chunk buffers for data-phase streaming.
//
// Every data phase moves bytes through a scratch buffer of the configured
// chunk size. Transfers are frequent and short-lived, so buffers of the
// default size are recycled through a sync.Pool instead of being allocated
// per request. Non-default sizes (a per-deployment chunk_size override)
// are allocated directly and not pooled.

// chunkPool recycles DefaultChunkSize buffers across connections.
var chunkPool = sync.Pool{
	New: func() any {
		buf := make([]byte, DefaultChunkSize)
		return &buf
	},
}

// GetChunk returns a scratch buffer of the given size for a data phase.
// A size of zero or less selects DefaultChunkSize.
//
// The caller must hand the buffer back with PutChunk when the transfer
// ends; pair the calls with defer.
func GetChunk(size int) []byte {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if size == DefaultChunkSize {
		bufPtr := chunkPool.Get().(*[]byte)
		return *bufPtr
	}
	return make([]byte, size)
}

// PutChunk returns a buffer obtained from GetChunk to the pool.
// Buffers of non-default capacity are left for the garbage collector.
func PutChunk(buf []byte) {
	if cap(buf) != DefaultChunkSize {
		return
	}
	full := buf[:cap(buf)]
	chunkPool.Put(&full)
}
