package logger

// Standard field keys for structured logging.
// Use these keys consistently across all log statements so logs stay
// greppable and aggregatable across the server and client packages.
const (
	// Protocol & operation
	KeyProtocol = "protocol" // Protocol name: stash
	KeyVerb     = "verb"     // Command verb: WRITE, GET, RM, STOP
	KeyStatus   = "status"   // Terminal outcome: success, error

	// Connection identity
	KeyConnID     = "conn_id"     // Per-connection UUID
	KeyClientIP   = "client_ip"   // Client IP address
	KeyClientPort = "client_port" // Client source port

	// File system
	KeyPath    = "path"     // Remote path as requested by the client
	KeyAbsPath = "abs_path" // Canonical path under the root directory
	KeyVersion = "version"  // Version backup created on overwrite

	// I/O
	KeySize         = "size"          // Declared transfer size in bytes
	KeyBytesRead    = "bytes_read"    // Actual bytes read
	KeyBytesWritten = "bytes_written" // Actual bytes written

	// Timing
	KeyDurationMS = "duration_ms" // Elapsed milliseconds

	// Errors
	KeyError = "error" // Error detail
)
