// Package stash implements the stash protocol adapter: a TCP server speaking
// the line-oriented WRITE/GET/RM/STOP protocol, one request per connection.
package stash

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/stashd/internal/logger"
	"github.com/marmos91/stashd/internal/ratelimiter"
	"github.com/marmos91/stashd/pkg/metrics"
	"github.com/marmos91/stashd/pkg/registry"
)

// StashAdapter implements the adapter.Adapter interface for the stash
// protocol.
//
// This adapter provides a production-ready transfer server with:
//   - Graceful shutdown with configurable timeout
//   - Connection limiting and accept-rate throttling
//   - Context-based request cancellation
//   - Configurable timeouts for read/write/idle operations
//   - Thread-safe operation with atomic counters
//
// Architecture:
// StashAdapter manages the TCP listener and connection lifecycle. Each
// accepted connection is handled by a StashConnection instance that runs
// exactly one protocol exchange (command line, optional data phase,
// terminal status) and then closes. The adapter coordinates graceful
// shutdown across all active connections using context cancellation and
// wait groups.
//
// Shutdown flow:
//  1. Context cancelled, Stop() called, or a client issues STOP
//  2. Listener closed (no new connections)
//  3. shutdownCtx cancelled (signals in-flight transfers to abort)
//  4. Wait for active connections to complete (up to ShutdownTimeout)
//  5. Force-close any remaining connections after timeout
//
// Thread safety:
// All methods are safe for concurrent use. The shutdown mechanism uses
// sync.Once to ensure idempotent behavior even if Stop() is called multiple
// times.
type StashAdapter struct {
	// config holds the server configuration (port, timeouts, limits)
	config StashConfig

	// listener is the TCP listener for accepting client connections
	// Closed during shutdown to stop accepting new connections
	listener net.Listener

	// registry provides access to the shared file store and lock table
	registry *registry.Registry

	// metrics provides optional Prometheus metrics collection
	// Never nil: a no-op implementation is substituted when none is given
	metrics metrics.StashMetrics

	// limiter throttles the accept loop when AcceptRate is configured
	// nil when accept-rate limiting is disabled
	limiter *ratelimiter.ConnLimiter

	// onStopRequest is invoked once when a client issues a STOP command
	// When nil, the adapter shuts itself down instead
	onStopRequest func()

	// stopRequestOnce ensures a single STOP command takes effect even when
	// several clients race to send one
	stopRequestOnce sync.Once

	// activeConns tracks all currently active connections for graceful shutdown
	// Each connection calls Add(1) when starting and Done() when complete
	activeConns sync.WaitGroup

	// shutdownOnce ensures shutdown is only initiated once
	shutdownOnce sync.Once

	// shutdown signals that graceful shutdown has been initiated
	// Closed by initiateShutdown(), monitored by the accept loop
	shutdown chan struct{}

	// connCount tracks the current number of active connections
	connCount atomic.Int32

	// boundPort holds the actual listening port once Serve has bound the
	// listener. Differs from config.Port when that is 0 (ephemeral port)
	boundPort atomic.Int32

	// connSemaphore limits the number of concurrent connections if
	// MaxConnections > 0; connections must acquire a slot before being
	// accepted. nil if MaxConnections is 0 (unlimited)
	connSemaphore chan struct{}

	// shutdownCtx is cancelled during shutdown to abort in-flight transfers
	shutdownCtx context.Context

	// cancelRequests cancels shutdownCtx during shutdown
	cancelRequests context.CancelFunc

	// activeConnections tracks all active TCP connections for forced closure
	// Maps connection ID (string) to net.Conn
	activeConnections sync.Map
}

// StashConfig holds configuration parameters for the stash protocol server.
//
// These values control server behavior including connection limits, timeouts,
// and resource management. All timeout values are optional - zero means no
// timeout.
//
// Default values (applied by New if zero):
//   - AcceptRate/AcceptBurst: 0 (unlimited)
//   - ReadTimeout: 5m
//   - WriteTimeout: 30s
//   - IdleTimeout: 1m
//   - ShutdownTimeout: 30s
//   - ChunkSize: 8192
//
// Port and MaxConnections are left as given: 0 means ephemeral port and
// unlimited connections here, and the standard defaults (2000 and 100)
// are applied by pkg/config alongside Enabled and AllowRemoteStop.
type StashConfig struct {
	// Enabled controls whether the stash adapter is active.
	// When false, the adapter will not be started.
	Enabled bool `mapstructure:"enabled"`

	// Port is the TCP port to listen on for client connections.
	// If 0, the OS assigns an ephemeral port (useful in tests); the
	// standard port 2000 is applied by pkg/config.
	Port int `mapstructure:"port" validate:"min=0,max=65535"`

	// MaxConnections limits the number of concurrent client connections.
	// When reached, the accept loop pauses until an existing connection
	// closes. 0 means unlimited.
	MaxConnections int `mapstructure:"max_connections" validate:"min=0"`

	// AcceptRate throttles how many connections per second the accept loop
	// admits. 0 means unlimited.
	AcceptRate uint `mapstructure:"accept_rate"`

	// AcceptBurst is the burst allowance for AcceptRate.
	// Ignored when AcceptRate is 0; defaults to 2x AcceptRate when zero.
	AcceptBurst uint `mapstructure:"accept_burst"`

	// ReadTimeout is the maximum duration to wait for each read during a
	// request: the command line, the size line, or one data chunk.
	// The deadline is refreshed per read, so a slow-but-moving upload is
	// fine while a stalled one gets cut.
	// 0 means no timeout.
	ReadTimeout time.Duration `mapstructure:"read_timeout" validate:"min=0"`

	// WriteTimeout is the maximum duration for writing a control line or
	// one data chunk to the client. Refreshed per write.
	// 0 means no timeout.
	WriteTimeout time.Duration `mapstructure:"write_timeout" validate:"min=0"`

	// IdleTimeout is the maximum duration to wait for the initial command
	// line after a connection is accepted.
	// 0 means no timeout (connections may sit idle indefinitely).
	IdleTimeout time.Duration `mapstructure:"idle_timeout" validate:"min=0"`

	// ShutdownTimeout is the maximum duration to wait for active transfers
	// to complete during graceful shutdown.
	// After this timeout, remaining connections are forcibly closed.
	// Must be > 0 to ensure shutdown completes.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0"`

	// AllowRemoteStop controls whether the STOP command is honored.
	// When false, STOP is answered like any other unknown command, which
	// keeps hostile networks from shutting the server down.
	// Note: the default (true) is applied by pkg/config so an explicit
	// false from configuration survives.
	AllowRemoteStop bool `mapstructure:"allow_remote_stop"`

	// ChunkSize is the buffer size for data-phase streaming, in bytes.
	// If 0, defaults to 8192.
	ChunkSize int `mapstructure:"chunk_size" validate:"min=0"`
}

// applyDefaults fills in zero values with sensible defaults.
func (c *StashConfig) applyDefaults() {
	// Note: Enabled, AllowRemoteStop, Port, and MaxConnections defaults
	// are handled in pkg/config/defaults.go so explicit false/zero
	// values from configuration files survive.

	if c.AcceptRate > 0 && c.AcceptBurst == 0 {
		c.AcceptBurst = c.AcceptRate * 2
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 5 * time.Minute
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 1 * time.Minute
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = 8 * 1024
	}
}

// validate checks that the configuration is valid for production use.
func (c *StashConfig) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be 0-65535", c.Port)
	}
	if c.MaxConnections < 0 {
		return fmt.Errorf("invalid MaxConnections %d: must be >= 0", c.MaxConnections)
	}
	if c.ReadTimeout < 0 {
		return fmt.Errorf("invalid ReadTimeout %v: must be >= 0", c.ReadTimeout)
	}
	if c.WriteTimeout < 0 {
		return fmt.Errorf("invalid WriteTimeout %v: must be >= 0", c.WriteTimeout)
	}
	if c.IdleTimeout < 0 {
		return fmt.Errorf("invalid IdleTimeout %v: must be >= 0", c.IdleTimeout)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid ShutdownTimeout %v: must be > 0", c.ShutdownTimeout)
	}
	if c.ChunkSize < 0 {
		return fmt.Errorf("invalid ChunkSize %d: must be >= 0", c.ChunkSize)
	}
	return nil
}

// New creates a new StashAdapter with the specified configuration.
//
// The adapter is created in a stopped state. Call SetRegistry() to inject
// the shared resources, then call Serve() to start accepting connections.
//
// Configuration:
//   - Zero values in config are replaced with sensible defaults
//   - Invalid configurations cause a panic (indicates programmer error)
//
// Parameters:
//   - config: Server configuration (port, timeouts, limits)
//   - stashMetrics: Optional metrics collector (nil for no metrics)
//
// Returns a configured but not yet started StashAdapter.
//
// Panics if config validation fails.
func New(config StashConfig, stashMetrics metrics.StashMetrics) *StashAdapter {
	// Apply defaults for zero values
	config.applyDefaults()

	// Validate configuration
	if err := config.validate(); err != nil {
		panic(fmt.Sprintf("invalid stash config: %v", err))
	}

	// Create connection semaphore if MaxConnections is set
	var connSemaphore chan struct{}
	if config.MaxConnections > 0 {
		connSemaphore = make(chan struct{}, config.MaxConnections)
		logger.Debug("Stash connection limit", "max_connections", config.MaxConnections)
	} else {
		logger.Debug("Stash connection limit: unlimited")
	}

	// Create accept-rate limiter if configured
	var limiter *ratelimiter.ConnLimiter
	if config.AcceptRate > 0 {
		limiter = ratelimiter.New(config.AcceptRate, config.AcceptBurst)
		logger.Debug("Stash accept rate limit",
			"per_second", config.AcceptRate, "burst", config.AcceptBurst)
	}

	// Create shutdown context for request cancellation
	shutdownCtx, cancelRequests := context.WithCancel(context.Background())

	// Use no-op metrics if none provided
	if stashMetrics == nil {
		stashMetrics = &noopStashMetrics{}
	}

	return &StashAdapter{
		config:         config,
		metrics:        stashMetrics,
		limiter:        limiter,
		shutdown:       make(chan struct{}),
		connSemaphore:  connSemaphore,
		shutdownCtx:    shutdownCtx,
		cancelRequests: cancelRequests,
		// activeConnections is initialized as zero-value sync.Map (ready to use)
	}
}

// noopStashMetrics provides a local no-op implementation when the metrics
// package is not used.
type noopStashMetrics struct{}

func (noopStashMetrics) RecordRequest(verb string, duration time.Duration, err error) {}
func (noopStashMetrics) RecordRequestStart(verb string)                               {}
func (noopStashMetrics) RecordRequestEnd(verb string)                                 {}
func (noopStashMetrics) RecordBytesTransferred(direction string, bytes int64)         {}
func (noopStashMetrics) RecordVersionCreated()                                        {}
func (noopStashMetrics) SetLockedPaths(count int)                                     {}
func (noopStashMetrics) SetActiveConnections(count int32)                             {}
func (noopStashMetrics) RecordConnectionAccepted()                                    {}
func (noopStashMetrics) RecordConnectionClosed()                                      {}

// SetRegistry injects the shared registry containing the file store and
// lock table.
//
// This method is called by the server before Serve(). The resources are
// shared across all protocol adapters.
//
// Thread safety:
// Called exactly once before Serve(), no synchronization needed.
func (s *StashAdapter) SetRegistry(reg *registry.Registry) {
	s.registry = reg
	logger.Debug("Stash registry configured")
}

// SetStopRequestHandler installs the callback invoked when a client issues
// a STOP command. The server uses this to shut down every adapter, not just
// this one. When no handler is installed, a STOP shuts down this adapter
// alone.
//
// Thread safety:
// Called before Serve(), no synchronization needed.
func (s *StashAdapter) SetStopRequestHandler(fn func()) {
	s.onStopRequest = fn
}

// Serve starts the stash server and blocks until the context is cancelled
// or an unrecoverable error occurs.
//
// Serve accepts incoming TCP connections on the configured port and spawns
// a goroutine to handle each connection. Every connection runs exactly one
// protocol exchange.
//
// Graceful shutdown:
// When the context is cancelled, Serve initiates graceful shutdown:
//  1. Stops accepting new connections (listener closed)
//  2. Cancels all in-flight transfer contexts (shutdownCtx cancelled)
//  3. Waits for active connections to complete (up to ShutdownTimeout)
//  4. Forcibly closes any remaining connections after timeout
//
// Parameters:
//   - ctx: Controls the server lifecycle. Cancellation triggers graceful shutdown.
//
// Returns:
//   - nil on graceful shutdown
//   - error if the registry is incomplete, the listener fails to start, or
//     shutdown is not graceful
//
// Thread safety:
// Serve() should only be called once per StashAdapter instance.
func (s *StashAdapter) Serve(ctx context.Context) error {
	if s.registry == nil {
		return fmt.Errorf("stash adapter has no registry: call SetRegistry before Serve")
	}
	if err := s.registry.Validate(); err != nil {
		return fmt.Errorf("stash adapter registry incomplete: %w", err)
	}

	// Create TCP listener
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.Port))
	if err != nil {
		return fmt.Errorf("failed to create stash listener on port %d: %w", s.config.Port, err)
	}

	s.listener = listener
	if addr, ok := listener.Addr().(*net.TCPAddr); ok {
		s.boundPort.Store(int32(addr.Port))
	}
	logger.Info("Stash server listening", "port", s.Port())
	logger.Debug("Stash config",
		"max_connections", s.config.MaxConnections,
		"read_timeout", s.config.ReadTimeout,
		"write_timeout", s.config.WriteTimeout,
		"idle_timeout", s.config.IdleTimeout,
		"allow_remote_stop", s.config.AllowRemoteStop)

	// Monitor context cancellation in separate goroutine
	// This allows the main accept loop to focus on accepting connections
	go func() {
		<-ctx.Done()
		logger.Info("Stash shutdown signal received", "reason", ctx.Err())
		s.initiateShutdown()
	}()

	// Accept connections until shutdown
	for {
		// Throttle the accept pace if rate limiting is enabled. Waiting
		// here (instead of accept-then-reject) keeps the backlog in the
		// kernel queue where it belongs.
		if s.limiter != nil {
			if err := s.limiter.Wait(s.shutdownCtx); err != nil {
				return s.gracefulShutdown()
			}
		}

		// Acquire connection semaphore if connection limiting is enabled
		// This blocks if we're at MaxConnections until a connection closes
		if s.connSemaphore != nil {
			select {
			case s.connSemaphore <- struct{}{}:
				// Acquired semaphore slot, proceed with accept
			case <-s.shutdown:
				// Shutdown initiated while waiting for semaphore
				return s.gracefulShutdown()
			}
		}

		// Accept next connection (blocks until connection arrives or error)
		tcpConn, err := s.listener.Accept()
		if err != nil {
			// Release semaphore on accept error
			if s.connSemaphore != nil {
				<-s.connSemaphore
			}

			// Check if error is due to shutdown (expected) or network error
			select {
			case <-s.shutdown:
				// Expected error during shutdown (listener was closed)
				return s.gracefulShutdown()
			default:
				// Unexpected error - log but continue
				logger.Debug("Error accepting stash connection", "error", err)
				continue
			}
		}

		// Track connection for graceful shutdown
		s.activeConns.Add(1)
		s.connCount.Add(1)

		// Record metrics for connection accepted
		s.metrics.RecordConnectionAccepted()
		currentConns := s.connCount.Load()
		s.metrics.SetActiveConnections(currentConns)

		// Handle connection in separate goroutine
		conn := NewStashConnection(s, tcpConn)

		// Register connection for forced closure capability
		s.activeConnections.Store(conn.ID(), tcpConn)

		logger.Debug("Stash connection accepted",
			logger.KeyConnID, conn.ID(),
			logger.KeyClientIP, tcpConn.RemoteAddr().String(),
			"active", currentConns)

		go func(id string, tcp net.Conn) {
			defer func() {
				// Unregister connection (lock-free with sync.Map)
				s.activeConnections.Delete(id)

				// Cleanup on connection close
				s.activeConns.Done()
				s.connCount.Add(-1)
				if s.connSemaphore != nil {
					<-s.connSemaphore
				}

				// Record metrics for connection closed
				s.metrics.RecordConnectionClosed()
				currentConns := s.connCount.Load()
				s.metrics.SetActiveConnections(currentConns)

				logger.Debug("Stash connection closed",
					logger.KeyConnID, id,
					"active", currentConns)
			}()

			// Handle the single exchange for this connection
			// Pass shutdownCtx so transfers can detect shutdown and abort
			conn.Serve(s.shutdownCtx)
		}(conn.ID(), tcpConn)
	}
}

// requestRemoteStop reacts to a client STOP command.
//
// The success line has already been queued by the handler; this hands the
// shutdown decision to the installed stop-request handler (normally the
// server, which stops every adapter) or shuts this adapter down when no
// handler is installed. Runs the handler in a goroutine so the connection
// that issued STOP can finish its exchange and be drained like any other.
func (s *StashAdapter) requestRemoteStop() {
	s.stopRequestOnce.Do(func() {
		logger.Info("Stash remote stop requested")
		if s.onStopRequest != nil {
			go s.onStopRequest()
			return
		}
		go s.initiateShutdown()
	})
}

// initiateShutdown signals the server to begin graceful shutdown.
//
// This method is called automatically when the context is cancelled or
// when Stop() is called. It's safe to call multiple times.
//
// Shutdown sequence:
//  1. Close shutdown channel (signals accept loop to stop)
//  2. Close listener (stops accepting new connections)
//  3. Cancel shutdownCtx (signals in-flight transfers to abort)
//
// Thread safety:
// Safe to call multiple times and from multiple goroutines.
// Uses sync.Once to ensure shutdown logic only runs once.
func (s *StashAdapter) initiateShutdown() {
	s.shutdownOnce.Do(func() {
		logger.Debug("Stash shutdown initiated")

		// Close shutdown channel (signals accept loop)
		close(s.shutdown)

		// Close listener (stops accepting new connections)
		if s.listener != nil {
			if err := s.listener.Close(); err != nil {
				logger.Debug("Error closing stash listener", "error", err)
			}
		}

		// Cancel all in-flight transfer contexts
		s.cancelRequests()
		logger.Debug("Stash cancellation signal sent to all in-flight transfers")
	})
}

// gracefulShutdown waits for active connections to complete or timeout.
//
// This method blocks until either:
//   - All active connections complete naturally
//   - ShutdownTimeout expires
//
// After the timeout, remaining TCP connections are force-closed: the
// cancelled shutdownCtx stops new work while the closed socket fails any
// blocked read or write, so stuck handlers exit quickly.
//
// Returns:
//   - nil if all connections completed gracefully
//   - error if shutdown timeout exceeded (connections were force-closed)
//
// Thread safety:
// Should only be called once, from the Serve() method.
func (s *StashAdapter) gracefulShutdown() error {
	activeCount := s.connCount.Load()
	logger.Info("Stash graceful shutdown: waiting for active connections",
		"active", activeCount, "timeout", s.config.ShutdownTimeout)

	// Create channel that closes when all connections are done
	done := make(chan struct{})
	go func() {
		s.activeConns.Wait()
		close(done)
	}()

	// Wait for completion or timeout
	select {
	case <-done:
		logger.Info("Stash graceful shutdown complete: all connections closed")
		return nil

	case <-time.After(s.config.ShutdownTimeout):
		remaining := s.connCount.Load()
		logger.Warn("Stash shutdown timeout exceeded: forcing closure",
			"remaining", remaining, "timeout", s.config.ShutdownTimeout)

		// Force-close all remaining connections
		s.forceCloseConnections()

		return fmt.Errorf("stash shutdown timeout: %d connections force-closed", remaining)
	}
}

// forceCloseConnections closes all active TCP connections to accelerate
// shutdown.
//
// This method is called after the graceful shutdown timeout expires. It
// iterates through all active connections and closes their underlying TCP
// sockets, triggering immediate failure of any ongoing I/O.
//
// Thread safety:
// Safe to call once during shutdown. Uses sync.Map for lock-free iteration.
func (s *StashAdapter) forceCloseConnections() {
	logger.Info("Force-closing active stash connections")

	closedCount := 0
	s.activeConnections.Range(func(key, value any) bool {
		id := key.(string)
		conn := value.(net.Conn)

		if err := conn.Close(); err != nil {
			logger.Debug("Error force-closing connection", logger.KeyConnID, id, "error", err)
		} else {
			closedCount++
			logger.Debug("Force-closed connection", logger.KeyConnID, id)
		}

		// Continue iteration
		return true
	})

	if closedCount == 0 {
		logger.Debug("No connections to force-close")
	} else {
		logger.Info("Force-closed connections", "count", closedCount)
	}
}

// Stop initiates graceful shutdown of the stash server.
//
// Stop is safe to call multiple times and safe to call concurrently with
// Serve(). It signals the server to begin shutdown and waits for active
// connections to complete.
//
// The context parameter allows the caller to set a custom shutdown timeout,
// overriding the configured ShutdownTimeout. If ctx is cancelled before
// connections complete, Stop returns with the context error.
//
// Parameters:
//   - ctx: Controls the shutdown timeout. If nil, the configured
//     ShutdownTimeout applies.
//
// Returns:
//   - nil on successful graceful shutdown
//   - error if shutdown timeout exceeded or context cancelled
//
// Thread safety:
// Safe to call concurrently from multiple goroutines.
func (s *StashAdapter) Stop(ctx context.Context) error {
	// Always initiate shutdown first
	s.initiateShutdown()

	// If no context provided, use gracefulShutdown with configured timeout
	if ctx == nil {
		return s.gracefulShutdown()
	}

	// Wait for graceful shutdown with context timeout
	activeCount := s.connCount.Load()
	logger.Info("Stash graceful shutdown: waiting for active connections",
		"active", activeCount)

	// Create channel that closes when all connections are done
	done := make(chan struct{})
	go func() {
		s.activeConns.Wait()
		close(done)
	}()

	// Wait for completion or context cancellation
	select {
	case <-done:
		logger.Info("Stash graceful shutdown complete: all connections closed")
		return nil

	case <-ctx.Done():
		remaining := s.connCount.Load()
		logger.Warn("Stash shutdown context cancelled",
			"remaining", remaining, "error", ctx.Err())
		return ctx.Err()
	}
}

// GetActiveConnections returns the current number of active connections.
//
// This method is primarily used for testing and monitoring.
//
// Thread safety:
// Safe to call concurrently. Uses atomic operations.
func (s *StashAdapter) GetActiveConnections() int32 {
	return s.connCount.Load()
}

// Port returns the TCP port the stash server is listening on. Before
// Serve binds the listener this is the configured port, which may be 0.
//
// This implements the adapter.Adapter interface.
func (s *StashAdapter) Port() int {
	if p := s.boundPort.Load(); p != 0 {
		return int(p)
	}
	return s.config.Port
}

// Protocol returns "stash" as the protocol identifier.
//
// This implements the adapter.Adapter interface.
func (s *StashAdapter) Protocol() string {
	return "stash"
}
