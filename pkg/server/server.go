package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/stashd/internal/logger"
	"github.com/marmos91/stashd/pkg/adapter"
	"github.com/marmos91/stashd/pkg/metrics"
	"github.com/marmos91/stashd/pkg/registry"
)

// StashServer manages the lifecycle of the protocol adapters that share the
// registry's file store and lock table.
//
// Architecture:
// StashServer orchestrates protocol adapters (the stash protocol today,
// others could be added alongside it) represented as Adapter
// implementations. All adapters share the same registry, so every protocol
// sees the same files and contends on the same per-path locks.
//
// Lifecycle:
//  1. Creation: New() with a populated registry
//  2. Registration: AddAdapter() for each protocol
//  3. Startup: Serve() starts all adapters concurrently
//  4. Shutdown: context cancellation, or a client STOP command relayed by
//     an adapter through RequestStop(), triggers graceful shutdown of all
//     adapters
//
// Thread safety:
// StashServer is safe for concurrent use. AddAdapter() may be called
// concurrently with other methods. Serve() should only be called once per
// server instance.
//
// Example usage:
//
//	server := New(reg)
//	server.AddAdapter(stash.New(stashConfig, stashMetrics))
//
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer cancel()
//
//	if err := server.Serve(ctx); err != nil && err != context.Canceled {
//	    log.Fatal(err)
//	}
type StashServer struct {
	// registry holds the shared file store and lock table for all adapters
	registry *registry.Registry

	// metricsServer optionally exposes /metrics over HTTP
	// nil when metrics are disabled
	metricsServer *metrics.Server

	// adapters contains all registered protocol adapters
	adapters []adapter.Adapter

	// mu protects the adapters slice and serving flag
	mu sync.RWMutex

	// serveOnce ensures Serve() is only called once
	serveOnce sync.Once

	// served indicates whether Serve() has been called
	served bool

	// stopCh is closed by RequestStop to shut the whole server down from
	// inside an adapter (a client STOP command)
	stopCh chan struct{}

	// stopOnce guards stopCh against concurrent STOP requests
	stopOnce sync.Once
}

// stopRequester is implemented by adapters whose protocol includes a
// remote-stop command.
type stopRequester interface {
	SetStopRequestHandler(func())
}

// New creates a new StashServer around the provided registry.
//
// The registry is shared across all adapters added to this server, so file
// operations are consistent regardless of which protocol performed them.
// The registry does not have to be complete yet; each adapter validates it
// when Serve() starts.
//
// Panics if the registry is nil (indicates programmer error).
func New(reg *registry.Registry) *StashServer {
	if reg == nil {
		panic("registry cannot be nil")
	}

	return &StashServer{
		registry: reg,
		adapters: make([]adapter.Adapter, 0, 2),
		stopCh:   make(chan struct{}),
	}
}

// SetMetricsServer attaches an optional Prometheus metrics HTTP server.
// It is started alongside the adapters and stopped with them. A failure to
// start it is logged but does not bring down file serving.
//
// Must be called before Serve().
func (s *StashServer) SetMetricsServer(ms *metrics.Server) {
	s.metricsServer = ms
}

// AddAdapter registers a new protocol adapter with the server.
//
// This method injects the shared registry into the adapter and, when the
// adapter supports remote stop, wires its stop requests to RequestStop so a
// STOP command shuts down every adapter rather than just the one that
// received it.
//
// Returns an error if the adapter duplicates an already-registered
// protocol or listening port. Port 0 (ephemeral) never conflicts.
//
// Panics if:
//   - adapter is nil (programmer error)
//   - Serve() has already been called (server is running)
//
// Thread safety:
// Safe to call concurrently from multiple goroutines before Serve().
func (s *StashServer) AddAdapter(a adapter.Adapter) error {
	if a == nil {
		panic("adapter cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.served {
		panic("cannot add adapter after Serve() has been called")
	}

	protocol := a.Protocol()
	port := a.Port()

	for _, existing := range s.adapters {
		if existing.Protocol() == protocol {
			return fmt.Errorf("adapter for protocol %s already registered", protocol)
		}
		if port != 0 && existing.Port() == port {
			return fmt.Errorf("port %d already in use by %s adapter",
				port, existing.Protocol())
		}
	}

	a.SetRegistry(s.registry)

	if sr, ok := a.(stopRequester); ok {
		sr.SetStopRequestHandler(s.RequestStop)
	}

	s.adapters = append(s.adapters, a)

	logger.Info("Registered adapter", "protocol", protocol, "port", port)

	return nil
}

// RequestStop initiates graceful shutdown of the whole server.
//
// Adapters call it (through their stop-request handler) when a client
// issues a STOP command; it may also be called directly. Safe to call
// multiple times and before Serve(); shutdown begins once Serve() is
// running.
func (s *StashServer) RequestStop() {
	s.stopOnce.Do(func() {
		logger.Info("Server stop requested")
		close(s.stopCh)
	})
}

// Serve starts all registered adapters and blocks until the context is
// cancelled, RequestStop is called, or an adapter fails.
//
// Serve() orchestrates the lifecycle of all adapters:
//  1. Validates that at least one adapter is registered
//  2. Starts the metrics server (when attached) and all adapters
//     concurrently in separate goroutines
//  3. Monitors for shutdown signals or adapter failures
//  4. On shutdown: stops all adapters in reverse registration order
//  5. Waits for all adapters to complete shutdown
//
// Returns:
//   - context.Canceled on graceful shutdown (external cancellation or a
//     relayed STOP command)
//   - error if startup failed or an adapter encountered an error
//
// Panics if Serve() is called more than once on the same instance.
func (s *StashServer) Serve(ctx context.Context) error {
	var err error
	ran := false

	s.serveOnce.Do(func() {
		ran = true
		s.mu.Lock()
		s.served = true
		s.mu.Unlock()
		err = s.serve(ctx)
	})

	if !ran {
		panic("Serve() has already been called on this server instance")
	}

	return err
}

// serve is the internal implementation of Serve().
// Separated to allow serveOnce protection.
func (s *StashServer) serve(ctx context.Context) error {
	s.mu.RLock()
	if len(s.adapters) == 0 {
		s.mu.RUnlock()
		return fmt.Errorf("no adapters registered; call AddAdapter() before Serve()")
	}
	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	s.mu.RUnlock()

	// Fold STOP requests into the lifecycle context so both shutdown paths
	// look the same from here on.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	logger.Info("Starting server", "adapters", len(adapters))

	if s.metricsServer != nil {
		go func() {
			if err := s.metricsServer.Start(ctx); err != nil {
				logger.Error("Metrics server error", logger.KeyError, err)
			}
		}()
	}

	// Buffered so adapter goroutines never block reporting a failure
	errChan := make(chan adapterError, len(adapters))

	var wg sync.WaitGroup

	for _, adp := range adapters {
		wg.Add(1)
		go func(a adapter.Adapter) {
			defer wg.Done()

			protocol := a.Protocol()

			logger.Info("Starting adapter", "protocol", protocol, "port", a.Port())

			if err := a.Serve(ctx); err != nil {
				// context.Canceled is expected during shutdown
				if err != context.Canceled && ctx.Err() == nil {
					logger.Error("Adapter failed",
						"protocol", protocol, logger.KeyError, err)
					errChan <- adapterError{protocol: protocol, err: err}
				} else {
					logger.Debug("Adapter stopped", "protocol", protocol)
				}
			} else {
				logger.Info("Adapter stopped", "protocol", protocol)
			}
		}(adp)
	}

	var shutdownErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received", "reason", ctx.Err())
		s.stopAllAdapters(adapters)
		shutdownErr = ctx.Err()

	case adapterErr := <-errChan:
		logger.Error("Adapter failed, shutting down all adapters",
			"protocol", adapterErr.protocol, logger.KeyError, adapterErr.err)
		s.stopAllAdapters(adapters)
		shutdownErr = fmt.Errorf("%s adapter error: %w", adapterErr.protocol, adapterErr.err)
	}

	logger.Debug("Waiting for all adapters to complete shutdown")
	wg.Wait()

	logger.Info("Server stopped")

	return shutdownErr
}

// adapterError pairs an adapter protocol name with its error.
type adapterError struct {
	protocol string
	err      error
}

// stopAllAdapters initiates graceful shutdown of all adapters in reverse
// registration order.
//
// Each adapter receives a Stop() call with a shared timeout context so a
// single misbehaving adapter cannot block shutdown indefinitely. Errors are
// logged and the remaining adapters are still stopped.
//
// This method only initiates shutdown; the caller waits for the adapter
// goroutines through the WaitGroup.
func (s *StashServer) stopAllAdapters(adapters []adapter.Adapter) {
	const stopTimeout = 30 * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	logger.Info("Stopping adapters", "count", len(adapters))

	for i := len(adapters) - 1; i >= 0; i-- {
		adp := adapters[i]
		protocol := adp.Protocol()

		logger.Debug("Stopping adapter", "protocol", protocol, "port", adp.Port())

		if err := adp.Stop(ctx); err != nil && err != context.Canceled {
			logger.Error("Error stopping adapter",
				"protocol", protocol, logger.KeyError, err)
		} else {
			logger.Debug("Adapter stop signal sent", "protocol", protocol)
		}
	}
}

// Adapters returns a snapshot of currently registered adapters.
//
// The returned slice is a copy and safe to iterate without holding locks.
func (s *StashServer) Adapters() []adapter.Adapter {
	s.mu.RLock()
	defer s.mu.RUnlock()

	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	return adapters
}
