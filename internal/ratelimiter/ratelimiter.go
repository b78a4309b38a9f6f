package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"
)

// ConnLimiter throttles connection admission using the token bucket algorithm.
//
// This implementation wraps golang.org/x/time/rate to provide:
//   - Token bucket limiting (allows bursts while enforcing a sustained rate)
//   - Context-aware waiting (respects cancellation during shutdown)
//   - Thread-safe operation
//
// The accept loop consumes one token per inbound connection:
//  1. Tokens are added to the bucket at a constant rate (connections per second)
//  2. Each accepted connection consumes one token
//  3. When the bucket is empty the accept loop waits for the next token
//  4. Burst capacity absorbs short connection spikes above the sustained rate
//
// Thread safety:
// All methods are safe for concurrent use.
type ConnLimiter struct {
	limiter *rate.Limiter
}

// New creates a ConnLimiter with the specified sustained rate and burst capacity.
//
// Parameters:
//   - connsPerSecond: Maximum sustained admission rate (tokens added per second)
//   - burst: Maximum burst size (bucket capacity in tokens)
//
// The burst parameter controls how many connections can be admitted
// back-to-back when the bucket is full. It should typically be >=
// connsPerSecond.
//
// Special cases:
//   - connsPerSecond = 0: No limiting (unlimited admission)
//
// Example:
//
//	// Admit 100 conns/s sustained, 200 in a burst
//	limiter := ratelimiter.New(100, 200)
//
// Returns a configured ConnLimiter.
func New(connsPerSecond, burst uint) *ConnLimiter {
	if connsPerSecond == 0 {
		// Unlimited rate: use a very high limit
		// rate.Inf would be ideal but has edge cases, so use a large value
		connsPerSecond = 1_000_000_000
		burst = connsPerSecond
	}

	return &ConnLimiter{
		limiter: rate.NewLimiter(rate.Limit(connsPerSecond), int(burst)),
	}
}

// Allow checks whether a connection may be admitted right now.
//
// This is the fast path: it returns immediately without waiting.
//
// Returns:
//   - true if the connection is admitted (token consumed)
//   - false if admission should be deferred (no tokens available)
//
// Thread safety:
// Safe to call concurrently.
func (l *ConnLimiter) Allow() bool {
	return l.limiter.Allow()
}

// Wait blocks until a token is available or the context is cancelled.
//
// The accept loop calls Wait before each Accept so that a connection
// flood is smoothed to the configured rate instead of being rejected.
//
// Parameters:
//   - ctx: Controls the maximum wait time. If cancelled, returns the context error.
//
// Returns:
//   - nil once a token was acquired
//   - the context error if cancelled before a token became available
//
// Thread safety:
// Safe to call concurrently.
func (l *ConnLimiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// SetLimit updates the sustained admission rate.
//
// This allows dynamic adjustments without recreating the limiter. The burst
// size is raised to match the new rate when the previous burst would
// otherwise cap replenishment below it.
//
// Parameters:
//   - connsPerSecond: New maximum sustained rate
//
// Thread safety:
// Safe to call concurrently.
func (l *ConnLimiter) SetLimit(connsPerSecond uint) {
	if connsPerSecond == 0 {
		connsPerSecond = 1_000_000_000
	}

	oldRate := uint(l.limiter.Limit())
	oldBurst := uint(l.limiter.Burst())
	l.limiter.SetLimit(rate.Limit(connsPerSecond))

	if oldBurst == oldRate*2 || oldBurst <= oldRate {
		l.limiter.SetBurst(int(connsPerSecond * 2))
	}
}

// Tokens returns the current number of available tokens.
//
// This is primarily useful for monitoring and debugging. The value may
// change immediately after this call due to concurrent access or token
// replenishment.
//
// Thread safety:
// Safe to call concurrently.
func (l *ConnLimiter) Tokens() float64 {
	return l.limiter.Tokens()
}
