// Package connection provides the bounded connection retry policy used to
// reach devices that reject connections for a short while after power-on
// or after a previous session closed.
//
// # Retry Strategy
//
// A Retrier runs a connect function up to MaxAttempts times:
//
//  1. Each attempt gets its own timeout (default 300 ms).
//  2. Failed attempts are retried immediately by default; an optional
//     exponential backoff with jitter can be configured.
//  3. The error of the last attempt is returned, wrapped with
//     ErrRetriesExhausted.
//  4. Cancelling the parent context stops the loop between attempts.
//
// The defaults (50 attempts of 300 ms) are tuning knobs, not protocol
// requirements.
package connection
