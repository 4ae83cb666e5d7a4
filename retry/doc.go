// Package retry holds the resilience policy shared by the option resolver
// and the retry engine.
//
// Policy
//   - Tries is the total number of physical attempts (default 1, no retry).
//   - Delay is the fixed wait between a failed attempt and the next one.
//   - ShouldRetry is an optional predicate over the classified Outcome.
//     When nil, DefaultShouldRetry applies: network errors and timeouts are
//     retried, HTTP error statuses are not.
//
// Aborts, parse errors and permanent failures (requests that could not be
// built) are never retried regardless of the predicate.
//
// Errors
//   - Failures are reported as ClientError values whose Type() names the
//     category (network, timeout, abort, http, parse, argument).
//   - Error texts are stable across retries: "abort", "timeout", and the
//     server status text for HTTP errors.
package retry
