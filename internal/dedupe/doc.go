// Package dedupe remembers idempotency keys for a bounded time so that a
// replayed request can be answered with the result of the original one.
package dedupe
