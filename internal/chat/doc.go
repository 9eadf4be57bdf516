// Package chat defines the conversation and message model shared by the
// sync engine, the HTTP binding and the development server.
//
// # Ordering
//
// Messages are totally ordered by creation time with ties broken by ID.
// Use Less or SortMessages rather than comparing timestamps directly:
//
//	chat.SortMessages(timeline)
//
// # Errors
//
// Remote failures are classified with four sentinels that callers test
// with errors.Is:
//
//   - ErrNetwork: transient connectivity, timeout or server failure
//   - ErrAuth: the viewer session is invalid; not retried
//   - ErrValidation: rejected locally or by the server as malformed
//   - ErrNotFound: the conversation no longer exists or is not accessible
package chat
