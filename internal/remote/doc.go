// Package remote binds the sync engine's conversation source to the HTTP
// API served by internal/server.
//
// Response statuses map onto the chat error taxonomy: 401 and 403 are
// chat.ErrAuth, 404 is chat.ErrNotFound, 400 and 422 are
// chat.ErrValidation, and everything else (including transport failures
// and timeouts) is chat.ErrNetwork.
//
// Sends that fail with a network error are retried with exponential
// backoff using the same Idempotency-Key, which the server uses to collapse
// replays into the original message.
package remote
