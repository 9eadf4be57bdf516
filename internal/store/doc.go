// Package store persists the data behind the development inbox server.
//
// # Model
//
//   - Participant: someone who can send and read messages
//   - Conversation: exactly two participants
//   - Message: body, sender and creation time
//   - read position: per conversation and viewer, the newest message read
//
// ListConversations and ListMessages return the chat wire types so the
// HTTP layer can encode them directly. Unread counts are derived from the
// read position and exclude the viewer's own messages.
//
// # Implementations
//
// SQLiteStore uses modernc.org/sqlite (no cgo) in WAL mode and creates its
// schema on open. MockStore keeps everything in memory for tests.
package store
