// ABOUTME: Remote surface the sync engine consumes, independent of transport
// ABOUTME: Also defines the session collaborator notified when auth fails

package chatsync

import (
	"context"

	"github.com/2389/coven-inbox/internal/chat"
)

// Source is the remote conversation store. Implementations must be safe
// for concurrent use; the engine may have several calls outstanding.
// Errors should wrap the chat sentinels (ErrNetwork, ErrAuth,
// ErrValidation, ErrNotFound); anything else is treated as ErrNetwork.
type Source interface {
	ListConversations(ctx context.Context, viewerID string) ([]chat.Conversation, error)
	ListMessages(ctx context.Context, conversationID chat.ConversationID) ([]chat.Message, error)
	SendMessage(ctx context.Context, req chat.SendRequest) (chat.Message, error)
	MarkRead(ctx context.Context, receipt chat.ReadReceipt) error
}

// AuthHandler receives the error that halted the engine. It is called
// once, on the engine goroutine, so it must not block.
type AuthHandler interface {
	HandleAuthError(err error)
}

// AuthHandlerFunc adapts a function to AuthHandler.
type AuthHandlerFunc func(err error)

// HandleAuthError calls f(err).
func (f AuthHandlerFunc) HandleAuthError(err error) { f(err) }
