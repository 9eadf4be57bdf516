// ABOUTME: Conversation and message types shared across the inbox client and server
// ABOUTME: Defines the total message order (created_at, then id) and timeline helpers

package chat

import (
	"sort"
	"time"
)

// ConversationID identifies a two-party conversation.
type ConversationID string

// MessageID identifies a message within its conversation.
type MessageID string

// Participant is the display identity of the other side of a conversation.
type Participant struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	Deactivated bool   `json:"deactivated"`
}

// Preview summarizes the newest message of a conversation.
type Preview struct {
	Text     string    `json:"text"`
	SentAt   time.Time `json:"sent_at"`
	SenderID string    `json:"sender_id"`
}

// Conversation is one entry of the viewer's conversation list.
// LastMessage is nil when the conversation has no messages yet.
type Conversation struct {
	ID          ConversationID `json:"id"`
	Counterpart Participant    `json:"counterpart"`
	LastMessage *Preview       `json:"last_message,omitempty"`
	UnreadCount int            `json:"unread_count"`
}

// Message is a single entry of a conversation timeline.
type Message struct {
	ID             MessageID      `json:"id"`
	ConversationID ConversationID `json:"conversation_id"`
	SenderID       string         `json:"sender_id"`
	SenderName     string         `json:"sender_name"`
	Body           string         `json:"body"`
	CreatedAt      time.Time      `json:"created_at"`
}

// SendRequest carries a new message to the remote.
// IdempotencyKey lets the remote collapse replays of the same send.
type SendRequest struct {
	ConversationID ConversationID
	SenderID       string
	Body           string
	IdempotencyKey string
}

// ReadReceipt marks every message up to and including Through as read
// for ViewerID.
type ReadReceipt struct {
	ConversationID ConversationID
	ViewerID       string
	Through        MessageID
}

// Less reports whether a sorts before b: earlier creation time first,
// ties broken by ID.
func Less(a, b Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// SortMessages orders a timeline in place.
func SortMessages(messages []Message) {
	sort.SliceStable(messages, func(i, j int) bool {
		return Less(messages[i], messages[j])
	})
}

// Last returns the newest message of an ordered timeline.
func Last(messages []Message) (Message, bool) {
	if len(messages) == 0 {
		return Message{}, false
	}
	return messages[len(messages)-1], true
}

// Contains reports whether a timeline holds a message with the given ID.
func Contains(messages []Message, id MessageID) bool {
	for _, m := range messages {
		if m.ID == id {
			return true
		}
	}
	return false
}
