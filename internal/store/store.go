// ABOUTME: Store interface and data types for the inbox development server
// ABOUTME: Participants, two-party conversations, messages and per-viewer read positions

package store

import (
	"context"
	"errors"
	"time"

	"github.com/2389/coven-inbox/internal/chat"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when creating an entity whose ID is taken
var ErrDuplicate = errors.New("already exists")

// Participant is a person who can take part in conversations
type Participant struct {
	ID          string
	DisplayName string
	AvatarURL   string
	Deactivated bool
	CreatedAt   time.Time
}

// Conversation links exactly two participants
type Conversation struct {
	ID             string
	ParticipantIDs [2]string
	CreatedAt      time.Time
}

// Includes reports whether participantID takes part in the conversation.
func (c *Conversation) Includes(participantID string) bool {
	return c.ParticipantIDs[0] == participantID || c.ParticipantIDs[1] == participantID
}

// Counterpart returns the other participant's ID as seen by viewerID.
func (c *Conversation) Counterpart(viewerID string) string {
	if c.ParticipantIDs[0] == viewerID {
		return c.ParticipantIDs[1]
	}
	return c.ParticipantIDs[0]
}

// Message is a stored conversation message
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	Body           string
	CreatedAt      time.Time
}

// Store is the persistence surface of the development server.
//
// ListConversations and ListMessages return the wire model directly:
// conversations carry the counterpart, the newest message preview and the
// viewer's unread count; messages are ordered by creation time then ID.
type Store interface {
	CreateParticipant(ctx context.Context, p *Participant) error
	GetParticipant(ctx context.Context, id string) (*Participant, error)
	SetParticipantDeactivated(ctx context.Context, id string, deactivated bool) error

	CreateConversation(ctx context.Context, c *Conversation) error
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	ListConversations(ctx context.Context, viewerID string) ([]chat.Conversation, error)

	SaveMessage(ctx context.Context, m *Message) error
	GetMessage(ctx context.Context, id string) (*Message, error)
	ListMessages(ctx context.Context, conversationID string) ([]chat.Message, error)

	// MarkRead moves viewerID's read position in the conversation forward
	// to throughID. Older positions are ignored.
	MarkRead(ctx context.Context, conversationID, viewerID, throughID string) error

	Close() error
}

// after reports whether (at, id) sorts after (refAt, refID) in message order.
func after(at time.Time, id string, refAt time.Time, refID string) bool {
	if !at.Equal(refAt) {
		return at.After(refAt)
	}
	return id > refID
}
