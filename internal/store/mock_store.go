// ABOUTME: In-memory Store implementation for tests
// ABOUTME: Mirrors SQLiteStore semantics so handlers can be tested without SQLite

package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/coven-inbox/internal/chat"
)

type readPosition struct {
	throughID string
	throughAt time.Time
}

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu            sync.RWMutex
	participants  map[string]*Participant
	conversations map[string]*Conversation
	messages      map[string]*Message
	timelines     map[string][]string // conversation ID -> message IDs
	reads         map[string]readPosition
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		participants:  make(map[string]*Participant),
		conversations: make(map[string]*Conversation),
		messages:      make(map[string]*Message),
		timelines:     make(map[string][]string),
		reads:         make(map[string]readPosition),
	}
}

func readKey(conversationID, viewerID string) string {
	return conversationID + ":" + viewerID
}

// CreateParticipant stores a new participant.
func (m *MockStore) CreateParticipant(_ context.Context, p *Participant) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.participants[p.ID]; ok {
		return fmt.Errorf("participant %s: %w", p.ID, ErrDuplicate)
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	cp := *p
	m.participants[p.ID] = &cp
	return nil
}

// GetParticipant retrieves a participant by ID.
func (m *MockStore) GetParticipant(_ context.Context, id string) (*Participant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.participants[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// SetParticipantDeactivated flags or unflags a participant as deactivated.
func (m *MockStore) SetParticipantDeactivated(_ context.Context, id string, deactivated bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.participants[id]
	if !ok {
		return ErrNotFound
	}
	p.Deactivated = deactivated
	return nil
}

// CreateConversation stores a new two-party conversation.
func (m *MockStore) CreateConversation(_ context.Context, c *Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if _, ok := m.conversations[c.ID]; ok {
		return fmt.Errorf("conversation %s: %w", c.ID, ErrDuplicate)
	}
	for _, pid := range c.ParticipantIDs {
		if _, ok := m.participants[pid]; !ok {
			return fmt.Errorf("participant %s: %w", pid, ErrNotFound)
		}
	}
	if c.ParticipantIDs[0] == c.ParticipantIDs[1] {
		return fmt.Errorf("conversation %s needs two distinct participants", c.ID)
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	cp := *c
	m.conversations[c.ID] = &cp
	return nil
}

// GetConversation retrieves a conversation by ID.
func (m *MockStore) GetConversation(_ context.Context, id string) (*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

// ListConversations returns every conversation viewerID takes part in.
func (m *MockStore) ListConversations(_ context.Context, viewerID string) ([]chat.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := []chat.Conversation{}
	for _, c := range m.conversations {
		if !c.Includes(viewerID) {
			continue
		}
		other := m.participants[c.Counterpart(viewerID)]
		conv := chat.Conversation{
			ID: chat.ConversationID(c.ID),
			Counterpart: chat.Participant{
				ID:          other.ID,
				DisplayName: other.DisplayName,
				AvatarURL:   other.AvatarURL,
				Deactivated: other.Deactivated,
			},
		}

		pos, hasRead := m.reads[readKey(c.ID, viewerID)]
		ids := m.timelines[c.ID]
		for _, id := range ids {
			msg := m.messages[id]
			if msg.SenderID == viewerID {
				continue
			}
			if !hasRead || after(msg.CreatedAt, msg.ID, pos.throughAt, pos.throughID) {
				conv.UnreadCount++
			}
		}
		if len(ids) > 0 {
			last := m.messages[ids[len(ids)-1]]
			conv.LastMessage = &chat.Preview{Text: last.Body, SentAt: last.CreatedAt, SenderID: last.SenderID}
		}
		result = append(result, conv)
	}

	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// SaveMessage stores a message and keeps the timeline ordered.
func (m *MockStore) SaveMessage(_ context.Context, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	if _, ok := m.messages[msg.ID]; ok {
		return fmt.Errorf("message %s: %w", msg.ID, ErrDuplicate)
	}
	if _, ok := m.conversations[msg.ConversationID]; !ok {
		return fmt.Errorf("conversation %s: %w", msg.ConversationID, ErrNotFound)
	}
	if _, ok := m.participants[msg.SenderID]; !ok {
		return fmt.Errorf("sender %s: %w", msg.SenderID, ErrNotFound)
	}

	cp := *msg
	m.messages[msg.ID] = &cp
	ids := append(m.timelines[msg.ConversationID], msg.ID)
	sort.SliceStable(ids, func(i, j int) bool {
		a, b := m.messages[ids[i]], m.messages[ids[j]]
		return after(b.CreatedAt, b.ID, a.CreatedAt, a.ID)
	})
	m.timelines[msg.ConversationID] = ids
	return nil
}

// GetMessage retrieves a message by ID.
func (m *MockStore) GetMessage(_ context.Context, id string) (*Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msg, ok := m.messages[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *msg
	return &cp, nil
}

// ListMessages returns a conversation's timeline in message order.
func (m *MockStore) ListMessages(_ context.Context, conversationID string) ([]chat.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.conversations[conversationID]; !ok {
		return nil, ErrNotFound
	}

	ids := m.timelines[conversationID]
	result := make([]chat.Message, 0, len(ids))
	for _, id := range ids {
		msg := m.messages[id]
		result = append(result, chat.Message{
			ID:             chat.MessageID(msg.ID),
			ConversationID: chat.ConversationID(msg.ConversationID),
			SenderID:       msg.SenderID,
			SenderName:     m.participants[msg.SenderID].DisplayName,
			Body:           msg.Body,
			CreatedAt:      msg.CreatedAt,
		})
	}
	return result, nil
}

// MarkRead moves the viewer's read position forward to throughID.
func (m *MockStore) MarkRead(_ context.Context, conversationID, viewerID, throughID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg, ok := m.messages[throughID]
	if !ok || msg.ConversationID != conversationID {
		return fmt.Errorf("message %s in conversation %s: %w", throughID, conversationID, ErrNotFound)
	}

	key := readKey(conversationID, viewerID)
	pos, ok := m.reads[key]
	if ok && !after(msg.CreatedAt, msg.ID, pos.throughAt, pos.throughID) {
		return nil
	}
	m.reads[key] = readPosition{throughID: msg.ID, throughAt: msg.CreatedAt}
	return nil
}

// Close is a no-op for MockStore.
func (m *MockStore) Close() error {
	return nil
}

// Compile-time interface checks
var (
	_ Store = (*MockStore)(nil)
	_ Store = (*SQLiteStore)(nil)
)
