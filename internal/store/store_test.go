// ABOUTME: Behavioral tests run against every Store implementation
// ABOUTME: Covers participants, conversation listing, unread counts, ordering and read positions

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-inbox/internal/chat"
)

var t0 = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func storeImplementations() map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"sqlite": func(t *testing.T) Store { return newTestStore(t) },
		"mock":   func(t *testing.T) Store { return NewMockStore() },
	}
}

// seed creates alice, bob and carol plus conversations ab and ac.
func seed(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	for _, p := range []*Participant{
		{ID: "alice", DisplayName: "Alice"},
		{ID: "bob", DisplayName: "Bob", AvatarURL: "https://example.com/bob.png"},
		{ID: "carol", DisplayName: "Carol"},
	} {
		require.NoError(t, s.CreateParticipant(ctx, p))
	}
	require.NoError(t, s.CreateConversation(ctx, &Conversation{ID: "ab", ParticipantIDs: [2]string{"alice", "bob"}}))
	require.NoError(t, s.CreateConversation(ctx, &Conversation{ID: "ac", ParticipantIDs: [2]string{"carol", "alice"}}))
}

func save(t *testing.T, s Store, conversationID, id, sender string, at time.Time) {
	t.Helper()
	require.NoError(t, s.SaveMessage(context.Background(), &Message{
		ID:             id,
		ConversationID: conversationID,
		SenderID:       sender,
		Body:           "body " + id,
		CreatedAt:      at,
	}))
}

func find(conversations []chat.Conversation, id string) *chat.Conversation {
	for i := range conversations {
		if string(conversations[i].ID) == id {
			return &conversations[i]
		}
	}
	return nil
}

func TestStore(t *testing.T) {
	for name, newStore := range storeImplementations() {
		t.Run(name, func(t *testing.T) {
			t.Run("participants", func(t *testing.T) { testParticipants(t, newStore(t)) })
			t.Run("conversation list", func(t *testing.T) { testConversationList(t, newStore(t)) })
			t.Run("message order", func(t *testing.T) { testMessageOrder(t, newStore(t)) })
			t.Run("read positions", func(t *testing.T) { testReadPositions(t, newStore(t)) })
			t.Run("not found", func(t *testing.T) { testNotFound(t, newStore(t)) })
		})
	}
}

func testParticipants(t *testing.T, s Store) {
	ctx := context.Background()
	seed(t, s)

	p, err := s.GetParticipant(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, "Bob", p.DisplayName)
	assert.Equal(t, "https://example.com/bob.png", p.AvatarURL)
	assert.False(t, p.Deactivated)

	err = s.CreateParticipant(ctx, &Participant{ID: "bob", DisplayName: "Other Bob"})
	assert.ErrorIs(t, err, ErrDuplicate)

	require.NoError(t, s.SetParticipantDeactivated(ctx, "bob", true))
	p, err = s.GetParticipant(ctx, "bob")
	require.NoError(t, err)
	assert.True(t, p.Deactivated)

	assert.ErrorIs(t, s.SetParticipantDeactivated(ctx, "nobody", true), ErrNotFound)
}

func testConversationList(t *testing.T, s Store) {
	ctx := context.Background()
	seed(t, s)

	save(t, s, "ab", "m1", "bob", t0)
	save(t, s, "ab", "m2", "bob", t0.Add(time.Second))
	save(t, s, "ab", "m3", "alice", t0.Add(2*time.Second))

	conversations, err := s.ListConversations(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, conversations, 2)

	ab := find(conversations, "ab")
	require.NotNil(t, ab)
	assert.Equal(t, "bob", ab.Counterpart.ID)
	assert.Equal(t, "Bob", ab.Counterpart.DisplayName)
	require.NotNil(t, ab.LastMessage)
	assert.Equal(t, "body m3", ab.LastMessage.Text)
	assert.Equal(t, "alice", ab.LastMessage.SenderID)
	assert.True(t, ab.LastMessage.SentAt.Equal(t0.Add(2*time.Second)))
	assert.Equal(t, 2, ab.UnreadCount, "own messages are never unread")

	ac := find(conversations, "ac")
	require.NotNil(t, ac)
	assert.Equal(t, "carol", ac.Counterpart.ID)
	assert.Nil(t, ac.LastMessage)
	assert.Zero(t, ac.UnreadCount)

	// Bob sees the same conversation from the other side.
	conversations, err = s.ListConversations(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, conversations, 1)
	assert.Equal(t, "alice", conversations[0].Counterpart.ID)
	assert.Equal(t, 1, conversations[0].UnreadCount)

	conversations, err = s.ListConversations(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, conversations)
}

func testMessageOrder(t *testing.T, s Store) {
	ctx := context.Background()
	seed(t, s)

	save(t, s, "ab", "b", "bob", t0.Add(time.Second))
	save(t, s, "ab", "z", "alice", t0)
	save(t, s, "ab", "a", "alice", t0.Add(time.Second))

	messages, err := s.ListMessages(ctx, "ab")
	require.NoError(t, err)
	require.Len(t, messages, 3)

	ids := []chat.MessageID{messages[0].ID, messages[1].ID, messages[2].ID}
	assert.Equal(t, []chat.MessageID{"z", "a", "b"}, ids, "created_at first, then id")
	assert.Equal(t, "Bob", messages[2].SenderName)
	assert.Equal(t, chat.ConversationID("ab"), messages[2].ConversationID)

	empty, err := s.ListMessages(ctx, "ac")
	require.NoError(t, err)
	assert.Empty(t, empty)

	err = s.SaveMessage(ctx, &Message{ID: "a", ConversationID: "ab", SenderID: "alice", Body: "again"})
	assert.ErrorIs(t, err, ErrDuplicate)

	generated := &Message{ConversationID: "ab", SenderID: "alice", Body: "auto"}
	require.NoError(t, s.SaveMessage(ctx, generated))
	assert.NotEmpty(t, generated.ID)
	assert.False(t, generated.CreatedAt.IsZero())
}

func testReadPositions(t *testing.T, s Store) {
	ctx := context.Background()
	seed(t, s)

	save(t, s, "ab", "m1", "bob", t0)
	save(t, s, "ab", "m2", "bob", t0.Add(time.Second))
	save(t, s, "ab", "m3", "bob", t0.Add(2*time.Second))

	unread := func() int {
		conversations, err := s.ListConversations(ctx, "alice")
		require.NoError(t, err)
		return find(conversations, "ab").UnreadCount
	}
	assert.Equal(t, 3, unread())

	require.NoError(t, s.MarkRead(ctx, "ab", "alice", "m2"))
	assert.Equal(t, 1, unread())

	// Moving backwards is ignored.
	require.NoError(t, s.MarkRead(ctx, "ab", "alice", "m1"))
	assert.Equal(t, 1, unread())

	require.NoError(t, s.MarkRead(ctx, "ab", "alice", "m3"))
	assert.Equal(t, 0, unread())

	// Idempotent.
	require.NoError(t, s.MarkRead(ctx, "ab", "alice", "m3"))
	assert.Equal(t, 0, unread())

	save(t, s, "ab", "m4", "bob", t0.Add(3*time.Second))
	assert.Equal(t, 1, unread())

	// Bob's read position is independent.
	conversations, err := s.ListConversations(ctx, "bob")
	require.NoError(t, err)
	assert.Zero(t, conversations[0].UnreadCount)
}

func testNotFound(t *testing.T, s Store) {
	ctx := context.Background()
	seed(t, s)
	save(t, s, "ab", "m1", "bob", t0)

	_, err := s.GetParticipant(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.GetConversation(ctx, "zz")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.ListMessages(ctx, "zz")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.GetMessage(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, s.MarkRead(ctx, "ab", "alice", "missing"), ErrNotFound)
	assert.ErrorIs(t, s.MarkRead(ctx, "ac", "alice", "m1"), ErrNotFound, "message from another conversation")

	err = s.CreateConversation(ctx, &Conversation{ParticipantIDs: [2]string{"alice", "nobody"}})
	assert.ErrorIs(t, err, ErrNotFound)

	err = s.SaveMessage(ctx, &Message{ConversationID: "zz", SenderID: "alice", Body: "hi"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "subdir", "nested", "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	assert.FileExists(t, dbPath)
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	seed(t, s)
	save(t, s, "ab", "m1", "bob", t0)
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	messages, err := s.ListMessages(ctx, "ab")
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.True(t, messages[0].CreatedAt.Equal(t0))
}
