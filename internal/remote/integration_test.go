// ABOUTME: End-to-end test driving the sync engine through the HTTP client
// ABOUTME: Runs against the real server backed by a SQLite store

package remote

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-inbox/internal/auth"
	"github.com/2389/coven-inbox/internal/chat"
	"github.com/2389/coven-inbox/internal/chatsync"
	"github.com/2389/coven-inbox/internal/dedupe"
	"github.com/2389/coven-inbox/internal/server"
	"github.com/2389/coven-inbox/internal/store"
)

var integrationSecret = []byte("integration-secret-0123456789abcd")

func TestEngineAgainstServer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "inbox.db"))
	require.NoError(t, err)
	defer db.Close()

	base := time.Now().UTC().Add(-time.Hour)
	for _, p := range []*store.Participant{
		{ID: "alice", DisplayName: "Alice"},
		{ID: "bob", DisplayName: "Bob"},
		{ID: "carol", DisplayName: "Carol"},
	} {
		require.NoError(t, db.CreateParticipant(ctx, p))
	}
	require.NoError(t, db.CreateConversation(ctx, &store.Conversation{ID: "ab", ParticipantIDs: [2]string{"alice", "bob"}}))
	require.NoError(t, db.CreateConversation(ctx, &store.Conversation{ID: "ac", ParticipantIDs: [2]string{"alice", "carol"}}))
	require.NoError(t, db.CreateConversation(ctx, &store.Conversation{ID: "empty", ParticipantIDs: [2]string{"bob", "alice"}}))
	for i, m := range []*store.Message{
		{ID: "m1", ConversationID: "ab", SenderID: "bob", Body: "hi alice"},
		{ID: "m2", ConversationID: "ab", SenderID: "bob", Body: "are you there?"},
		{ID: "m3", ConversationID: "ac", SenderID: "carol", Body: "lunch?"},
	} {
		m.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, db.SaveMessage(ctx, m))
	}

	verifier, err := auth.NewJWTVerifier(integrationSecret)
	require.NoError(t, err)
	sends := dedupe.New(time.Minute, 100)
	defer sends.Close()

	srv, err := server.New(server.Config{Store: db, Verifier: verifier, Sends: sends})
	require.NoError(t, err)
	httpSrv := httptest.NewServer(srv.Handler())
	defer httpSrv.Close()

	token, err := verifier.Generate("alice", time.Hour)
	require.NoError(t, err)
	client, err := New(httpSrv.URL, token)
	require.NoError(t, err)

	engine, err := chatsync.New(client, "alice", chatsync.WithIntervals(50*time.Millisecond, 50*time.Millisecond))
	require.NoError(t, err)

	runErr := make(chan error, 1)
	go func() { runErr <- engine.Run(ctx) }()

	waitFor := func(msg string, cond func(chatsync.View) bool) chatsync.View {
		t.Helper()
		var last chatsync.View
		require.Eventually(t, func() bool {
			v, err := engine.Snapshot(ctx)
			if err != nil {
				return false
			}
			last = v
			return cond(v)
		}, 5*time.Second, 10*time.Millisecond, msg)
		return last
	}

	v := waitFor("conversation list loaded", func(v chatsync.View) bool { return len(v.Conversations) == 2 })
	assert.Equal(t, chat.ConversationID("ac"), v.Conversations[0].ID, "newest message first")
	assert.Equal(t, chat.ConversationID("ab"), v.Conversations[1].ID)
	assert.Equal(t, 2, v.Conversations[1].UnreadCount)

	require.NoError(t, engine.Select(ctx, "ab"))
	v = waitFor("timeline loaded", func(v chatsync.View) bool { return len(v.Messages) == 2 })
	assert.Equal(t, chat.MessageID("m1"), v.Messages[0].ID)
	assert.Equal(t, "Bob", v.Messages[0].SenderName)

	waitFor("read receipt cleared unread count", func(v chatsync.View) bool {
		c, ok := v.Conversation("ab")
		return ok && c.UnreadCount == 0
	})

	sent, err := engine.Send(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, "Alice", sent.SenderName)

	v = waitFor("send moved conversation to the top", func(v chatsync.View) bool {
		return len(v.Conversations) == 2 && v.Conversations[0].ID == "ab" &&
			v.Conversations[0].LastMessage != nil && v.Conversations[0].LastMessage.Text == "hello"
	})
	assert.Equal(t, sent.ID, v.Messages[len(v.Messages)-1].ID)

	// A few more timeline polls must not duplicate the sent message.
	time.Sleep(200 * time.Millisecond)
	v, err = engine.Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, v.Messages, 3)

	stored, err := db.ListMessages(ctx, "ab")
	require.NoError(t, err)
	assert.Len(t, stored, 3)

	cancel()
	select {
	case err := <-runErr:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not stop")
	}
}

func TestEngineHaltsOnRevokedViewer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db := store.NewMockStore()
	require.NoError(t, db.CreateParticipant(ctx, &store.Participant{ID: "alice", DisplayName: "Alice"}))

	verifier, err := auth.NewJWTVerifier(integrationSecret)
	require.NoError(t, err)
	sends := dedupe.New(time.Minute, 10)
	defer sends.Close()

	srv, err := server.New(server.Config{Store: db, Verifier: verifier, Sends: sends})
	require.NoError(t, err)
	httpSrv := httptest.NewServer(srv.Handler())
	defer httpSrv.Close()

	require.NoError(t, db.SetParticipantDeactivated(ctx, "alice", true))

	token, err := verifier.Generate("alice", time.Hour)
	require.NoError(t, err)
	client, err := New(httpSrv.URL, token)
	require.NoError(t, err)

	engine, err := chatsync.New(client, "alice")
	require.NoError(t, err)

	err = engine.Run(ctx)
	assert.ErrorIs(t, err, chat.ErrAuth)
}
