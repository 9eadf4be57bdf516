// ABOUTME: Shared fixtures for chatsync tests
// ABOUTME: Builds conversations and messages relative to a fixed base time

package chatsync

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/2389/coven-inbox/internal/chat"
)

var base = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func at(seconds int) time.Time {
	return base.Add(time.Duration(seconds) * time.Second)
}

func conv(id string, lastAt int) chat.Conversation {
	return chat.Conversation{
		ID:          chat.ConversationID(id),
		Counterpart: chat.Participant{ID: "user-" + id, DisplayName: "User " + id},
		LastMessage: &chat.Preview{Text: "last in " + id, SentAt: at(lastAt), SenderID: "user-" + id},
	}
}

func emptyConv(id string) chat.Conversation {
	return chat.Conversation{
		ID:          chat.ConversationID(id),
		Counterpart: chat.Participant{ID: "user-" + id, DisplayName: "User " + id},
	}
}

func msg(conversation, id string, createdAt int) chat.Message {
	return chat.Message{
		ID:             chat.MessageID(id),
		ConversationID: chat.ConversationID(conversation),
		SenderID:       "user-" + conversation,
		SenderName:     "User " + conversation,
		Body:           fmt.Sprintf("message %s", id),
		CreatedAt:      at(createdAt),
	}
}

func conversationIDs(conversations []chat.Conversation) []chat.ConversationID {
	ids := make([]chat.ConversationID, len(conversations))
	for i, c := range conversations {
		ids[i] = c.ID
	}
	return ids
}

func messageIDs(messages []chat.Message) []chat.MessageID {
	ids := make([]chat.MessageID, len(messages))
	for i, m := range messages {
		ids[i] = m.ID
	}
	return ids
}

// testContext returns a context canceled when the test finishes, mirroring
// testing.T.Context for toolchains that predate it.
func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
