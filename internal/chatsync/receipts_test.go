// ABOUTME: Tests for read receipt publishing decisions
// ABOUTME: Covers idempotence, one publish in flight and retry after failure

package chatsync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-inbox/internal/chat"
)

func TestReadReceipts_EmptyTimelineSkipped(t *testing.T) {
	r := NewReadReceipts("alice")
	_, ok := r.Next("5", nil)
	assert.False(t, ok)
}

func TestReadReceipts_AcknowledgedNewestIsNotRepublished(t *testing.T) {
	r := NewReadReceipts("alice")
	timeline := []chat.Message{msg("5", "a", 1), msg("5", "b", 2)}

	receipt, ok := r.Next("5", timeline)
	require.True(t, ok)
	assert.Equal(t, chat.ReadReceipt{ConversationID: "5", ViewerID: "alice", Through: "b"}, receipt)
	assert.True(t, r.Complete(receipt, nil))

	_, ok = r.Next("5", timeline)
	assert.False(t, ok, "already acknowledged")

	through, ok := r.acknowledged("5")
	require.True(t, ok)
	assert.Equal(t, chat.MessageID("b"), through)
}

func TestReadReceipts_OnePublishInFlightPerConversation(t *testing.T) {
	r := NewReadReceipts("alice")
	timeline := []chat.Message{msg("5", "a", 1)}

	_, ok := r.Next("5", timeline)
	require.True(t, ok)
	_, ok = r.Next("5", append(timeline, msg("5", "b", 2)))
	assert.False(t, ok)

	_, ok = r.Next("6", []chat.Message{msg("6", "x", 1)})
	assert.True(t, ok, "other conversations are independent")
}

func TestReadReceipts_FailureIsRetriedNextTime(t *testing.T) {
	r := NewReadReceipts("alice")
	timeline := []chat.Message{msg("5", "a", 1)}

	receipt, ok := r.Next("5", timeline)
	require.True(t, ok)
	assert.False(t, r.Complete(receipt, chat.ErrNetwork))

	_, acked := r.acknowledged("5")
	assert.False(t, acked)

	again, ok := r.Next("5", timeline)
	require.True(t, ok)
	assert.Equal(t, receipt, again)
}

func TestReadReceipts_NewMessageAfterAckPublishesAgain(t *testing.T) {
	r := NewReadReceipts("alice")
	receipt, _ := r.Next("5", []chat.Message{msg("5", "a", 1)})
	r.Complete(receipt, nil)

	receipt, ok := r.Next("5", []chat.Message{msg("5", "a", 1), msg("5", "b", 2)})
	require.True(t, ok)
	assert.Equal(t, chat.MessageID("b"), receipt.Through)
}
