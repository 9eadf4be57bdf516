// ABOUTME: Decides when to publish read receipts for the open conversation
// ABOUTME: Skips already-acknowledged tails so repeated calls never reach the remote

package chatsync

import "github.com/2389/coven-inbox/internal/chat"

// ReadReceipts tracks, per conversation, the newest message the remote
// has acknowledged as read and any publish still in flight.
type ReadReceipts struct {
	viewerID string
	acked    map[chat.ConversationID]chat.MessageID
	pending  map[chat.ConversationID]chat.MessageID
}

// NewReadReceipts creates a publisher for viewerID.
func NewReadReceipts(viewerID string) *ReadReceipts {
	return &ReadReceipts{
		viewerID: viewerID,
		acked:    make(map[chat.ConversationID]chat.MessageID),
		pending:  make(map[chat.ConversationID]chat.MessageID),
	}
}

// Next returns the receipt to publish for a rendered timeline, or false
// when the timeline is empty, its newest message is already acknowledged,
// or a publish for the conversation is outstanding. A true result must be
// followed by exactly one Complete.
func (r *ReadReceipts) Next(id chat.ConversationID, timeline []chat.Message) (chat.ReadReceipt, bool) {
	last, ok := chat.Last(timeline)
	if !ok {
		return chat.ReadReceipt{}, false
	}
	if r.acked[id] == last.ID {
		return chat.ReadReceipt{}, false
	}
	if _, busy := r.pending[id]; busy {
		return chat.ReadReceipt{}, false
	}

	r.pending[id] = last.ID
	return chat.ReadReceipt{
		ConversationID: id,
		ViewerID:       r.viewerID,
		Through:        last.ID,
	}, true
}

// Complete records the outcome of a publish. It reports whether the
// conversation list should be refreshed to pick up the new unread count.
// A failed publish is forgotten so the next timeline refresh retries it.
func (r *ReadReceipts) Complete(receipt chat.ReadReceipt, err error) bool {
	delete(r.pending, receipt.ConversationID)
	if err != nil {
		return false
	}
	r.acked[receipt.ConversationID] = receipt.Through
	return true
}

// acknowledged returns the newest message acknowledged for id.
func (r *ReadReceipts) acknowledged(id chat.ConversationID) (chat.MessageID, bool) {
	through, ok := r.acked[id]
	return through, ok
}
