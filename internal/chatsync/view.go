// ABOUTME: Immutable snapshot of engine state handed to the presentation layer
// ABOUTME: Carries ranked conversations, the open timeline, flags and the scroll decision

package chatsync

import "github.com/2389/coven-inbox/internal/chat"

// View is a point-in-time copy of everything a presentation layer needs.
// Slices are owned by the View and safe to keep.
type View struct {
	// Revision increases with every published View.
	Revision uint64

	Conversations []chat.Conversation
	ListLoading   bool
	ListErr       error

	Selected     chat.ConversationID
	HasSelection bool
	Generation   Generation

	Messages        []chat.Message
	TimelineLoading bool
	TimelineErr     error

	Scroll ScrollState
	// ScrollAction tells the view what to do with this revision.
	ScrollAction ScrollAction

	// Halted is set once an auth failure stopped the engine.
	Halted error
}

// Conversation returns the listed conversation with the given ID.
func (v View) Conversation(id chat.ConversationID) (chat.Conversation, bool) {
	for _, c := range v.Conversations {
		if c.ID == id {
			return c, true
		}
	}
	return chat.Conversation{}, false
}
