// ABOUTME: Timeline state for the open conversation, bound to one generation
// ABOUTME: Merges polled snapshots, skips no-op refreshes and keeps sent messages visible

package chatsync

import "github.com/2389/coven-inbox/internal/chat"

// TimelineTicket tags one timeline refresh with the selection it was
// issued for and its issue order.
type TimelineTicket struct {
	ConversationID chat.ConversationID
	Generation     Generation
	Seq            uint64
}

// TimelineResult describes what Apply did with a response.
type TimelineResult struct {
	// Dropped is set when the response was stale and ignored entirely.
	Dropped bool
	// Changed is set when the messages or the error flag changed.
	Changed bool
}

// TimelineSync owns the message timeline of the open conversation.
type TimelineSync struct {
	conversationID chat.ConversationID
	generation     Generation
	bound          bool

	messages []chat.Message
	// unconfirmed holds messages sent from this client that no poll has
	// returned yet.
	unconfirmed []chat.Message

	nextSeq    uint64
	appliedSeq uint64
	inFlight   bool
	loaded     bool
	err        error
}

// Bind attaches the timeline to a newly selected conversation and clears
// everything held for the previous one.
func (t *TimelineSync) Bind(id chat.ConversationID, g Generation) {
	t.conversationID = id
	t.generation = g
	t.bound = true
	t.reset()
}

// Unbind detaches the timeline; nothing is fetched until the next Bind.
func (t *TimelineSync) Unbind() {
	t.conversationID = ""
	t.bound = false
	t.reset()
}

func (t *TimelineSync) reset() {
	t.messages = nil
	t.unconfirmed = nil
	t.appliedSeq = t.nextSeq
	t.inFlight = false
	t.loaded = false
	t.err = nil
}

// Issue starts a refresh for the bound conversation.
func (t *TimelineSync) Issue() (TimelineTicket, bool) {
	if !t.bound {
		return TimelineTicket{}, false
	}
	t.nextSeq++
	t.inFlight = true
	return TimelineTicket{
		ConversationID: t.conversationID,
		Generation:     t.generation,
		Seq:            t.nextSeq,
	}, true
}

// InFlight reports whether a refresh for the current binding is outstanding.
func (t *TimelineSync) InFlight() bool { return t.inFlight }

// Apply merges a refresh response. Responses for another generation, or
// issued before the last applied response or local append, are dropped.
// When both the held and the incoming timelines are non-empty and agree on
// length and newest message ID the refresh is a no-op; otherwise the
// timeline is replaced.
func (t *TimelineSync) Apply(ticket TimelineTicket, messages []chat.Message, err error) TimelineResult {
	if !t.bound || ticket.Generation != t.generation {
		return TimelineResult{Dropped: true}
	}
	t.inFlight = false
	if ticket.Seq <= t.appliedSeq {
		return TimelineResult{Dropped: true}
	}
	if err != nil {
		t.err = err
		return TimelineResult{Changed: true}
	}
	t.appliedSeq = ticket.Seq

	incoming := t.withUnconfirmed(messages)
	changed := !t.loaded || t.err != nil
	t.loaded = true
	t.err = nil

	if sameTail(t.messages, incoming) || (len(t.messages) == 0 && len(incoming) == 0) {
		return TimelineResult{Changed: changed}
	}
	t.messages = incoming
	return TimelineResult{Changed: true}
}

// withUnconfirmed returns a sorted copy of polled plus any locally sent
// messages the poll does not include yet. Sent messages that the poll
// does include are forgotten.
func (t *TimelineSync) withUnconfirmed(polled []chat.Message) []chat.Message {
	merged := make([]chat.Message, len(polled), len(polled)+len(t.unconfirmed))
	copy(merged, polled)

	pending := t.unconfirmed[:0]
	for _, m := range t.unconfirmed {
		if chat.Contains(polled, m.ID) {
			continue
		}
		pending = append(pending, m)
		merged = append(merged, m)
	}
	t.unconfirmed = pending

	chat.SortMessages(merged)
	return merged
}

// AppendSent adds a message this client just sent. Refreshes issued
// before the append can no longer be applied, so an older snapshot never
// hides the message. Returns false if g is not the bound generation or
// the message is already present.
func (t *TimelineSync) AppendSent(g Generation, m chat.Message) bool {
	if !t.bound || g != t.generation {
		return false
	}
	t.appliedSeq = t.nextSeq
	if chat.Contains(t.messages, m.ID) {
		return false
	}

	next := make([]chat.Message, len(t.messages), len(t.messages)+1)
	copy(next, t.messages)
	next = append(next, m)
	chat.SortMessages(next)

	t.messages = next
	t.unconfirmed = append(t.unconfirmed, m)
	t.loaded = true
	return true
}

// Messages returns the ordered timeline. Callers must not modify it.
func (t *TimelineSync) Messages() []chat.Message { return t.messages }

// Loaded reports whether a response or local append has been applied
// since the last Bind.
func (t *TimelineSync) Loaded() bool { return t.loaded }

// Err returns the error of the latest failed refresh, if not cleared.
func (t *TimelineSync) Err() error { return t.err }

// ClearErr dismisses the error banner. Reports whether there was one.
func (t *TimelineSync) ClearErr() bool {
	had := t.err != nil
	t.err = nil
	return had
}

// sameTail is the cheap equality used to skip re-rendering: same length
// and same newest message.
func sameTail(held, incoming []chat.Message) bool {
	if len(held) == 0 || len(incoming) == 0 || len(held) != len(incoming) {
		return false
	}
	return held[len(held)-1].ID == incoming[len(incoming)-1].ID
}
