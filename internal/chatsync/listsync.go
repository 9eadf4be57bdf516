// ABOUTME: Conversation list state: ranking, filtering and snapshot replacement
// ABOUTME: Responses older than the last applied snapshot (by issue order) are discarded

package chatsync

import (
	"sort"
	"time"

	"github.com/2389/coven-inbox/internal/chat"
)

// ListTicket tags one list refresh with its issue order. Seq alone
// decides which response wins; IssuedAt is reported as request latency.
type ListTicket struct {
	Seq      uint64
	IssuedAt time.Time
}

// ListSync owns the ranked conversation list.
type ListSync struct {
	conversations []chat.Conversation
	nextSeq       uint64
	appliedSeq    uint64
	inFlight      int
	dirty         bool
	loaded        bool
	err           error
}

// Issue starts a refresh and returns its ticket. The caller decides
// whether overlapping refreshes are allowed; see InFlight.
func (l *ListSync) Issue(now time.Time) ListTicket {
	l.nextSeq++
	l.inFlight++
	return ListTicket{Seq: l.nextSeq, IssuedAt: now}
}

// InFlight reports whether any refresh is outstanding.
func (l *ListSync) InFlight() bool { return l.inFlight > 0 }

// MarkDirty records that a refresh was requested while one was in flight.
func (l *ListSync) MarkDirty() { l.dirty = true }

// TakeDirty returns and clears the dirty flag.
func (l *ListSync) TakeDirty() bool {
	d := l.dirty
	l.dirty = false
	return d
}

// Apply records the completion of ticket and reports whether the
// visible state (list or error flag) changed. A response issued before
// the last applied snapshot is ignored. A failure keeps the previous
// list and only sets the error.
func (l *ListSync) Apply(ticket ListTicket, conversations []chat.Conversation, err error) bool {
	if l.inFlight > 0 {
		l.inFlight--
	}
	if ticket.Seq <= l.appliedSeq {
		return false
	}
	if err != nil {
		l.err = err
		return true
	}

	ranked := Rank(conversations)
	changed := !l.loaded || l.err != nil || !sameConversations(l.conversations, ranked)
	l.appliedSeq = ticket.Seq
	l.conversations = ranked
	l.loaded = true
	l.err = nil
	return changed
}

// Conversations returns the ranked list. Callers must not modify it.
func (l *ListSync) Conversations() []chat.Conversation { return l.conversations }

// Loaded reports whether a snapshot has ever been applied.
func (l *ListSync) Loaded() bool { return l.loaded }

// Err returns the error of the latest failed refresh, if not yet cleared.
func (l *ListSync) Err() error { return l.err }

// ClearErr dismisses the error banner. Reports whether there was one.
func (l *ListSync) ClearErr() bool {
	had := l.err != nil
	l.err = nil
	return had
}

// Rank returns the conversations to display: those without a last
// message are dropped, the rest are ordered newest activity first.
func Rank(conversations []chat.Conversation) []chat.Conversation {
	ranked := make([]chat.Conversation, len(conversations))
	copy(ranked, conversations)

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i].LastMessage, ranked[j].LastMessage
		switch {
		case a == nil && b == nil:
			return ranked[i].ID < ranked[j].ID
		case a == nil:
			return false
		case b == nil:
			return true
		case !a.SentAt.Equal(b.SentAt):
			return a.SentAt.After(b.SentAt)
		default:
			return ranked[i].ID < ranked[j].ID
		}
	})

	// Conversations without activity sort last; cut them off.
	for i, c := range ranked {
		if c.LastMessage == nil {
			return ranked[:i]
		}
	}
	return ranked
}

func sameConversations(a, b []chat.Conversation) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !sameConversation(a[i], b[i]) {
			return false
		}
	}
	return true
}

func sameConversation(a, b chat.Conversation) bool {
	if a.ID != b.ID || a.Counterpart != b.Counterpart || a.UnreadCount != b.UnreadCount {
		return false
	}
	if (a.LastMessage == nil) != (b.LastMessage == nil) {
		return false
	}
	if a.LastMessage == nil {
		return true
	}
	return a.LastMessage.Text == b.LastMessage.Text &&
		a.LastMessage.SenderID == b.LastMessage.SenderID &&
		a.LastMessage.SentAt.Equal(b.LastMessage.SentAt)
}
