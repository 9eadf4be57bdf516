// ABOUTME: Tracks which conversation is open and mints generation tokens
// ABOUTME: A response is applied only if its token matches the current generation

package chatsync

import "github.com/2389/coven-inbox/internal/chat"

// Generation identifies one selection. Every Select and Deselect mints a
// new one, so work started under an older generation can be recognized
// and discarded.
type Generation uint64

// Selection is the NoneSelected / Selected(id, generation) state machine.
type Selection struct {
	current    chat.ConversationID
	generation Generation
	selected   bool
}

// Select opens id under a fresh generation, even if id is already open.
func (s *Selection) Select(id chat.ConversationID) Generation {
	s.generation++
	s.current = id
	s.selected = true
	return s.generation
}

// Deselect returns to NoneSelected and invalidates the previous token.
func (s *Selection) Deselect() {
	s.generation++
	s.current = ""
	s.selected = false
}

// Current returns the open conversation and its generation.
func (s *Selection) Current() (chat.ConversationID, Generation, bool) {
	return s.current, s.generation, s.selected
}

// IsCurrent reports whether work tagged with g may still be applied.
func (s *Selection) IsCurrent(g Generation) bool {
	return s.selected && g == s.generation
}
