// ABOUTME: Tests for the inbox bubbletea model
// ABOUTME: Drives Update with synthetic views and keys against a fake engine

package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-inbox/internal/chat"
	"github.com/2389/coven-inbox/internal/chatsync"
)

type fakeInbox struct {
	mu        sync.Mutex
	selected  []chat.ConversationID
	deselects int
	sent      []string
	scrolls   []chatsync.ScrollPosition
	dismissed int
	sendErr   error
}

func (f *fakeInbox) Select(_ context.Context, id chat.ConversationID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.selected = append(f.selected, id)
	return nil
}

func (f *fakeInbox) Deselect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deselects++
	return nil
}

func (f *fakeInbox) Send(_ context.Context, body string) (chat.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, body)
	if f.sendErr != nil {
		return chat.Message{}, f.sendErr
	}
	return chat.Message{ID: "sent", Body: body}, nil
}

func (f *fakeInbox) OnUserScroll(_ context.Context, pos chatsync.ScrollPosition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scrolls = append(f.scrolls, pos)
	return nil
}

func (f *fakeInbox) DismissErrors(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dismissed++
	return nil
}

var base = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func conversation(id, name string, unread int) chat.Conversation {
	return chat.Conversation{
		ID:          chat.ConversationID(id),
		Counterpart: chat.Participant{ID: id, DisplayName: name},
		LastMessage: &chat.Preview{Text: "last from " + name, SentAt: base},
		UnreadCount: unread,
	}
}

func timeline(n int) []chat.Message {
	messages := make([]chat.Message, n)
	for i := range messages {
		messages[i] = chat.Message{
			ID:         chat.MessageID(fmt.Sprintf("m%03d", i)),
			SenderID:   "bob",
			SenderName: "Bob",
			Body:       fmt.Sprintf("line %d", i),
			CreatedAt:  base.Add(time.Duration(i) * time.Second),
		}
	}
	return messages
}

func newTestModel(t *testing.T) (model, *fakeInbox) {
	t.Helper()
	fake := &fakeInbox{}
	m := newModel(context.Background(), fake, make(chan chatsync.View), "alice", nil)
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 30})
	return updated.(model), fake
}

func update(t *testing.T, m model, msg tea.Msg) (model, tea.Cmd) {
	t.Helper()
	updated, cmd := m.Update(msg)
	return updated.(model), cmd
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "pgup":
		return tea.KeyMsg{Type: tea.KeyPgUp}
	case "pgdown":
		return tea.KeyMsg{Type: tea.KeyPgDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func selectedView(revision uint64, messages []chat.Message, action chatsync.ScrollAction) chatsync.View {
	return chatsync.View{
		Revision:      revision,
		Conversations: []chat.Conversation{conversation("ab", "Bob", 0)},
		Selected:      "ab",
		HasSelection:  true,
		Messages:      messages,
		Scroll:        chatsync.ScrollState{Pinned: action == chatsync.ScrollToBottom, InitialScrollDone: true},
		ScrollAction:  action,
	}
}

func TestModel_ScrollToBottomFollowsView(t *testing.T) {
	m, _ := newTestModel(t)

	m, _ = update(t, m, viewMsg{view: selectedView(1, timeline(100), chatsync.ScrollToBottom)})

	assert.True(t, m.viewport.AtBottom())
	assert.Greater(t, m.viewport.YOffset, 0)
}

func TestModel_PreserveKeepsOffset(t *testing.T) {
	m, fake := newTestModel(t)
	m, _ = update(t, m, viewMsg{view: selectedView(1, timeline(100), chatsync.ScrollToBottom)})

	m, cmd := update(t, m, key("pgup"))
	require.NotNil(t, cmd)
	cmd()
	offset := m.viewport.YOffset
	require.False(t, m.viewport.AtBottom())

	require.Len(t, fake.scrolls, 1)
	assert.Equal(t, offset, fake.scrolls[0].Offset)
	assert.Equal(t, m.viewport.Height, fake.scrolls[0].ViewportHeight)
	assert.Equal(t, m.viewport.TotalLineCount(), fake.scrolls[0].ContentHeight)

	// A background poll appends while the user reads older history.
	m, _ = update(t, m, viewMsg{view: selectedView(2, timeline(101), chatsync.ScrollPreserve)})
	assert.Equal(t, offset, m.viewport.YOffset)
	assert.False(t, m.viewport.AtBottom())
}

func TestModel_EnterSelectsConversationUnderCursor(t *testing.T) {
	m, fake := newTestModel(t)
	m, _ = update(t, m, viewMsg{view: chatsync.View{
		Revision: 1,
		Conversations: []chat.Conversation{
			conversation("2", "Bob", 1),
			conversation("1", "Carol", 0),
		},
	}})

	m, _ = update(t, m, key("j"))
	m, cmd := update(t, m, key("enter"))
	require.NotNil(t, cmd)
	assert.Nil(t, cmd())

	assert.Equal(t, []chat.ConversationID{"1"}, fake.selected)
	assert.Equal(t, focusComposer, m.focus)
}

func TestModel_CursorFollowsConversationAcrossReorder(t *testing.T) {
	m, _ := newTestModel(t)
	m, _ = update(t, m, viewMsg{view: chatsync.View{Revision: 1, Conversations: []chat.Conversation{
		conversation("2", "Bob", 0),
		conversation("1", "Carol", 0),
	}}})
	m, _ = update(t, m, key("j"))
	require.Equal(t, chat.ConversationID("1"), m.cursorID)

	m, _ = update(t, m, viewMsg{view: chatsync.View{Revision: 2, Conversations: []chat.Conversation{
		conversation("1", "Carol", 1),
		conversation("2", "Bob", 0),
	}}})
	assert.Equal(t, chat.ConversationID("1"), m.cursorID)
	assert.Equal(t, 0, m.cursorIndex())
}

func TestModel_SendFromComposer(t *testing.T) {
	m, fake := newTestModel(t)
	m, _ = update(t, m, viewMsg{view: selectedView(1, timeline(3), chatsync.ScrollToBottom)})
	m, _ = update(t, m, key("tab"))
	require.Equal(t, focusComposer, m.focus)

	m.input.SetValue("hello")
	m, cmd := update(t, m, key("enter"))
	require.NotNil(t, cmd)
	assert.True(t, m.sending)
	assert.Empty(t, m.input.Value())

	m, _ = update(t, m, cmd())
	assert.False(t, m.sending)
	assert.Empty(t, m.status)
	assert.Equal(t, []string{"hello"}, fake.sent)
}

func TestModel_BlankSendIgnored(t *testing.T) {
	m, fake := newTestModel(t)
	m, _ = update(t, m, viewMsg{view: selectedView(1, timeline(3), chatsync.ScrollToBottom)})
	m, _ = update(t, m, key("tab"))

	m.input.SetValue("   ")
	m, cmd := update(t, m, key("enter"))
	assert.Nil(t, cmd)
	assert.False(t, m.sending)
	assert.Empty(t, fake.sent)
}

func TestModel_SendFailureShownInStatus(t *testing.T) {
	m, fake := newTestModel(t)
	fake.sendErr = fmt.Errorf("%w: status 503", chat.ErrNetwork)
	m, _ = update(t, m, viewMsg{view: selectedView(1, timeline(3), chatsync.ScrollToBottom)})
	m, _ = update(t, m, key("tab"))

	m.input.SetValue("hello")
	m, cmd := update(t, m, key("enter"))
	m, _ = update(t, m, cmd())

	assert.Contains(t, m.status, "send failed")
	assert.Contains(t, m.View(), "send failed")
}

func TestModel_DismissAndDeselect(t *testing.T) {
	m, fake := newTestModel(t)
	v := selectedView(1, timeline(3), chatsync.ScrollToBottom)
	v.ListErr = errors.New("connection refused")
	m, _ = update(t, m, viewMsg{view: v})
	assert.Contains(t, m.View(), "connection refused")

	_, cmd := update(t, m, key("x"))
	require.NotNil(t, cmd)
	cmd()
	assert.Equal(t, 1, fake.dismissed)

	_, cmd = update(t, m, key("esc"))
	require.NotNil(t, cmd)
	cmd()
	assert.Equal(t, 1, fake.deselects)
}

func TestModel_ViewRendersListAndTimeline(t *testing.T) {
	m, _ := newTestModel(t)
	v := selectedView(1, timeline(2), chatsync.ScrollToBottom)
	v.Conversations = []chat.Conversation{conversation("ab", "Bob", 3)}
	m, _ = update(t, m, viewMsg{view: v})

	out := m.View()
	assert.Contains(t, out, "Bob")
	assert.Contains(t, out, "(3)")
	assert.Contains(t, out, "line 1")
}

func TestModel_HaltedBanner(t *testing.T) {
	m, _ := newTestModel(t)
	m, _ = update(t, m, viewMsg{view: chatsync.View{Revision: 3, Halted: fmt.Errorf("%w: status 401", chat.ErrAuth)}})

	assert.True(t, strings.Contains(m.View(), "session ended"))
}

func TestModel_ViewsClosed(t *testing.T) {
	m, _ := newTestModel(t)
	m, _ = update(t, m, viewsClosedMsg{})
	assert.Contains(t, m.View(), "sync stopped")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "hello", truncate("hello", 10))
	assert.Equal(t, "hel…", truncate("hello world", 4))
	assert.Equal(t, "a b", truncate("a\nb", 10))
	assert.Equal(t, "", truncate("anything", 1))
}
