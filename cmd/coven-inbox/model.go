// ABOUTME: bubbletea model rendering engine views: conversation sidebar, timeline and composer
// ABOUTME: Applies each view's scroll decision and reports manual scrolls back to the engine

package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/2389/coven-inbox/internal/chat"
	"github.com/2389/coven-inbox/internal/chatsync"
)

// inbox is the part of the sync engine the model drives.
type inbox interface {
	Select(ctx context.Context, id chat.ConversationID) error
	Deselect(ctx context.Context) error
	Send(ctx context.Context, body string) (chat.Message, error)
	OnUserScroll(ctx context.Context, pos chatsync.ScrollPosition) error
	DismissErrors(ctx context.Context) error
}

type focusPane int

const (
	focusList focusPane = iota
	focusComposer
)

const (
	minSidebarWidth = 28
	scrollStep      = 3
)

type viewMsg struct{ view chatsync.View }

type viewsClosedMsg struct{}

type actionErrMsg struct {
	action string
	err    error
}

type sentMsg struct {
	msg chat.Message
	err error
}

type model struct {
	ctx      context.Context
	inbox    inbox
	views    <-chan chatsync.View
	viewerID string
	logger   *slog.Logger

	view    chatsync.View
	stopped bool

	// cursorID follows a conversation through re-ranking.
	cursorID chat.ConversationID

	focus    focusPane
	viewport viewport.Model
	input    textinput.Model
	sending  bool
	status   string

	width        int
	height       int
	sidebarWidth int
}

func newModel(ctx context.Context, ib inbox, views <-chan chatsync.View, viewerID string, logger *slog.Logger) model {
	if logger == nil {
		logger = slog.Default()
	}

	input := textinput.New()
	input.Placeholder = "Write a message..."
	input.CharLimit = 4000
	input.Prompt = "› "

	return model{
		ctx:          ctx,
		inbox:        ib,
		views:        views,
		viewerID:     viewerID,
		logger:       logger.With("component", "tui"),
		viewport:     viewport.New(60, 20),
		input:        input,
		sidebarWidth: minSidebarWidth,
	}
}

// waitForView blocks until the engine publishes the next view.
func waitForView(views <-chan chatsync.View) tea.Cmd {
	return func() tea.Msg {
		v, ok := <-views
		if !ok {
			return viewsClosedMsg{}
		}
		return viewMsg{view: v}
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(waitForView(m.views), textinput.Blink)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case viewMsg:
		m.applyView(msg.view)
		return m, waitForView(m.views)

	case viewsClosedMsg:
		m.stopped = true
		return m, nil

	case sentMsg:
		m.sending = false
		if msg.err != nil {
			m.status = "send failed: " + msg.err.Error()
			return m, nil
		}
		m.status = ""
		return m, nil

	case actionErrMsg:
		m.logger.Warn("engine action failed", "action", msg.action, "error", msg.err)
		m.status = msg.action + " failed: " + msg.err.Error()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	if m.focus == focusComposer {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "tab":
		return m.toggleFocus(), nil
	case "pgup", "ctrl+u":
		return m.scroll(-m.viewport.Height / 2)
	case "pgdown", "ctrl+d":
		return m.scroll(m.viewport.Height / 2)
	}

	if m.focus == focusComposer {
		return m.handleComposerKey(msg)
	}
	return m.handleListKey(msg)
}

func (m model) handleListKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "up", "k":
		m.moveCursor(-1)
	case "down", "j":
		m.moveCursor(1)
	case "K":
		return m.scroll(-scrollStep)
	case "J":
		return m.scroll(scrollStep)
	case "enter", "l":
		if m.cursorID == "" {
			return m, nil
		}
		m.status = ""
		m = m.toggleFocus()
		return m, m.selectCmd(m.cursorID)
	case "esc", "h":
		if !m.view.HasSelection {
			return m, nil
		}
		return m, m.deselectCmd()
	case "x":
		m.status = ""
		return m, m.dismissCmd()
	}
	return m, nil
}

func (m model) handleComposerKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		return m.toggleFocus(), nil
	case "up":
		return m.scroll(-1)
	case "down":
		return m.scroll(1)
	case "enter":
		body := m.input.Value()
		if m.sending || strings.TrimSpace(body) == "" {
			return m, nil
		}
		m.sending = true
		m.status = ""
		m.input.Reset()
		return m, m.sendCmd(body)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m model) toggleFocus() model {
	if m.focus == focusList {
		m.focus = focusComposer
		m.input.Focus()
	} else {
		m.focus = focusList
		m.input.Blur()
	}
	return m
}

// scroll moves the timeline by delta lines and reports the new position.
func (m model) scroll(delta int) (tea.Model, tea.Cmd) {
	if !m.view.HasSelection || delta == 0 {
		return m, nil
	}
	m.viewport.SetYOffset(m.viewport.YOffset + delta)
	return m, m.scrollCmd(chatsync.ScrollPosition{
		Offset:         m.viewport.YOffset,
		ViewportHeight: m.viewport.Height,
		ContentHeight:  m.viewport.TotalLineCount(),
	})
}

func (m *model) moveCursor(delta int) {
	conversations := m.view.Conversations
	if len(conversations) == 0 {
		return
	}
	idx := m.cursorIndex() + delta
	idx = max(0, min(idx, len(conversations)-1))
	m.cursorID = conversations[idx].ID
}

func (m model) cursorIndex() int {
	for i, c := range m.view.Conversations {
		if c.ID == m.cursorID {
			return i
		}
	}
	return 0
}

// applyView renders a new engine view, honoring its scroll decision.
func (m *model) applyView(v chatsync.View) {
	m.view = v

	if _, ok := v.Conversation(m.cursorID); !ok {
		m.cursorID = ""
		if len(v.Conversations) > 0 {
			m.cursorID = v.Conversations[0].ID
		}
	}

	m.viewport.SetContent(m.renderTimeline())
	if v.ScrollAction == chatsync.ScrollToBottom {
		m.viewport.GotoBottom()
	}
}

func (m *model) resize(width, height int) {
	m.width = width
	m.height = height
	m.sidebarWidth = max(minSidebarWidth, width/3)

	chatWidth := max(20, width-m.sidebarWidth-4)
	// header, composer and borders
	m.viewport.Width = chatWidth
	m.viewport.Height = max(3, height-8)
	m.input.Width = chatWidth - 4

	m.viewport.SetContent(m.renderTimeline())
	if m.view.Scroll.Pinned {
		m.viewport.GotoBottom()
	}
}

func (m model) selectCmd(id chat.ConversationID) tea.Cmd {
	ctx, ib := m.ctx, m.inbox
	return func() tea.Msg {
		if err := ib.Select(ctx, id); err != nil {
			return actionErrMsg{action: "select", err: err}
		}
		return nil
	}
}

func (m model) deselectCmd() tea.Cmd {
	ctx, ib := m.ctx, m.inbox
	return func() tea.Msg {
		if err := ib.Deselect(ctx); err != nil {
			return actionErrMsg{action: "close", err: err}
		}
		return nil
	}
}

func (m model) dismissCmd() tea.Cmd {
	ctx, ib := m.ctx, m.inbox
	return func() tea.Msg {
		if err := ib.DismissErrors(ctx); err != nil {
			return actionErrMsg{action: "dismiss", err: err}
		}
		return nil
	}
}

func (m model) scrollCmd(pos chatsync.ScrollPosition) tea.Cmd {
	ctx, ib := m.ctx, m.inbox
	return func() tea.Msg {
		if err := ib.OnUserScroll(ctx, pos); err != nil {
			return actionErrMsg{action: "scroll", err: err}
		}
		return nil
	}
}

func (m model) sendCmd(body string) tea.Cmd {
	ctx, ib := m.ctx, m.inbox
	return func() tea.Msg {
		msg, err := ib.Send(ctx, body)
		return sentMsg{msg: msg, err: err}
	}
}

func (m model) View() string {
	panes := lipgloss.JoinHorizontal(lipgloss.Top, m.sidebarView(), m.chatView())
	return lipgloss.JoinVertical(lipgloss.Left, panes, m.statusLine())
}

func (m model) statusLine() string {
	switch {
	case m.view.Halted != nil:
		return errorStyle.Render("session ended: "+m.view.Halted.Error()) + mutedStyle.Render("  (ctrl+c to quit)")
	case m.stopped:
		return errorStyle.Render("sync stopped") + mutedStyle.Render("  (ctrl+c to quit)")
	case m.status != "":
		return errorStyle.Render(m.status)
	case m.focus == focusComposer:
		return mutedStyle.Render("enter send · esc list · pgup/pgdn scroll · tab switch")
	default:
		return mutedStyle.Render("j/k move · enter open · esc close · x dismiss errors · q quit")
	}
}

func (m model) sidebarView() string {
	var s strings.Builder
	s.WriteString(titleStyle.Render("Inbox · " + m.viewerID))
	s.WriteString("\n\n")

	if m.view.ListErr != nil {
		s.WriteString(errorStyle.Render("⚠ " + m.view.ListErr.Error()))
		s.WriteString("\n\n")
	}

	switch {
	case m.view.ListLoading && len(m.view.Conversations) == 0:
		s.WriteString(mutedStyle.Render("Loading conversations..."))
	case len(m.view.Conversations) == 0:
		s.WriteString(mutedStyle.Render("No conversations yet."))
	default:
		for _, c := range m.view.Conversations {
			s.WriteString(m.conversationLine(c))
			s.WriteString("\n")
		}
	}

	style := paneStyle.Width(m.sidebarWidth - 2)
	if m.height > 0 {
		style = style.Height(m.height - 3)
	}
	if m.focus == focusList {
		style = style.BorderForeground(activeBorder)
	}
	return style.Render(s.String())
}

func (m model) conversationLine(c chat.Conversation) string {
	name := c.Counterpart.DisplayName
	if name == "" {
		name = c.Counterpart.ID
	}
	if c.Counterpart.Deactivated {
		name += " (inactive)"
	}

	line := name
	if c.UnreadCount > 0 {
		line += unreadStyle.Render(fmt.Sprintf(" (%d)", c.UnreadCount))
	}
	if c.LastMessage != nil {
		line += "\n" + mutedStyle.Render(truncate(c.LastMessage.Text, m.sidebarWidth-8))
	}

	switch {
	case c.ID == m.cursorID && m.focus == focusList:
		return selectedItemStyle.Render(line)
	case m.view.HasSelection && c.ID == m.view.Selected:
		return openItemStyle.Render(line)
	default:
		return unselectedItemStyle.Render(line)
	}
}

func (m model) chatView() string {
	style := paneStyle
	if m.focus == focusComposer {
		style = style.BorderForeground(activeBorder)
	}

	if !m.view.HasSelection {
		w, h := m.viewport.Width, m.viewport.Height+4
		return style.Render(lipgloss.Place(w, h, lipgloss.Center, lipgloss.Center,
			mutedStyle.Render("Select a conversation to start chatting")))
	}

	title := string(m.view.Selected)
	if c, ok := m.view.Conversation(m.view.Selected); ok {
		title = c.Counterpart.DisplayName
	}
	if !m.view.Scroll.Pinned {
		title += mutedStyle.Render("  ↓ newer messages below")
	}
	header := headerStyle.Width(m.viewport.Width).Render(title)

	body := m.viewport.View()
	switch {
	case m.view.TimelineLoading:
		body = mutedStyle.Render("Loading messages...")
	case m.view.TimelineErr != nil && len(m.view.Messages) == 0:
		body = errorStyle.Render("⚠ " + m.view.TimelineErr.Error())
	}

	parts := []string{header, body}
	if m.view.TimelineErr != nil && len(m.view.Messages) > 0 {
		parts = append(parts, errorStyle.Render("⚠ "+m.view.TimelineErr.Error()))
	}
	composer := m.input.View()
	if m.sending {
		composer = mutedStyle.Render("sending...")
	}
	parts = append(parts, composer)

	return style.Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

func (m model) renderTimeline() string {
	if len(m.view.Messages) == 0 {
		return ""
	}

	width := max(10, m.viewport.Width)
	wrap := lipgloss.NewStyle().Width(width)

	var content strings.Builder
	for i, msg := range m.view.Messages {
		if i > 0 {
			content.WriteString("\n")
		}
		nameStyle := otherMessageStyle
		if msg.SenderID == m.viewerID {
			nameStyle = ownMessageStyle
		}
		name := msg.SenderName
		if name == "" {
			name = msg.SenderID
		}
		line := fmt.Sprintf("%s %s: %s",
			mutedStyle.Render(formatTimestamp(msg.CreatedAt)),
			nameStyle.Render(name),
			msg.Body,
		)
		content.WriteString(wrap.Render(line))
	}
	return content.String()
}

// formatTimestamp shows the time for today's messages and the date otherwise.
func formatTimestamp(t time.Time) string {
	local := t.Local()
	now := time.Now()
	if local.Year() == now.Year() && local.YearDay() == now.YearDay() {
		return local.Format("15:04")
	}
	return local.Format("Jan 2 15:04")
}

func truncate(s string, width int) string {
	if width <= 1 {
		return ""
	}
	runes := []rune(strings.ReplaceAll(s, "\n", " "))
	if len(runes) <= width {
		return string(runes)
	}
	return string(runes[:width-1]) + "…"
}
