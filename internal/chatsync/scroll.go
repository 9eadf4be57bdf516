// ABOUTME: Scroll anchoring: when a timeline update should jump to the newest message
// ABOUTME: Background polls never move the view while the user reads older history

package chatsync

// ScrollAction is the presentation instruction attached to a View.
type ScrollAction int

const (
	// ScrollPreserve keeps the current scroll offset.
	ScrollPreserve ScrollAction = iota
	// ScrollToBottom moves the view to the newest message.
	ScrollToBottom
)

func (a ScrollAction) String() string {
	if a == ScrollToBottom {
		return "bottom"
	}
	return "preserve"
}

// ScrollPosition is reported by the presentation layer when the user
// scrolls. Units are whatever the view measures in (lines, pixels).
type ScrollPosition struct {
	Offset         int
	ViewportHeight int
	ContentHeight  int
}

// AtBottom reports whether the newest content is in view, allowing
// tolerance units of slack.
func (p ScrollPosition) AtBottom(tolerance int) bool {
	return p.Offset+p.ViewportHeight >= p.ContentHeight-tolerance
}

// ScrollState is the anchor state exposed in a View.
type ScrollState struct {
	Pinned            bool
	Offset            int
	InitialScrollDone bool
}

// ScrollAnchor decides, for every timeline render, whether to follow the
// newest message.
type ScrollAnchor struct {
	state     ScrollState
	tolerance int
}

// NewScrollAnchor returns an anchor in the freshly-selected state.
func NewScrollAnchor(tolerance int) *ScrollAnchor {
	a := &ScrollAnchor{tolerance: tolerance}
	a.Reset()
	return a
}

// Reset returns to pinned with the initial scroll still pending. Called
// on every selection change.
func (a *ScrollAnchor) Reset() {
	a.state = ScrollState{Pinned: true}
}

// OnRender is called for every timeline update that reaches the view.
// The first non-empty render after a reset always scrolls to the bottom;
// after that the view follows only while pinned.
func (a *ScrollAnchor) OnRender(nonEmpty bool) ScrollAction {
	if !nonEmpty {
		return ScrollPreserve
	}
	if !a.state.InitialScrollDone {
		a.state.InitialScrollDone = true
		a.state.Pinned = true
		return ScrollToBottom
	}
	if a.state.Pinned {
		return ScrollToBottom
	}
	return ScrollPreserve
}

// OnSend pins the view after the viewer's own message is appended.
func (a *ScrollAnchor) OnSend() {
	a.state.Pinned = true
}

// OnUserScroll records a manual scroll. Scrolling to the bottom pins the
// view; scrolling anywhere else unpins it. Reports whether Pinned changed.
func (a *ScrollAnchor) OnUserScroll(pos ScrollPosition) bool {
	was := a.state.Pinned
	a.state.Offset = pos.Offset
	a.state.Pinned = pos.AtBottom(a.tolerance)
	return was != a.state.Pinned
}

// State returns a copy of the anchor state.
func (a *ScrollAnchor) State() ScrollState { return a.state }
