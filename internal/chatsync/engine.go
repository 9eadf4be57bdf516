// ABOUTME: Single-goroutine event loop that owns all conversation sync state
// ABOUTME: Schedules list and timeline polls, applies completions and publishes Views

package chatsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/2389/coven-inbox/internal/chat"
	"github.com/2389/coven-inbox/internal/clock"
)

// Defaults for Engine options.
const (
	DefaultListInterval     = 5 * time.Second
	DefaultTimelineInterval = 4 * time.Second
	DefaultRequestTimeout   = 10 * time.Second
	DefaultScrollTolerance  = 1
)

// Engine errors
var (
	ErrStopped        = errors.New("sync engine is not running")
	ErrAlreadyRunning = errors.New("sync engine already running")
)

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock driving the refresh timers.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithLogger sets the logger. Nil means slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithIntervals sets the list and timeline poll intervals.
func WithIntervals(list, timeline time.Duration) Option {
	return func(e *Engine) {
		e.listInterval = list
		e.timelineInterval = timeline
	}
}

// WithRetry sets how refresh timers react to failures.
func WithRetry(cfg RetryConfig) Option {
	return func(e *Engine) { e.retry = cfg }
}

// WithRequestTimeout bounds every remote call.
func WithRequestTimeout(d time.Duration) Option {
	return func(e *Engine) { e.requestTimeout = d }
}

// WithScrollTolerance sets how close to the bottom still counts as pinned.
func WithScrollTolerance(units int) Option {
	return func(e *Engine) { e.scrollTolerance = units }
}

// WithAuthHandler sets the collaborator told about auth failures.
func WithAuthHandler(h AuthHandler) Option {
	return func(e *Engine) { e.authHandler = h }
}

type sendResult struct {
	msg chat.Message
	err error
}

// Engine keeps the viewer's conversation list and open timeline in sync
// with a Source. All state is owned by the goroutine running Run; the
// exported methods hand work to it and wait for the answer.
type Engine struct {
	source   Source
	viewerID string

	clock            clock.Clock
	logger           *slog.Logger
	listInterval     time.Duration
	timelineInterval time.Duration
	requestTimeout   time.Duration
	scrollTolerance  int
	retry            RetryConfig
	authHandler      AuthHandler

	actions     chan func()
	completions chan func()
	done        chan struct{}
	running     atomic.Bool
	broadcaster *Broadcaster

	lastMu sync.RWMutex
	last   View

	// Owned by the Run goroutine.
	runCtx        context.Context
	selection     Selection
	list          ListSync
	timeline      TimelineSync
	receipts      *ReadReceipts
	scroll        *ScrollAnchor
	listRetry     *RetryPolicy
	timelineRetry *RetryPolicy
	listTimer     *clock.Timer
	timelineTimer *clock.Timer
	revision      uint64
	scrollAction  ScrollAction
	viewChanged   bool
	halted        error
}

// New creates an engine for viewerID. Call Run to start it.
func New(source Source, viewerID string, opts ...Option) (*Engine, error) {
	if source == nil {
		return nil, errors.New("source is required")
	}
	if viewerID == "" {
		return nil, errors.New("viewer id is required")
	}

	e := &Engine{
		source:           source,
		viewerID:         viewerID,
		clock:            clock.Real(),
		logger:           slog.Default(),
		listInterval:     DefaultListInterval,
		timelineInterval: DefaultTimelineInterval,
		requestTimeout:   DefaultRequestTimeout,
		scrollTolerance:  DefaultScrollTolerance,
		actions:          make(chan func()),
		completions:      make(chan func(), 16),
		done:             make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.requestTimeout <= 0 {
		return nil, fmt.Errorf("request timeout must be positive, got %s", e.requestTimeout)
	}

	var err error
	if e.listRetry, err = NewRetryPolicy(e.listInterval, e.retry); err != nil {
		return nil, fmt.Errorf("list retry policy: %w", err)
	}
	if e.timelineRetry, err = NewRetryPolicy(e.timelineInterval, e.retry); err != nil {
		return nil, fmt.Errorf("timeline retry policy: %w", err)
	}

	e.logger = e.logger.With("component", "chatsync", "viewer_id", viewerID)
	e.broadcaster = NewBroadcaster(e.logger)
	e.receipts = NewReadReceipts(viewerID)
	e.scroll = NewScrollAnchor(e.scrollTolerance)
	e.last = e.buildView()
	return e, nil
}

// Run drives the engine until ctx is cancelled (returns nil) or an auth
// failure halts it (returns the auth error). Run may be called once.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer e.broadcaster.Close()
	defer close(e.done)
	defer e.stopTimers()

	e.runCtx = runCtx
	e.logger.Info("sync engine started",
		"list_interval", e.listInterval,
		"timeline_interval", e.timelineInterval,
	)

	e.refreshList()
	e.publish()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("sync engine stopped")
			return nil
		case fn := <-e.actions:
			fn()
		case fn := <-e.completions:
			fn()
		case <-timerC(e.listTimer):
			e.listTimer = nil
			e.refreshList()
		case <-timerC(e.timelineTimer):
			e.timelineTimer = nil
			e.refreshTimeline()
		}

		if e.viewChanged {
			e.publish()
		}
		if e.halted != nil {
			return e.halted
		}
	}
}

// Subscribe returns a channel carrying the latest View. The current View
// is delivered immediately. The channel closes when ctx ends or the engine
// stops.
func (e *Engine) Subscribe(ctx context.Context) <-chan View {
	e.lastMu.RLock()
	defer e.lastMu.RUnlock()

	if e.last.Revision == 0 {
		ch, _ := e.broadcaster.Subscribe(ctx)
		return ch
	}
	ch, _ := e.broadcaster.SubscribeWithInitial(ctx, e.last)
	return ch
}

// Snapshot returns the current state. Once the engine has stopped it
// returns the last published View.
func (e *Engine) Snapshot(ctx context.Context) (View, error) {
	var v View
	err := e.do(ctx, func() { v = e.buildView() })
	if errors.Is(err, ErrStopped) {
		e.lastMu.RLock()
		defer e.lastMu.RUnlock()
		return e.last, nil
	}
	return v, err
}

// Select opens a conversation and fetches its timeline immediately.
// Selecting the open conversation again starts it over.
func (e *Engine) Select(ctx context.Context, id chat.ConversationID) error {
	return e.do(ctx, func() { e.selectConversation(id) })
}

// Deselect closes the open conversation.
func (e *Engine) Deselect(ctx context.Context) error {
	return e.do(ctx, e.deselect)
}

// Send posts body to the open conversation and returns the stored
// message. Blank bodies fail with chat.ErrValidation before any remote
// call. On success the message is already in the timeline when Send
// returns, unless the selection changed meanwhile.
func (e *Engine) Send(ctx context.Context, body string) (chat.Message, error) {
	if strings.TrimSpace(body) == "" {
		return chat.Message{}, fmt.Errorf("%w: message body is empty", chat.ErrValidation)
	}

	result := make(chan sendResult, 1)
	if err := e.do(ctx, func() { e.startSend(body, result) }); err != nil {
		return chat.Message{}, err
	}

	select {
	case r := <-result:
		return r.msg, r.err
	case <-ctx.Done():
		return chat.Message{}, ctx.Err()
	case <-e.done:
		select {
		case r := <-result:
			return r.msg, r.err
		default:
			return chat.Message{}, ErrStopped
		}
	}
}

// OnUserScroll reports a manual scroll of the timeline view.
func (e *Engine) OnUserScroll(ctx context.Context, pos ScrollPosition) error {
	return e.do(ctx, func() {
		if _, _, ok := e.selection.Current(); !ok {
			return
		}
		if e.scroll.OnUserScroll(pos) {
			e.logger.Debug("scroll anchor changed", "pinned", e.scroll.State().Pinned)
			e.viewChanged = true
		}
	})
}

// DismissErrors clears the list and timeline error flags.
func (e *Engine) DismissErrors(ctx context.Context) error {
	return e.do(ctx, func() {
		listHad := e.list.ClearErr()
		timelineHad := e.timeline.ClearErr()
		if listHad || timelineHad {
			e.viewChanged = true
		}
	})
}

// do runs fn on the engine goroutine and waits for it to finish.
func (e *Engine) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	action := func() {
		defer close(finished)
		fn()
	}

	select {
	case e.actions <- action:
	case <-e.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	// The loop runs the action before it can exit.
	<-finished
	return nil
}

// spawn runs call off-loop under the request timeout and queues the
// closure it returns for the loop.
func (e *Engine) spawn(call func(ctx context.Context) func()) {
	ctx, cancel := context.WithTimeout(e.runCtx, e.requestTimeout)
	go func() {
		defer cancel()
		apply := call(ctx)
		select {
		case e.completions <- apply:
		case <-e.done:
		}
	}()
}

// classify maps a Source error onto the chat taxonomy.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, chat.ErrAuth), errors.Is(err, chat.ErrNetwork),
		errors.Is(err, chat.ErrValidation), errors.Is(err, chat.ErrNotFound):
		return err
	default:
		return fmt.Errorf("%w: %w", chat.ErrNetwork, err)
	}
}

func (e *Engine) refreshList() {
	if e.halted != nil {
		return
	}
	if e.list.InFlight() {
		e.list.MarkDirty()
		return
	}
	e.listTimer.Stop()
	e.listTimer = nil

	ticket := e.list.Issue(e.clock.Now())
	viewerID := e.viewerID
	e.spawn(func(ctx context.Context) func() {
		conversations, err := e.source.ListConversations(ctx, viewerID)
		return func() { e.applyList(ticket, conversations, err) }
	})
}

func (e *Engine) applyList(ticket ListTicket, conversations []chat.Conversation, err error) {
	err = classify(err)
	if chat.IsAuth(err) {
		e.halt(err)
		return
	}
	elapsed := e.clock.Now().Sub(ticket.IssuedAt)
	if err != nil {
		e.logger.Warn("conversation list refresh failed", "seq", ticket.Seq, "elapsed", elapsed, "error", err)
	} else {
		e.logger.Debug("conversation list refreshed", "seq", ticket.Seq, "elapsed", elapsed, "count", len(conversations))
	}

	if e.list.Apply(ticket, conversations, err) {
		e.viewChanged = true
	}

	if e.list.TakeDirty() {
		e.refreshList()
		return
	}
	if !e.list.InFlight() {
		e.listTimer = e.clock.NewTimer(e.listRetry.Next(err))
	}
}

func (e *Engine) refreshTimeline() {
	if e.halted != nil || e.timeline.InFlight() {
		return
	}
	ticket, ok := e.timeline.Issue()
	if !ok {
		return
	}
	e.timelineTimer.Stop()
	e.timelineTimer = nil

	e.spawn(func(ctx context.Context) func() {
		messages, err := e.source.ListMessages(ctx, ticket.ConversationID)
		return func() { e.applyTimeline(ticket, messages, err) }
	})
}

func (e *Engine) applyTimeline(ticket TimelineTicket, messages []chat.Message, err error) {
	err = classify(err)
	if chat.IsAuth(err) {
		e.halt(err)
		return
	}

	res := e.timeline.Apply(ticket, messages, err)
	current := e.selection.IsCurrent(ticket.Generation)
	if res.Dropped {
		e.logger.Debug("dropping stale timeline response",
			"conversation_id", ticket.ConversationID,
			"generation", ticket.Generation,
			"seq", ticket.Seq,
		)
	}
	if !current {
		return
	}
	if !e.timeline.InFlight() {
		e.timelineTimer = e.clock.NewTimer(e.timelineRetry.Next(err))
	}
	if res.Dropped {
		return
	}

	if err != nil {
		e.logger.Warn("timeline refresh failed", "conversation_id", ticket.ConversationID, "error", err)
		if res.Changed {
			e.viewChanged = true
		}
		return
	}

	if res.Changed {
		e.scrollAction = e.scroll.OnRender(len(e.timeline.Messages()) > 0)
		e.viewChanged = true
	}
	e.publishReadIfNeeded(ticket.ConversationID)
}

func (e *Engine) publishReadIfNeeded(id chat.ConversationID) {
	receipt, ok := e.receipts.Next(id, e.timeline.Messages())
	if !ok {
		return
	}
	e.spawn(func(ctx context.Context) func() {
		err := e.source.MarkRead(ctx, receipt)
		return func() { e.applyRead(receipt, err) }
	})
}

func (e *Engine) applyRead(receipt chat.ReadReceipt, err error) {
	err = classify(err)
	refresh := e.receipts.Complete(receipt, err)
	if chat.IsAuth(err) {
		e.halt(err)
		return
	}
	if err != nil {
		e.logger.Warn("mark read failed",
			"conversation_id", receipt.ConversationID,
			"through", receipt.Through,
			"error", err,
		)
		return
	}
	e.logger.Debug("conversation marked read",
		"conversation_id", receipt.ConversationID,
		"through", receipt.Through,
	)
	if refresh {
		e.refreshList()
	}
}

func (e *Engine) startSend(body string, result chan<- sendResult) {
	if e.halted != nil {
		result <- sendResult{err: e.halted}
		return
	}
	id, g, ok := e.selection.Current()
	if !ok {
		result <- sendResult{err: fmt.Errorf("%w: no conversation selected", chat.ErrValidation)}
		return
	}

	req := chat.SendRequest{
		ConversationID: id,
		SenderID:       e.viewerID,
		Body:           body,
		IdempotencyKey: uuid.New().String(),
	}
	e.spawn(func(ctx context.Context) func() {
		msg, err := e.source.SendMessage(ctx, req)
		return func() { e.applySend(g, req, msg, err, result) }
	})
}

func (e *Engine) applySend(g Generation, req chat.SendRequest, msg chat.Message, err error, result chan<- sendResult) {
	err = classify(err)
	if err != nil {
		e.logger.Warn("send failed", "conversation_id", req.ConversationID, "error", err)
		result <- sendResult{err: err}
		if chat.IsAuth(err) {
			e.halt(err)
		}
		return
	}

	// A poll may already have delivered the message; the send still pins.
	e.timeline.AppendSent(g, msg)
	if e.selection.IsCurrent(g) {
		e.scroll.OnSend()
		e.scrollAction = e.scroll.OnRender(true)
		e.viewChanged = true
	} else {
		e.logger.Debug("send completed after selection changed",
			"conversation_id", req.ConversationID,
			"message_id", msg.ID,
		)
	}
	result <- sendResult{msg: msg}

	e.refreshList()
}

func (e *Engine) selectConversation(id chat.ConversationID) {
	if e.halted != nil {
		return
	}
	g := e.selection.Select(id)
	e.timeline.Bind(id, g)
	e.scroll.Reset()
	e.timelineTimer.Stop()
	e.timelineTimer = nil
	e.timelineRetry.Reset()
	e.scrollAction = ScrollPreserve
	e.viewChanged = true

	e.logger.Info("conversation selected", "conversation_id", id, "generation", g)
	e.refreshTimeline()
}

func (e *Engine) deselect() {
	if _, _, ok := e.selection.Current(); !ok {
		return
	}
	e.selection.Deselect()
	e.timeline.Unbind()
	e.scroll.Reset()
	e.timelineTimer.Stop()
	e.timelineTimer = nil
	e.scrollAction = ScrollPreserve
	e.viewChanged = true

	e.logger.Info("conversation deselected")
}

// halt stops all polling after an auth failure and notifies the session.
func (e *Engine) halt(err error) {
	if e.halted != nil {
		return
	}
	e.halted = err
	e.logger.Error("authentication failed, halting sync", "error", err)

	e.stopTimers()
	e.selection.Deselect()
	e.timeline.Unbind()
	e.scroll.Reset()
	e.scrollAction = ScrollPreserve
	e.publish()

	if e.authHandler != nil {
		e.authHandler.HandleAuthError(err)
	}
}

func (e *Engine) stopTimers() {
	e.listTimer.Stop()
	e.listTimer = nil
	e.timelineTimer.Stop()
	e.timelineTimer = nil
}

func (e *Engine) publish() {
	e.revision++
	v := e.buildView()
	v.ScrollAction = e.scrollAction
	e.scrollAction = ScrollPreserve
	e.viewChanged = false

	e.lastMu.Lock()
	defer e.lastMu.Unlock()
	e.last = v
	e.broadcaster.Publish(v)
}

// buildView copies loop state into a View. ScrollAction is left at
// ScrollPreserve; publish sets it for renders.
func (e *Engine) buildView() View {
	id, g, selected := e.selection.Current()
	v := View{
		Revision:        e.revision,
		Conversations:   append([]chat.Conversation(nil), e.list.Conversations()...),
		ListLoading:     !e.list.Loaded() && e.list.InFlight(),
		ListErr:         e.list.Err(),
		Selected:        id,
		HasSelection:    selected,
		Generation:      g,
		Messages:        append([]chat.Message(nil), e.timeline.Messages()...),
		TimelineLoading: selected && !e.timeline.Loaded() && e.timeline.InFlight(),
		TimelineErr:     e.timeline.Err(),
		Scroll:          e.scroll.State(),
		Halted:          e.halted,
	}
	return v
}

func timerC(t *clock.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}
