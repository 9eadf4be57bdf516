// ABOUTME: In-memory fan-out of View snapshots to presentation subscribers
// ABOUTME: Each subscriber holds only the latest View; pending scroll-to-bottom survives replacement

package chatsync

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Broadcaster delivers Views to any number of subscribers. Publish never
// blocks: a subscriber that has not consumed the previous View gets it
// replaced by the newer one.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]chan View
	closed      bool
	logger      *slog.Logger
}

// NewBroadcaster creates a broadcaster. Pass nil logger for default.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[string]chan View),
		logger:      logger.With("component", "broadcaster"),
	}
}

// Subscribe registers a subscriber. The channel is closed when ctx is
// cancelled or the broadcaster is closed.
func (b *Broadcaster) Subscribe(ctx context.Context) (<-chan View, string) {
	return b.subscribe(ctx, nil)
}

// SubscribeWithInitial is Subscribe with v already queued on the channel.
func (b *Broadcaster) SubscribeWithInitial(ctx context.Context, v View) (<-chan View, string) {
	return b.subscribe(ctx, &v)
}

func (b *Broadcaster) subscribe(ctx context.Context, initial *View) (<-chan View, string) {
	subID := uuid.New().String()
	ch := make(chan View, 1)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, subID
	}
	if initial != nil {
		ch <- *initial
	}
	b.subscribers[subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "sub_id", subID)

	go func() {
		<-ctx.Done()
		b.Unsubscribe(subID)
	}()

	return ch, subID
}

// Publish hands v to every subscriber, replacing any View still queued.
// A ScrollToBottom on the replaced View carries over to v when both show
// the same selection, so a lagging subscriber still scrolls.
func (b *Broadcaster) Publish(v View) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers {
		out := v
		select {
		case queued := <-ch:
			out = carryScroll(queued, out)
		default:
		}
		select {
		case ch <- out:
		default:
			// Only the engine publishes; the buffer was just drained.
			b.logger.Debug("dropped view for subscriber", "revision", v.Revision)
		}
	}
}

func carryScroll(replaced, next View) View {
	if replaced.ScrollAction != ScrollToBottom || !replaced.HasSelection || !next.HasSelection {
		return next
	}
	if replaced.Generation == next.Generation {
		next.ScrollAction = ScrollToBottom
	}
	return next
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.subscribers[subID]
	if !ok {
		return
	}
	delete(b.subscribers, subID)
	close(ch)

	b.logger.Debug("subscriber removed", "sub_id", subID)
}

// Close closes every subscriber channel. Later subscriptions receive an
// already-closed channel.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for subID, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, subID)
	}

	b.logger.Debug("broadcaster closed")
}
