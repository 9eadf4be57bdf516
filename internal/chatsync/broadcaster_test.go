// ABOUTME: Tests for the latest-wins View broadcaster
// ABOUTME: Covers fan-out, replacement of unread views, unsubscribe and close

package chatsync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receiveView(t *testing.T, ch <-chan View) View {
	t.Helper()
	select {
	case v, ok := <-ch:
		require.True(t, ok, "channel closed")
		return v
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for view")
		return View{}
	}
}

func TestBroadcaster_AllSubscribersReceive(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ch1, _ := b.Subscribe(testContext(t))
	ch2, _ := b.Subscribe(testContext(t))

	b.Publish(View{Revision: 1})

	assert.Equal(t, uint64(1), receiveView(t, ch1).Revision)
	assert.Equal(t, uint64(1), receiveView(t, ch2).Revision)
}

func TestBroadcaster_SlowSubscriberGetsLatest(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ch, _ := b.Subscribe(testContext(t))
	for rev := uint64(1); rev <= 5; rev++ {
		b.Publish(View{Revision: rev})
	}

	assert.Equal(t, uint64(5), receiveView(t, ch).Revision)
	select {
	case v := <-ch:
		t.Fatalf("unexpected extra view %d", v.Revision)
	default:
	}
}

func TestBroadcaster_ReplacedScrollToBottomCarriesOver(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ch, _ := b.Subscribe(testContext(t))
	b.Publish(View{Revision: 1, HasSelection: true, Generation: 3, ScrollAction: ScrollToBottom})
	b.Publish(View{Revision: 2, HasSelection: true, Generation: 3})

	v := receiveView(t, ch)
	assert.Equal(t, uint64(2), v.Revision)
	assert.Equal(t, ScrollToBottom, v.ScrollAction)
}

func TestBroadcaster_ScrollDoesNotCarryAcrossSelections(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ch, _ := b.Subscribe(testContext(t))
	b.Publish(View{Revision: 1, HasSelection: true, Generation: 3, ScrollAction: ScrollToBottom})
	b.Publish(View{Revision: 2, HasSelection: true, Generation: 4})

	assert.Equal(t, ScrollPreserve, receiveView(t, ch).ScrollAction)

	b.Publish(View{Revision: 3, HasSelection: true, Generation: 4, ScrollAction: ScrollToBottom})
	b.Publish(View{Revision: 4})
	assert.Equal(t, ScrollPreserve, receiveView(t, ch).ScrollAction)
}

func TestBroadcaster_SubscribeWithInitial(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ch, _ := b.SubscribeWithInitial(testContext(t), View{Revision: 7})
	assert.Equal(t, uint64(7), receiveView(t, ch).Revision)
}

func TestBroadcaster_ContextCancelClosesChannel(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ctx, cancel := context.WithCancel(testContext(t))
	ch, _ := b.Subscribe(ctx)
	cancel()

	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
}

func TestBroadcaster_UnsubscribeTwiceIsSafe(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	_, id := b.Subscribe(testContext(t))
	b.Unsubscribe(id)
	b.Unsubscribe(id)
	b.Publish(View{Revision: 1})
}

func TestBroadcaster_CloseKeepsQueuedViewReadable(t *testing.T) {
	b := NewBroadcaster(nil)
	ch, _ := b.Subscribe(testContext(t))
	b.Publish(View{Revision: 3})
	b.Close()
	b.Close()

	assert.Equal(t, uint64(3), receiveView(t, ch).Revision)
	_, ok := <-ch
	assert.False(t, ok)

	late, _ := b.Subscribe(testContext(t))
	_, ok = <-late
	assert.False(t, ok)
}
