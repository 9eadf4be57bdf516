// Package chatsync keeps a viewer's conversation list and open timeline
// consistent with a remote store that is only reachable by polling.
//
// # Overview
//
// The Engine owns every piece of sync state on a single goroutine:
//
//   - ListSync: ranked conversation list, refreshed every list interval
//   - TimelineSync: messages of the open conversation, refreshed every
//     timeline interval and bound to one selection generation
//   - Selection: which conversation is open; mints Generation tokens
//   - ReadReceipts: publishes mark-read at most once per newest message
//   - ScrollAnchor: decides whether a render follows the newest message
//
// Remote calls run on their own goroutines and hand a closure back to the
// loop, so no lock guards sync state. A response is applied only if its
// generation is still current and nothing newer has been applied.
//
// # Usage
//
//	engine, err := chatsync.New(client, "alice", chatsync.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//	go engine.Run(ctx)
//
//	for view := range engine.Subscribe(ctx) {
//		render(view)
//	}
//
// Views are delivered latest-wins: a slow subscriber skips intermediate
// revisions but always sees the newest one.
//
// # Failures
//
// Network failures set a per-component error flag and are retried on the
// next tick, using the configured RetryPolicy. An auth failure halts the
// engine: timers stop, the selection is dropped, the AuthHandler is told
// and Run returns the error.
package chatsync
