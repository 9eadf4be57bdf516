// Package clock provides the time source for the sync engine.
//
// Production code uses Real(). Tests use Fake(start) and drive timers
// explicitly:
//
//	c := clock.Fake(start)
//	engine, err := chatsync.New(source, "alice", chatsync.WithClock(c))
//	c.WaitForTimers(1)
//	c.Advance(5 * time.Second)
package clock
