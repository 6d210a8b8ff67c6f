// Package refresh populates the buffered geometry of work items from the
// authoritative store in the background.
//
// A Coordinator splits the items that have no cached geometry into N
// interleaved partitions and runs one worker per partition. Each worker opens
// its own gdb.Session, optionally pinned to its OS thread, and publishes
// geometries on the items as it goes. Workers check the shared context before
// every item; cancellation stops them silently. Errors on single items are
// logged and skipped, and a panic only ends the worker it happened in.
//
// Usage:
//
//	coord := refresh.New(store, func(o *refresh.Options) {
//		o.Workers = 3
//		o.OnWorkerDone = cat.NotifyChanged
//	})
//	h := coord.Start(ctx, cat.Items())
//	defer h.Cancel()
package refresh
