// Package commandqueue provides lane-based task serialization.
//
// Every conversation gets its own lane with concurrency 1, which is how the
// runtime guarantees a single writer per conversation tree: turns for the
// same conversation run strictly one after another, while turns for different
// conversations run in parallel. Maintenance work (retention pruning, store
// refreshes) runs in a wider shared lane.
//
// Usage:
//
//	queue := commandqueue.New()
//	result, err := queue.EnqueueWithContext(ctx, commandqueue.ConversationLane(convID),
//		func(ctx context.Context) (interface{}, error) {
//			return runTurn(ctx)
//		}, nil)
//
// Lanes are created on demand. EnqueueIdempotent additionally caches results
// by request id so client retries do not execute a turn twice.
package commandqueue
