// Package async provides safe concurrent execution primitives for background
// tasks.
//
// SafeGo executes a function in a goroutine with panic recovery, a bounded
// per-task timeout, and context cancellation:
//
//	async.SafeGo(r.Context(), 3*time.Second, "event recording", func(ctx context.Context) error {
//		return recorder.Record(ctx, name, payload, actor)
//	})
//
// The analytics recorder uses this for fire-and-forget event appends so a slow
// store can never propagate backpressure into a producer's critical path.
package async
