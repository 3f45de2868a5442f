package async

import (
	"context"
	"log"
	"runtime/debug"
	"sync"
	"time"
)

// SafeGo executes a function in a goroutine with:
// - Context cancellation support
// - Panic recovery
// - Timeout enforcement
// - Error logging
//
// Use this instead of bare `go func()` to prevent goroutine leaks and crashes.
//
// Example:
//
//	SafeGo(r.Context(), 3*time.Second, "event recording", func(ctx context.Context) error {
//	    return recorder.Record(ctx, name, payload, actor)
//	})
func SafeGo(parentCtx context.Context, timeout time.Duration, taskName string, fn func(context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(parentCtx, timeout)
		defer cancel()

		defer func() {
			if r := recover(); r != nil {
				log.Printf("[SafeGo] PANIC in %s: %v\nStack trace:\n%s",
					taskName, r, string(debug.Stack()))
			}
		}()

		if err := fn(ctx); err != nil {
			// Log error but don't crash
			// Caller can decide if this is critical or not
			log.Printf("[SafeGo] Error in %s: %v", taskName, err)
		}
	}()
}

// SafeGoDetached is like SafeGo but detaches from the parent's cancellation
// while keeping its values. A producer request finishing (or being cancelled)
// must not cancel an in-flight fire-and-forget append.
func SafeGoDetached(parentCtx context.Context, timeout time.Duration, taskName string, fn func(context.Context) error) {
	SafeGo(context.WithoutCancel(parentCtx), timeout, taskName, fn)
}

// WaitGroup wraps sync.WaitGroup with panic-safe goroutine launching, for
// callers that need to join background work before shutdown.
type WaitGroup struct {
	wg sync.WaitGroup
}

// Go launches fn in a tracked goroutine with panic recovery.
func (g *WaitGroup) Go(taskName string, fn func()) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Printf("[WaitGroup] PANIC in %s: %v\nStack trace:\n%s",
					taskName, r, string(debug.Stack()))
			}
		}()
		fn()
	}()
}

// Wait blocks until all tracked goroutines have finished.
func (g *WaitGroup) Wait() {
	g.wg.Wait()
}
