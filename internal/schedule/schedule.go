// Package schedule runs repeating background tasks on an injectable clock.
package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Task is a running repeating task.
type Task struct {
	cancel context.CancelFunc
	done   chan struct{}
	runs   sync.WaitGroup
}

// Every calls fn once per interval until ctx is done or Stop is called. Each
// call runs on its own goroutine, so a slow call does not delay the next
// tick and calls may overlap.
func Every(ctx context.Context, clock clockwork.Clock, interval time.Duration, fn func(context.Context)) *Task {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task{cancel: cancel, done: make(chan struct{})}

	ticker := clock.NewTicker(interval)
	go func() {
		defer close(t.done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				t.runs.Add(1)
				go func() {
					defer t.runs.Done()
					fn(ctx)
				}()
			}
		}
	}()
	return t
}

// Stop cancels the task and waits for in-flight calls to return. It is safe
// to call more than once.
func (t *Task) Stop() {
	t.cancel()
	<-t.done
	t.runs.Wait()
}

// Done is closed once the task stopped ticking.
func (t *Task) Done() <-chan struct{} {
	return t.done
}
