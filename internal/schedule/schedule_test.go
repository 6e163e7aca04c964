package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestEvery(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	clock := clockwork.NewFakeClock()
	calls := make(chan struct{}, 10)
	task := Every(ctx, clock, 3*time.Second, func(context.Context) {
		calls <- struct{}{}
	})

	if err := clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("ticker never registered: %v", err)
	}

	select {
	case <-calls:
		t.Fatal("fn called before the first interval elapsed")
	default:
	}

	for i := 0; i < 3; i++ {
		clock.Advance(3 * time.Second)
		select {
		case <-calls:
		case <-ctx.Done():
			t.Fatalf("tick %d never ran", i)
		}
	}

	task.Stop()
	task.Stop()

	clock.Advance(10 * time.Second)
	select {
	case <-calls:
		t.Fatal("fn called after Stop")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEvery_ParentCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	task := Every(ctx, clockwork.NewFakeClock(), time.Second, func(context.Context) {})

	cancel()
	select {
	case <-task.Done():
	case <-time.After(time.Second):
		t.Fatal("task did not stop with its parent context")
	}
}
