package render

import (
	"context"
	"testing"
	"time"

	"github.com/dfeldman/webInk/internal/registry"
)

// TestSubmitReturnsPoolExhaustedWhenNoWorkersDrain verifies that Submit
// gives up after its wait timeout rather than blocking forever when
// nothing is draining the job queue.
func TestSubmitReturnsPoolExhaustedWhenNoWorkersDrain(t *testing.T) {
	e := &Engine{
		jobs:        make(chan *Job), // unbuffered, no workers reading
		ctx:         context.Background(),
		cancel:      func() {},
		waitTimeout: 50 * time.Millisecond,
	}

	device := registry.Device{ID: "dev1", Viewport: registry.Viewport{Width: 10, Height: 10}}
	_, err := e.Submit(context.Background(), device)
	if err != ErrPoolExhausted {
		t.Fatalf("Submit() err = %v, want ErrPoolExhausted", err)
	}
}

func TestSubmitHonorsCallerContextCancellation(t *testing.T) {
	e := &Engine{
		jobs:        make(chan *Job, 1),
		ctx:         context.Background(),
		cancel:      func() {},
		waitTimeout: time.Second,
	}

	// The job is accepted into the queue but nobody ever answers it,
	// so Submit should return once the caller's context is canceled.
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	device := registry.Device{ID: "dev1", Viewport: registry.Viewport{Width: 10, Height: 10}}
	_, err := e.Submit(ctx, device)
	if err != context.Canceled {
		t.Fatalf("Submit() err = %v, want context.Canceled", err)
	}
}
