package exchangeapi

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/panics"
)

// Result is the outcome of an Operation: a value or an error, never both.
type Result[T any] struct {
	Value T
	Err   error
}

// Status of an Operation.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Operation is a cancellable unit of work running on its own goroutine.
// Its completion callback runs exactly once unless the operation is
// cancelled first, in which case it never runs.
type Operation[T any] struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	status Status
	result Result[T]
}

// Start runs fn on a new goroutine. done may be nil.
// A panic in fn is reported as an error wrapping ErrPanic.
func Start[T any](ctx context.Context, fn func(ctx context.Context) (T, error), done func(Result[T])) *Operation[T] {
	ctx, cancel := context.WithCancel(ctx)
	op := &Operation[T]{
		id:     uuid.NewString(),
		cancel: cancel,
		done:   make(chan struct{}),
		status: StatusRunning,
	}

	go op.run(ctx, fn, done)
	return op
}

func (op *Operation[T]) run(ctx context.Context, fn func(ctx context.Context) (T, error), done func(Result[T])) {
	defer close(op.done)
	defer op.cancel()

	var res Result[T]
	var pc panics.Catcher
	pc.Try(func() {
		res.Value, res.Err = fn(ctx)
	})
	if err := pc.Recovered().AsError(); err != nil {
		var zero T
		res = Result[T]{Value: zero, Err: fmt.Errorf("%w: %v", ErrPanic, err)}
	}
	if res.Err != nil {
		var zero T
		res.Value = zero
	}

	op.mu.Lock()
	if op.status == StatusCancelled {
		op.mu.Unlock()
		return
	}
	op.result = res
	if res.Err != nil {
		op.status = StatusFailed
	} else {
		op.status = StatusSucceeded
	}
	op.mu.Unlock()

	if done != nil {
		done(res)
	}
}

func (op *Operation[T]) ID() string {
	return op.id
}

func (op *Operation[T]) Status() Status {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.status
}

// Cancel stops the operation. It reports false when the operation already
// finished, in which case the completion callback has run or is running.
func (op *Operation[T]) Cancel() bool {
	op.mu.Lock()
	if op.status != StatusRunning {
		op.mu.Unlock()
		return false
	}
	op.status = StatusCancelled
	op.mu.Unlock()

	op.cancel()
	return true
}

// Done is closed once the operation's goroutine has exited.
func (op *Operation[T]) Done() <-chan struct{} {
	return op.done
}

// Wait blocks until the operation finished or was cancelled and returns its
// result. ok is false for cancelled operations.
func (op *Operation[T]) Wait() (res Result[T], ok bool) {
	<-op.done
	return op.Result()
}

// Result returns the result of a finished operation without blocking.
func (op *Operation[T]) Result() (Result[T], bool) {
	op.mu.Lock()
	defer op.mu.Unlock()
	switch op.status {
	case StatusSucceeded, StatusFailed:
		return op.result, true
	default:
		return Result[T]{}, false
	}
}
