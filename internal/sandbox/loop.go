package sandbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// ErrLoopClosed is returned when posting to a closed loop.
var ErrLoopClosed = errors.New("event loop is closed")

// ErrLoopFull is returned by Post when the queue has no room.
var ErrLoopFull = errors.New("event loop queue full")

type task struct {
	fn     func() error
	result chan error
}

// Loop runs posted functions one at a time on a single goroutine. Everything
// touching a State or a dom.Document is funneled through one Loop, which makes
// the host side a cooperative event loop.
//
// Usage:
//
//	loop := NewLoop(0)
//	go loop.Run(ctx)
//	defer loop.Close()
//	err := loop.Do(ctx, func() error { ... })
type Loop struct {
	queue     chan *task
	done      chan struct{}
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewLoop creates a loop with a queue of size entries (100 when <= 0).
func NewLoop(size int) *Loop {
	if size <= 0 {
		size = 100
	}
	return &Loop{
		queue: make(chan *task, size),
		done:  make(chan struct{}),
	}
}

// Run processes tasks until ctx is cancelled or Close is called.
func (l *Loop) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			l.drain(ctx.Err())
			return
		case <-l.done:
			l.drain(ErrLoopClosed)
			return
		case t := <-l.queue:
			t.result <- l.exec(t)
			close(t.result)
		}
	}
}

func (l *Loop) exec(t *task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in event loop task: %v", r)
		}
	}()
	return t.fn()
}

func (l *Loop) drain(err error) {
	for {
		select {
		case t := <-l.queue:
			t.result <- err
			close(t.result)
		default:
			return
		}
	}
}

// Do runs fn on the loop and waits for its result.
func (l *Loop) Do(ctx context.Context, fn func() error) error {
	if l.closed.Load() {
		return ErrLoopClosed
	}

	t := &task{fn: fn, result: make(chan error, 1)}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrLoopClosed
	case l.queue <- t:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err, ok := <-t.result:
		if !ok {
			return ErrLoopClosed
		}
		return err
	}
}

// Post queues fn without waiting. Errors returned by fn are passed to onErr
// when it is non-nil.
func (l *Loop) Post(fn func() error, onErr func(error)) error {
	if l.closed.Load() {
		return ErrLoopClosed
	}

	t := &task{fn: fn, result: make(chan error, 1)}
	select {
	case <-l.done:
		return ErrLoopClosed
	case l.queue <- t:
		go func() {
			if err := <-t.result; err != nil && onErr != nil {
				onErr(err)
			}
		}()
		return nil
	default:
		return ErrLoopFull
	}
}

// Close stops the loop. Queued tasks fail with ErrLoopClosed.
func (l *Loop) Close() {
	l.closeOnce.Do(func() {
		l.closed.Store(true)
		close(l.done)
	})
}
