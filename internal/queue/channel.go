package queue

import "sync"

// Channel is the send/receive/close triple from spec.md §4.A. Receive is a
// lazy, finite, non-restartable sequence exposed as an iterator function
// (Go 1.23 range-over-func shape), matching the teacher's preference for
// plain closures over a bespoke generator runtime (cf. internal/engine's
// channel-shaped EventBus.Channel).
type Channel[T any] struct {
	send      func(vs ...T) bool
	receive   func(yield func(T) bool)
	closeOnce sync.Once
	closeFn   func()
}

// NewQueueChannel wraps q as a Channel: Send pushes, Receive drains in
// order until closed, Close closes q and waits for it to drain.
func NewQueueChannel[T any](q *Queue[T]) *Channel[T] {
	return &Channel[T]{
		send: func(vs ...T) bool {
			ok := true
			for _, v := range vs {
				if !q.Push(v) {
					ok = false
				}
			}
			return ok
		},
		receive: func(yield func(T) bool) {
			for {
				v, ok := q.Receive()
				if !ok {
					return
				}
				if !yield(v) {
					return
				}
			}
		},
		closeFn: func() {
			q.Close()
			<-q.Drained()
		},
	}
}

// Send forwards to the underlying push; returns false if any value was
// refused (closed queue).
func (c *Channel[T]) Send(vs ...T) bool { return c.send(vs...) }

// Receive yields values in insertion order until the channel is exhausted.
// The returned sequence is only valid for a single traversal.
func (c *Channel[T]) Receive(yield func(T) bool) { c.receive(yield) }

// Close is idempotent and returns only once upstream resources are fully
// released.
func (c *Channel[T]) Close() {
	c.closeOnce.Do(c.closeFn)
}

// custom builds a Channel from explicit send/receive/close functions, for
// combinators that do not wrap a single Queue directly.
func custom[T any](send func(vs ...T) bool, receive func(yield func(T) bool), closeFn func()) *Channel[T] {
	return &Channel[T]{send: send, receive: receive, closeFn: closeFn}
}

// Custom builds a Channel from explicit send/receive/close functions, for
// callers (outside this package) whose channel is not a direct wrapper of
// one Queue — e.g. a step's filter+window+function pipeline, where send
// feeds an input queue distinct from the queue that Receive drains.
func Custom[T any](send func(vs ...T) bool, receive func(yield func(T) bool), closeFn func()) *Channel[T] {
	return custom(send, receive, closeFn)
}

// Wrap returns a channel identical to ch except that Send is replaced by
// send; Receive and Close are forwarded to ch unchanged. Used where the
// feeding side of a channel is a distinct queue from the yielding side
// (e.g. the processor bridge's stdin-feed vs. stdout-receive queues).
func Wrap[T any](ch *Channel[T], send func(vs ...T) bool) *Channel[T] {
	return custom(send, ch.receive, ch.Close)
}
