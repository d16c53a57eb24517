package queue

import "sync"

// FlatMap returns a channel whose Receive applies f to each value received
// from c and yields each element of the result. Send is forwarded to c.
// Close closes c, then waits for the receive loop to finish (only if it
// ever started) — mirrors spec.md §4.A.
func FlatMap[T any](f func(T) []T, c *Channel[T]) *Channel[T] {
	started := make(chan struct{})
	var startOnce sync.Once
	done := make(chan struct{})

	receive := func(yield func(T) bool) {
		startOnce.Do(func() { close(started) })
		defer close(done)
		c.Receive(func(b T) bool {
			for _, out := range f(b) {
				if !yield(out) {
					return false
				}
			}
			return true
		})
	}

	return custom(
		c.Send,
		receive,
		func() {
			c.Close()
			select {
			case <-started:
				<-done
			default:
			}
		},
	)
}

// Drain consumes c for side effects via effect and exposes a channel that
// never yields (its Receive immediately returns). Closing it closes c and
// awaits both the side-effect loop and finalEffect, if non-nil.
func Drain[T any](c *Channel[T], effect func(T), finalEffect func()) *Channel[T] {
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		c.Receive(func(v T) bool {
			effect(v)
			return true
		})
	}()

	return custom(
		c.Send,
		func(yield func(T) bool) {},
		func() {
			c.Close()
			<-loopDone
			if finalEffect != nil {
				finalEffect()
			}
		},
	)
}

// Compose plumbs c2.Receive into c1.Send, and exposes c2.Send / c1.Receive
// — equivalent to function composition over streams: compose(c1, c2)(x)
// yields what c1(c2(x)) would. Close order on termination is c2 first,
// then c1, so upstream finishes feeding before downstream tears down.
func Compose[T any](c1, c2 *Channel[T]) *Channel[T] {
	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		c2.Receive(func(v T) bool {
			return c1.Send(v)
		})
	}()

	return custom(
		c2.Send,
		c1.receive,
		func() {
			c2.Close()
			<-pumpDone
			c1.Close()
		},
	)
}
