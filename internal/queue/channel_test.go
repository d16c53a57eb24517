package queue

import "testing"

func collect[T any](c *Channel[T]) []T {
	var out []T
	c.Receive(func(v T) bool {
		out = append(out, v)
		return true
	})
	return out
}

func TestChannelSendReceiveOrder(t *testing.T) {
	q := New[int]("c", nil)
	ch := NewQueueChannel(q)
	ch.Send(1, 2, 3)
	go ch.Close() // Close waits for the queue to drain, which collect does
	got := collect(ch)
	if len(got) != 3 || got[0] != 1 || got[2] != 3 {
		t.Fatalf("unexpected order: %v", got)
	}
}

func TestChannelCloseIdempotent(t *testing.T) {
	q := New[int]("c", nil)
	ch := NewQueueChannel(q)
	ch.Close()
	ch.Close() // must not block or panic
}

func TestChannelSendAfterCloseReportsFalse(t *testing.T) {
	q := New[int]("c", nil)
	ch := NewQueueChannel(q)
	ch.Close()
	if ch.Send(1) {
		t.Fatal("expected send after close to report false")
	}
}
