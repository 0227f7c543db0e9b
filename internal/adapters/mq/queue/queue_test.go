package queue

import (
	"context"
	"testing"
	"time"

	"github.com/okian/squadwatch/internal/domain/model"
)

func notice(key string) model.Notice {
	return model.Notice{Kind: model.NoticeUpdate, Key: key, Text: "summary " + key}
}

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}

	if !q.Enqueue(ctx, notice("k1")) {
		t.Error("expected enqueue to succeed")
	}
	if l := q.Len(ctx); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	n := <-q.Dequeue(ctx)
	if n.Key != "k1" || n.Kind != model.NoticeUpdate {
		t.Errorf("unexpected notice %+v", n)
	}
	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
}

func TestInMemoryQueue_Capacity(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if !q.Enqueue(ctx, notice("k1")) || !q.Enqueue(ctx, notice("k2")) {
		t.Fatal("expected enqueue to succeed")
	}
	if q.Enqueue(ctx, notice("k3")) {
		t.Error("expected enqueue to fail when full")
	}
	if l := q.Len(ctx); l != 2 {
		t.Errorf("expected length 2, got %d", l)
	}
}

func TestInMemoryQueue_Close(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(4))
	ctx := context.Background()

	q.Enqueue(ctx, notice("k1"))
	if err := q.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if !q.IsClosed() {
		t.Error("expected queue to be closed")
	}
	if q.Enqueue(ctx, notice("k2")) {
		t.Error("expected enqueue on closed queue to fail")
	}

	// Notices queued before Close are still delivered, then the channel closes.
	ch := q.Dequeue(ctx)
	var got []string
	timeout := time.After(time.Second)
	for {
		select {
		case n, ok := <-ch:
			if !ok {
				if len(got) != 1 || got[0] != "k1" {
					t.Errorf("expected [k1], got %v", got)
				}
				return
			}
			got = append(got, n.Key)
		case <-timeout:
			t.Fatal("dequeue channel was not closed")
		}
	}
}

func TestInMemoryQueue_CancelledContext(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Full buffer: select must not pick the send case.
	q.Enqueue(context.Background(), notice("k1"))
	if q.Enqueue(ctx, notice("k2")) {
		t.Error("expected enqueue to fail")
	}
}
