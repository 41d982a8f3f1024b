package queue

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/bridgedesk/bridgedesk/internal/config"
)

func testQueue(maxSize int) *Queue {
	return New(config.QueueConfig{MaxSize: maxSize, AvgHandleTime: 8 * time.Minute})
}

func TestPushPopOrder(t *testing.T) {
	q := testQueue(10)

	for _, it := range []Item{
		{ConversationID: "c-low", Priority: 2},
		{ConversationID: "c-high", Priority: 9},
		{ConversationID: "c-mid", Priority: 5},
	} {
		if _, err := q.Push(it); err != nil {
			t.Fatalf("push %s: %v", it.ConversationID, err)
		}
	}

	want := []string{"c-high", "c-mid", "c-low"}
	for _, id := range want {
		it, ok := q.Pop()
		if !ok {
			t.Fatalf("queue exhausted before %s", id)
		}
		if it.ConversationID != id {
			t.Fatalf("want %s, got %s", id, it.ConversationID)
		}
	}
	if _, ok := q.Pop(); ok {
		t.Fatal("queue should be empty")
	}
}

func TestFIFOWithinEqualPriority(t *testing.T) {
	q := testQueue(10)
	for i := 0; i < 5; i++ {
		q.Push(Item{ConversationID: fmt.Sprintf("c%d", i), Priority: 4})
	}
	for i := 0; i < 5; i++ {
		it, _ := q.Pop()
		if want := fmt.Sprintf("c%d", i); it.ConversationID != want {
			t.Fatalf("equal priority must dequeue FIFO: want %s, got %s", want, it.ConversationID)
		}
	}
}

func TestPopNeverIncreases(t *testing.T) {
	q := testQueue(100)
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 60; i++ {
		q.Push(Item{ConversationID: fmt.Sprintf("c%d", i), Priority: float64(rng.Intn(10))})
	}

	last := 1e18
	for {
		it, ok := q.Pop()
		if !ok {
			break
		}
		if it.Priority > last {
			t.Fatalf("priority increased across pops: %v after %v", it.Priority, last)
		}
		last = it.Priority
	}
}

func TestCapacity(t *testing.T) {
	q := testQueue(2)
	q.Push(Item{ConversationID: "a", Priority: 1})
	q.Push(Item{ConversationID: "b", Priority: 1})

	_, err := q.Push(Item{ConversationID: "c", Priority: 10})
	if !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("want ErrCapacityExceeded, got %v", err)
	}
	// The full queue is untouched.
	if q.Len() != 2 {
		t.Fatalf("rejected push must not change the queue, len %d", q.Len())
	}
	it, _ := q.Pop()
	if it.ConversationID != "a" {
		t.Fatalf("existing items unaffected, got %s", it.ConversationID)
	}
}

func TestAdmissionPositionAndWait(t *testing.T) {
	q := testQueue(10)

	adm, err := q.Push(Item{ConversationID: "first", Priority: 5})
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	if adm.Position != 1 || adm.QueueLength != 1 {
		t.Fatalf("want position 1 of 1, got %+v", adm)
	}
	if adm.EstimatedWait != 8*time.Minute {
		t.Fatalf("want 8m wait, got %v", adm.EstimatedWait)
	}

	// A lower-priority arrival queues behind.
	adm, _ = q.Push(Item{ConversationID: "second", Priority: 2})
	if adm.Position != 2 || adm.EstimatedWait != 16*time.Minute {
		t.Fatalf("want position 2 / 16m, got %+v", adm)
	}

	// A higher-priority arrival jumps ahead of both.
	adm, _ = q.Push(Item{ConversationID: "vip", Priority: 9})
	if adm.Position != 1 || adm.QueueLength != 3 {
		t.Fatalf("want position 1 of 3, got %+v", adm)
	}
}

func TestRemove(t *testing.T) {
	q := testQueue(10)
	q.Push(Item{ConversationID: "keep", Priority: 5})
	q.Push(Item{ConversationID: "drop", Priority: 9})

	if !q.Remove("drop") {
		t.Fatal("remove should report presence")
	}
	if q.Remove("drop") {
		t.Fatal("second remove should report absence")
	}
	it, _ := q.Pop()
	if it.ConversationID != "keep" {
		t.Fatalf("want keep, got %s", it.ConversationID)
	}
}

func TestSnapshotDequeueOrder(t *testing.T) {
	q := testQueue(10)
	q.Push(Item{ConversationID: "b", Priority: 3})
	q.Push(Item{ConversationID: "a", Priority: 7})
	q.Push(Item{ConversationID: "c", Priority: 3})

	snap := q.Snapshot()
	got := []string{snap[0].ConversationID, snap[1].ConversationID, snap[2].ConversationID}
	want := []string{"a", "b", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("snapshot order %v, want %v", got, want)
		}
	}
	// Snapshot must not drain the queue.
	if q.Len() != 3 {
		t.Fatalf("snapshot drained the queue: len %d", q.Len())
	}
}
