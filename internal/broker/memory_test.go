package broker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// TestMemory_PublishSubscribe verifies basic delivery of published messages.
func TestMemory_PublishSubscribe(t *testing.T) {
	m := NewMemory(5, 1)
	defer m.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan Message, 1)
	go m.Subscribe(ctx, "sales", "group", func(ctx context.Context, msg Message) error {
		received <- msg
		return nil
	})

	if err := m.Publish(ctx, "sales", []byte("key"), []byte(`{"n":1}`)); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case msg := <-received:
		if string(msg.Value) != `{"n":1}` {
			t.Errorf("received value = %s, want {\"n\":1}", msg.Value)
		}
		if msg.Attempt != 1 {
			t.Errorf("first delivery attempt = %d, want 1", msg.Attempt)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("message was not delivered")
	}
}

// TestMemory_RedeliveryThenSuccess verifies a failing handler sees the
// message again with an incremented attempt count until it succeeds.
func TestMemory_RedeliveryThenSuccess(t *testing.T) {
	m := NewMemory(5, 1)
	defer m.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var attempts []int
	done := make(chan struct{})
	go m.Subscribe(ctx, "sales", "group", func(ctx context.Context, msg Message) error {
		mu.Lock()
		attempts = append(attempts, msg.Attempt)
		n := len(attempts)
		mu.Unlock()
		if n < 3 {
			return errors.New("transient failure")
		}
		close(done)
		return nil
	})

	if err := m.Publish(ctx, "sales", nil, []byte("payload")); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("message never succeeded")
	}

	mu.Lock()
	defer mu.Unlock()
	want := []int{1, 2, 3}
	if len(attempts) != len(want) {
		t.Fatalf("attempts = %v, want %v", attempts, want)
	}
	for i := range want {
		if attempts[i] != want[i] {
			t.Errorf("attempt %d = %d, want %d", i, attempts[i], want[i])
		}
	}
	if m.Pending(DeadLetterTopic("sales")) != 0 {
		t.Error("successful message ended up in the dead-letter topic")
	}
}

// TestMemory_DeadLetterAfterBudget verifies a message that always fails is
// delivered exactly maxDeliveries times and then dead-lettered.
func TestMemory_DeadLetterAfterBudget(t *testing.T) {
	const maxDeliveries = 5
	m := NewMemory(maxDeliveries, 1)
	defer m.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var count atomic.Int32
	go m.Subscribe(ctx, "sales", "group", func(ctx context.Context, msg Message) error {
		count.Add(1)
		return errors.New("permanent failure")
	})

	if err := m.Publish(ctx, "sales", nil, []byte("poison")); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	deadline := time.After(2 * time.Second)
	for m.Pending(DeadLetterTopic("sales")) == 0 {
		select {
		case <-deadline:
			t.Fatalf("message never dead-lettered after %d attempts", count.Load())
		case <-time.After(10 * time.Millisecond):
		}
	}

	if got := count.Load(); got != maxDeliveries {
		t.Errorf("handler invocations = %d, want %d", got, maxDeliveries)
	}
	if got := m.Pending(DeadLetterTopic("sales")); got != 1 {
		t.Errorf("dead-letter topic holds %d messages, want 1", got)
	}
}

// TestMemory_PublishAfterClose verifies a closed broker rejects publishes.
func TestMemory_PublishAfterClose(t *testing.T) {
	m := NewMemory(5, 1)
	m.Close()
	if err := m.Publish(context.Background(), "sales", nil, []byte("x")); err == nil {
		t.Error("Publish() after Close() error = nil, want error")
	}
}

// TestDeadLetterTopic verifies the naming convention.
func TestDeadLetterTopic(t *testing.T) {
	if got := DeadLetterTopic("live-sales"); got != "live-sales.deadletter" {
		t.Errorf("DeadLetterTopic() = %q, want %q", got, "live-sales.deadletter")
	}
}
