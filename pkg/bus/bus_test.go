package bus

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestMemoryBus_PublishSubscribe(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()

	received := make(chan *Message, 1)

	sub, err := bus.Subscribe("test.subject", func(msg *Message) {
		received <- msg
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Unsubscribe()

	err = bus.Publish("test.subject", []byte("hello"))
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case msg := <-received:
		if string(msg.Data) != "hello" {
			t.Errorf("Expected 'hello', got %q", string(msg.Data))
		}
		if msg.Subject != "test.subject" {
			t.Errorf("Expected subject 'test.subject', got %q", msg.Subject)
		}
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for message")
	}
}

func TestMemoryBus_Wildcard(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()

	var received atomic.Int32

	sub, err := bus.Subscribe("knowledge.*", func(msg *Message) {
		received.Add(1)
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Unsubscribe()

	bus.Publish(SubjectKnowledgeStored, []byte("1"))
	bus.Publish(SubjectKnowledgeRemoved, []byte("2"))
	bus.Publish(SubjectEvolutionCompleted, []byte("3")) // Should not match

	time.Sleep(100 * time.Millisecond)

	if received.Load() != 2 {
		t.Errorf("Expected 2 messages, got %d", received.Load())
	}
}

func TestMemoryBus_WildcardGreaterThan(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()

	var received atomic.Int32

	sub, err := bus.Subscribe("knowledge.>", func(msg *Message) {
		received.Add(1)
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Unsubscribe()

	bus.Publish("knowledge.stored", []byte("1"))
	bus.Publish("knowledge.gap.detected", []byte("2"))
	bus.Publish("evolution.completed", []byte("3")) // Should not match

	time.Sleep(100 * time.Millisecond)

	if received.Load() != 2 {
		t.Errorf("Expected 2 messages, got %d", received.Load())
	}
}

func TestMemoryBus_MultipleSubscribers(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()

	var count atomic.Int32

	for i := 0; i < 3; i++ {
		sub, _ := bus.Subscribe("fanout", func(msg *Message) {
			count.Add(1)
		})
		defer sub.Unsubscribe()
	}

	bus.Publish("fanout", []byte("broadcast"))
	time.Sleep(100 * time.Millisecond)

	if count.Load() != 3 {
		t.Errorf("Expected 3 subscribers to receive message, got %d", count.Load())
	}
}

func TestMemoryBus_Unsubscribe(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()

	var received atomic.Int32

	sub, _ := bus.Subscribe("test", func(msg *Message) {
		received.Add(1)
	})

	bus.Publish("test", []byte("1"))
	time.Sleep(50 * time.Millisecond)

	sub.Unsubscribe()

	bus.Publish("test", []byte("2"))
	time.Sleep(50 * time.Millisecond)

	if received.Load() != 1 {
		t.Errorf("Expected 1 message after unsubscribe, got %d", received.Load())
	}
}

func TestMemoryBus_PublishAfterClose(t *testing.T) {
	bus := NewMemoryBus()
	bus.Close()

	if err := bus.Publish("test", []byte("1")); err != ErrClosed {
		t.Errorf("Expected ErrClosed, got %v", err)
	}

	if _, err := bus.Subscribe("test", func(msg *Message) {}); err != ErrClosed {
		t.Errorf("Expected ErrClosed from Subscribe, got %v", err)
	}
}

func TestMemoryBus_CloseTwice(t *testing.T) {
	bus := NewMemoryBus()

	if err := bus.Close(); err != nil {
		t.Fatalf("First close failed: %v", err)
	}
	if err := bus.Close(); err != ErrClosed {
		t.Errorf("Expected ErrClosed on second close, got %v", err)
	}
}

func TestMatchSubject(t *testing.T) {
	tests := []struct {
		pattern string
		subject string
		want    bool
	}{
		{"knowledge.stored", "knowledge.stored", true},
		{"knowledge.stored", "knowledge.removed", false},
		{"knowledge.*", "knowledge.stored", true},
		{"knowledge.*", "knowledge.stored.extra", false},
		{"knowledge.>", "knowledge.stored", true},
		{"knowledge.>", "knowledge.gap.detected", true},
		{"knowledge.>", "evolution.completed", false},
		{"*.stored", "knowledge.stored", true},
		{"*.stored", "cache.stored", true},
		{"*", "knowledge", true},
		{"*", "knowledge.stored", false},
		{">", "anything.at.all", true},
	}

	for _, tt := range tests {
		got := matchSubject(tt.pattern, tt.subject)
		if got != tt.want {
			t.Errorf("matchSubject(%q, %q) = %v, want %v", tt.pattern, tt.subject, got, tt.want)
		}
	}
}
