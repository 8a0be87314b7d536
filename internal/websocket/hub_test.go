package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"

	"fridgeio/internal/model"
)

// mockClient creates a Client with a send channel but no real connection.
func mockClient(hub *Hub, identity string) *Client {
	return &Client{
		hub:      hub,
		conn:     nil,
		identity: identity,
		send:     make(chan []byte, sendBufferSize),
	}
}

func TestRegisterUnregister(t *testing.T) {
	hub := NewHub(slog.Default())

	c1 := mockClient(hub, "alice")
	c2 := mockClient(hub, "alice")

	hub.Register(c1)
	hub.Register(c2)

	if got := hub.ClientCount("alice"); got != 2 {
		t.Fatalf("expected 2 clients, got %d", got)
	}

	hub.Unregister(c1)

	if got := hub.ClientCount("alice"); got != 1 {
		t.Fatalf("expected 1 client after unregister, got %d", got)
	}

	hub.Unregister(c2)

	if got := hub.ClientCount("alice"); got != 0 {
		t.Fatalf("expected 0 clients, got %d", got)
	}
}

func TestDoubleUnregister(t *testing.T) {
	hub := NewHub(slog.Default())
	c := mockClient(hub, "alice")
	hub.Register(c)
	hub.Unregister(c)
	// Should not panic
	hub.Unregister(c)

	if got := hub.ClientCount("alice"); got != 0 {
		t.Fatalf("expected 0 clients, got %d", got)
	}
}

func TestPublishReachesOnlyOwnRoom(t *testing.T) {
	hub := NewHub(slog.Default())

	alice := mockClient(hub, "alice")
	bob := mockClient(hub, "bob")
	hub.Register(alice)
	hub.Register(bob)

	msg := GroceriesMessage([]model.Grocery{{ID: "g1", Name: "milk", Order: 0}})
	hub.Publish("alice", msg)

	select {
	case data := <-alice.send:
		var got Message
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got.Category != "groceries" {
			t.Errorf("category = %q", got.Category)
		}
		if len(got.Groceries) != 1 || got.Groceries[0].Name != "milk" {
			t.Errorf("groceries = %v", got.Groceries)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for message")
	}

	select {
	case <-bob.send:
		t.Fatal("message leaked into another identity's room")
	default:
	}

	hub.Unregister(alice)
	hub.Unregister(bob)
}

func TestPublishEmptyRoom(t *testing.T) {
	hub := NewHub(slog.Default())
	// Should not panic
	hub.Publish("nobody", AuthMessage(true, ""))
}

func TestPublishFullBuffer(t *testing.T) {
	hub := NewHub(slog.Default())

	c := mockClient(hub, "alice")
	hub.Register(c)

	// Fill the send buffer
	for i := 0; i < sendBufferSize; i++ {
		hub.Publish("alice", GroceryListsMessage(nil))
	}

	// This should drop the message, not panic or block
	hub.Publish("alice", GroceryListsMessage(nil))

	// Drain to verify buffer was full
	count := 0
	for {
		select {
		case <-c.send:
			count++
		default:
			goto done
		}
	}
done:
	if count != sendBufferSize {
		t.Errorf("expected %d messages, got %d", sendBufferSize, count)
	}

	hub.Unregister(c)
}

func TestAuthMessage(t *testing.T) {
	msg := AuthMessage(false, "The email or password is incorrect.")
	if msg.Category != "auth" {
		t.Errorf("category = %q", msg.Category)
	}
	if msg.Success == nil || *msg.Success {
		t.Error("success should be false")
	}
	if msg.Message == "" {
		t.Error("message should carry the failure reason")
	}
}

func TestConcurrentAccess(t *testing.T) {
	hub := NewHub(slog.Default())
	var wg sync.WaitGroup

	// Spawn goroutines that register, publish, and unregister concurrently
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := mockClient(hub, "alice")
			hub.Register(c)
			hub.Publish("alice", GroceriesMessage(nil))
			// Drain any messages
			for {
				select {
				case <-c.send:
				default:
					hub.Unregister(c)
					return
				}
			}
		}()
	}

	wg.Wait()

	if got := hub.ClientCount("alice"); got != 0 {
		t.Errorf("expected 0 clients after concurrent test, got %d", got)
	}
}
