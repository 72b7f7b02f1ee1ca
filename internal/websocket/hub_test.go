package websocket

import (
	"testing"
)

func newTestClient(hub *Hub, id, room string) *Client {
	return &Client{
		ID:       id,
		UserID:   1,
		Username: "tester",
		Room:     room,
		Send:     make(chan *Message, 4),
		Hub:      hub,
	}
}

func TestHubRegisterAndUnregister(t *testing.T) {
	hub := NewHub()
	room := ConsoleRoom("inst-1")
	client := newTestClient(hub, "client-1", room)

	hub.registerClient(client)
	if hub.GetRoomSize(room) != 1 {
		t.Fatalf("expected room size 1")
	}

	hub.unregisterClient(client)
	if hub.GetRoomSize(room) != 0 {
		t.Fatalf("expected room to be empty")
	}
}

func TestHubBroadcastToRoom(t *testing.T) {
	hub := NewHub()
	room := ConsoleRoom("inst-1")
	client := newTestClient(hub, "client-1", room)
	other := newTestClient(hub, "client-2", ConsoleRoom("inst-2"))

	hub.registerClient(client)
	hub.registerClient(other)

	message := &Message{Type: "console_line", Payload: "[INFO]: Done"}
	hub.broadcastToRoom(&BroadcastMessage{Room: room, Message: message})

	select {
	case received := <-client.Send:
		if received.Type != "console_line" {
			t.Fatalf("expected console_line message, got %s", received.Type)
		}
	default:
		t.Fatalf("expected message to be delivered")
	}

	select {
	case <-other.Send:
		t.Fatalf("message leaked into another instance's room")
	default:
	}
}

func TestHubDropsWhenClientBacklogged(t *testing.T) {
	hub := NewHub()
	room := ConsoleRoom("inst-1")
	client := newTestClient(hub, "client-1", room)
	client.Send = make(chan *Message, 1)

	hub.registerClient(client)

	hub.broadcastToRoom(&BroadcastMessage{Room: room, Message: &Message{Type: "console_line", Payload: "one"}})
	// Channel is full now; this one is dropped instead of blocking.
	hub.broadcastToRoom(&BroadcastMessage{Room: room, Message: &Message{Type: "console_line", Payload: "two"}})

	if got := len(client.Send); got != 1 {
		t.Fatalf("expected 1 queued message, got %d", got)
	}
}
