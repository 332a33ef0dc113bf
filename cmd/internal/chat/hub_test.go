package chat

import (
	"testing"
	"time"

	v1 "parley/contracts/chat/v1"
)

func testEnvelope(typ string) v1.Envelope {
	return NewEvent(typ, struct{}{}, time.Now().UTC())
}

func TestRoomBroadcastReachesMembers(t *testing.T) {
	t.Parallel()

	hub := NewHub(testLogger())
	a := NewClient("a", 1, "ann", 8)
	b := NewClient("b", 2, "ben", 8)
	hub.Add(a)
	hub.Add(b)

	room := hub.Room(10)
	room.Join(a)
	room.Join(b)

	if got := room.Broadcast(testEnvelope(v1.TypeGroupUsers)); got != 2 {
		t.Fatalf("Broadcast delivered %d, want 2", got)
	}
	if len(drain(a)) != 1 || len(drain(b)) != 1 {
		t.Fatal("both members should have one queued envelope")
	}
}

func TestRoomLeaveStopsDelivery(t *testing.T) {
	t.Parallel()

	hub := NewHub(testLogger())
	a := NewClient("a", 1, "ann", 8)
	room := hub.Room(10)
	room.Join(a)
	room.Leave("a")

	if room.Contains("a") {
		t.Fatal("member should be gone after Leave")
	}
	if got := room.Broadcast(testEnvelope(v1.TypeGroupUsers)); got != 0 {
		t.Fatalf("Broadcast delivered %d after leave, want 0", got)
	}

	// Leave must not have torn down the client itself.
	select {
	case <-a.Done():
		t.Fatal("Leave must not close the client")
	default:
	}
}

func TestHubRemoveLeavesAllRooms(t *testing.T) {
	t.Parallel()

	hub := NewHub(testLogger())
	a := NewClient("a", 1, "ann", 8)
	hub.Add(a)
	hub.Room(10).Join(a)
	hub.Room(20).Join(a)

	removed := hub.Remove("a")
	if removed != a {
		t.Fatal("Remove should return the detached client")
	}
	if hub.Room(10).Contains("a") || hub.Room(20).Contains("a") {
		t.Fatal("removed connection must be out of every room")
	}
	if hub.Get("a") != nil {
		t.Fatal("removed connection must be gone from the hub")
	}
}

func TestBroadcastDropsOnBackpressure(t *testing.T) {
	t.Parallel()

	room := NewRoom(testLogger(), 10)
	c := NewClient("slow", 1, "slow", 1)
	room.Join(c)

	if got := room.Broadcast(testEnvelope(v1.TypeMessageReceive)); got != 1 {
		t.Fatalf("first broadcast delivered %d, want 1", got)
	}
	// Queue is full now; the next broadcast must drop, not block.
	if got := room.Broadcast(testEnvelope(v1.TypeMessageReceive)); got != 0 {
		t.Fatalf("second broadcast delivered %d, want 0 (dropped)", got)
	}
}

func TestBroadcastSkipsClosedClients(t *testing.T) {
	t.Parallel()

	room := NewRoom(testLogger(), 10)
	c := NewClient("gone", 1, "gone", 8)
	room.Join(c)
	c.Close()

	if got := room.Broadcast(testEnvelope(v1.TypeMessageReceive)); got != 0 {
		t.Fatalf("broadcast to closed client delivered %d, want 0", got)
	}
}

func TestClientCloseIdempotent(t *testing.T) {
	t.Parallel()

	c := NewClient("c", 1, "c", 8)
	c.Close()
	c.Close()

	select {
	case <-c.Done():
	default:
		t.Fatal("Done should be closed after Close")
	}
}
