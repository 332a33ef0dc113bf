package chat

import (
	"testing"

	v1 "parley/contracts/chat/v1"
)

func newTestRouter() (*Router, *Registry, *Hub) {
	registry := NewRegistry()
	hub := NewHub(testLogger())
	return NewRouter(testLogger(), registry, hub), registry, hub
}

func connect(registry *Registry, hub *Hub, connID string, userID int64, username string) *Client {
	c := NewClient(connID, userID, username, 8)
	hub.Add(c)
	registry.Register(connID, userID)
	return c
}

func TestDispatchEveryone(t *testing.T) {
	t.Parallel()

	router, registry, hub := newTestRouter()
	a := connect(registry, hub, "a", 1, "ann")
	b := connect(registry, hub, "b", 2, "ben")

	if got := router.Dispatch(testEnvelope(v1.TypeUserJoined), Everyone()); got != 2 {
		t.Fatalf("delivered %d, want 2", got)
	}
	if len(drain(a)) != 1 || len(drain(b)) != 1 {
		t.Fatal("both clients should have received the event")
	}
}

func TestDispatchToUserHitsAllConnections(t *testing.T) {
	t.Parallel()

	router, registry, hub := newTestRouter()
	phone := connect(registry, hub, "phone", 7, "kim")
	laptop := connect(registry, hub, "laptop", 7, "kim")
	other := connect(registry, hub, "other", 8, "lee")

	if got := router.Dispatch(testEnvelope(v1.TypePrivateReceive), ToUser(7)); got != 2 {
		t.Fatalf("delivered %d, want 2", got)
	}
	if len(drain(phone)) != 1 || len(drain(laptop)) != 1 {
		t.Fatal("every connection of the target user should receive the event")
	}
	if len(drain(other)) != 0 {
		t.Fatal("unrelated user must not receive the event")
	}
}

func TestDispatchToOfflineUserIsSilentDrop(t *testing.T) {
	t.Parallel()

	router, _, _ := newTestRouter()
	if got := router.Dispatch(testEnvelope(v1.TypePrivateReceive), ToUser(99)); got != 0 {
		t.Fatalf("delivered %d to offline user, want 0", got)
	}
}

func TestDispatchToGroupOnlyReachesRoom(t *testing.T) {
	t.Parallel()

	router, registry, hub := newTestRouter()
	in := connect(registry, hub, "in", 1, "ann")
	out := connect(registry, hub, "out", 2, "ben")
	hub.Room(10).Join(in)

	if got := router.Dispatch(testEnvelope(v1.TypeGroupReceive), ToGroup(10)); got != 1 {
		t.Fatalf("delivered %d, want 1", got)
	}
	if len(drain(in)) != 1 {
		t.Fatal("room member should receive the event")
	}
	if len(drain(out)) != 0 {
		t.Fatal("non-member must not receive the event")
	}
}

func TestDispatchToCaller(t *testing.T) {
	t.Parallel()

	router, registry, hub := newTestRouter()
	a := connect(registry, hub, "a", 1, "ann")
	b := connect(registry, hub, "b", 2, "ben")

	if got := router.Dispatch(testEnvelope(v1.TypeUsersSnapshot), ToCaller(a)); got != 1 {
		t.Fatalf("delivered %d, want 1", got)
	}
	if len(drain(a)) != 1 || len(drain(b)) != 0 {
		t.Fatal("only the caller should receive the event")
	}
}

func TestNewEventEnvelopeShape(t *testing.T) {
	t.Parallel()

	env := testEnvelope(v1.TypeUserJoined)
	if env.V != v1.Version {
		t.Errorf("V = %q, want %q", env.V, v1.Version)
	}
	if env.ID == "" {
		t.Error("envelope id must be set")
	}
	if err := env.Validate(); err != nil {
		t.Errorf("generated envelope must validate: %v", err)
	}
}
