package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"parley/cmd/internal/chat"
	"parley/cmd/internal/storage"
	v1 "parley/contracts/chat/v1"

	"github.com/coder/websocket"
)

type staticResolver struct {
	user chat.User
}

func (r staticResolver) Resolve(_ context.Context, token string) (chat.User, error) {
	if token != "good-token" {
		return chat.User{}, errors.New("bad token")
	}
	return r.user, nil
}

// Not parallel: NewGateway reads its configuration from the environment.
func TestHandshakeAcksBeforePresenceEvents(t *testing.T) {
	t.Setenv("PARLEY_WS_ORIGIN_REQUIRED", "false")

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := storage.NewMemoryStore()
	registry := chat.NewRegistry()
	hub := chat.NewHub(log)
	router := chat.NewRouter(log, registry, hub)
	view := chat.NewMembershipView(store, registry)
	lifecycle := chat.NewLifecycle(log, registry, hub, router, store, view)
	svc := chat.NewService(log, store, store, store, registry, router)

	g := NewGateway(log, staticResolver{user: chat.User{ID: 1, Username: "ann"}}, lifecycle, svc)
	srv := httptest.NewServer(g)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, srv.URL, &websocket.DialOptions{
		Subprotocols: []string{wsSubprotocolV1},
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "done") }()

	hello := chat.NewEvent(v1.TypeHello, v1.HelloPayload{Token: "good-token"}, time.Now().UTC())
	raw, err := json.Marshal(hello)
	if err != nil {
		t.Fatalf("marshal hello: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, raw); err != nil {
		t.Fatalf("write hello: %v", err)
	}

	// hello.ack must be the very first frame after hello, ahead of the
	// presence events the connect path emits.
	first, err := readEnvelope(ctx, conn)
	if err != nil {
		t.Fatalf("read first frame: %v", err)
	}
	if first.Type != v1.TypeHelloAck {
		t.Fatalf("first frame = %s, want %s", first.Type, v1.TypeHelloAck)
	}
	var ack v1.HelloAckPayload
	if err := json.Unmarshal(first.Payload, &ack); err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	if ack.UserID != 1 || ack.Username != "ann" || ack.ConnectionID == "" {
		t.Fatalf("ack = %+v", ack)
	}

	second, err := readEnvelope(ctx, conn)
	if err != nil {
		t.Fatalf("read second frame: %v", err)
	}
	if second.Type != v1.TypeUsersSnapshot {
		t.Fatalf("second frame = %s, want %s", second.Type, v1.TypeUsersSnapshot)
	}
}

func TestEnforceOrigin(t *testing.T) {
	t.Parallel()

	g := &Gateway{
		originRequired: true,
		allowedOrigins: []string{"http://localhost", "https://chat.example.com"},
	}

	cases := []struct {
		name   string
		origin string
		wantOK bool
	}{
		{"missing origin", "", false},
		{"allowed exact", "http://localhost", true},
		{"allowed host other port", "http://localhost:3000", true},
		{"allowed https host", "https://chat.example.com", true},
		{"denied host", "http://evil.example.com", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			r := httptest.NewRequest("GET", "/ws", nil)
			if tc.origin != "" {
				r.Header.Set("Origin", tc.origin)
			}
			err := g.enforceOrigin(r)
			if tc.wantOK && err != nil {
				t.Fatalf("expected allowed, got %v", err)
			}
			if !tc.wantOK && err == nil {
				t.Fatal("expected rejection")
			}
		})
	}
}

func TestEnforceOriginOptional(t *testing.T) {
	t.Parallel()

	g := &Gateway{originRequired: false, allowedOrigins: []string{"http://localhost"}}
	r := httptest.NewRequest("GET", "/ws", nil)
	if err := g.enforceOrigin(r); err != nil {
		t.Fatalf("missing origin should pass when not required: %v", err)
	}
}

func TestDeriveOriginPatterns(t *testing.T) {
	t.Parallel()

	got := deriveOriginPatterns([]string{
		"http://localhost",
		"http://localhost:3000",
		"https://chat.example.com",
		"*",
		"",
	})
	want := []string{"chat.example.com", "localhost"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestErrorCode(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want string
	}{
		{chat.ErrRecipientOffline, "recipient_offline"},
		{fmt.Errorf("wrap: %w", chat.ErrForbidden), "forbidden"},
		{chat.ErrNotFound, "not_found"},
		{chat.ErrInvalidInput, "bad_request"},
		{errors.New("db down"), "internal"},
	}
	for _, tc := range cases {
		if got := errorCode(tc.err); got != tc.want {
			t.Errorf("errorCode(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
