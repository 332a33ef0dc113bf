// Package main provides a CI-friendly end-to-end smoke test for Parley.
//
// It validates:
//   - register over HTTP
//   - handshake + subprotocol selection + hello/ack
//   - global room fanout
//   - private send to every target connection (plus sender echo)
//   - group create + join by code + group fanout
//   - history fetch over HTTP
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	v1 "parley/contracts/chat/v1"

	"github.com/coder/websocket"
)

const (
	defaultSubprotocol = "parley.chat.v1"
	maxReadBytes       = 1 << 20 // 1MiB
)

type smokeClient struct {
	name     string
	conn     *websocket.Conn
	userID   int64
	username string
	token    string

	inbox chan v1.Envelope
	errCh chan error
}

func main() {
	var (
		apiURL  = flag.String("api", "http://127.0.0.1:8080", "HTTP API base URL")
		wsURL   = flag.String("url", "ws://127.0.0.1:8080/ws", "WebSocket URL")
		origin  = flag.String("origin", "http://localhost", "Origin header to send (browser-like WS handshake)")
		text    = flag.String("text", "hello parley 👋", "Message text to send")
		timeout = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if err := validateWSURL(*wsURL); err != nil {
		fatalf("invalid -url: %v", err)
	}
	if err := validateOrigin(*origin); err != nil {
		fatalf("invalid -origin: %v", err)
	}

	root := context.Background()
	suffix := time.Now().UnixNano() % 1_000_000

	a := mustRegister(root, *apiURL, fmt.Sprintf("smoke-a-%d", suffix), *timeout)
	b := mustRegister(root, *apiURL, fmt.Sprintf("smoke-b-%d", suffix), *timeout)

	mustConnect(root, a, *wsURL, *origin, *timeout)
	defer closeWS(a.conn)

	mustConnect(root, b, *wsURL, *origin, *timeout)
	defer closeWS(b.conn)

	if *verbose {
		fmt.Printf("connected: A=%s(%d) B=%s(%d) origin=%q\n", a.username, a.userID, b.username, b.userID, *origin)
	}

	// Global room fanout.
	mustSendGlobal(root, a, *text, *timeout)
	mustReceiveGlobal(root, b, a.username, *text, *timeout)

	// Private send: target gets it, sender gets an echo.
	mustSendPrivate(root, a, b.userID, "psst "+*text, *timeout)
	mustReceivePrivate(root, b, a.username, "psst "+*text, *timeout)
	mustReceivePrivate(root, a, a.username, "psst "+*text, *timeout)

	// Group: A creates, B joins by code, both attach to the room, A posts.
	group := mustCreateGroup(root, a, *apiURL, fmt.Sprintf("smoke-group-%d", suffix), *timeout)
	mustJoinByCode(root, b, *apiURL, group.JoinCode, *timeout)
	mustJoinRoom(root, a, group.ID, *timeout)
	mustJoinRoom(root, b, group.ID, *timeout)
	mustSendGroup(root, a, group.ID, "standup in "+group.Name, *timeout)
	mustReceiveGroup(root, b, group.ID, a.username, "standup in "+group.Name, *timeout)

	// The global message must be in the persisted history.
	mustHistoryContains(root, b, *apiURL, a.username, *text, *timeout)

	fmt.Printf("OK: A=%s B=%s group_id=%d\n", a.username, b.username, group.ID)
}

func validateWSURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	if strings.TrimSpace(u.Path) == "" {
		return errors.New("missing path")
	}
	return nil
}

func validateOrigin(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("origin must be http/https, got: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("origin missing host")
	}
	return nil
}

// ---- HTTP steps ----

func mustRegister(parent context.Context, apiURL, username string, stepTimeout time.Duration) *smokeClient {
	var resp struct {
		Token string `json:"token"`
		User  struct {
			ID       int64  `json:"id"`
			Username string `json:"username"`
		} `json:"user"`
	}
	mustPostJSON(parent, apiURL+"/api/auth/register", "", map[string]any{
		"username": username,
		"password": "smoke-password-1",
	}, &resp, stepTimeout)

	if strings.TrimSpace(resp.Token) == "" {
		fatalf("register %s: missing token", username)
	}
	if resp.User.ID == 0 {
		fatalf("register %s: missing user id", username)
	}
	return &smokeClient{
		name:     username,
		userID:   resp.User.ID,
		username: resp.User.Username,
		token:    resp.Token,
		inbox:    make(chan v1.Envelope, 512),
		errCh:    make(chan error, 1),
	}
}

type smokeGroup struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	JoinCode string `json:"join_code"`
}

func mustCreateGroup(parent context.Context, c *smokeClient, apiURL, name string, stepTimeout time.Duration) smokeGroup {
	var group smokeGroup
	mustPostJSON(parent, apiURL+"/api/groups", c.token, map[string]any{"name": name}, &group, stepTimeout)
	if group.ID == 0 || strings.TrimSpace(group.JoinCode) == "" {
		fatalf("create group: incomplete response: %+v", group)
	}
	return group
}

func mustJoinByCode(parent context.Context, c *smokeClient, apiURL, code string, stepTimeout time.Duration) {
	var group smokeGroup
	mustPostJSON(parent, apiURL+"/api/groups/join", c.token, map[string]any{"code": code}, &group, stepTimeout)
	if group.ID == 0 {
		fatalf("join by code (%s): incomplete response: %+v", c.name, group)
	}
}

func mustHistoryContains(parent context.Context, c *smokeClient, apiURL, sender, text string, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL+"/api/history?limit=50", nil)
	if err != nil {
		fatalf("history request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		fatalf("history fetch: %v", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		fatalf("history fetch: status=%d body=%s", res.StatusCode, body)
	}

	var payload struct {
		Messages []struct {
			SenderName string `json:"sender_name"`
			Content    string `json:"content"`
		} `json:"messages"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		fatalf("decode history: %v", err)
	}
	for _, m := range payload.Messages {
		if m.SenderName == sender && m.Content == text {
			return
		}
	}
	fatalf("history missing expected message from %q", sender)
}

func mustPostJSON(parent context.Context, endpoint, token string, body any, out any, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	b, err := json.Marshal(body)
	if err != nil {
		fatalf("marshal request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
	if err != nil {
		fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		fatalf("POST %s: %v", endpoint, err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		fatalf("POST %s: status=%d body=%s", endpoint, res.StatusCode, raw)
	}
	if out != nil {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			fatalf("decode %s response: %v", endpoint, err)
		}
	}
}

// ---- WebSocket steps ----

func mustConnect(parent context.Context, c *smokeClient, wsURL, origin string, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	h := http.Header{}
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}

	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		Subprotocols: []string{defaultSubprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		fatalf("connect %s: %v", c.name, err)
	}

	assertSubprotocol(resp, defaultSubprotocol)
	conn.SetReadLimit(maxReadBytes)
	c.conn = conn
	c.startReadLoop()

	hello := v1.Envelope{
		V:       v1.Version,
		Type:    v1.TypeHello,
		ID:      fmt.Sprintf("%s-hello", c.name),
		TS:      time.Now().UTC(),
		Payload: mustJSON(v1.HelloPayload{Token: c.token}),
	}
	mustWriteWithTimeout(parent, conn, hello, stepTimeout)

	ack := c.mustReadUntilType(parent, v1.TypeHelloAck, stepTimeout)

	var p v1.HelloAckPayload
	if err := json.Unmarshal(ack.Payload, &p); err != nil {
		fatalf("unmarshal hello.ack payload (%s): %v", c.name, err)
	}
	if strings.TrimSpace(p.ConnectionID) == "" {
		fatalf("hello.ack missing connection_id (%s)", c.name)
	}
	if p.UserID != c.userID || p.Username != c.username {
		fatalf("hello.ack identity mismatch (%s): got=%d/%q want=%d/%q", c.name, p.UserID, p.Username, c.userID, c.username)
	}
}

func assertSubprotocol(resp *http.Response, want string) {
	if resp == nil {
		return
	}
	got := strings.TrimSpace(resp.Header.Get("Sec-WebSocket-Protocol"))
	if got == "" {
		return
	}
	if got != want {
		fatalf("subprotocol mismatch: got=%q want=%q", got, want)
	}
}

func (c *smokeClient) startReadLoop() {
	go func() {
		defer close(c.inbox)

		for {
			mt, data, err := c.conn.Read(context.Background())
			if err != nil {
				select {
				case c.errCh <- err:
				default:
				}
				return
			}

			if mt != websocket.MessageText && mt != websocket.MessageBinary {
				select {
				case c.errCh <- fmt.Errorf("unsupported message type: %v", mt):
				default:
				}
				return
			}

			var env v1.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				select {
				case c.errCh <- fmt.Errorf("bad json: %w", err):
				default:
				}
				return
			}
			if err := env.Validate(); err != nil {
				select {
				case c.errCh <- fmt.Errorf("bad envelope: %w", err):
				default:
				}
				return
			}

			select {
			case c.inbox <- env:
			default:
				select {
				case c.errCh <- errors.New("inbox overflow: consumer too slow"):
				default:
				}
				return
			}
		}
	}()
}

func mustSendGlobal(parent context.Context, c *smokeClient, text string, stepTimeout time.Duration) {
	env := v1.Envelope{
		V:       v1.Version,
		Type:    v1.TypeMessageSend,
		ID:      fmt.Sprintf("%s-send", c.name),
		TS:      time.Now().UTC(),
		Payload: mustJSON(v1.MessageSendPayload{Content: text}),
	}
	mustWriteWithTimeout(parent, c.conn, env, stepTimeout)
}

func mustReceiveGlobal(parent context.Context, c *smokeClient, sender, text string, stepTimeout time.Duration) {
	env := c.mustReadUntilType(parent, v1.TypeMessageReceive, stepTimeout)

	var p v1.MessageReceivePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		fatalf("unmarshal message.receive payload (%s): %v", c.name, err)
	}
	if p.Sender != sender || p.Content != text {
		fatalf("global mismatch (%s): got=%q/%q want=%q/%q", c.name, p.Sender, p.Content, sender, text)
	}
	if p.SentAt.IsZero() {
		fatalf("global sent_at missing/zero (%s)", c.name)
	}
}

func mustSendPrivate(parent context.Context, c *smokeClient, targetUserID int64, text string, stepTimeout time.Duration) {
	env := v1.Envelope{
		V:       v1.Version,
		Type:    v1.TypePrivateSend,
		ID:      fmt.Sprintf("%s-private", c.name),
		TS:      time.Now().UTC(),
		Payload: mustJSON(v1.PrivateSendPayload{TargetUserID: targetUserID, Content: text}),
	}
	mustWriteWithTimeout(parent, c.conn, env, stepTimeout)
}

func mustReceivePrivate(parent context.Context, c *smokeClient, sender, text string, stepTimeout time.Duration) {
	env := c.mustReadUntilType(parent, v1.TypePrivateReceive, stepTimeout)

	var p v1.PrivateReceivePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		fatalf("unmarshal message.private payload (%s): %v", c.name, err)
	}
	if p.Sender != sender || p.Content != text {
		fatalf("private mismatch (%s): got=%q/%q want=%q/%q", c.name, p.Sender, p.Content, sender, text)
	}
}

func mustJoinRoom(parent context.Context, c *smokeClient, groupID int64, stepTimeout time.Duration) {
	env := v1.Envelope{
		V:       v1.Version,
		Type:    v1.TypeRoomJoin,
		ID:      fmt.Sprintf("%s-join-%d", c.name, groupID),
		TS:      time.Now().UTC(),
		Payload: mustJSON(v1.RoomJoinPayload{GroupID: groupID}),
	}
	mustWriteWithTimeout(parent, c.conn, env, stepTimeout)
}

func mustSendGroup(parent context.Context, c *smokeClient, groupID int64, text string, stepTimeout time.Duration) {
	env := v1.Envelope{
		V:       v1.Version,
		Type:    v1.TypeGroupSend,
		ID:      fmt.Sprintf("%s-group-send", c.name),
		TS:      time.Now().UTC(),
		Payload: mustJSON(v1.GroupSendPayload{GroupID: groupID, Content: text}),
	}
	mustWriteWithTimeout(parent, c.conn, env, stepTimeout)
}

func mustReceiveGroup(parent context.Context, c *smokeClient, groupID int64, sender, text string, stepTimeout time.Duration) {
	env := c.mustReadUntilType(parent, v1.TypeGroupReceive, stepTimeout)

	var p v1.GroupReceivePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		fatalf("unmarshal message.group payload (%s): %v", c.name, err)
	}
	if p.GroupID != groupID {
		fatalf("group id mismatch (%s): got=%d want=%d", c.name, p.GroupID, groupID)
	}
	if p.Sender != sender || p.Content != text {
		fatalf("group mismatch (%s): got=%q/%q want=%q/%q", c.name, p.Sender, p.Content, sender, text)
	}
}

// mustReadUntilType waits for an envelope of the wanted type. Presence chatter
// (snapshots, joins, leaves, group user lists, social nudges) is interleaved
// on the same wire, so anything that is not an error is skipped.
func (c *smokeClient) mustReadUntilType(parent context.Context, wantType string, stepTimeout time.Duration) v1.Envelope {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			fatalf("timeout waiting for %q (%s): %v", wantType, c.name, ctx.Err())
		case err := <-c.errCh:
			if err == nil {
				fatalf("connection closed while waiting for %q (%s)", wantType, c.name)
			}
			fatalf("connection error while waiting for %q (%s): %v", wantType, c.name, err)
		case env, ok := <-c.inbox:
			if !ok {
				fatalf("connection closed while waiting for %q (%s)", wantType, c.name)
			}
			if env.Type == wantType {
				return env
			}
			if env.Type == v1.TypeError {
				var ep v1.ErrorPayload
				_ = json.Unmarshal(env.Payload, &ep)
				fatalf("server error (%s): code=%q msg=%q", c.name, ep.Code, ep.Message)
			}
		}
	}
}

func mustWriteWithTimeout(parent context.Context, conn *websocket.Conn, env v1.Envelope, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		fatalf("marshal envelope: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		fatalf("write failed: %v", err)
	}
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func closeWS(conn *websocket.Conn) {
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
