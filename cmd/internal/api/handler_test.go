package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"parley/cmd/identity"
	"parley/cmd/internal/api"
	"parley/cmd/internal/chat"
	"parley/cmd/internal/social"
	"parley/cmd/internal/storage"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := storage.NewMemoryStore()

	tokens, err := identity.NewManager([]byte("0123456789abcdef0123456789abcdef"), time.Hour)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	registry := chat.NewRegistry()
	hub := chat.NewHub(log)
	router := chat.NewRouter(log, registry, hub)
	view := chat.NewMembershipView(store, registry)
	lifecycle := chat.NewLifecycle(log, registry, hub, router, store, view)
	chatSvc := chat.NewService(log, store, store, store, registry, router)
	socialSvc := social.NewService(log, store, store, store, store, router, lifecycle)

	mux := http.NewServeMux()
	api.NewHandler(log, store, tokens, chatSvc, socialSvc, registry).Register(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url, token string, body any) (*http.Response, []byte) {
	t.Helper()

	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer func() { _ = res.Body.Close() }()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, raw
}

func getJSON(t *testing.T, url, token string) (*http.Response, []byte) {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer func() { _ = res.Body.Close() }()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, raw
}

func register(t *testing.T, srv *httptest.Server, username string) string {
	t.Helper()

	res, raw := postJSON(t, srv.URL+"/api/auth/register", "", map[string]any{
		"username": username,
		"password": "correct-horse-1",
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("register %s: status=%d body=%s", username, res.StatusCode, raw)
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decode register response: %v", err)
	}
	if out.Token == "" {
		t.Fatal("register must return a token")
	}
	return out.Token
}

func TestRegisterValidation(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	register(t, srv, "ann")

	// Duplicate username.
	res, _ := postJSON(t, srv.URL+"/api/auth/register", "", map[string]any{
		"username": "ann",
		"password": "correct-horse-1",
	})
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate register: status=%d, want 409", res.StatusCode)
	}

	// Bad username and short password.
	res, _ = postJSON(t, srv.URL+"/api/auth/register", "", map[string]any{
		"username": "a!",
		"password": "correct-horse-1",
	})
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad username: status=%d, want 400", res.StatusCode)
	}
	res, _ = postJSON(t, srv.URL+"/api/auth/register", "", map[string]any{
		"username": "ben",
		"password": "short",
	})
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("short password: status=%d, want 400", res.StatusCode)
	}
}

func TestLogin(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)
	register(t, srv, "ann")

	res, raw := postJSON(t, srv.URL+"/api/auth/login", "", map[string]any{
		"username": "ann",
		"password": "correct-horse-1",
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("login: status=%d body=%s", res.StatusCode, raw)
	}

	// Wrong password and unknown username both come back 401, same shape.
	res, _ = postJSON(t, srv.URL+"/api/auth/login", "", map[string]any{
		"username": "ann",
		"password": "wrong-horse-1",
	})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong password: status=%d, want 401", res.StatusCode)
	}
	res, _ = postJSON(t, srv.URL+"/api/auth/login", "", map[string]any{
		"username": "ghost",
		"password": "correct-horse-1",
	})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unknown user: status=%d, want 401", res.StatusCode)
	}
}

func TestAuthMiddleware(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	res, _ := getJSON(t, srv.URL+"/api/history", "")
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("missing token: status=%d, want 401", res.StatusCode)
	}

	res, _ = getJSON(t, srv.URL+"/api/history", "not-a-jwt")
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("garbage token: status=%d, want 401", res.StatusCode)
	}

	token := register(t, srv, "ann")
	res, _ = getJSON(t, srv.URL+"/api/history", token)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("valid token: status=%d, want 200", res.StatusCode)
	}
}

func TestGroupEndpoints(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)
	annTok := register(t, srv, "ann")
	benTok := register(t, srv, "ben")

	res, raw := postJSON(t, srv.URL+"/api/groups", annTok, map[string]any{"name": "gophers"})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create group: status=%d body=%s", res.StatusCode, raw)
	}
	var group struct {
		ID       int64  `json:"id"`
		JoinCode string `json:"join_code"`
	}
	if err := json.Unmarshal(raw, &group); err != nil {
		t.Fatalf("decode group: %v", err)
	}
	if group.JoinCode == "" {
		t.Fatal("creator must see the join code")
	}

	res, raw = postJSON(t, srv.URL+"/api/groups/join", benTok, map[string]any{"code": group.JoinCode})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("join by code: status=%d body=%s", res.StatusCode, raw)
	}

	// Public listing withholds join codes.
	res, raw = getJSON(t, srv.URL+"/api/groups/all", benTok)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("groups/all: status=%d", res.StatusCode)
	}
	var listing struct {
		Groups []struct {
			ID          int64  `json:"id"`
			JoinCode    string `json:"join_code"`
			MemberCount int    `json:"member_count"`
		} `json:"groups"`
	}
	if err := json.Unmarshal(raw, &listing); err != nil {
		t.Fatalf("decode listing: %v", err)
	}
	if len(listing.Groups) != 1 || listing.Groups[0].MemberCount != 2 {
		t.Fatalf("listing = %s", raw)
	}
	if listing.Groups[0].JoinCode != "" {
		t.Fatal("public listing must withhold join codes")
	}

	// Only the owner may kick.
	res, _ = postJSON(t, srv.URL+"/api/groups/kick", benTok, map[string]any{
		"group_id": group.ID,
		"user_id":  1,
	})
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("non-owner kick: status=%d, want 403", res.StatusCode)
	}
}

func TestGroupHistoryRequiresMembership(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)
	annTok := register(t, srv, "ann")
	benTok := register(t, srv, "ben")

	res, raw := postJSON(t, srv.URL+"/api/groups", annTok, map[string]any{"name": "gophers"})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create group: status=%d body=%s", res.StatusCode, raw)
	}
	var group struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(raw, &group); err != nil {
		t.Fatalf("decode group: %v", err)
	}

	historyURL := fmt.Sprintf("%s/api/history?group_id=%d", srv.URL, group.ID)
	res, _ = getJSON(t, historyURL, benTok)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("non-member group history: status=%d, want 403", res.StatusCode)
	}
	res, _ = getJSON(t, historyURL, annTok)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("member group history: status=%d, want 200", res.StatusCode)
	}
}
