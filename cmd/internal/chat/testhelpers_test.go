package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	v1 "parley/contracts/chat/v1"
)

func mustUnmarshal(t *testing.T, raw json.RawMessage, dst any) {
	t.Helper()
	if err := json.Unmarshal(raw, dst); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeStore is an in-memory double for the three chat store boundaries.
type fakeStore struct {
	mu       sync.Mutex
	users    map[int64]User
	groups   map[int64]Group
	members  map[int64]map[int64]struct{}
	messages []Message
	nextID   int64

	appendErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:   make(map[int64]User),
		groups:  make(map[int64]Group),
		members: make(map[int64]map[int64]struct{}),
	}
}

func (f *fakeStore) addUser(id int64, username string) User {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := User{ID: id, Username: username}
	f.users[id] = u
	return u
}

func (f *fakeStore) addGroup(id, ownerID int64, name string, memberIDs ...int64) Group {
	f.mu.Lock()
	defer f.mu.Unlock()
	g := Group{ID: id, Name: name, OwnerID: ownerID}
	f.groups[id] = g
	set := make(map[int64]struct{}, len(memberIDs))
	for _, m := range memberIDs {
		set[m] = struct{}{}
	}
	f.members[id] = set
	return g
}

func (f *fakeStore) UserByID(_ context.Context, id int64) (User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return User{}, fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	return u, nil
}

func (f *fakeStore) UserByUsername(_ context.Context, username string) (User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Username == username {
			return u, nil
		}
	}
	return User{}, fmt.Errorf("user %q: %w", username, ErrNotFound)
}

func (f *fakeStore) CreateUser(_ context.Context, u User, _ string) (User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	u.ID = f.nextID
	f.users[u.ID] = u
	return u, nil
}

func (f *fakeStore) PasswordHash(_ context.Context, username string) (User, string, error) {
	u, err := f.UserByUsername(context.Background(), username)
	return u, "", err
}

func (f *fakeStore) GroupByID(_ context.Context, id int64) (Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.groups[id]
	if !ok {
		return Group{}, fmt.Errorf("group %d: %w", id, ErrNotFound)
	}
	return g, nil
}

func (f *fakeStore) GroupByJoinCode(_ context.Context, code string) (Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, g := range f.groups {
		if g.JoinCode == code {
			return g, nil
		}
	}
	return Group{}, fmt.Errorf("join code %q: %w", code, ErrNotFound)
}

func (f *fakeStore) CreateGroup(_ context.Context, g Group, memberIDs []int64) (Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	g.ID = f.nextID
	f.groups[g.ID] = g
	set := make(map[int64]struct{}, len(memberIDs))
	for _, m := range memberIDs {
		set[m] = struct{}{}
	}
	f.members[g.ID] = set
	return g, nil
}

func (f *fakeStore) GroupsOf(_ context.Context, userID int64) ([]Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Group, 0)
	for gid, set := range f.members {
		if _, ok := set[userID]; ok {
			out = append(out, f.groups[gid])
		}
	}
	return out, nil
}

func (f *fakeStore) GroupsAll(_ context.Context) ([]Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Group, 0, len(f.groups))
	for _, g := range f.groups {
		out = append(out, g)
	}
	return out, nil
}

func (f *fakeStore) MembersOf(_ context.Context, groupID int64) ([]User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	set, ok := f.members[groupID]
	if !ok {
		return nil, fmt.Errorf("group %d: %w", groupID, ErrNotFound)
	}
	out := make([]User, 0, len(set))
	for id := range set {
		out = append(out, f.users[id])
	}
	return out, nil
}

func (f *fakeStore) IsMember(_ context.Context, groupID, userID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.members[groupID][userID]
	return ok, nil
}

func (f *fakeStore) AddMember(_ context.Context, groupID, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.members[groupID] == nil {
		f.members[groupID] = make(map[int64]struct{})
	}
	f.members[groupID][userID] = struct{}{}
	return nil
}

func (f *fakeStore) RemoveMember(_ context.Context, groupID, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.members[groupID], userID)
	return nil
}

func (f *fakeStore) Append(_ context.Context, m Message) (Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return Message{}, f.appendErr
	}
	f.nextID++
	m.ID = f.nextID
	f.messages = append(f.messages, m)
	return m, nil
}

func (f *fakeStore) Recent(_ context.Context, groupID *int64, limit int) ([]Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	matched := make([]Message, 0)
	for _, m := range f.messages {
		switch {
		case groupID == nil:
			if m.GroupID == nil && m.RecipientID == nil {
				matched = append(matched, m)
			}
		case m.GroupID != nil && *m.GroupID == *groupID:
			matched = append(matched, m)
		}
	}
	if len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	return matched, nil
}

func (f *fakeStore) messageCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

// drain empties a client's send queue and returns everything it held.
func drain(c *Client) []v1.Envelope {
	out := make([]v1.Envelope, 0)
	for {
		select {
		case env := <-c.Send:
			out = append(out, env)
		default:
			return out
		}
	}
}

// envTypes maps drained envelopes to their type strings, in order.
func envTypes(envs []v1.Envelope) []string {
	out := make([]string, 0, len(envs))
	for _, e := range envs {
		out = append(out, e.Type)
	}
	return out
}
