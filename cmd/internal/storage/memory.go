// Package storage provides the persistence collaborator implementations:
// a Postgres store for production and an in-memory store for dev and tests.
package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"parley/cmd/internal/chat"
	"parley/cmd/internal/social"
)

// MemoryStore is the in-memory fallback when DB is not configured. It
// implements every store boundary the chat core and social service consume.
type MemoryStore struct {
	mu sync.Mutex

	nextUserID    int64
	nextGroupID   int64
	nextMessageID int64
	nextFriendID  int64
	nextInviteID  int64

	users     map[int64]chat.User
	passwords map[int64]string
	groups    map[int64]chat.Group
	members   map[int64]map[int64]struct{} // group id -> user ids
	messages  []chat.Message
	friends   map[int64]social.FriendRequest
	invites   map[int64]social.GroupInvitation
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     make(map[int64]chat.User),
		passwords: make(map[int64]string),
		groups:    make(map[int64]chat.Group),
		members:   make(map[int64]map[int64]struct{}),
		friends:   make(map[int64]social.FriendRequest),
		invites:   make(map[int64]social.GroupInvitation),
	}
}

// ---- chat.UserStore ----

func (s *MemoryStore) UserByID(ctx context.Context, id int64) (chat.User, error) {
	if err := ctx.Err(); err != nil {
		return chat.User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return chat.User{}, fmt.Errorf("user %d: %w", id, chat.ErrNotFound)
	}
	return u, nil
}

func (s *MemoryStore) UserByUsername(ctx context.Context, username string) (chat.User, error) {
	if err := ctx.Err(); err != nil {
		return chat.User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Username == username {
			return u, nil
		}
	}
	return chat.User{}, fmt.Errorf("user %q: %w", username, chat.ErrNotFound)
}

func (s *MemoryStore) CreateUser(ctx context.Context, u chat.User, passwordHash string) (chat.User, error) {
	if err := ctx.Err(); err != nil {
		return chat.User{}, err
	}
	if strings.TrimSpace(u.Username) == "" {
		return chat.User{}, chat.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.Username == u.Username {
			return chat.User{}, fmt.Errorf("username %q taken: %w", u.Username, chat.ErrInvalidInput)
		}
	}

	s.nextUserID++
	u.ID = s.nextUserID
	s.users[u.ID] = u
	s.passwords[u.ID] = passwordHash
	return u, nil
}

func (s *MemoryStore) PasswordHash(ctx context.Context, username string) (chat.User, string, error) {
	u, err := s.UserByUsername(ctx, username)
	if err != nil {
		return chat.User{}, "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return u, s.passwords[u.ID], nil
}

// ---- chat.GroupStore ----

func (s *MemoryStore) GroupByID(ctx context.Context, id int64) (chat.Group, error) {
	if err := ctx.Err(); err != nil {
		return chat.Group{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[id]
	if !ok {
		return chat.Group{}, fmt.Errorf("group %d: %w", id, chat.ErrNotFound)
	}
	return g, nil
}

func (s *MemoryStore) GroupByJoinCode(ctx context.Context, code string) (chat.Group, error) {
	if err := ctx.Err(); err != nil {
		return chat.Group{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, g := range s.groups {
		if g.JoinCode != "" && g.JoinCode == code {
			return g, nil
		}
	}
	return chat.Group{}, fmt.Errorf("join code %q: %w", code, chat.ErrNotFound)
}

func (s *MemoryStore) CreateGroup(ctx context.Context, g chat.Group, memberIDs []int64) (chat.Group, error) {
	if err := ctx.Err(); err != nil {
		return chat.Group{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextGroupID++
	g.ID = s.nextGroupID
	s.groups[g.ID] = g

	set := make(map[int64]struct{}, len(memberIDs))
	for _, id := range memberIDs {
		set[id] = struct{}{}
	}
	s.members[g.ID] = set
	return g, nil
}

func (s *MemoryStore) GroupsOf(ctx context.Context, userID int64) ([]chat.Group, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]chat.Group, 0)
	for gid, set := range s.members {
		if _, ok := set[userID]; ok {
			out = append(out, s.groups[gid])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) GroupsAll(ctx context.Context) ([]chat.Group, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]chat.Group, 0, len(s.groups))
	for _, g := range s.groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) MembersOf(ctx context.Context, groupID int64) ([]chat.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.members[groupID]
	if !ok {
		return nil, fmt.Errorf("group %d: %w", groupID, chat.ErrNotFound)
	}

	out := make([]chat.User, 0, len(set))
	for id := range set {
		if u, ok := s.users[id]; ok {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) IsMember(ctx context.Context, groupID, userID int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.members[groupID]
	if !ok {
		return false, nil
	}
	_, ok = set[userID]
	return ok, nil
}

func (s *MemoryStore) AddMember(ctx context.Context, groupID, userID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.members[groupID]
	if !ok {
		return fmt.Errorf("group %d: %w", groupID, chat.ErrNotFound)
	}
	set[userID] = struct{}{}
	return nil
}

func (s *MemoryStore) RemoveMember(ctx context.Context, groupID, userID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.members[groupID]
	if !ok {
		return fmt.Errorf("group %d: %w", groupID, chat.ErrNotFound)
	}
	delete(set, userID)
	return nil
}

// ---- chat.MessageStore ----

func (s *MemoryStore) Append(ctx context.Context, m chat.Message) (chat.Message, error) {
	if err := ctx.Err(); err != nil {
		return chat.Message{}, err
	}
	if m.SenderID == 0 || m.Content == "" {
		return chat.Message{}, chat.ErrInvalidInput
	}
	if m.SentAt.IsZero() {
		m.SentAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextMessageID++
	m.ID = s.nextMessageID
	s.messages = append(s.messages, m)
	return m, nil
}

// Recent takes the newest limit messages for the room (descending by time),
// then returns them oldest-first. Private messages never show up in the
// global room.
func (s *MemoryStore) Recent(ctx context.Context, groupID *int64, limit int) ([]chat.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	matched := make([]chat.Message, 0, limit)
	for _, m := range s.messages {
		if !sameRoom(m, groupID) {
			continue
		}
		matched = append(matched, m)
	}

	// Append accepts caller-supplied timestamps, so the log is not guaranteed
	// time-ordered; "newest" is decided by sent_at, with id as tiebreaker.
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].SentAt.Equal(matched[j].SentAt) {
			return matched[i].SentAt.Before(matched[j].SentAt)
		}
		return matched[i].ID < matched[j].ID
	})

	if len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	out := make([]chat.Message, len(matched))
	copy(out, matched)
	return out, nil
}

func sameRoom(m chat.Message, groupID *int64) bool {
	if groupID == nil {
		return m.GroupID == nil && m.RecipientID == nil
	}
	return m.GroupID != nil && *m.GroupID == *groupID
}

// ---- social.FriendStore ----

func (s *MemoryStore) CreateRequest(ctx context.Context, requesterID, receiverID int64) (social.FriendRequest, error) {
	if err := ctx.Err(); err != nil {
		return social.FriendRequest{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, f := range s.friends {
		if pairMatch(f, requesterID, receiverID) {
			return social.FriendRequest{}, fmt.Errorf("request between %d and %d exists: %w", requesterID, receiverID, social.ErrDuplicate)
		}
	}

	s.nextFriendID++
	req := social.FriendRequest{
		ID:          s.nextFriendID,
		RequesterID: requesterID,
		ReceiverID:  receiverID,
		Status:      social.StatusPending,
		CreatedAt:   time.Now().UTC(),
	}
	s.friends[req.ID] = req
	return req, nil
}

func (s *MemoryStore) RequestByID(ctx context.Context, id int64) (social.FriendRequest, error) {
	if err := ctx.Err(); err != nil {
		return social.FriendRequest{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.friends[id]
	if !ok {
		return social.FriendRequest{}, fmt.Errorf("friend request %d: %w", id, social.ErrNotFound)
	}
	return req, nil
}

func (s *MemoryStore) PendingFor(ctx context.Context, receiverID int64) ([]social.FriendRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]social.FriendRequest, 0)
	for _, f := range s.friends {
		if f.ReceiverID == receiverID && f.Status == social.StatusPending {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) AcceptRequest(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.friends[id]
	if !ok {
		return fmt.Errorf("friend request %d: %w", id, social.ErrNotFound)
	}
	req.Status = social.StatusAccepted
	s.friends[id] = req
	return nil
}

func (s *MemoryStore) DeleteRequest(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.friends, id)
	return nil
}

func (s *MemoryStore) FriendIDsOf(ctx context.Context, userID int64) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]int64, 0)
	for _, f := range s.friends {
		if f.Status != social.StatusAccepted {
			continue
		}
		switch userID {
		case f.RequesterID:
			out = append(out, f.ReceiverID)
		case f.ReceiverID:
			out = append(out, f.RequesterID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (s *MemoryStore) DeleteFriendship(ctx context.Context, userID, friendID int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, f := range s.friends {
		if pairMatch(f, userID, friendID) {
			delete(s.friends, id)
			return true, nil
		}
	}
	return false, nil
}

func pairMatch(f social.FriendRequest, a, b int64) bool {
	return (f.RequesterID == a && f.ReceiverID == b) || (f.RequesterID == b && f.ReceiverID == a)
}

// ---- social.InviteStore ----

func (s *MemoryStore) CreateInvitation(ctx context.Context, groupID, inviterID, inviteeID int64) (social.GroupInvitation, error) {
	if err := ctx.Err(); err != nil {
		return social.GroupInvitation{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, inv := range s.invites {
		if inv.GroupID == groupID && inv.InviteeID == inviteeID {
			return social.GroupInvitation{}, fmt.Errorf("invitation for user %d to group %d exists: %w", inviteeID, groupID, social.ErrDuplicate)
		}
	}

	s.nextInviteID++
	inv := social.GroupInvitation{
		ID:        s.nextInviteID,
		GroupID:   groupID,
		InviterID: inviterID,
		InviteeID: inviteeID,
		CreatedAt: time.Now().UTC(),
	}
	s.invites[inv.ID] = inv
	return inv, nil
}

func (s *MemoryStore) InvitationByID(ctx context.Context, id int64) (social.GroupInvitation, error) {
	if err := ctx.Err(); err != nil {
		return social.GroupInvitation{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invites[id]
	if !ok {
		return social.GroupInvitation{}, fmt.Errorf("invitation %d: %w", id, social.ErrNotFound)
	}
	return inv, nil
}

func (s *MemoryStore) InvitationsFor(ctx context.Context, inviteeID int64) ([]social.GroupInvitation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]social.GroupInvitation, 0)
	for _, inv := range s.invites {
		if inv.InviteeID == inviteeID {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) DeleteInvitation(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.invites, id)
	return nil
}
