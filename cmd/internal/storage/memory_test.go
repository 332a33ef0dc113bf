package storage

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"parley/cmd/internal/chat"
	"parley/cmd/internal/social"
)

func mustUser(t *testing.T, s *MemoryStore, username string) chat.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), chat.User{Username: username}, "hash-"+username)
	if err != nil {
		t.Fatalf("CreateUser(%s): %v", username, err)
	}
	return u
}

func TestCreateUserRejectsDuplicateUsername(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	mustUser(t, s, "ann")

	_, err := s.CreateUser(context.Background(), chat.User{Username: "ann"}, "other")
	if !errors.Is(err, chat.ErrInvalidInput) {
		t.Fatalf("got %v, want ErrInvalidInput", err)
	}

	_, err = s.CreateUser(context.Background(), chat.User{Username: "  "}, "h")
	if !errors.Is(err, chat.ErrInvalidInput) {
		t.Fatalf("blank username: got %v, want ErrInvalidInput", err)
	}
}

func TestPasswordHashRoundTrip(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ann := mustUser(t, s, "ann")

	u, hash, err := s.PasswordHash(context.Background(), "ann")
	if err != nil {
		t.Fatalf("PasswordHash: %v", err)
	}
	if u.ID != ann.ID || hash != "hash-ann" {
		t.Fatalf("got user %d hash %q", u.ID, hash)
	}

	if _, _, err := s.PasswordHash(context.Background(), "ghost"); !errors.Is(err, chat.ErrNotFound) {
		t.Fatalf("unknown user: got %v, want ErrNotFound", err)
	}
}

// Recent must keep the global room clean: group and private traffic stay out,
// and the tail window keeps the newest messages in oldest-first order.
func TestRecentFiltersRooms(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ann := mustUser(t, s, "ann")
	ben := mustUser(t, s, "ben")
	group, err := s.CreateGroup(context.Background(), chat.Group{Name: "gophers", OwnerID: ann.ID}, []int64{ann.ID})
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}

	append1 := func(m chat.Message) {
		t.Helper()
		if _, err := s.Append(context.Background(), m); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	append1(chat.Message{SenderID: ann.ID, Content: "global one"})
	append1(chat.Message{SenderID: ann.ID, Content: "in group", GroupID: &group.ID})
	append1(chat.Message{SenderID: ann.ID, Content: "psst", RecipientID: &ben.ID})
	append1(chat.Message{SenderID: ben.ID, Content: "global two"})

	global, err := s.Recent(context.Background(), nil, 50)
	if err != nil {
		t.Fatalf("Recent(global): %v", err)
	}
	contents := make([]string, 0, len(global))
	for _, m := range global {
		contents = append(contents, m.Content)
	}
	if !reflect.DeepEqual(contents, []string{"global one", "global two"}) {
		t.Fatalf("global room = %v", contents)
	}

	grouped, err := s.Recent(context.Background(), &group.ID, 50)
	if err != nil {
		t.Fatalf("Recent(group): %v", err)
	}
	if len(grouped) != 1 || grouped[0].Content != "in group" {
		t.Fatalf("group room = %+v", grouped)
	}
}

func TestRecentKeepsNewestWithinLimit(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ann := mustUser(t, s, "ann")
	for i := 0; i < 10; i++ {
		if _, err := s.Append(context.Background(), chat.Message{SenderID: ann.ID, Content: fmt.Sprintf("m%d", i)}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	msgs, err := s.Recent(context.Background(), nil, 3)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(msgs) != 3 || msgs[0].Content != "m7" || msgs[2].Content != "m9" {
		t.Fatalf("window = %+v", msgs)
	}
}

// Append accepts explicit timestamps, so the backing slice is not necessarily
// time-ordered. The window must still be the newest by sent_at, not the last
// appended.
func TestRecentOrdersBySentAt(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ann := mustUser(t, s, "ann")

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for _, m := range []chat.Message{
		{SenderID: ann.ID, Content: "second", SentAt: base.Add(2 * time.Minute)},
		{SenderID: ann.ID, Content: "oldest", SentAt: base},
		{SenderID: ann.ID, Content: "newest", SentAt: base.Add(5 * time.Minute)},
		{SenderID: ann.ID, Content: "first", SentAt: base.Add(time.Minute)},
	} {
		if _, err := s.Append(context.Background(), m); err != nil {
			t.Fatalf("Append(%s): %v", m.Content, err)
		}
	}

	msgs, err := s.Recent(context.Background(), nil, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	contents := make([]string, 0, len(msgs))
	for _, m := range msgs {
		contents = append(contents, m.Content)
	}
	if !reflect.DeepEqual(contents, []string{"second", "newest"}) {
		t.Fatalf("window = %v, want [second newest]", contents)
	}
}

func TestMembershipLifecycle(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ann := mustUser(t, s, "ann")
	ben := mustUser(t, s, "ben")
	group, err := s.CreateGroup(context.Background(), chat.Group{Name: "gophers", OwnerID: ann.ID, JoinCode: "ABC123"}, []int64{ann.ID})
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}

	if err := s.AddMember(context.Background(), group.ID, ben.ID); err != nil {
		t.Fatalf("AddMember: %v", err)
	}
	members, err := s.MembersOf(context.Background(), group.ID)
	if err != nil {
		t.Fatalf("MembersOf: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("members = %+v", members)
	}

	if err := s.RemoveMember(context.Background(), group.ID, ben.ID); err != nil {
		t.Fatalf("RemoveMember: %v", err)
	}
	ok, err := s.IsMember(context.Background(), group.ID, ben.ID)
	if err != nil || ok {
		t.Fatalf("IsMember after removal = %v, %v", ok, err)
	}

	if err := s.AddMember(context.Background(), 404, ben.ID); !errors.Is(err, chat.ErrNotFound) {
		t.Fatalf("AddMember unknown group: got %v, want ErrNotFound", err)
	}

	byCode, err := s.GroupByJoinCode(context.Background(), "ABC123")
	if err != nil || byCode.ID != group.ID {
		t.Fatalf("GroupByJoinCode = %+v, %v", byCode, err)
	}
}

func TestCreateRequestDuplicateEitherDirection(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ann := mustUser(t, s, "ann")
	ben := mustUser(t, s, "ben")

	if _, err := s.CreateRequest(context.Background(), ann.ID, ben.ID); err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	if _, err := s.CreateRequest(context.Background(), ann.ID, ben.ID); !errors.Is(err, social.ErrDuplicate) {
		t.Fatalf("same direction: got %v, want ErrDuplicate", err)
	}
	if _, err := s.CreateRequest(context.Background(), ben.ID, ann.ID); !errors.Is(err, social.ErrDuplicate) {
		t.Fatalf("reverse direction: got %v, want ErrDuplicate", err)
	}
}

func TestAcceptRequestMakesFriendsBothWays(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ann := mustUser(t, s, "ann")
	ben := mustUser(t, s, "ben")

	req, err := s.CreateRequest(context.Background(), ann.ID, ben.ID)
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}

	// Pending requests are not friendships yet.
	ids, _ := s.FriendIDsOf(context.Background(), ann.ID)
	if len(ids) != 0 {
		t.Fatalf("pending counted as friends: %v", ids)
	}

	if err := s.AcceptRequest(context.Background(), req.ID); err != nil {
		t.Fatalf("AcceptRequest: %v", err)
	}
	for user, want := range map[int64]int64{ann.ID: ben.ID, ben.ID: ann.ID} {
		ids, err := s.FriendIDsOf(context.Background(), user)
		if err != nil {
			t.Fatalf("FriendIDsOf(%d): %v", user, err)
		}
		if !reflect.DeepEqual(ids, []int64{want}) {
			t.Fatalf("FriendIDsOf(%d) = %v, want [%d]", user, ids, want)
		}
	}

	removed, err := s.DeleteFriendship(context.Background(), ben.ID, ann.ID)
	if err != nil || !removed {
		t.Fatalf("DeleteFriendship = %v, %v", removed, err)
	}
	removed, err = s.DeleteFriendship(context.Background(), ben.ID, ann.ID)
	if err != nil || removed {
		t.Fatalf("second DeleteFriendship = %v, %v", removed, err)
	}
}

func TestInvitationsScopedToInvitee(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ann := mustUser(t, s, "ann")
	ben := mustUser(t, s, "ben")
	eve := mustUser(t, s, "eve")
	group, err := s.CreateGroup(context.Background(), chat.Group{Name: "gophers", OwnerID: ann.ID}, []int64{ann.ID})
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}

	if _, err := s.CreateInvitation(context.Background(), group.ID, ann.ID, ben.ID); err != nil {
		t.Fatalf("CreateInvitation: %v", err)
	}
	if _, err := s.CreateInvitation(context.Background(), group.ID, ann.ID, ben.ID); !errors.Is(err, social.ErrDuplicate) {
		t.Fatalf("repeat invitation: got %v, want ErrDuplicate", err)
	}

	invs, err := s.InvitationsFor(context.Background(), ben.ID)
	if err != nil || len(invs) != 1 {
		t.Fatalf("InvitationsFor(ben) = %+v, %v", invs, err)
	}
	other, err := s.InvitationsFor(context.Background(), eve.ID)
	if err != nil || len(other) != 0 {
		t.Fatalf("InvitationsFor(eve) = %+v, %v", other, err)
	}

	if err := s.DeleteInvitation(context.Background(), invs[0].ID); err != nil {
		t.Fatalf("DeleteInvitation: %v", err)
	}
	if _, err := s.InvitationByID(context.Background(), invs[0].ID); !errors.Is(err, social.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreHonorsContextCancellation(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.UserByID(ctx, 1); !errors.Is(err, context.Canceled) {
		t.Fatalf("UserByID: got %v, want context.Canceled", err)
	}
	if _, err := s.Recent(ctx, nil, 10); !errors.Is(err, context.Canceled) {
		t.Fatalf("Recent: got %v, want context.Canceled", err)
	}
	if _, err := s.CreateRequest(ctx, 1, 2); !errors.Is(err, context.Canceled) {
		t.Fatalf("CreateRequest: got %v, want context.Canceled", err)
	}
}
