package chat

import (
	"context"
	"time"
)

// User is the durable chat participant. Accounts are created at registration
// and never deleted from this core's point of view.
type User struct {
	ID       int64
	Username string
	FullName string
	Color    string
}

// Group is a durable conversation container: a named group, or a private 1:1
// conversation flagged Private. Membership lives in the store, not here.
type Group struct {
	ID       int64
	Name     string
	OwnerID  int64
	Private  bool
	JoinCode string
}

// Message is an immutable chat record. GroupID is nil for the global room;
// RecipientID is set for private messages only.
type Message struct {
	ID          int64
	SenderID    int64
	SenderName  string
	Content     string
	Kind        string
	GroupID     *int64
	RecipientID *int64
	SentAt      time.Time
}

// UserStore is the user lookup boundary of the persistence collaborator.
type UserStore interface {
	UserByID(ctx context.Context, id int64) (User, error)
	UserByUsername(ctx context.Context, username string) (User, error)
	CreateUser(ctx context.Context, u User, passwordHash string) (User, error)
	PasswordHash(ctx context.Context, username string) (User, string, error)
}

// GroupStore is the group/membership boundary of the persistence collaborator.
// Membership is read fresh on every call; this core never caches it.
type GroupStore interface {
	GroupByID(ctx context.Context, id int64) (Group, error)
	GroupByJoinCode(ctx context.Context, code string) (Group, error)
	CreateGroup(ctx context.Context, g Group, memberIDs []int64) (Group, error)
	GroupsOf(ctx context.Context, userID int64) ([]Group, error)
	GroupsAll(ctx context.Context) ([]Group, error)
	MembersOf(ctx context.Context, groupID int64) ([]User, error)
	IsMember(ctx context.Context, groupID, userID int64) (bool, error)
	AddMember(ctx context.Context, groupID, userID int64) error
	RemoveMember(ctx context.Context, groupID, userID int64) error
}

// MessageStore persists and queries messages.
//
// Requirements:
//   - Append assigns the id and stores the record as-is.
//   - Recent takes the newest limit messages for the room (global when groupID
//     is nil, excluding private messages), then returns them oldest-first.
type MessageStore interface {
	Append(ctx context.Context, m Message) (Message, error)
	Recent(ctx context.Context, groupID *int64, limit int) ([]Message, error)
}
