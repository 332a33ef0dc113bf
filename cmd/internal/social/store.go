package social

import (
	"context"
	"time"
)

// Friend request status. Rejection deletes the row instead of a terminal status.
const (
	StatusPending  = 0
	StatusAccepted = 1
)

// FriendRequest is the pending-or-accepted relationship between two users.
type FriendRequest struct {
	ID          int64
	RequesterID int64
	ReceiverID  int64
	Status      int
	CreatedAt   time.Time
}

// GroupInvitation is a pending invitation of a user into a group.
type GroupInvitation struct {
	ID        int64
	GroupID   int64
	InviterID int64
	InviteeID int64
	CreatedAt time.Time
}

// FriendStore is the friend-relation boundary of the persistence collaborator.
//
// CreateRequest must reject with ErrDuplicate when any relationship (pending
// or accepted, either direction) already exists between the pair.
type FriendStore interface {
	CreateRequest(ctx context.Context, requesterID, receiverID int64) (FriendRequest, error)
	RequestByID(ctx context.Context, id int64) (FriendRequest, error)
	PendingFor(ctx context.Context, receiverID int64) ([]FriendRequest, error)
	AcceptRequest(ctx context.Context, id int64) error
	DeleteRequest(ctx context.Context, id int64) error
	FriendIDsOf(ctx context.Context, userID int64) ([]int64, error)
	DeleteFriendship(ctx context.Context, userID, friendID int64) (bool, error)
}

// InviteStore is the group-invitation boundary of the persistence collaborator.
//
// CreateInvitation must reject with ErrDuplicate when a pending invitation for
// the same (group, invitee) pair already exists.
type InviteStore interface {
	CreateInvitation(ctx context.Context, groupID, inviterID, inviteeID int64) (GroupInvitation, error)
	InvitationByID(ctx context.Context, id int64) (GroupInvitation, error)
	InvitationsFor(ctx context.Context, inviteeID int64) ([]GroupInvitation, error)
	DeleteInvitation(ctx context.Context, id int64) error
}
