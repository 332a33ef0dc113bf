package social

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"parley/cmd/internal/chat"
	v1 "parley/contracts/chat/v1"

	"github.com/samber/lo"
)

const joinCodeLen = 6

// Service manages the social graph: friend requests, group membership changes,
// and group invitations. Mutations go to the persistence collaborator; the
// realtime side effects (notices, refreshed online-member lists) go through
// the chat router and lifecycle so connected clients see changes immediately.
type Service struct {
	log       *slog.Logger
	friends   FriendStore
	invites   InviteStore
	users     chat.UserStore
	groups    chat.GroupStore
	router    *chat.Router
	lifecycle *chat.Lifecycle
}

// NewService constructs the social service.
func NewService(
	log *slog.Logger,
	friends FriendStore,
	invites InviteStore,
	users chat.UserStore,
	groups chat.GroupStore,
	router *chat.Router,
	lifecycle *chat.Lifecycle,
) *Service {
	return &Service{
		log:       log,
		friends:   friends,
		invites:   invites,
		users:     users,
		groups:    groups,
		router:    router,
		lifecycle: lifecycle,
	}
}

// ---- friends ----

// Friends returns the accepted friends of a user.
func (s *Service) Friends(ctx context.Context, userID int64) ([]chat.User, error) {
	ids, err := s.friends.FriendIDsOf(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make([]chat.User, 0, len(ids))
	for _, id := range ids {
		u, err := s.users.UserByID(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

// RequestFriend creates a pending friend request and nudges the receiver in
// realtime. Self-requests and duplicates (in either direction) are rejected.
func (s *Service) RequestFriend(ctx context.Context, requesterID, targetID int64) error {
	if requesterID == targetID {
		return fmt.Errorf("%w: cannot befriend yourself", ErrInvalidInput)
	}
	if _, err := s.users.UserByID(ctx, targetID); err != nil {
		return err
	}

	if _, err := s.friends.CreateRequest(ctx, requesterID, targetID); err != nil {
		return err
	}

	s.notify(v1.TypeFriendRequest, targetID)
	s.log.Info("social.friend.request", "requester_id", requesterID, "target_id", targetID)
	return nil
}

// PendingRequest is a pending friend request joined with requester info.
type PendingRequest struct {
	RequestID     int64  `json:"request_id"`
	RequesterID   int64  `json:"requester_id"`
	RequesterName string `json:"requester_name"`
	FullName      string `json:"full_name"`
	Color         string `json:"color"`
}

// PendingRequests lists the pending requests addressed to a user.
func (s *Service) PendingRequests(ctx context.Context, userID int64) ([]PendingRequest, error) {
	reqs, err := s.friends.PendingFor(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make([]PendingRequest, 0, len(reqs))
	for _, r := range reqs {
		u, err := s.users.UserByID(ctx, r.RequesterID)
		if err != nil {
			return nil, err
		}
		out = append(out, PendingRequest{
			RequestID:     r.ID,
			RequesterID:   u.ID,
			RequesterName: u.Username,
			FullName:      u.FullName,
			Color:         u.Color,
		})
	}
	return out, nil
}

// RespondFriend accepts or rejects a pending request. Only the receiver may
// respond. Rejection deletes the request; acceptance promotes it and tells
// the requester to refresh their friend list.
func (s *Service) RespondFriend(ctx context.Context, userID, requestID int64, accept bool) error {
	req, err := s.friends.RequestByID(ctx, requestID)
	if err != nil {
		return err
	}
	if req.ReceiverID != userID {
		return ErrForbidden
	}

	if !accept {
		return s.friends.DeleteRequest(ctx, requestID)
	}

	if err := s.friends.AcceptRequest(ctx, requestID); err != nil {
		return err
	}
	s.notify(v1.TypeFriendList, req.RequesterID)
	return nil
}

// RemoveFriend deletes the relationship between two users and tells the other
// side to refresh.
func (s *Service) RemoveFriend(ctx context.Context, userID, friendID int64) error {
	removed, err := s.friends.DeleteFriendship(ctx, userID, friendID)
	if err != nil {
		return err
	}
	if removed {
		s.notify(v1.TypeFriendList, friendID)
	}
	return nil
}

// ---- groups ----

// CreateGroup creates a named group owned by the caller, with the caller as
// first member and a short join code. An optional invitee gets a standard
// group invitation.
func (s *Service) CreateGroup(ctx context.Context, ownerID int64, name string, invitedUserID int64) (chat.Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return chat.Group{}, fmt.Errorf("%w: empty group name", ErrInvalidInput)
	}

	code, err := newJoinCode()
	if err != nil {
		return chat.Group{}, err
	}

	group, err := s.groups.CreateGroup(ctx, chat.Group{
		Name:     name,
		OwnerID:  ownerID,
		JoinCode: code,
	}, []int64{ownerID})
	if err != nil {
		return chat.Group{}, err
	}

	if invitedUserID > 0 {
		if err := s.InviteToGroup(ctx, ownerID, group.ID, invitedUserID); err != nil {
			s.log.Warn("social.group.create.invite.fail", "group_id", group.ID, "invitee_id", invitedUserID, "err", err)
		}
	}

	s.log.Info("social.group.created", "group_id", group.ID, "owner_id", ownerID)
	return group, nil
}

// GroupsOf returns the groups a user belongs to, private chats included.
func (s *Service) GroupsOf(ctx context.Context, userID int64) ([]chat.Group, error) {
	return s.groups.GroupsOf(ctx, userID)
}

// PublicGroups lists every non-private group, joinable by code or invitation.
func (s *Service) PublicGroups(ctx context.Context) ([]chat.Group, error) {
	all, err := s.groups.GroupsAll(ctx)
	if err != nil {
		return nil, err
	}
	return lo.Filter(all, func(g chat.Group, _ int) bool { return !g.Private }), nil
}

// CreatePrivateChat returns the existing 1:1 conversation between the caller
// and the target, or creates it and announces it to the target.
func (s *Service) CreatePrivateChat(ctx context.Context, userID int64, targetUsername string) (chat.Group, error) {
	caller, err := s.users.UserByID(ctx, userID)
	if err != nil {
		return chat.Group{}, err
	}
	target, err := s.users.UserByUsername(ctx, targetUsername)
	if err != nil {
		return chat.Group{}, err
	}
	if target.ID == userID {
		return chat.Group{}, fmt.Errorf("%w: cannot chat with yourself", ErrInvalidInput)
	}

	if existing, ok, err := s.findPrivateChat(ctx, userID, target.ID); err != nil {
		return chat.Group{}, err
	} else if ok {
		return existing, nil
	}

	group, err := s.groups.CreateGroup(ctx, chat.Group{
		Name:    caller.Username + " - " + target.Username,
		OwnerID: userID,
		Private: true,
	}, []int64{userID, target.ID})
	if err != nil {
		return chat.Group{}, err
	}

	env := chat.NewEvent(v1.TypeGroupNew, v1.GroupNewPayload{
		GroupID:   group.ID,
		GroupName: group.Name,
		Creator:   caller.Username,
	}, time.Now().UTC())
	s.router.Dispatch(env, chat.ToUser(target.ID))

	return group, nil
}

// findPrivateChat scans the caller's private groups for one shared with the target.
func (s *Service) findPrivateChat(ctx context.Context, userID, targetID int64) (chat.Group, bool, error) {
	groups, err := s.groups.GroupsOf(ctx, userID)
	if err != nil {
		return chat.Group{}, false, err
	}
	for _, g := range groups {
		if !g.Private {
			continue
		}
		ok, err := s.groups.IsMember(ctx, g.ID, targetID)
		if err != nil {
			return chat.Group{}, false, err
		}
		if ok {
			return g, true, nil
		}
	}
	return chat.Group{}, false, nil
}

// JoinByCode adds the caller to the group matching a join code. Joining a
// group the caller already belongs to is a no-op, not an error.
func (s *Service) JoinByCode(ctx context.Context, userID int64, code string) (chat.Group, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return chat.Group{}, fmt.Errorf("%w: empty join code", ErrInvalidInput)
	}

	group, err := s.groups.GroupByJoinCode(ctx, code)
	if err != nil {
		return chat.Group{}, err
	}

	ok, err := s.groups.IsMember(ctx, group.ID, userID)
	if err != nil {
		return chat.Group{}, err
	}
	if !ok {
		if err := s.groups.AddMember(ctx, group.ID, userID); err != nil {
			return chat.Group{}, err
		}
		s.refreshGroup(ctx, group.ID)
	}
	return group, nil
}

// LeaveGroup removes the caller from a group and detaches their connections
// from its broadcast room.
func (s *Service) LeaveGroup(ctx context.Context, userID, groupID int64) error {
	ok, err := s.groups.IsMember(ctx, groupID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}

	if err := s.groups.RemoveMember(ctx, groupID, userID); err != nil {
		return err
	}
	s.lifecycle.DropFromRoom(groupID, userID)
	s.refreshGroup(ctx, groupID)
	return nil
}

// KickMember removes a member from a group. Owner only.
func (s *Service) KickMember(ctx context.Context, callerID, groupID, targetID int64) error {
	group, err := s.groups.GroupByID(ctx, groupID)
	if err != nil {
		return err
	}
	if group.OwnerID != callerID {
		return ErrForbidden
	}

	ok, err := s.groups.IsMember(ctx, groupID, targetID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}

	if err := s.groups.RemoveMember(ctx, groupID, targetID); err != nil {
		return err
	}
	s.lifecycle.DropFromRoom(groupID, targetID)
	s.refreshGroup(ctx, groupID)
	s.log.Info("social.group.kick", "group_id", groupID, "caller_id", callerID, "target_id", targetID)
	return nil
}

// ---- invitations ----

// InviteToGroup creates a pending invitation and nudges the invitee. Only
// members may invite; inviting an existing member or re-inviting a pending
// invitee is rejected.
func (s *Service) InviteToGroup(ctx context.Context, inviterID, groupID, inviteeID int64) error {
	if _, err := s.groups.GroupByID(ctx, groupID); err != nil {
		return err
	}
	if _, err := s.users.UserByID(ctx, inviteeID); err != nil {
		return err
	}

	member, err := s.groups.IsMember(ctx, groupID, inviterID)
	if err != nil {
		return err
	}
	if !member {
		return ErrForbidden
	}

	already, err := s.groups.IsMember(ctx, groupID, inviteeID)
	if err != nil {
		return err
	}
	if already {
		return fmt.Errorf("%w: already a member", ErrDuplicate)
	}

	if _, err := s.invites.CreateInvitation(ctx, groupID, inviterID, inviteeID); err != nil {
		return err
	}

	s.notify(v1.TypeGroupInvitation, inviteeID)
	return nil
}

// InvitationSummary is a pending invitation joined with group info.
type InvitationSummary struct {
	InviteID    int64  `json:"invite_id"`
	GroupID     int64  `json:"group_id"`
	GroupName   string `json:"group_name"`
	MemberCount int    `json:"member_count"`
}

// Invitations lists the pending invitations addressed to a user.
func (s *Service) Invitations(ctx context.Context, userID int64) ([]InvitationSummary, error) {
	invs, err := s.invites.InvitationsFor(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make([]InvitationSummary, 0, len(invs))
	for _, inv := range invs {
		group, err := s.groups.GroupByID(ctx, inv.GroupID)
		if err != nil {
			if errors.Is(err, chat.ErrNotFound) {
				continue
			}
			return nil, err
		}
		members, err := s.groups.MembersOf(ctx, inv.GroupID)
		if err != nil {
			return nil, err
		}
		out = append(out, InvitationSummary{
			InviteID:    inv.ID,
			GroupID:     group.ID,
			GroupName:   group.Name,
			MemberCount: len(members),
		})
	}
	return out, nil
}

// RespondInvitation accepts or rejects a pending invitation. Only the invitee
// may respond; either way the invitation is removed.
func (s *Service) RespondInvitation(ctx context.Context, userID, inviteID int64, accept bool) error {
	inv, err := s.invites.InvitationByID(ctx, inviteID)
	if err != nil {
		return err
	}
	if inv.InviteeID != userID {
		return ErrForbidden
	}

	if accept {
		if err := s.groups.AddMember(ctx, inv.GroupID, userID); err != nil {
			return err
		}
		s.refreshGroup(ctx, inv.GroupID)
	}
	return s.invites.DeleteInvitation(ctx, inviteID)
}

// ---- helpers ----

// notify sends an empty-payload nudge event to every live connection of a user.
func (s *Service) notify(eventType string, userID int64) {
	env := chat.NewEvent(eventType, struct{}{}, time.Now().UTC())
	s.router.Dispatch(env, chat.ToUser(userID))
}

func (s *Service) refreshGroup(ctx context.Context, groupID int64) {
	if err := s.lifecycle.RefreshGroup(ctx, groupID); err != nil {
		s.log.Warn("social.group.refresh.fail", "group_id", groupID, "err", err)
	}
}

// MemberCounts maps group ids to member counts for list views.
func (s *Service) MemberCounts(ctx context.Context, groups []chat.Group) (map[int64]int, error) {
	counts := make(map[int64]int, len(groups))
	for _, g := range lo.UniqBy(groups, func(g chat.Group) int64 { return g.ID }) {
		members, err := s.groups.MembersOf(ctx, g.ID)
		if err != nil {
			return nil, err
		}
		counts[g.ID] = len(members)
	}
	return counts, nil
}

func newJoinCode() (string, error) {
	b := make([]byte, joinCodeLen/2)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(b)), nil
}
