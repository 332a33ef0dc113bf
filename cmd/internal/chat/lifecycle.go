package chat

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	v1 "parley/contracts/chat/v1"
)

// Lifecycle orchestrates connect, disconnect, and room joins: it is the only
// writer of the presence registry and the only producer of presence events
// (user.joined, user.left, group.users, users.snapshot).
//
// The identity is resolved by the transport gateway before Connected is
// called; a connection that fails resolution is rejected and never reaches
// this type, so partial registration cannot happen.
type Lifecycle struct {
	log      *slog.Logger
	registry *Registry
	hub      *Hub
	router   *Router
	groups   GroupStore
	view     *MembershipView
}

// NewLifecycle constructs the connection lifecycle controller.
func NewLifecycle(log *slog.Logger, registry *Registry, hub *Hub, router *Router, groups GroupStore, view *MembershipView) *Lifecycle {
	return &Lifecycle{
		log:      log,
		registry: registry,
		hub:      hub,
		router:   router,
		groups:   groups,
		view:     view,
	}
}

// Connected registers a resolved connection and announces it: the caller gets
// an online-users snapshot, everyone gets user.joined, and every group the
// user belongs to gets a freshly recomputed online-member list.
func (l *Lifecycle) Connected(ctx context.Context, client *Client) error {
	if client == nil || client.ConnID == "" {
		return ErrInvalidInput
	}

	l.hub.Add(client)
	l.registry.Register(client.ConnID, client.UserID)

	now := time.Now().UTC()

	snapshot := NewEvent(v1.TypeUsersSnapshot, v1.UsersSnapshotPayload{Users: l.onlineUsers()}, now)
	l.router.Dispatch(snapshot, ToCaller(client))

	joined := NewEvent(v1.TypeUserJoined, v1.UserJoinedPayload{
		Username: client.Username,
		UserID:   client.UserID,
	}, now)
	l.router.Dispatch(joined, Everyone())

	if err := l.refreshGroupsOf(ctx, client.UserID); err != nil {
		// Presence is already consistent; group views catch up on the next
		// connect/disconnect/join touching them.
		l.log.Warn("lifecycle.connect.group_refresh.fail", "user_id", client.UserID, "err", err)
	}

	l.log.Info("lifecycle.connected",
		"conn_id", client.ConnID,
		"user_id", client.UserID,
		"username", client.Username,
	)
	return nil
}

// Disconnected tears a connection down. Graceful and abrupt closes arrive
// here identically, and duplicate delivery for the same connection is a
// no-op. user.left fires exactly once, on the transition to zero connections.
func (l *Lifecycle) Disconnected(ctx context.Context, connID string) {
	client := l.hub.Remove(connID)

	// wentOffline is decided inside the registry's critical section, so two
	// racing final disconnects cannot both observe the offline transition.
	userID, wentOffline, ok := l.registry.Unregister(connID)
	if !ok {
		return
	}

	if !wentOffline {
		// Multi-device: another connection keeps the user online.
		l.log.Info("lifecycle.disconnected.still_online", "conn_id", connID, "user_id", userID)
		return
	}

	username := ""
	if client != nil {
		username = client.Username
	}

	left := NewEvent(v1.TypeUserLeft, v1.UserLeftPayload{Username: username}, time.Now().UTC())
	l.router.Dispatch(left, Everyone())

	if err := l.refreshGroupsOf(ctx, userID); err != nil {
		l.log.Warn("lifecycle.disconnect.group_refresh.fail", "user_id", userID, "err", err)
	}

	l.log.Info("lifecycle.disconnected", "conn_id", connID, "user_id", userID, "username", username)
}

// JoinRoom attaches a connection to a group's broadcast room and pushes the
// recomputed online-member list to the whole room, so existing members see
// the newcomer too.
func (l *Lifecycle) JoinRoom(ctx context.Context, client *Client, groupID int64) error {
	if client == nil {
		return ErrInvalidInput
	}

	ok, err := l.groups.IsMember(ctx, groupID, client.UserID)
	if err != nil {
		return fmt.Errorf("membership check: %w", err)
	}
	if !ok {
		return ErrForbidden
	}

	l.hub.Room(groupID).Join(client)
	return l.RefreshGroup(ctx, groupID)
}

// RefreshGroup recomputes one group's online-member list and broadcasts it to
// the group's room.
func (l *Lifecycle) RefreshGroup(ctx context.Context, groupID int64) error {
	names, err := l.view.OnlineMembersOf(ctx, groupID)
	if err != nil {
		return err
	}

	env := NewEvent(v1.TypeGroupUsers, v1.GroupUsersPayload{
		GroupID:   groupID,
		Usernames: names,
	}, time.Now().UTC())
	l.router.Dispatch(env, ToGroup(groupID))
	return nil
}

// DropFromRoom detaches every live connection of a user from a group's room.
// Used when membership is revoked (leave, kick) so transport-level room
// membership stays synchronized with the persisted member set.
func (l *Lifecycle) DropFromRoom(groupID, userID int64) {
	room := l.hub.Room(groupID)
	for _, connID := range l.registry.ConnectionsOf(userID) {
		room.Leave(connID)
	}
}

func (l *Lifecycle) refreshGroupsOf(ctx context.Context, userID int64) error {
	groups, err := l.groups.GroupsOf(ctx, userID)
	if err != nil {
		return err
	}
	for _, g := range groups {
		if err := l.RefreshGroup(ctx, g.ID); err != nil {
			return err
		}
	}
	return nil
}

// onlineUsers builds the users.snapshot payload from hub clients,
// deduplicated by user id (multi-device users appear once).
func (l *Lifecycle) onlineUsers() []v1.OnlineUser {
	seen := make(map[int64]struct{})
	out := make([]v1.OnlineUser, 0)
	for _, c := range l.hub.Clients() {
		if _, ok := seen[c.UserID]; ok {
			continue
		}
		seen[c.UserID] = struct{}{}
		out = append(out, v1.OnlineUser{ID: c.UserID, Username: c.Username})
	}
	return out
}
