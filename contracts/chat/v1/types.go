// Package v1 defines the Parley chat wire protocol.
//
// This package is intentionally stable and dependency-light.
// It is shared between server and clients to keep the wire protocol authoritative.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Version is the protocol version identifier embedded into every envelope.
const Version = "v1"

// Client -> server types (wire-stable).
const (
	// TypeHello authenticates a freshly opened connection. It must be the first
	// envelope on the wire and must arrive within the handshake timeout.
	TypeHello = "hello"

	// TypeMessageSend posts a message to the global room.
	TypeMessageSend = "message.send"
	// TypePrivateSend posts a message to a single user.
	TypePrivateSend = "message.private.send"
	// TypeGroupSend posts a message to a group.
	TypeGroupSend = "message.group.send"

	// TypeRoomJoin attaches the connection to a group's broadcast room.
	TypeRoomJoin = "room.join"
)

// Server -> client types (wire-stable).
const (
	// TypeHelloAck acknowledges the handshake and carries the resolved identity.
	TypeHelloAck = "hello.ack"

	// TypeMessageReceive delivers a global-room message.
	TypeMessageReceive = "message.receive"
	// TypePrivateReceive delivers a private message.
	TypePrivateReceive = "message.private"
	// TypeGroupReceive delivers a group message.
	TypeGroupReceive = "message.group"

	// TypeUserJoined announces that a user connected.
	TypeUserJoined = "user.joined"
	// TypeUserLeft announces that a user's last connection closed.
	TypeUserLeft = "user.left"
	// TypeGroupUsers carries a group's current online-member list.
	TypeGroupUsers = "group.users"
	// TypeUsersSnapshot carries the full online-user list (sent once at connect).
	TypeUsersSnapshot = "users.snapshot"

	// TypeFriendRequest nudges the receiver to refresh pending friend requests.
	TypeFriendRequest = "friend.request"
	// TypeFriendList nudges the receiver to refresh their friend list.
	TypeFriendList = "friend.list"
	// TypeGroupInvitation nudges the invitee to refresh pending invitations.
	TypeGroupInvitation = "group.invitation"
	// TypeGroupNew announces a newly created conversation to its counterpart.
	TypeGroupNew = "group.new"

	// TypeError is a generic error envelope (server -> client).
	TypeError = "error"
)

// Message kinds.
const (
	KindText    = "text"
	KindSticker = "sticker"
	KindFile    = "file"
)

// ValidKind reports whether k is a known message kind.
func ValidKind(k string) bool {
	switch k {
	case KindText, KindSticker, KindFile:
		return true
	}
	return false
}

// Envelope is the canonical wire wrapper.
type Envelope struct {
	V       string          `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	TS      time.Time       `json:"ts,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Validate performs strict structural validation for an Envelope.
func (e Envelope) Validate() error {
	if strings.TrimSpace(e.V) == "" {
		return errors.New("missing field: v")
	}
	if e.V != Version {
		return fmt.Errorf("unsupported protocol version: %q", e.V)
	}
	if strings.TrimSpace(e.Type) == "" {
		return errors.New("missing field: type")
	}

	switch e.Type {
	case TypeHello,
		TypeHelloAck,
		TypeMessageSend,
		TypePrivateSend,
		TypeGroupSend,
		TypeRoomJoin,
		TypeMessageReceive,
		TypePrivateReceive,
		TypeGroupReceive,
		TypeUserJoined,
		TypeUserLeft,
		TypeGroupUsers,
		TypeUsersSnapshot,
		TypeFriendRequest,
		TypeFriendList,
		TypeGroupInvitation,
		TypeGroupNew,
		TypeError:
		return nil
	default:
		return fmt.Errorf("unknown type: %q", e.Type)
	}
}

// ---- Client -> server payloads ----

// HelloPayload carries the session token issued at login.
type HelloPayload struct {
	Token string `json:"token"`
}

// MessageSendPayload posts to the global room.
type MessageSendPayload struct {
	Content string `json:"content"`
	Kind    string `json:"kind,omitempty"`
}

// PrivateSendPayload posts to a single user, addressed by numeric id.
type PrivateSendPayload struct {
	TargetUserID int64  `json:"target_user_id"`
	Content      string `json:"content"`
}

// GroupSendPayload posts to a group, addressed by stable group id.
type GroupSendPayload struct {
	GroupID int64  `json:"group_id"`
	Content string `json:"content"`
	Kind    string `json:"kind,omitempty"`
}

// RoomJoinPayload attaches the connection to a group's broadcast room.
type RoomJoinPayload struct {
	GroupID int64 `json:"group_id"`
}

// ---- Server -> client payloads ----

// HelloAckPayload confirms the handshake.
type HelloAckPayload struct {
	ConnectionID string `json:"connection_id"`
	UserID       int64  `json:"user_id"`
	Username     string `json:"username"`
}

// MessageReceivePayload delivers a global-room message.
type MessageReceivePayload struct {
	Sender  string    `json:"sender"`
	Content string    `json:"content"`
	SentAt  time.Time `json:"sent_at"`
	Kind    string    `json:"kind"`
}

// PrivateReceivePayload delivers a private message.
type PrivateReceivePayload struct {
	Sender  string    `json:"sender"`
	Content string    `json:"content"`
	SentAt  time.Time `json:"sent_at"`
}

// GroupReceivePayload delivers a group message.
type GroupReceivePayload struct {
	Sender    string    `json:"sender"`
	GroupID   int64     `json:"group_id"`
	GroupName string    `json:"group_name"`
	Content   string    `json:"content"`
	SentAt    time.Time `json:"sent_at"`
	Kind      string    `json:"kind"`
}

// UserJoinedPayload announces a new connection's user.
type UserJoinedPayload struct {
	Username string `json:"username"`
	UserID   int64  `json:"user_id"`
}

// UserLeftPayload announces a user going offline.
type UserLeftPayload struct {
	Username string `json:"username"`
}

// GroupUsersPayload carries a group's online members, sorted by username.
type GroupUsersPayload struct {
	GroupID   int64    `json:"group_id"`
	Usernames []string `json:"usernames"`
}

// OnlineUser is one entry of a users.snapshot payload.
type OnlineUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// UsersSnapshotPayload carries the currently online users.
type UsersSnapshotPayload struct {
	Users []OnlineUser `json:"users"`
}

// GroupNewPayload announces a newly created conversation.
type GroupNewPayload struct {
	GroupID   int64  `json:"group_id"`
	GroupName string `json:"group_name"`
	Creator   string `json:"creator"`
}

// ErrorPayload is a generic error response payload.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
