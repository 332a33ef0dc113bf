package chat

import (
	"encoding/json"
	"log/slog"
	"time"

	v1 "parley/contracts/chat/v1"
)

// TargetKind selects the routing strategy for a dispatched event.
type TargetKind uint8

const (
	// TargetEveryone fans out to every live connection.
	TargetEveryone TargetKind = iota + 1
	// TargetUser fans out to every live connection of one user.
	TargetUser
	// TargetGroup fans out to the connections attached to a group's room.
	TargetGroup
	// TargetCaller echoes back to the calling connection only.
	TargetCaller
)

// Target is the routing selector for Dispatch.
type Target struct {
	Kind    TargetKind
	UserID  int64
	GroupID int64
	Caller  *Client
}

// Everyone targets all live connections.
func Everyone() Target { return Target{Kind: TargetEveryone} }

// ToUser targets every live connection of one user, resolved at dispatch time.
func ToUser(userID int64) Target { return Target{Kind: TargetUser, UserID: userID} }

// ToGroup targets the broadcast room of a group.
func ToGroup(groupID int64) Target { return Target{Kind: TargetGroup, GroupID: groupID} }

// ToCaller targets the calling connection.
func ToCaller(caller *Client) Target { return Target{Kind: TargetCaller, Caller: caller} }

// Router dispatches outbound events to live connections. It has no side
// effects beyond the transport send; persistence is the caller's problem and
// happens before dispatch.
type Router struct {
	log      *slog.Logger
	registry *Registry
	hub      *Hub
}

// NewRouter constructs a Router over the given presence registry and hub.
func NewRouter(log *slog.Logger, registry *Registry, hub *Hub) *Router {
	return &Router{log: log, registry: registry, hub: hub}
}

// Dispatch sends an envelope to the target's current connection set and
// returns the number of connections reached. A user target with no live
// connections is a silent drop; callers that care about "recipient offline"
// must check presence before dispatching. Sends never block: a connection
// that is closing or backed up is skipped, not an error.
func (r *Router) Dispatch(env v1.Envelope, t Target) int {
	if r == nil {
		return 0
	}

	switch t.Kind {
	case TargetEveryone:
		delivered := 0
		for _, c := range r.hub.Clients() {
			if send(c, env) {
				delivered++
			}
		}
		return delivered

	case TargetUser:
		delivered := 0
		for _, connID := range r.registry.ConnectionsOf(t.UserID) {
			if send(r.hub.Get(connID), env) {
				delivered++
			}
		}
		return delivered

	case TargetGroup:
		return r.hub.Room(t.GroupID).Broadcast(env)

	case TargetCaller:
		if send(t.Caller, env) {
			return 1
		}
		return 0

	default:
		r.log.Warn("router.dispatch.bad_target", "kind", int(t.Kind))
		return 0
	}
}

// NewEvent wraps a payload into a versioned envelope with a server-assigned
// id and timestamp. Marshal failures cannot happen for the contract payload
// types, so the payload is trusted here.
func NewEvent(typ string, payload any, now time.Time) v1.Envelope {
	raw, _ := json.Marshal(payload)
	id, _ := NewEnvelopeID(now)
	return v1.Envelope{
		V:       v1.Version,
		Type:    typ,
		ID:      id,
		TS:      now,
		Payload: raw,
	}
}
