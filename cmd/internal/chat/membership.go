package chat

import (
	"context"
	"sort"

	"github.com/samber/lo"
)

// MembershipView answers "who of this group is online right now". It holds no
// state of its own: persisted membership is fetched fresh on every call and
// intersected with the presence registry, so the answer is never stale.
type MembershipView struct {
	groups   GroupStore
	registry *Registry
}

// NewMembershipView constructs a view over the given stores.
func NewMembershipView(groups GroupStore, registry *Registry) *MembershipView {
	return &MembershipView{groups: groups, registry: registry}
}

// OnlineMembersOf returns the usernames of the group's currently online
// members, sorted for deterministic payloads.
func (v *MembershipView) OnlineMembersOf(ctx context.Context, groupID int64) ([]string, error) {
	members, err := v.groups.MembersOf(ctx, groupID)
	if err != nil {
		return nil, err
	}

	online := make(map[int64]struct{})
	for _, id := range v.registry.OnlineUserIDs() {
		online[id] = struct{}{}
	}

	present := lo.Filter(members, func(u User, _ int) bool {
		_, ok := online[u.ID]
		return ok
	})
	names := lo.Map(present, func(u User, _ int) string { return u.Username })
	sort.Strings(names)
	return names, nil
}
