package api

import (
	"net/http"
	"strings"

	"parley/cmd/internal/chat"

	"github.com/samber/lo"
)

// ---- friends ----

func (h *Handler) handleFriends(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	friends, err := h.social.Friends(r.Context(), callerID(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"friends": lo.Map(friends, func(u chat.User, _ int) userView { return toUserView(u) }),
	})
}

type friendRequestRequest struct {
	Username string `json:"username"`
}

func (h *Handler) handleFriendRequest(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req friendRequestRequest
	if err := decodeJSON(w, r, maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", err.Error())
		return
	}

	target, err := h.users.UserByUsername(r.Context(), strings.TrimSpace(req.Username))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	if err := h.social.RequestFriend(r.Context(), callerID(r), target.ID); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ok": true})
}

func (h *Handler) handleFriendRequests(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	reqs, err := h.social.PendingRequests(r.Context(), callerID(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": reqs})
}

type friendRespondRequest struct {
	RequestID int64 `json:"request_id"`
	Accept    bool  `json:"accept"`
}

func (h *Handler) handleFriendRespond(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req friendRespondRequest
	if err := decodeJSON(w, r, maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", err.Error())
		return
	}

	if err := h.social.RespondFriend(r.Context(), callerID(r), req.RequestID, req.Accept); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type friendRemoveRequest struct {
	UserID int64 `json:"user_id"`
}

func (h *Handler) handleFriendRemove(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req friendRemoveRequest
	if err := decodeJSON(w, r, maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", err.Error())
		return
	}

	if err := h.social.RemoveFriend(r.Context(), callerID(r), req.UserID); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// ---- groups ----

type groupView struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	OwnerID     int64  `json:"owner_id"`
	Private     bool   `json:"private"`
	JoinCode    string `json:"join_code,omitempty"`
	MemberCount int    `json:"member_count"`
}

func (h *Handler) groupViews(r *http.Request, groups []chat.Group, includeCode bool) ([]groupView, error) {
	counts, err := h.social.MemberCounts(r.Context(), groups)
	if err != nil {
		return nil, err
	}
	return lo.Map(groups, func(g chat.Group, _ int) groupView {
		v := groupView{
			ID:          g.ID,
			Name:        g.Name,
			OwnerID:     g.OwnerID,
			Private:     g.Private,
			MemberCount: counts[g.ID],
		}
		if includeCode {
			v.JoinCode = g.JoinCode
		}
		return v
	}), nil
}

// handleGroups serves GET (the caller's groups, join codes included) and
// POST (create a group, optionally inviting one user up front).
func (h *Handler) handleGroups(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		groups, err := h.social.GroupsOf(r.Context(), callerID(r))
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		views, err := h.groupViews(r, groups, true)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"groups": views})

	case http.MethodPost:
		var req struct {
			Name          string `json:"name"`
			InvitedUserID int64  `json:"invited_user_id"`
		}
		if err := decodeJSON(w, r, maxBodyBytes, &req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_json", err.Error())
			return
		}

		group, err := h.social.CreateGroup(r.Context(), callerID(r), req.Name, req.InvitedUserID)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, groupView{
			ID:          group.ID,
			Name:        group.Name,
			OwnerID:     group.OwnerID,
			Private:     group.Private,
			JoinCode:    group.JoinCode,
			MemberCount: 1,
		})

	default:
		w.Header().Set("Allow", "GET, POST")
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET or POST")
	}
}

// handleGroupsAll lists every public group, join codes withheld.
func (h *Handler) handleGroupsAll(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	groups, err := h.social.PublicGroups(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	views, err := h.groupViews(r, groups, false)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"groups": views})
}

type groupJoinRequest struct {
	Code string `json:"code"`
}

func (h *Handler) handleGroupJoin(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req groupJoinRequest
	if err := decodeJSON(w, r, maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", err.Error())
		return
	}

	group, err := h.social.JoinByCode(r.Context(), callerID(r), req.Code)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, groupView{
		ID:      group.ID,
		Name:    group.Name,
		OwnerID: group.OwnerID,
		Private: group.Private,
	})
}

type groupLeaveRequest struct {
	GroupID int64 `json:"group_id"`
}

func (h *Handler) handleGroupLeave(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req groupLeaveRequest
	if err := decodeJSON(w, r, maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", err.Error())
		return
	}

	if err := h.social.LeaveGroup(r.Context(), callerID(r), req.GroupID); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type groupKickRequest struct {
	GroupID int64 `json:"group_id"`
	UserID  int64 `json:"user_id"`
}

func (h *Handler) handleGroupKick(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req groupKickRequest
	if err := decodeJSON(w, r, maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", err.Error())
		return
	}

	if err := h.social.KickMember(r.Context(), callerID(r), req.GroupID, req.UserID); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// ---- invitations ----

type groupInviteRequest struct {
	GroupID   int64 `json:"group_id"`
	InviteeID int64 `json:"invitee_id"`
}

func (h *Handler) handleGroupInvite(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req groupInviteRequest
	if err := decodeJSON(w, r, maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", err.Error())
		return
	}

	if err := h.social.InviteToGroup(r.Context(), callerID(r), req.GroupID, req.InviteeID); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ok": true})
}

func (h *Handler) handleInvitations(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	invs, err := h.social.Invitations(r.Context(), callerID(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"invitations": invs})
}

type invitationRespondRequest struct {
	InvitationID int64 `json:"invitation_id"`
	Accept       bool  `json:"accept"`
}

func (h *Handler) handleInvitationRespond(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req invitationRespondRequest
	if err := decodeJSON(w, r, maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", err.Error())
		return
	}

	if err := h.social.RespondInvitation(r.Context(), callerID(r), req.InvitationID, req.Accept); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// ---- private chats ----

type privateChatRequest struct {
	Username string `json:"username"`
}

func (h *Handler) handlePrivateChat(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req privateChatRequest
	if err := decodeJSON(w, r, maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", err.Error())
		return
	}

	group, err := h.social.CreatePrivateChat(r.Context(), callerID(r), strings.TrimSpace(req.Username))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, groupView{
		ID:          group.ID,
		Name:        group.Name,
		OwnerID:     group.OwnerID,
		Private:     group.Private,
		MemberCount: 2,
	})
}
