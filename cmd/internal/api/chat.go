package api

import (
	"net/http"
	"sort"
	"strconv"
	"time"
)

type onlineUserView struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

func (h *Handler) handleOnlineUsers(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	ids := h.registry.OnlineUserIDs()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]onlineUserView, 0, len(ids))
	for _, id := range ids {
		u, err := h.users.UserByID(r.Context(), id)
		if err != nil {
			// Registry can be momentarily ahead of the store; skip ghosts.
			continue
		}
		out = append(out, onlineUserView{ID: u.ID, Username: u.Username})
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": out})
}

type messageView struct {
	ID          int64     `json:"id"`
	SenderID    int64     `json:"sender_id"`
	SenderName  string    `json:"sender_name"`
	Content     string    `json:"content"`
	Kind        string    `json:"kind"`
	GroupID     *int64    `json:"group_id,omitempty"`
	RecipientID *int64    `json:"recipient_id,omitempty"`
	SentAt      time.Time `json:"sent_at"`
}

// handleHistory returns recent messages oldest-first. Without group_id it
// serves the global room; with group_id the caller must be a member.
func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	q := r.URL.Query()

	var groupID *int64
	if raw := q.Get("group_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			writeError(w, http.StatusBadRequest, "bad_request", "invalid group_id")
			return
		}
		groupID = &id
	}

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "bad_request", "invalid limit")
			return
		}
		limit = n
	}

	msgs, err := h.chatSvc.HistoryFor(r.Context(), callerID(r), groupID, limit)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	out := make([]messageView, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageView{
			ID:          m.ID,
			SenderID:    m.SenderID,
			SenderName:  m.SenderName,
			Content:     m.Content,
			Kind:        m.Kind,
			GroupID:     m.GroupID,
			RecipientID: m.RecipientID,
			SentAt:      m.SentAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": out})
}
