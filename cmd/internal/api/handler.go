package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"parley/cmd/identity"
	"parley/cmd/internal/chat"
	"parley/cmd/internal/social"
)

const maxBodyBytes = 64 << 10 // 64 KiB

// Handler wires the HTTP endpoints: account registration and login, friend
// and group management, and read-side views (online users, history). Message
// sending stays on the websocket; these endpoints cover everything that does
// not need a live connection.
type Handler struct {
	log      *slog.Logger
	users    chat.UserStore
	tokens   *identity.Manager
	chatSvc  *chat.Service
	social   *social.Service
	registry *chat.Registry
}

// NewHandler constructs the API handler.
func NewHandler(
	log *slog.Logger,
	users chat.UserStore,
	tokens *identity.Manager,
	chatSvc *chat.Service,
	socialSvc *social.Service,
	registry *chat.Registry,
) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		log:      log,
		users:    users,
		tokens:   tokens,
		chatSvc:  chatSvc,
		social:   socialSvc,
		registry: registry,
	}
}

// Register wires routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}

	mux.HandleFunc("/api/auth/register", h.handleRegister)
	mux.HandleFunc("/api/auth/login", h.handleLogin)

	mux.HandleFunc("/api/users/online", h.auth(h.handleOnlineUsers))
	mux.HandleFunc("/api/history", h.auth(h.handleHistory))

	mux.HandleFunc("/api/friends", h.auth(h.handleFriends))
	mux.HandleFunc("/api/friends/request", h.auth(h.handleFriendRequest))
	mux.HandleFunc("/api/friends/requests", h.auth(h.handleFriendRequests))
	mux.HandleFunc("/api/friends/respond", h.auth(h.handleFriendRespond))
	mux.HandleFunc("/api/friends/remove", h.auth(h.handleFriendRemove))

	mux.HandleFunc("/api/groups", h.auth(h.handleGroups))
	mux.HandleFunc("/api/groups/all", h.auth(h.handleGroupsAll))
	mux.HandleFunc("/api/groups/join", h.auth(h.handleGroupJoin))
	mux.HandleFunc("/api/groups/leave", h.auth(h.handleGroupLeave))
	mux.HandleFunc("/api/groups/kick", h.auth(h.handleGroupKick))
	mux.HandleFunc("/api/groups/invite", h.auth(h.handleGroupInvite))
	mux.HandleFunc("/api/groups/invitations", h.auth(h.handleInvitations))
	mux.HandleFunc("/api/groups/invitations/respond", h.auth(h.handleInvitationRespond))

	mux.HandleFunc("/api/chats/private", h.auth(h.handlePrivateChat))
}

// ---- auth middleware ----

type ctxKey int

const ctxKeyUserID ctxKey = iota

// auth requires a Bearer session token and stashes the caller's user id in
// the request context.
func (h *Handler) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get("Authorization"))
		token, ok := strings.CutPrefix(raw, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}

		claims, err := h.tokens.Verify(strings.TrimSpace(token))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyUserID, claims.UserID)
		next(w, r.WithContext(ctx))
	}
}

func callerID(r *http.Request) int64 {
	id, _ := r.Context().Value(ctxKeyUserID).(int64)
	return id
}

// ---- error mapping ----

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, chat.ErrInvalidInput), errors.Is(err, social.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, chat.ErrForbidden), errors.Is(err, social.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, chat.ErrNotFound), errors.Is(err, social.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, social.ErrDuplicate):
		writeError(w, http.StatusConflict, "duplicate", err.Error())
	case errors.Is(err, identity.ErrUnauthenticated), errors.Is(err, identity.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid credentials")
	default:
		h.log.Error("api.request.fail", "path", r.URL.Path, "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.Header().Set("Allow", method)
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use "+method)
		return false
	}
	return true
}
