package api

import (
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"

	"parley/cmd/identity"
	"parley/cmd/internal/chat"
)

var usernameRE = regexp.MustCompile(`^[a-zA-Z0-9_.-]{3,32}$`)

const minPasswordLen = 8

type userView struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
	Color    string `json:"color"`
}

func toUserView(u chat.User) userView {
	return userView{ID: u.ID, Username: u.Username, FullName: u.FullName, Color: u.Color}
}

type registerRequest struct {
	Username string `json:"username"`
	FullName string `json:"full_name"`
	Color    string `json:"color"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string   `json:"token"`
	User  userView `json:"user"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req registerRequest
	if err := decodeJSON(w, r, maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", err.Error())
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if !usernameRE.MatchString(req.Username) {
		writeError(w, http.StatusBadRequest, "bad_request", "username must be 3-32 chars of [a-zA-Z0-9_.-]")
		return
	}
	if len(req.Password) < minPasswordLen {
		writeError(w, http.StatusBadRequest, "bad_request", "password too short")
		return
	}

	hash, err := identity.HashPassword(req.Password)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	user, err := h.users.CreateUser(r.Context(), chat.User{
		Username: req.Username,
		FullName: strings.TrimSpace(req.FullName),
		Color:    strings.TrimSpace(req.Color),
	}, hash)
	if err != nil {
		if errors.Is(err, chat.ErrInvalidInput) {
			writeError(w, http.StatusConflict, "username_taken", "username already in use")
			return
		}
		h.writeServiceError(w, r, err)
		return
	}

	token, err := h.tokens.Issue(user.ID, user.Username, time.Now().UTC())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	h.log.Info("api.auth.register", "user_id", user.ID, "username", user.Username)
	writeJSON(w, http.StatusCreated, authResponse{Token: token, User: toUserView(user)})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", err.Error())
		return
	}

	user, hash, err := h.users.PasswordHash(r.Context(), strings.TrimSpace(req.Username))
	if err != nil {
		// Burn a verification anyway so unknown usernames cost the same as
		// wrong passwords.
		_, _ = identity.VerifyPassword(dummyHash, req.Password)
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid credentials")
		return
	}

	ok, err := identity.VerifyPassword(hash, req.Password)
	if err != nil || !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid credentials")
		return
	}

	token, err := h.tokens.Issue(user.ID, user.Username, time.Now().UTC())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	h.log.Info("api.auth.login", "user_id", user.ID, "username", user.Username)
	writeJSON(w, http.StatusOK, authResponse{Token: token, User: toUserView(user)})
}

// dummyHash is a throwaway Argon2id hash used for timing-resistant login
// failures. Any well-formed hash works; the password behind it is never
// accepted because the real lookup already failed.
var dummyHash = func() string {
	h, err := identity.HashPassword("timing-equalizer-only")
	if err != nil {
		return "$argon2id$v=19$m=65536,t=3,p=2$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
	}
	return h
}()
