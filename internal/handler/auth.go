package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"

	"github.com/dukerupert/themeshop/internal/auth"
	"github.com/dukerupert/themeshop/internal/store"
)

const minPasswordLen = 8

type AuthHandler struct {
	users         *store.UserStore
	sessions      *store.SessionStore
	secureCookies bool
	logger        *slog.Logger
}

func NewAuthHandler(users *store.UserStore, sessions *store.SessionStore, secureCookies bool, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		users:         users,
		sessions:      sessions,
		secureCookies: secureCookies,
		logger:        logger,
	}
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if !decodeJSON(w, r, &req) {
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if addr, err := mail.ParseAddress(req.Email); err != nil || addr.Address != req.Email {
		writeError(w, http.StatusBadRequest, "a valid email is required")
		return
	}
	if len(req.Password) < minPasswordLen {
		writeError(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	user, err := h.users.Create(r.Context(), req.Email, req.Password, req.Name)
	if errors.Is(err, store.ErrConflict) {
		writeError(w, http.StatusConflict, "an account with this email already exists")
		return
	}
	if err != nil {
		h.logger.Error("create user", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create account")
		return
	}

	sess, err := h.sessions.Create(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("create session", "user_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to sign in")
		return
	}
	auth.SetSessionCookie(w, sess, h.secureCookies)

	h.logger.Info("user signed up", "user_id", user.ID)
	writeJSON(w, http.StatusCreated, map[string]any{"user": user})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	user, err := h.users.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		h.logger.Error("authenticate", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to sign in")
		return
	}
	if user == nil {
		writeError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}

	sess, err := h.sessions.Create(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("create session", "user_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to sign in")
		return
	}
	auth.SetSessionCookie(w, sess, h.secureCookies)
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(auth.SessionCookieName); err == nil && cookie.Value != "" {
		if err := h.sessions.Invalidate(r.Context(), cookie.Value); err != nil {
			h.logger.Error("invalidate session", "error", err)
		}
	}
	auth.ClearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}
