package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sprintdeck/sprintdeck/internal/http/middleware"
	"github.com/sprintdeck/sprintdeck/internal/http/response"
	"github.com/sprintdeck/sprintdeck/internal/service"
)

type UserHandler struct {
	auth     *service.AuthService
	sessions *service.SessionService
}

func NewUserHandler(auth *service.AuthService, sessions *service.SessionService) *UserHandler {
	return &UserHandler{auth: auth, sessions: sessions}
}

// Me returns the authenticated user's public profile. The lookup doubles as
// a liveness check on the account itself.
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing access token", nil)
		return
	}
	user, err := h.auth.ValidateUser(r.Context(), userID)
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, user)
}

func (h *UserHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing access token", nil)
		return
	}
	views, err := h.sessions.ListSessions(r.Context(), userID)
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"sessions": views})
}

func (h *UserHandler) RevokeSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing access token", nil)
		return
	}
	sessionID, err := strconv.ParseUint(chi.URLParam(r, "session_id"), 10, 64)
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid session id", nil)
		return
	}
	if err := h.sessions.RevokeSession(r.Context(), userID, uint(sessionID)); err != nil {
		writeAuthError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]string{"message": "session revoked"})
}
