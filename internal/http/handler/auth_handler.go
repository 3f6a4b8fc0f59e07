package handler

import (
	"errors"
	"net/http"

	"github.com/sprintdeck/sprintdeck/internal/http/middleware"
	"github.com/sprintdeck/sprintdeck/internal/http/response"
	"github.com/sprintdeck/sprintdeck/internal/service"
)

type AuthHandler struct {
	auth *service.AuthService
}

func NewAuthHandler(auth *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := response.Decode(r, &req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}
	res, err := h.auth.Register(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusCreated, res)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := response.Decode(r, &req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}
	res, err := h.auth.Login(r.Context(), req.Email, req.Password, middleware.ClientIP(r), r.UserAgent())
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, res)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := response.Decode(r, &req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}
	res, err := h.auth.Refresh(r.Context(), req.RefreshToken, middleware.ClientIP(r), r.UserAgent())
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, res)
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
	Everywhere   bool   `json:"everywhere"`
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing access token", nil)
		return
	}
	var req logoutRequest
	if r.ContentLength > 0 {
		if err := response.Decode(r, &req); err != nil {
			response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
			return
		}
	}
	token := req.RefreshToken
	if req.Everywhere {
		token = ""
	}
	if err := h.auth.Logout(r.Context(), userID, token); err != nil {
		writeAuthError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]string{"message": "logged out"})
}

type verifyEmailRequest struct {
	Token string `json:"token"`
}

func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req verifyEmailRequest
	if err := response.Decode(r, &req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}
	if err := h.auth.VerifyEmail(r.Context(), req.Token); err != nil {
		writeAuthError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]string{"message": "email verified"})
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := response.Decode(r, &req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}
	if err := h.auth.ForgotPassword(r.Context(), req.Email); err != nil {
		writeAuthError(w, r, err)
		return
	}
	// Identical response whether or not the account exists.
	response.JSON(w, r, http.StatusAccepted, map[string]string{
		"message": "if that email is registered, a reset link is on its way",
	})
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := response.Decode(r, &req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}
	if err := h.auth.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		writeAuthError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]string{"message": "password reset"})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing access token", nil)
		return
	}
	var req changePasswordRequest
	if err := response.Decode(r, &req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}
	if err := h.auth.ChangePassword(r.Context(), userID, req.CurrentPassword, req.NewPassword); err != nil {
		writeAuthError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]string{"message": "password changed"})
}

// writeAuthError maps service sentinels onto the wire. Credential failures
// share one message; the remaining cases are safe to report precisely.
func writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	var weak *service.WeakPasswordError
	switch {
	case errors.As(err, &weak):
		response.Error(w, r, http.StatusBadRequest, "WEAK_PASSWORD", "password does not meet requirements",
			map[string][]string{"violations": weak.Violations})
	case errors.Is(err, service.ErrEmailTaken):
		response.Error(w, r, http.StatusConflict, "EMAIL_TAKEN", err.Error(), nil)
	case errors.Is(err, service.ErrInvalidCredentials):
		response.Error(w, r, http.StatusUnauthorized, "INVALID_CREDENTIALS", err.Error(), nil)
	case errors.Is(err, service.ErrLoginCooldown):
		response.Error(w, r, http.StatusTooManyRequests, "LOGIN_COOLDOWN", err.Error(), nil)
	case errors.Is(err, service.ErrAccountLocked):
		response.Error(w, r, http.StatusForbidden, "ACCOUNT_LOCKED", err.Error(), nil)
	case errors.Is(err, service.ErrTooManyAttempts):
		response.Error(w, r, http.StatusForbidden, "TOO_MANY_ATTEMPTS", err.Error(), nil)
	case errors.Is(err, service.ErrEmailNotVerified):
		response.Error(w, r, http.StatusForbidden, "EMAIL_NOT_VERIFIED", err.Error(), nil)
	case errors.Is(err, service.ErrAccountDeactivated):
		response.Error(w, r, http.StatusForbidden, "ACCOUNT_DEACTIVATED", err.Error(), nil)
	case errors.Is(err, service.ErrInvalidRefreshToken):
		response.Error(w, r, http.StatusUnauthorized, "INVALID_REFRESH_TOKEN", err.Error(), nil)
	case errors.Is(err, service.ErrUserInactive):
		response.Error(w, r, http.StatusForbidden, "ACCOUNT_DEACTIVATED", err.Error(), nil)
	case errors.Is(err, service.ErrInvalidActionToken):
		response.Error(w, r, http.StatusBadRequest, "INVALID_TOKEN", err.Error(), nil)
	case errors.Is(err, service.ErrIncorrectPassword):
		response.Error(w, r, http.StatusBadRequest, "INCORRECT_PASSWORD", err.Error(), nil)
	case errors.Is(err, service.ErrUserNotFound):
		response.Error(w, r, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, service.ErrSessionNotFound):
		response.Error(w, r, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	default:
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "internal server error", nil)
	}
}
