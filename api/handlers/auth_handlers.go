package handlers

import (
	"net/http"
	"time"

	"mdip/core/auth"
	"mdip/core/store"
	"mdip/core/utils"
)

type AuthHandler struct {
	svc    *auth.Service
	tokens *auth.TokenIssuer
	logger *utils.Logger
}

func NewAuthHandler(svc *auth.Service, tokens *auth.TokenIssuer, logger *utils.Logger) *AuthHandler {
	return &AuthHandler{svc: svc, tokens: tokens, logger: logger}
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Code     string `json:"code,omitempty"`
}

type userDTO struct {
	ID          int64      `json:"id"`
	Username    string     `json:"username"`
	Role        string     `json:"role"`
	CreatedAt   time.Time  `json:"created_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	Locked      bool       `json:"locked"`
	TOTPEnabled bool       `json:"totp_enabled"`
}

func toUserDTO(u *store.User) userDTO {
	return userDTO{
		ID:          u.ID,
		Username:    u.Username,
		Role:        u.Role,
		CreatedAt:   u.CreatedAt,
		LastLoginAt: u.LastLoginAt,
		Locked:      u.IsLocked(utils.NowUTC()),
		TOTPEnabled: u.TOTPEnabled,
	}
}

// Register is anonymous self-registration; it can only create plain user accounts.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var cred credentials
	if !decodeJSON(w, r, &cred) {
		return
	}
	id, err := h.svc.Register(r.Context(), nil, cred.Username, cred.Password, "")
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": id, "username": utils.NormalizeUsername(cred.Username), "role": auth.RoleUser})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var cred credentials
	if !decodeJSON(w, r, &cred) {
		return
	}
	user, err := h.svc.LoginWithCode(r.Context(), cred.Username, cred.Password, cred.Code)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	token, err := h.tokens.Issue(user)
	if err != nil {
		h.logger.Errorf("auth login token issue failed for %s: %v", user.Username, err)
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":      token.Value,
		"expires_at": token.ExpiresAt,
		"user":       toUserDTO(user),
	})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"user": toUserDTO(currentUser(r))})
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		OldPassword string `json:"old_password"`
		NewPassword string `json:"new_password"`
	}
	if !decodeJSON(w, r, &payload) {
		return
	}
	if err := h.svc.ChangePassword(r.Context(), currentUser(r).ID, payload.OldPassword, payload.NewPassword); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *AuthHandler) EnrollTOTP(w http.ResponseWriter, r *http.Request) {
	enrollment, err := h.svc.EnrollTOTP(r.Context(), currentUser(r).ID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, enrollment)
}

func (h *AuthHandler) ConfirmTOTP(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Code string `json:"code"`
	}
	if !decodeJSON(w, r, &payload) {
		return
	}
	if err := h.svc.ConfirmTOTP(r.Context(), currentUser(r).ID, payload.Code); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *AuthHandler) DisableTOTP(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &payload) {
		return
	}
	if err := h.svc.DisableTOTP(r.Context(), currentUser(r).ID, payload.Password); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
