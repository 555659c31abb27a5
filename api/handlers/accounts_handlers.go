package handlers

import (
	"net/http"

	"mdip/core/auth"
	"mdip/core/utils"
)

type AccountsHandler struct {
	svc    *auth.Service
	logger *utils.Logger
}

func NewAccountsHandler(svc *auth.Service, logger *utils.Logger) *AccountsHandler {
	return &AccountsHandler{svc: svc, logger: logger}
}

func (h *AccountsHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.svc.ListUsers(r.Context(), currentUser(r))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	items := make([]userDTO, 0, len(users))
	for i := range users {
		items = append(items, toUserDTO(&users[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *AccountsHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Username string `json:"username"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}
	if !decodeJSON(w, r, &payload) {
		return
	}
	id, err := h.svc.Register(r.Context(), currentUser(r), payload.Username, payload.Password, payload.Role)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	u, err := h.svc.GetUser(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserDTO(u))
}

func (h *AccountsHandler) SetRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var payload struct {
		Role string `json:"role"`
	}
	if !decodeJSON(w, r, &payload) {
		return
	}
	if err := h.svc.SetRole(r.Context(), currentUser(r), id, payload.Role); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *AccountsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeleteUser(r.Context(), currentUser(r), id); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *AccountsHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.svc.UnlockUser(r.Context(), currentUser(r), id); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
