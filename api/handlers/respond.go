package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"mdip/core/auth"
	"mdip/core/store"
	"mdip/core/utils"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, out interface{}) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		writeError(w, http.StatusBadRequest, "bad request")
		return false
	}
	return true
}

// writeServiceError maps auth and store sentinels onto HTTP statuses. Credential failures
// always carry the same body so the response never says which part was wrong.
func writeServiceError(w http.ResponseWriter, logger *utils.Logger, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidUsername),
		errors.Is(err, auth.ErrPasswordTooShort),
		errors.Is(err, auth.ErrPasswordTooLong),
		errors.Is(err, auth.ErrInvalidRole):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrTOTPRequired):
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": err.Error(), "totp_required": true})
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrVerificationFailed),
		errors.Is(err, auth.ErrTOTPInvalid),
		errors.Is(err, auth.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, auth.ErrForbidden),
		errors.Is(err, auth.ErrRegistrationClosed):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, auth.ErrNotFound),
		errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, auth.ErrUsernameTaken),
		errors.Is(err, auth.ErrLastAdmin),
		errors.Is(err, auth.ErrSelfDelete),
		errors.Is(err, auth.ErrTOTPNotEnrolled),
		errors.Is(err, auth.ErrTOTPAlreadyEnabled),
		errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrStoreUnavailable):
		logger.Errorf("store: %v", err)
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
	default:
		logger.Errorf("unhandled: %v", err)
		writeError(w, http.StatusInternalServerError, "server error")
	}
}

func currentUser(r *http.Request) *store.User {
	return auth.UserFromContext(r.Context())
}

func currentUsername(r *http.Request) string {
	if u := currentUser(r); u != nil {
		return u.Username
	}
	return ""
}
