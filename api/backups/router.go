package backups

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type RouteDeps struct {
	// RequireAdmin wraps a handler with authentication and the admin role check.
	RequireAdmin func(http.HandlerFunc) http.HandlerFunc
	Handler      *Handler
}

func RegisterRoutes(r chi.Router, deps RouteDeps) {
	h := deps.Handler
	admin := deps.RequireAdmin
	r.Route("/backups", func(br chi.Router) {
		br.MethodFunc(http.MethodGet, "/", admin(h.ListBackups))
		br.MethodFunc(http.MethodPost, "/", admin(h.CreateBackup))
		br.MethodFunc(http.MethodPost, "/prune", admin(h.PruneBackups))
	})
}
