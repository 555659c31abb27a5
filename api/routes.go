package api

import (
	"net/http"

	backupsapi "mdip/api/backups"
	"mdip/api/routegroups"
	"mdip/core/auth"

	"github.com/go-chi/chi/v5"
)

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(s.recoverMiddleware)
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.securityHeadersMiddleware)

	r.MethodFunc(http.MethodGet, "/healthz", s.healthz)

	h := s.newRouteHandlers()
	g := routegroups.Guards{
		WithAuth:       s.withAuth,
		RequireAnyRole: s.requireAnyRole,
		RateLimit:      s.rateLimitMiddleware,
	}
	r.Route("/api", func(apiRouter chi.Router) {
		apiRouter.Use(s.jsonMiddleware)
		routegroups.RegisterAuth(apiRouter, g, h.auth)
		routegroups.RegisterAccounts(apiRouter, g, h.accounts)
		routegroups.RegisterLogs(apiRouter, g, h.logs)
		routegroups.RegisterRecords(apiRouter, g, h.records)
		routegroups.RegisterDashboard(apiRouter, g, h.dashboard)
		if s.backups != nil {
			backupsapi.RegisterRoutes(apiRouter, backupsapi.RouteDeps{
				RequireAdmin: func(next http.HandlerFunc) http.HandlerFunc {
					return s.withAuth(s.requireAnyRole(auth.RoleAdmin)(next))
				},
				Handler: backupsapi.NewHandler(s.backups, s.logger),
			})
		}
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	})
	return r
}
