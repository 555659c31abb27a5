package routegroups

import (
	"mdip/api/handlers"
	"mdip/core/auth"

	"github.com/go-chi/chi/v5"
)

func RegisterAccounts(apiRouter chi.Router, g Guards, accounts *handlers.AccountsHandler) {
	apiRouter.Route("/accounts/users", func(usersRouter chi.Router) {
		usersRouter.MethodFunc("GET", "/", g.AuthRole(auth.RoleAdmin, accounts.ListUsers))
		usersRouter.MethodFunc("POST", "/", g.AuthRole(auth.RoleAdmin, accounts.CreateUser))
		usersRouter.MethodFunc("PUT", "/{id:[0-9]+}/role", g.AuthRole(auth.RoleAdmin, accounts.SetRole))
		usersRouter.MethodFunc("DELETE", "/{id:[0-9]+}", g.AuthRole(auth.RoleAdmin, accounts.Delete))
		usersRouter.MethodFunc("POST", "/{id:[0-9]+}/unlock", g.AuthRole(auth.RoleAdmin, accounts.Unlock))
	})
}

func RegisterLogs(apiRouter chi.Router, g Guards, logs *handlers.LogsHandler) {
	apiRouter.Route("/logs", func(logsRouter chi.Router) {
		logsRouter.MethodFunc("GET", "/", g.AuthRole(auth.RoleAdmin, logs.List))
		logsRouter.MethodFunc("GET", "/export", g.AuthRole(auth.RoleAdmin, logs.Export))
	})
}

func RegisterAuth(apiRouter chi.Router, g Guards, h *handlers.AuthHandler) {
	apiRouter.Route("/auth", func(authRouter chi.Router) {
		authRouter.MethodFunc("POST", "/register", g.Throttled(h.Register))
		authRouter.MethodFunc("POST", "/login", g.Throttled(h.Login))
		authRouter.MethodFunc("GET", "/me", g.Auth(h.Me))
		authRouter.MethodFunc("POST", "/change-password", g.Auth(h.ChangePassword))
		authRouter.MethodFunc("POST", "/totp/enroll", g.Auth(h.EnrollTOTP))
		authRouter.MethodFunc("POST", "/totp/confirm", g.Auth(h.ConfirmTOTP))
		authRouter.MethodFunc("DELETE", "/totp", g.Auth(h.DisableTOTP))
	})
}
