package api

import "mdip/api/handlers"

type routeHandlers struct {
	auth      *handlers.AuthHandler
	accounts  *handlers.AccountsHandler
	records   *handlers.RecordsHandler
	dashboard *handlers.DashboardHandler
	logs      *handlers.LogsHandler
}

func (s *Server) newRouteHandlers() routeHandlers {
	return routeHandlers{
		auth:      handlers.NewAuthHandler(s.auth, s.tokens, s.logger),
		accounts:  handlers.NewAccountsHandler(s.auth, s.logger),
		records:   handlers.NewRecordsHandler(s.records, s.audits, s.logger),
		dashboard: handlers.NewDashboardHandler(s.records, s.logger),
		logs:      handlers.NewLogsHandler(s.audits),
	}
}
