package routegroups

import (
	"mdip/api/handlers"
	"mdip/core/auth"

	"github.com/go-chi/chi/v5"
)

var writerRoles = []auth.Role{auth.RoleUser, auth.RoleEditor, auth.RoleAnalyst}

func RegisterRecords(apiRouter chi.Router, g Guards, records *handlers.RecordsHandler) {
	apiRouter.Route("/incidents", func(incidentsRouter chi.Router) {
		incidentsRouter.MethodFunc("GET", "/", g.Auth(records.ListIncidents))
		incidentsRouter.MethodFunc("POST", "/", g.AuthAnyRole(writerRoles, records.CreateIncident))
		incidentsRouter.MethodFunc("GET", "/{id:[0-9]+}", g.Auth(records.GetIncident))
		incidentsRouter.MethodFunc("PUT", "/{id:[0-9]+}", g.AuthAnyRole(writerRoles, records.UpdateIncident))
		incidentsRouter.MethodFunc("DELETE", "/{id:[0-9]+}", g.AuthRole(auth.RoleAdmin, records.DeleteIncident))
	})

	apiRouter.Route("/datasets", func(datasetsRouter chi.Router) {
		datasetsRouter.MethodFunc("GET", "/", g.Auth(records.ListDatasets))
		datasetsRouter.MethodFunc("POST", "/", g.AuthAnyRole(writerRoles, records.CreateDataset))
		datasetsRouter.MethodFunc("GET", "/{id:[0-9]+}", g.Auth(records.GetDataset))
		datasetsRouter.MethodFunc("PUT", "/{id:[0-9]+}", g.AuthAnyRole(writerRoles, records.UpdateDataset))
		datasetsRouter.MethodFunc("DELETE", "/{id:[0-9]+}", g.AuthRole(auth.RoleAdmin, records.DeleteDataset))
	})

	apiRouter.Route("/tickets", func(ticketsRouter chi.Router) {
		ticketsRouter.MethodFunc("GET", "/", g.Auth(records.ListTickets))
		ticketsRouter.MethodFunc("POST", "/", g.AuthAnyRole(writerRoles, records.CreateTicket))
		ticketsRouter.MethodFunc("GET", "/{id:[0-9]+}", g.Auth(records.GetTicket))
		ticketsRouter.MethodFunc("PUT", "/{id:[0-9]+}", g.AuthAnyRole(writerRoles, records.UpdateTicket))
		ticketsRouter.MethodFunc("DELETE", "/{id:[0-9]+}", g.AuthRole(auth.RoleAdmin, records.DeleteTicket))
	})
}

func RegisterDashboard(apiRouter chi.Router, g Guards, dashboard *handlers.DashboardHandler) {
	apiRouter.MethodFunc("GET", "/dashboard/stats", g.Auth(dashboard.Stats))
}
