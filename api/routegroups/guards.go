package routegroups

import (
	"net/http"

	"mdip/core/auth"
)

// Guards carries the server's middleware into the route groups. Every route registered
// here goes through Throttled or one of the Auth helpers.
type Guards struct {
	WithAuth       func(http.HandlerFunc) http.HandlerFunc
	RequireAnyRole func(roles ...auth.Role) func(http.HandlerFunc) http.HandlerFunc
	RateLimit      func(http.HandlerFunc) http.HandlerFunc
}

// Throttled is for the unauthenticated credential endpoints.
func (g Guards) Throttled(h http.HandlerFunc) http.HandlerFunc {
	return g.RateLimit(h)
}

// Auth admits any authenticated account.
func (g Guards) Auth(h http.HandlerFunc) http.HandlerFunc {
	return g.WithAuth(h)
}

func (g Guards) AuthRole(role auth.Role, h http.HandlerFunc) http.HandlerFunc {
	return g.WithAuth(g.RequireAnyRole(role)(h))
}

func (g Guards) AuthAnyRole(roles []auth.Role, h http.HandlerFunc) http.HandlerFunc {
	return g.WithAuth(g.RequireAnyRole(roles...)(h))
}
