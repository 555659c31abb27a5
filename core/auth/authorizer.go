package auth

import (
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

const rbacModel = `
[request_definition]
r = sub, obj

[policy_definition]
p = sub, obj

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && keyMatch(r.obj, p.obj)
`

// Authorizer answers "may a holder of role A act where role B is required".
// admin satisfies every requirement, other roles only their own.
type Authorizer struct {
	enforcer *casbin.SyncedEnforcer
}

func NewAuthorizer() (*Authorizer, error) {
	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return nil, fmt.Errorf("rbac model: %w", err)
	}
	e, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("rbac enforcer: %w", err)
	}
	rules := [][]string{{string(RoleAdmin), "*"}}
	for _, r := range Roles {
		if r != RoleAdmin {
			rules = append(rules, []string{string(r), string(r)})
		}
	}
	if _, err := e.AddPolicies(rules); err != nil {
		return nil, fmt.Errorf("rbac policy: %w", err)
	}
	return &Authorizer{enforcer: e}, nil
}

func (a *Authorizer) Allowed(have, required Role) bool {
	if !have.Valid() || !required.Valid() {
		return false
	}
	ok, err := a.enforcer.Enforce(string(have), string(required))
	return err == nil && ok
}
