package gate

import (
	"html/template"

	"github.com/platinummonkey/gatekeeper/pkg/rbac"
)

// FuncMap returns template functions bound to the gate. Checks are written as
// "resource:action" or "resource:action/id".
//
//	can            user check          → bool
//	canAny         user check...       → bool
//	canAll         user check...       → bool
//	allowedActions user resource [id]  → []rbac.Action
//	element        user behavior check → Presentation
func (g *Gate) FuncMap() template.FuncMap {
	return template.FuncMap{
		"can": func(user *rbac.UserContext, check string) (bool, error) {
			c, err := rbac.ParseCheck(check)
			if err != nil {
				return false, err
			}
			return g.access.HasPermission(user, c), nil
		},
		"canAny": func(user *rbac.UserContext, checks ...string) (bool, error) {
			parsed, err := parseChecks(checks)
			if err != nil {
				return false, err
			}
			return g.access.HasAnyPermission(user, parsed), nil
		},
		"canAll": func(user *rbac.UserContext, checks ...string) (bool, error) {
			parsed, err := parseChecks(checks)
			if err != nil {
				return false, err
			}
			return g.access.HasAllPermissions(user, parsed), nil
		},
		"allowedActions": func(user *rbac.UserContext, resource string, resourceID ...string) []rbac.Action {
			var id string
			if len(resourceID) > 0 {
				id = resourceID[0]
			}
			return g.access.GetAllowedActions(user, rbac.Resource(resource), id)
		},
		"element": func(user *rbac.UserContext, behavior string, check string) (Presentation, error) {
			b, err := ParseBehavior(behavior)
			if err != nil {
				return Presentation{}, err
			}
			c, err := rbac.ParseCheck(check)
			if err != nil {
				return Presentation{}, err
			}
			return g.Element(user, &c, b), nil
		},
	}
}

func parseChecks(checks []string) ([]rbac.PermissionCheck, error) {
	parsed := make([]rbac.PermissionCheck, 0, len(checks))
	for _, s := range checks {
		c, err := rbac.ParseCheck(s)
		if err != nil {
			return nil, err
		}
		parsed = append(parsed, c)
	}
	return parsed, nil
}
