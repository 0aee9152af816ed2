package api

import (
	"github.com/platinummonkey/gatekeeper/pkg/rbac"
)

// EvaluateMode selects how the checks of an evaluate request are combined
type EvaluateMode string

const (
	// EvaluateSingle evaluates exactly one check
	EvaluateSingle EvaluateMode = "single"
	// EvaluateAny is allowed when at least one check is granted
	EvaluateAny EvaluateMode = "any"
	// EvaluateAll is allowed when every check is granted
	EvaluateAll EvaluateMode = "all"
	// EvaluateEach returns one result per check
	EvaluateEach EvaluateMode = "each"
)

// EvaluateRequest is the body of POST /api/v1/permissions/evaluate
type EvaluateRequest struct {
	Mode   EvaluateMode           `json:"mode"`
	Checks []rbac.PermissionCheck `json:"checks"`
}

// EvaluateResponse answers an evaluate request. For the each mode, Allowed
// reports whether every check was granted.
type EvaluateResponse struct {
	Mode    EvaluateMode `json:"mode"`
	Allowed bool         `json:"allowed"`
	Results []bool       `json:"results,omitempty"`
}

// ActionsResponse lists the actions the user may perform on a resource
type ActionsResponse struct {
	Resource   rbac.Resource `json:"resource"`
	ResourceID string        `json:"resource_id,omitempty"`
	Actions    []rbac.Action `json:"actions"`
}

// MeResponse describes the resolved session user
type MeResponse struct {
	Authenticated bool                `json:"authenticated"`
	User          *rbac.UserContext   `json:"user,omitempty"`
	Mode          rbac.EvaluationMode `json:"mode"`
}

// RoleSummary describes a role and its effective rules
type RoleSummary struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Rules       []string `json:"rules,omitempty"`
}

// RolesResponse lists the declared roles
type RolesResponse struct {
	Roles     []RoleSummary   `json:"roles"`
	Resources []rbac.Resource `json:"resources"`
	Actions   []rbac.Action   `json:"actions"`
}
