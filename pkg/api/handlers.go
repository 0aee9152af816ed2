package api

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/gatekeeper/pkg/httputil"
	"github.com/platinummonkey/gatekeeper/pkg/observability"
	"github.com/platinummonkey/gatekeeper/pkg/rbac"
	"github.com/platinummonkey/gatekeeper/pkg/session"
)

// evaluate handles POST /api/v1/permissions/evaluate
func (s *Server) evaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if err := validateChecks(req.Checks); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	user := session.UserFromContext(r.Context())
	resp := EvaluateResponse{Mode: req.Mode}

	switch req.Mode {
	case EvaluateSingle, "":
		if len(req.Checks) != 1 {
			httputil.WriteBadRequest(w, "single mode requires exactly one check")
			return
		}
		resp.Mode = EvaluateSingle
		resp.Allowed = s.access.Evaluate(user, req.Checks[0])
	case EvaluateAny:
		resp.Allowed = s.access.EvaluateAny(user, req.Checks)
	case EvaluateAll:
		resp.Allowed = s.access.EvaluateAll(user, req.Checks)
	case EvaluateEach:
		resp.Allowed = true
		resp.Results = make([]bool, len(req.Checks))
		for i, check := range req.Checks {
			resp.Results[i] = s.access.Evaluate(user, check)
			resp.Allowed = resp.Allowed && resp.Results[i]
		}
	default:
		httputil.WriteBadRequest(w, fmt.Sprintf("invalid mode %q (must be single, any, all or each)", req.Mode))
		return
	}

	trace.SpanFromContext(r.Context()).SetAttributes(
		attribute.String("gatekeeper.mode", string(resp.Mode)),
		attribute.Int("gatekeeper.checks", len(req.Checks)),
		attribute.Bool("gatekeeper.allowed", resp.Allowed),
	)
	httputil.WriteSuccess(w, resp)
}

// allowedActions handles GET /api/v1/permissions/actions
func (s *Server) allowedActions(w http.ResponseWriter, r *http.Request) {
	resource, ok := httputil.RequireQueryString(w, r, "resource")
	if !ok {
		return
	}
	resourceID := httputil.ParseQueryString(r, "resource_id", "")

	user := session.UserFromContext(r.Context())
	httputil.WriteSuccess(w, ActionsResponse{
		Resource:   rbac.Resource(resource),
		ResourceID: resourceID,
		Actions:    s.access.AllowedActions(user, rbac.Resource(resource), resourceID),
	})
}

// explain handles POST /api/v1/permissions/explain
func (s *Server) explain(w http.ResponseWriter, r *http.Request) {
	var check rbac.PermissionCheck
	if !httputil.ParseJSONOrError(w, r, &check) {
		return
	}
	if err := validateChecks([]rbac.PermissionCheck{check}); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	user := session.UserFromContext(r.Context())
	decision := s.access.Explain(user, check)
	trace.SpanFromContext(r.Context()).SetAttributes(
		attribute.String("gatekeeper.check", check.String()),
		attribute.Bool("gatekeeper.allowed", decision.Allowed),
	)

	observability.FromContext(r.Context()).
		WithField("check", check.String()).
		WithField("allowed", decision.Allowed).
		Debug("explained permission check")

	httputil.WriteSuccess(w, decision)
}

// me handles GET /api/v1/me
func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	user := session.UserFromContext(r.Context())
	httputil.WriteSuccess(w, MeResponse{
		Authenticated: user != nil,
		User:          user,
		Mode:          s.access.Engine().Mode(),
	})
}

// listRoles handles GET /api/v1/roles
func (s *Server) listRoles(w http.ResponseWriter, r *http.Request) {
	resp := RolesResponse{
		Roles:     make([]RoleSummary, 0, len(s.model.Roles())),
		Resources: s.model.Resources(),
		Actions:   s.model.Actions(),
	}
	for _, name := range s.model.Roles() {
		resp.Roles = append(resp.Roles, RoleSummary{
			Name:        name,
			Description: s.model.RoleDescription(name),
		})
	}
	httputil.WriteSuccess(w, resp)
}

// getRole handles GET /api/v1/roles/{role}
func (s *Server) getRole(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["role"]
	if !s.model.HasRole(name) {
		httputil.WriteNotFoundError(w, fmt.Sprintf("role %q not found", name))
		return
	}

	summary := RoleSummary{Name: name, Description: s.model.RoleDescription(name)}
	for _, rule := range s.model.RulesForRole(name) {
		summary.Rules = append(summary.Rules, rule.String())
	}
	httputil.WriteSuccess(w, summary)
}

// memoStats handles GET /api/v1/permissions/stats
func (s *Server) memoStats(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, s.access.Stats())
}

func validateChecks(checks []rbac.PermissionCheck) error {
	for i, c := range checks {
		if c.Resource == "" {
			return fmt.Errorf("check %d: resource is required", i)
		}
		if c.Action == "" {
			return fmt.Errorf("check %d: action is required", i)
		}
	}
	return nil
}
