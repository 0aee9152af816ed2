package rbac

import (
	"fmt"
	"slices"
	"strings"

	"github.com/platinummonkey/gatekeeper/pkg/observability"
)

// EvaluationMode selects how the engine answers checks
type EvaluationMode string

const (
	// ModeEnforce evaluates every check against the rule model
	ModeEnforce EvaluationMode = "enforce"
	// ModeBypass allows every check. It exists for local development and
	// must be chosen explicitly when the engine is built.
	ModeBypass EvaluationMode = "bypass"
)

// ParseEvaluationMode parses "enforce" or "bypass"
func ParseEvaluationMode(s string) (EvaluationMode, error) {
	switch EvaluationMode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeEnforce, "":
		return ModeEnforce, nil
	case ModeBypass:
		return ModeBypass, nil
	default:
		return "", fmt.Errorf("invalid evaluation mode %q (must be enforce or bypass)", s)
	}
}

// RuleSource is the lookup surface the engine evaluates against. RuleModel
// implements it.
type RuleSource interface {
	// RulesFor returns the actions role may perform on resource, in declared order
	RulesFor(role string, resource Resource) []Action

	// IsInstanceAllowed evaluates instance predicates for a granted action
	IsInstanceAllowed(role string, resource Resource, action Action, resourceID string, user *UserContext) bool

	// Actions returns the declared action ordering
	Actions() []Action

	// Resources returns the declared resources
	Resources() []Resource

	// HasResource reports whether the resource is declared
	HasResource(resource Resource) bool
}

// Evaluator is the decision surface shared by Engine and AccessLayer
type Evaluator interface {
	HasPermission(user *UserContext, check PermissionCheck) bool
	HasAnyPermission(user *UserContext, checks []PermissionCheck) bool
	HasAllPermissions(user *UserContext, checks []PermissionCheck) bool
	GetAllowedActions(user *UserContext, resource Resource, resourceID string) []Action
}

// EngineOption configures an Engine
type EngineOption func(*Engine)

// WithMode sets the evaluation mode
func WithMode(mode EvaluationMode) EngineOption {
	return func(e *Engine) {
		e.mode = mode
	}
}

// WithLogger sets the engine logger
func WithLogger(logger *observability.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// Engine evaluates permission checks. It holds no mutable state and is safe for
// concurrent use.
type Engine struct {
	rules  RuleSource
	mode   EvaluationMode
	logger *observability.Logger
}

// NewEngine creates an engine over a rule source
func NewEngine(rules RuleSource, opts ...EngineOption) *Engine {
	e := &Engine{
		rules:  rules,
		mode:   ModeEnforce,
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.mode == ModeBypass {
		e.logger.WithField("mode", string(e.mode)).Warn("permission checks are bypassed: every check is allowed")
	}

	return e
}

// Mode returns the evaluation mode
func (e *Engine) Mode() EvaluationMode {
	return e.mode
}

// Rules returns the rule source
func (e *Engine) Rules() RuleSource {
	return e.rules
}

// HasPermission reports whether any of the user's roles grants the check.
// A nil user is unauthenticated and always denied.
func (e *Engine) HasPermission(user *UserContext, check PermissionCheck) bool {
	if e.mode == ModeBypass {
		return true
	}
	if user == nil {
		return false
	}
	for _, role := range user.Roles {
		if e.roleGrants(role, user, check) {
			return true
		}
	}
	return false
}

// HasAnyPermission reports whether at least one check is granted. An empty list
// is denied.
func (e *Engine) HasAnyPermission(user *UserContext, checks []PermissionCheck) bool {
	if len(checks) == 0 {
		return false
	}
	if e.mode == ModeBypass {
		return true
	}
	if user == nil {
		return false
	}
	for _, check := range checks {
		if e.HasPermission(user, check) {
			return true
		}
	}
	return false
}

// HasAllPermissions reports whether every check is granted. An empty list is
// vacuously allowed, for unauthenticated users too.
func (e *Engine) HasAllPermissions(user *UserContext, checks []PermissionCheck) bool {
	if len(checks) == 0 {
		return true
	}
	if e.mode == ModeBypass {
		return true
	}
	if user == nil {
		return false
	}
	for _, check := range checks {
		if !e.HasPermission(user, check) {
			return false
		}
	}
	return true
}

// GetAllowedActions returns the union of actions the user's roles allow on a
// resource, filtered by instance predicates when resourceID is set. The result is
// deduplicated and in declared order; it is never nil.
func (e *Engine) GetAllowedActions(user *UserContext, resource Resource, resourceID string) []Action {
	if e.mode == ModeBypass {
		if !e.rules.HasResource(resource) {
			return []Action{}
		}
		return slices.Clone(e.rules.Actions())
	}
	if user == nil {
		return []Action{}
	}

	allowed := make(map[Action]struct{})
	for _, role := range user.Roles {
		for _, action := range e.rules.RulesFor(role, resource) {
			if _, ok := allowed[action]; ok {
				continue
			}
			if resourceID == "" || e.rules.IsInstanceAllowed(role, resource, action, resourceID, user) {
				allowed[action] = struct{}{}
			}
		}
	}

	result := make([]Action, 0, len(allowed))
	for _, action := range e.rules.Actions() {
		if _, ok := allowed[action]; ok {
			result = append(result, action)
		}
	}
	return result
}

// Explain evaluates a check and reports which roles granted it, or why it was
// denied
func (e *Engine) Explain(user *UserContext, check PermissionCheck) Decision {
	d := Decision{Check: check}

	if e.mode == ModeBypass {
		d.Allowed = true
		d.Reason = "bypass mode"
		return d
	}
	if user == nil {
		d.Reason = "not authenticated"
		return d
	}
	if !e.rules.HasResource(check.Resource) {
		d.Reason = fmt.Sprintf("unknown resource %q", check.Resource)
		return d
	}

	var typeLevel []string
	for _, role := range user.Roles {
		if !slices.Contains(e.rules.RulesFor(role, check.Resource), check.Action) {
			continue
		}
		typeLevel = append(typeLevel, role)
		if check.ResourceID == "" || e.rules.IsInstanceAllowed(role, check.Resource, check.Action, check.ResourceID, user) {
			d.MatchedRoles = append(d.MatchedRoles, role)
		}
	}

	switch {
	case len(d.MatchedRoles) > 0:
		d.Allowed = true
		d.Reason = fmt.Sprintf("granted by roles: %v", d.MatchedRoles)
	case len(typeLevel) > 0:
		d.Reason = fmt.Sprintf("instance %s not allowed for roles: %v", check.ResourceID, typeLevel)
	case len(user.Roles) == 0:
		d.Reason = "user has no roles"
	default:
		d.Reason = fmt.Sprintf("no role grants %s", check.Permission())
	}

	e.logger.WithFields(map[string]interface{}{
		"user_id": user.UserID,
		"check":   check.String(),
		"allowed": d.Allowed,
	}).Debug(d.Reason)

	return d
}

// roleGrants applies the per-role rule: the action must be granted at type
// level, and for instance checks the instance predicates must hold.
func (e *Engine) roleGrants(role string, user *UserContext, check PermissionCheck) bool {
	if !slices.Contains(e.rules.RulesFor(role, check.Resource), check.Action) {
		return false
	}
	if check.ResourceID == "" {
		return true
	}
	return e.rules.IsInstanceAllowed(role, check.Resource, check.Action, check.ResourceID, user)
}
