package gate

import (
	"fmt"
	"strings"

	"github.com/platinummonkey/gatekeeper/pkg/rbac"
)

// Access is the decision surface a Gate consumes. *rbac.AccessLayer
// implements it.
type Access interface {
	rbac.Evaluator
	GetOptional(user *rbac.UserContext, check *rbac.PermissionCheck) bool
}

// Behavior selects how a denied element is presented
type Behavior string

const (
	// Hide does not render the element
	Hide Behavior = "hide"
	// Disable renders the element in a disabled state
	Disable Behavior = "disable"
	// ReadOnly renders the element without edit affordances
	ReadOnly Behavior = "readonly"
	// Annotate renders the element with an explanatory message
	Annotate Behavior = "annotate"
)

// ParseBehavior parses a behavior name
func ParseBehavior(s string) (Behavior, error) {
	switch b := Behavior(strings.ToLower(strings.TrimSpace(s))); b {
	case Hide, Disable, ReadOnly, Annotate:
		return b, nil
	case "read_only", "read-only":
		return ReadOnly, nil
	default:
		return "", fmt.Errorf("unknown gating behavior %q", s)
	}
}

// Presentation describes how an element should be rendered
type Presentation struct {
	Allowed  bool   `json:"allowed"`
	Render   bool   `json:"render"`
	Disabled bool   `json:"disabled,omitempty"`
	ReadOnly bool   `json:"read_only,omitempty"`
	Message  string `json:"message,omitempty"`
}

// MessageFunc produces the explanation shown on denied elements
type MessageFunc func(check rbac.PermissionCheck) string

// DefaultMessage explains a denial in plain words
func DefaultMessage(check rbac.PermissionCheck) string {
	return fmt.Sprintf("You do not have permission to %s this %s.", check.Action, strings.ReplaceAll(string(check.Resource), "_", " "))
}

// Option configures a Gate
type Option func(*Gate)

// WithMessage replaces the denial message
func WithMessage(fn MessageFunc) Option {
	return func(g *Gate) {
		if fn != nil {
			g.message = fn
		}
	}
}

// Gate maps decisions to presentations
type Gate struct {
	access  Access
	message MessageFunc
}

// New creates a Gate over an access layer
func New(access Access, opts ...Option) *Gate {
	g := &Gate{
		access:  access,
		message: DefaultMessage,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Access returns the underlying decision surface
func (g *Gate) Access() Access {
	return g.access
}

// Element presents an element guarded by an optional check. A nil check
// requires nothing and always renders.
func (g *Gate) Element(user *rbac.UserContext, check *rbac.PermissionCheck, behavior Behavior) Presentation {
	allowed := g.access.GetOptional(user, check)
	var denied rbac.PermissionCheck
	if check != nil {
		denied = *check
	}
	return g.present(allowed, denied, behavior)
}

// ElementAny presents an element shown when any check is granted
func (g *Gate) ElementAny(user *rbac.UserContext, checks []rbac.PermissionCheck, behavior Behavior) Presentation {
	allowed := g.access.HasAnyPermission(user, checks)
	return g.present(allowed, firstOrZero(checks), behavior)
}

// ElementAll presents an element shown when every check is granted
func (g *Gate) ElementAll(user *rbac.UserContext, checks []rbac.PermissionCheck, behavior Behavior) Presentation {
	allowed := g.access.HasAllPermissions(user, checks)
	denied := firstOrZero(checks)
	if !allowed {
		// name the first check that actually failed
		for _, c := range checks {
			if !g.access.HasPermission(user, c) {
				denied = c
				break
			}
		}
	}
	return g.present(allowed, denied, behavior)
}

func (g *Gate) present(allowed bool, denied rbac.PermissionCheck, behavior Behavior) Presentation {
	if allowed {
		return Presentation{Allowed: true, Render: true}
	}

	p := Presentation{Render: true}
	switch behavior {
	case Disable:
		p.Disabled = true
		p.Message = g.message(denied)
	case ReadOnly:
		p.ReadOnly = true
	case Annotate:
		p.Message = g.message(denied)
	default:
		p.Render = false
	}
	return p
}

func firstOrZero(checks []rbac.PermissionCheck) rbac.PermissionCheck {
	if len(checks) == 0 {
		return rbac.PermissionCheck{}
	}
	return checks[0]
}
