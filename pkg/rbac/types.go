package rbac

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
)

// Resource represents a protected resource type in the admin front end
type Resource string

const (
	ResourcePatient            Resource = "patient"
	ResourceEMR                Resource = "emr"
	ResourceForm               Resource = "form"
	ResourceRole               Resource = "role"
	ResourceGroup              Resource = "group"
	ResourcePermissionResource Resource = "permission_resource"
	ResourceOrganization       Resource = "organization"
	ResourceUser               Resource = "user"
)

// Action represents an operation that can be performed on a resource
type Action string

const (
	ActionRead   Action = "read"
	ActionWrite  Action = "write"
	ActionCreate Action = "create"
	ActionDelete Action = "delete"
	ActionAssign Action = "assign"
	ActionExport Action = "export"
)

// Wildcard matches every declared resource or action in a rule set
const Wildcard = "*"

var (
	// ErrInvalidUser is returned when a UserContext cannot be constructed
	ErrInvalidUser = errors.New("invalid user context")

	// ErrInvalidRuleSet is returned when a rule set fails to load or compile
	ErrInvalidRuleSet = errors.New("invalid rule set")
)

// Permission represents a specific permission (resource + action)
type Permission struct {
	Resource Resource `json:"resource" yaml:"resource"`
	Action   Action   `json:"action" yaml:"action"`
}

// String returns a string representation of the permission
func (p Permission) String() string {
	return string(p.Resource) + ":" + string(p.Action)
}

// PermissionCheck is an immutable permission query. An empty ResourceID makes
// it a resource-type check; a non-empty one scopes it to a single instance.
//
// PermissionCheck is comparable, so == compares all three fields and the value
// can be used directly as a map key.
type PermissionCheck struct {
	Resource   Resource `json:"resource"`
	Action     Action   `json:"action"`
	ResourceID string   `json:"resource_id,omitempty"`
}

// Check builds a type-level PermissionCheck
func Check(resource Resource, action Action) PermissionCheck {
	return PermissionCheck{Resource: resource, Action: action}
}

// CheckInstance builds an instance-scoped PermissionCheck
func CheckInstance(resource Resource, action Action, resourceID string) PermissionCheck {
	return PermissionCheck{Resource: resource, Action: action, ResourceID: resourceID}
}

// Permission returns the resource/action pair of the check
func (c PermissionCheck) Permission() Permission {
	return Permission{Resource: c.Resource, Action: c.Action}
}

// IsInstanceScoped reports whether the check names a specific resource instance
func (c PermissionCheck) IsInstanceScoped() bool {
	return c.ResourceID != ""
}

// String returns "resource:action" or "resource:action/id"
func (c PermissionCheck) String() string {
	if c.ResourceID == "" {
		return c.Permission().String()
	}
	return c.Permission().String() + "/" + c.ResourceID
}

// ParseCheck parses the form produced by PermissionCheck.String:
// "resource:action" or "resource:action/id".
func ParseCheck(s string) (PermissionCheck, error) {
	perm, id, _ := strings.Cut(strings.TrimSpace(s), "/")
	resource, action, ok := strings.Cut(perm, ":")
	if !ok || resource == "" || action == "" {
		return PermissionCheck{}, fmt.Errorf("invalid permission check %q (want resource:action[/id])", s)
	}
	return PermissionCheck{Resource: Resource(resource), Action: Action(action), ResourceID: id}, nil
}

// UserContext is the identity snapshot for the current session. It is never
// mutated after construction: a role change produces a new UserContext.
// A nil *UserContext means "not authenticated".
type UserContext struct {
	UserID         string         `json:"user_id"`
	Roles          []string       `json:"roles"`
	OrganizationID string         `json:"organization_id,omitempty"`
	Attributes     map[string]any `json:"attributes,omitempty"`

	fingerprint uint64
}

// NewUserContext builds a UserContext. Roles are deduplicated and sorted and
// the attribute map is copied so later changes by the caller are not observed.
func NewUserContext(userID string, roles []string, organizationID string, attributes map[string]any) (*UserContext, error) {
	if userID == "" {
		return nil, errors.Join(ErrInvalidUser, errors.New("user id is required"))
	}

	normalized := make([]string, 0, len(roles))
	for _, role := range roles {
		if role != "" {
			normalized = append(normalized, role)
		}
	}
	slices.Sort(normalized)
	normalized = slices.Compact(normalized)

	var attrs map[string]any
	if len(attributes) > 0 {
		attrs = make(map[string]any, len(attributes))
		for k, v := range attributes {
			attrs[k] = copyAttribute(v)
		}
	}

	u := &UserContext{
		UserID:         userID,
		Roles:          normalized,
		OrganizationID: organizationID,
		Attributes:     attrs,
	}
	u.fingerprint = fingerprintUser(u)
	return u, nil
}

// MustUserContext is like NewUserContext but panics on error. Intended for tests
// and static fixtures.
func MustUserContext(userID string, roles []string, organizationID string, attributes map[string]any) *UserContext {
	u, err := NewUserContext(userID, roles, organizationID, attributes)
	if err != nil {
		panic(err)
	}
	return u
}

// HasRole reports whether the user holds the named role
func (u *UserContext) HasRole(role string) bool {
	if u == nil {
		return false
	}
	return slices.Contains(u.Roles, role)
}

// Attribute returns a user attribute
func (u *UserContext) Attribute(key string) (any, bool) {
	if u == nil || u.Attributes == nil {
		return nil, false
	}
	v, ok := u.Attributes[key]
	return v, ok
}

// Fingerprint returns the structural identity hash of the user. Two users with
// the same id, roles, organization and attributes share a fingerprint.
func (u *UserContext) Fingerprint() uint64 {
	if u == nil {
		return 0
	}
	if u.fingerprint == 0 {
		// Literal UserContext values skip NewUserContext.
		return fingerprintUser(u)
	}
	return u.fingerprint
}

// SameIdentity reports whether two users are structurally equal. It is the exact
// comparison behind Fingerprint and guards memo lookups against hash collisions.
func (u *UserContext) SameIdentity(other *UserContext) bool {
	if u == nil || other == nil {
		return u == other
	}
	if u.UserID != other.UserID || u.OrganizationID != other.OrganizationID {
		return false
	}
	if !slices.Equal(sortedRoles(u.Roles), sortedRoles(other.Roles)) {
		return false
	}
	if len(u.Attributes) != len(other.Attributes) {
		return false
	}
	for k, v := range u.Attributes {
		ov, ok := other.Attributes[k]
		if !ok || !reflect.DeepEqual(v, ov) {
			return false
		}
	}
	return true
}

// sortedRoles returns roles in canonical order without modifying the input
func sortedRoles(roles []string) []string {
	sorted := slices.Clone(roles)
	slices.Sort(sorted)
	return slices.Compact(sorted)
}

func copyAttribute(v any) any {
	switch val := v.(type) {
	case []string:
		return slices.Clone(val)
	case []any:
		return slices.Clone(val)
	default:
		return v
	}
}

// Decision is the explained result of a single permission check
type Decision struct {
	Allowed      bool            `json:"allowed"`
	Check        PermissionCheck `json:"check"`
	Reason       string          `json:"reason,omitempty"`
	MatchedRoles []string        `json:"matched_roles,omitempty"`
}
