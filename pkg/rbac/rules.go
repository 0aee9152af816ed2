package rbac

import (
	"fmt"
	"slices"
	"sort"
	"strings"
)

// Predicate guards instance-scoped access granted by a rule. It is only
// consulted when a check names a resource instance.
type Predicate interface {
	Allows(user *UserContext, resourceID string) bool
	String() string
}

// Rule is a compiled grant: Role may perform Actions on Resource, provided every
// predicate allows the instance being checked.
type Rule struct {
	Role       string
	Resource   Resource
	Actions    []Action
	Predicates []Predicate
	// Source is the role that declared the grant; differs from Role for
	// inherited grants.
	Source string
}

// String renders the rule for CLI output and log lines
func (r Rule) String() string {
	actions := make([]string, len(r.Actions))
	for i, a := range r.Actions {
		actions[i] = string(a)
	}
	s := fmt.Sprintf("%s: %s [%s]", r.Role, r.Resource, strings.Join(actions, ","))
	if len(r.Predicates) > 0 {
		preds := make([]string, len(r.Predicates))
		for i, p := range r.Predicates {
			preds[i] = p.String()
		}
		s += " when " + strings.Join(preds, " and ")
	}
	if r.Source != "" && r.Source != r.Role {
		s += " (from " + r.Source + ")"
	}
	return s
}

// RuleModel holds the compiled role → capability mapping. It is immutable once
// built and safe for concurrent readers.
type RuleModel struct {
	actions     []Action
	actionIndex map[Action]int
	resources   []Resource
	resourceSet map[Resource]struct{}
	roles       map[string]*compiledRole
	roleNames   []string
}

type compiledRole struct {
	description string
	resources   map[Resource]*resourceGrant
	rules       []Rule
}

type resourceGrant struct {
	// actions allowed by any grant, in declared order
	actions []Action
	// rules granting each action
	byAction map[Action][]Rule
}

// NewRuleModel compiles a rule set. Wildcards are expanded against the declared
// resources and actions and inherited grants are flattened into each role.
func NewRuleModel(rs *RuleSet) (*RuleModel, error) {
	if rs == nil {
		return nil, fmt.Errorf("%w: rule set is nil", ErrInvalidRuleSet)
	}
	if err := rs.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRuleSet, err)
	}

	m := &RuleModel{
		actions:     slices.Clone(rs.Actions),
		actionIndex: make(map[Action]int, len(rs.Actions)),
		resources:   slices.Clone(rs.Resources),
		resourceSet: make(map[Resource]struct{}, len(rs.Resources)),
		roles:       make(map[string]*compiledRole, len(rs.Roles)),
	}
	for i, a := range rs.Actions {
		m.actionIndex[a] = i
	}
	for _, r := range rs.Resources {
		m.resourceSet[r] = struct{}{}
	}

	// Expand each role's own grants first, then resolve inheritance.
	own := make(map[string][]Rule, len(rs.Roles))
	for name, spec := range rs.Roles {
		rules, err := m.expandGrants(name, spec.Grants)
		if err != nil {
			return nil, fmt.Errorf("%w: role %q: %v", ErrInvalidRuleSet, name, err)
		}
		own[name] = rules
	}

	for name, spec := range rs.Roles {
		rules, err := resolveInheritance(name, rs.Roles, own, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRuleSet, err)
		}
		m.roles[name] = m.compileRole(name, spec.Description, rules)
		m.roleNames = append(m.roleNames, name)
	}
	sort.Strings(m.roleNames)

	return m, nil
}

// MustRuleModel compiles a rule set and panics on error
func MustRuleModel(rs *RuleSet) *RuleModel {
	m, err := NewRuleModel(rs)
	if err != nil {
		panic(err)
	}
	return m
}

// expandGrants turns grant specs into rules with concrete resources and
// actions in declared order.
func (m *RuleModel) expandGrants(role string, grants []GrantSpec) ([]Rule, error) {
	var rules []Rule
	for i, g := range grants {
		var resources []Resource
		if g.Resource == Wildcard {
			resources = m.resources
		} else {
			res := Resource(g.Resource)
			if _, ok := m.resourceSet[res]; !ok {
				return nil, fmt.Errorf("grant %d: undeclared resource %q", i, g.Resource)
			}
			resources = []Resource{res}
		}

		actions, err := m.expandActions(g.Actions)
		if err != nil {
			return nil, fmt.Errorf("grant %d: %w", i, err)
		}

		preds := make([]Predicate, 0, len(g.When))
		for _, spec := range g.When {
			p, err := newPredicate(spec)
			if err != nil {
				return nil, fmt.Errorf("grant %d: %w", i, err)
			}
			preds = append(preds, p)
		}

		for _, res := range resources {
			rules = append(rules, Rule{
				Role:       role,
				Resource:   res,
				Actions:    actions,
				Predicates: preds,
				Source:     role,
			})
		}
	}
	return rules, nil
}

func (m *RuleModel) expandActions(names []string) ([]Action, error) {
	if slices.Contains(names, Wildcard) {
		return slices.Clone(m.actions), nil
	}
	actions := make([]Action, 0, len(names))
	for _, name := range names {
		a := Action(name)
		if _, ok := m.actionIndex[a]; !ok {
			return nil, fmt.Errorf("undeclared action %q", name)
		}
		if !slices.Contains(actions, a) {
			actions = append(actions, a)
		}
	}
	m.sortActions(actions)
	return actions, nil
}

// resolveInheritance returns the role's own rules followed by every ancestor's
// rules, re-labelled with the inheriting role.
func resolveInheritance(name string, specs map[string]RoleSpec, own map[string][]Rule, path []string) ([]Rule, error) {
	if slices.Contains(path, name) {
		return nil, fmt.Errorf("role inheritance cycle: %s -> %s", strings.Join(path, " -> "), name)
	}
	spec, ok := specs[name]
	if !ok {
		return nil, fmt.Errorf("role %q inherits unknown role %q", path[len(path)-1], name)
	}
	path = append(path, name)

	rules := slices.Clone(own[name])
	for _, parent := range spec.Inherits {
		inherited, err := resolveInheritance(parent, specs, own, path)
		if err != nil {
			return nil, err
		}
		rules = append(rules, inherited...)
	}

	root := path[0]
	for i := range rules {
		rules[i].Role = root
	}
	return rules, nil
}

func (m *RuleModel) compileRole(name, description string, rules []Rule) *compiledRole {
	cr := &compiledRole{
		description: description,
		resources:   make(map[Resource]*resourceGrant),
		rules:       rules,
	}
	for _, rule := range rules {
		rg := cr.resources[rule.Resource]
		if rg == nil {
			rg = &resourceGrant{byAction: make(map[Action][]Rule)}
			cr.resources[rule.Resource] = rg
		}
		for _, a := range rule.Actions {
			if _, seen := rg.byAction[a]; !seen {
				rg.actions = append(rg.actions, a)
			}
			rg.byAction[a] = append(rg.byAction[a], rule)
		}
	}
	for _, rg := range cr.resources {
		m.sortActions(rg.actions)
	}
	return cr
}

func (m *RuleModel) sortActions(actions []Action) {
	slices.SortStableFunc(actions, func(a, b Action) int {
		return m.actionIndex[a] - m.actionIndex[b]
	})
}

// RulesFor returns the actions a role may perform on a resource, in declared
// order. Unknown roles or resources yield nil. The returned slice is shared and
// must not be modified.
func (m *RuleModel) RulesFor(role string, resource Resource) []Action {
	cr, ok := m.roles[role]
	if !ok {
		return nil
	}
	rg, ok := cr.resources[resource]
	if !ok {
		return nil
	}
	return rg.actions
}

// IsInstanceAllowed reports whether role may perform action on a specific
// instance. A granting rule without predicates allows every instance; a rule
// with predicates allows it only when all of them hold. Several granting rules
// are ORed. No granting rule at all means false.
func (m *RuleModel) IsInstanceAllowed(role string, resource Resource, action Action, resourceID string, user *UserContext) bool {
	cr, ok := m.roles[role]
	if !ok {
		return false
	}
	rg, ok := cr.resources[resource]
	if !ok {
		return false
	}
	for _, rule := range rg.byAction[action] {
		if predicatesAllow(rule.Predicates, user, resourceID) {
			return true
		}
	}
	return false
}

func predicatesAllow(preds []Predicate, user *UserContext, resourceID string) bool {
	for _, p := range preds {
		if !p.Allows(user, resourceID) {
			return false
		}
	}
	return true
}

// Actions returns the declared action ordering
func (m *RuleModel) Actions() []Action {
	return m.actions
}

// Resources returns the declared resources
func (m *RuleModel) Resources() []Resource {
	return m.resources
}

// HasResource reports whether the resource is declared
func (m *RuleModel) HasResource(resource Resource) bool {
	_, ok := m.resourceSet[resource]
	return ok
}

// HasRole reports whether the role is declared
func (m *RuleModel) HasRole(role string) bool {
	_, ok := m.roles[role]
	return ok
}

// Roles returns the declared role names, sorted
func (m *RuleModel) Roles() []string {
	return slices.Clone(m.roleNames)
}

// RoleDescription returns a role's description
func (m *RuleModel) RoleDescription(role string) string {
	if cr, ok := m.roles[role]; ok {
		return cr.description
	}
	return ""
}

// RulesForRole returns the effective rules of a role, inherited ones included
func (m *RuleModel) RulesForRole(role string) []Rule {
	cr, ok := m.roles[role]
	if !ok {
		return nil
	}
	return slices.Clone(cr.rules)
}

// RuleCount returns the number of compiled rules across all roles
func (m *RuleModel) RuleCount() int {
	n := 0
	for _, cr := range m.roles {
		n += len(cr.rules)
	}
	return n
}
