package rbac

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io"
	"os"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"
)

//go:embed rules/*.yaml
var ruleFiles embed.FS

// PredicateType names an instance-level guard attached to a grant
type PredicateType string

const (
	// PredicateOwner allows the instance when its id is the user's id
	PredicateOwner PredicateType = "owner"
	// PredicateAttributeContains allows the instance when a user attribute
	// (a string or list of strings) contains its id
	PredicateAttributeContains PredicateType = "attribute_contains"
	// PredicateAttributeEquals allows the instance when a user attribute
	// equals the configured value (compared by string form)
	PredicateAttributeEquals PredicateType = "attribute_equals"
	// PredicateHasOrganization allows the instance when the user belongs to the
	// configured organization, or to any organization when no value is set.
	// Resource instances carry no tenant, so it does not scope by the
	// instance's organization.
	PredicateHasOrganization PredicateType = "has_organization"
)

// RuleSet is the static configuration the Rule Model is compiled from.
//
// Actions declares the canonical action ordering. GetAllowedActions returns
// actions in this order so the UI can render the primary action first.
type RuleSet struct {
	Version   int                 `yaml:"version" json:"version"`
	Actions   []Action            `yaml:"actions" json:"actions"`
	Resources []Resource          `yaml:"resources" json:"resources"`
	Roles     map[string]RoleSpec `yaml:"roles" json:"roles"`
}

// RoleSpec declares the grants of a single role
type RoleSpec struct {
	Description string      `yaml:"description,omitempty" json:"description,omitempty"`
	Inherits    []string    `yaml:"inherits,omitempty" json:"inherits,omitempty"`
	Grants      []GrantSpec `yaml:"grants,omitempty" json:"grants,omitempty"`
}

// GrantSpec allows a set of actions on a resource, optionally guarded by
// instance predicates. Resource and actions accept "*".
type GrantSpec struct {
	Resource string          `yaml:"resource" json:"resource"`
	Actions  []string        `yaml:"actions" json:"actions"`
	When     []PredicateSpec `yaml:"when,omitempty" json:"when,omitempty"`
}

// PredicateSpec configures a single predicate
type PredicateSpec struct {
	Type      PredicateType `yaml:"type" json:"type"`
	Attribute string        `yaml:"attribute,omitempty" json:"attribute,omitempty"`
	Value     string        `yaml:"value,omitempty" json:"value,omitempty"`
}

// Validate checks the structure of the rule set. Cross references (declared
// resources, inherited roles) are checked when the model is compiled.
func (rs RuleSet) Validate() error {
	return validation.ValidateStruct(&rs,
		validation.Field(&rs.Actions, validation.Required, validation.Each(validation.Required), validation.By(uniqueValues[Action])),
		validation.Field(&rs.Resources, validation.Required, validation.Each(validation.Required), validation.By(uniqueValues[Resource])),
		validation.Field(&rs.Roles, validation.Required),
	)
}

// Validate checks a role declaration
func (r RoleSpec) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Inherits, validation.Each(validation.Required)),
		validation.Field(&r.Grants),
	)
}

// Validate checks a grant declaration
func (g GrantSpec) Validate() error {
	return validation.ValidateStruct(&g,
		validation.Field(&g.Resource, validation.Required),
		validation.Field(&g.Actions, validation.Required, validation.Each(validation.Required)),
		validation.Field(&g.When),
	)
}

// Validate checks a predicate declaration
func (p PredicateSpec) Validate() error {
	needsAttribute := p.Type == PredicateAttributeContains || p.Type == PredicateAttributeEquals
	return validation.ValidateStruct(&p,
		validation.Field(&p.Type, validation.Required, validation.In(
			PredicateOwner, PredicateAttributeContains, PredicateAttributeEquals, PredicateHasOrganization,
		)),
		validation.Field(&p.Attribute, validation.When(needsAttribute, validation.Required)),
		validation.Field(&p.Value, validation.When(p.Type == PredicateAttributeEquals, validation.Required)),
	)
}

func uniqueValues[T ~string](value interface{}) error {
	values, _ := value.([]T)
	seen := make(map[T]struct{}, len(values))
	for _, v := range values {
		if _, dup := seen[v]; dup {
			return fmt.Errorf("duplicate value %q", v)
		}
		seen[v] = struct{}{}
	}
	return nil
}

// LoadRuleSet decodes and validates a YAML rule set. Unknown fields are rejected
// so that a misspelled key does not silently drop a grant.
func LoadRuleSet(r io.Reader) (*RuleSet, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var rs RuleSet
	if err := dec.Decode(&rs); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrInvalidRuleSet)
		}
		return nil, fmt.Errorf("%w: decoding yaml: %v", ErrInvalidRuleSet, err)
	}

	if err := rs.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRuleSet, err)
	}

	return &rs, nil
}

// LoadRuleSetFile loads a rule set from a YAML file on disk
func LoadRuleSetFile(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule set %s: %w", path, err)
	}

	rs, err := LoadRuleSet(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rs, nil
}

// DefaultRuleSet returns the rule set embedded in the binary
func DefaultRuleSet() (*RuleSet, error) {
	data, err := ruleFiles.ReadFile("rules/default.yaml")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded rule set: %w", err)
	}
	return LoadRuleSet(bytes.NewReader(data))
}

// LoadRuleModel compiles the rule set at path, or the embedded rule set when
// path is empty
func LoadRuleModel(path string) (*RuleModel, error) {
	var (
		rs  *RuleSet
		err error
	)
	if path == "" {
		rs, err = DefaultRuleSet()
	} else {
		rs, err = LoadRuleSetFile(path)
	}
	if err != nil {
		return nil, err
	}
	return NewRuleModel(rs)
}

// Marshal encodes the rule set back to YAML
func (rs *RuleSet) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(rs); err != nil {
		return nil, fmt.Errorf("failed to encode rule set: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode rule set: %w", err)
	}
	return buf.Bytes(), nil
}
