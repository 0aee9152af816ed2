package rbac

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
)

func newPredicate(spec PredicateSpec) (Predicate, error) {
	switch spec.Type {
	case PredicateOwner:
		return ownerPredicate{}, nil
	case PredicateAttributeContains:
		if spec.Attribute == "" {
			return nil, fmt.Errorf("%s predicate requires an attribute", spec.Type)
		}
		return attributeContainsPredicate{attribute: spec.Attribute}, nil
	case PredicateAttributeEquals:
		if spec.Attribute == "" {
			return nil, fmt.Errorf("%s predicate requires an attribute", spec.Type)
		}
		return attributeEqualsPredicate{attribute: spec.Attribute, value: spec.Value}, nil
	case PredicateHasOrganization:
		return hasOrganizationPredicate{organizationID: spec.Value}, nil
	default:
		return nil, fmt.Errorf("unknown predicate type %q", spec.Type)
	}
}

// attributeString renders an attribute value the way ids and configured
// values are written. Decoded JSON numbers arrive as float64 or json.Number
// and must not be printed in exponent form.
func attributeString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return strconv.FormatInt(i, 10)
		}
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	default:
		return fmt.Sprint(val)
	}
}

type ownerPredicate struct{}

func (ownerPredicate) Allows(user *UserContext, resourceID string) bool {
	return user != nil && resourceID != "" && user.UserID == resourceID
}

func (ownerPredicate) String() string { return "owner" }

type attributeContainsPredicate struct {
	attribute string
}

func (p attributeContainsPredicate) Allows(user *UserContext, resourceID string) bool {
	v, ok := user.Attribute(p.attribute)
	if !ok || resourceID == "" {
		return false
	}
	switch val := v.(type) {
	case string:
		return val == resourceID
	case []string:
		return slices.Contains(val, resourceID)
	case []any:
		for _, item := range val {
			if attributeString(item) == resourceID {
				return true
			}
		}
		return false
	default:
		return attributeString(val) == resourceID
	}
}

func (p attributeContainsPredicate) String() string {
	return fmt.Sprintf("%s contains id", p.attribute)
}

type attributeEqualsPredicate struct {
	attribute string
	value     string
}

func (p attributeEqualsPredicate) Allows(user *UserContext, _ string) bool {
	v, ok := user.Attribute(p.attribute)
	if !ok || v == nil {
		return false
	}
	return attributeString(v) == p.value
}

func (p attributeEqualsPredicate) String() string {
	return fmt.Sprintf("%s == %q", p.attribute, p.value)
}

type hasOrganizationPredicate struct {
	organizationID string
}

func (p hasOrganizationPredicate) Allows(user *UserContext, _ string) bool {
	if user == nil || user.OrganizationID == "" {
		return false
	}
	return p.organizationID == "" || user.OrganizationID == p.organizationID
}

func (p hasOrganizationPredicate) String() string {
	if p.organizationID == "" {
		return "has organization"
	}
	return "organization == " + p.organizationID
}
