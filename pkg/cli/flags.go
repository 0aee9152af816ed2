package cli

import (
	"flag"
	"fmt"
	"strings"

	"github.com/platinummonkey/gatekeeper/pkg/rbac"
	"github.com/platinummonkey/gatekeeper/pkg/session"
)

// rulesFlags selects the rule set and evaluation mode
type rulesFlags struct {
	file string
	mode string
}

func (f *rulesFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.file, "rules", "", "Rule set file (default: built-in rules)")
	fs.StringVar(&f.mode, "mode", string(rbac.ModeEnforce), "Evaluation mode: enforce or bypass")
}

func (f *rulesFlags) model() (*rbac.RuleModel, error) {
	return rbac.LoadRuleModel(f.file)
}

func (f *rulesFlags) engine() (*rbac.Engine, error) {
	mode, err := rbac.ParseEvaluationMode(f.mode)
	if err != nil {
		return nil, err
	}
	model, err := f.model()
	if err != nil {
		return nil, err
	}
	return rbac.NewEngine(model, rbac.WithMode(mode)), nil
}

// userFlags describe the user a check is evaluated for. An empty user ID
// means an unauthenticated caller.
type userFlags struct {
	id    string
	roles string
	org   string
	attrs attributeFlag
}

func (f *userFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.id, "user", "", "User ID (empty for an unauthenticated caller)")
	fs.StringVar(&f.roles, "roles", "", "Comma-separated role names")
	fs.StringVar(&f.org, "org", "", "Organization ID")
	fs.Var(&f.attrs, "attr", "Attribute as key=value, repeatable; commas in the value make a list")
}

func (f *userFlags) user() (*rbac.UserContext, error) {
	if f.id == "" {
		return nil, nil
	}
	return rbac.NewUserContext(f.id, session.SplitList(f.roles), f.org, f.attrs.values)
}

// attributeFlag collects repeated key=value flags
type attributeFlag struct {
	values map[string]any
}

func (a *attributeFlag) String() string {
	if a == nil || len(a.values) == 0 {
		return ""
	}
	return fmt.Sprint(a.values)
}

func (a *attributeFlag) Set(s string) error {
	key, value, ok := strings.Cut(s, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return fmt.Errorf("attribute %q must be key=value", s)
	}
	if a.values == nil {
		a.values = make(map[string]any)
	}
	if strings.Contains(value, ",") {
		a.values[key] = session.SplitList(value)
	} else {
		a.values[key] = strings.TrimSpace(value)
	}
	return nil
}
