package cli

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/gatekeeper/pkg/rbac"
)

func newValidateCommand(out io.Writer) *Command {
	cmd := &Command{
		Name:        "validate",
		Description: "Validate rule set files",
		Flags:       newFlagSet("validate", out),
		out:         out,
	}

	dump := cmd.Flags.Bool("print", false, "Print the normalised rule set")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if cmd.Flags.NArg() == 0 {
			return fmt.Errorf("at least one rule set file is required")
		}

		var errs []error
		for _, path := range cmd.Flags.Args() {
			rs, model, err := validateFile(path)
			if err != nil {
				fmt.Fprintf(out, "FAIL %s: %v\n", path, err)
				errs = append(errs, err)
				continue
			}
			fmt.Fprintf(out, "ok   %s (%d roles, %d rules)\n", path, len(model.Roles()), model.RuleCount())
			if *dump {
				if err := yaml.NewEncoder(out).Encode(rs); err != nil {
					return err
				}
			}
		}

		if len(errs) > 0 {
			return fmt.Errorf("%d of %d rule sets invalid: %w", len(errs), cmd.Flags.NArg(), errors.Join(errs...))
		}
		return nil
	}

	return cmd
}

func validateFile(path string) (*rbac.RuleSet, *rbac.RuleModel, error) {
	rs, err := rbac.LoadRuleSetFile(path)
	if err != nil {
		return nil, nil, err
	}
	model, err := rbac.NewRuleModel(rs)
	if err != nil {
		return nil, nil, err
	}
	return rs, model, nil
}
