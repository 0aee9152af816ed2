package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/platinummonkey/gatekeeper/pkg/rbac"
)

// ErrDenied is returned by check when at least one check is denied
var ErrDenied = errors.New("permission denied")

func newCheckCommand(out io.Writer) *Command {
	cmd := &Command{
		Name:        "check",
		Description: "Evaluate permission checks for a user",
		Flags:       newFlagSet("check", out),
		out:         out,
	}

	var (
		rules rulesFlags
		user  userFlags
	)
	rules.register(cmd.Flags)
	user.register(cmd.Flags)
	asJSON := cmd.Flags.Bool("json", false, "Print decisions as JSON")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if cmd.Flags.NArg() == 0 {
			return fmt.Errorf("at least one check (resource:action[/id]) is required")
		}

		engine, err := rules.engine()
		if err != nil {
			return err
		}
		u, err := user.user()
		if err != nil {
			return err
		}

		decisions := make([]rbac.Decision, 0, cmd.Flags.NArg())
		for _, arg := range cmd.Flags.Args() {
			check, err := rbac.ParseCheck(arg)
			if err != nil {
				return err
			}
			decisions = append(decisions, engine.Explain(u, check))
		}

		if *asJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			if err := enc.Encode(decisions); err != nil {
				return err
			}
		} else {
			for _, d := range decisions {
				verdict := "DENY "
				if d.Allowed {
					verdict = "ALLOW"
				}
				fmt.Fprintf(out, "%s %s (%s)\n", verdict, d.Check, d.Reason)
			}
		}

		for _, d := range decisions {
			if !d.Allowed {
				return ErrDenied
			}
		}
		return nil
	}

	return cmd
}
