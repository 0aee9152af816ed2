package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
)

func newRolesCommand(out io.Writer) *Command {
	cmd := &Command{
		Name:        "roles",
		Description: "List roles or show the effective rules of one role",
		Flags:       newFlagSet("roles", out),
		out:         out,
	}

	var rules rulesFlags
	rules.register(cmd.Flags)
	role := cmd.Flags.String("role", "", "Show the effective rules of this role")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}

		model, err := rules.model()
		if err != nil {
			return err
		}

		if *role != "" {
			if !model.HasRole(*role) {
				return fmt.Errorf("unknown role: %s", *role)
			}
			if desc := model.RoleDescription(*role); desc != "" {
				fmt.Fprintf(out, "%s: %s\n", *role, desc)
			}
			for _, r := range model.RulesForRole(*role) {
				fmt.Fprintf(out, "  %s\n", r)
			}
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ROLE\tRULES\tDESCRIPTION")
		for _, name := range model.Roles() {
			fmt.Fprintf(w, "%s\t%d\t%s\n", name, len(model.RulesForRole(name)), model.RoleDescription(name))
		}
		return w.Flush()
	}

	return cmd
}
