package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/platinummonkey/gatekeeper/pkg/rbac"
)

func newActionsCommand(out io.Writer) *Command {
	cmd := &Command{
		Name:        "actions",
		Description: "List the actions a user may perform on a resource",
		Flags:       newFlagSet("actions", out),
		out:         out,
	}

	var (
		rules rulesFlags
		user  userFlags
	)
	rules.register(cmd.Flags)
	user.register(cmd.Flags)
	resource := cmd.Flags.String("resource", "", "Resource type (default: every declared resource)")
	resourceID := cmd.Flags.String("id", "", "Resource instance ID")
	asJSON := cmd.Flags.Bool("json", false, "Print actions as JSON")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}

		engine, err := rules.engine()
		if err != nil {
			return err
		}
		u, err := user.user()
		if err != nil {
			return err
		}

		resources := engine.Rules().Resources()
		if *resource != "" {
			resources = []rbac.Resource{rbac.Resource(*resource)}
		}

		allowed := make(map[rbac.Resource][]rbac.Action, len(resources))
		for _, res := range resources {
			allowed[res] = engine.GetAllowedActions(u, res, *resourceID)
		}

		if *asJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(allowed)
		}

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "RESOURCE\tACTIONS")
		for _, res := range resources {
			fmt.Fprintf(w, "%s\t%s\n", res, joinActions(allowed[res]))
		}
		return w.Flush()
	}

	return cmd
}

func joinActions(actions []rbac.Action) string {
	if len(actions) == 0 {
		return "-"
	}
	s := string(actions[0])
	for _, a := range actions[1:] {
		s += "," + string(a)
	}
	return s
}
