package cli

import (
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// Command represents a CLI command
type Command struct {
	Name        string
	Description string
	Run         func(args []string) error
	Subcommands map[string]*Command
	Flags       *flag.FlagSet

	out io.Writer
}

// NewRootCommand creates the root command writing to stdout
func NewRootCommand() *Command {
	return newRootCommand(os.Stdout)
}

func newRootCommand(out io.Writer) *Command {
	root := &Command{
		Name:        "gatekeeper",
		Description: "Gatekeeper - permission rule inspection CLI",
		Subcommands: make(map[string]*Command),
		Flags:       flag.NewFlagSet("gatekeeper", flag.ExitOnError),
		out:         out,
	}

	// Add subcommands
	root.Subcommands["check"] = newCheckCommand(out)
	root.Subcommands["actions"] = newActionsCommand(out)
	root.Subcommands["roles"] = newRolesCommand(out)
	root.Subcommands["validate"] = newValidateCommand(out)
	root.Subcommands["watch"] = newWatchCommand(out)

	return root
}

// Execute runs the command with the process arguments
func (c *Command) Execute() error {
	return c.ExecuteArgs(os.Args[1:])
}

// ExecuteArgs runs the command with the given arguments
func (c *Command) ExecuteArgs(args []string) error {
	if len(args) == 0 {
		return c.usage()
	}

	// Check for help flag
	switch strings.ToLower(args[0]) {
	case "-h", "--help", "help":
		return c.usage()
	}

	// Check for subcommand
	if subcmd, ok := c.Subcommands[args[0]]; ok {
		return subcmd.Run(args[1:])
	}

	return fmt.Errorf("unknown command: %s", args[0])
}

// usage prints the command usage
func (c *Command) usage() error {
	out := c.out
	if out == nil {
		out = os.Stdout
	}

	names := make([]string, 0, len(c.Subcommands))
	for name := range c.Subcommands {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintf(out, "Usage: %s <command> [args]\n\n", c.Name)
	fmt.Fprintf(out, "Commands:\n")
	for _, name := range names {
		fmt.Fprintf(out, "  %-15s %s\n", name, c.Subcommands[name].Description)
	}
	return nil
}

func newFlagSet(name string, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	return fs
}
