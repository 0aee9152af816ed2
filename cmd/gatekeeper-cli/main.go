package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/platinummonkey/gatekeeper/pkg/cli"
)

func main() {
	rootCmd := cli.NewRootCommand()

	if err := rootCmd.Execute(); err != nil {
		// denials are already printed by the check command
		if !errors.Is(err, cli.ErrDenied) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
