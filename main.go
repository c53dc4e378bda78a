// Rain Cloud Protocol API server and command-line interface.
//
// The github.com/sekadau-online/The-Cloud-Rain-Protocol package is the entrypoint to the
// Rain Cloud Protocol tooling. This package defines the command-line interface that is
// used to configure and start the API server, and the owner-side commands that produce
// the signatures the protocol consumes.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func CreateRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "raincloud",
		Short: "Rain Cloud Protocol service and owner tooling",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	rootCmd.AddCommand(
		CreateServeCommand(),
		CreateSignCommand(),
		CreateHashCommand(),
		CreateAddressCommand(),
		CreateVersionCommand(),
	)

	return rootCmd
}

func main() {
	rootCmd := CreateRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
