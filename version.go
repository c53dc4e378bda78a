package main

import (
	_ "embed"
	"strings"

	"github.com/spf13/cobra"
)

//go:embed version.txt
var rainCloudVersion string

func RainCloudVersion() string {
	return strings.TrimSpace(rainCloudVersion)
}

func CreateVersionCommand() *cobra.Command {
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version of this tool",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(RainCloudVersion())
		},
	}

	return versionCmd
}
