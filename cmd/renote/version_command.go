package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version is stamped by release builds via -ldflags.
var version = "dev"

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print the renote version",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "renote %s\n", version)
		},
	}
}
